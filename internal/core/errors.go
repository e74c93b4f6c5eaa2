package core

import (
	"fmt"

	"github.com/asof-dev/asof/client"
)

// NotFoundError wraps client.ErrNotFound with registry context.
type NotFoundError struct {
	Ecosystem string
	Name      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: package %s not found", e.Ecosystem, e.Name)
}

func (e *NotFoundError) Unwrap() error {
	return client.ErrNotFound
}

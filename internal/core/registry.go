package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/asof-dev/asof/client"
)

// Registry is the interface implemented by all ecosystem registry clients.
type Registry interface {
	// Ecosystem returns the PURL type for this registry ("pypi", "conda").
	Ecosystem() string

	// FetchFiles retrieves every published distribution file record for a
	// package, normalized for the resolver. A missing package surfaces as
	// a *NotFoundError; callers may treat it as zero records.
	FetchFiles(ctx context.Context, name string) ([]DistFile, error)

	// AsOf resolves the newest version of a package visible at or before
	// the cutoff time.
	AsOf(ctx context.Context, name string, cutoff time.Time) (Matches, error)

	// URLs returns the URL builder for this registry.
	URLs() client.URLBuilder
}

// Factory creates a registry instance for a given base URL.
type Factory func(baseURL string, c *client.Client) Registry

var (
	factories = make(map[string]Factory)
	defaults  = make(map[string]string)
	mu        sync.RWMutex
)

// Register adds a registry factory to the global registry.
// ecosystem is the PURL type ("pypi", "conda").
// defaultURL is the default registry URL for the ecosystem.
func Register(ecosystem string, defaultURL string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[ecosystem] = factory
	defaults[ecosystem] = defaultURL
}

// New creates a new registry for the given ecosystem.
// If baseURL is empty, the default registry URL is used.
func New(ecosystem string, baseURL string, c *client.Client) (Registry, error) {
	mu.RLock()
	factory, ok := factories[ecosystem]
	defaultURL := defaults[ecosystem]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown ecosystem: %s", ecosystem)
	}

	if baseURL == "" {
		baseURL = defaultURL
	}

	if c == nil {
		c = client.DefaultClient()
	}

	return factory(baseURL, c), nil
}

// SupportedEcosystems returns all registered ecosystem types.
func SupportedEcosystems() []string {
	mu.RLock()
	defer mu.RUnlock()

	ecosystems := make([]string, 0, len(factories))
	for eco := range factories {
		ecosystems = append(ecosystems, eco)
	}
	return ecosystems
}

// DefaultURL returns the default registry URL for an ecosystem.
func DefaultURL(ecosystem string) string {
	mu.RLock()
	defer mu.RUnlock()
	return defaults[ecosystem]
}

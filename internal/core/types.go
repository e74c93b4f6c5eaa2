// Package core provides shared types and the version-resolution algorithm.
package core

import (
	"fmt"
	"time"

	pep440 "github.com/aquasecurity/go-pep440-version"
)

// DistFile is one published artifact entry from a registry: an sdist or
// wheel on PyPI, one build of a package on a conda channel.
type DistFile struct {
	Filename   string    // artifact filename; carries the version for PyPI files
	Version    string    // declared version string; empty when only the filename has it
	UploadedAt time.Time // publish time; Unix epoch when the registry recorded none
	Yanked     bool      // withdrawn by the registry, never eligible
	Channel    string    // conda channel label or registry base URL
}

// Match is one accepted resolution result. Immutable; compared by value.
type Match struct {
	Package     string
	Version     pep440.Version
	PublishedAt time.Time
	Source      string
}

// Pretty renders a match for console output.
func (m Match) Pretty() string {
	return fmt.Sprintf("%s v%s published %s to %s",
		m.Package, m.Version.String(), m.PublishedAt.Format("Mon 2006-01-02 15:04:05 MST"), m.Source)
}

// Matches is a resolution result: accepted matches in walk order (at most
// one pre-release followed by at most one stable release), or a diagnostic
// message explaining why nothing qualified.
type Matches struct {
	Matches []Match
	Message string // non-empty exactly when Matches is empty
}

// Best returns the single best match: the stable release when one was
// found, otherwise the highest qualifying pre-release. Nil when empty.
func (m Matches) Best() *Match {
	if len(m.Matches) == 0 {
		return nil
	}
	return &m.Matches[len(m.Matches)-1]
}

// Empty reports whether no record qualified.
func (m Matches) Empty() bool {
	return len(m.Matches) == 0
}

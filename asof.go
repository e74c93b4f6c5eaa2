// Package asof answers: what was the newest version of a package available
// from a registry at or before a given point in time?
//
// It queries the PyPI simple index and, when a conda-compatible command is
// available, conda channels, filters distribution files by publish time and
// platform compatibility, and reports the highest matching version. Stable
// releases are preferred; the newest pre-release is the fallback when no
// stable release existed yet by the cutoff.
//
// Basic usage:
//
//	import (
//		"context"
//		"time"
//		"github.com/asof-dev/asof"
//		_ "github.com/asof-dev/asof/all"
//	)
//
//	reg, err := asof.New("pypi", "", asof.DefaultClient())
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	cutoff, _ := time.Parse(time.RFC3339, "2022-03-04T00:00:00Z")
//	matches, err := reg.AsOf(context.Background(), "requests", cutoff)
//	if err != nil {
//		log.Fatal(err)
//	}
//	if best := matches.Best(); best != nil {
//		fmt.Println(best.Pretty())
//	}
package asof

import (
	"context"
	"time"

	packageurl "github.com/package-url/packageurl-go"

	"github.com/asof-dev/asof/client"
	"github.com/asof-dev/asof/internal/core"
)

// Re-export types from internal/core
type (
	// Registry is the interface implemented by all ecosystem registry clients.
	Registry = core.Registry

	// DistFile is one published distribution file record.
	DistFile = core.DistFile

	// Match is one accepted resolution result.
	Match = core.Match

	// Matches is a resolution result: matches or a diagnostic message.
	Matches = core.Matches

	// Resolver reduces a record list to the best match(es) as of a cutoff.
	Resolver = core.Resolver

	// NotFoundError reports a package missing from a registry.
	NotFoundError = core.NotFoundError
)

// Re-export types from client
type (
	// Client is an HTTP client with retry logic for registry APIs.
	Client = client.Client

	// Option configures a Client.
	Option = client.Option

	// URLBuilder constructs browseable URLs for a registry.
	URLBuilder = client.URLBuilder

	// HTTPError represents an HTTP error response.
	HTTPError = client.HTTPError

	// RateLimitError is returned when the registry rate limits requests.
	RateLimitError = client.RateLimitError
)

// ErrNotFound is returned when a package is not found.
var ErrNotFound = client.ErrNotFound

// New creates a new registry for the given ecosystem.
// If baseURL is empty, the default registry URL is used.
// If c is nil, DefaultClient() is used.
//
// Supported ecosystems: "pypi", "conda" (when registered; see package all).
func New(ecosystem string, baseURL string, c *Client) (Registry, error) {
	return core.New(ecosystem, baseURL, c)
}

// DefaultClient returns a client with sensible defaults:
// - 30s timeout
// - 5 retries with exponential backoff
// - Retry on 429 and 5xx responses
func DefaultClient() *Client {
	return client.DefaultClient()
}

// NewClient creates a new client with the given options.
func NewClient(opts ...Option) *Client {
	return client.NewClient(opts...)
}

// WithTimeout sets the HTTP client timeout.
var WithTimeout = client.WithTimeout

// WithMaxRetries sets the maximum number of retries.
var WithMaxRetries = client.WithMaxRetries

// SupportedEcosystems returns all registered ecosystem types.
// Note: ecosystems must be imported to be registered.
func SupportedEcosystems() []string {
	return core.SupportedEcosystems()
}

// DefaultURL returns the default registry URL for an ecosystem.
func DefaultURL(ecosystem string) string {
	return core.DefaultURL(ecosystem)
}

// BuildURLs returns a map of all non-empty URLs for a package.
// Keys are "registry", "docs", and "purl".
func BuildURLs(urls URLBuilder, name, version string) map[string]string {
	return client.BuildURLs(urls, name, version)
}

// PURL wraps packageurl.PackageURL with registry-specific helpers.
type PURL struct {
	packageurl.PackageURL
}

// FullName returns the package name in the format expected by the registry.
// For conda the namespace is the channel: "conda-forge/pandas".
func (p PURL) FullName() string {
	if p.Namespace == "" {
		return p.Name
	}
	return p.Namespace + "/" + p.Name
}

// ParsePURL parses a Package URL string into its components.
// Supports both package PURLs (pkg:pypi/requests) and version PURLs
// (pkg:pypi/requests@2.31.0).
func ParsePURL(purlStr string) (*PURL, error) {
	p, err := packageurl.FromString(purlStr)
	if err != nil {
		return nil, err
	}
	return &PURL{p}, nil
}

// AsOfPURL resolves the newest version visible at or before cutoff for a
// PURL like pkg:pypi/requests. A repository_url qualifier selects a private
// registry.
func AsOfPURL(ctx context.Context, purlStr string, cutoff time.Time, c *Client) (Matches, error) {
	p, err := ParsePURL(purlStr)
	if err != nil {
		return Matches{}, err
	}

	baseURL := p.Qualifiers.Map()["repository_url"]
	reg, err := New(p.Type, baseURL, c)
	if err != nil {
		return Matches{}, err
	}

	return reg.AsOf(ctx, p.FullName(), cutoff)
}

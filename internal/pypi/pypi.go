// Package pypi resolves "newest version as of a time" queries against the
// PyPI simple index.
package pypi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/asof-dev/asof/client"
	"github.com/asof-dev/asof/internal/compat"
	"github.com/asof-dev/asof/internal/core"
)

const (
	DefaultURL = "https://pypi.org"
	ecosystem  = "pypi"

	// PEP 691 content type; the simple index serves HTML without it.
	simpleJSON = "application/vnd.pypi.simple.v1+json"
)

func init() {
	core.Register(ecosystem, DefaultURL, func(baseURL string, c *client.Client) core.Registry {
		return New(baseURL, c)
	})
}

type Registry struct {
	baseURL string
	client  *client.Client
	filter  *compat.Filter
	log     *slog.Logger
	urls    *URLs
}

func New(baseURL string, c *client.Client) *Registry {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if c == nil {
		c = client.DefaultClient()
	}
	r := &Registry{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  c,
		filter:  compat.New(compat.DefaultEnv().Tags()),
	}
	r.urls = &URLs{baseURL: r.baseURL}
	return r
}

// WithEnv returns a Registry that filters wheels for the given environment
// instead of the host defaults.
func (r *Registry) WithEnv(env compat.Env) *Registry {
	clone := *r
	clone.filter = compat.New(env.Tags())
	return &clone
}

// WithLogger returns a Registry that emits parse warnings to log.
func (r *Registry) WithLogger(log *slog.Logger) *Registry {
	clone := *r
	clone.log = log
	return &clone
}

func (r *Registry) Ecosystem() string {
	return ecosystem
}

func (r *Registry) URLs() client.URLBuilder {
	return r.urls
}

type simpleResponse struct {
	Files []simpleFile `json:"files"`
}

type simpleFile struct {
	Filename   string     `json:"filename"`
	UploadTime string     `json:"upload-time"`
	Yanked     yankedFlag `json:"yanked"`
}

// yankedFlag handles the PEP 691 yanked field, which is false, true, or a
// reason string.
type yankedFlag bool

func (y *yankedFlag) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*y = yankedFlag(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*y = true
		return nil
	}
	return fmt.Errorf("yanked: expected bool or string, got %s", string(data))
}

// FetchFiles retrieves every distribution file published for a package.
func (r *Registry) FetchFiles(ctx context.Context, name string) ([]core.DistFile, error) {
	url := fmt.Sprintf("%s/simple/%s/", r.baseURL, normalizeName(name))

	var resp simpleResponse
	if err := r.client.GetJSONAs(ctx, url, simpleJSON, &resp); err != nil {
		var httpErr *client.HTTPError
		if errors.As(err, &httpErr) && httpErr.IsNotFound() {
			return nil, &core.NotFoundError{Ecosystem: ecosystem, Name: name}
		}
		return nil, err
	}

	files := make([]core.DistFile, 0, len(resp.Files))
	for _, f := range resp.Files {
		// A record without a usable publish time cannot be placed
		// relative to any cutoff; warn and skip, like an unparseable
		// version string.
		uploadedAt, err := time.Parse(time.RFC3339Nano, f.UploadTime)
		if err != nil {
			if r.log != nil {
				r.log.Warn("unable to parse upload time", "filename", f.Filename, "upload-time", f.UploadTime)
			}
			continue
		}
		files = append(files, core.DistFile{
			Filename:   f.Filename,
			UploadedAt: uploadedAt,
			Yanked:     bool(f.Yanked),
			Channel:    r.baseURL,
		})
	}
	return files, nil
}

// AsOf resolves the newest version of a package visible at or before the
// cutoff. A package missing from the index is a legitimate empty result,
// not an error.
func (r *Registry) AsOf(ctx context.Context, name string, cutoff time.Time) (core.Matches, error) {
	resolver := &core.Resolver{
		Source: r.baseURL,
		Compat: r.filter.For(name),
		Log:    r.log,
	}

	files, err := r.FetchFiles(ctx, name)
	if err != nil {
		var nf *core.NotFoundError
		if errors.As(err, &nf) {
			return resolver.Resolve(nil, cutoff, name), nil
		}
		return core.Matches{}, err
	}

	return resolver.Resolve(files, cutoff, name), nil
}

var nameSeparators = regexp.MustCompile(`[-_.]+`)

// normalizeName canonicalizes a package name per PEP 503: lowercase, with
// every run of separators collapsed to a single hyphen.
func normalizeName(name string) string {
	return strings.ToLower(nameSeparators.ReplaceAllString(name, "-"))
}

type URLs struct {
	baseURL string
}

func (u *URLs) Registry(name, version string) string {
	if version != "" {
		return fmt.Sprintf("%s/project/%s/%s/", u.baseURL, name, version)
	}
	return fmt.Sprintf("%s/project/%s/", u.baseURL, name)
}

func (u *URLs) Documentation(name, version string) string {
	if version != "" {
		return fmt.Sprintf("https://%s.readthedocs.io/en/%s/", name, version)
	}
	return fmt.Sprintf("https://%s.readthedocs.io/", name)
}

func (u *URLs) PURL(name, version string) string {
	normalized := normalizeName(name)
	if version != "" {
		return fmt.Sprintf("pkg:pypi/%s@%s", normalized, version)
	}
	return fmt.Sprintf("pkg:pypi/%s", normalized)
}

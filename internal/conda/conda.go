// Package conda resolves "newest version as of a time" queries through the
// conda (or mamba) search CLI.
package conda

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/asof-dev/asof/client"
	"github.com/asof-dev/asof/internal/core"
)

const (
	DefaultURL = "https://api.anaconda.org"
	ecosystem  = "conda"
)

// DefaultChannels are searched when no channels are configured.
var DefaultChannels = []string{"defaults", "conda-forge"}

func init() {
	core.Register(ecosystem, DefaultURL, func(baseURL string, c *client.Client) core.Registry {
		return New("")
	})
}

// Runner executes a search command and returns its stdout and stderr.
// Injected so tests do not shell out.
type Runner func(ctx context.Context, command string, args []string) (stdout, stderr []byte, err error)

type Registry struct {
	command  string
	channels []string
	runner   Runner
	log      *slog.Logger
	urls     *URLs
}

// New creates a conda registry using the given command ("mamba", "conda").
// An empty command is discovered from PATH on first use.
func New(command string) *Registry {
	return &Registry{
		command:  command,
		channels: DefaultChannels,
		runner:   execRunner,
		urls:     &URLs{},
	}
}

// WithChannels returns a Registry searching only the given channels.
func (r *Registry) WithChannels(channels ...string) *Registry {
	clone := *r
	clone.channels = channels
	return &clone
}

// WithLogger returns a Registry that emits parse warnings to log.
func (r *Registry) WithLogger(log *slog.Logger) *Registry {
	clone := *r
	clone.log = log
	return &clone
}

// WithRunner returns a Registry using a custom command runner.
func (r *Registry) WithRunner(runner Runner) *Registry {
	clone := *r
	clone.runner = runner
	return &clone
}

func (r *Registry) Ecosystem() string {
	return ecosystem
}

func (r *Registry) URLs() client.URLBuilder {
	return r.urls
}

// FindCommand returns the first conda-compatible command on PATH, mamba
// preferred for speed.
func FindCommand() (string, bool) {
	for _, command := range []string{"mamba", "conda"} {
		if _, err := exec.LookPath(command); err == nil {
			return command, true
		}
	}
	return "", false
}

func execRunner(ctx context.Context, command string, args []string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// condaFile is one entry of `conda search --json` output. Timestamps are
// integer milliseconds since the Unix epoch; ancient entries have none.
type condaFile struct {
	Filename  string `json:"fn"`
	Version   string `json:"version"`
	Channel   string `json:"channel"`
	Timestamp int64  `json:"timestamp"`
}

// FetchFiles runs a channel-restricted search and normalizes its output.
// A PackagesNotFoundError from the CLI surfaces as *core.NotFoundError;
// any other non-zero exit is a fetch failure.
func (r *Registry) FetchFiles(ctx context.Context, name string) ([]core.DistFile, error) {
	command := r.command
	if command == "" {
		var ok bool
		if command, ok = FindCommand(); !ok {
			return nil, errors.New("no conda-compatible command on PATH")
		}
	}

	args := []string{"search", "--json", name, "--override-channels"}
	if command == "conda" {
		// Disable retrying the search as "*<name>*".
		args = append(args, "--skip-flexible-search")
	}
	for _, channel := range r.channels {
		args = append(args, "--channel", channel)
	}

	stdout, stderr, err := r.runner(ctx, command, args)
	if err != nil {
		if bytes.Contains(stderr, []byte("PackagesNotFoundError")) {
			return nil, &core.NotFoundError{Ecosystem: ecosystem, Name: name}
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%s exited with status %d: %s", command, exitErr.ExitCode(), firstLine(stderr))
		}
		return nil, fmt.Errorf("running %s search: %w", command, err)
	}

	entries, err := parseSearchOutput(stdout)
	if err != nil {
		return nil, fmt.Errorf("parsing %s search output: %w", command, err)
	}

	files := make([]core.DistFile, 0, len(entries))
	for _, e := range entries {
		// A missing timestamp means an ancient entry; epoch keeps it
		// inside every cutoff rather than erroring or excluding it.
		files = append(files, core.DistFile{
			Filename:   e.Filename,
			Version:    e.Version,
			UploadedAt: time.UnixMilli(e.Timestamp).UTC(),
			Channel:    e.Channel,
		})
	}
	return files, nil
}

// parseSearchOutput handles both output shapes: conda returns
// {"<name>": [entries...]}, mamba wraps them as {"result": {"pkgs": [...]}}.
func parseSearchOutput(data []byte) ([]condaFile, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var body json.RawMessage
	for _, v := range raw {
		body = v
		break
	}

	var entries []condaFile
	if err := json.Unmarshal(body, &entries); err == nil {
		return entries, nil
	}

	var wrapped struct {
		Pkgs []condaFile `json:"pkgs"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Pkgs, nil
}

// AsOf resolves the newest version of a package visible at or before the
// cutoff from the configured channels.
func (r *Registry) AsOf(ctx context.Context, name string, cutoff time.Time) (core.Matches, error) {
	resolver := &core.Resolver{
		Source: "requested conda channels",
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

func firstLine(b []byte) string {
	s := strings.TrimSpace(string(b))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// parseChannelName splits an optional channel prefix from a package name.
// Format: "channel/name" or just "name".
func parseChannelName(name string) (channel, pkgName string) {
	parts := strings.SplitN(name, "/", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return "", name
}

type URLs struct{}

func (u *URLs) Registry(name, version string) string {
	channel, pkgName := parseChannelName(name)
	if channel == "" {
		channel = DefaultChannels[len(DefaultChannels)-1]
	}
	if version != "" {
		return fmt.Sprintf("https://anaconda.org/%s/%s/%s", channel, pkgName, version)
	}
	return fmt.Sprintf("https://anaconda.org/%s/%s", channel, pkgName)
}

func (u *URLs) Documentation(name, version string) string {
	return u.Registry(name, "")
}

func (u *URLs) PURL(name, version string) string {
	channel, pkgName := parseChannelName(name)
	if channel == "" {
		channel = DefaultChannels[len(DefaultChannels)-1]
	}
	if version != "" {
		return fmt.Sprintf("pkg:conda/%s/%s@%s", channel, pkgName, version)
	}
	return fmt.Sprintf("pkg:conda/%s/%s", channel, pkgName)
}

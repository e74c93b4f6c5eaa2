package core

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"time"

	pep440 "github.com/aquasecurity/go-pep440-version"
)

// versionPattern is the PEP 440 version grammar, transcribed from
// packaging.version.VERSION_PATTERN. Used only to carve the version
// substring out of a filename or declared version field; structured
// parsing is left to the pep440 package.
const versionPattern = `v?` +
	`(?:` +
	`(?:[0-9]+!)?` + // epoch
	`[0-9]+(?:\.[0-9]+)*` + // release segment
	`(?:[-_\.]?(?:alpha|a|beta|b|preview|pre|c|rc)[-_\.]?[0-9]*)?` + // pre-release
	`(?:(?:-[0-9]+)|(?:[-_\.]?(?:post|rev|r)[-_\.]?[0-9]*))?` + // post release
	`(?:[-_\.]?dev[-_\.]?[0-9]*)?` + // dev release
	`)` +
	`(?:\+[a-z0-9]+(?:[-_\.][a-z0-9]+)*)?` // local version

var (
	versionSearch = regexp.MustCompile(`(?i)` + versionPattern)
	versionAnchor = regexp.MustCompile(`(?i)^(?:` + versionPattern + `)`)
)

// Resolver reduces a fetched file-record list to the best match(es) as of
// a cutoff time. It performs no I/O, holds no state across calls, and is
// safe for unbounded concurrent use as long as each call owns its input.
type Resolver struct {
	// Source labels the registry in diagnostics and is the match source
	// when a record carries no channel of its own.
	Source string

	// Compat decides whether a record is usable on the target platform
	// and extracts its version. Nil means every record is compatible and
	// the declared version field is parsed directly (the conda case).
	Compat func(DistFile) (pep440.Version, bool)

	// Log receives non-fatal parse warnings. Nil discards them.
	Log *slog.Logger
}

// Resolve walks the records from highest to lowest version and returns the
// newest version of pkg visible at or before cutoff: the highest stable
// release, preceded by the single highest qualifying pre-release when one
// was seen first. When no stable release existed yet, the pre-release alone
// is the result. Records that are yanked, published after the cutoff, or
// incompatible are skipped; unparseable version strings are warned about
// and skipped, never an error.
func (r *Resolver) Resolve(files []DistFile, cutoff time.Time, pkg string) Matches {
	// Group by version string first so that structured parsing happens
	// once per distinct version, not once per file.
	grouped := make(map[string][]DistFile)
	for _, f := range files {
		key, ok := versionKey(f)
		if !ok {
			r.warnf("unable to parse version name", f)
			continue
		}
		grouped[key] = append(grouped[key], f)
	}

	// Registries tend to return entries nearly ascending already, so an
	// ascending sort followed by a reverse is close to a no-op.
	type versionGroup struct {
		key     string
		version pep440.Version
	}
	groups := make([]versionGroup, 0, len(grouped))
	for key := range grouped {
		v, err := pep440.Parse(key)
		if err != nil {
			r.warnf("unable to parse version name", DistFile{Version: key})
			continue
		}
		groups = append(groups, versionGroup{key: key, version: v})
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].version.Equal(groups[j].version) {
			return groups[i].key < groups[j].key
		}
		return groups[i].version.LessThan(groups[j].version)
	})
	for i, j := 0, len(groups)-1; i < j; i, j = i+1, j-1 {
		groups[i], groups[j] = groups[j], groups[i]
	}

	var matches []Match
	for _, g := range groups {
		for _, f := range grouped[g.key] {
			if f.Yanked {
				continue
			}
			if f.UploadedAt.After(cutoff) {
				continue
			}

			version, ok := r.compatible(f)
			if !ok {
				continue
			}
			if version.IsPreRelease() && len(matches) > 0 {
				// An earlier match is a pre-release higher than this one.
				continue
			}

			matches = append(matches, Match{
				Package:     pkg,
				Version:     version,
				PublishedAt: f.UploadedAt,
				Source:      r.source(f),
			})

			if !version.IsPreRelease() {
				// Highest stable match found: no lower group can outrank it.
				return Matches{Matches: matches}
			}
		}
	}

	if len(matches) > 0 {
		return Matches{Matches: matches}
	}
	return Matches{Message: fmt.Sprintf("No matches for %s available from %s", pkg, r.Source)}
}

func (r *Resolver) compatible(f DistFile) (pep440.Version, bool) {
	if r.Compat != nil {
		return r.Compat(f)
	}
	v, err := pep440.Parse(f.Version)
	if err != nil {
		r.warnf("unable to parse version name", f)
		return pep440.Version{}, false
	}
	return v, true
}

func (r *Resolver) source(f DistFile) string {
	if f.Channel != "" {
		return f.Channel
	}
	return r.Source
}

func (r *Resolver) warnf(msg string, f DistFile) {
	if r.Log == nil {
		return
	}
	if f.Version != "" {
		r.Log.Warn(msg, "version", f.Version)
		return
	}
	r.Log.Warn(msg, "filename", f.Filename)
}

// versionKey extracts the grouping key for a record: an anchored PEP 440
// match on a declared version field, or a search within the filename when
// the version is only embedded there.
func versionKey(f DistFile) (string, bool) {
	if f.Version != "" {
		key := versionAnchor.FindString(f.Version)
		return key, key != ""
	}
	key := versionSearch.FindString(f.Filename)
	return key, key != ""
}

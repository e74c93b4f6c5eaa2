// Package compat decides whether a distribution file is usable on a target
// Python environment and, if so, extracts its version.
package compat

import (
	"strings"

	"deps.dev/util/pypi"
	pep440 "github.com/aquasecurity/go-pep440-version"

	"github.com/asof-dev/asof/internal/core"
)

// Filter checks distribution files against an ordered supported-tag set.
// It is pure: no side effects, no state beyond the tag set.
type Filter struct {
	tags []pypi.PEP425Tag
}

// New creates a filter for the given supported tags, which must be ordered
// most specific first (as Env.Tags produces them).
func New(tags []pypi.PEP425Tag) *Filter {
	return &Filter{tags: tags}
}

// For returns the per-record compatibility hook for one package query.
// The canonical package name is needed to pick the version out of sdist
// filenames, whose name segment is not standardized.
func (f *Filter) For(name string) func(core.DistFile) (pep440.Version, bool) {
	canonName := pypi.CanonPackageName(name)
	return func(file core.DistFile) (pep440.Version, bool) {
		return f.Version(canonName, file.Filename)
	}
}

// Version inspects a distribution filename and returns its version when the
// file can run here. Source distributions carry no platform constraints and
// are always accepted; wheels are accepted on the first supported tag found
// among their expanded tags; anything else (obsolete .exe installers, eggs)
// is silently incompatible.
func (f *Filter) Version(canonName, filename string) (pep440.Version, bool) {
	if isSdist(filename) {
		_, version, err := pypi.SdistVersion(canonName, filename)
		if err != nil {
			return pep440.Version{}, false
		}
		return parse(version)
	}

	if strings.HasSuffix(filename, ".whl") {
		info, err := pypi.ParseWheelName(filename)
		if err != nil {
			return pep440.Version{}, false
		}
		fileTags := make(map[pypi.PEP425Tag]struct{}, len(info.Platforms))
		for _, t := range info.Platforms {
			fileTags[t] = struct{}{}
		}
		// First intersection in priority order wins; rank beyond that is
		// irrelevant because only the version is extracted.
		for _, t := range f.tags {
			if _, ok := fileTags[t]; ok {
				return parse(info.Version)
			}
		}
		return pep440.Version{}, false
	}

	return pep440.Version{}, false
}

func parse(version string) (pep440.Version, bool) {
	v, err := pep440.Parse(version)
	if err != nil {
		return pep440.Version{}, false
	}
	return v, true
}

func isSdist(filename string) bool {
	return strings.HasSuffix(filename, ".tar.gz") || strings.HasSuffix(filename, ".zip")
}

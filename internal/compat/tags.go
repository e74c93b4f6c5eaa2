package compat

import (
	"runtime"
	"strconv"
	"strings"

	"deps.dev/util/pypi"
)

// Env describes the target Python environment. Its ordered tag set stands
// in for packaging.tags.sys_tags(): most specific first, generic pure-Python
// tags last.
type Env struct {
	Implementation string   // interpreter tag prefix, normally "cp"
	PythonVersion  string   // "3.12"
	Platforms      []string // platform tags, most specific first
}

// DefaultEnv returns the environment asof resolves for when the config does
// not override it: current CPython on the platform this binary runs on.
func DefaultEnv() Env {
	return Env{
		Implementation: "cp",
		PythonVersion:  "3.12",
		Platforms:      hostPlatforms(runtime.GOOS, runtime.GOARCH),
	}
}

// Tags returns the priority-ordered supported tag sequence for the
// environment, mirroring the order packaging.tags.sys_tags() produces:
// interpreter-specific tags, the abi3 range, abi-less interpreter tags,
// then the generic pyXY compatibility series ending in py3-none-any.
func (e Env) Tags() []pypi.PEP425Tag {
	major, minor := splitVersion(e.PythonVersion)
	interp := e.Implementation + major + strconv.Itoa(minor)

	var tags []pypi.PEP425Tag

	for _, p := range e.Platforms {
		tags = append(tags, pypi.PEP425Tag{Python: interp, ABI: interp, Platform: p})
	}

	if e.Implementation == "cp" {
		for m := minor; m >= 2; m-- {
			for _, p := range e.Platforms {
				tags = append(tags, pypi.PEP425Tag{Python: "cp" + major + strconv.Itoa(m), ABI: "abi3", Platform: p})
			}
		}
	}

	for _, p := range e.Platforms {
		tags = append(tags, pypi.PEP425Tag{Python: interp, ABI: "none", Platform: p})
	}

	// Generic interpreter series: pyXY, pyX, then pyX(Y-1) down to pyX0.
	generic := []string{"py" + major + strconv.Itoa(minor), "py" + major}
	for m := minor - 1; m >= 0; m-- {
		generic = append(generic, "py"+major+strconv.Itoa(m))
	}

	for _, g := range generic {
		for _, p := range e.Platforms {
			tags = append(tags, pypi.PEP425Tag{Python: g, ABI: "none", Platform: p})
		}
	}

	tags = append(tags, pypi.PEP425Tag{Python: interp, ABI: "none", Platform: "any"})
	for _, g := range generic {
		tags = append(tags, pypi.PEP425Tag{Python: g, ABI: "none", Platform: "any"})
	}

	return tags
}

func splitVersion(version string) (string, int) {
	major, rest, ok := strings.Cut(version, ".")
	if !ok {
		return version, 0
	}
	minor, err := strconv.Atoi(rest)
	if err != nil {
		return major, 0
	}
	return major, minor
}

// hostPlatforms maps the Go runtime platform to wheel platform tags,
// newest manylinux/macOS baselines first.
func hostPlatforms(goos, goarch string) []string {
	switch goos {
	case "linux":
		arch := map[string]string{"amd64": "x86_64", "arm64": "aarch64", "386": "i686"}[goarch]
		if arch == "" {
			arch = goarch
		}
		tags := []string{
			"manylinux_2_28_" + arch,
			"manylinux_2_17_" + arch,
			"manylinux2014_" + arch,
		}
		if arch == "x86_64" || arch == "i686" {
			tags = append(tags,
				"manylinux_2_12_"+arch, "manylinux2010_"+arch,
				"manylinux_2_5_"+arch, "manylinux1_"+arch)
		}
		return append(tags, "linux_"+arch)
	case "darwin":
		if goarch == "arm64" {
			return []string{
				"macosx_14_0_arm64", "macosx_13_0_arm64", "macosx_12_0_arm64",
				"macosx_11_0_arm64", "macosx_10_9_universal2",
			}
		}
		return []string{
			"macosx_14_0_x86_64", "macosx_13_0_x86_64", "macosx_12_0_x86_64",
			"macosx_11_0_x86_64", "macosx_10_9_x86_64", "macosx_10_9_universal2",
		}
	case "windows":
		switch goarch {
		case "amd64":
			return []string{"win_amd64"}
		case "arm64":
			return []string{"win_arm64"}
		default:
			return []string{"win32"}
		}
	default:
		return []string{goos + "_" + goarch}
	}
}

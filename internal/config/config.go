// Package config loads the asof configuration file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/asof-dev/asof/internal/compat"
	"github.com/asof-dev/asof/internal/namemap"
)

// Config is the merged configuration. Zero fields fall back to defaults at
// the accessor level, so a partial file only overrides what it names.
type Config struct {
	PyPIBaseURL    string       `toml:"pypi_base_url"`
	CondaChannels  []string     `toml:"conda_channels"`
	CondaCommand   string       `toml:"conda_command"`
	CachePath      string       `toml:"cache_path"`
	CacheLifetime  string       `toml:"cache_lifetime"` // time.ParseDuration format
	NameMappingURL string       `toml:"name_mapping_url"`
	Python         PythonConfig `toml:"python"`
}

// PythonConfig overrides the target environment the compatibility filter
// checks wheels against.
type PythonConfig struct {
	Version        string   `toml:"version"`
	Implementation string   `toml:"implementation"`
	Platforms      []string `toml:"platforms"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		PyPIBaseURL:    "https://pypi.org",
		CondaChannels:  []string{"defaults", "conda-forge"},
		CacheLifetime:  "24h",
		NameMappingURL: namemap.DefaultMappingURL,
	}
}

// Load reads the config file at path, or searches ./asof.toml and
// $XDG_CONFIG_HOME/asof/config.toml when path is empty. A missing file is
// not an error; defaults apply.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	candidates := []string{path}
	if !explicit {
		candidates = []string{"asof.toml"}
		if dir, err := os.UserConfigDir(); err == nil {
			candidates = append(candidates, filepath.Join(dir, "asof", "config.toml"))
		}
	}

	for _, candidate := range candidates {
		data, err := os.ReadFile(candidate)
		if errors.Is(err, fs.ErrNotExist) {
			if explicit {
				return Config{}, fmt.Errorf("config file %s: %w", candidate, err)
			}
			continue
		}
		if err != nil {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing %s: %w", candidate, err)
		}
		break
	}

	if _, err := time.ParseDuration(cfg.CacheLifetime); err != nil {
		return Config{}, fmt.Errorf("invalid cache_lifetime %q: %w", cfg.CacheLifetime, err)
	}
	return cfg, nil
}

// Lifetime returns the parsed cache lifetime.
func (c Config) Lifetime() time.Duration {
	d, err := time.ParseDuration(c.CacheLifetime)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}

// DefaultCachePath is used when cache_path is not configured.
func (c Config) DefaultCachePath() (string, error) {
	if c.CachePath != "" {
		return c.CachePath, nil
	}
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("locating cache dir: %w", err)
	}
	dir = filepath.Join(dir, "asof")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return filepath.Join(dir, "cache.db"), nil
}

// Env returns the target environment for wheel compatibility, host defaults
// overridden by the [python] section.
func (c Config) Env() compat.Env {
	env := compat.DefaultEnv()
	if c.Python.Version != "" {
		env.PythonVersion = c.Python.Version
	}
	if c.Python.Implementation != "" {
		env.Implementation = c.Python.Implementation
	}
	if len(c.Python.Platforms) > 0 {
		env.Platforms = c.Python.Platforms
	}
	return env
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "asof.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.PyPIBaseURL != "https://pypi.org" {
		t.Errorf("unexpected default index: %s", cfg.PyPIBaseURL)
	}
	if len(cfg.CondaChannels) != 2 || cfg.CondaChannels[0] != "defaults" {
		t.Errorf("unexpected default channels: %v", cfg.CondaChannels)
	}
	if cfg.Lifetime() != 24*time.Hour {
		t.Errorf("unexpected default lifetime: %v", cfg.Lifetime())
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `
pypi_base_url = "https://pypi.example.com"
cache_lifetime = "1h"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.PyPIBaseURL != "https://pypi.example.com" {
		t.Errorf("override ignored: %s", cfg.PyPIBaseURL)
	}
	if cfg.Lifetime() != time.Hour {
		t.Errorf("lifetime override ignored: %v", cfg.Lifetime())
	}
	// Unnamed fields keep their defaults.
	if len(cfg.CondaChannels) != 2 {
		t.Errorf("channels should default, got %v", cfg.CondaChannels)
	}
	if cfg.NameMappingURL == "" {
		t.Error("name mapping URL should default")
	}
}

func TestLoadPythonSection(t *testing.T) {
	path := writeConfig(t, `
[python]
version = "3.10"
implementation = "pp"
platforms = ["manylinux_2_17_x86_64"]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	env := cfg.Env()
	if env.PythonVersion != "3.10" || env.Implementation != "pp" {
		t.Errorf("unexpected env: %+v", env)
	}
	if len(env.Platforms) != 1 || env.Platforms[0] != "manylinux_2_17_x86_64" {
		t.Errorf("unexpected platforms: %v", env.Platforms)
	}
}

func TestLoadExplicitMissingPath(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("an explicitly named missing config file must be an error")
	}
}

func TestLoadInvalidLifetime(t *testing.T) {
	path := writeConfig(t, `cache_lifetime = "fortnight"`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for an unparseable cache_lifetime")
	}
}

func TestLoadInvalidTOML(t *testing.T) {
	path := writeConfig(t, `pypi_base_url = [unclosed`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestDefaultCachePathHonorsOverride(t *testing.T) {
	cfg := Config{CachePath: "/tmp/custom/cache.db"}
	path, err := cfg.DefaultCachePath()
	if err != nil {
		t.Fatalf("DefaultCachePath failed: %v", err)
	}
	if path != "/tmp/custom/cache.db" {
		t.Errorf("configured cache_path ignored: %s", path)
	}
}

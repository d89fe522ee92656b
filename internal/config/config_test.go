package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "homedash.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Address != ":8090" {
		t.Fatalf("server address = %q, want :8090", cfg.Server.Address)
	}
	if cfg.Storage.Driver != "memory" {
		t.Fatalf("storage driver = %q, want memory", cfg.Storage.Driver)
	}
	if cfg.Cache.Driver != "memory" {
		t.Fatalf("cache driver = %q, want memory", cfg.Cache.Driver)
	}
	if cfg.Calendar.CacheTTLSeconds != 300 {
		t.Fatalf("cache ttl = %d, want 300", cfg.Calendar.CacheTTLSeconds)
	}
	if cfg.Calendar.FetchTimeoutSeconds != 15 {
		t.Fatalf("fetch timeout = %d, want 15", cfg.Calendar.FetchTimeoutSeconds)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Fatalf("logging defaults = %s/%s, want info/json", cfg.Logging.Level, cfg.Logging.Format)
	}
}

func TestLoadKeepsExplicitValues(t *testing.T) {
	path := writeConfig(t, `{
		"server": {"address": ":9000"},
		"storage": {"driver": "mysql", "dsn": "user:pass@tcp(db:3306)/homedash"},
		"calendar": {"cache_ttl_seconds": 60}
	}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Address != ":9000" {
		t.Fatalf("server address = %q, want :9000", cfg.Server.Address)
	}
	if cfg.Storage.Driver != "mysql" {
		t.Fatalf("storage driver = %q, want mysql", cfg.Storage.Driver)
	}
	if cfg.Calendar.CacheTTLSeconds != 60 {
		t.Fatalf("cache ttl = %d, want 60", cfg.Calendar.CacheTTLSeconds)
	}
}

func TestLoadResolvesSeedPath(t *testing.T) {
	path := writeConfig(t, `{"seed": {"path": "seed.yaml"}}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := filepath.Join(filepath.Dir(path), "seed.yaml")
	if cfg.Seed.Path != want {
		t.Fatalf("seed path = %q, want %q", cfg.Seed.Path, want)
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := writeConfig(t, `{not json`)
	if _, err := Load(path); err == nil {
		t.Fatal("Load should reject malformed JSON")
	}
}

func TestLoadMissingPath(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatal("Load should reject an empty path")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("Load should surface a missing file")
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Fatalf("unexpected port: %d", cfg.Server.Port)
	}
	if cfg.Scraper.Interval != 10*time.Minute {
		t.Fatalf("unexpected interval: %v", cfg.Scraper.Interval)
	}
	if cfg.Scraper.SnapshotStore != "memory" {
		t.Fatalf("unexpected snapshot store: %q", cfg.Scraper.SnapshotStore)
	}
	if cfg.Redis.CacheTTL != 5*time.Minute {
		t.Fatalf("unexpected cache ttl: %v", cfg.Redis.CacheTTL)
	}
}

func TestLoadYAMLAndEnvOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
server:
  port: 9090
scraper:
  interval: 3m
  snapshot_store: file
auth:
  admin_token: from-yaml
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	t.Setenv("ADMIN_TOKEN", "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Fatalf("unexpected port: %d", cfg.Server.Port)
	}
	if cfg.Scraper.Interval != 3*time.Minute {
		t.Fatalf("unexpected interval: %v", cfg.Scraper.Interval)
	}
	if cfg.Scraper.SnapshotStore != "file" {
		t.Fatalf("unexpected snapshot store: %q", cfg.Scraper.SnapshotStore)
	}
	// Environment overrides the file.
	if cfg.Auth.AdminToken != "from-env" {
		t.Fatalf("unexpected admin token: %q", cfg.Auth.AdminToken)
	}
}

func TestServerAddr(t *testing.T) {
	cfg := ServerConfig{Host: "0.0.0.0", Port: 8081}
	if cfg.Addr() != "0.0.0.0:8081" {
		t.Fatalf("unexpected addr: %s", cfg.Addr())
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAppliesDefaultsForUnsetFields(t *testing.T) {
	// Only the fields validation requires are set; the rest come from
	// the defaults.
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := `
hosts:
  - host: node-a
    port: 9100
proxy_host: proxy.local
proxy_port: 9000
`
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.StorageType != StorageSSBD {
		t.Fatalf("expected default storage_type ssbd, got %s", cfg.StorageType)
	}
	if cfg.BlockSize != 4096 {
		t.Fatalf("expected default block_size 4096, got %d", cfg.BlockSize)
	}
	if cfg.CachePolicy != "LRU" {
		t.Fatalf("expected default cache_policy LRU, got %s", cfg.CachePolicy)
	}
}

func TestLoadFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := `
storage_type: ssbd
hosts:
  - host: node-a
    port: 9100
  - host: node-b
    port: 9100
replication_size: 2
block_size: 4096
proxy_host: proxy.local
proxy_port: 9000
`
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Hosts) != 2 || cfg.Hosts[0].Host != "node-a" {
		t.Fatalf("unexpected hosts: %+v", cfg.Hosts)
	}
	if cfg.ReplicationSize != 2 {
		t.Fatalf("expected replication_size 2, got %d", cfg.ReplicationSize)
	}
	addrs := cfg.HostAddrs()
	if addrs[0] != "node-a:9100" {
		t.Fatalf("unexpected host addr: %s", addrs[0])
	}
}

func TestLoadAcceptsHumanReadableSizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := `
hosts:
  - host: node-a
    port: 9100
proxy_host: proxy.local
proxy_port: 9000
block_size: 4Ki
cache_size: 128Mi
`
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.BlockSize.Uint64() != 4*1024 {
		t.Fatalf("expected block_size 4Ki, got %d", cfg.BlockSize.Uint64())
	}
	if cfg.CacheSize.Uint64() != 128*1024*1024 {
		t.Fatalf("expected cache_size 128Mi, got %d", cfg.CacheSize.Uint64())
	}
}

func TestLoadRejectsMissingRequiredFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	// No hosts, no proxy_host/proxy_port: must fail validation.
	if err := os.WriteFile(path, []byte("block_size: 4096\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error for missing required fields")
	}
}

func TestIdleTimeoutDefaultsWhenUnset(t *testing.T) {
	var cfg Config
	if got := cfg.IdleTimeout(); got.Milliseconds() != 30000 {
		t.Fatalf("expected 30s default idle timeout, got %v", got)
	}
}

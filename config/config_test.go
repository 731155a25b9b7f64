package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/juju/errors"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, "client.yaml", `
endpoint: http://127.0.0.1:8080/rpc
transport: websocket
max_request_body_size: 512 KiB
timeout: 2s
retry:
  max_retries: 3
  base_delay: 50ms
rate_limit:
  rps: 20
  burst: 5
pool_size: 8
log_level: debug
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Endpoint != "http://127.0.0.1:8080/rpc" || cfg.Transport != TransportWebSocket {
		t.Errorf("endpoint/transport = %q/%q", cfg.Endpoint, cfg.Transport)
	}
	if cfg.MaxRequestBodySize != 512*1024 {
		t.Errorf("max body = %d", cfg.MaxRequestBodySize)
	}
	if cfg.Timeout != 2*time.Second || cfg.Retry.MaxRetries != 3 || cfg.Retry.BaseDelay != 50*time.Millisecond {
		t.Errorf("timeout/retry = %v/%+v", cfg.Timeout, cfg.Retry)
	}
	if cfg.RateLimit.RPS != 20 || cfg.RateLimit.Burst != 5 || cfg.PoolSize != 8 {
		t.Errorf("rate limit/pool = %+v/%d", cfg.RateLimit, cfg.PoolSize)
	}
	// Unset keys keep their defaults.
	if cfg.Balancer != "round_robin" {
		t.Errorf("balancer = %q", cfg.Balancer)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeFile(t, "client.yaml", "endpoint: http://file:1/rpc\n")
	t.Setenv("MINIJSONRPC_ENDPOINT", "http://env:2/rpc")
	t.Setenv("MINIJSONRPC_ETCD_ENDPOINTS", "10.0.0.1:2379, 10.0.0.2:2379")
	t.Setenv("MINIJSONRPC_SERVICE", "arith")
	t.Setenv("MINIJSONRPC_MAX_REQUEST_BODY_SIZE", "1 MB")
	t.Setenv("MINIJSONRPC_TIMEOUT", "750ms")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Endpoint != "http://env:2/rpc" {
		t.Errorf("endpoint = %q", cfg.Endpoint)
	}
	if len(cfg.Etcd.Endpoints) != 2 || cfg.Etcd.Endpoints[1] != "10.0.0.2:2379" {
		t.Errorf("etcd endpoints = %q", cfg.Etcd.Endpoints)
	}
	if !cfg.Discovery() {
		t.Error("expected discovery to be enabled")
	}
	if cfg.MaxRequestBodySize != 1000*1000 {
		t.Errorf("max body = %d", cfg.MaxRequestBodySize)
	}
	if cfg.Timeout != 750*time.Millisecond {
		t.Errorf("timeout = %v", cfg.Timeout)
	}
}

func TestLoadEnvFiles(t *testing.T) {
	path := writeFile(t, ".env", "MINIJSONRPC_TEST_DOTENV=from-file\n")
	t.Setenv("MINIJSONRPC_TEST_DOTENV", "")
	os.Unsetenv("MINIJSONRPC_TEST_DOTENV")

	if err := LoadEnvFiles(path, filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("LoadEnvFiles: %v", err)
	}
	if got := os.Getenv("MINIJSONRPC_TEST_DOTENV"); got != "from-file" {
		t.Errorf("env = %q", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults with endpoint", func(c *Config) {}, true},
		{"unknown transport", func(c *Config) { c.Transport = "carrier-pigeon" }, false},
		{"unknown balancer", func(c *Config) { c.Balancer = "random" }, false},
		{"no endpoint", func(c *Config) { c.Endpoint = "" }, false},
		{"discovery without endpoint", func(c *Config) {
			c.Endpoint = ""
			c.Service = "arith"
			c.Etcd.Endpoints = []string{"127.0.0.1:2379"}
		}, true},
		{"zero body size", func(c *Config) { c.MaxRequestBodySize = 0 }, false},
		{"rate without burst", func(c *Config) { c.RateLimit.RPS = 5 }, false},
		{"zero pool", func(c *Config) { c.PoolSize = 0 }, false},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Endpoint = "http://127.0.0.1:8080"
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, errors.NotValid) {
				t.Errorf("expected NotValid, got %v", err)
			}
		})
	}
}

func TestParseByteSize(t *testing.T) {
	tests := []struct {
		in   string
		want ByteSize
	}{
		{"1024", 1024},
		{"10 MiB", 10 << 20},
		{"2kB", 2000},
	}
	for _, tt := range tests {
		got, err := ParseByteSize(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseByteSize(%q) = %d, %v; want %d", tt.in, got, err, tt.want)
		}
	}
	if _, err := ParseByteSize("lots"); err == nil {
		t.Error("expected error for garbage size")
	}
}

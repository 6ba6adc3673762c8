package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
fetch:
  download_timeout_seconds: 45
  max_file_size_bytes: 1048576
  allowed_domains: ["img.example.com", "cdn.example.com"]
  validate_urls: true
  max_media_group_size: 5
  compression_quality: 70
  max_image_dimension: 2048
  output_dir: /tmp/media
retry:
  attempts: 5
  delay_seconds: 0.5
  max_delay_seconds: 10
pool:
  max_connections: 50
  max_per_host: 10
cache:
  enabled: true
  dir: /tmp/cache
  ttl_seconds: 600
fallback:
  show_error_placeholders: false
  placeholder_paths: ["/etc/media/placeholder.png"]
  mirrors:
    cdn.example.com: cdn-backup.example.com
monitor:
  interval_seconds: 15
pubsub:
  project_id: proj
  topic_name: alerts
archive:
  gcs_bucket: bucket
  prefix: media
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Fetch.DownloadTimeoutSeconds != 45 || cfg.Fetch.MaxFileSizeBytes != 1048576 {
		t.Fatalf("expected fetch overrides to apply: %+v", cfg.Fetch)
	}
	if len(cfg.Fetch.AllowedDomains) != 2 || cfg.Fetch.AllowedDomains[0] != "img.example.com" {
		t.Fatalf("expected allowed domains to be loaded: %+v", cfg.Fetch.AllowedDomains)
	}
	if cfg.Retry.Attempts != 5 || cfg.Retry.DelaySeconds != 0.5 {
		t.Fatalf("expected retry overrides to apply: %+v", cfg.Retry)
	}
	if mirror := cfg.Fallback.Mirrors["cdn.example.com"]; mirror != "cdn-backup.example.com" {
		t.Fatalf("expected mirror mapping to be loaded, got %q", mirror)
	}
	if cfg.Fallback.ShowErrorPlaceholders {
		t.Fatalf("expected placeholder toggle to be off")
	}
	if got := cfg.DownloadTimeout(); got != 45*time.Second {
		t.Fatalf("expected download timeout 45s, got %v", got)
	}
	if got := cfg.RetryBaseDelay(); got != 500*time.Millisecond {
		t.Fatalf("expected retry base delay 500ms, got %v", got)
	}
	if got := cfg.CacheTTL(); got != 10*time.Minute {
		t.Fatalf("expected cache TTL 10m, got %v", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Pool.MaxConnections != 100 || cfg.Pool.MaxPerHost != 30 {
		t.Fatalf("expected pool defaults 100/30, got %+v", cfg.Pool)
	}
	if cfg.Pool.DNSCacheTTLSeconds != 300 {
		t.Fatalf("expected dns cache ttl default 300, got %d", cfg.Pool.DNSCacheTTLSeconds)
	}
	if cfg.Retry.Attempts != 3 || !cfg.Retry.Jitter {
		t.Fatalf("expected retry defaults, got %+v", cfg.Retry)
	}
	if !cfg.Cache.Enabled || cfg.Cache.TTLSeconds != 3600 {
		t.Fatalf("expected cache defaults, got %+v", cfg.Cache)
	}
	if !cfg.Fallback.ShowErrorPlaceholders {
		t.Fatalf("expected placeholders enabled by default")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server: ServerConfig{Port: 8080},
		Fetch: FetchConfig{
			DownloadTimeoutSeconds: 30,
			MaxFileSizeBytes:       1 << 20,
			MaxMediaGroupSize:      10,
			CompressionQuality:     85,
		},
		Retry:   RetryConfig{Attempts: 3, DelaySeconds: 1, ExponentialBase: 2},
		Pool:    PoolConfig{MaxConnections: 100, MaxPerHost: 30},
		Cache:   CacheConfig{Enabled: true, Dir: "/tmp/cache", TTLSeconds: 600},
		Monitor: MonitorConfig{IntervalSeconds: 30},
	}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "invalid port",
			cfg: func() Config {
				c := base
				c.Server.Port = 0
				return c
			}(),
			want: "server.port",
		},
		{
			name: "invalid download timeout",
			cfg: func() Config {
				c := base
				c.Fetch.DownloadTimeoutSeconds = 0
				return c
			}(),
			want: "fetch.download_timeout_seconds",
		},
		{
			name: "invalid compression quality",
			cfg: func() Config {
				c := base
				c.Fetch.CompressionQuality = 101
				return c
			}(),
			want: "fetch.compression_quality",
		},
		{
			name: "invalid retry attempts",
			cfg: func() Config {
				c := base
				c.Retry.Attempts = 0
				return c
			}(),
			want: "retry.attempts",
		},
		{
			name: "per host above pool size",
			cfg: func() Config {
				c := base
				c.Pool.MaxPerHost = 200
				return c
			}(),
			want: "pool.max_per_host",
		},
		{
			name: "cache enabled without dir",
			cfg: func() Config {
				c := base
				c.Cache.Dir = ""
				return c
			}(),
			want: "cache.dir",
		},
		{
			name: "pubsub project without topic",
			cfg: func() Config {
				c := base
				c.PubSub.ProjectID = "proj"
				return c
			}(),
			want: "pubsub.topic_name",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

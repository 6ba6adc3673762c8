// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Retry    RetryConfig    `mapstructure:"retry"`
	Pool     PoolConfig     `mapstructure:"pool"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Fallback FallbackConfig `mapstructure:"fallback"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// FetchConfig governs download and validation behavior.
type FetchConfig struct {
	DownloadTimeoutSeconds int      `mapstructure:"download_timeout_seconds"`
	MaxFileSizeBytes       int64    `mapstructure:"max_file_size_bytes"`
	AllowedDomains         []string `mapstructure:"allowed_domains"`
	AllowedContentTypes    []string `mapstructure:"allowed_content_types"`
	ValidateURLs           bool     `mapstructure:"validate_urls"`
	MaxMediaGroupSize      int      `mapstructure:"max_media_group_size"`
	CompressionQuality     int      `mapstructure:"compression_quality"`
	MaxImageDimension      int      `mapstructure:"max_image_dimension"`
	OutputDir              string   `mapstructure:"output_dir"`
}

// RetryConfig configures the backoff schedule for transient failures.
type RetryConfig struct {
	Attempts        int     `mapstructure:"attempts"`
	DelaySeconds    float64 `mapstructure:"delay_seconds"`
	MaxDelaySeconds float64 `mapstructure:"max_delay_seconds"`
	ExponentialBase float64 `mapstructure:"exponential_base"`
	Jitter          bool    `mapstructure:"jitter"`
}

// PoolConfig sizes the shared HTTP connection pool.
type PoolConfig struct {
	MaxConnections     int `mapstructure:"max_connections"`
	MaxPerHost         int `mapstructure:"max_per_host"`
	KeepAliveSeconds   int `mapstructure:"keep_alive_seconds"`
	IdleTimeoutSeconds int `mapstructure:"idle_timeout_seconds"`
	DNSCacheTTLSeconds int `mapstructure:"dns_cache_ttl_seconds"`
}

// CacheConfig controls the on-disk content cache.
type CacheConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Dir        string `mapstructure:"dir"`
	TTLSeconds int    `mapstructure:"ttl_seconds"`
}

// FallbackConfig tunes the recovery chain.
type FallbackConfig struct {
	ShowErrorPlaceholders bool              `mapstructure:"show_error_placeholders"`
	PlaceholderPaths      []string          `mapstructure:"placeholder_paths"`
	Mirrors               map[string]string `mapstructure:"mirrors"`
	TextTemplate          string            `mapstructure:"text_template"`
}

// MonitorConfig controls health evaluation cadence.
type MonitorConfig struct {
	IntervalSeconds int `mapstructure:"interval_seconds"`
}

// PubSubConfig holds metadata for alert publishing. Empty project disables it.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ArchiveConfig controls blob archival of fetched artifacts. Empty bucket
// disables it.
type ArchiveConfig struct {
	GCSBucket   string `mapstructure:"gcs_bucket"`
	Prefix      string `mapstructure:"prefix"`
	ContentType string `mapstructure:"content_type"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MEDIAFETCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("fetch.download_timeout_seconds", 30)
	v.SetDefault("fetch.max_file_size_bytes", 50*1024*1024)
	v.SetDefault("fetch.allowed_domains", []string{})
	v.SetDefault("fetch.allowed_content_types", []string{
		"image/png", "image/jpeg", "image/gif", "image/webp",
		"video/mp4", "application/pdf", "application/octet-stream",
	})
	v.SetDefault("fetch.validate_urls", true)
	v.SetDefault("fetch.max_media_group_size", 10)
	v.SetDefault("fetch.compression_quality", 85)
	v.SetDefault("fetch.max_image_dimension", 4096)
	v.SetDefault("fetch.output_dir", "data/media")
	v.SetDefault("retry.attempts", 3)
	v.SetDefault("retry.delay_seconds", 1.0)
	v.SetDefault("retry.max_delay_seconds", 30.0)
	v.SetDefault("retry.exponential_base", 2.0)
	v.SetDefault("retry.jitter", true)
	v.SetDefault("pool.max_connections", 100)
	v.SetDefault("pool.max_per_host", 30)
	v.SetDefault("pool.keep_alive_seconds", 30)
	v.SetDefault("pool.idle_timeout_seconds", 30)
	v.SetDefault("pool.dns_cache_ttl_seconds", 300)
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.dir", "data/cache")
	v.SetDefault("cache.ttl_seconds", 3600)
	v.SetDefault("fallback.show_error_placeholders", true)
	v.SetDefault("fallback.text_template", "")
	v.SetDefault("monitor.interval_seconds", 30)
	v.SetDefault("archive.prefix", "media")
	v.SetDefault("archive.content_type", "application/octet-stream")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Fetch.DownloadTimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.download_timeout_seconds must be > 0")
	}
	if c.Fetch.MaxFileSizeBytes <= 0 {
		return fmt.Errorf("fetch.max_file_size_bytes must be > 0")
	}
	if c.Fetch.MaxMediaGroupSize <= 0 {
		return fmt.Errorf("fetch.max_media_group_size must be > 0")
	}
	if c.Fetch.CompressionQuality < 1 || c.Fetch.CompressionQuality > 100 {
		return fmt.Errorf("fetch.compression_quality must be in [1,100]")
	}
	if c.Retry.Attempts <= 0 {
		return fmt.Errorf("retry.attempts must be > 0")
	}
	if c.Retry.DelaySeconds <= 0 {
		return fmt.Errorf("retry.delay_seconds must be > 0")
	}
	if c.Retry.ExponentialBase < 1 {
		return fmt.Errorf("retry.exponential_base must be >= 1")
	}
	if c.Pool.MaxConnections <= 0 {
		return fmt.Errorf("pool.max_connections must be > 0")
	}
	if c.Pool.MaxPerHost <= 0 || c.Pool.MaxPerHost > c.Pool.MaxConnections {
		return fmt.Errorf("pool.max_per_host must be in [1, pool.max_connections]")
	}
	if c.Cache.Enabled {
		if c.Cache.Dir == "" {
			return fmt.Errorf("cache.dir must be set when cache is enabled")
		}
		if c.Cache.TTLSeconds <= 0 {
			return fmt.Errorf("cache.ttl_seconds must be > 0 when cache is enabled")
		}
	}
	if c.Monitor.IntervalSeconds <= 0 {
		return fmt.Errorf("monitor.interval_seconds must be > 0")
	}
	if c.PubSub.ProjectID != "" && c.PubSub.TopicName == "" {
		return fmt.Errorf("pubsub.topic_name must be set when pubsub.project_id is set")
	}
	return nil
}

// DownloadTimeout returns the per-download deadline as a duration.
func (c Config) DownloadTimeout() time.Duration {
	return time.Duration(c.Fetch.DownloadTimeoutSeconds) * time.Second
}

// RetryBaseDelay returns the first backoff step as a duration.
func (c Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.Retry.DelaySeconds * float64(time.Second))
}

// RetryMaxDelay returns the backoff ceiling as a duration.
func (c Config) RetryMaxDelay() time.Duration {
	return time.Duration(c.Retry.MaxDelaySeconds * float64(time.Second))
}

// CacheTTL returns the cache freshness window as a duration.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

// MonitorInterval returns the health evaluation cadence as a duration.
func (c Config) MonitorInterval() time.Duration {
	return time.Duration(c.Monitor.IntervalSeconds) * time.Second
}

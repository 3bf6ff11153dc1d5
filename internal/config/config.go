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
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Scrape     ScrapeConfig     `mapstructure:"scrape"`
	DB         DBConfig         `mapstructure:"db"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// ClassifierConfig governs the classification pipeline and its remote model.
type ClassifierConfig struct {
	APIKey           string `mapstructure:"api_key"`
	BaseURL          string `mapstructure:"base_url"`
	Model            string `mapstructure:"model"`
	DisableCache     bool   `mapstructure:"disable_cache"`
	DisableBatch     bool   `mapstructure:"disable_batch"`
	CacheTTLSeconds  int    `mapstructure:"cache_ttl_seconds"`
	CacheCapacity    int    `mapstructure:"cache_capacity"`
	BatchSize        int    `mapstructure:"batch_size"`
	MaxConcurrency   int    `mapstructure:"max_concurrency"`
	MaxRetries       int    `mapstructure:"max_retries"`
	ConnectTimeoutMs int    `mapstructure:"connect_timeout_ms"`
	RequestTimeoutMs int    `mapstructure:"request_timeout_ms"`
}

// CacheTTL converts the configured TTL into a duration.
func (c ClassifierConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// ScrapeConfig controls the source scrapers.
type ScrapeConfig struct {
	UserAgent           string `mapstructure:"user_agent"`
	TimeoutSeconds      int    `mapstructure:"timeout_seconds"`
	HackerNewsMinScore  int    `mapstructure:"hackernews_min_score"`
	ShowHNMinScore      int    `mapstructure:"showhn_min_score"`
	ProductHuntClientID string `mapstructure:"producthunt_client_id"`
	ProductHuntSecret   string `mapstructure:"producthunt_secret"`
}

// Timeout converts the configured scrape timeout into a duration.
func (c ScrapeConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// ArchiveConfig sets where raw scrape payloads are persisted.
type ArchiveConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TOOLSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv does not surface keys to Unmarshal unless they are also
	// known via a default or a config file. Credentials are usually env-only,
	// so bind them explicitly.
	for _, key := range []string{
		"auth.enabled",
		"auth.api_key",
		"classifier.api_key",
		"scrape.producthunt_client_id",
		"scrape.producthunt_secret",
		"db.dsn",
		"archive.gcs_bucket",
		"archive.local_dir",
		"pubsub.project_id",
		"pubsub.topic_name",
	} {
		if err := v.BindEnv(key); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

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
	v.SetDefault("classifier.base_url", "https://api.openai.com/v1")
	v.SetDefault("classifier.model", "gpt-4o-mini")
	v.SetDefault("classifier.disable_cache", false)
	v.SetDefault("classifier.disable_batch", false)
	v.SetDefault("classifier.cache_ttl_seconds", 3600)
	v.SetDefault("classifier.cache_capacity", 1024)
	v.SetDefault("classifier.batch_size", 8)
	v.SetDefault("classifier.max_concurrency", 4)
	v.SetDefault("classifier.max_retries", 3)
	v.SetDefault("classifier.connect_timeout_ms", 5000)
	v.SetDefault("classifier.request_timeout_ms", 30000)
	v.SetDefault("scrape.user_agent", "toolscout-bot/0.1")
	v.SetDefault("scrape.timeout_seconds", 20)
	v.SetDefault("scrape.hackernews_min_score", 10)
	v.SetDefault("scrape.showhn_min_score", 5)
	v.SetDefault("db.max_open_conns", 8)
	v.SetDefault("archive.prefix", "scrapes")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Classifier.BatchSize <= 0 {
		return fmt.Errorf("classifier.batch_size must be > 0")
	}
	if c.Classifier.MaxConcurrency <= 0 {
		return fmt.Errorf("classifier.max_concurrency must be > 0")
	}
	if c.Classifier.MaxRetries <= 0 {
		return fmt.Errorf("classifier.max_retries must be > 0")
	}
	if c.Classifier.ConnectTimeoutMs >= c.Classifier.RequestTimeoutMs {
		return fmt.Errorf("classifier.connect_timeout_ms must be shorter than classifier.request_timeout_ms")
	}
	if c.Scrape.TimeoutSeconds <= 0 {
		return fmt.Errorf("scrape.timeout_seconds must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

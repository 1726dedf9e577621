// Package config loads and validates validator configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// Storage backends accepted by storage.backend.
const (
	BackendMemory   = "memory"
	BackendLocal    = "local"
	BackendGCS      = "gcs"
	BackendPostgres = "postgres"
	BackendPlatform = "platform"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Platform   PlatformConfig   `mapstructure:"platform"`
	Validation ValidationConfig `mapstructure:"validation"`
	Storage    StorageConfig    `mapstructure:"storage"`
	DB         DBConfig         `mapstructure:"db"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Workers    WorkersConfig    `mapstructure:"workers"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// PlatformConfig points the client at the scraping platform API.
type PlatformConfig struct {
	APIBaseURL      string  `mapstructure:"api_base_url"`
	LegacyBaseURL   string  `mapstructure:"legacy_base_url"`
	Token           string  `mapstructure:"token"`
	TimeoutSeconds  int     `mapstructure:"timeout_seconds"`
	RatePerSecond   float64 `mapstructure:"rate_per_second"`
	Burst           int     `mapstructure:"burst"`
	KeyValueStoreID string  `mapstructure:"key_value_store_id"`
	MailActorID     string  `mapstructure:"mail_actor_id"`
}

// ValidationConfig tunes the sampling and notification behavior.
type ValidationConfig struct {
	PageLimit int `mapstructure:"page_limit"`
	// DryRun logs notification emails instead of sending them.
	DryRun bool `mapstructure:"dry_run"`
}

// StorageConfig selects the key-value store backend.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN                    string `mapstructure:"dsn"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeSeconds int    `mapstructure:"max_conn_lifetime_seconds"`
	RecordsTable           string `mapstructure:"records_table"`
	InvocationsTable       string `mapstructure:"invocations_table"`
}

// PubSubConfig holds metadata for completion events. An empty project keeps events in memory.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// WorkersConfig sizes the serve-mode worker pool.
type WorkersConfig struct {
	Count      int `mapstructure:"count"`
	QueueDepth int `mapstructure:"queue_depth"`
	// TimeoutSeconds bounds one invocation; zero means no limit.
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// TelemetryConfig toggles OpenTelemetry tracing.
type TelemetryConfig struct {
	TracingEnabled bool   `mapstructure:"tracing_enabled"`
	ServiceName    string `mapstructure:"service_name"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("VALIDATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindPlatformEnv(v); err != nil {
		return Config{}, err
	}

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
	v.SetDefault("server.request_timeout_seconds", 30)
	v.SetDefault("platform.api_base_url", "https://api.apify.com")
	v.SetDefault("platform.legacy_base_url", "https://api.apifier.com")
	v.SetDefault("platform.timeout_seconds", 30)
	v.SetDefault("platform.rate_per_second", 0)
	v.SetDefault("platform.burst", 1)
	v.SetDefault("platform.mail_actor_id", "apify/send-mail")
	v.SetDefault("validation.page_limit", 1000)
	v.SetDefault("validation.dry_run", false)
	v.SetDefault("storage.backend", BackendPlatform)
	v.SetDefault("db.records_table", "validator_records")
	v.SetDefault("db.invocations_table", "validator_invocations")
	v.SetDefault("pubsub.topic_name", "validation-events")
	v.SetDefault("workers.count", 4)
	v.SetDefault("workers.queue_depth", 64)
	v.SetDefault("workers.timeout_seconds", 600)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("telemetry.tracing_enabled", false)
	v.SetDefault("telemetry.service_name", "crawl-validator")
}

// bindPlatformEnv lets the platform's own environment variables configure the client.
func bindPlatformEnv(v *viper.Viper) error {
	if err := v.BindEnv("platform.token", "VALIDATOR_PLATFORM_TOKEN", "APIFY_TOKEN"); err != nil {
		return fmt.Errorf("bind platform.token: %w", err)
	}
	if err := v.BindEnv(
		"platform.key_value_store_id",
		"VALIDATOR_PLATFORM_KEY_VALUE_STORE_ID",
		"APIFY_DEFAULT_KEY_VALUE_STORE_ID",
	); err != nil {
		return fmt.Errorf("bind platform.key_value_store_id: %w", err)
	}
	return nil
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if err := validBaseURL("platform.api_base_url", c.Platform.APIBaseURL); err != nil {
		return err
	}
	if err := validBaseURL("platform.legacy_base_url", c.Platform.LegacyBaseURL); err != nil {
		return err
	}
	if c.Platform.TimeoutSeconds <= 0 {
		return fmt.Errorf("platform.timeout_seconds must be > 0")
	}
	if c.Platform.RatePerSecond < 0 {
		return fmt.Errorf("platform.rate_per_second must be >= 0")
	}
	if c.Validation.PageLimit <= 0 {
		return fmt.Errorf("validation.page_limit must be > 0")
	}
	if c.Workers.Count <= 0 {
		return fmt.Errorf("workers.count must be > 0")
	}
	if c.Workers.QueueDepth <= 0 {
		return fmt.Errorf("workers.queue_depth must be > 0")
	}
	if c.Workers.TimeoutSeconds < 0 {
		return fmt.Errorf("workers.timeout_seconds must be >= 0")
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	return c.validateStorage()
}

func (c Config) validateStorage() error {
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendLocal:
		if strings.TrimSpace(c.Storage.BaseDir) == "" {
			return fmt.Errorf("storage.base_dir is required for the local backend")
		}
	case BackendGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket is required for the gcs backend")
		}
	case BackendPostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn is required for the postgres backend")
		}
	case BackendPlatform:
		if c.Platform.KeyValueStoreID == "" {
			return fmt.Errorf("platform.key_value_store_id is required for the platform backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not supported", c.Storage.Backend)
	}
	return nil
}

func validBaseURL(key, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("%s is required", key)
	}
	if _, err := url.ParseRequestURI(raw); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

// PlatformTimeout converts the platform timeout into a duration.
func (c Config) PlatformTimeout() time.Duration {
	return time.Duration(c.Platform.TimeoutSeconds) * time.Second
}

// RequestTimeout converts the HTTP request budget into a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// DBConnLifetime converts the pool connection lifetime into a duration.
func (c Config) DBConnLifetime() time.Duration {
	return time.Duration(c.DB.MaxConnLifetimeSeconds) * time.Second
}

// WorkerTimeout converts the per-invocation budget into a duration.
func (c Config) WorkerTimeout() time.Duration {
	return time.Duration(c.Workers.TimeoutSeconds) * time.Second
}

package extension

import (
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"

	"github.com/xraph/tenancy/alert"
	"github.com/xraph/tenancy/cache"
	"github.com/xraph/tenancy/scheduler"
)

// EnvPrefix prefixes every environment variable read by LoadEnvConfig.
const EnvPrefix = "TENANCY_"

// Config holds the tenancy extension configuration.
// Fields can be set programmatically via Option functions, loaded from
// YAML configuration files (under "extensions.tenancy" or "tenancy" keys)
// or read from TENANCY_* environment variables.
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate" env:"DISABLE_MIGRATE"`

	// DisableScheduler turns off the recalculation, notification and
	// cleanup loops. Hosts running several replicas enable them on one.
	DisableScheduler bool `json:"disable_scheduler" mapstructure:"disable_scheduler" yaml:"disable_scheduler" env:"DISABLE_SCHEDULER"`

	// CatalogFile is a YAML plan catalog. The built-in catalog is used when
	// empty.
	CatalogFile string `json:"catalog_file" mapstructure:"catalog_file" yaml:"catalog_file" env:"CATALOG_FILE"`

	// CacheTTL is how long a resolved tenant context stays fresh (default: 5m).
	CacheTTL time.Duration `json:"cache_ttl" mapstructure:"cache_ttl" yaml:"cache_ttl" env:"CACHE_TTL"`

	// CacheCapacity bounds the number of cached contexts (default: 1000).
	CacheCapacity int `json:"cache_capacity" mapstructure:"cache_capacity" yaml:"cache_capacity" env:"CACHE_CAPACITY"`

	// CacheSweepInterval is how often expired contexts are removed (default: 10m).
	CacheSweepInterval time.Duration `json:"cache_sweep_interval" mapstructure:"cache_sweep_interval" yaml:"cache_sweep_interval" env:"CACHE_SWEEP_INTERVAL"`

	// NotifyInterval is the minimum gap between two notifications for the
	// same alert (default: 1h).
	NotifyInterval time.Duration `json:"notify_interval" mapstructure:"notify_interval" yaml:"notify_interval" env:"NOTIFY_INTERVAL"`

	// NotifyRate caps outbound notifications per second (default: 10).
	NotifyRate float64 `json:"notify_rate" mapstructure:"notify_rate" yaml:"notify_rate" env:"NOTIFY_RATE"`

	// NotifyBurst is the notification burst size (default: 10).
	NotifyBurst int `json:"notify_burst" mapstructure:"notify_burst" yaml:"notify_burst" env:"NOTIFY_BURST"`

	// RecalculateInterval is how often every tenant's usage is recomputed
	// (default: 24h).
	RecalculateInterval time.Duration `json:"recalculate_interval" mapstructure:"recalculate_interval" yaml:"recalculate_interval" env:"RECALCULATE_INTERVAL"`

	// NotifySweepInterval is how often pending notifications are sent
	// (default: 1h).
	NotifySweepInterval time.Duration `json:"notify_sweep_interval" mapstructure:"notify_sweep_interval" yaml:"notify_sweep_interval" env:"NOTIFY_SWEEP_INTERVAL"`

	// CleanupInterval is how often old usage records and resolved alerts are
	// purged (default: 168h).
	CleanupInterval time.Duration `json:"cleanup_interval" mapstructure:"cleanup_interval" yaml:"cleanup_interval" env:"CLEANUP_INTERVAL"`

	// Retention is the age after which records are purged (default: 90 days).
	Retention time.Duration `json:"retention" mapstructure:"retention" yaml:"retention" env:"RETENTION"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-" env:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	sched := scheduler.DefaultConfig()
	return Config{
		CacheTTL:            cache.DefaultTTL,
		CacheCapacity:       cache.DefaultCapacity,
		CacheSweepInterval:  cache.DefaultSweepInterval,
		NotifyInterval:      alert.DefaultNotifyInterval,
		NotifyRate:          10,
		NotifyBurst:         10,
		RecalculateInterval: sched.RecalculateInterval,
		NotifySweepInterval: sched.NotifyInterval,
		CleanupInterval:     sched.CleanupInterval,
		Retention:           sched.Retention,
	}
}

// Schedule converts the scheduling fields to a scheduler.Config.
func (c Config) Schedule() scheduler.Config {
	if c.DisableScheduler {
		return scheduler.Config{}
	}
	return scheduler.Config{
		RecalculateInterval: c.RecalculateInterval,
		NotifyInterval:      c.NotifySweepInterval,
		CleanupInterval:     c.CleanupInterval,
		Retention:           c.Retention,
		JobTimeout:          scheduler.DefaultConfig().JobTimeout,
	}
}

// LoadEnvConfig reads TENANCY_* environment variables, loading a .env file
// first when one exists. Unset variables stay zero so the result can be
// merged over other sources.
func LoadEnvConfig() (Config, error) {
	// Attempt to load .env file for local development.
	_ = godotenv.Load()

	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

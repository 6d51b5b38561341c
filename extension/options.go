package extension

import (
	"time"

	"github.com/xraph/tenancy"
	"github.com/xraph/tenancy/alert"
	"github.com/xraph/tenancy/plugin"
	"github.com/xraph/tenancy/store"
)

// Option configures the tenancy Forge extension.
type Option func(*Extension)

// WithStore sets the store for the tenancy engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithEngineOption passes a tenancy.Option through to the underlying engine.
func WithEngineOption(opt tenancy.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers a tenancy plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, tenancy.WithPlugin(p))
	}
}

// WithNotifier sets the alert notification channel.
func WithNotifier(n alert.Notifier) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, tenancy.WithNotifier(n))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithEnv overlays TENANCY_* environment variables on the resolved
// configuration during Register.
func WithEnv() Option {
	return func(e *Extension) { e.useEnv = true }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithDisableScheduler turns off the background jobs.
func WithDisableScheduler() Option {
	return func(e *Extension) { e.config.DisableScheduler = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithCatalogFile loads plans from a YAML file.
func WithCatalogFile(path string) Option {
	return func(e *Extension) { e.config.CatalogFile = path }
}

// WithCacheTTL sets how long resolved contexts stay fresh.
func WithCacheTTL(d time.Duration) Option {
	return func(e *Extension) { e.config.CacheTTL = d }
}

// WithCacheCapacity bounds the number of cached contexts.
func WithCacheCapacity(n int) Option {
	return func(e *Extension) { e.config.CacheCapacity = n }
}

// WithRetention sets how long usage records and resolved alerts are kept.
func WithRetention(d time.Duration) Option {
	return func(e *Extension) { e.config.Retention = d }
}

// Package extension provides the Forge extension adapter for tenancy.
//
// It implements the forge.Extension interface to integrate the tenancy
// engine into a Forge application with DI registration and lifecycle
// management.
//
// Configuration can be provided programmatically via Option functions,
// via YAML configuration files under "extensions.tenancy" or "tenancy"
// keys, or via TENANCY_* environment variables when WithEnv is set.
package extension

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/tenancy"
	"github.com/xraph/tenancy/cache"
	"github.com/xraph/tenancy/plan"
	"github.com/xraph/tenancy/store"
	"github.com/xraph/tenancy/store/memory"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "tenancy"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Tenant context resolution and usage-limit enforcement"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts the tenancy engine as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	useEnv     bool
	engine     *tenancy.Engine
	store      store.Store
	engineOpts []tenancy.Option
}

// New creates a new tenancy Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying engine.
// This is nil until Register is called.
func (e *Extension) Engine() *tenancy.Engine { return e.engine }

// Config returns the resolved configuration.
func (e *Extension) Config() Config { return e.config }

// Register implements [forge.Extension]. It loads configuration,
// initializes the engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}

	opts, err := e.buildEngineOpts()
	if err != nil {
		return err
	}
	e.engine = tenancy.New(e.store, opts...)

	return vessel.Provide(fapp.Container(), func() (*tenancy.Engine, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("tenancy: extension not initialized")
	}

	if err := e.engine.Start(ctx); err != nil {
		return err
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("tenancy: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildEngineOpts constructs tenancy.Option values from the resolved config.
func (e *Extension) buildEngineOpts() ([]tenancy.Option, error) {
	cfg := e.config
	opts := make([]tenancy.Option, 0, len(e.engineOpts)+8)

	if cfg.CatalogFile != "" {
		catalog, err := plan.LoadCatalogFile(cfg.CatalogFile)
		if err != nil {
			return nil, fmt.Errorf("tenancy: load catalog: %w", err)
		}
		opts = append(opts, tenancy.WithCatalog(catalog))
	}

	opts = append(opts,
		tenancy.WithCacheOptions(
			cache.WithTTL(cfg.CacheTTL),
			cache.WithCapacity(cfg.CacheCapacity),
			cache.WithSweepInterval(cfg.CacheSweepInterval),
		),
		tenancy.WithNotifyInterval(cfg.NotifyInterval),
		tenancy.WithNotifyRate(rate.Limit(cfg.NotifyRate), cfg.NotifyBurst),
		tenancy.WithSchedule(cfg.Schedule()),
	)

	if cfg.DisableMigrate {
		opts = append(opts, tenancy.WithDisableMigrate())
	}

	// Append any pass-through engine options.
	opts = append(opts, e.engineOpts...)

	return opts, nil
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files, the environment or
// programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("tenancy: configuration is required but not found in config files; " +
				"ensure 'extensions.tenancy' or 'tenancy' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = e.mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}

	if e.useEnv {
		envConfig, err := LoadEnvConfig()
		if err != nil {
			return fmt.Errorf("tenancy: load env config: %w", err)
		}
		e.config = e.mergeConfigurations(envConfig, e.config)
	}

	e.Logger().Debug("tenancy: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("disable_scheduler", e.config.DisableScheduler),
		forge.F("catalog_file", e.config.CatalogFile),
		forge.F("cache_ttl", e.config.CacheTTL),
		forge.F("cache_capacity", e.config.CacheCapacity),
		forge.F("notify_interval", e.config.NotifyInterval),
		forge.F("retention", e.config.Retention),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	// Try "extensions.tenancy" first (namespaced pattern).
	if cm.IsSet("extensions.tenancy") {
		if err := cm.Bind("extensions.tenancy", &cfg); err == nil {
			e.Logger().Debug("tenancy: loaded config from file",
				forge.F("key", "extensions.tenancy"),
			)
			return cfg, true
		}
		e.Logger().Warn("tenancy: failed to bind extensions.tenancy config",
			forge.F("error", "bind failed"),
		)
	}

	// Try legacy "tenancy" key.
	if cm.IsSet("tenancy") {
		if err := cm.Bind("tenancy", &cfg); err == nil {
			e.Logger().Debug("tenancy: loaded config from file",
				forge.F("key", "tenancy"),
			)
			return cfg, true
		}
		e.Logger().Warn("tenancy: failed to bind tenancy config",
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	d := DefaultConfig()
	fill(&cfg.CacheTTL, d.CacheTTL)
	fill(&cfg.CacheCapacity, d.CacheCapacity)
	fill(&cfg.CacheSweepInterval, d.CacheSweepInterval)
	fill(&cfg.NotifyInterval, d.NotifyInterval)
	fill(&cfg.NotifyRate, d.NotifyRate)
	fill(&cfg.NotifyBurst, d.NotifyBurst)
	fill(&cfg.RecalculateInterval, d.RecalculateInterval)
	fill(&cfg.NotifySweepInterval, d.NotifySweepInterval)
	fill(&cfg.CleanupInterval, d.CleanupInterval)
	fill(&cfg.Retention, d.Retention)
	return cfg
}

// mergeConfigurations merges a file or env config with programmatic options.
// The first argument takes precedence; programmatic values fill gaps and
// programmatic bool flags override when true.
func (e *Extension) mergeConfigurations(primary, programmaticConfig Config) Config {
	if programmaticConfig.DisableMigrate {
		primary.DisableMigrate = true
	}
	if programmaticConfig.DisableScheduler {
		primary.DisableScheduler = true
	}
	primary.RequireConfig = programmaticConfig.RequireConfig

	fill(&primary.CatalogFile, programmaticConfig.CatalogFile)
	fill(&primary.CacheTTL, programmaticConfig.CacheTTL)
	fill(&primary.CacheCapacity, programmaticConfig.CacheCapacity)
	fill(&primary.CacheSweepInterval, programmaticConfig.CacheSweepInterval)
	fill(&primary.NotifyInterval, programmaticConfig.NotifyInterval)
	fill(&primary.NotifyRate, programmaticConfig.NotifyRate)
	fill(&primary.NotifyBurst, programmaticConfig.NotifyBurst)
	fill(&primary.RecalculateInterval, programmaticConfig.RecalculateInterval)
	fill(&primary.NotifySweepInterval, programmaticConfig.NotifySweepInterval)
	fill(&primary.CleanupInterval, programmaticConfig.CleanupInterval)
	fill(&primary.Retention, programmaticConfig.Retention)

	// Fill remaining zeros with defaults.
	return e.mergeWithDefaults(primary)
}

// fill sets *dst to v when *dst is the zero value.
func fill[T comparable](dst *T, v T) {
	var zero T
	if *dst == zero {
		*dst = v
	}
}

package tenancy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/xraph/tenancy/alert"
	"github.com/xraph/tenancy/cache"
	"github.com/xraph/tenancy/gate"
	"github.com/xraph/tenancy/id"
	"github.com/xraph/tenancy/plan"
	"github.com/xraph/tenancy/plugin"
	"github.com/xraph/tenancy/scheduler"
	"github.com/xraph/tenancy/store"
	"github.com/xraph/tenancy/tenant"
	"github.com/xraph/tenancy/types"
	"github.com/xraph/tenancy/usage"
)

// Usage sources written by the engine itself.
const (
	SourceMembership = "membership"
	SourceAPI        = "api"
)

const recalculatePageSize = 100

// Engine resolves tenant contexts, enforces plan limits and maintains usage
// counters and alerts on top of a single store.
type Engine struct {
	store   store.Store
	catalog plan.Catalog
	plugins *plugin.Registry
	logger  *slog.Logger
	clock   clockwork.Clock

	cache     *cache.Cache
	ledger    *usage.Ledger
	gate      *gate.Gate
	alerts    *alert.Manager
	notify    *alert.Dispatcher
	scheduler *scheduler.Scheduler

	// Configuration
	cacheOpts      []cache.Option
	sources        usage.Sources
	notifier       alert.Notifier
	notifyLimit    rate.Limit
	notifyBurst    int
	notifyInterval time.Duration
	permissions    *gate.PermissionPolicy
	schedule       scheduler.Config

	skipMigrate bool

	validate *validator.Validate
	runMu    sync.Mutex
	running  bool
}

// New creates an Engine over s. Without WithCatalog the built-in
// free/basic/pro/enterprise catalog is used.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:          s,
		catalog:        plan.DefaultCatalog(),
		plugins:        plugin.NewRegistry(),
		logger:         slog.Default(),
		clock:          clockwork.NewRealClock(),
		sources:        s,
		notifyLimit:    rate.Limit(10),
		notifyBurst:    10,
		notifyInterval: alert.DefaultNotifyInterval,
		schedule:       scheduler.DefaultConfig(),
		validate:       validator.New(),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.notifier == nil {
		e.notifier = logNotifier{logger: e.logger}
	}
	if e.permissions == nil {
		e.permissions = gate.MustDefaultPermissions()
	}

	e.alerts = alert.NewManager(s,
		alert.WithUsageReader(s),
		alert.WithClock(e.clock),
		alert.WithLogger(e.logger.With("component", "alerts")),
	)
	e.ledger = usage.NewLedger(s,
		usage.WithSources(e.sources),
		usage.WithEvaluator(usage.EvaluatorFunc(e.evaluateUsage)),
		usage.WithClock(e.clock),
		usage.WithLogger(e.logger.With("component", "usage")),
	)
	e.gate = gate.New(e.catalog, s,
		gate.WithPermissions(e.permissions),
		gate.WithLogger(e.logger.With("component", "gate")),
	)
	e.notify = alert.NewDispatcher(s, alert.NotifierFunc(e.sendNotification),
		alert.WithRateLimit(e.notifyLimit, e.notifyBurst),
		alert.WithNotifyInterval(e.notifyInterval),
		alert.WithDispatchClock(e.clock),
		alert.WithDispatchLogger(e.logger.With("component", "notifications")),
	)

	loader := &cache.StoreLoader{Tenants: s, Plans: e.catalog, Clock: e.clock}
	cacheOpts := append([]cache.Option{
		cache.WithClock(e.clock),
		cache.WithLogger(e.logger.With("component", "cache")),
		cache.WithHooks(e.cacheHooks()),
	}, e.cacheOpts...)
	e.cache = cache.New(cache.LoaderFunc(func(ctx context.Context, userID string, tenantID id.TenantID) (*tenant.Context, error) {
		start := e.clock.Now()
		tc, err := loader.Load(ctx, userID, tenantID)
		if err == nil {
			e.plugins.EmitContextLoaded(ctx, tc, e.clock.Since(start))
		}
		return tc, err
	}), cacheOpts...)

	e.scheduler = scheduler.New(jobs{e}, e.schedule,
		scheduler.WithClock(e.clock),
		scheduler.WithLogger(e.logger.With("component", "scheduler")),
	)

	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithClock sets the clock shared by every component.
func WithClock(c clockwork.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithCatalog replaces the plan catalog.
func WithCatalog(c plan.Catalog) Option {
	return func(e *Engine) { e.catalog = c }
}

// WithCacheOptions tunes the context cache. They are applied after the
// engine's own clock, logger and hooks.
func WithCacheOptions(opts ...cache.Option) Option {
	return func(e *Engine) { e.cacheOpts = append(e.cacheOpts, opts...) }
}

// WithSources replaces the authoritative counters used by recalculation.
// The store itself is used by default.
func WithSources(s usage.Sources) Option {
	return func(e *Engine) { e.sources = s }
}

// WithNotifier sets the channel used for critical and exceeded alerts.
// Without it notifications are only logged.
func WithNotifier(n alert.Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithNotifyRate throttles outbound notifications.
func WithNotifyRate(r rate.Limit, burst int) Option {
	return func(e *Engine) {
		e.notifyLimit = r
		e.notifyBurst = burst
	}
}

// WithNotifyInterval sets how long an alert stays quiet after a notification.
func WithNotifyInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.notifyInterval = d
		}
	}
}

// WithPermissionPolicy replaces the role permission policy.
func WithPermissionPolicy(p *gate.PermissionPolicy) Option {
	return func(e *Engine) { e.permissions = p }
}

// WithSchedule sets the background job intervals. A zero interval
// disables the corresponding job.
func WithSchedule(cfg scheduler.Config) Option {
	return func(e *Engine) { e.schedule = cfg }
}

// WithDisableMigrate skips store migration on Start.
func WithDisableMigrate() Option {
	return func(e *Engine) { e.skipMigrate = true }
}

// Start migrates the store, initializes plugins and starts the cache
// sweeper and the scheduler.
func (e *Engine) Start(ctx context.Context) error {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.running {
		return nil
	}

	if !e.skipMigrate {
		if err := e.store.Migrate(ctx); err != nil {
			return fmt.Errorf("%w: %w", ErrMigrationFailed, err)
		}
	}

	e.plugins.EmitInit(ctx, e)

	e.cache.Start(ctx)
	e.scheduler.Start(ctx)
	e.running = true

	e.logger.Info("tenancy engine started",
		"plans", len(e.catalog.List()),
		"plugins", e.plugins.Count(),
		"recalculate_interval", e.schedule.RecalculateInterval,
		"notify_interval", e.schedule.NotifyInterval,
		"cleanup_interval", e.schedule.CleanupInterval,
	)

	return nil
}

// Stop halts background work, notifies plugins and closes the store.
func (e *Engine) Stop() error {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	e.scheduler.Stop()
	e.cache.Stop()
	e.running = false

	ctx := context.Background()
	e.plugins.EmitShutdown(ctx)

	return e.store.Close()
}

// Store returns the underlying store.
func (e *Engine) Store() store.Store { return e.store }

// Catalog returns the plan catalog.
func (e *Engine) Catalog() plan.Catalog { return e.catalog }

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// Cache returns the context cache.
func (e *Engine) Cache() *cache.Cache { return e.cache }

// Gate returns the feature and limit gate.
func (e *Engine) Gate() *gate.Gate { return e.gate }

// Ledger returns the usage ledger.
func (e *Engine) Ledger() *usage.Ledger { return e.ledger }

// Scheduler returns the background job scheduler.
func (e *Engine) Scheduler() *scheduler.Scheduler { return e.scheduler }

// ──────────────────────────────────────────────────
// Tenant context
// ──────────────────────────────────────────────────

// GetContext resolves the context of userID within tenantID, from cache
// when fresh. Missing records yield ErrNoContext, a blocked tenant or
// inactive membership ErrAccessDenied. Callers must deny on any error.
func (e *Engine) GetContext(ctx context.Context, userID string, tenantID id.TenantID) (*tenant.Context, error) {
	return e.cache.Get(ctx, userID, tenantID)
}

// Invalidate drops the cached context of one (user, tenant) pair.
func (e *Engine) Invalidate(userID string, tenantID id.TenantID) int {
	return e.cache.Invalidate(userID, tenantID)
}

// InvalidateAllForUser drops every cached context of userID.
func (e *Engine) InvalidateAllForUser(userID string) int {
	return e.cache.InvalidateUser(userID)
}

// InvalidateAllForTenant drops every cached context of tenantID.
func (e *Engine) InvalidateAllForTenant(tenantID id.TenantID) int {
	return e.cache.InvalidateTenant(tenantID)
}

func (e *Engine) cacheHooks() cache.Hooks {
	return cache.Hooks{
		OnLoadError: func(userID string, tenantID id.TenantID, err error) {
			e.plugins.EmitContextLoadFailed(context.Background(), userID, tenantID, err)
		},
		OnEvict: func(reason cache.EvictReason, count int) {
			e.plugins.EmitCacheEvicted(context.Background(), string(reason), count)
		},
	}
}

// ──────────────────────────────────────────────────
// Gate
// ──────────────────────────────────────────────────

// CheckFeature reports whether the context's plan enables feature.
func (e *Engine) CheckFeature(ctx context.Context, tc *tenant.Context, feature string) gate.FeatureDecision {
	d := e.gate.CheckFeature(tc, feature)
	if !d.Allowed {
		e.plugins.EmitFeatureDenied(ctx, tc, d)
	}
	return d
}

// CheckLimit reports whether one more unit of the metric behind key is
// allowed. The error is non-nil only when usage could not be read, in
// which case the caller must deny.
func (e *Engine) CheckLimit(ctx context.Context, tc *tenant.Context, key plan.LimitKey, opts ...gate.LimitOption) (gate.LimitDecision, error) {
	d, err := e.gate.CheckLimit(ctx, tc, key, opts...)
	if err != nil {
		return d, err
	}
	if !d.Allowed {
		e.plugins.EmitLimitDenied(ctx, tc, d)
	}
	return d, nil
}

// CheckPermission reports whether the context's role or explicit grants
// allow permission.
func (e *Engine) CheckPermission(_ context.Context, tc *tenant.Context, permission string) (gate.PermissionDecision, error) {
	return e.gate.CheckPermission(tc, permission)
}

// ──────────────────────────────────────────────────
// Usage
// ──────────────────────────────────────────────────

// RecordUsage applies a signed delta: positive increments, negative
// decrements clamping at zero. A non-nil Outcome means the counter was
// written even if the usage log or alert evaluation failed.
func (e *Engine) RecordUsage(ctx context.Context, tenantID id.TenantID, metric usage.Metric, delta int64, source string, meta map[string]string) (*usage.Outcome, error) {
	out, err := e.ledger.Record(ctx, tenantID, metric, delta, source, meta)
	if err != nil {
		return nil, err
	}
	e.plugins.EmitUsageRecorded(ctx, out)
	return out, nil
}

// SetUsage overwrites a counter with an absolute value.
func (e *Engine) SetUsage(ctx context.Context, tenantID id.TenantID, metric usage.Metric, value int64, source string, meta map[string]string) (*usage.Outcome, error) {
	out, err := e.ledger.Set(ctx, tenantID, metric, value, source, meta)
	if err != nil {
		return nil, err
	}
	e.plugins.EmitUsageRecorded(ctx, out)
	return out, nil
}

// RecalculateUsage recomputes every counter of tenantID from the sources
// and re-evaluates its alerts.
func (e *Engine) RecalculateUsage(ctx context.Context, tenantID id.TenantID) (*usage.Usage, error) {
	u, err := e.ledger.Recalculate(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	e.plugins.EmitUsageRecalculated(ctx, tenantID, u)
	return u, nil
}

// GetUsage returns the stored counters of tenantID.
func (e *Engine) GetUsage(ctx context.Context, tenantID id.TenantID) (*usage.Usage, error) {
	return e.ledger.Get(ctx, tenantID)
}

// UsageHistory lists the usage log of tenantID, newest first.
func (e *Engine) UsageHistory(ctx context.Context, tenantID id.TenantID, opts usage.QueryOpts) ([]*usage.Record, error) {
	return e.store.ListRecords(ctx, tenantID, opts)
}

// ──────────────────────────────────────────────────
// Alerts
// ──────────────────────────────────────────────────

// GetActiveAlerts returns the active alerts of tenantID.
func (e *Engine) GetActiveAlerts(ctx context.Context, tenantID id.TenantID) ([]*alert.Alert, error) {
	return e.store.ListActiveAlerts(ctx, tenantID)
}

// ListAlerts returns the alert history of tenantID.
func (e *Engine) ListAlerts(ctx context.Context, tenantID id.TenantID, opts alert.ListOpts) ([]*alert.Alert, error) {
	return e.store.ListAlerts(ctx, tenantID, opts)
}

// EvaluateAlerts re-evaluates every metric of tenantID against its current
// plan without touching the counters. Alerts left behind by a failed
// evaluation or a plan change are healed here.
func (e *Engine) EvaluateAlerts(ctx context.Context, tenantID id.TenantID) ([]alert.Transition, error) {
	u, err := e.ledger.Get(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("tenancy: evaluate alerts: %w", err)
	}

	var (
		out  []alert.Transition
		errs MultiError
	)
	for _, m := range usage.Metrics() {
		tr, err := e.evaluate(ctx, tenantID, m, u.Get(m))
		if err != nil {
			errs.Add(fmt.Errorf("%s: %w", m, err))
			continue
		}
		out = append(out, tr)
	}
	if errs.HasErrors() {
		return out, errs
	}
	return out, nil
}

// DispatchNotifications sends one round of critical and exceeded alert
// notifications.
func (e *Engine) DispatchNotifications(ctx context.Context) (alert.DispatchReport, error) {
	return e.notify.Dispatch(ctx)
}

func (e *Engine) evaluateUsage(ctx context.Context, tenantID id.TenantID, metric usage.Metric, current int64) (usage.Evaluation, error) {
	tr, err := e.evaluate(ctx, tenantID, metric, current)
	if err != nil {
		return usage.Evaluation{}, err
	}
	return tr.Evaluation(), nil
}

func (e *Engine) evaluate(ctx context.Context, tenantID id.TenantID, metric usage.Metric, current int64) (alert.Transition, error) {
	key, ok := gate.LimitKeyFor(metric)
	if !ok {
		return alert.Transition{}, fmt.Errorf("%w: %q", usage.ErrInvalidMetric, metric)
	}
	p, err := e.planOf(ctx, tenantID)
	if err != nil {
		return alert.Transition{}, err
	}
	limit, _ := p.Limit(key)

	tr, err := e.alerts.Evaluate(ctx, tenantID, metric, current, limit)
	if err != nil {
		return tr, err
	}
	e.plugins.EmitAlertTransition(ctx, tr)
	return tr, nil
}

func (e *Engine) planOf(ctx context.Context, tenantID id.TenantID) (*plan.Plan, error) {
	t, err := e.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if t.PlanID == "" {
		return e.catalog.Fallback(), nil
	}
	return e.catalog.Get(t.PlanID)
}

func (e *Engine) sendNotification(ctx context.Context, a *alert.Alert) error {
	err := e.notifier.Notify(ctx, a)
	e.plugins.EmitAlertNotified(ctx, a, err)
	return err
}

// logNotifier is the notifier used when the host configures none.
type logNotifier struct {
	logger *slog.Logger
}

func (n logNotifier) Notify(_ context.Context, a *alert.Alert) error {
	n.logger.Warn("usage alert",
		"alert_id", a.ID.String(),
		"tenant_id", a.TenantID.String(),
		"metric", string(a.Metric),
		"type", string(a.Type),
		"current", a.CurrentValue,
		"limit", a.Limit,
		"percentage", a.Percentage,
	)
	return nil
}

// ──────────────────────────────────────────────────
// Tenant management
// ──────────────────────────────────────────────────

type newTenant struct {
	Name   string `validate:"required,max=128"`
	Slug   string `validate:"omitempty,max=63,lowercase"`
	Status string `validate:"omitempty,oneof=active trial suspended cancelled"`
}

type newMember struct {
	UserID string `validate:"required,max=128"`
	Role   string `validate:"required,oneof=owner admin member viewer"`
}

// CreateTenant persists t. An empty PlanID is assigned the fallback plan and
// an empty Status becomes active.
func (e *Engine) CreateTenant(ctx context.Context, t *tenant.Tenant) error {
	if err := e.check(newTenant{Name: t.Name, Slug: t.Slug, Status: string(t.Status)}); err != nil {
		return err
	}
	if t.PlanID == "" {
		t.PlanID = e.catalog.Fallback().ID
	} else if _, err := e.catalog.Get(t.PlanID); err != nil {
		return err
	}
	if t.ID.IsNil() {
		t.ID = id.NewTenantID()
	}
	if t.Status == "" {
		t.Status = tenant.StatusActive
	}
	t.Entity = types.NewEntityAt(e.clock.Now())
	t.Usage = usage.Usage{}

	if err := e.store.CreateTenant(ctx, t); err != nil {
		return err
	}

	e.plugins.EmitTenantCreated(ctx, t)
	return nil
}

// GetTenant retrieves a tenant by ID.
func (e *Engine) GetTenant(ctx context.Context, tenantID id.TenantID) (*tenant.Tenant, error) {
	return e.store.GetTenant(ctx, tenantID)
}

// ChangePlan moves a tenant to planID, drops its cached contexts and
// re-evaluates its alerts against the new limits.
func (e *Engine) ChangePlan(ctx context.Context, tenantID id.TenantID, planID string) (*tenant.Tenant, error) {
	if _, err := e.catalog.Get(planID); err != nil {
		return nil, err
	}
	t, err := e.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	old := t.PlanID
	if old == planID {
		return t, nil
	}

	t.PlanID = planID
	t.Touch(e.clock.Now())
	if err := e.store.UpdateTenant(ctx, t); err != nil {
		return nil, err
	}
	e.cache.InvalidateTenant(tenantID)
	e.plugins.EmitTenantPlanChanged(ctx, t, old, planID)

	if _, err := e.EvaluateAlerts(ctx, tenantID); err != nil {
		e.logger.Warn("tenancy: alert re-evaluation after plan change failed",
			"tenant_id", tenantID.String(),
			"plan_id", planID,
			"error", err,
		)
	}
	return t, nil
}

// SuspendTenant blocks every context of the tenant.
func (e *Engine) SuspendTenant(ctx context.Context, tenantID id.TenantID) (*tenant.Tenant, error) {
	t, err := e.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	switch t.Status {
	case tenant.StatusSuspended:
		return t, nil
	case tenant.StatusCancelled:
		return nil, fmt.Errorf("%w: tenant %s is cancelled", ErrInvalidStatus, tenantID)
	}

	if err := e.setStatus(ctx, t, tenant.StatusSuspended); err != nil {
		return nil, err
	}
	e.plugins.EmitTenantSuspended(ctx, t)
	return t, nil
}

// ReactivateTenant returns a suspended tenant to active.
func (e *Engine) ReactivateTenant(ctx context.Context, tenantID id.TenantID) (*tenant.Tenant, error) {
	t, err := e.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if t.Status != tenant.StatusSuspended {
		return nil, fmt.Errorf("%w: tenant %s is %s", ErrInvalidStatus, tenantID, t.Status)
	}

	if err := e.setStatus(ctx, t, tenant.StatusActive); err != nil {
		return nil, err
	}
	e.plugins.EmitTenantReactivated(ctx, t)
	return t, nil
}

func (e *Engine) setStatus(ctx context.Context, t *tenant.Tenant, st tenant.Status) error {
	t.Status = st
	t.Touch(e.clock.Now())
	if err := e.store.UpdateTenant(ctx, t); err != nil {
		return err
	}
	e.cache.InvalidateTenant(t.ID)
	return nil
}

// AddMember creates an active membership and counts it against the users
// metric. Enforcing maxUsers beforehand is up to the caller via CheckLimit.
func (e *Engine) AddMember(ctx context.Context, tenantID id.TenantID, userID string, role tenant.Role, permissions ...string) (*tenant.Membership, error) {
	if err := e.check(newMember{UserID: userID, Role: string(role)}); err != nil {
		return nil, err
	}
	if _, err := e.store.GetTenant(ctx, tenantID); err != nil {
		return nil, err
	}

	m := &tenant.Membership{
		Entity:             types.NewEntityAt(e.clock.Now()),
		ID:                 id.NewMembershipID(),
		TenantID:           tenantID,
		UserID:             userID,
		Role:               role,
		FeaturePermissions: permissions,
		IsActive:           true,
	}
	if err := e.store.CreateMembership(ctx, m); err != nil {
		return nil, err
	}
	e.cache.Invalidate(userID, tenantID)
	e.plugins.EmitMemberAdded(ctx, m)

	e.countMember(ctx, tenantID, 1)
	return m, nil
}

// RemoveMember deactivates the user's membership and drops every cached
// context of the user.
func (e *Engine) RemoveMember(ctx context.Context, tenantID id.TenantID, userID string) error {
	m, err := e.store.GetActiveMembership(ctx, tenantID, userID)
	if err != nil {
		return err
	}
	m.IsActive = false
	m.Touch(e.clock.Now())
	if err := e.store.UpdateMembership(ctx, m); err != nil {
		return err
	}
	e.cache.InvalidateUser(userID)
	e.plugins.EmitMemberRemoved(ctx, m)

	e.countMember(ctx, tenantID, -1)
	return nil
}

// ChangeRole updates the user's role and drops every cached context of the
// user.
func (e *Engine) ChangeRole(ctx context.Context, tenantID id.TenantID, userID string, role tenant.Role) (*tenant.Membership, error) {
	if err := e.check(newMember{UserID: userID, Role: string(role)}); err != nil {
		return nil, err
	}
	m, err := e.store.GetActiveMembership(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	old := m.Role
	if old == role {
		return m, nil
	}

	m.Role = role
	m.Touch(e.clock.Now())
	if err := e.store.UpdateMembership(ctx, m); err != nil {
		return nil, err
	}
	e.cache.InvalidateUser(userID)
	e.plugins.EmitMemberRoleChanged(ctx, m, old)
	return m, nil
}

// countMember keeps the users counter in step with memberships. The
// membership write already succeeded, so a counter failure is logged and
// left for the next recalculation.
func (e *Engine) countMember(ctx context.Context, tenantID id.TenantID, delta int64) {
	if _, err := e.RecordUsage(ctx, tenantID, usage.MetricUsers, delta, SourceMembership, nil); err != nil {
		e.logger.Warn("tenancy: failed to update users counter",
			"tenant_id", tenantID.String(),
			"delta", delta,
			"error", err,
		)
	}
}

func (e *Engine) check(v any) error {
	err := e.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		var merr MultiError
		for _, fe := range verrs {
			merr.Add(ValidationError{Field: fe.Field(), Message: fe.Tag()})
		}
		return merr
	}
	return fmt.Errorf("%w: %w", ErrInvalidInput, err)
}

// ──────────────────────────────────────────────────
// Scheduled jobs
// ──────────────────────────────────────────────────

// RecalculateAll recalculates every active and trial tenant. A failing
// tenant does not stop the sweep.
func (e *Engine) RecalculateAll(ctx context.Context) error {
	var errs MultiError
	count := 0
	for offset := 0; ; offset += recalculatePageSize {
		page, err := e.store.ListTenants(ctx, tenant.ListOpts{
			Statuses: []tenant.Status{tenant.StatusActive, tenant.StatusTrial},
			Limit:    recalculatePageSize,
			Offset:   offset,
		})
		if err != nil {
			errs.Add(fmt.Errorf("list tenants: %w", err))
			break
		}
		for _, t := range page {
			if err := ctx.Err(); err != nil {
				errs.Add(err)
				return errs
			}
			if _, err := e.RecalculateUsage(ctx, t.ID); err != nil {
				errs.Add(fmt.Errorf("tenant %s: %w", t.ID, err))
				continue
			}
			count++
		}
		if len(page) < recalculatePageSize {
			break
		}
	}

	e.logger.Info("usage recalculation finished",
		"tenants", count,
		"failures", len(errs.Errors),
	)
	if errs.HasErrors() {
		return errs
	}
	return nil
}

// Cleanup purges usage records and resolved alerts older than before.
func (e *Engine) Cleanup(ctx context.Context, before time.Time) error {
	records, rerr := e.store.PurgeRecords(ctx, before)
	alerts, aerr := e.store.PurgeResolved(ctx, before)

	e.logger.Info("tenancy cleanup finished",
		"before", before,
		"records", records,
		"alerts", alerts,
	)
	return errors.Join(rerr, aerr)
}

// jobs adapts the engine to scheduler.Jobs.
type jobs struct{ e *Engine }

var _ scheduler.Jobs = jobs{}

func (j jobs) RecalculateAll(ctx context.Context) error { return j.e.RecalculateAll(ctx) }

func (j jobs) DispatchNotifications(ctx context.Context) error {
	_, err := j.e.DispatchNotifications(ctx)
	return err
}

func (j jobs) Cleanup(ctx context.Context, before time.Time) error { return j.e.Cleanup(ctx, before) }

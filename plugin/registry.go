package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/tenancy/alert"
	"github.com/xraph/tenancy/gate"
	"github.com/xraph/tenancy/id"
	"github.com/xraph/tenancy/tenant"
	"github.com/xraph/tenancy/usage"
)

// DefaultHookTimeout bounds a single plugin call.
const DefaultHookTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery so emitting never type-asserts.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit              []OnInit
	onShutdown          []OnShutdown
	onTenantCreated     []OnTenantCreated
	onTenantPlanChanged []OnTenantPlanChanged
	onTenantSuspended   []OnTenantSuspended
	onTenantReactivated []OnTenantReactivated
	onMemberAdded       []OnMemberAdded
	onMemberRemoved     []OnMemberRemoved
	onMemberRoleChanged []OnMemberRoleChanged
	onContextLoaded     []OnContextLoaded
	onContextLoadFailed []OnContextLoadFailed
	onCacheEvicted      []OnCacheEvicted
	onFeatureDenied     []OnFeatureDenied
	onLimitDenied       []OnLimitDenied
	onUsageRecorded     []OnUsageRecorded
	onUsageRecalculated []OnUsageRecalculated
	onAlertCreated      []OnAlertCreated
	onAlertUpdated      []OnAlertUpdated
	onAlertResolved     []OnAlertResolved
	onAlertNotified     []OnAlertNotified
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultHookTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-call hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnTenantCreated); ok {
		r.onTenantCreated = append(r.onTenantCreated, v)
	}
	if v, ok := p.(OnTenantPlanChanged); ok {
		r.onTenantPlanChanged = append(r.onTenantPlanChanged, v)
	}
	if v, ok := p.(OnTenantSuspended); ok {
		r.onTenantSuspended = append(r.onTenantSuspended, v)
	}
	if v, ok := p.(OnTenantReactivated); ok {
		r.onTenantReactivated = append(r.onTenantReactivated, v)
	}
	if v, ok := p.(OnMemberAdded); ok {
		r.onMemberAdded = append(r.onMemberAdded, v)
	}
	if v, ok := p.(OnMemberRemoved); ok {
		r.onMemberRemoved = append(r.onMemberRemoved, v)
	}
	if v, ok := p.(OnMemberRoleChanged); ok {
		r.onMemberRoleChanged = append(r.onMemberRoleChanged, v)
	}
	if v, ok := p.(OnContextLoaded); ok {
		r.onContextLoaded = append(r.onContextLoaded, v)
	}
	if v, ok := p.(OnContextLoadFailed); ok {
		r.onContextLoadFailed = append(r.onContextLoadFailed, v)
	}
	if v, ok := p.(OnCacheEvicted); ok {
		r.onCacheEvicted = append(r.onCacheEvicted, v)
	}
	if v, ok := p.(OnFeatureDenied); ok {
		r.onFeatureDenied = append(r.onFeatureDenied, v)
	}
	if v, ok := p.(OnLimitDenied); ok {
		r.onLimitDenied = append(r.onLimitDenied, v)
	}
	if v, ok := p.(OnUsageRecorded); ok {
		r.onUsageRecorded = append(r.onUsageRecorded, v)
	}
	if v, ok := p.(OnUsageRecalculated); ok {
		r.onUsageRecalculated = append(r.onUsageRecalculated, v)
	}
	if v, ok := p.(OnAlertCreated); ok {
		r.onAlertCreated = append(r.onAlertCreated, v)
	}
	if v, ok := p.(OnAlertUpdated); ok {
		r.onAlertUpdated = append(r.onAlertUpdated, v)
	}
	if v, ok := p.(OnAlertResolved); ok {
		r.onAlertResolved = append(r.onAlertResolved, v)
	}
	if v, ok := p.(OnAlertNotified); ok {
		r.onAlertNotified = append(r.onAlertNotified, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", getImplementedInterfaces(p),
	)

	return nil
}

var hookInterfaces = []struct {
	name string
	typ  reflect.Type
}{
	{"OnInit", reflect.TypeOf((*OnInit)(nil)).Elem()},
	{"OnShutdown", reflect.TypeOf((*OnShutdown)(nil)).Elem()},
	{"OnTenantCreated", reflect.TypeOf((*OnTenantCreated)(nil)).Elem()},
	{"OnTenantPlanChanged", reflect.TypeOf((*OnTenantPlanChanged)(nil)).Elem()},
	{"OnTenantSuspended", reflect.TypeOf((*OnTenantSuspended)(nil)).Elem()},
	{"OnTenantReactivated", reflect.TypeOf((*OnTenantReactivated)(nil)).Elem()},
	{"OnMemberAdded", reflect.TypeOf((*OnMemberAdded)(nil)).Elem()},
	{"OnMemberRemoved", reflect.TypeOf((*OnMemberRemoved)(nil)).Elem()},
	{"OnMemberRoleChanged", reflect.TypeOf((*OnMemberRoleChanged)(nil)).Elem()},
	{"OnContextLoaded", reflect.TypeOf((*OnContextLoaded)(nil)).Elem()},
	{"OnContextLoadFailed", reflect.TypeOf((*OnContextLoadFailed)(nil)).Elem()},
	{"OnCacheEvicted", reflect.TypeOf((*OnCacheEvicted)(nil)).Elem()},
	{"OnFeatureDenied", reflect.TypeOf((*OnFeatureDenied)(nil)).Elem()},
	{"OnLimitDenied", reflect.TypeOf((*OnLimitDenied)(nil)).Elem()},
	{"OnUsageRecorded", reflect.TypeOf((*OnUsageRecorded)(nil)).Elem()},
	{"OnUsageRecalculated", reflect.TypeOf((*OnUsageRecalculated)(nil)).Elem()},
	{"OnAlertCreated", reflect.TypeOf((*OnAlertCreated)(nil)).Elem()},
	{"OnAlertUpdated", reflect.TypeOf((*OnAlertUpdated)(nil)).Elem()},
	{"OnAlertResolved", reflect.TypeOf((*OnAlertResolved)(nil)).Elem()},
	{"OnAlertNotified", reflect.TypeOf((*OnAlertNotified)(nil)).Elem()},
}

// getImplementedInterfaces returns the hook interfaces implemented by p.
func getImplementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)
	for _, h := range hookInterfaces {
		if v.Implements(h.typ) {
			interfaces = append(interfaces, h.name)
		}
	}
	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// emit calls fn for each hook in list. Failures are logged and never
// propagate to the caller.
func emit[T Plugin](ctx context.Context, r *Registry, hook string, list func(*Registry) []T, fn func(T) error) {
	r.mu.RLock()
	plugins := list(r)
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return fn(p)
		}); err != nil {
			r.logger.Warn("plugin "+hook+" failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine interface{}) {
	emit(ctx, r, "OnInit", func(r *Registry) []OnInit { return r.onInit },
		func(p OnInit) error { return p.OnInit(ctx, engine) })
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	emit(ctx, r, "OnShutdown", func(r *Registry) []OnShutdown { return r.onShutdown },
		func(p OnShutdown) error { return p.OnShutdown(ctx) })
}

// EmitTenantCreated emits a tenant created event.
func (r *Registry) EmitTenantCreated(ctx context.Context, t *tenant.Tenant) {
	emit(ctx, r, "OnTenantCreated", func(r *Registry) []OnTenantCreated { return r.onTenantCreated },
		func(p OnTenantCreated) error { return p.OnTenantCreated(ctx, t) })
}

// EmitTenantPlanChanged emits a plan change event.
func (r *Registry) EmitTenantPlanChanged(ctx context.Context, t *tenant.Tenant, oldPlanID, newPlanID string) {
	emit(ctx, r, "OnTenantPlanChanged", func(r *Registry) []OnTenantPlanChanged { return r.onTenantPlanChanged },
		func(p OnTenantPlanChanged) error { return p.OnTenantPlanChanged(ctx, t, oldPlanID, newPlanID) })
}

// EmitTenantSuspended emits a tenant suspended event.
func (r *Registry) EmitTenantSuspended(ctx context.Context, t *tenant.Tenant) {
	emit(ctx, r, "OnTenantSuspended", func(r *Registry) []OnTenantSuspended { return r.onTenantSuspended },
		func(p OnTenantSuspended) error { return p.OnTenantSuspended(ctx, t) })
}

// EmitTenantReactivated emits a tenant reactivated event.
func (r *Registry) EmitTenantReactivated(ctx context.Context, t *tenant.Tenant) {
	emit(ctx, r, "OnTenantReactivated", func(r *Registry) []OnTenantReactivated { return r.onTenantReactivated },
		func(p OnTenantReactivated) error { return p.OnTenantReactivated(ctx, t) })
}

// EmitMemberAdded emits a member added event.
func (r *Registry) EmitMemberAdded(ctx context.Context, m *tenant.Membership) {
	emit(ctx, r, "OnMemberAdded", func(r *Registry) []OnMemberAdded { return r.onMemberAdded },
		func(p OnMemberAdded) error { return p.OnMemberAdded(ctx, m) })
}

// EmitMemberRemoved emits a member removed event.
func (r *Registry) EmitMemberRemoved(ctx context.Context, m *tenant.Membership) {
	emit(ctx, r, "OnMemberRemoved", func(r *Registry) []OnMemberRemoved { return r.onMemberRemoved },
		func(p OnMemberRemoved) error { return p.OnMemberRemoved(ctx, m) })
}

// EmitMemberRoleChanged emits a role change event.
func (r *Registry) EmitMemberRoleChanged(ctx context.Context, m *tenant.Membership, oldRole tenant.Role) {
	emit(ctx, r, "OnMemberRoleChanged", func(r *Registry) []OnMemberRoleChanged { return r.onMemberRoleChanged },
		func(p OnMemberRoleChanged) error { return p.OnMemberRoleChanged(ctx, m, oldRole) })
}

// EmitContextLoaded emits a context loaded event.
func (r *Registry) EmitContextLoaded(ctx context.Context, tc *tenant.Context, elapsed time.Duration) {
	emit(ctx, r, "OnContextLoaded", func(r *Registry) []OnContextLoaded { return r.onContextLoaded },
		func(p OnContextLoaded) error { return p.OnContextLoaded(ctx, tc, elapsed) })
}

// EmitContextLoadFailed emits a context load failure event.
func (r *Registry) EmitContextLoadFailed(ctx context.Context, userID string, tenantID id.TenantID, loadErr error) {
	emit(ctx, r, "OnContextLoadFailed", func(r *Registry) []OnContextLoadFailed { return r.onContextLoadFailed },
		func(p OnContextLoadFailed) error { return p.OnContextLoadFailed(ctx, userID, tenantID, loadErr) })
}

// EmitCacheEvicted emits a cache eviction event.
func (r *Registry) EmitCacheEvicted(ctx context.Context, reason string, count int) {
	emit(ctx, r, "OnCacheEvicted", func(r *Registry) []OnCacheEvicted { return r.onCacheEvicted },
		func(p OnCacheEvicted) error { return p.OnCacheEvicted(ctx, reason, count) })
}

// EmitFeatureDenied emits a feature denial event.
func (r *Registry) EmitFeatureDenied(ctx context.Context, tc *tenant.Context, d gate.FeatureDecision) {
	emit(ctx, r, "OnFeatureDenied", func(r *Registry) []OnFeatureDenied { return r.onFeatureDenied },
		func(p OnFeatureDenied) error { return p.OnFeatureDenied(ctx, tc, d) })
}

// EmitLimitDenied emits a limit denial event.
func (r *Registry) EmitLimitDenied(ctx context.Context, tc *tenant.Context, d gate.LimitDecision) {
	emit(ctx, r, "OnLimitDenied", func(r *Registry) []OnLimitDenied { return r.onLimitDenied },
		func(p OnLimitDenied) error { return p.OnLimitDenied(ctx, tc, d) })
}

// EmitUsageRecorded emits a usage recorded event.
func (r *Registry) EmitUsageRecorded(ctx context.Context, out *usage.Outcome) {
	emit(ctx, r, "OnUsageRecorded", func(r *Registry) []OnUsageRecorded { return r.onUsageRecorded },
		func(p OnUsageRecorded) error { return p.OnUsageRecorded(ctx, out) })
}

// EmitUsageRecalculated emits a usage recalculated event.
func (r *Registry) EmitUsageRecalculated(ctx context.Context, tenantID id.TenantID, u *usage.Usage) {
	emit(ctx, r, "OnUsageRecalculated", func(r *Registry) []OnUsageRecalculated { return r.onUsageRecalculated },
		func(p OnUsageRecalculated) error { return p.OnUsageRecalculated(ctx, tenantID, u) })
}

// EmitAlertTransition routes an alert transition to the matching hook.
func (r *Registry) EmitAlertTransition(ctx context.Context, tr alert.Transition) {
	switch tr.Change {
	case alert.ChangeCreated:
		emit(ctx, r, "OnAlertCreated", func(r *Registry) []OnAlertCreated { return r.onAlertCreated },
			func(p OnAlertCreated) error { return p.OnAlertCreated(ctx, tr.Alert) })
	case alert.ChangeUpdated:
		emit(ctx, r, "OnAlertUpdated", func(r *Registry) []OnAlertUpdated { return r.onAlertUpdated },
			func(p OnAlertUpdated) error { return p.OnAlertUpdated(ctx, tr.Alert, tr.From) })
	case alert.ChangeResolved:
		emit(ctx, r, "OnAlertResolved", func(r *Registry) []OnAlertResolved { return r.onAlertResolved },
			func(p OnAlertResolved) error { return p.OnAlertResolved(ctx, tr.Alert) })
	}
}

// EmitAlertNotified emits a notification attempt event.
func (r *Registry) EmitAlertNotified(ctx context.Context, a *alert.Alert, sendErr error) {
	emit(ctx, r, "OnAlertNotified", func(r *Registry) []OnAlertNotified { return r.onAlertNotified },
		func(p OnAlertNotified) error { return p.OnAlertNotified(ctx, a, sendErr) })
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the request path.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}

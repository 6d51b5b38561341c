// Package plugin provides an extensible plugin system for the tenancy engine.
// Plugins can hook into lifecycle events to extend functionality.
package plugin

import (
	"context"
	"time"

	"github.com/xraph/tenancy/alert"
	"github.com/xraph/tenancy/gate"
	"github.com/xraph/tenancy/id"
	"github.com/xraph/tenancy/tenant"
	"github.com/xraph/tenancy/usage"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine interface{}) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Tenant lifecycle hooks
// ──────────────────────────────────────────────────

// OnTenantCreated is called after a tenant is persisted.
type OnTenantCreated interface {
	Plugin
	OnTenantCreated(ctx context.Context, t *tenant.Tenant) error
}

// OnTenantPlanChanged is called after a tenant moves to another plan.
type OnTenantPlanChanged interface {
	Plugin
	OnTenantPlanChanged(ctx context.Context, t *tenant.Tenant, oldPlanID, newPlanID string) error
}

// OnTenantSuspended is called after a tenant is suspended.
type OnTenantSuspended interface {
	Plugin
	OnTenantSuspended(ctx context.Context, t *tenant.Tenant) error
}

// OnTenantReactivated is called after a suspended tenant is reactivated.
type OnTenantReactivated interface {
	Plugin
	OnTenantReactivated(ctx context.Context, t *tenant.Tenant) error
}

// ──────────────────────────────────────────────────
// Membership hooks
// ──────────────────────────────────────────────────

// OnMemberAdded is called after a membership is created.
type OnMemberAdded interface {
	Plugin
	OnMemberAdded(ctx context.Context, m *tenant.Membership) error
}

// OnMemberRemoved is called after a membership is deactivated.
type OnMemberRemoved interface {
	Plugin
	OnMemberRemoved(ctx context.Context, m *tenant.Membership) error
}

// OnMemberRoleChanged is called after a member's role changes.
type OnMemberRoleChanged interface {
	Plugin
	OnMemberRoleChanged(ctx context.Context, m *tenant.Membership, oldRole tenant.Role) error
}

// ──────────────────────────────────────────────────
// Context cache hooks
// ──────────────────────────────────────────────────

// OnContextLoaded is called when a tenant context is resolved from the
// store on a cache miss.
type OnContextLoaded interface {
	Plugin
	OnContextLoaded(ctx context.Context, tc *tenant.Context, elapsed time.Duration) error
}

// OnContextLoadFailed is called when a cache miss could not be resolved.
type OnContextLoadFailed interface {
	Plugin
	OnContextLoadFailed(ctx context.Context, userID string, tenantID id.TenantID, err error) error
}

// OnCacheEvicted is called when entries leave the context cache.
type OnCacheEvicted interface {
	Plugin
	OnCacheEvicted(ctx context.Context, reason string, count int) error
}

// ──────────────────────────────────────────────────
// Gate hooks
// ──────────────────────────────────────────────────

// OnFeatureDenied is called when a feature check denies.
type OnFeatureDenied interface {
	Plugin
	OnFeatureDenied(ctx context.Context, tc *tenant.Context, d gate.FeatureDecision) error
}

// OnLimitDenied is called when a limit check denies.
type OnLimitDenied interface {
	Plugin
	OnLimitDenied(ctx context.Context, tc *tenant.Context, d gate.LimitDecision) error
}

// ──────────────────────────────────────────────────
// Usage hooks
// ──────────────────────────────────────────────────

// OnUsageRecorded is called after a counter write, including writes whose
// side effects degraded.
type OnUsageRecorded interface {
	Plugin
	OnUsageRecorded(ctx context.Context, out *usage.Outcome) error
}

// OnUsageRecalculated is called after a tenant's counters are rebuilt.
type OnUsageRecalculated interface {
	Plugin
	OnUsageRecalculated(ctx context.Context, tenantID id.TenantID, u *usage.Usage) error
}

// ──────────────────────────────────────────────────
// Alert hooks
// ──────────────────────────────────────────────────

// OnAlertCreated is called when a threshold breach opens an alert.
type OnAlertCreated interface {
	Plugin
	OnAlertCreated(ctx context.Context, a *alert.Alert) error
}

// OnAlertUpdated is called when an active alert changes level or value.
type OnAlertUpdated interface {
	Plugin
	OnAlertUpdated(ctx context.Context, a *alert.Alert, from alert.Type) error
}

// OnAlertResolved is called when usage drops below every threshold.
type OnAlertResolved interface {
	Plugin
	OnAlertResolved(ctx context.Context, a *alert.Alert) error
}

// OnAlertNotified is called after a notification attempt. err is nil on
// success.
type OnAlertNotified interface {
	Plugin
	OnAlertNotified(ctx context.Context, a *alert.Alert, err error) error
}

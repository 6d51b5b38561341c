// Package observability provides a metrics extension for the tenancy engine
// that records lifecycle event counts through a MetricFactory.
package observability

import (
	"context"
	"time"

	"github.com/xraph/tenancy/alert"
	"github.com/xraph/tenancy/gate"
	"github.com/xraph/tenancy/id"
	"github.com/xraph/tenancy/plugin"
	"github.com/xraph/tenancy/tenant"
	"github.com/xraph/tenancy/usage"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin              = (*MetricsExtension)(nil)
	_ plugin.OnInit              = (*MetricsExtension)(nil)
	_ plugin.OnTenantCreated     = (*MetricsExtension)(nil)
	_ plugin.OnTenantPlanChanged = (*MetricsExtension)(nil)
	_ plugin.OnTenantSuspended   = (*MetricsExtension)(nil)
	_ plugin.OnTenantReactivated = (*MetricsExtension)(nil)
	_ plugin.OnMemberAdded       = (*MetricsExtension)(nil)
	_ plugin.OnMemberRemoved     = (*MetricsExtension)(nil)
	_ plugin.OnMemberRoleChanged = (*MetricsExtension)(nil)
	_ plugin.OnContextLoaded     = (*MetricsExtension)(nil)
	_ plugin.OnContextLoadFailed = (*MetricsExtension)(nil)
	_ plugin.OnCacheEvicted      = (*MetricsExtension)(nil)
	_ plugin.OnFeatureDenied     = (*MetricsExtension)(nil)
	_ plugin.OnLimitDenied       = (*MetricsExtension)(nil)
	_ plugin.OnUsageRecorded     = (*MetricsExtension)(nil)
	_ plugin.OnUsageRecalculated = (*MetricsExtension)(nil)
	_ plugin.OnAlertCreated      = (*MetricsExtension)(nil)
	_ plugin.OnAlertUpdated      = (*MetricsExtension)(nil)
	_ plugin.OnAlertResolved     = (*MetricsExtension)(nil)
	_ plugin.OnAlertNotified     = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a plugin to automatically track tenancy metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Tenant metrics
	TenantCreated     Counter
	TenantPlanChanged Counter
	TenantSuspended   Counter
	TenantReactivated Counter

	// Membership metrics
	MemberAdded       Counter
	MemberRemoved     Counter
	MemberRoleChanged Counter

	// Context cache metrics
	ContextLoads       Counter
	ContextLoadErrors  Counter
	ContextLoadLatency Histogram
	CacheEvictions     Counter
	CacheExpired       Counter
	CacheInvalidations Counter

	// Gate metrics
	FeatureDenied   Counter
	LimitDenied     Counter
	LimitPercentage Histogram

	// Usage metrics
	UsageRecorded     Counter
	UsageDelta        Histogram
	UsageDegraded     Counter
	UsageRecalculated Counter

	// Alert metrics
	AlertCreated       Counter
	AlertEscalated     Counter
	AlertUpdated       Counter
	AlertResolved      Counter
	NotificationSent   Counter
	NotificationFailed Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided
// MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		TenantCreated:     factory.Counter("tenancy.tenant.created"),
		TenantPlanChanged: factory.Counter("tenancy.tenant.plan_changed"),
		TenantSuspended:   factory.Counter("tenancy.tenant.suspended"),
		TenantReactivated: factory.Counter("tenancy.tenant.reactivated"),

		MemberAdded:       factory.Counter("tenancy.member.added"),
		MemberRemoved:     factory.Counter("tenancy.member.removed"),
		MemberRoleChanged: factory.Counter("tenancy.member.role_changed"),

		ContextLoads:       factory.Counter("tenancy.context.loads"),
		ContextLoadErrors:  factory.Counter("tenancy.context.load_errors"),
		ContextLoadLatency: factory.Histogram("tenancy.context.load.latency_ms"),
		CacheEvictions:     factory.Counter("tenancy.cache.evictions"),
		CacheExpired:       factory.Counter("tenancy.cache.expired"),
		CacheInvalidations: factory.Counter("tenancy.cache.invalidations"),

		FeatureDenied:   factory.Counter("tenancy.gate.feature.denied"),
		LimitDenied:     factory.Counter("tenancy.gate.limit.denied"),
		LimitPercentage: factory.Histogram("tenancy.gate.limit.percentage"),

		UsageRecorded:     factory.Counter("tenancy.usage.recorded"),
		UsageDelta:        factory.Histogram("tenancy.usage.delta"),
		UsageDegraded:     factory.Counter("tenancy.usage.degraded"),
		UsageRecalculated: factory.Counter("tenancy.usage.recalculated"),

		AlertCreated:       factory.Counter("tenancy.alert.created"),
		AlertEscalated:     factory.Counter("tenancy.alert.escalated"),
		AlertUpdated:       factory.Counter("tenancy.alert.updated"),
		AlertResolved:      factory.Counter("tenancy.alert.resolved"),
		NotificationSent:   factory.Counter("tenancy.alert.notification.sent"),
		NotificationFailed: factory.Counter("tenancy.alert.notification.failed"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	return nil
}

// ──────────────────────────────────────────────────
// Tenant lifecycle hooks
// ──────────────────────────────────────────────────

// OnTenantCreated implements plugin.OnTenantCreated.
func (m *MetricsExtension) OnTenantCreated(_ context.Context, _ *tenant.Tenant) error {
	m.TenantCreated.Inc()
	return nil
}

// OnTenantPlanChanged implements plugin.OnTenantPlanChanged.
func (m *MetricsExtension) OnTenantPlanChanged(_ context.Context, _ *tenant.Tenant, _, _ string) error {
	m.TenantPlanChanged.Inc()
	return nil
}

// OnTenantSuspended implements plugin.OnTenantSuspended.
func (m *MetricsExtension) OnTenantSuspended(_ context.Context, _ *tenant.Tenant) error {
	m.TenantSuspended.Inc()
	return nil
}

// OnTenantReactivated implements plugin.OnTenantReactivated.
func (m *MetricsExtension) OnTenantReactivated(_ context.Context, _ *tenant.Tenant) error {
	m.TenantReactivated.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Membership hooks
// ──────────────────────────────────────────────────

// OnMemberAdded implements plugin.OnMemberAdded.
func (m *MetricsExtension) OnMemberAdded(_ context.Context, _ *tenant.Membership) error {
	m.MemberAdded.Inc()
	return nil
}

// OnMemberRemoved implements plugin.OnMemberRemoved.
func (m *MetricsExtension) OnMemberRemoved(_ context.Context, _ *tenant.Membership) error {
	m.MemberRemoved.Inc()
	return nil
}

// OnMemberRoleChanged implements plugin.OnMemberRoleChanged.
func (m *MetricsExtension) OnMemberRoleChanged(_ context.Context, _ *tenant.Membership, _ tenant.Role) error {
	m.MemberRoleChanged.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Context cache hooks
// ──────────────────────────────────────────────────

// OnContextLoaded implements plugin.OnContextLoaded.
func (m *MetricsExtension) OnContextLoaded(_ context.Context, _ *tenant.Context, elapsed time.Duration) error {
	m.ContextLoads.Inc()
	m.ContextLoadLatency.Observe(float64(elapsed.Milliseconds()))
	return nil
}

// OnContextLoadFailed implements plugin.OnContextLoadFailed.
func (m *MetricsExtension) OnContextLoadFailed(_ context.Context, _ string, _ id.TenantID, _ error) error {
	m.ContextLoadErrors.Inc()
	return nil
}

// OnCacheEvicted implements plugin.OnCacheEvicted.
func (m *MetricsExtension) OnCacheEvicted(_ context.Context, reason string, count int) error {
	switch reason {
	case "expired":
		m.CacheExpired.Add(float64(count))
	case "invalidate":
		m.CacheInvalidations.Add(float64(count))
	default:
		m.CacheEvictions.Add(float64(count))
	}
	return nil
}

// ──────────────────────────────────────────────────
// Gate hooks
// ──────────────────────────────────────────────────

// OnFeatureDenied implements plugin.OnFeatureDenied.
func (m *MetricsExtension) OnFeatureDenied(_ context.Context, _ *tenant.Context, _ gate.FeatureDecision) error {
	m.FeatureDenied.Inc()
	return nil
}

// OnLimitDenied implements plugin.OnLimitDenied.
func (m *MetricsExtension) OnLimitDenied(_ context.Context, _ *tenant.Context, d gate.LimitDecision) error {
	m.LimitDenied.Inc()
	m.LimitPercentage.Observe(d.Percentage)
	return nil
}

// ──────────────────────────────────────────────────
// Usage hooks
// ──────────────────────────────────────────────────

// OnUsageRecorded implements plugin.OnUsageRecorded.
func (m *MetricsExtension) OnUsageRecorded(_ context.Context, out *usage.Outcome) error {
	if out == nil || !out.Changed() {
		return nil
	}
	m.UsageRecorded.Inc()
	m.UsageDelta.Observe(float64(out.Applied))
	if out.Degraded() {
		m.UsageDegraded.Inc()
	}
	return nil
}

// OnUsageRecalculated implements plugin.OnUsageRecalculated.
func (m *MetricsExtension) OnUsageRecalculated(_ context.Context, _ id.TenantID, _ *usage.Usage) error {
	m.UsageRecalculated.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Alert hooks
// ──────────────────────────────────────────────────

// OnAlertCreated implements plugin.OnAlertCreated.
func (m *MetricsExtension) OnAlertCreated(_ context.Context, _ *alert.Alert) error {
	m.AlertCreated.Inc()
	return nil
}

// OnAlertUpdated implements plugin.OnAlertUpdated.
func (m *MetricsExtension) OnAlertUpdated(_ context.Context, a *alert.Alert, from alert.Type) error {
	m.AlertUpdated.Inc()
	if a != nil && a.Type.Severity() > from.Severity() {
		m.AlertEscalated.Inc()
	}
	return nil
}

// OnAlertResolved implements plugin.OnAlertResolved.
func (m *MetricsExtension) OnAlertResolved(_ context.Context, _ *alert.Alert) error {
	m.AlertResolved.Inc()
	return nil
}

// OnAlertNotified implements plugin.OnAlertNotified.
func (m *MetricsExtension) OnAlertNotified(_ context.Context, _ *alert.Alert, err error) error {
	if err != nil {
		m.NotificationFailed.Inc()
	} else {
		m.NotificationSent.Inc()
	}
	return nil
}

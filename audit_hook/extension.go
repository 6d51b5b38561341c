// Package audithook bridges tenancy lifecycle events to an audit trail
// backend.
//
// It defines a local Recorder interface so the package does not import
// Chronicle directly. Callers inject a RecorderFunc adapter that bridges
// to Chronicle at wiring time.
package audithook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/xraph/tenancy/alert"
	"github.com/xraph/tenancy/gate"
	"github.com/xraph/tenancy/id"
	"github.com/xraph/tenancy/plugin"
	"github.com/xraph/tenancy/tenant"
	"github.com/xraph/tenancy/usage"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin              = (*Extension)(nil)
	_ plugin.OnTenantCreated     = (*Extension)(nil)
	_ plugin.OnTenantPlanChanged = (*Extension)(nil)
	_ plugin.OnTenantSuspended   = (*Extension)(nil)
	_ plugin.OnTenantReactivated = (*Extension)(nil)
	_ plugin.OnMemberAdded       = (*Extension)(nil)
	_ plugin.OnMemberRemoved     = (*Extension)(nil)
	_ plugin.OnMemberRoleChanged = (*Extension)(nil)
	_ plugin.OnContextLoadFailed = (*Extension)(nil)
	_ plugin.OnFeatureDenied     = (*Extension)(nil)
	_ plugin.OnLimitDenied       = (*Extension)(nil)
	_ plugin.OnUsageRecorded     = (*Extension)(nil)
	_ plugin.OnUsageRecalculated = (*Extension)(nil)
	_ plugin.OnAlertCreated      = (*Extension)(nil)
	_ plugin.OnAlertUpdated      = (*Extension)(nil)
	_ plugin.OnAlertResolved     = (*Extension)(nil)
	_ plugin.OnAlertNotified     = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// This matches chronicle.Emitter but is defined locally so that the
// audit_hook package does not import Chronicle directly.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
// It mirrors chronicle/audit.Event but avoids a module dependency.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges tenancy lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Tenant lifecycle hooks
// ──────────────────────────────────────────────────

// OnTenantCreated implements plugin.OnTenantCreated.
func (e *Extension) OnTenantCreated(ctx context.Context, t *tenant.Tenant) error {
	return e.record(ctx, ActionTenantCreated, SeverityInfo, OutcomeSuccess,
		ResourceTenant, t.ID.String(), CategoryTenant, nil,
		"slug", t.Slug,
		"plan_id", t.PlanID,
		"status", string(t.Status),
	)
}

// OnTenantPlanChanged implements plugin.OnTenantPlanChanged.
func (e *Extension) OnTenantPlanChanged(ctx context.Context, t *tenant.Tenant, oldPlanID, newPlanID string) error {
	return e.record(ctx, ActionTenantPlanChanged, SeverityInfo, OutcomeSuccess,
		ResourceTenant, t.ID.String(), CategoryTenant, nil,
		"old_plan_id", oldPlanID,
		"new_plan_id", newPlanID,
	)
}

// OnTenantSuspended implements plugin.OnTenantSuspended.
func (e *Extension) OnTenantSuspended(ctx context.Context, t *tenant.Tenant) error {
	return e.record(ctx, ActionTenantSuspended, SeverityWarning, OutcomeSuccess,
		ResourceTenant, t.ID.String(), CategoryTenant, nil,
		"status", string(t.Status),
	)
}

// OnTenantReactivated implements plugin.OnTenantReactivated.
func (e *Extension) OnTenantReactivated(ctx context.Context, t *tenant.Tenant) error {
	return e.record(ctx, ActionTenantReactivated, SeverityInfo, OutcomeSuccess,
		ResourceTenant, t.ID.String(), CategoryTenant, nil,
		"status", string(t.Status),
	)
}

// ──────────────────────────────────────────────────
// Membership hooks
// ──────────────────────────────────────────────────

// OnMemberAdded implements plugin.OnMemberAdded.
func (e *Extension) OnMemberAdded(ctx context.Context, m *tenant.Membership) error {
	return e.record(ctx, ActionMemberAdded, SeverityInfo, OutcomeSuccess,
		ResourceMembership, m.ID.String(), CategoryMember, nil,
		"tenant_id", m.TenantID.String(),
		"user_id", m.UserID,
		"role", string(m.Role),
	)
}

// OnMemberRemoved implements plugin.OnMemberRemoved.
func (e *Extension) OnMemberRemoved(ctx context.Context, m *tenant.Membership) error {
	return e.record(ctx, ActionMemberRemoved, SeverityInfo, OutcomeSuccess,
		ResourceMembership, m.ID.String(), CategoryMember, nil,
		"tenant_id", m.TenantID.String(),
		"user_id", m.UserID,
	)
}

// OnMemberRoleChanged implements plugin.OnMemberRoleChanged.
func (e *Extension) OnMemberRoleChanged(ctx context.Context, m *tenant.Membership, oldRole tenant.Role) error {
	return e.record(ctx, ActionMemberRoleChanged, SeverityInfo, OutcomeSuccess,
		ResourceMembership, m.ID.String(), CategoryMember, nil,
		"tenant_id", m.TenantID.String(),
		"user_id", m.UserID,
		"old_role", string(oldRole),
		"new_role", string(m.Role),
	)
}

// ──────────────────────────────────────────────────
// Access hooks
// ──────────────────────────────────────────────────

// OnContextLoadFailed implements plugin.OnContextLoadFailed. Only business
// denials are audited; infrastructure failures belong in logs.
func (e *Extension) OnContextLoadFailed(ctx context.Context, userID string, tenantID id.TenantID, err error) error {
	severity := SeverityWarning
	switch {
	case errors.Is(err, tenant.ErrAccessDenied):
	case errors.Is(err, tenant.ErrNoContext):
		severity = SeverityInfo
	default:
		return nil
	}
	return e.record(ctx, ActionContextDenied, severity, OutcomeFailure,
		ResourceTenant, tenantID.String(), CategoryAccess, err,
		"user_id", userID,
	)
}

// OnFeatureDenied implements plugin.OnFeatureDenied.
func (e *Extension) OnFeatureDenied(ctx context.Context, tc *tenant.Context, d gate.FeatureDecision) error {
	return e.record(ctx, ActionFeatureDenied, SeverityInfo, OutcomeFailure,
		ResourceFeature, d.Feature, CategoryAccess, nil,
		"tenant_id", tenantOf(tc),
		"plan_id", d.PlanID,
		"reason", d.Reason,
		"upgrade_hint", d.UpgradeHint,
	)
}

// OnLimitDenied implements plugin.OnLimitDenied.
func (e *Extension) OnLimitDenied(ctx context.Context, tc *tenant.Context, d gate.LimitDecision) error {
	return e.record(ctx, ActionLimitDenied, SeverityWarning, OutcomeFailure,
		ResourceLimit, string(d.LimitKey), CategoryAccess, nil,
		"tenant_id", tenantOf(tc),
		"plan_id", d.PlanID,
		"current", d.CurrentUsage,
		"limit", d.Limit,
		"percentage", d.Percentage,
		"upgrade_hint", d.UpgradeHint,
	)
}

// ──────────────────────────────────────────────────
// Usage hooks
// ──────────────────────────────────────────────────

// OnUsageRecorded implements plugin.OnUsageRecorded. Only writes whose side
// effects failed are audited.
func (e *Extension) OnUsageRecorded(ctx context.Context, out *usage.Outcome) error {
	if out == nil || !out.Degraded() {
		return nil
	}
	return e.record(ctx, ActionUsageDegraded, SeverityError, OutcomePartial,
		ResourceUsage, out.TenantID.String(), CategoryUsage, out.SideEffectErr(),
		"metric", string(out.Metric),
		"applied", out.Applied,
		"current", out.Current,
	)
}

// OnUsageRecalculated implements plugin.OnUsageRecalculated.
func (e *Extension) OnUsageRecalculated(ctx context.Context, tenantID id.TenantID, u *usage.Usage) error {
	return e.record(ctx, ActionUsageRecalculated, SeverityInfo, OutcomeSuccess,
		ResourceUsage, tenantID.String(), CategoryUsage, nil,
		"users", u.Users,
		"events", u.Events,
		"storage", u.Storage,
		"api_calls", u.APICalls,
	)
}

// ──────────────────────────────────────────────────
// Alert hooks
// ──────────────────────────────────────────────────

// OnAlertCreated implements plugin.OnAlertCreated.
func (e *Extension) OnAlertCreated(ctx context.Context, a *alert.Alert) error {
	return e.record(ctx, ActionAlertCreated, alertSeverity(a.Type), OutcomeSuccess,
		ResourceAlert, a.ID.String(), CategoryAlert, nil,
		alertPairs(a)...,
	)
}

// OnAlertUpdated implements plugin.OnAlertUpdated.
func (e *Extension) OnAlertUpdated(ctx context.Context, a *alert.Alert, from alert.Type) error {
	return e.record(ctx, ActionAlertUpdated, alertSeverity(a.Type), OutcomeSuccess,
		ResourceAlert, a.ID.String(), CategoryAlert, nil,
		append(alertPairs(a), "from", string(from))...,
	)
}

// OnAlertResolved implements plugin.OnAlertResolved.
func (e *Extension) OnAlertResolved(ctx context.Context, a *alert.Alert) error {
	return e.record(ctx, ActionAlertResolved, SeverityInfo, OutcomeSuccess,
		ResourceAlert, a.ID.String(), CategoryAlert, nil,
		alertPairs(a)...,
	)
}

// OnAlertNotified implements plugin.OnAlertNotified.
func (e *Extension) OnAlertNotified(ctx context.Context, a *alert.Alert, err error) error {
	outcome, severity := OutcomeSuccess, SeverityInfo
	if err != nil {
		outcome, severity = OutcomeFailure, SeverityError
	}
	return e.record(ctx, ActionAlertNotified, severity, outcome,
		ResourceAlert, a.ID.String(), CategoryNotify, err,
		alertPairs(a)...,
	)
}

func alertSeverity(t alert.Type) string {
	switch t {
	case alert.TypeExceeded:
		return SeverityCritical
	case alert.TypeCritical:
		return SeverityWarning
	}
	return SeverityInfo
}

func alertPairs(a *alert.Alert) []any {
	return []any{
		"tenant_id", a.TenantID.String(),
		"metric", string(a.Metric),
		"type", string(a.Type),
		"current", a.CurrentValue,
		"limit", a.Limit,
		"percentage", a.Percentage,
	}
}

func tenantOf(tc *tenant.Context) string {
	if tc == nil {
		return ""
	}
	return tc.TenantID.String()
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}

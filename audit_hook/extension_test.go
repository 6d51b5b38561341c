package audithook_test

import (
	"context"
	"errors"
	"testing"

	"github.com/xraph/tenancy/alert"
	audithook "github.com/xraph/tenancy/audit_hook"
	"github.com/xraph/tenancy/gate"
	"github.com/xraph/tenancy/id"
	"github.com/xraph/tenancy/tenant"
	"github.com/xraph/tenancy/usage"
)

type captured struct {
	events []*audithook.AuditEvent
}

func (c *captured) recorder() audithook.Recorder {
	return audithook.RecorderFunc(func(_ context.Context, e *audithook.AuditEvent) error {
		c.events = append(c.events, e)
		return nil
	})
}

func TestAuditRecordsLimitDenial(t *testing.T) {
	c := &captured{}
	ext := audithook.New(c.recorder())
	tc := &tenant.Context{TenantID: id.NewTenantID()}

	err := ext.OnLimitDenied(context.Background(), tc, gate.LimitDecision{
		LimitKey: "maxUsers", CurrentUsage: 25, Limit: 25, Percentage: 100, PlanID: "basic", UpgradeHint: "pro",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(c.events) != 1 {
		t.Fatalf("events = %d, want 1", len(c.events))
	}
	e := c.events[0]
	if e.Action != audithook.ActionLimitDenied || e.Outcome != audithook.OutcomeFailure || e.ResourceID != "maxUsers" {
		t.Errorf("unexpected event: %+v", e)
	}
	if e.Metadata["upgrade_hint"] != "pro" || e.Metadata["tenant_id"] != tc.TenantID.String() {
		t.Errorf("unexpected metadata: %v", e.Metadata)
	}
}

func TestAuditSkipsInfrastructureAndHealthyUsage(t *testing.T) {
	c := &captured{}
	ext := audithook.New(c.recorder())
	ctx := context.Background()

	_ = ext.OnContextLoadFailed(ctx, "u1", id.NewTenantID(), errors.New("dial tcp: refused"))
	_ = ext.OnUsageRecorded(ctx, &usage.Outcome{Applied: 1})
	if len(c.events) != 0 {
		t.Fatalf("expected nothing audited, got %d", len(c.events))
	}

	_ = ext.OnContextLoadFailed(ctx, "u1", id.NewTenantID(), tenant.ErrAccessDenied)
	_ = ext.OnUsageRecorded(ctx, &usage.Outcome{Applied: 1, AlertErr: errors.New("alert store down")})
	if len(c.events) != 2 {
		t.Fatalf("events = %d, want 2", len(c.events))
	}
	if c.events[1].Outcome != audithook.OutcomePartial || c.events[1].Reason == "" {
		t.Errorf("degraded usage event = %+v", c.events[1])
	}
}

func TestAuditActionFilters(t *testing.T) {
	ctx := context.Background()
	a := &alert.Alert{ID: id.NewAlertID(), Type: alert.TypeExceeded}

	c := &captured{}
	ext := audithook.New(c.recorder(), audithook.WithDisabledActions(audithook.ActionAlertUpdated))
	_ = ext.OnAlertCreated(ctx, a)
	_ = ext.OnAlertUpdated(ctx, a, alert.TypeWarning)
	if len(c.events) != 1 || c.events[0].Action != audithook.ActionAlertCreated {
		t.Errorf("disabled action was recorded: %+v", c.events)
	}
	if c.events[0].Severity != audithook.SeverityCritical {
		t.Errorf("exceeded alert severity = %q", c.events[0].Severity)
	}

	only := &captured{}
	ext = audithook.New(only.recorder(), audithook.WithEnabledActions(audithook.ActionAlertResolved))
	_ = ext.OnAlertCreated(ctx, a)
	_ = ext.OnAlertResolved(ctx, a)
	if len(only.events) != 1 || only.events[0].Action != audithook.ActionAlertResolved {
		t.Errorf("enabled filter mismatch: %+v", only.events)
	}
}

func TestAuditRecorderFailureIsSwallowed(t *testing.T) {
	ext := audithook.New(audithook.RecorderFunc(func(context.Context, *audithook.AuditEvent) error {
		return errors.New("chronicle down")
	}))
	if err := ext.OnTenantCreated(context.Background(), &tenant.Tenant{ID: id.NewTenantID()}); err != nil {
		t.Errorf("recorder failures must not propagate: %v", err)
	}
}

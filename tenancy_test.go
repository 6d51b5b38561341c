package tenancy_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/xraph/tenancy"
	"github.com/xraph/tenancy/alert"
	"github.com/xraph/tenancy/gate"
	"github.com/xraph/tenancy/id"
	"github.com/xraph/tenancy/scheduler"
	"github.com/xraph/tenancy/store/memory"
	"github.com/xraph/tenancy/tenant"
	"github.com/xraph/tenancy/usage"
)

type hookRecorder struct {
	mu      sync.Mutex
	denied  []gate.LimitDecision
	created []*alert.Alert
	sent    int
}

func (h *hookRecorder) Name() string { return "recorder" }

func (h *hookRecorder) OnLimitDenied(_ context.Context, _ *tenant.Context, d gate.LimitDecision) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.denied = append(h.denied, d)
	return nil
}

func (h *hookRecorder) OnAlertCreated(_ context.Context, a *alert.Alert) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.created = append(h.created, a)
	return nil
}

func (h *hookRecorder) OnAlertNotified(_ context.Context, _ *alert.Alert, err error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err == nil {
		h.sent++
	}
	return nil
}

type fixture struct {
	engine *tenancy.Engine
	store  *memory.Store
	clock  *clockwork.FakeClock
	hooks  *hookRecorder
}

func newFixture(t *testing.T, opts ...tenancy.Option) *fixture {
	t.Helper()
	f := &fixture{
		store: memory.New(),
		clock: clockwork.NewFakeClockAt(time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)),
		hooks: &hookRecorder{},
	}
	opts = append([]tenancy.Option{
		tenancy.WithClock(f.clock),
		tenancy.WithPlugin(f.hooks),
		tenancy.WithSchedule(scheduler.Config{}),
	}, opts...)
	f.engine = tenancy.New(f.store, opts...)
	return f
}

func (f *fixture) tenant(t *testing.T, planID string) *tenant.Tenant {
	t.Helper()
	tn := &tenant.Tenant{Name: "Acme", PlanID: planID}
	if err := f.engine.CreateTenant(context.Background(), tn); err != nil {
		t.Fatalf("CreateTenant: %v", err)
	}
	return tn
}

func TestBasicPlanUserLimitLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	tn := f.tenant(t, "basic")

	if _, err := f.engine.AddMember(ctx, tn.ID, "owner", tenant.RoleOwner); err != nil {
		t.Fatal(err)
	}
	seed := usage.Mutation{Op: usage.OpSet, Metric: usage.MetricUsers, Amount: 24}
	if _, _, err := f.store.ApplyUsage(ctx, tn.ID, seed, nil); err != nil {
		t.Fatal(err)
	}

	tc, err := f.engine.GetContext(ctx, "owner", tn.ID)
	if err != nil {
		t.Fatal(err)
	}

	d, err := f.engine.CheckLimit(ctx, tc, tenancy.LimitMaxUsers)
	if err != nil {
		t.Fatal(err)
	}
	if !d.Allowed || d.Percentage != 96 {
		t.Fatalf("at 24/25: allowed=%v pct=%v, want allowed at 96%%", d.Allowed, d.Percentage)
	}

	out, err := f.engine.RecordUsage(ctx, tn.ID, tenancy.MetricUsers, 1, "invite", nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.Current != 25 || out.Degraded() {
		t.Fatalf("outcome = %+v", out)
	}
	if out.Evaluation == nil || out.Evaluation.Change != string(alert.ChangeCreated) || out.Evaluation.Level != string(alert.TypeExceeded) {
		t.Fatalf("evaluation = %+v, want created exceeded", out.Evaluation)
	}

	d, err = f.engine.CheckLimit(ctx, tc, tenancy.LimitMaxUsers)
	if err != nil {
		t.Fatal(err)
	}
	if d.Allowed || d.UpgradeHint != "pro" {
		t.Fatalf("at 25/25: %+v, want denied with pro hint", d)
	}
	if !errors.Is(d.Err(), tenancy.ErrLimitExceeded) || !tenancy.IsAccessDenied(d.Err()) {
		t.Errorf("denial error = %v", d.Err())
	}
	if len(f.hooks.denied) != 1 {
		t.Errorf("limit denied hooks = %d, want 1", len(f.hooks.denied))
	}

	active, err := f.engine.GetActiveAlerts(ctx, tn.ID)
	if err != nil || len(active) != 1 {
		t.Fatalf("active alerts = %v (%v), want 1", active, err)
	}
	alertID := active[0].ID

	if _, err := f.engine.RecordUsage(ctx, tn.ID, tenancy.MetricUsers, -1, "removal", nil); err != nil {
		t.Fatal(err)
	}
	active, _ = f.engine.GetActiveAlerts(ctx, tn.ID)
	if len(active) != 1 || active[0].ID != alertID {
		t.Fatalf("alert must be updated in place, got %+v", active)
	}
	if active[0].Type != alert.TypeCritical || active[0].CurrentValue != 24 || active[0].Percentage != 96 {
		t.Errorf("downgraded alert = %+v", active[0])
	}
	if len(f.hooks.created) != 1 {
		t.Errorf("alert created hooks = %d, want 1", len(f.hooks.created))
	}
}

func TestSuspendedTenantDeniesContext(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	tn := f.tenant(t, "")
	if tn.PlanID != "free" || tn.Status != tenant.StatusActive {
		t.Fatalf("defaults not applied: plan=%q status=%q", tn.PlanID, tn.Status)
	}
	if _, err := f.engine.AddMember(ctx, tn.ID, "u1", tenant.RoleMember); err != nil {
		t.Fatal(err)
	}
	if _, err := f.engine.GetContext(ctx, "u1", tn.ID); err != nil {
		t.Fatal(err)
	}

	if _, err := f.engine.SuspendTenant(ctx, tn.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.engine.GetContext(ctx, "u1", tn.ID); !tenancy.IsAccessDenied(err) {
		t.Errorf("suspended tenant: err = %v, want access denied", err)
	}

	if _, err := f.engine.ReactivateTenant(ctx, tn.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.engine.ReactivateTenant(ctx, tn.ID); !errors.Is(err, tenancy.ErrInvalidStatus) {
		t.Errorf("reactivating an active tenant: err = %v", err)
	}
	if _, err := f.engine.GetContext(ctx, "u1", tn.ID); err != nil {
		t.Errorf("reactivated tenant: %v", err)
	}
}

func TestChangePlanRefreshesContextAndResolvesAlerts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	tn := f.tenant(t, "basic")
	if _, err := f.engine.AddMember(ctx, tn.ID, "owner", tenant.RoleOwner); err != nil {
		t.Fatal(err)
	}
	if _, err := f.engine.SetUsage(ctx, tn.ID, tenancy.MetricUsers, 25, "import", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := f.engine.GetContext(ctx, "owner", tn.ID); err != nil {
		t.Fatal(err)
	}

	if _, err := f.engine.ChangePlan(ctx, tn.ID, "pro"); err != nil {
		t.Fatal(err)
	}

	tc, err := f.engine.GetContext(ctx, "owner", tn.ID)
	if err != nil {
		t.Fatal(err)
	}
	if tc.Plan.ID != "pro" {
		t.Errorf("cached context kept plan %q after plan change", tc.Plan.ID)
	}
	if active, _ := f.engine.GetActiveAlerts(ctx, tn.ID); len(active) != 0 {
		t.Errorf("alerts should resolve under the larger plan, got %d", len(active))
	}

	if _, err := f.engine.ChangePlan(ctx, tn.ID, "platinum"); !tenancy.IsNotFound(err) {
		t.Errorf("unknown plan: err = %v", err)
	}
}

func TestRemoveMember(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	tn := f.tenant(t, "basic")
	for _, u := range []string{"a", "b"} {
		if _, err := f.engine.AddMember(ctx, tn.ID, u, tenant.RoleMember); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := f.engine.GetContext(ctx, "b", tn.ID); err != nil {
		t.Fatal(err)
	}

	if err := f.engine.RemoveMember(ctx, tn.ID, "b"); err != nil {
		t.Fatal(err)
	}
	u, _ := f.engine.GetUsage(ctx, tn.ID)
	if u.Users != 1 {
		t.Errorf("users = %d, want 1", u.Users)
	}
	if _, err := f.engine.GetContext(ctx, "b", tn.ID); !tenancy.IsNotFound(err) {
		t.Errorf("removed member: err = %v, want no context", err)
	}
	if err := f.engine.RemoveMember(ctx, tn.ID, "b"); !tenancy.IsNotFound(err) {
		t.Errorf("second removal: err = %v", err)
	}
}

func TestChangeRoleInvalidatesUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	tn := f.tenant(t, "basic")
	if _, err := f.engine.AddMember(ctx, tn.ID, "u", tenant.RoleViewer); err != nil {
		t.Fatal(err)
	}
	tc, _ := f.engine.GetContext(ctx, "u", tn.ID)
	if d, _ := f.engine.CheckPermission(ctx, tc, "events.write"); d.Allowed {
		t.Fatal("viewer must not write events")
	}

	if _, err := f.engine.ChangeRole(ctx, tn.ID, "u", tenant.RoleMember); err != nil {
		t.Fatal(err)
	}
	tc, _ = f.engine.GetContext(ctx, "u", tn.ID)
	if d, err := f.engine.CheckPermission(ctx, tc, "events.write"); err != nil || !d.Allowed {
		t.Errorf("member after role change: %+v (%v)", d, err)
	}

	if _, err := f.engine.ChangeRole(ctx, tn.ID, "u", "superuser"); !tenancy.IsInvalid(err) {
		t.Errorf("invalid role: err = %v", err)
	}
}

func TestCreateTenantValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		in    *tenant.Tenant
		check func(error) bool
	}{
		{"missing name", &tenant.Tenant{}, tenancy.IsInvalid},
		{"bad status", &tenant.Tenant{Name: "x", Status: "frozen"}, tenancy.IsInvalid},
		{"unknown plan", &tenant.Tenant{Name: "x", PlanID: "platinum"}, tenancy.IsNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.engine.CreateTenant(ctx, tt.in)
			if err == nil || !tt.check(err) {
				t.Errorf("err = %v", err)
			}
			if tenancy.IsInfrastructure(err) {
				t.Errorf("domain error classified as infrastructure: %v", err)
			}
		})
	}
}

func TestRecalculateAllSkipsSuspended(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	active := f.tenant(t, "basic")
	suspended := f.tenant(t, "basic")

	f.store.RecordEvent(active.ID, 5)
	f.store.RecordEvent(suspended.ID, 7)
	if _, err := f.engine.SuspendTenant(ctx, suspended.ID); err != nil {
		t.Fatal(err)
	}

	if err := f.engine.RecalculateAll(ctx); err != nil {
		t.Fatal(err)
	}
	if u, _ := f.engine.GetUsage(ctx, active.ID); u.Events != 5 {
		t.Errorf("active tenant events = %d, want 5", u.Events)
	}
	if u, _ := f.engine.GetUsage(ctx, suspended.ID); u.Events != 0 {
		t.Errorf("suspended tenant was recalculated: events = %d", u.Events)
	}
}

func TestDispatchNotificationsHourly(t *testing.T) {
	ctx := context.Background()
	var sent []id.AlertID
	f := newFixture(t, tenancy.WithNotifier(alert.NotifierFunc(func(_ context.Context, a *alert.Alert) error {
		sent = append(sent, a.ID)
		return nil
	})))
	tn := f.tenant(t, "basic")
	if _, err := f.engine.SetUsage(ctx, tn.ID, tenancy.MetricEvents, 100, "import", nil); err != nil {
		t.Fatal(err)
	}

	report, err := f.engine.DispatchNotifications(ctx)
	if err != nil || report.Sent != 1 {
		t.Fatalf("first sweep: %+v (%v)", report, err)
	}
	report, _ = f.engine.DispatchNotifications(ctx)
	if report.Sent != 0 {
		t.Errorf("second sweep within the hour sent %d", report.Sent)
	}

	f.clock.Advance(61 * time.Minute)
	report, _ = f.engine.DispatchNotifications(ctx)
	if report.Sent != 1 || len(sent) != 2 {
		t.Errorf("after an hour: report=%+v sent=%d", report, len(sent))
	}
	if f.hooks.sent != 2 {
		t.Errorf("notified hooks = %d, want 2", f.hooks.sent)
	}
}

func TestUsageDropDuringNotificationResolvesAlert(t *testing.T) {
	ctx := context.Background()
	var engine *tenancy.Engine
	var tenantID id.TenantID
	f := newFixture(t, tenancy.WithNotifier(alert.NotifierFunc(func(ctx context.Context, a *alert.Alert) error {
		_, err := engine.RecordUsage(ctx, tenantID, tenancy.MetricUsers, -10, "offboarding", nil)
		return err
	})))
	engine = f.engine
	tn := f.tenant(t, "basic")
	tenantID = tn.ID

	if _, err := f.engine.SetUsage(ctx, tn.ID, tenancy.MetricUsers, 25, "import", nil); err != nil {
		t.Fatal(err)
	}
	if active, _ := f.engine.GetActiveAlerts(ctx, tn.ID); len(active) != 1 || active[0].Type != alert.TypeExceeded {
		t.Fatalf("expected one exceeded alert, got %+v", active)
	}

	report, err := f.engine.DispatchNotifications(ctx)
	if err != nil || report.Sent != 1 {
		t.Fatalf("sweep: %+v (%v)", report, err)
	}

	if u, _ := f.engine.GetUsage(ctx, tn.ID); u.Users != 15 {
		t.Errorf("users = %d, want 15", u.Users)
	}
	active, err := f.engine.GetActiveAlerts(ctx, tn.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 0 {
		t.Errorf("alert at 60%% must stay resolved, active = %+v", active[0])
	}
}

func TestCleanupPurgesOldRecords(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	tn := f.tenant(t, "basic")
	if _, err := f.engine.RecordUsage(ctx, tn.ID, tenancy.MetricEvents, 3, "ingest", nil); err != nil {
		t.Fatal(err)
	}

	f.clock.Advance(48 * time.Hour)
	if err := f.engine.Cleanup(ctx, f.clock.Now().Add(-24*time.Hour)); err != nil {
		t.Fatal(err)
	}
	recs, err := f.engine.UsageHistory(ctx, tn.ID, usage.QueryOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 0 {
		t.Errorf("records after cleanup = %d, want 0", len(recs))
	}
	if u, _ := f.engine.GetUsage(ctx, tn.ID); u.Events != 3 {
		t.Errorf("cleanup must not touch counters, events = %d", u.Events)
	}
}

func TestStartStop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.engine.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := f.engine.Start(ctx); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if err := f.engine.Stop(); err != nil {
		t.Fatal(err)
	}
}

func TestErrorClassification(t *testing.T) {
	infra := errors.New("dial tcp: connection refused")
	tests := []struct {
		err                      error
		notFound, denied, infraE bool
	}{
		{tenancy.ErrNoContext, true, false, false},
		{tenancy.ErrAccessDenied, false, true, false},
		{gate.ErrLimitExceeded, false, true, false},
		{tenancy.ErrMembershipNotFound, true, false, false},
		{infra, false, false, true},
		{tenancy.MultiError{Errors: []error{tenancy.ErrPlanNotFound}}, true, false, false},
	}
	for i, tt := range tests {
		if got := tenancy.IsNotFound(tt.err); got != tt.notFound {
			t.Errorf("%d: IsNotFound = %v", i, got)
		}
		if got := tenancy.IsAccessDenied(tt.err); got != tt.denied {
			t.Errorf("%d: IsAccessDenied = %v", i, got)
		}
		if got := tenancy.IsInfrastructure(tt.err); got != tt.infraE {
			t.Errorf("%d: IsInfrastructure = %v", i, got)
		}
	}
	if tenancy.IsInfrastructure(nil) {
		t.Error("nil is not an infrastructure error")
	}
}

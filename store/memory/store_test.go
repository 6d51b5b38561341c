package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/tenancy/alert"
	"github.com/xraph/tenancy/id"
	"github.com/xraph/tenancy/tenant"
	"github.com/xraph/tenancy/types"
	"github.com/xraph/tenancy/usage"
)

func seedTenant(t *testing.T, s *Store, slug string) *tenant.Tenant {
	t.Helper()
	ten := &tenant.Tenant{
		Entity: types.NewEntity(),
		ID:     id.NewTenantID(),
		Name:   "Tenant " + slug,
		Slug:   slug,
		PlanID: "free",
		Status: tenant.StatusActive,
	}
	if err := s.CreateTenant(context.Background(), ten); err != nil {
		t.Fatal(err)
	}
	return ten
}

func TestTenantSlugUniqueness(t *testing.T) {
	ctx := context.Background()
	s := New()
	a := seedTenant(t, s, "acme")

	dup := &tenant.Tenant{ID: id.NewTenantID(), Name: "Other", Slug: "acme", Status: tenant.StatusActive}
	if err := s.CreateTenant(ctx, dup); !errors.Is(err, tenant.ErrAlreadyExists) {
		t.Fatalf("duplicate slug: err = %v", err)
	}

	got, err := s.GetTenantBySlug(ctx, "acme")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != a.ID {
		t.Errorf("slug lookup returned %s, want %s", got.ID, a.ID)
	}

	// Renaming the slug frees the old one.
	a.Slug = "acme-inc"
	if err := s.UpdateTenant(ctx, a); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetTenantBySlug(ctx, "acme"); !errors.Is(err, tenant.ErrNotFound) {
		t.Errorf("old slug still resolves: %v", err)
	}
	if err := s.CreateTenant(ctx, dup); err != nil {
		t.Errorf("freed slug rejected: %v", err)
	}
}

func TestUpdateTenantPreservesUsage(t *testing.T) {
	ctx := context.Background()
	s := New()
	ten := seedTenant(t, s, "")

	if _, _, err := s.ApplyUsage(ctx, ten.ID, inc(usage.MetricEvents, 7), nil); err != nil {
		t.Fatal(err)
	}

	ten.PlanID = "pro"
	ten.Usage = usage.Usage{}
	if err := s.UpdateTenant(ctx, ten); err != nil {
		t.Fatal(err)
	}

	got, _ := s.GetTenant(ctx, ten.ID)
	if got.PlanID != "pro" || got.Usage.Events != 7 {
		t.Errorf("tenant = %+v, usage must survive an update", got)
	}
}

func TestListTenantsFiltersAndPaginates(t *testing.T) {
	ctx := context.Background()
	s := New()
	for i := 0; i < 5; i++ {
		seedTenant(t, s, "")
	}
	suspended := seedTenant(t, s, "")
	suspended.Status = tenant.StatusSuspended
	if err := s.UpdateTenant(ctx, suspended); err != nil {
		t.Fatal(err)
	}

	active, err := s.ListTenants(ctx, tenant.ListOpts{Statuses: []tenant.Status{tenant.StatusActive}})
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 5 {
		t.Errorf("active tenants = %d, want 5", len(active))
	}

	page, _ := s.ListTenants(ctx, tenant.ListOpts{Limit: 4, Offset: 4})
	if len(page) != 2 {
		t.Errorf("second page = %d, want 2", len(page))
	}
}

func TestActiveMembershipUniqueness(t *testing.T) {
	ctx := context.Background()
	s := New()
	ten := seedTenant(t, s, "")

	m := &tenant.Membership{
		Entity:   types.NewEntity(),
		ID:       id.NewMembershipID(),
		TenantID: ten.ID,
		UserID:   "user_1",
		Role:     tenant.RoleMember,
		IsActive: true,
	}
	if err := s.CreateMembership(ctx, m); err != nil {
		t.Fatal(err)
	}

	again := *m
	again.ID = id.NewMembershipID()
	if err := s.CreateMembership(ctx, &again); !errors.Is(err, tenant.ErrMembershipExists) {
		t.Fatalf("second active membership: err = %v", err)
	}

	m.IsActive = false
	if err := s.UpdateMembership(ctx, m); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetActiveMembership(ctx, ten.ID, "user_1"); !errors.Is(err, tenant.ErrMembershipNotFound) {
		t.Errorf("deactivated membership still active: %v", err)
	}
	if err := s.CreateMembership(ctx, &again); err != nil {
		t.Errorf("rejoin after deactivation: %v", err)
	}

	all, _ := s.ListMemberships(ctx, "user_1")
	if len(all) != 2 {
		t.Errorf("memberships = %d, want 2", len(all))
	}
}

func inc(m usage.Metric, n int64) usage.Mutation {
	return usage.Mutation{Op: usage.OpIncrement, Metric: m, Amount: n}
}

func TestCounterOperations(t *testing.T) {
	ctx := context.Background()
	s := New()
	ten := seedTenant(t, s, "")

	prev, cur, err := s.ApplyUsage(ctx, ten.ID, inc(usage.MetricStorage, 100), nil)
	if err != nil || prev != 0 || cur != 100 {
		t.Fatalf("increment = (%d, %d), %v", prev, cur, err)
	}

	dec := usage.Mutation{Op: usage.OpDecrement, Metric: usage.MetricStorage, Amount: 150}
	prev, cur, err = s.ApplyUsage(ctx, ten.ID, dec, nil)
	if err != nil {
		t.Fatal(err)
	}
	if prev != 100 || cur != 0 {
		t.Errorf("decrement = (%d, %d), want (100, 0)", prev, cur)
	}

	set := usage.Mutation{Op: usage.OpSet, Metric: usage.MetricStorage, Amount: 42}
	prev, cur, err = s.ApplyUsage(ctx, ten.ID, set, nil)
	if err != nil || prev != 0 || cur != 42 {
		t.Errorf("set = (%d, %d), %v", prev, cur, err)
	}

	if err := s.ReplaceUsage(ctx, ten.ID, usage.Usage{Users: 1, APICalls: 9}); err != nil {
		t.Fatal(err)
	}
	u, _ := s.GetUsage(ctx, ten.ID)
	if u.Users != 1 || u.APICalls != 9 || u.Storage != 0 {
		t.Errorf("usage = %+v", u)
	}

	if _, _, err := s.ApplyUsage(ctx, id.NewTenantID(), inc(usage.MetricUsers, 1), nil); !errors.Is(err, usage.ErrNotFound) {
		t.Errorf("unknown tenant: err = %v", err)
	}
}

func TestApplyUsageAppendsRecordOnlyWhenCounterMoves(t *testing.T) {
	ctx := context.Background()
	s := New()
	ten := seedTenant(t, s, "")

	rec := func() *usage.Record {
		return &usage.Record{ID: id.NewUsageRecordID(), TenantID: ten.ID, Metric: usage.MetricEvents, Timestamp: time.Now().UTC()}
	}

	if _, _, err := s.ApplyUsage(ctx, ten.ID, inc(usage.MetricEvents, 3), rec()); err != nil {
		t.Fatal(err)
	}
	dec := usage.Mutation{Op: usage.OpDecrement, Metric: usage.MetricEvents, Amount: 10}
	if _, _, err := s.ApplyUsage(ctx, ten.ID, dec, rec()); err != nil {
		t.Fatal(err)
	}
	// Already zero: nothing to log.
	if _, _, err := s.ApplyUsage(ctx, ten.ID, dec, rec()); err != nil {
		t.Fatal(err)
	}

	records, _ := s.ListRecords(ctx, ten.ID, usage.QueryOpts{})
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	var sum int64
	for _, r := range records {
		sum += r.Value
	}
	if sum != 0 {
		t.Errorf("sum of logged deltas = %d, want 0", sum)
	}
}

func TestConcurrentIncrements(t *testing.T) {
	ctx := context.Background()
	s := New()
	ten := seedTenant(t, s, "")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = s.ApplyUsage(ctx, ten.ID, inc(usage.MetricEvents, 2), nil)
		}()
	}
	wg.Wait()

	u, _ := s.GetUsage(ctx, ten.ID)
	if u.Events != 100 {
		t.Errorf("events = %d, want 100", u.Events)
	}
}

func TestRecordsQueryAndPurge(t *testing.T) {
	ctx := context.Background()
	s := New()
	ten := seedTenant(t, s, "")
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		metric := usage.MetricEvents
		if i%2 == 1 {
			metric = usage.MetricStorage
		}
		r := &usage.Record{
			ID:        id.NewUsageRecordID(),
			TenantID:  ten.ID,
			Metric:    metric,
			Timestamp: base.Add(time.Duration(i) * time.Hour),
		}
		if _, _, err := s.ApplyUsage(ctx, ten.ID, inc(metric, int64(i+1)), r); err != nil {
			t.Fatal(err)
		}
	}

	events, _ := s.ListRecords(ctx, ten.ID, usage.QueryOpts{Metric: usage.MetricEvents})
	if len(events) != 2 || events[0].Value != 3 {
		t.Errorf("events = %d records, newest first expected", len(events))
	}

	window, _ := s.ListRecords(ctx, ten.ID, usage.QueryOpts{Since: base.Add(time.Hour), Until: base.Add(3 * time.Hour)})
	if len(window) != 2 {
		t.Errorf("window = %d, want 2 (half-open range)", len(window))
	}

	purged, err := s.PurgeRecords(ctx, base.Add(2*time.Hour))
	if err != nil || purged != 2 {
		t.Errorf("purged = %d, %v", purged, err)
	}
	rest, _ := s.ListRecords(ctx, ten.ID, usage.QueryOpts{})
	if len(rest) != 2 {
		t.Errorf("remaining = %d, want 2", len(rest))
	}
}

func TestAlertStore(t *testing.T) {
	ctx := context.Background()
	s := New()
	ten := seedTenant(t, s, "")
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

	a := &alert.Alert{
		Entity:   types.NewEntityAt(now),
		ID:       id.NewAlertID(),
		TenantID: ten.ID,
		Metric:   usage.MetricEvents,
		Type:     alert.TypeCritical,
		IsActive: true,
	}
	if err := s.CreateAlert(ctx, a); err != nil {
		t.Fatal(err)
	}

	dup := *a
	dup.ID = id.NewAlertID()
	if err := s.CreateAlert(ctx, &dup); !errors.Is(err, alert.ErrDuplicateActive) {
		t.Fatalf("second active alert: err = %v", err)
	}

	pending, _ := s.ListAlertsForNotification(ctx, alert.NotifiableTypes(), now)
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(pending))
	}

	if err := s.MarkAlertNotified(ctx, a.ID, now); err != nil {
		t.Fatal(err)
	}
	if pending, _ := s.ListAlertsForNotification(ctx, alert.NotifiableTypes(), now); len(pending) != 0 {
		t.Errorf("recently notified alert selected again")
	}
	if pending, _ := s.ListAlertsForNotification(ctx, alert.NotifiableTypes(), now.Add(time.Hour)); len(pending) != 1 {
		t.Errorf("alert not selected after the interval")
	}

	a.Type = alert.TypeExceeded
	a.CurrentValue = 120
	if err := s.UpdateAlertLevel(ctx, a); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetAlert(ctx, a.ID)
	if got.Type != alert.TypeExceeded || got.LastNotifiedAt == nil || !got.LastNotifiedAt.Equal(now) {
		t.Errorf("level update must keep the notification time: %+v", got)
	}

	resolved := now
	a.ResolvedAt = &resolved
	if err := s.ResolveAlert(ctx, a); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetActiveAlert(ctx, ten.ID, usage.MetricEvents); !errors.Is(err, alert.ErrNotFound) {
		t.Errorf("resolved alert still active: %v", err)
	}
	if err := s.MarkAlertNotified(ctx, a.ID, now.Add(time.Hour)); !errors.Is(err, alert.ErrNotFound) {
		t.Errorf("marking a resolved alert: err = %v", err)
	}
	if err := s.UpdateAlertLevel(ctx, a); !errors.Is(err, alert.ErrNotFound) {
		t.Errorf("updating a resolved alert: err = %v", err)
	}
	if err := s.CreateAlert(ctx, &dup); err != nil {
		t.Errorf("new alert after resolution: %v", err)
	}

	all, _ := s.ListAlerts(ctx, ten.ID, alert.ListOpts{})
	if len(all) != 2 {
		t.Errorf("alerts = %d, want 2", len(all))
	}

	purged, err := s.PurgeResolved(ctx, now.Add(time.Minute))
	if err != nil || purged != 1 {
		t.Errorf("purged = %d, %v", purged, err)
	}
}

func TestSources(t *testing.T) {
	ctx := context.Background()
	s := New()
	ten := seedTenant(t, s, "")
	now := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	s.RecordEvent(ten.ID, 3)
	s.RecordEvent(ten.ID, 2)
	s.SetStorage(ten.ID, 4096)
	s.RecordAPICall(ten.ID, now.Add(-40*24*time.Hour))
	s.RecordAPICall(ten.ID, now.Add(-time.Hour))

	if n, _ := s.CountEvents(ctx, ten.ID); n != 5 {
		t.Errorf("events = %d, want 5", n)
	}
	if n, _ := s.ComputeStorage(ctx, ten.ID); n != 4096 {
		t.Errorf("storage = %d, want 4096", n)
	}
	if n, _ := s.CountAPICalls(ctx, ten.ID, now.Add(-30*24*time.Hour)); n != 1 {
		t.Errorf("api calls = %d, want 1", n)
	}
	if n, _ := s.CountActiveMemberships(ctx, ten.ID); n != 0 {
		t.Errorf("memberships = %d, want 0", n)
	}
}

package alert_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/xraph/tenancy/alert"
	"github.com/xraph/tenancy/id"
	"github.com/xraph/tenancy/plan"
	"github.com/xraph/tenancy/store/memory"
	"github.com/xraph/tenancy/usage"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		pct  float64
		want alert.Type
		ok   bool
	}{
		{0, "", false},
		{79.99, "", false},
		{80, alert.TypeWarning, true},
		{94.9, alert.TypeWarning, true},
		{95, alert.TypeCritical, true},
		{99.9, alert.TypeCritical, true},
		{100, alert.TypeExceeded, true},
		{250, alert.TypeExceeded, true},
	}

	for _, tt := range tests {
		got, ok := alert.Classify(tt.pct)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Classify(%v) = (%q, %v), want (%q, %v)", tt.pct, got, ok, tt.want, tt.ok)
		}
	}
}

func countActive(t *testing.T, s alert.Store, tenantID id.TenantID, metric usage.Metric) int {
	t.Helper()
	list, err := s.ListAlerts(context.Background(), tenantID, alert.ListOpts{Metric: metric, ActiveOnly: true})
	if err != nil {
		t.Fatalf("ListAlerts: %v", err)
	}
	return len(list)
}

func TestManagerStateMachine(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	clock := clockwork.NewFakeClock()
	m := alert.NewManager(st, alert.WithClock(clock))
	tid := id.NewTenantID()

	steps := []struct {
		usage      int64
		wantChange alert.Change
		wantType   alert.Type
		wantActive int
	}{
		{79, alert.ChangeNone, "", 0},
		{80, alert.ChangeCreated, alert.TypeWarning, 1},
		{95, alert.ChangeUpdated, alert.TypeCritical, 1},
		{100, alert.ChangeUpdated, alert.TypeExceeded, 1},
		{79, alert.ChangeResolved, alert.TypeExceeded, 0},
	}

	var alertID id.AlertID
	var createdAt time.Time
	for i, step := range steps {
		clock.Advance(time.Minute)
		tr, err := m.Evaluate(ctx, tid, usage.MetricEvents, step.usage, 100)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if tr.Change != step.wantChange {
			t.Fatalf("step %d (usage %d): change = %q, want %q", i, step.usage, tr.Change, step.wantChange)
		}
		if step.wantType != "" && tr.Alert.Type != step.wantType {
			t.Errorf("step %d: type = %q, want %q", i, tr.Alert.Type, step.wantType)
		}
		if tr.Alert != nil {
			if alertID.IsNil() {
				alertID = tr.Alert.ID
				createdAt = tr.Alert.CreatedAt
			} else if tr.Alert.ID != alertID {
				t.Errorf("step %d: alert id changed from %s to %s", i, alertID, tr.Alert.ID)
			}
			if !tr.Alert.CreatedAt.Equal(createdAt) {
				t.Errorf("step %d: createdAt changed", i)
			}
		}
		if got := countActive(t, st, tid, usage.MetricEvents); got != step.wantActive {
			t.Errorf("step %d: active alerts = %d, want %d", i, got, step.wantActive)
		}
	}

	resolved, err := st.GetAlert(ctx, alertID)
	if err != nil {
		t.Fatal(err)
	}
	if resolved.IsActive || resolved.ResolvedAt == nil {
		t.Errorf("expected resolved alert, got %+v", resolved)
	}

	all, _ := st.ListAlerts(ctx, tid, alert.ListOpts{})
	if len(all) != 1 {
		t.Errorf("total alerts = %d, want 1", len(all))
	}
}

func TestManagerDowngradeInPlace(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	m := alert.NewManager(st)
	tid := id.NewTenantID()

	first, _ := m.Evaluate(ctx, tid, usage.MetricUsers, 25, 25)
	second, err := m.Evaluate(ctx, tid, usage.MetricUsers, 24, 25)
	if err != nil {
		t.Fatal(err)
	}
	if second.Change != alert.ChangeUpdated || second.From != alert.TypeExceeded || second.Alert.Type != alert.TypeCritical {
		t.Errorf("unexpected transition: %+v", second)
	}
	if second.Alert.ID != first.Alert.ID {
		t.Error("downgrade must update the same alert")
	}
	if second.Alert.Percentage != 96 {
		t.Errorf("percentage = %v, want 96", second.Alert.Percentage)
	}
	if second.Escalated() {
		t.Error("downgrade is not an escalation")
	}
}

func TestManagerUnlimitedResolves(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	m := alert.NewManager(st)
	tid := id.NewTenantID()

	if _, err := m.Evaluate(ctx, tid, usage.MetricStorage, 99, 100); err != nil {
		t.Fatal(err)
	}
	tr, err := m.Evaluate(ctx, tid, usage.MetricStorage, 5000, plan.Unlimited)
	if err != nil {
		t.Fatal(err)
	}
	if tr.Change != alert.ChangeResolved {
		t.Errorf("unlimited limit should resolve, got %q", tr.Change)
	}

	tr, _ = m.Evaluate(ctx, tid, usage.MetricStorage, 5000, plan.Unlimited)
	if tr.Change != alert.ChangeNone {
		t.Errorf("unlimited with no active alert should be none, got %q", tr.Change)
	}
}

func TestManagerAtMostOneActiveUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	tid := id.NewTenantID()

	// Two managers over one store behave like two processes.
	managers := []*alert.Manager{alert.NewManager(st), alert.NewManager(st)}

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = managers[i%2].Evaluate(ctx, tid, usage.MetricAPICalls, int64(80+i%25), 100)
		}(i)
	}
	wg.Wait()

	if got := countActive(t, st, tid, usage.MetricAPICalls); got != 1 {
		t.Errorf("active alerts = %d, want 1", got)
	}
}

func TestTransitionEvaluation(t *testing.T) {
	a := &alert.Alert{ID: id.NewAlertID(), Type: alert.TypeCritical, IsActive: true}
	ev := alert.Transition{Change: alert.ChangeCreated, Alert: a, Percentage: 96}.Evaluation()
	if ev.Change != "created" || ev.Level != "critical" || ev.AlertID != a.ID || ev.Percentage != 96 {
		t.Errorf("unexpected evaluation: %+v", ev)
	}
}

func TestDispatcher(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	clock := clockwork.NewFakeClock()
	m := alert.NewManager(st, alert.WithClock(clock))
	tid := id.NewTenantID()

	// warning (not notifiable), critical and exceeded.
	_, _ = m.Evaluate(ctx, tid, usage.MetricUsers, 80, 100)
	_, _ = m.Evaluate(ctx, tid, usage.MetricEvents, 96, 100)
	_, _ = m.Evaluate(ctx, tid, usage.MetricStorage, 120, 100)

	var mu sync.Mutex
	sent := map[usage.Metric]int{}
	n := alert.NotifierFunc(func(_ context.Context, a *alert.Alert) error {
		mu.Lock()
		defer mu.Unlock()
		sent[a.Metric]++
		return nil
	})
	d := alert.NewDispatcher(st, n, alert.WithDispatchClock(clock), alert.WithRateLimit(rate.Inf, 1))

	report, err := d.Dispatch(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.Sent != 2 || report.Failed != 0 {
		t.Errorf("first sweep: %+v, want 2 sent", report)
	}
	if sent[usage.MetricUsers] != 0 {
		t.Error("warning alerts must not notify")
	}

	// Within the hour nothing is resent.
	clock.Advance(30 * time.Minute)
	report, _ = d.Dispatch(ctx)
	if report.Sent != 0 {
		t.Errorf("second sweep sent %d, want 0", report.Sent)
	}

	clock.Advance(31 * time.Minute)
	report, _ = d.Dispatch(ctx)
	if report.Sent != 2 {
		t.Errorf("third sweep sent %d, want 2", report.Sent)
	}
	if sent[usage.MetricEvents] != 2 || sent[usage.MetricStorage] != 2 {
		t.Errorf("unexpected send counts: %v", sent)
	}
}

func TestDispatcherReportsFailures(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	clock := clockwork.NewFakeClock()
	m := alert.NewManager(st, alert.WithClock(clock))
	tid := id.NewTenantID()
	_, _ = m.Evaluate(ctx, tid, usage.MetricEvents, 100, 100)

	n := alert.NotifierFunc(func(context.Context, *alert.Alert) error {
		return errors.New("smtp down")
	})
	d := alert.NewDispatcher(st, n, alert.WithDispatchClock(clock), alert.WithRateLimit(rate.Inf, 1))

	report, err := d.Dispatch(ctx)
	if err != nil {
		t.Fatalf("send failures must not fail the sweep: %v", err)
	}
	if report.Failed != 1 || report.Sent != 0 || report.Err() == nil {
		t.Errorf("unexpected report: %+v", report)
	}

	// A failed send does not stamp LastNotifiedAt, so it is retried.
	report, _ = d.Dispatch(ctx)
	if report.Candidates != 1 {
		t.Errorf("failed alert should be retried, candidates = %d", report.Candidates)
	}
}

func TestResolveDuringNotificationStaysResolved(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	clock := clockwork.NewFakeClock()
	m := alert.NewManager(st, alert.WithClock(clock))
	tid := id.NewTenantID()

	if _, err := m.Evaluate(ctx, tid, usage.MetricUsers, 25, 25); err != nil {
		t.Fatal(err)
	}

	// Usage drops to 60% while the notification is in flight.
	n := alert.NotifierFunc(func(ctx context.Context, a *alert.Alert) error {
		tr, err := m.Evaluate(ctx, a.TenantID, a.Metric, 15, 25)
		if err != nil {
			return err
		}
		if tr.Change != alert.ChangeResolved {
			t.Errorf("change during send = %q, want resolved", tr.Change)
		}
		return nil
	})
	d := alert.NewDispatcher(st, n, alert.WithDispatchClock(clock), alert.WithRateLimit(rate.Inf, 1))

	report, err := d.Dispatch(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.Sent != 1 {
		t.Errorf("sent = %d, want 1", report.Sent)
	}

	if got := countActive(t, st, tid, usage.MetricUsers); got != 0 {
		t.Fatalf("active alerts = %d, a resolved alert must stay resolved", got)
	}
	active, _ := st.ListActiveAlerts(ctx, tid)
	if len(active) != 0 {
		t.Errorf("ListActiveAlerts = %d, want 0", len(active))
	}
	all, _ := st.ListAlerts(ctx, tid, alert.ListOpts{})
	if len(all) != 1 || all[0].ResolvedAt == nil || all[0].CurrentValue != 15 {
		t.Errorf("unexpected alert after sweep: %+v", all)
	}
}

func TestDowngradeDuringNotificationIsKept(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	clock := clockwork.NewFakeClock()
	m := alert.NewManager(st, alert.WithClock(clock))
	tid := id.NewTenantID()

	if _, err := m.Evaluate(ctx, tid, usage.MetricEvents, 100, 100); err != nil {
		t.Fatal(err)
	}

	n := alert.NotifierFunc(func(ctx context.Context, a *alert.Alert) error {
		_, err := m.Evaluate(ctx, a.TenantID, a.Metric, 96, 100)
		return err
	})
	d := alert.NewDispatcher(st, n, alert.WithDispatchClock(clock), alert.WithRateLimit(rate.Inf, 1))
	if _, err := d.Dispatch(ctx); err != nil {
		t.Fatal(err)
	}

	a, err := st.GetActiveAlert(ctx, tid, usage.MetricEvents)
	if err != nil {
		t.Fatal(err)
	}
	if a.Type != alert.TypeCritical || a.CurrentValue != 96 {
		t.Errorf("alert = %s at %d, want critical at 96", a.Type, a.CurrentValue)
	}
	if a.LastNotifiedAt == nil {
		t.Error("notification time not recorded")
	}
}

func TestLevelUpdateKeepsNotificationTime(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	clock := clockwork.NewFakeClock()
	m := alert.NewManager(st, alert.WithClock(clock))
	tid := id.NewTenantID()

	_, _ = m.Evaluate(ctx, tid, usage.MetricStorage, 100, 100)

	sends := 0
	n := alert.NotifierFunc(func(context.Context, *alert.Alert) error {
		sends++
		return nil
	})
	d := alert.NewDispatcher(st, n, alert.WithDispatchClock(clock), alert.WithRateLimit(rate.Inf, 1))
	if _, err := d.Dispatch(ctx); err != nil {
		t.Fatal(err)
	}

	clock.Advance(10 * time.Minute)
	if _, err := m.Evaluate(ctx, tid, usage.MetricStorage, 97, 100); err != nil {
		t.Fatal(err)
	}

	clock.Advance(10 * time.Minute)
	if _, err := d.Dispatch(ctx); err != nil {
		t.Fatal(err)
	}
	if sends != 1 {
		t.Errorf("sends = %d, a level update must not clear the notification time", sends)
	}
}

type usageReaderFunc func(ctx context.Context, tenantID id.TenantID) (*usage.Usage, error)

func (f usageReaderFunc) GetUsage(ctx context.Context, tenantID id.TenantID) (*usage.Usage, error) {
	return f(ctx, tenantID)
}

func TestEvaluateClassifiesStoredCounter(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	tid := id.NewTenantID()

	var stored int64 = 100
	reader := usageReaderFunc(func(context.Context, id.TenantID) (*usage.Usage, error) {
		return &usage.Usage{Events: stored}, nil
	})
	m := alert.NewManager(st, alert.WithUsageReader(reader))

	if _, err := m.Evaluate(ctx, tid, usage.MetricEvents, 100, 100); err != nil {
		t.Fatal(err)
	}

	// A late evaluation carrying an older value must not win.
	stored = 50
	tr, err := m.Evaluate(ctx, tid, usage.MetricEvents, 100, 100)
	if err != nil {
		t.Fatal(err)
	}
	if tr.Change != alert.ChangeResolved || tr.Percentage != 50 {
		t.Errorf("transition = %+v, want resolved at 50%%", tr)
	}
	if got := countActive(t, st, tid, usage.MetricEvents); got != 0 {
		t.Errorf("active alerts = %d, want 0", got)
	}

	failing := alert.NewManager(st, alert.WithUsageReader(usageReaderFunc(func(context.Context, id.TenantID) (*usage.Usage, error) {
		return nil, usage.ErrNotFound
	})))
	if _, err := failing.Evaluate(ctx, tid, usage.MetricEvents, 100, 100); !errors.Is(err, usage.ErrNotFound) {
		t.Errorf("read failure: err = %v", err)
	}
}

package plugin_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/tenancy/alert"
	"github.com/xraph/tenancy/plugin"
	"github.com/xraph/tenancy/tenant"
)

type recorder struct {
	name string
	mu   sync.Mutex
	seen []string
	err  error
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) add(ev string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, ev)
	return r.err
}

func (r *recorder) OnTenantCreated(context.Context, *tenant.Tenant) error { return r.add("tenant") }
func (r *recorder) OnAlertCreated(context.Context, *alert.Alert) error   { return r.add("created") }
func (r *recorder) OnAlertResolved(context.Context, *alert.Alert) error  { return r.add("resolved") }

type slowPlugin struct{}

func (slowPlugin) Name() string { return "slow" }
func (slowPlugin) OnShutdown(ctx context.Context) error {
	time.Sleep(200 * time.Millisecond)
	return nil
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := plugin.NewRegistry()
	if err := r.Register(&recorder{name: "a"}); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(&recorder{name: "a"}); err == nil {
		t.Error("duplicate name must be rejected")
	}
	if r.Count() != 1 || r.Get("a") == nil || r.Get("b") != nil {
		t.Error("registry lookup mismatch")
	}
}

func TestEmitRoutesToImplementedHooks(t *testing.T) {
	ctx := context.Background()
	r := plugin.NewRegistry()
	rec := &recorder{name: "rec"}
	if err := r.Register(rec); err != nil {
		t.Fatal(err)
	}

	a := &alert.Alert{}
	r.EmitTenantCreated(ctx, &tenant.Tenant{})
	r.EmitAlertTransition(ctx, alert.Transition{Change: alert.ChangeCreated, Alert: a})
	r.EmitAlertTransition(ctx, alert.Transition{Change: alert.ChangeUpdated, Alert: a})
	r.EmitAlertTransition(ctx, alert.Transition{Change: alert.ChangeResolved, Alert: a})
	r.EmitAlertTransition(ctx, alert.Transition{Change: alert.ChangeNone})
	r.EmitShutdown(ctx)

	want := []string{"tenant", "created", "resolved"}
	if len(rec.seen) != len(want) {
		t.Fatalf("seen = %v, want %v", rec.seen, want)
	}
	for i := range want {
		if rec.seen[i] != want[i] {
			t.Errorf("seen[%d] = %q, want %q", i, rec.seen[i], want[i])
		}
	}
}

func TestHookErrorsAreSwallowed(t *testing.T) {
	r := plugin.NewRegistry()
	rec := &recorder{name: "failing", err: errors.New("boom")}
	_ = r.Register(rec)

	r.EmitTenantCreated(context.Background(), &tenant.Tenant{})
	if len(rec.seen) != 1 {
		t.Error("hook should have been called")
	}
}

func TestSlowHookTimesOut(t *testing.T) {
	r := plugin.NewRegistry().WithTimeout(10 * time.Millisecond)
	_ = r.Register(slowPlugin{})

	start := time.Now()
	r.EmitShutdown(context.Background())
	if elapsed := time.Since(start); elapsed > 150*time.Millisecond {
		t.Errorf("emit blocked for %v", elapsed)
	}
}

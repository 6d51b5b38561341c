package cache_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/xraph/tenancy/cache"
	"github.com/xraph/tenancy/id"
	"github.com/xraph/tenancy/plan"
	"github.com/xraph/tenancy/store/memory"
	"github.com/xraph/tenancy/tenant"
	"github.com/xraph/tenancy/types"
)

func seedTenant(t *testing.T, st *memory.Store, planID string, status tenant.Status) *tenant.Tenant {
	t.Helper()
	tn := &tenant.Tenant{
		Entity: types.NewEntity(),
		ID:     id.NewTenantID(),
		Name:   "Acme",
		PlanID: planID,
		Status: status,
	}
	if err := st.CreateTenant(context.Background(), tn); err != nil {
		t.Fatalf("CreateTenant: %v", err)
	}
	return tn
}

func seedMember(t *testing.T, st *memory.Store, tenantID id.TenantID, userID string, role tenant.Role, active bool) {
	t.Helper()
	m := &tenant.Membership{
		Entity:   types.NewEntity(),
		ID:       id.NewMembershipID(),
		TenantID: tenantID,
		UserID:   userID,
		Role:     role,
		IsActive: active,
	}
	if err := st.CreateMembership(context.Background(), m); err != nil {
		t.Fatalf("CreateMembership: %v", err)
	}
}

func TestStoreLoader(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	at := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	loader := &cache.StoreLoader{Tenants: st, Plans: plan.DefaultCatalog(), Clock: clockwork.NewFakeClockAt(at)}

	active := seedTenant(t, st, "pro", tenant.StatusActive)
	seedMember(t, st, active.ID, "alice", tenant.RoleAdmin, true)
	seedMember(t, st, active.ID, "carol", tenant.RoleMember, false)

	fallback := seedTenant(t, st, "", tenant.StatusTrial)
	seedMember(t, st, fallback.ID, "alice", tenant.RoleOwner, true)

	suspended := seedTenant(t, st, "basic", tenant.StatusSuspended)
	seedMember(t, st, suspended.ID, "alice", tenant.RoleOwner, true)

	unknownPlan := seedTenant(t, st, "platinum", tenant.StatusActive)
	seedMember(t, st, unknownPlan.ID, "alice", tenant.RoleOwner, true)

	t.Run("resolves", func(t *testing.T) {
		tc, err := loader.Load(ctx, "alice", active.ID)
		if err != nil {
			t.Fatal(err)
		}
		if tc.Plan.ID != "pro" || tc.Role() != tenant.RoleAdmin || !tc.Valid() {
			t.Errorf("unexpected context: %+v", tc)
		}
		if !tc.ResolvedAt.Equal(at) {
			t.Errorf("ResolvedAt = %v, want %v", tc.ResolvedAt, at)
		}
	})

	t.Run("empty plan falls back to free", func(t *testing.T) {
		tc, err := loader.Load(ctx, "alice", fallback.ID)
		if err != nil {
			t.Fatal(err)
		}
		if tc.Plan.ID != plan.FreePlanID {
			t.Errorf("plan = %q, want free", tc.Plan.ID)
		}
	})

	tests := []struct {
		name     string
		userID   string
		tenantID id.TenantID
		want     error
	}{
		{"missing tenant", "alice", id.NewTenantID(), tenant.ErrNoContext},
		{"no membership", "bob", active.ID, tenant.ErrNoContext},
		{"inactive membership", "carol", active.ID, tenant.ErrNoContext},
		{"suspended tenant", "alice", suspended.ID, tenant.ErrAccessDenied},
		{"unknown plan", "alice", unknownPlan.ID, tenant.ErrNoContext},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loader.Load(ctx, tt.userID, tt.tenantID)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

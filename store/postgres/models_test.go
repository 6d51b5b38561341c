package postgres

import (
	"errors"
	"testing"

	"github.com/xraph/tenancy/id"
	"github.com/xraph/tenancy/tenant"
	"github.com/xraph/tenancy/types"
	"github.com/xraph/tenancy/usage"
)

func TestUsageColumn(t *testing.T) {
	got, err := usageColumn(usage.MetricAPICalls)
	if err != nil {
		t.Fatal(err)
	}
	if got != "usage_api_calls" {
		t.Errorf("usageColumn = %q", got)
	}
	if _, err := usageColumn("seats"); !errors.Is(err, usage.ErrInvalidMetric) {
		t.Errorf("unknown metric: err = %v", err)
	}
}

func TestTenantModelSlugIsNullable(t *testing.T) {
	ten := &tenant.Tenant{
		Entity: types.NewEntity(),
		ID:     id.NewTenantID(),
		Name:   "Acme",
		PlanID: "free",
		Status: tenant.StatusActive,
		Usage:  usage.Usage{Users: 2, APICalls: 9},
	}

	m := toTenantModel(ten)
	if m.Slug != nil {
		t.Errorf("empty slug stored as %q, want NULL", *m.Slug)
	}

	got, err := fromTenantModel(m)
	if err != nil {
		t.Fatal(err)
	}
	if got.Slug != "" || got.Usage != ten.Usage {
		t.Errorf("tenant = %+v", got)
	}
}

func TestMembershipModelPermissions(t *testing.T) {
	m := &tenant.Membership{
		Entity:   types.NewEntity(),
		ID:       id.NewMembershipID(),
		TenantID: id.NewTenantID(),
		UserID:   "user_1",
		Role:     tenant.RoleMember,
		IsActive: true,
	}

	mm := toMembershipModel(m)
	if string(mm.FeaturePermissions) != "[]" {
		t.Errorf("permissions = %s, want []", mm.FeaturePermissions)
	}

	m.FeaturePermissions = []string{"billing.read"}
	got, err := fromMembershipModel(toMembershipModel(m))
	if err != nil {
		t.Fatal(err)
	}
	if !got.HasPermission("billing.read") {
		t.Errorf("permissions lost: %+v", got.FeaturePermissions)
	}
}

func TestMigrationsRegistered(t *testing.T) {
	if Migrations == nil {
		t.Fatal("Migrations group is nil")
	}
}

func TestCounterExpr(t *testing.T) {
	tests := []struct {
		op   string
		want string
	}{
		{usage.OpIncrement, "prev.v + $2"},
		{usage.OpDecrement, "GREATEST(0, prev.v - $2)"},
		{usage.OpSet, "GREATEST(0, $2)"},
	}
	for _, tt := range tests {
		if got := counterExpr(tt.op); got != tt.want {
			t.Errorf("counterExpr(%q) = %q, want %q", tt.op, got, tt.want)
		}
	}
}

package plan_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/xraph/tenancy/plan"
)

func TestLimitsGet(t *testing.T) {
	l := plan.Limits{MaxUsers: 25, MaxEvents: 100, MaxStorage: plan.Unlimited, APICallsPerMonth: 7}

	tests := []struct {
		key  plan.LimitKey
		want int64
		ok   bool
	}{
		{plan.LimitMaxUsers, 25, true},
		{plan.LimitMaxEvents, 100, true},
		{plan.LimitMaxStorage, plan.Unlimited, true},
		{plan.LimitAPICallsPerMonth, 7, true},
		{plan.LimitKey("maxWidgets"), 0, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.key), func(t *testing.T) {
			got, ok := l.Get(tt.key)
			if ok != tt.ok || got != tt.want {
				t.Errorf("Get(%q) = (%d, %v), want (%d, %v)", tt.key, got, ok, tt.want, tt.ok)
			}
		})
	}

	if !l.IsUnlimited(plan.LimitMaxStorage) {
		t.Error("expected maxStorage to be unlimited")
	}
	if l.IsUnlimited(plan.LimitMaxUsers) {
		t.Error("expected maxUsers to be limited")
	}
}

func TestDefaultCatalog(t *testing.T) {
	c := plan.DefaultCatalog()

	basic, err := c.Get("basic")
	if err != nil {
		t.Fatalf("Get(basic): %v", err)
	}
	if basic.Limits.MaxUsers != 25 {
		t.Errorf("basic.maxUsers = %d, want 25", basic.Limits.MaxUsers)
	}

	ent, err := c.Get("enterprise")
	if err != nil {
		t.Fatalf("Get(enterprise): %v", err)
	}
	for _, k := range plan.LimitKeys() {
		if !ent.Limits.IsUnlimited(k) {
			t.Errorf("enterprise %s should be unlimited", k)
		}
	}

	if _, err := c.Get("platinum"); !errors.Is(err, plan.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if fb := c.Fallback(); fb == nil || fb.ID != plan.FreePlanID {
		t.Errorf("Fallback() = %v, want free plan", fb)
	}

	list := c.List()
	want := []string{"free", "basic", "pro", "enterprise"}
	if len(list) != len(want) {
		t.Fatalf("List() len = %d, want %d", len(list), len(want))
	}
	for i, p := range list {
		if p.ID != want[i] {
			t.Errorf("List()[%d] = %q, want %q", i, p.ID, want[i])
		}
	}
}

func TestCatalogReturnsCopies(t *testing.T) {
	c := plan.DefaultCatalog()

	p, _ := c.Get("basic")
	p.Limits.MaxUsers = 1
	p.Features[plan.FeatureSSO] = true

	again, _ := c.Get("basic")
	if again.Limits.MaxUsers != 25 {
		t.Errorf("catalog plan mutated through returned copy: maxUsers = %d", again.Limits.MaxUsers)
	}
	if again.HasFeature(plan.FeatureSSO) {
		t.Error("catalog plan features mutated through returned copy")
	}
}

func TestStaticCatalogAddsFree(t *testing.T) {
	c := plan.NewStaticCatalog(&plan.Plan{ID: "team", Name: "Team"})
	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}
	if _, err := c.Get(plan.FreePlanID); err != nil {
		t.Errorf("free plan missing: %v", err)
	}
}

func TestUpgradeHints(t *testing.T) {
	c := plan.DefaultCatalog()
	basic, _ := c.Get("basic")

	if up := plan.UpgradeForLimit(c, basic, plan.LimitMaxUsers); up == nil || up.ID != "pro" {
		t.Errorf("UpgradeForLimit(basic, maxUsers) = %v, want pro", up)
	}
	if up := plan.UpgradeForFeature(c, basic, plan.FeatureSSO); up == nil || up.ID != "enterprise" {
		t.Errorf("UpgradeForFeature(basic, sso) = %v, want enterprise", up)
	}

	ent, _ := c.Get("enterprise")
	if up := plan.UpgradeForLimit(c, ent, plan.LimitMaxUsers); up != nil {
		t.Errorf("nothing exceeds unlimited, got %q", up.ID)
	}
}

func TestLoadCatalog(t *testing.T) {
	src := `
plans:
  - id: starter
    name: Starter
    priceCents: 1000
    currency: EUR
    limits:
      maxUsers: 10
      maxEvents: 20
      maxStorage: -1
      apiCallsPerMonth: 5000
    features:
      customDomain: true
`
	c, err := plan.LoadCatalog(strings.NewReader(src))
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}

	p, err := c.Get("starter")
	if err != nil {
		t.Fatalf("Get(starter): %v", err)
	}
	if p.Limits.MaxUsers != 10 || !p.Limits.IsUnlimited(plan.LimitMaxStorage) {
		t.Errorf("unexpected limits: %+v", p.Limits)
	}
	if !p.HasFeature(plan.FeatureCustomDomain) {
		t.Error("expected customDomain feature")
	}
	if _, err := c.Get(plan.FreePlanID); err != nil {
		t.Error("free plan should be added to loaded catalogs")
	}
}

func TestLoadCatalogRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"empty", ""},
		{"no plans", "plans: []\n"},
		{"missing id", "plans:\n  - name: X\n"},
		{"limit below sentinel", "plans:\n  - id: x\n    name: X\n    limits: {maxUsers: -2}\n"},
		{"bad currency", "plans:\n  - id: x\n    name: X\n    currency: DOLLARS\n"},
		{"duplicate id", "plans:\n  - id: x\n    name: X\n  - id: x\n    name: Y\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := plan.LoadCatalog(strings.NewReader(tt.src))
			if !errors.Is(err, plan.ErrInvalidPlan) {
				t.Errorf("expected ErrInvalidPlan, got %v", err)
			}
		})
	}
}

package plan

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrNotFound is returned when a plan id is not in the catalog.
	ErrNotFound = errors.New("tenancy: plan not found")
	// ErrInvalidPlan is returned when a plan definition fails validation.
	ErrInvalidPlan = errors.New("tenancy: invalid plan definition")
)

// Feature flag keys used by the default catalog.
const (
	FeatureBasicAnalytics    = "basicAnalytics"
	FeatureAdvancedAnalytics = "advancedAnalytics"
	FeatureCustomDomain      = "customDomain"
	FeatureCustomBranding    = "customBranding"
	FeatureAPIAccess         = "apiAccess"
	FeatureEmailSupport      = "emailSupport"
	FeaturePrioritySupport   = "prioritySupport"
	FeatureSSO               = "sso"
	FeatureAuditLogs         = "auditLogs"
	FeatureWhiteLabel        = "whiteLabel"
)

// Catalog resolves plan identifiers to plans.
type Catalog interface {
	// Get returns a copy of the plan or ErrNotFound.
	Get(planID string) (*Plan, error)
	// Fallback returns the distinguished free plan.
	Fallback() *Plan
	// List returns every plan ordered from cheapest to most expensive.
	List() []*Plan
}

// StaticCatalog is an in-memory, read-only Catalog.
type StaticCatalog struct {
	mu    sync.RWMutex
	plans map[string]*Plan
}

var _ Catalog = (*StaticCatalog)(nil)

// NewStaticCatalog builds a catalog from plans. A free plan is added when
// none of the given plans carries FreePlanID. Later duplicates win.
func NewStaticCatalog(plans ...*Plan) *StaticCatalog {
	c := &StaticCatalog{plans: make(map[string]*Plan, len(plans)+1)}
	for _, p := range plans {
		if p == nil || p.ID == "" {
			continue
		}
		c.plans[p.ID] = p.Clone()
	}
	if _, ok := c.plans[FreePlanID]; !ok {
		c.plans[FreePlanID] = FreePlan()
	}
	return c
}

// Get implements Catalog.
func (c *StaticCatalog) Get(planID string) (*Plan, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.plans[planID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, planID)
	}
	return p.Clone(), nil
}

// Fallback implements Catalog.
func (c *StaticCatalog) Fallback() *Plan {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.plans[FreePlanID].Clone()
}

// List implements Catalog.
func (c *StaticCatalog) List() []*Plan {
	c.mu.RLock()
	out := make([]*Plan, 0, len(c.plans))
	for _, p := range c.plans {
		out = append(out, p.Clone())
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].PriceCents != out[j].PriceCents {
			return out[i].PriceCents < out[j].PriceCents
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Len returns the number of plans in the catalog.
func (c *StaticCatalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.plans)
}

// UpgradeForLimit returns the cheapest plan that grants more of key than
// current, or nil when none does.
func UpgradeForLimit(c Catalog, current *Plan, key LimitKey) *Plan {
	if c == nil || current == nil {
		return nil
	}
	for _, p := range c.List() {
		if p.ID != current.ID && p.Exceeds(current, key) {
			return p
		}
	}
	return nil
}

// UpgradeForFeature returns the cheapest plan that enables feature, or nil.
func UpgradeForFeature(c Catalog, current *Plan, feature string) *Plan {
	if c == nil {
		return nil
	}
	for _, p := range c.List() {
		if current != nil && p.ID == current.ID {
			continue
		}
		if p.HasFeature(feature) {
			return p
		}
	}
	return nil
}

// ──────────────────────────────────────────────────
// Default plans
// ──────────────────────────────────────────────────

const (
	mb = int64(1) << 20
	gb = int64(1) << 30
)

// FreePlan returns the fallback plan.
func FreePlan() *Plan {
	return &Plan{
		ID:          FreePlanID,
		Name:        "Free",
		Description: "For individuals trying things out",
		Currency:    "USD",
		Limits: Limits{
			MaxUsers:         5,
			MaxEvents:        10,
			MaxStorage:       500 * mb,
			APICallsPerMonth: 1000,
		},
		Features: map[string]bool{
			FeatureBasicAnalytics: true,
		},
	}
}

// DefaultCatalog returns the built-in free/basic/pro/enterprise catalog.
func DefaultCatalog() *StaticCatalog {
	return NewStaticCatalog(
		FreePlan(),
		&Plan{
			ID:          "basic",
			Name:        "Basic",
			Description: "For small teams",
			PriceCents:  2900,
			Currency:    "USD",
			Limits: Limits{
				MaxUsers:         25,
				MaxEvents:        100,
				MaxStorage:       10 * gb,
				APICallsPerMonth: 50_000,
			},
			Features: map[string]bool{
				FeatureBasicAnalytics: true,
				FeatureEmailSupport:   true,
				FeatureCustomDomain:   true,
			},
		},
		&Plan{
			ID:          "pro",
			Name:        "Pro",
			Description: "For growing organizations",
			PriceCents:  9900,
			Currency:    "USD",
			Limits: Limits{
				MaxUsers:         100,
				MaxEvents:        1000,
				MaxStorage:       100 * gb,
				APICallsPerMonth: 500_000,
			},
			Features: map[string]bool{
				FeatureBasicAnalytics:    true,
				FeatureAdvancedAnalytics: true,
				FeatureEmailSupport:      true,
				FeatureCustomDomain:      true,
				FeatureCustomBranding:    true,
				FeatureAPIAccess:         true,
			},
		},
		&Plan{
			ID:          "enterprise",
			Name:        "Enterprise",
			Description: "Unlimited usage with dedicated support",
			PriceCents:  49900,
			Currency:    "USD",
			Limits: Limits{
				MaxUsers:         Unlimited,
				MaxEvents:        Unlimited,
				MaxStorage:       Unlimited,
				APICallsPerMonth: Unlimited,
			},
			Features: map[string]bool{
				FeatureBasicAnalytics:    true,
				FeatureAdvancedAnalytics: true,
				FeatureEmailSupport:      true,
				FeaturePrioritySupport:   true,
				FeatureCustomDomain:      true,
				FeatureCustomBranding:    true,
				FeatureAPIAccess:         true,
				FeatureSSO:               true,
				FeatureAuditLogs:         true,
				FeatureWhiteLabel:        true,
			},
		},
	)
}

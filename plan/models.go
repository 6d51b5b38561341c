// Package plan defines subscription plans: named bundles of resource limits
// and feature flags that a tenant is entitled to.
package plan

// Unlimited is the limit sentinel meaning "no ceiling". Any check against an
// unlimited limit is always allowed.
const Unlimited int64 = -1

// FreePlanID identifies the distinguished fallback plan. Every catalog has one.
const FreePlanID = "free"

// LimitKey names a numeric plan limit.
type LimitKey string

const (
	LimitMaxUsers         LimitKey = "maxUsers"
	LimitMaxEvents        LimitKey = "maxEvents"
	LimitMaxStorage       LimitKey = "maxStorage"
	LimitAPICallsPerMonth LimitKey = "apiCallsPerMonth"
)

// LimitKeys returns every known limit key in a stable order.
func LimitKeys() []LimitKey {
	return []LimitKey{LimitMaxUsers, LimitMaxEvents, LimitMaxStorage, LimitAPICallsPerMonth}
}

// Valid reports whether k is a known limit key.
func (k LimitKey) Valid() bool {
	switch k {
	case LimitMaxUsers, LimitMaxEvents, LimitMaxStorage, LimitAPICallsPerMonth:
		return true
	}
	return false
}

// Limits holds the numeric ceilings of a plan. A value of Unlimited (-1)
// disables the ceiling. MaxStorage is expressed in bytes.
type Limits struct {
	MaxUsers         int64 `json:"maxUsers" yaml:"maxUsers" bson:"max_users" validate:"gte=-1"`
	MaxEvents        int64 `json:"maxEvents" yaml:"maxEvents" bson:"max_events" validate:"gte=-1"`
	MaxStorage       int64 `json:"maxStorage" yaml:"maxStorage" bson:"max_storage" validate:"gte=-1"`
	APICallsPerMonth int64 `json:"apiCallsPerMonth" yaml:"apiCallsPerMonth" bson:"api_calls_per_month" validate:"gte=-1"`
}

// Get returns the limit for key. The boolean is false for unknown keys.
func (l Limits) Get(key LimitKey) (int64, bool) {
	switch key {
	case LimitMaxUsers:
		return l.MaxUsers, true
	case LimitMaxEvents:
		return l.MaxEvents, true
	case LimitMaxStorage:
		return l.MaxStorage, true
	case LimitAPICallsPerMonth:
		return l.APICallsPerMonth, true
	}
	return 0, false
}

// IsUnlimited reports whether the limit for key is the Unlimited sentinel.
func (l Limits) IsUnlimited(key LimitKey) bool {
	v, ok := l.Get(key)
	return ok && v == Unlimited
}

// Plan is an immutable value object describing what a tenant may do.
type Plan struct {
	ID          string            `json:"id" yaml:"id" validate:"required,max=64"`
	Name        string            `json:"name" yaml:"name" validate:"required"`
	Description string            `json:"description,omitempty" yaml:"description"`
	PriceCents  int64             `json:"price_cents" yaml:"priceCents" validate:"gte=0"`
	Currency    string            `json:"currency,omitempty" yaml:"currency" validate:"omitempty,len=3"`
	Limits      Limits            `json:"limits" yaml:"limits"`
	Features    map[string]bool   `json:"features,omitempty" yaml:"features"`
	Metadata    map[string]string `json:"metadata,omitempty" yaml:"metadata"`
}

// HasFeature reports whether the plan enables the named feature flag.
func (p *Plan) HasFeature(key string) bool {
	if p == nil {
		return false
	}
	return p.Features[key]
}

// Limit returns the plan limit for key.
func (p *Plan) Limit(key LimitKey) (int64, bool) {
	if p == nil {
		return 0, false
	}
	return p.Limits.Get(key)
}

// Clone returns a deep copy of p.
func (p *Plan) Clone() *Plan {
	if p == nil {
		return nil
	}
	c := *p
	if p.Features != nil {
		c.Features = make(map[string]bool, len(p.Features))
		for k, v := range p.Features {
			c.Features[k] = v
		}
	}
	if p.Metadata != nil {
		c.Metadata = make(map[string]string, len(p.Metadata))
		for k, v := range p.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// Exceeds reports whether p grants strictly more of key than other.
// Unlimited is larger than any finite value.
func (p *Plan) Exceeds(other *Plan, key LimitKey) bool {
	mine, ok := p.Limit(key)
	if !ok {
		return false
	}
	theirs, _ := other.Limit(key)
	switch {
	case mine == Unlimited:
		return theirs != Unlimited
	case theirs == Unlimited:
		return false
	default:
		return mine > theirs
	}
}

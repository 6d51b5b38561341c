// Package gate decides whether a resolved tenant context may use a feature
// or consume more of a metered resource. Decisions are values; denial is an
// expected outcome and never an error.
package gate

import (
	"fmt"

	"github.com/xraph/tenancy/plan"
	"github.com/xraph/tenancy/tenant"
	"github.com/xraph/tenancy/usage"
)

var (
	// ErrFeatureDisabled wraps tenant.ErrAccessDenied for feature denials.
	ErrFeatureDisabled = fmt.Errorf("%w: feature not enabled", tenant.ErrAccessDenied)
	// ErrLimitExceeded wraps tenant.ErrAccessDenied for limit denials.
	ErrLimitExceeded = fmt.Errorf("%w: usage limit reached", tenant.ErrAccessDenied)
	// ErrPermissionDenied wraps tenant.ErrAccessDenied for role denials.
	ErrPermissionDenied = fmt.Errorf("%w: permission denied", tenant.ErrAccessDenied)
)

// Denial reasons.
const (
	ReasonNoContext     = "missing tenant context"
	ReasonFeatureAbsent = "feature not in plan"
	ReasonLimitReached  = "limit reached"
	ReasonOverage       = "within overage allowance"
	ReasonUnknownLimit  = "unknown limit"
	ReasonNoPermission  = "role lacks permission"
)

// FeatureDecision is the result of a feature check.
type FeatureDecision struct {
	Allowed     bool   `json:"allowed"`
	Feature     string `json:"feature"`
	PlanID      string `json:"plan_id,omitempty"`
	Reason      string `json:"reason,omitempty"`
	UpgradeHint string `json:"upgrade_hint,omitempty"`
}

// Err returns nil when allowed, otherwise an error wrapping
// ErrFeatureDisabled that carries the decision metadata.
func (d FeatureDecision) Err() error {
	if d.Allowed {
		return nil
	}
	return fmt.Errorf("%w: %q on plan %q (%s)", ErrFeatureDisabled, d.Feature, d.PlanID, d.Reason)
}

// LimitDecision is the result of a limit check.
type LimitDecision struct {
	Allowed      bool          `json:"allowed"`
	LimitKey     plan.LimitKey `json:"limit_key"`
	Metric       usage.Metric  `json:"metric"`
	CurrentUsage int64         `json:"current_usage"`
	Limit        int64         `json:"limit"`
	Percentage   float64       `json:"percentage"`
	Unlimited    bool          `json:"unlimited"`
	PlanID       string        `json:"plan_id,omitempty"`
	Reason       string        `json:"reason,omitempty"`
	UpgradeHint  string        `json:"upgrade_hint,omitempty"`
}

// Err returns nil when allowed, otherwise an error wrapping ErrLimitExceeded.
func (d LimitDecision) Err() error {
	if d.Allowed {
		return nil
	}
	return fmt.Errorf("%w: %s %d/%d (%.1f%%) on plan %q", ErrLimitExceeded, d.LimitKey, d.CurrentUsage, d.Limit, d.Percentage, d.PlanID)
}

// PermissionDecision is the result of a role permission check.
type PermissionDecision struct {
	Allowed    bool        `json:"allowed"`
	Permission string      `json:"permission"`
	Role       tenant.Role `json:"role,omitempty"`
	Explicit   bool        `json:"explicit,omitempty"`
	Reason     string      `json:"reason,omitempty"`
}

// Err returns nil when allowed, otherwise an error wrapping
// ErrPermissionDenied.
func (d PermissionDecision) Err() error {
	if d.Allowed {
		return nil
	}
	return fmt.Errorf("%w: %q for role %q (%s)", ErrPermissionDenied, d.Permission, d.Role, d.Reason)
}

// Policy tunes a limit check for one call site.
type Policy struct {
	// AllowOverage enables the overage branch.
	AllowOverage bool
	// Overage is how far past the limit usage may go while still allowed.
	Overage int64
}

// LimitOption configures a single CheckLimit call.
type LimitOption func(*Policy)

// WithOverage allows usage up to n units past the limit.
func WithOverage(n int64) LimitOption {
	return func(p *Policy) {
		p.AllowOverage = true
		p.Overage = max(n, 0)
	}
}

// MetricFor maps a plan limit to the usage metric it bounds.
func MetricFor(key plan.LimitKey) (usage.Metric, bool) {
	switch key {
	case plan.LimitMaxUsers:
		return usage.MetricUsers, true
	case plan.LimitMaxEvents:
		return usage.MetricEvents, true
	case plan.LimitMaxStorage:
		return usage.MetricStorage, true
	case plan.LimitAPICallsPerMonth:
		return usage.MetricAPICalls, true
	}
	return "", false
}

// LimitKeyFor maps a usage metric to the plan limit bounding it.
func LimitKeyFor(m usage.Metric) (plan.LimitKey, bool) {
	switch m {
	case usage.MetricUsers:
		return plan.LimitMaxUsers, true
	case usage.MetricEvents:
		return plan.LimitMaxEvents, true
	case usage.MetricStorage:
		return plan.LimitMaxStorage, true
	case usage.MetricAPICalls:
		return plan.LimitAPICallsPerMonth, true
	}
	return "", false
}

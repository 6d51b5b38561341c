package gate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/tenancy/id"
	"github.com/xraph/tenancy/plan"
	"github.com/xraph/tenancy/tenant"
	"github.com/xraph/tenancy/usage"
)

// UsageReader reads the current counters of a tenant. The gate never writes.
type UsageReader interface {
	GetUsage(ctx context.Context, tenantID id.TenantID) (*usage.Usage, error)
}

// Gate evaluates feature, limit and permission checks against resolved
// tenant contexts.
type Gate struct {
	catalog     plan.Catalog
	usage       UsageReader
	permissions *PermissionPolicy
	logger      *slog.Logger
}

// Option configures a Gate.
type Option func(*Gate)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gate) { g.logger = l }
}

// WithPermissions sets the role permission policy.
func WithPermissions(p *PermissionPolicy) Option {
	return func(g *Gate) { g.permissions = p }
}

// New creates a Gate. The catalog is only used for upgrade hints and may be
// nil.
func New(catalog plan.Catalog, reader UsageReader, opts ...Option) *Gate {
	g := &Gate{
		catalog: catalog,
		usage:   reader,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.permissions == nil {
		g.permissions = MustDefaultPermissions()
	}
	return g
}

// Permissions returns the gate's permission policy.
func (g *Gate) Permissions() *PermissionPolicy { return g.permissions }

// CheckFeature reports whether tc's plan enables feature. A nil or invalid
// context is denied.
func (g *Gate) CheckFeature(tc *tenant.Context, feature string) FeatureDecision {
	d := FeatureDecision{Feature: feature}
	if !tc.Valid() {
		d.Reason = ReasonNoContext
		return d
	}
	d.PlanID = tc.Plan.ID

	if tc.Plan.HasFeature(feature) {
		d.Allowed = true
		return d
	}

	d.Reason = ReasonFeatureAbsent
	if up := plan.UpgradeForFeature(g.catalog, tc.Plan, feature); up != nil {
		d.UpgradeHint = up.ID
	}
	return d
}

// CheckLimit reads the counter bounded by key and decides whether one more
// unit of work may proceed. Store failures are returned as errors so callers
// can tell infrastructure trouble apart from a denial.
func (g *Gate) CheckLimit(ctx context.Context, tc *tenant.Context, key plan.LimitKey, opts ...LimitOption) (LimitDecision, error) {
	metric, ok := MetricFor(key)
	d := LimitDecision{LimitKey: key, Metric: metric}
	if !ok {
		d.Reason = ReasonUnknownLimit
		return d, nil
	}
	if !tc.Valid() {
		d.Reason = ReasonNoContext
		return d, nil
	}

	limit, _ := tc.Plan.Limit(key)
	var policy Policy
	for _, opt := range opts {
		opt(&policy)
	}

	u, err := g.usage.GetUsage(ctx, tc.TenantID)
	if err != nil {
		return d, fmt.Errorf("gate: read usage: %w", err)
	}

	out := EvaluateLimit(limit, u.Get(metric), policy)
	out.LimitKey = key
	out.Metric = metric
	out.PlanID = tc.Plan.ID
	if !out.Allowed {
		if up := plan.UpgradeForLimit(g.catalog, tc.Plan, key); up != nil {
			out.UpgradeHint = up.ID
		}
		g.logger.Debug("gate: limit denied",
			"tenant_id", tc.TenantID.String(),
			"limit", string(key),
			"current", out.CurrentUsage,
			"max", out.Limit,
		)
	}
	return out, nil
}

// EvaluateLimit decides a limit check from its inputs alone. An unlimited
// limit always allows with percentage 0. Otherwise usage must be strictly
// below the limit, or within the overage allowance when the policy enables
// one.
func EvaluateLimit(limit, current int64, policy Policy) LimitDecision {
	d := LimitDecision{CurrentUsage: current, Limit: limit}
	if limit == plan.Unlimited {
		d.Allowed = true
		d.Unlimited = true
		return d
	}

	d.Percentage = usage.Percentage(current, limit)
	switch {
	case current < limit:
		d.Allowed = true
	case policy.AllowOverage && current-limit <= policy.Overage:
		d.Allowed = true
		d.Reason = ReasonOverage
	default:
		d.Reason = ReasonLimitReached
	}
	return d
}

// CheckPermission reports whether tc's member may perform permission. A nil
// or invalid context is denied.
func (g *Gate) CheckPermission(tc *tenant.Context, permission string) (PermissionDecision, error) {
	d := PermissionDecision{Permission: permission}
	if !tc.Valid() {
		d.Reason = ReasonNoContext
		return d, nil
	}
	d.Role = tc.Role()

	if tc.Membership.HasPermission(permission) {
		d.Allowed = true
		d.Explicit = true
		return d, nil
	}

	ok, err := g.permissions.Allows(d.Role, permission)
	if err != nil {
		return d, fmt.Errorf("gate: enforce permission: %w", err)
	}
	d.Allowed = ok
	if !ok {
		d.Reason = ReasonNoPermission
	}
	return d, nil
}

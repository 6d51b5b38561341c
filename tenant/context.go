package tenant

import (
	"context"
	"errors"
	"time"

	"github.com/xraph/tenancy/id"
	"github.com/xraph/tenancy/plan"
)

var (
	// ErrNoContext is returned when a tenant context could not be resolved
	// because the tenant, membership or plan does not exist.
	ErrNoContext = errors.New("tenancy: tenant context not found")
	// ErrAccessDenied is returned when a context resolves but must not be
	// used: inactive membership or suspended/cancelled tenant.
	ErrAccessDenied = errors.New("tenancy: access denied")
)

// Snapshot is the slice of a tenant record captured at resolution time.
type Snapshot struct {
	ID       id.TenantID `json:"id"`
	Name     string      `json:"name"`
	PlanID   string      `json:"plan_id"`
	Status   Status      `json:"status"`
	Settings Settings    `json:"settings"`
}

// SnapshotOf captures t.
func SnapshotOf(t *Tenant) Snapshot {
	return Snapshot{
		ID:       t.ID,
		Name:     t.Name,
		PlanID:   t.PlanID,
		Status:   t.Status,
		Settings: t.Settings.Clone(),
	}
}

// Context is the resolved authorization context of one (user, tenant) pair.
// It is shared between cache readers and must be treated as read-only.
type Context struct {
	TenantID   id.TenantID `json:"tenant_id"`
	UserID     string      `json:"user_id"`
	Tenant     Snapshot    `json:"tenant"`
	Membership Membership  `json:"membership"`
	Plan       *plan.Plan  `json:"plan"`
	ResolvedAt time.Time   `json:"resolved_at"`
}

// Valid reports whether the context may authorize anything: the membership
// is active and the tenant is neither suspended nor cancelled.
func (c *Context) Valid() bool {
	if c == nil || c.Plan == nil {
		return false
	}
	return c.Membership.IsActive && !c.Tenant.Status.Blocked()
}

// Role returns the member's role, or "" for a nil context.
func (c *Context) Role() Role {
	if c == nil {
		return ""
	}
	return c.Membership.Role
}

// HasFeature reports whether the context's plan enables feature.
func (c *Context) HasFeature(feature string) bool {
	return c.Valid() && c.Plan.HasFeature(feature)
}

type contextKey struct{}

// WithContext returns a copy of ctx carrying tc.
func WithContext(ctx context.Context, tc *Context) context.Context {
	return context.WithValue(ctx, contextKey{}, tc)
}

// FromContext extracts the tenant context stored by WithContext.
func FromContext(ctx context.Context) (*Context, bool) {
	tc, ok := ctx.Value(contextKey{}).(*Context)
	return tc, ok && tc != nil
}

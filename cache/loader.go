package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"

	"github.com/xraph/tenancy/id"
	"github.com/xraph/tenancy/plan"
	"github.com/xraph/tenancy/tenant"
)

// StoreLoader resolves contexts from a tenant store and a plan catalog.
//
// Missing tenants, memberships or plans yield tenant.ErrNoContext; a
// suspended or cancelled tenant yields tenant.ErrAccessDenied. Any other
// store error is returned as is and should be treated as transient.
type StoreLoader struct {
	Tenants tenant.Store
	Plans   plan.Catalog
	Clock   clockwork.Clock
}

var _ Loader = (*StoreLoader)(nil)

// Load implements Loader.
func (l *StoreLoader) Load(ctx context.Context, userID string, tenantID id.TenantID) (*tenant.Context, error) {
	t, err := l.Tenants.GetTenant(ctx, tenantID)
	if err != nil {
		if errors.Is(err, tenant.ErrNotFound) {
			return nil, fmt.Errorf("%w: %w", tenant.ErrNoContext, err)
		}
		return nil, fmt.Errorf("cache: load tenant: %w", err)
	}
	if t.Status.Blocked() {
		return nil, fmt.Errorf("%w: tenant %s is %s", tenant.ErrAccessDenied, tenantID, t.Status)
	}

	m, err := l.Tenants.GetActiveMembership(ctx, tenantID, userID)
	if err != nil {
		if errors.Is(err, tenant.ErrMembershipNotFound) {
			return nil, fmt.Errorf("%w: %w", tenant.ErrNoContext, err)
		}
		return nil, fmt.Errorf("cache: load membership: %w", err)
	}
	if !m.IsActive {
		return nil, fmt.Errorf("%w: membership %s is inactive", tenant.ErrAccessDenied, m.ID)
	}

	var p *plan.Plan
	if t.PlanID == "" {
		p = l.Plans.Fallback()
	} else if p, err = l.Plans.Get(t.PlanID); err != nil {
		if errors.Is(err, plan.ErrNotFound) {
			return nil, fmt.Errorf("%w: %w", tenant.ErrNoContext, err)
		}
		return nil, fmt.Errorf("cache: load plan: %w", err)
	}

	clock := l.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &tenant.Context{
		TenantID:   tenantID,
		UserID:     userID,
		Tenant:     tenant.SnapshotOf(t),
		Membership: *m,
		Plan:       p,
		ResolvedAt: clock.Now().UTC(),
	}, nil
}

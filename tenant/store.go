package tenant

import (
	"context"
	"errors"

	"github.com/xraph/tenancy/id"
)

var (
	ErrNotFound           = errors.New("tenancy: tenant not found")
	ErrAlreadyExists      = errors.New("tenancy: tenant already exists")
	ErrMembershipNotFound = errors.New("tenancy: membership not found")
	ErrMembershipExists   = errors.New("tenancy: membership already exists")
)

// Store persists tenants and memberships. Absent records are reported with
// ErrNotFound or ErrMembershipNotFound.
type Store interface {
	CreateTenant(ctx context.Context, t *Tenant) error
	GetTenant(ctx context.Context, tenantID id.TenantID) (*Tenant, error)
	GetTenantBySlug(ctx context.Context, slug string) (*Tenant, error)
	// UpdateTenant writes every field except Usage.
	UpdateTenant(ctx context.Context, t *Tenant) error
	ListTenants(ctx context.Context, opts ListOpts) ([]*Tenant, error)

	CreateMembership(ctx context.Context, m *Membership) error
	GetMembership(ctx context.Context, membershipID id.MembershipID) (*Membership, error)
	// GetActiveMembership returns the user's active membership in a tenant.
	GetActiveMembership(ctx context.Context, tenantID id.TenantID, userID string) (*Membership, error)
	UpdateMembership(ctx context.Context, m *Membership) error
	// ListMemberships returns every membership a user holds, active or not.
	ListMemberships(ctx context.Context, userID string) ([]*Membership, error)
}

// Package tenant defines tenants, memberships and the resolved per-request
// tenant context.
package tenant

import (
	"github.com/xraph/tenancy/id"
	"github.com/xraph/tenancy/types"
	"github.com/xraph/tenancy/usage"
)

// Status is the lifecycle state of a tenant.
type Status string

const (
	StatusActive    Status = "active"
	StatusTrial     Status = "trial"
	StatusSuspended Status = "suspended"
	StatusCancelled Status = "cancelled"
)

// Blocked reports whether tenants in this status must be denied access.
func (s Status) Blocked() bool {
	return s == StatusSuspended || s == StatusCancelled
}

// Billable reports whether the tenant takes part in periodic usage
// recalculation.
func (s Status) Billable() bool {
	return s == StatusActive || s == StatusTrial
}

// Settings holds tenant-level preferences.
type Settings struct {
	Timezone       string            `json:"timezone,omitempty" bson:"timezone,omitempty"`
	Locale         string            `json:"locale,omitempty" bson:"locale,omitempty"`
	CustomDomain   string            `json:"custom_domain,omitempty" bson:"custom_domain,omitempty"`
	AllowedDomains []string          `json:"allowed_domains,omitempty" bson:"allowed_domains,omitempty"`
	Custom         map[string]string `json:"custom,omitempty" bson:"custom,omitempty"`
}

// Clone returns a deep copy of s.
func (s Settings) Clone() Settings {
	c := s
	if s.AllowedDomains != nil {
		c.AllowedDomains = append([]string(nil), s.AllowedDomains...)
	}
	if s.Custom != nil {
		c.Custom = make(map[string]string, len(s.Custom))
		for k, v := range s.Custom {
			c.Custom[k] = v
		}
	}
	return c
}

// Tenant is an organization-level isolation boundary. Usage is the embedded
// counter snapshot; it is owned by usage.Store and never written through
// the tenant store's update path.
type Tenant struct {
	types.Entity
	ID       id.TenantID `json:"id"`
	Name     string      `json:"name"`
	Slug     string      `json:"slug"`
	PlanID   string      `json:"plan_id"`
	Status   Status      `json:"status"`
	Settings Settings    `json:"settings"`
	Usage    usage.Usage `json:"usage"`
}

// Role is a member's role within a tenant.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleViewer Role = "viewer"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember, RoleViewer:
		return true
	}
	return false
}

// Membership links a user to a tenant.
type Membership struct {
	types.Entity
	ID                 id.MembershipID `json:"id"`
	TenantID           id.TenantID     `json:"tenant_id"`
	UserID             string          `json:"user_id"`
	Role               Role            `json:"role"`
	FeaturePermissions []string        `json:"feature_permissions,omitempty"`
	IsActive           bool            `json:"is_active"`
}

// HasPermission reports whether perm was granted explicitly on the membership.
func (m *Membership) HasPermission(perm string) bool {
	for _, p := range m.FeaturePermissions {
		if p == perm {
			return true
		}
	}
	return false
}

// ListOpts filters tenant listings.
type ListOpts struct {
	Statuses []Status
	Limit    int
	Offset   int
}

package gate

import (
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"

	"github.com/xraph/tenancy/tenant"
)

// Role-based access model. Roles inherit downwards through g; objects are
// matched with keyMatch so "*" and "reports.*" grant by prefix.
const permissionModel = `
[request_definition]
r = sub, obj

[policy_definition]
p = sub, obj

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && keyMatch(r.obj, p.obj)
`

// DefaultGrants are the permissions each role holds on its own. Higher
// roles also inherit everything below them.
var DefaultGrants = map[tenant.Role][]string{
	tenant.RoleOwner:  {"*"},
	tenant.RoleAdmin:  {"*"},
	tenant.RoleMember: {"events.*", "reports.*", "usage.read"},
	tenant.RoleViewer: {"dashboard.view", "events.read", "reports.read"},
}

// roleChain lists each role with the role it inherits from.
var roleChain = [][2]tenant.Role{
	{tenant.RoleOwner, tenant.RoleAdmin},
	{tenant.RoleAdmin, tenant.RoleMember},
	{tenant.RoleMember, tenant.RoleViewer},
}

// PermissionPolicy maps member roles to permissions with a casbin RBAC
// enforcer held in memory.
type PermissionPolicy struct {
	enforcer *casbin.SyncedEnforcer
}

// NewPermissionPolicy builds a policy from grants. Role inheritance
// owner > admin > member > viewer is always installed.
func NewPermissionPolicy(grants map[tenant.Role][]string) (*PermissionPolicy, error) {
	m, err := model.NewModelFromString(permissionModel)
	if err != nil {
		return nil, fmt.Errorf("gate: permission model: %w", err)
	}
	e, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("gate: permission enforcer: %w", err)
	}

	for _, link := range roleChain {
		if _, err := e.AddGroupingPolicy(subject(link[0]), subject(link[1])); err != nil {
			return nil, fmt.Errorf("gate: role %s: %w", link[0], err)
		}
	}

	p := &PermissionPolicy{enforcer: e}
	for role, perms := range grants {
		if err := p.Grant(role, perms...); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// MustDefaultPermissions returns a policy built from DefaultGrants and
// panics if the built-in model fails to load.
func MustDefaultPermissions() *PermissionPolicy {
	p, err := NewPermissionPolicy(DefaultGrants)
	if err != nil {
		panic(err)
	}
	return p
}

// Grant adds permissions to role.
func (p *PermissionPolicy) Grant(role tenant.Role, perms ...string) error {
	if !role.Valid() {
		return fmt.Errorf("gate: unknown role %q", role)
	}
	for _, perm := range perms {
		perm = strings.TrimSpace(perm)
		if perm == "" {
			continue
		}
		if _, err := p.enforcer.AddPolicy(subject(role), perm); err != nil {
			return fmt.Errorf("gate: grant %s to %s: %w", perm, role, err)
		}
	}
	return nil
}

// Revoke removes a permission directly granted to role.
func (p *PermissionPolicy) Revoke(role tenant.Role, perm string) error {
	if _, err := p.enforcer.RemovePolicy(subject(role), perm); err != nil {
		return fmt.Errorf("gate: revoke %s from %s: %w", perm, role, err)
	}
	return nil
}

// Allows reports whether role holds permission directly or by inheritance.
func (p *PermissionPolicy) Allows(role tenant.Role, permission string) (bool, error) {
	if !role.Valid() {
		return false, nil
	}
	return p.enforcer.Enforce(subject(role), permission)
}

func subject(r tenant.Role) string {
	return "role:" + string(r)
}

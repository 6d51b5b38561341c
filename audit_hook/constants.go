package audithook

// Action constants for audit events.
const (
	// Tenant actions
	ActionTenantCreated     = "tenant.created"
	ActionTenantPlanChanged = "tenant.plan_changed"
	ActionTenantSuspended   = "tenant.suspended"
	ActionTenantReactivated = "tenant.reactivated"

	// Membership actions
	ActionMemberAdded       = "member.added"
	ActionMemberRemoved     = "member.removed"
	ActionMemberRoleChanged = "member.role_changed"

	// Access actions
	ActionContextDenied = "context.denied"
	ActionFeatureDenied = "feature.denied"
	ActionLimitDenied   = "limit.denied"

	// Usage actions
	ActionUsageDegraded     = "usage.degraded"
	ActionUsageRecalculated = "usage.recalculated"

	// Alert actions
	ActionAlertCreated  = "alert.created"
	ActionAlertUpdated  = "alert.updated"
	ActionAlertResolved = "alert.resolved"
	ActionAlertNotified = "alert.notified"
)

// Resource constants for audit events.
const (
	ResourceTenant     = "tenant"
	ResourceMembership = "membership"
	ResourceFeature    = "feature"
	ResourceLimit      = "limit"
	ResourceUsage      = "usage"
	ResourceAlert      = "alert"
)

// Category constants for audit events.
const (
	CategoryTenant = "tenant"
	CategoryMember = "membership"
	CategoryAccess = "access"
	CategoryUsage  = "usage"
	CategoryAlert  = "alert"
	CategoryNotify = "notification"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)

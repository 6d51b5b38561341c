package tenancy

import (
	"github.com/xraph/tenancy/plan"
	"github.com/xraph/tenancy/tenant"
	"github.com/xraph/tenancy/types"
	"github.com/xraph/tenancy/usage"
)

// Re-export common types for convenience so users don't have to import every
// subpackage.

// Entity is re-exported from types package.
type Entity = types.Entity

// Context is re-exported from tenant package.
type Context = tenant.Context

// Metric is re-exported from usage package.
type Metric = usage.Metric

// Usage metrics.
const (
	MetricUsers    = usage.MetricUsers
	MetricEvents   = usage.MetricEvents
	MetricStorage  = usage.MetricStorage
	MetricAPICalls = usage.MetricAPICalls
)

// LimitKey is re-exported from plan package.
type LimitKey = plan.LimitKey

// Plan limit keys.
const (
	LimitMaxUsers         = plan.LimitMaxUsers
	LimitMaxEvents        = plan.LimitMaxEvents
	LimitMaxStorage       = plan.LimitMaxStorage
	LimitAPICallsPerMonth = plan.LimitAPICallsPerMonth
)

// Re-export Entity constructors
var (
	NewEntity   = types.NewEntity
	NewEntityAt = types.NewEntityAt
)

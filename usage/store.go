package usage

import (
	"context"
	"errors"
	"time"

	"github.com/xraph/tenancy/id"
)

var (
	// ErrNotFound is returned when the tenant owning a counter does not exist.
	ErrNotFound      = errors.New("tenancy: usage not found")
	ErrInvalidMetric = errors.New("tenancy: invalid usage metric")
	ErrInvalidDelta  = errors.New("tenancy: invalid usage delta")
	// ErrNoSources is returned by Recalculate when no Sources are configured.
	ErrNoSources = errors.New("tenancy: usage sources not configured")
)

// Mutation is one counter change.
type Mutation struct {
	// Op is OpIncrement, OpDecrement or OpSet.
	Op     string
	Metric Metric
	Amount int64
}

// Apply returns the counter value after m is applied to previous.
// Decrements clamp at zero.
func (m Mutation) Apply(previous int64) int64 {
	switch m.Op {
	case OpDecrement:
		return max(previous-m.Amount, 0)
	case OpSet:
		return max(m.Amount, 0)
	default:
		return previous + m.Amount
	}
}

// Store persists counters and the usage log. Counter writes must be atomic
// at the storage layer so concurrent writers never lose updates.
type Store interface {
	// ApplyUsage applies m to the tenant's counter and, when the counter
	// moved and rec is non-nil, appends rec with Value set to the signed
	// change. Both writes commit together or not at all. It returns the
	// counter values before and after.
	ApplyUsage(ctx context.Context, tenantID id.TenantID, m Mutation, rec *Record) (previous, current int64, err error)
	GetUsage(ctx context.Context, tenantID id.TenantID) (*Usage, error)
	// ReplaceUsage overwrites all four counters.
	ReplaceUsage(ctx context.Context, tenantID id.TenantID, u Usage) error

	ListRecords(ctx context.Context, tenantID id.TenantID, opts QueryOpts) ([]*Record, error)
	PurgeRecords(ctx context.Context, before time.Time) (int64, error)
}

// Sources computes counters from authoritative data for recalculation.
type Sources interface {
	CountActiveMemberships(ctx context.Context, tenantID id.TenantID) (int64, error)
	CountEvents(ctx context.Context, tenantID id.TenantID) (int64, error)
	ComputeStorage(ctx context.Context, tenantID id.TenantID) (int64, error)
	CountAPICalls(ctx context.Context, tenantID id.TenantID, since time.Time) (int64, error)
}

// Evaluator re-derives alert state after a counter changes.
type Evaluator interface {
	EvaluateUsage(ctx context.Context, tenantID id.TenantID, metric Metric, current int64) (Evaluation, error)
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc func(ctx context.Context, tenantID id.TenantID, metric Metric, current int64) (Evaluation, error)

// EvaluateUsage implements Evaluator.
func (f EvaluatorFunc) EvaluateUsage(ctx context.Context, tenantID id.TenantID, metric Metric, current int64) (Evaluation, error) {
	return f(ctx, tenantID, metric, current)
}

// Evaluation summarizes what an Evaluator did.
type Evaluation struct {
	// Change is one of "none", "created", "updated", "resolved".
	Change  string     `json:"change"`
	AlertID id.AlertID `json:"alert_id,omitempty"`
	// Level is the alert type after evaluation, empty when inactive.
	Level      string  `json:"level,omitempty"`
	Percentage float64 `json:"percentage"`
}

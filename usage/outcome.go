package usage

import "github.com/xraph/tenancy/id"

// Outcome reports the effects of one ledger operation. A non-nil Outcome
// means the counter write and its usage record were committed; AlertErr
// describes an alert evaluation that was attempted and failed.
type Outcome struct {
	TenantID id.TenantID
	Metric   Metric
	Previous int64
	Current  int64
	// Applied is the signed change actually made to the counter.
	Applied int64

	// Record is the appended usage record, nil if the counter did not move.
	Record *Record

	// Evaluation is nil when no evaluator ran or it failed.
	Evaluation *Evaluation
	AlertErr   error
}

// Changed reports whether the counter moved.
func (o *Outcome) Changed() bool { return o != nil && o.Applied != 0 }

// Degraded reports whether alert evaluation failed.
func (o *Outcome) Degraded() bool {
	return o != nil && o.AlertErr != nil
}

// SideEffectErr returns the alert evaluation error, or nil.
func (o *Outcome) SideEffectErr() error {
	if o == nil {
		return nil
	}
	return o.AlertErr
}

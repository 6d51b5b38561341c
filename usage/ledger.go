package usage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"

	"github.com/xraph/tenancy/id"
)

// Ledger applies usage changes. A counter write and its usage record are
// one unit: if either fails the counter is left unchanged and the error is
// returned. Re-evaluating alerts is a secondary effect whose failure is
// logged and reported on the Outcome.
type Ledger struct {
	store     Store
	sources   Sources
	evaluator Evaluator
	clock     clockwork.Clock
	logger    *slog.Logger
	validate  *validator.Validate
}

// LedgerOption configures a Ledger.
type LedgerOption func(*Ledger)

// WithSources sets the authoritative sources used by Recalculate.
func WithSources(s Sources) LedgerOption {
	return func(l *Ledger) { l.sources = s }
}

// WithEvaluator sets the alert evaluator run after each change.
func WithEvaluator(e Evaluator) LedgerOption {
	return func(l *Ledger) { l.evaluator = e }
}

// WithClock sets the clock used for record timestamps and the API-call month.
func WithClock(c clockwork.Clock) LedgerOption {
	return func(l *Ledger) { l.clock = c }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) LedgerOption {
	return func(l *Ledger) { l.logger = logger }
}

// NewLedger creates a Ledger over s.
func NewLedger(s Store, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		store:    s,
		clock:    clockwork.NewRealClock(),
		logger:   slog.Default(),
		validate: validator.New(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// change is the validated input of every ledger operation.
type change struct {
	Metric Metric `validate:"required,oneof=users events storage apiCalls"`
	Amount int64  `validate:"gte=0"`
	Source string `validate:"max=128"`
}

func (l *Ledger) check(tenantID id.TenantID, metric Metric, amount int64, source string) error {
	if tenantID.IsNil() {
		return fmt.Errorf("%w: tenant id is required", ErrNotFound)
	}
	err := l.validate.Struct(change{Metric: metric, Amount: amount, Source: source})
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		switch verrs[0].Field() {
		case "Metric":
			return fmt.Errorf("%w: %q", ErrInvalidMetric, metric)
		case "Amount":
			return fmt.Errorf("%w: %d", ErrInvalidDelta, amount)
		}
	}
	return fmt.Errorf("%w: %w", ErrInvalidDelta, err)
}

// Increment adds delta to the counter. The counter may overshoot the plan
// limit; limits are enforced by the gate, not here.
func (l *Ledger) Increment(ctx context.Context, tenantID id.TenantID, metric Metric, delta int64, source string, meta map[string]string) (*Outcome, error) {
	if err := l.check(tenantID, metric, delta, source); err != nil {
		return nil, err
	}

	m := Mutation{Op: OpIncrement, Metric: metric, Amount: delta}
	out, err := l.apply(ctx, tenantID, m, source, withOp(meta, OpIncrement, nil))
	if err != nil {
		return nil, fmt.Errorf("usage: increment %s: %w", metric, err)
	}
	if out.Changed() {
		l.evaluate(ctx, out)
	}
	return out, nil
}

// Decrement subtracts up to delta from the counter, clamping at zero. Only
// the amount actually removed is logged, and alerts are evaluated only when
// the counter changed.
func (l *Ledger) Decrement(ctx context.Context, tenantID id.TenantID, metric Metric, delta int64, source string, meta map[string]string) (*Outcome, error) {
	if err := l.check(tenantID, metric, delta, source); err != nil {
		return nil, err
	}

	m := Mutation{Op: OpDecrement, Metric: metric, Amount: delta}
	out, err := l.apply(ctx, tenantID, m, source, withOp(meta, OpDecrement, map[string]string{
		MetaRequested: strconv.FormatInt(delta, 10),
	}))
	if err != nil {
		return nil, fmt.Errorf("usage: decrement %s: %w", metric, err)
	}
	if out.Changed() {
		l.evaluate(ctx, out)
	}
	return out, nil
}

// Set overwrites the counter with value clamped to >= 0. The signed
// difference from the previous value is logged as a "set" operation.
func (l *Ledger) Set(ctx context.Context, tenantID id.TenantID, metric Metric, value int64, source string, meta map[string]string) (*Outcome, error) {
	value = max(value, 0)
	if err := l.check(tenantID, metric, value, source); err != nil {
		return nil, err
	}

	m := Mutation{Op: OpSet, Metric: metric, Amount: value}
	out, err := l.apply(ctx, tenantID, m, source, withOp(meta, OpSet, map[string]string{
		MetaValue: strconv.FormatInt(value, 10),
	}))
	if err != nil {
		return nil, fmt.Errorf("usage: set %s: %w", metric, err)
	}
	l.evaluate(ctx, out)
	return out, nil
}

// Record dispatches on the sign of delta: positive and zero increment,
// negative decrement.
func (l *Ledger) Record(ctx context.Context, tenantID id.TenantID, metric Metric, delta int64, source string, meta map[string]string) (*Outcome, error) {
	if delta < 0 {
		return l.Decrement(ctx, tenantID, metric, -delta, source, meta)
	}
	return l.Increment(ctx, tenantID, metric, delta, source, meta)
}

// Recalculate recomputes every counter from the configured Sources and
// overwrites the stored snapshot. API calls are counted from the start of
// the current calendar month (UTC). Running it twice with no intervening
// writes yields the same counters.
func (l *Ledger) Recalculate(ctx context.Context, tenantID id.TenantID) (*Usage, error) {
	if l.sources == nil {
		return nil, ErrNoSources
	}
	if tenantID.IsNil() {
		return nil, fmt.Errorf("%w: tenant id is required", ErrNotFound)
	}

	var (
		u   Usage
		err error
	)
	if u.Users, err = l.sources.CountActiveMemberships(ctx, tenantID); err != nil {
		return nil, fmt.Errorf("usage: recalculate users: %w", err)
	}
	if u.Events, err = l.sources.CountEvents(ctx, tenantID); err != nil {
		return nil, fmt.Errorf("usage: recalculate events: %w", err)
	}
	if u.Storage, err = l.sources.ComputeStorage(ctx, tenantID); err != nil {
		return nil, fmt.Errorf("usage: recalculate storage: %w", err)
	}
	if u.APICalls, err = l.sources.CountAPICalls(ctx, tenantID, MonthStart(l.clock.Now())); err != nil {
		return nil, fmt.Errorf("usage: recalculate api calls: %w", err)
	}

	for _, m := range Metrics() {
		u.Set(m, max(u.Get(m), 0))
	}

	if err := l.store.ReplaceUsage(ctx, tenantID, u); err != nil {
		return nil, fmt.Errorf("usage: replace snapshot: %w", err)
	}

	for _, m := range Metrics() {
		out := &Outcome{TenantID: tenantID, Metric: m, Current: u.Get(m)}
		l.evaluate(ctx, out)
	}

	l.logger.Debug("usage recalculated",
		"tenant_id", tenantID.String(),
		"users", u.Users,
		"events", u.Events,
		"storage", u.Storage,
		"api_calls", u.APICalls,
	)
	return &u, nil
}

// Get returns the stored counters.
func (l *Ledger) Get(ctx context.Context, tenantID id.TenantID) (*Usage, error) {
	return l.store.GetUsage(ctx, tenantID)
}

// apply writes the counter and its record through the store in one step.
func (l *Ledger) apply(ctx context.Context, tenantID id.TenantID, m Mutation, source string, meta map[string]string) (*Outcome, error) {
	rec := &Record{
		ID:        id.NewUsageRecordID(),
		TenantID:  tenantID,
		Metric:    m.Metric,
		Timestamp: l.clock.Now().UTC(),
		Source:    source,
		Metadata:  meta,
	}
	previous, current, err := l.store.ApplyUsage(ctx, tenantID, m, rec)
	if err != nil {
		return nil, err
	}

	out := &Outcome{
		TenantID: tenantID,
		Metric:   m.Metric,
		Previous: previous,
		Current:  current,
		Applied:  current - previous,
	}
	if out.Applied != 0 {
		rec.Value = out.Applied
		out.Record = rec
	}
	return out, nil
}

func (l *Ledger) evaluate(ctx context.Context, out *Outcome) {
	if l.evaluator == nil {
		return
	}
	ev, err := l.evaluator.EvaluateUsage(ctx, out.TenantID, out.Metric, out.Current)
	if err != nil {
		out.AlertErr = err
		l.logger.Warn("usage: alert evaluation failed",
			"tenant_id", out.TenantID.String(),
			"metric", string(out.Metric),
			"current", out.Current,
			"error", err,
		)
		return
	}
	out.Evaluation = &ev
}

func withOp(meta map[string]string, op string, extra map[string]string) map[string]string {
	out := make(map[string]string, len(meta)+len(extra)+1)
	for k, v := range meta {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	out[MetaOperation] = op
	return out
}

// MonthStart returns midnight UTC on the first day of t's month.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

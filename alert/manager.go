package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/xraph/tenancy/id"
	"github.com/xraph/tenancy/plan"
	"github.com/xraph/tenancy/types"
	"github.com/xraph/tenancy/usage"
)

// Change is the kind of state transition an evaluation produced.
type Change string

const (
	ChangeNone     Change = "none"
	ChangeCreated  Change = "created"
	ChangeUpdated  Change = "updated"
	ChangeResolved Change = "resolved"
)

// Transition describes the result of one evaluation.
type Transition struct {
	Change Change
	// Alert is the alert after the transition, nil for ChangeNone.
	Alert *Alert
	// From is the alert type before the transition, empty if there was no
	// active alert.
	From       Type
	Percentage float64
}

// Escalated reports whether the alert moved to a more severe type.
func (t Transition) Escalated() bool {
	if t.Alert == nil {
		return false
	}
	return t.Change == ChangeCreated || (t.Change == ChangeUpdated && t.Alert.Type.Severity() > t.From.Severity())
}

// Evaluation converts t into the ledger's summary form.
func (t Transition) Evaluation() usage.Evaluation {
	ev := usage.Evaluation{Change: string(t.Change), Percentage: t.Percentage}
	if t.Alert != nil {
		ev.AlertID = t.Alert.ID
		if t.Alert.IsActive {
			ev.Level = string(t.Alert.Type)
		}
	}
	return ev
}

// UsageReader reads the stored counters.
type UsageReader interface {
	GetUsage(ctx context.Context, tenantID id.TenantID) (*usage.Usage, error)
}

// Manager evaluates usage against limits and creates, updates or resolves
// alerts. Evaluations of the same (tenant, metric) are serialized within a
// process; the store's uniqueness guarantee covers concurrent processes.
type Manager struct {
	store    Store
	counters UsageReader
	clock    clockwork.Clock
	logger   *slog.Logger
	locks    keyedMutex
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithClock sets the clock used for resolution and creation timestamps.
func WithClock(c clockwork.Clock) ManagerOption {
	return func(m *Manager) { m.clock = c }
}

// WithUsageReader makes Evaluate classify the counter it reads under the
// evaluation lock instead of the value it was called with, so evaluations
// that finish out of order still leave the alert on the latest reading.
func WithUsageReader(r UsageReader) ManagerOption {
	return func(m *Manager) { m.counters = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a Manager over s.
func NewManager(s Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:  s,
		clock:  clockwork.NewRealClock(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Evaluate classifies current against limit and applies the resulting
// transition. An unlimited limit forces any active alert to resolve. With a
// UsageReader configured, current is replaced by the stored counter.
func (m *Manager) Evaluate(ctx context.Context, tenantID id.TenantID, metric usage.Metric, current, limit int64) (Transition, error) {
	unlock := m.locks.Lock(tenantID.String() + "/" + string(metric))
	defer unlock()

	if m.counters != nil {
		u, err := m.counters.GetUsage(ctx, tenantID)
		if err != nil {
			return Transition{}, fmt.Errorf("alert: read usage: %w", err)
		}
		current = u.Get(metric)
	}

	active, err := m.store.GetActiveAlert(ctx, tenantID, metric)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Transition{}, fmt.Errorf("alert: get active: %w", err)
	}
	if errors.Is(err, ErrNotFound) {
		active = nil
	}

	pct := usage.Percentage(current, limit)
	typ, breached := Classify(pct)
	if limit == plan.Unlimited {
		breached = false
	}

	if !breached {
		if active == nil {
			return Transition{Change: ChangeNone, Percentage: pct}, nil
		}
		return m.resolve(ctx, active, current, limit, pct)
	}

	if active != nil {
		return m.update(ctx, active, typ, current, limit, pct)
	}

	now := m.clock.Now().UTC()
	a := &Alert{
		Entity:       types.NewEntityAt(now),
		ID:           id.NewAlertID(),
		TenantID:     tenantID,
		Metric:       metric,
		CurrentValue: current,
		Limit:        limit,
		Percentage:   pct,
		Type:         typ,
		IsActive:     true,
	}
	if err := m.store.CreateAlert(ctx, a); err != nil {
		if !errors.Is(err, ErrDuplicateActive) {
			return Transition{}, fmt.Errorf("alert: create: %w", err)
		}
		// Another process created the active alert first.
		existing, gerr := m.store.GetActiveAlert(ctx, tenantID, metric)
		if gerr != nil {
			return Transition{}, fmt.Errorf("alert: reload after duplicate: %w", gerr)
		}
		return m.update(ctx, existing, typ, current, limit, pct)
	}

	m.logger.Info("usage alert raised",
		"tenant_id", tenantID.String(),
		"metric", string(metric),
		"type", string(typ),
		"percentage", pct,
	)
	return Transition{Change: ChangeCreated, Alert: a, Percentage: pct}, nil
}

func (m *Manager) update(ctx context.Context, a *Alert, typ Type, current, limit int64, pct float64) (Transition, error) {
	from := a.Type
	a.CurrentValue = current
	a.Limit = limit
	a.Percentage = pct
	a.Type = typ
	a.Touch(m.clock.Now())

	if err := m.store.UpdateAlertLevel(ctx, a); err != nil {
		return Transition{}, fmt.Errorf("alert: update: %w", err)
	}

	if from != typ {
		m.logger.Info("usage alert changed",
			"tenant_id", a.TenantID.String(),
			"metric", string(a.Metric),
			"from", string(from),
			"to", string(typ),
			"percentage", pct,
		)
	}
	return Transition{Change: ChangeUpdated, Alert: a, From: from, Percentage: pct}, nil
}

func (m *Manager) resolve(ctx context.Context, a *Alert, current, limit int64, pct float64) (Transition, error) {
	from := a.Type
	now := m.clock.Now().UTC()
	a.CurrentValue = current
	a.Limit = limit
	a.Percentage = pct
	a.IsActive = false
	a.ResolvedAt = &now
	a.Touch(now)

	if err := m.store.ResolveAlert(ctx, a); err != nil {
		return Transition{}, fmt.Errorf("alert: resolve: %w", err)
	}

	m.logger.Info("usage alert resolved",
		"tenant_id", a.TenantID.String(),
		"metric", string(a.Metric),
		"percentage", pct,
	)
	return Transition{Change: ChangeResolved, Alert: a, From: from, Percentage: pct}, nil
}

// keyedMutex hands out one mutex per key and drops it when unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refMutex)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &refMutex{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

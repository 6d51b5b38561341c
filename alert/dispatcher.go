package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

// DefaultNotifyInterval is the minimum gap between two notifications for
// the same alert.
const DefaultNotifyInterval = time.Hour

// Notifier delivers an alert to the outside world (email, webhook, chat).
type Notifier interface {
	Notify(ctx context.Context, a *Alert) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, a *Alert) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, a *Alert) error { return f(ctx, a) }

// DispatchReport summarizes one notification sweep.
type DispatchReport struct {
	Candidates int
	Sent       int
	Failed     int
	Errors     []error
}

// Err joins every send failure, or returns nil.
func (r DispatchReport) Err() error { return errors.Join(r.Errors...) }

// Dispatcher sends notifications for critical and exceeded alerts, at most
// once per interval per alert. Outbound sends are throttled with a token
// bucket so a large sweep cannot flood the notifier.
type Dispatcher struct {
	store    Store
	notifier Notifier
	limiter  *rate.Limiter
	interval time.Duration
	clock    clockwork.Clock
	logger   *slog.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithRateLimit sets the outbound send rate.
func WithRateLimit(r rate.Limit, burst int) DispatcherOption {
	return func(d *Dispatcher) { d.limiter = rate.NewLimiter(r, burst) }
}

// WithNotifyInterval sets the minimum gap between notifications of one alert.
func WithNotifyInterval(i time.Duration) DispatcherOption {
	return func(d *Dispatcher) { d.interval = i }
}

// WithDispatchClock sets the clock.
func WithDispatchClock(c clockwork.Clock) DispatcherOption {
	return func(d *Dispatcher) { d.clock = c }
}

// WithDispatchLogger sets the logger.
func WithDispatchLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = l }
}

// NewDispatcher creates a Dispatcher. The default rate is 10 sends/s.
func NewDispatcher(s Store, n Notifier, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		store:    s,
		notifier: n,
		limiter:  rate.NewLimiter(rate.Limit(10), 10),
		interval: DefaultNotifyInterval,
		clock:    clockwork.NewRealClock(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch runs one sweep. Individual send failures are logged and counted
// in the report; the returned error is non-nil only when the candidate
// listing fails or ctx is cancelled.
func (d *Dispatcher) Dispatch(ctx context.Context) (DispatchReport, error) {
	var report DispatchReport
	if d.notifier == nil {
		return report, nil
	}

	now := d.clock.Now().UTC()
	candidates, err := d.store.ListAlertsForNotification(ctx, NotifiableTypes(), now.Add(-d.interval))
	if err != nil {
		return report, fmt.Errorf("alert: list notification candidates: %w", err)
	}

	for _, a := range candidates {
		if !a.IsActive || !a.Type.Notifiable() || a.NotifiedWithin(now, d.interval) {
			continue
		}
		report.Candidates++

		if err := d.limiter.Wait(ctx); err != nil {
			return report, err
		}

		if err := d.notifier.Notify(ctx, a); err != nil {
			report.Failed++
			report.Errors = append(report.Errors, fmt.Errorf("alert %s: %w", a.ID, err))
			d.logger.Warn("alert: notification failed",
				"alert_id", a.ID.String(),
				"tenant_id", a.TenantID.String(),
				"error", err,
			)
			continue
		}

		sentAt := d.clock.Now().UTC()
		switch err := d.store.MarkAlertNotified(ctx, a.ID, sentAt); {
		case errors.Is(err, ErrNotFound):
			d.logger.Debug("alert: resolved while notifying", "alert_id", a.ID.String())
		case err != nil:
			d.logger.Warn("alert: failed to record notification time",
				"alert_id", a.ID.String(),
				"error", err,
			)
		default:
			a.LastNotifiedAt = &sentAt
		}
		report.Sent++
	}

	if report.Candidates > 0 {
		d.logger.Info("alert notifications dispatched",
			"candidates", report.Candidates,
			"sent", report.Sent,
			"failed", report.Failed,
		)
	}
	return report, nil
}

package alert

import (
	"context"
	"errors"
	"time"

	"github.com/xraph/tenancy/id"
	"github.com/xraph/tenancy/usage"
)

var (
	ErrNotFound = errors.New("tenancy: alert not found")
	// ErrDuplicateActive is returned by CreateAlert when an active alert
	// already exists for the same (tenant, metric).
	ErrDuplicateActive = errors.New("tenancy: active alert already exists")
)

// Store persists alerts. Implementations must reject a second active alert
// for the same (tenant, metric) with ErrDuplicateActive.
//
// The write methods touch only the fields their caller owns and match only
// active alerts, returning ErrNotFound otherwise. That keeps the evaluator
// and the dispatcher from overwriting each other's changes.
type Store interface {
	CreateAlert(ctx context.Context, a *Alert) error
	GetAlert(ctx context.Context, alertID id.AlertID) (*Alert, error)
	GetActiveAlert(ctx context.Context, tenantID id.TenantID, metric usage.Metric) (*Alert, error)
	// UpdateAlertLevel writes the type, current value, limit and percentage.
	UpdateAlertLevel(ctx context.Context, a *Alert) error
	// ResolveAlert deactivates the alert and records its final reading.
	ResolveAlert(ctx context.Context, a *Alert) error
	// MarkAlertNotified sets only the last notification time.
	MarkAlertNotified(ctx context.Context, alertID id.AlertID, sentAt time.Time) error
	ListActiveAlerts(ctx context.Context, tenantID id.TenantID) ([]*Alert, error)
	// ListAlertsForNotification returns active alerts of the given types
	// never notified or last notified before notifiedBefore.
	ListAlertsForNotification(ctx context.Context, types []Type, notifiedBefore time.Time) ([]*Alert, error)
	ListAlerts(ctx context.Context, tenantID id.TenantID, opts ListOpts) ([]*Alert, error)
	// PurgeResolved deletes inactive alerts resolved before the cutoff.
	PurgeResolved(ctx context.Context, before time.Time) (int64, error)
}

// Package alert implements the usage alert state machine. Each
// (tenant, metric) pair has at most one active alert, which moves between
// warning, critical and exceeded as usage changes and is resolved only when
// usage drops below the warning threshold.
package alert

import (
	"time"

	"github.com/xraph/tenancy/id"
	"github.com/xraph/tenancy/types"
	"github.com/xraph/tenancy/usage"
)

// Type is the severity classification of an active alert.
type Type string

const (
	TypeWarning  Type = "warning"
	TypeCritical Type = "critical"
	TypeExceeded Type = "exceeded"
)

// Percentage thresholds, inclusive.
const (
	WarningThreshold  = 80.0
	CriticalThreshold = 95.0
	ExceededThreshold = 100.0
)

// Classify maps a usage percentage to an alert type. The most severe match
// wins. The boolean is false below the warning threshold.
func Classify(pct float64) (Type, bool) {
	switch {
	case pct >= ExceededThreshold:
		return TypeExceeded, true
	case pct >= CriticalThreshold:
		return TypeCritical, true
	case pct >= WarningThreshold:
		return TypeWarning, true
	}
	return "", false
}

// Severity orders alert types; higher is more severe.
func (t Type) Severity() int {
	switch t {
	case TypeWarning:
		return 1
	case TypeCritical:
		return 2
	case TypeExceeded:
		return 3
	}
	return 0
}

// Notifiable reports whether alerts of this type trigger outbound
// notifications.
func (t Type) Notifiable() bool {
	return t == TypeCritical || t == TypeExceeded
}

// NotifiableTypes returns the alert types considered by notification sweeps.
func NotifiableTypes() []Type {
	return []Type{TypeCritical, TypeExceeded}
}

// Alert is a persisted threshold breach for one (tenant, metric) pair.
type Alert struct {
	types.Entity
	ID             id.AlertID   `json:"id"`
	TenantID       id.TenantID  `json:"tenant_id"`
	Metric         usage.Metric `json:"metric"`
	CurrentValue   int64        `json:"current_value"`
	Limit          int64        `json:"limit"`
	Percentage     float64      `json:"percentage"`
	Type           Type         `json:"type"`
	IsActive       bool         `json:"is_active"`
	ResolvedAt     *time.Time   `json:"resolved_at,omitempty"`
	LastNotifiedAt *time.Time   `json:"last_notified_at,omitempty"`
}

// NotifiedWithin reports whether a notification was sent within d of now.
func (a *Alert) NotifiedWithin(now time.Time, d time.Duration) bool {
	return a.LastNotifiedAt != nil && now.Sub(*a.LastNotifiedAt) < d
}

// ListOpts filters alert listings.
type ListOpts struct {
	Metric     usage.Metric
	ActiveOnly bool
	Limit      int
	Offset     int
}

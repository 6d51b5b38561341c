// Package usage implements the per-tenant usage ledger: durable counters for
// metered resources plus an append-only log of every applied delta.
package usage

import (
	"time"

	"github.com/xraph/tenancy/id"
)

// Metric names a metered resource.
type Metric string

const (
	MetricUsers    Metric = "users"
	MetricEvents   Metric = "events"
	MetricStorage  Metric = "storage"
	MetricAPICalls Metric = "apiCalls"
)

// Metrics returns every metric in a stable order.
func Metrics() []Metric {
	return []Metric{MetricUsers, MetricEvents, MetricStorage, MetricAPICalls}
}

// Valid reports whether m is a known metric.
func (m Metric) Valid() bool {
	switch m {
	case MetricUsers, MetricEvents, MetricStorage, MetricAPICalls:
		return true
	}
	return false
}

// Usage is the counter snapshot embedded in a tenant. Every field is >= 0.
type Usage struct {
	Users    int64 `json:"users" bson:"users"`
	Events   int64 `json:"events" bson:"events"`
	Storage  int64 `json:"storage" bson:"storage"`
	APICalls int64 `json:"apiCalls" bson:"api_calls"`
}

// Get returns the counter for m.
func (u Usage) Get(m Metric) int64 {
	switch m {
	case MetricUsers:
		return u.Users
	case MetricEvents:
		return u.Events
	case MetricStorage:
		return u.Storage
	case MetricAPICalls:
		return u.APICalls
	}
	return 0
}

// Set assigns the counter for m. Unknown metrics are ignored.
func (u *Usage) Set(m Metric, v int64) {
	switch m {
	case MetricUsers:
		u.Users = v
	case MetricEvents:
		u.Events = v
	case MetricStorage:
		u.Storage = v
	case MetricAPICalls:
		u.APICalls = v
	}
}

// Field returns the persisted document field name for m.
func (m Metric) Field() string {
	switch m {
	case MetricUsers:
		return "users"
	case MetricEvents:
		return "events"
	case MetricStorage:
		return "storage"
	case MetricAPICalls:
		return "api_calls"
	}
	return ""
}

// Record is one immutable entry of the usage log. Value is the signed delta
// that was actually applied to the counter.
type Record struct {
	ID        id.UsageRecordID  `json:"id"`
	TenantID  id.TenantID       `json:"tenant_id"`
	Metric    Metric            `json:"metric"`
	Value     int64             `json:"value"`
	Timestamp time.Time         `json:"timestamp"`
	Source    string            `json:"source,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Metadata keys written by the ledger itself.
const (
	MetaOperation = "operation"
	MetaValue     = "value"
	MetaRequested = "requested"
)

// Operation values stored under MetaOperation.
const (
	OpIncrement = "increment"
	OpDecrement = "decrement"
	OpSet       = "set"
)

// QueryOpts filters usage log listings.
type QueryOpts struct {
	Metric Metric
	Since  time.Time
	Until  time.Time
	Limit  int
	Offset int
}

// Percentage returns current as a percentage of limit. It may exceed 100.
// An unlimited (negative) limit is 0%. A zero limit is 100% once anything
// has been used.
func Percentage(current, limit int64) float64 {
	switch {
	case limit < 0:
		return 0
	case limit == 0:
		if current > 0 {
			return 100
		}
		return 0
	}
	return float64(current) * 100 / float64(limit)
}

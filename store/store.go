// Package store defines the unified persistence interface of the tenancy
// engine. Backends live in the memory, mongo and postgres subpackages.
package store

import (
	"context"

	"github.com/xraph/tenancy/alert"
	"github.com/xraph/tenancy/tenant"
	"github.com/xraph/tenancy/usage"
)

// Store is the unified storage interface for all tenancy records. Method
// names of the sub-interfaces are disjoint, so they are embedded directly.
type Store interface {
	tenant.Store
	usage.Store
	alert.Store

	// Sources recomputes counters from the backend's own collections.
	usage.Sources

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

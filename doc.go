// Package tenancy resolves per-request tenant contexts and enforces plan
// limits for multi-tenant Go applications.
//
// Tenancy is designed as a library, not a service. Import it directly into your
// Go application. It provides:
//
//   - Cached (user, tenant) context resolution with TTL and bounded capacity
//   - Plan-based feature flags and numeric limits with upgrade hints
//   - Atomic usage counters with an append-only usage log
//   - Threshold alerts (warning 80%, critical 95%, exceeded 100%) with
//     rate-limited notifications
//   - Role permissions backed by a Casbin policy
//   - Plugin hooks for metrics and audit trails
//
// # Quick Start
//
// Create an engine with your preferred store:
//
//	import (
//	    "github.com/xraph/tenancy"
//	    "github.com/xraph/tenancy/store/mongo"
//	)
//
//	s := mongo.New(db)
//	engine := tenancy.New(s)
//
//	// Start the engine (migrates, starts the cache sweeper and scheduler)
//	if err := engine.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Stop()
//
// # Core Concepts
//
// Plans define features and limits. A limit of -1 means unlimited:
//
//	p := &plan.Plan{
//	    ID:       "basic",
//	    Limits:   plan.Limits{MaxUsers: 25, MaxEvents: 10000, MaxStorage: 1 << 30, APICallsPerMonth: 100000},
//	    Features: map[string]bool{plan.FeatureAdvancedAnalytics: true},
//	}
//
// A tenant context binds a user to a tenant, its membership and its plan.
// Every error from GetContext means deny:
//
//	tc, err := engine.GetContext(ctx, userID, tenantID)
//	if err != nil {
//	    return err // tenancy.IsAccessDenied / tenancy.IsNotFound -> 403
//	}
//
// The gate answers feature and limit questions without side effects:
//
//	d, err := engine.CheckLimit(ctx, tc, tenancy.LimitMaxUsers)
//	if err != nil {
//	    return err // store unavailable, not a denial
//	}
//	if !d.Allowed {
//	    return d.Err() // d.UpgradeHint names the cheapest plan that fits
//	}
//
// Usage changes go through the ledger, which re-evaluates alerts:
//
//	out, err := engine.RecordUsage(ctx, tenantID, tenancy.MetricEvents, 1, "ingest", nil)
//	if err == nil && out.Degraded() {
//	    // counter written, but the usage log or alert update failed
//	}
//
// # Consistency
//
// Counter writes are atomic in the store. Limit checks read the counter and
// do not reserve capacity, so concurrent callers may overshoot a limit
// slightly; the resulting alert reports the overage. Cached contexts may be
// stale for at most the cache TTL unless invalidated by the tenant
// management operations.
//
// # TypeID
//
// All records use TypeID for globally unique, type-safe identifiers:
//
//	tenant_01h2xcejqtf2nbrexx3vqjhp41  // Tenant ID
//	mbr_01h2xcejqtf2nbrexx3vqjhp41     // Membership ID
//	ualert_01h455vb4pex5vsknk084sn02q  // Alert ID
//
// TypeIDs are K-sortable, making them ideal for database indexes and
// providing natural time-ordering of records.
package tenancy

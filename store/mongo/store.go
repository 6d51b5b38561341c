package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/tenancy/alert"
	"github.com/xraph/tenancy/id"
	tenancystore "github.com/xraph/tenancy/store"
	"github.com/xraph/tenancy/tenant"
	"github.com/xraph/tenancy/usage"
)

// Collection name constants.
const (
	colTenants      = "tenancy_tenants"
	colMemberships  = "tenancy_memberships"
	colUsageRecords = "tenancy_usage_records"
	colAlerts       = "tenancy_alerts"
)

// Default names of the host-owned collections counted by recalculation.
const (
	DefaultEventsCollection   = "tenancy_events"
	DefaultFilesCollection    = "tenancy_files"
	DefaultAPICallsCollection = "tenancy_api_calls"
)

// compile-time interface check
var _ tenancystore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB

	colEvents   string
	colFiles    string
	colAPICalls string
}

// Option configures a Store.
type Option func(*Store)

// WithEventsCollection sets the collection whose documents are counted as
// events. Documents carry a tenant_id field.
func WithEventsCollection(name string) Option {
	return func(s *Store) { s.colEvents = name }
}

// WithFilesCollection sets the collection whose size_bytes fields are
// summed as storage.
func WithFilesCollection(name string) Option {
	return func(s *Store) { s.colFiles = name }
}

// WithAPICallsCollection sets the collection of API call logs. Documents
// carry tenant_id and timestamp fields.
func WithAPICallsCollection(name string) Option {
	return func(s *Store) { s.colAPICalls = name }
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB, opts ...Option) *Store {
	s := &Store{
		db:          db,
		mdb:         mongodriver.Unwrap(db),
		colEvents:   DefaultEventsCollection,
		colFiles:    DefaultFilesCollection,
		colAPICalls: DefaultAPICallsCollection,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all tenancy collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := s.migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("tenancy/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Tenant Store ====================

func (s *Store) CreateTenant(ctx context.Context, t *tenant.Tenant) error {
	m := toTenantModel(t)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", tenant.ErrAlreadyExists, t.Slug)
		}
		return fmt.Errorf("tenancy/mongo: create tenant: %w", err)
	}
	return nil
}

func (s *Store) GetTenant(ctx context.Context, tenantID id.TenantID) (*tenant.Tenant, error) {
	return s.findTenant(ctx, bson.M{"_id": tenantID.String()})
}

func (s *Store) GetTenantBySlug(ctx context.Context, slug string) (*tenant.Tenant, error) {
	return s.findTenant(ctx, bson.M{"slug": slug})
}

func (s *Store) findTenant(ctx context.Context, filter bson.M) (*tenant.Tenant, error) {
	var m tenantModel
	err := s.mdb.NewFind(&m).
		Filter(filter).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, tenant.ErrNotFound
		}
		return nil, fmt.Errorf("tenancy/mongo: get tenant: %w", err)
	}
	return fromTenantModel(&m)
}

// UpdateTenant sets every field but the usage subdocument, which only the
// counter operations write.
func (s *Store) UpdateTenant(ctx context.Context, t *tenant.Tenant) error {
	update := s.mdb.NewUpdate((*tenantModel)(nil)).
		Filter(bson.M{"_id": t.ID.String()}).
		Set("name", t.Name).
		Set("plan_id", t.PlanID).
		Set("status", string(t.Status)).
		Set("settings", t.Settings).
		Set("updated_at", t.UpdatedAt)
	if t.Slug != "" {
		update = update.Set("slug", t.Slug)
	}

	res, err := update.Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", tenant.ErrAlreadyExists, t.Slug)
		}
		return fmt.Errorf("tenancy/mongo: update tenant: %w", err)
	}
	if res.MatchedCount() == 0 {
		return tenant.ErrNotFound
	}
	return nil
}

func (s *Store) ListTenants(ctx context.Context, opts tenant.ListOpts) ([]*tenant.Tenant, error) {
	var models []tenantModel

	filter := bson.M{}
	if len(opts.Statuses) > 0 {
		statuses := make([]string, len(opts.Statuses))
		for i, st := range opts.Statuses {
			statuses[i] = string(st)
		}
		filter["status"] = bson.M{"$in": statuses}
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("tenancy/mongo: list tenants: %w", err)
	}
	return convertAll(models, fromTenantModel)
}

// ==================== Membership Store ====================

func (s *Store) CreateMembership(ctx context.Context, m *tenant.Membership) error {
	mm := toMembershipModel(m)
	_, err := s.mdb.NewInsert(mm).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return tenant.ErrMembershipExists
		}
		return fmt.Errorf("tenancy/mongo: create membership: %w", err)
	}
	return nil
}

func (s *Store) GetMembership(ctx context.Context, membershipID id.MembershipID) (*tenant.Membership, error) {
	return s.findMembership(ctx, bson.M{"_id": membershipID.String()})
}

func (s *Store) GetActiveMembership(ctx context.Context, tenantID id.TenantID, userID string) (*tenant.Membership, error) {
	return s.findMembership(ctx, bson.M{
		"tenant_id": tenantID.String(),
		"user_id":   userID,
		"is_active": true,
	})
}

func (s *Store) findMembership(ctx context.Context, filter bson.M) (*tenant.Membership, error) {
	var m membershipModel
	err := s.mdb.NewFind(&m).
		Filter(filter).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, tenant.ErrMembershipNotFound
		}
		return nil, fmt.Errorf("tenancy/mongo: get membership: %w", err)
	}
	return fromMembershipModel(&m)
}

func (s *Store) UpdateMembership(ctx context.Context, m *tenant.Membership) error {
	mm := toMembershipModel(m)

	res, err := s.mdb.NewUpdate(mm).
		Filter(bson.M{"_id": mm.ID}).
		Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return tenant.ErrMembershipExists
		}
		return fmt.Errorf("tenancy/mongo: update membership: %w", err)
	}
	if res.MatchedCount() == 0 {
		return tenant.ErrMembershipNotFound
	}
	return nil
}

func (s *Store) ListMemberships(ctx context.Context, userID string) ([]*tenant.Membership, error) {
	var models []membershipModel

	err := s.mdb.NewFind(&models).
		Filter(bson.M{"user_id": userID}).
		Sort(bson.D{{Key: "created_at", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("tenancy/mongo: list memberships: %w", err)
	}
	return convertAll(models, fromMembershipModel)
}

// ==================== Usage Store ====================

// ApplyUsage updates the counter and inserts the record inside one
// multi-document transaction, so a failed insert rolls the counter back.
// Transactions need a replica set or sharded cluster.
func (s *Store) ApplyUsage(ctx context.Context, tenantID id.TenantID, m usage.Mutation, rec *usage.Record) (int64, int64, error) {
	field, err := usageField(m.Metric)
	if err != nil {
		return 0, 0, err
	}
	update := counterUpdate(field, m)

	sess, err := s.mdb.Collection(colTenants).Database().Client().StartSession()
	if err != nil {
		return 0, 0, fmt.Errorf("tenancy/mongo: start session: %w", err)
	}
	defer sess.EndSession(ctx)

	var previous int64
	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		u, err := s.modifyUsage(ctx, tenantID, update)
		if err != nil {
			return nil, err
		}
		previous = u.Get(m.Metric)

		current := m.Apply(previous)
		if rec == nil || current == previous {
			return nil, nil
		}
		rm := toUsageRecordModel(rec)
		rm.Value = current - previous
		if _, err := s.mdb.NewInsert(rm).Exec(ctx); err != nil {
			return nil, fmt.Errorf("append usage record: %w", err)
		}
		return nil, nil
	})
	if err != nil {
		if errors.Is(err, usage.ErrNotFound) {
			return 0, 0, usage.ErrNotFound
		}
		return 0, 0, fmt.Errorf("tenancy/mongo: apply usage: %w", err)
	}
	return previous, m.Apply(previous), nil
}

// counterUpdate builds the update document for m. Decrements clamp at zero
// inside a pipeline update so the counter never goes negative.
func counterUpdate(field string, m usage.Mutation) any {
	switch m.Op {
	case usage.OpDecrement:
		return bson.A{
			bson.M{"$set": bson.M{
				field: bson.M{"$max": bson.A{
					int64(0),
					bson.M{"$subtract": bson.A{"$" + field, m.Amount}},
				}},
				"updated_at": now(),
			}},
		}
	case usage.OpSet:
		return bson.M{"$set": bson.M{field: max(m.Amount, 0), "updated_at": now()}}
	default:
		return bson.M{
			"$inc": bson.M{field: m.Amount},
			"$set": bson.M{"updated_at": now()},
		}
	}
}

// modifyUsage applies update to one tenant document and returns its usage
// subdocument as it was before the write.
func (s *Store) modifyUsage(ctx context.Context, tenantID id.TenantID, update any) (usage.Usage, error) {
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.Before).
		SetProjection(bson.M{"usage": 1})

	var m usageModel
	err := s.mdb.Collection(colTenants).
		FindOneAndUpdate(ctx, bson.M{"_id": tenantID.String()}, update, opts).
		Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return usage.Usage{}, usage.ErrNotFound
		}
		return usage.Usage{}, err
	}
	return m.Usage, nil
}

func (s *Store) GetUsage(ctx context.Context, tenantID id.TenantID) (*usage.Usage, error) {
	var m tenantModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": tenantID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, usage.ErrNotFound
		}
		return nil, fmt.Errorf("tenancy/mongo: get usage: %w", err)
	}
	u := m.Usage
	return &u, nil
}

func (s *Store) ReplaceUsage(ctx context.Context, tenantID id.TenantID, u usage.Usage) error {
	res, err := s.mdb.NewUpdate((*tenantModel)(nil)).
		Filter(bson.M{"_id": tenantID.String()}).
		Set("usage", u).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tenancy/mongo: replace usage: %w", err)
	}
	if res.MatchedCount() == 0 {
		return usage.ErrNotFound
	}
	return nil
}

func (s *Store) ListRecords(ctx context.Context, tenantID id.TenantID, opts usage.QueryOpts) ([]*usage.Record, error) {
	var models []usageRecordModel

	filter := bson.M{"tenant_id": tenantID.String()}
	if opts.Metric != "" {
		filter["metric"] = string(opts.Metric)
	}
	if ts := timeRange(opts.Since, opts.Until); len(ts) > 0 {
		filter["timestamp"] = ts
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "timestamp", Value: -1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("tenancy/mongo: list usage records: %w", err)
	}
	return convertAll(models, fromUsageRecordModel)
}

func (s *Store) PurgeRecords(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.mdb.NewDelete((*usageRecordModel)(nil)).
		Filter(bson.M{"timestamp": bson.M{"$lt": before}}).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("tenancy/mongo: purge usage records: %w", err)
	}
	return res.DeletedCount(), nil
}

// ==================== Alert Store ====================

func (s *Store) CreateAlert(ctx context.Context, a *alert.Alert) error {
	m := toAlertModel(a)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return alert.ErrDuplicateActive
		}
		return fmt.Errorf("tenancy/mongo: create alert: %w", err)
	}
	return nil
}

func (s *Store) GetAlert(ctx context.Context, alertID id.AlertID) (*alert.Alert, error) {
	return s.findAlert(ctx, bson.M{"_id": alertID.String()})
}

func (s *Store) GetActiveAlert(ctx context.Context, tenantID id.TenantID, metric usage.Metric) (*alert.Alert, error) {
	return s.findAlert(ctx, bson.M{
		"tenant_id": tenantID.String(),
		"metric":    string(metric),
		"is_active": true,
	})
}

func (s *Store) findAlert(ctx context.Context, filter bson.M) (*alert.Alert, error) {
	var m alertModel
	err := s.mdb.NewFind(&m).
		Filter(filter).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, alert.ErrNotFound
		}
		return nil, fmt.Errorf("tenancy/mongo: get alert: %w", err)
	}
	return fromAlertModel(&m)
}

func (s *Store) UpdateAlertLevel(ctx context.Context, a *alert.Alert) error {
	res, err := s.mdb.NewUpdate((*alertModel)(nil)).
		Filter(activeAlert(a.ID)).
		Set("type", string(a.Type)).
		Set("current_value", a.CurrentValue).
		Set("limit_value", a.Limit).
		Set("percentage", a.Percentage).
		Set("updated_at", a.UpdatedAt).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tenancy/mongo: update alert level: %w", err)
	}
	if res.MatchedCount() == 0 {
		return alert.ErrNotFound
	}
	return nil
}

func (s *Store) ResolveAlert(ctx context.Context, a *alert.Alert) error {
	res, err := s.mdb.NewUpdate((*alertModel)(nil)).
		Filter(activeAlert(a.ID)).
		Set("is_active", false).
		Set("resolved_at", a.ResolvedAt).
		Set("current_value", a.CurrentValue).
		Set("limit_value", a.Limit).
		Set("percentage", a.Percentage).
		Set("updated_at", a.UpdatedAt).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tenancy/mongo: resolve alert: %w", err)
	}
	if res.MatchedCount() == 0 {
		return alert.ErrNotFound
	}
	return nil
}

func (s *Store) MarkAlertNotified(ctx context.Context, alertID id.AlertID, sentAt time.Time) error {
	res, err := s.mdb.NewUpdate((*alertModel)(nil)).
		Filter(activeAlert(alertID)).
		Set("last_notified_at", sentAt).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tenancy/mongo: mark alert notified: %w", err)
	}
	if res.MatchedCount() == 0 {
		return alert.ErrNotFound
	}
	return nil
}

func activeAlert(alertID id.AlertID) bson.M {
	return bson.M{"_id": alertID.String(), "is_active": true}
}

func (s *Store) ListActiveAlerts(ctx context.Context, tenantID id.TenantID) ([]*alert.Alert, error) {
	return s.ListAlerts(ctx, tenantID, alert.ListOpts{ActiveOnly: true})
}

func (s *Store) ListAlertsForNotification(ctx context.Context, types []alert.Type, notifiedBefore time.Time) ([]*alert.Alert, error) {
	var models []alertModel

	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}

	// A null match also selects documents with no last_notified_at field.
	filter := bson.M{
		"is_active": true,
		"type":      bson.M{"$in": names},
		"$or": bson.A{
			bson.M{"last_notified_at": nil},
			bson.M{"last_notified_at": bson.M{"$lt": notifiedBefore}},
		},
	}

	err := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("tenancy/mongo: list alerts for notification: %w", err)
	}
	return convertAll(models, fromAlertModel)
}

func (s *Store) ListAlerts(ctx context.Context, tenantID id.TenantID, opts alert.ListOpts) ([]*alert.Alert, error) {
	var models []alertModel

	filter := bson.M{"tenant_id": tenantID.String()}
	if opts.ActiveOnly {
		filter["is_active"] = true
	}
	if opts.Metric != "" {
		filter["metric"] = string(opts.Metric)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: -1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("tenancy/mongo: list alerts: %w", err)
	}
	return convertAll(models, fromAlertModel)
}

func (s *Store) PurgeResolved(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.mdb.NewDelete((*alertModel)(nil)).
		Filter(bson.M{
			"is_active":   false,
			"resolved_at": bson.M{"$lt": before},
		}).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("tenancy/mongo: purge resolved alerts: %w", err)
	}
	return res.DeletedCount(), nil
}

// ==================== Recalculation Sources ====================

func (s *Store) CountActiveMemberships(ctx context.Context, tenantID id.TenantID) (int64, error) {
	n, err := s.mdb.Collection(colMemberships).CountDocuments(ctx, bson.M{
		"tenant_id": tenantID.String(),
		"is_active": true,
	})
	if err != nil {
		return 0, fmt.Errorf("tenancy/mongo: count memberships: %w", err)
	}
	return n, nil
}

func (s *Store) CountEvents(ctx context.Context, tenantID id.TenantID) (int64, error) {
	n, err := s.mdb.Collection(s.colEvents).CountDocuments(ctx, bson.M{"tenant_id": tenantID.String()})
	if err != nil {
		return 0, fmt.Errorf("tenancy/mongo: count events: %w", err)
	}
	return n, nil
}

func (s *Store) ComputeStorage(ctx context.Context, tenantID id.TenantID) (int64, error) {
	pipeline := bson.A{
		bson.M{"$match": bson.M{"tenant_id": tenantID.String()}},
		bson.M{"$group": bson.M{
			"_id":   nil,
			"total": bson.M{"$sum": "$size_bytes"},
		}},
	}

	cursor, err := s.mdb.Collection(s.colFiles).Aggregate(ctx, pipeline)
	if err != nil {
		return 0, fmt.Errorf("tenancy/mongo: compute storage: %w", err)
	}
	defer cursor.Close(ctx)

	var results []struct {
		Total int64 `bson:"total"`
	}
	if err := cursor.All(ctx, &results); err != nil {
		return 0, fmt.Errorf("tenancy/mongo: compute storage decode: %w", err)
	}
	if len(results) == 0 {
		return 0, nil
	}
	return results[0].Total, nil
}

func (s *Store) CountAPICalls(ctx context.Context, tenantID id.TenantID, since time.Time) (int64, error) {
	n, err := s.mdb.Collection(s.colAPICalls).CountDocuments(ctx, bson.M{
		"tenant_id": tenantID.String(),
		"timestamp": bson.M{"$gte": since},
	})
	if err != nil {
		return 0, fmt.Errorf("tenancy/mongo: count api calls: %w", err)
	}
	return n, nil
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// usageField maps a metric to its path inside the tenant document.
func usageField(m usage.Metric) (string, error) {
	f := m.Field()
	if f == "" {
		return "", fmt.Errorf("%w: %q", usage.ErrInvalidMetric, m)
	}
	return "usage." + f, nil
}

// timeRange builds a half-open [since, until) filter. Zero bounds are open.
func timeRange(since, until time.Time) bson.M {
	r := bson.M{}
	if !since.IsZero() {
		r["$gte"] = since
	}
	if !until.IsZero() {
		r["$lt"] = until
	}
	return r
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all tenancy collections.
func (s *Store) migrationIndexes() map[string][]mongo.IndexModel {
	activeOnly := bson.M{"is_active": true}

	return map[string][]mongo.IndexModel{
		colTenants: {
			{
				Keys:    bson.D{{Key: "slug", Value: 1}},
				Options: options.Index().SetUnique(true).SetSparse(true),
			},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "_id", Value: 1}}},
		},
		colMemberships: {
			{
				Keys:    bson.D{{Key: "tenant_id", Value: 1}, {Key: "user_id", Value: 1}},
				Options: options.Index().SetUnique(true).SetPartialFilterExpression(activeOnly),
			},
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		colUsageRecords: {
			{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "metric", Value: 1}, {Key: "timestamp", Value: -1}}},
			{Keys: bson.D{{Key: "timestamp", Value: 1}}},
		},
		colAlerts: {
			{
				Keys:    bson.D{{Key: "tenant_id", Value: 1}, {Key: "metric", Value: 1}},
				Options: options.Index().SetUnique(true).SetPartialFilterExpression(activeOnly),
			},
			{Keys: bson.D{{Key: "is_active", Value: 1}, {Key: "type", Value: 1}, {Key: "last_notified_at", Value: 1}}},
			{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "is_active", Value: 1}, {Key: "resolved_at", Value: 1}}},
		},
		s.colEvents: {
			{Keys: bson.D{{Key: "tenant_id", Value: 1}}},
		},
		s.colFiles: {
			{Keys: bson.D{{Key: "tenant_id", Value: 1}}},
		},
		s.colAPICalls: {
			{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "timestamp", Value: -1}}},
		},
	}
}

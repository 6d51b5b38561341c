package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/tenancy/alert"
	"github.com/xraph/tenancy/id"
	tenancystore "github.com/xraph/tenancy/store"
	"github.com/xraph/tenancy/tenant"
	"github.com/xraph/tenancy/usage"
)

// Default names of the tables counted by recalculation. Migrate creates
// them; hosts may point the store at their own tables instead.
const (
	DefaultEventsTable   = "tenancy_events"
	DefaultFilesTable    = "tenancy_files"
	DefaultAPICallsTable = "tenancy_api_calls"
)

// uniqueViolation is the SQLSTATE of a unique index conflict.
const uniqueViolation = "23505"

// compile-time interface check
var _ tenancystore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB

	eventsTable   string
	filesTable    string
	apiCallsTable string
}

// Option configures a Store.
type Option func(*Store)

// WithEventsTable sets the table whose rows are counted as events. Rows
// carry a tenant_id column.
func WithEventsTable(name string) Option {
	return func(s *Store) { s.eventsTable = name }
}

// WithFilesTable sets the table whose size_bytes column is summed as
// storage.
func WithFilesTable(name string) Option {
	return func(s *Store) { s.filesTable = name }
}

// WithAPICallsTable sets the API call log table. Rows carry tenant_id and
// timestamp columns.
func WithAPICallsTable(name string) Option {
	return func(s *Store) { s.apiCallsTable = name }
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB, opts ...Option) *Store {
	s := &Store{
		db:            db,
		pg:            pgdriver.Unwrap(db),
		eventsTable:   DefaultEventsTable,
		filesTable:    DefaultFilesTable,
		apiCallsTable: DefaultAPICallsTable,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("tenancy/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("tenancy/postgres: migration failed: %w", err)
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
	_, err := s.pg.NewInsert(m).Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", tenant.ErrAlreadyExists, t.Slug)
		}
		return fmt.Errorf("tenancy/postgres: create tenant: %w", err)
	}
	return nil
}

func (s *Store) GetTenant(ctx context.Context, tenantID id.TenantID) (*tenant.Tenant, error) {
	m := new(tenantModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", tenantID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, tenant.ErrNotFound
		}
		return nil, fmt.Errorf("tenancy/postgres: get tenant: %w", err)
	}
	return fromTenantModel(m)
}

func (s *Store) GetTenantBySlug(ctx context.Context, slug string) (*tenant.Tenant, error) {
	m := new(tenantModel)
	err := s.pg.NewSelect(m).
		Where("slug = $1", slug).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, tenant.ErrNotFound
		}
		return nil, fmt.Errorf("tenancy/postgres: get tenant by slug: %w", err)
	}
	return fromTenantModel(m)
}

// UpdateTenant writes every column except the usage counters.
func (s *Store) UpdateTenant(ctx context.Context, t *tenant.Tenant) error {
	m := toTenantModel(t)
	res, err := s.pg.NewUpdate((*tenantModel)(nil)).
		Set("name = $1", m.Name).
		Set("slug = $2", m.Slug).
		Set("plan_id = $3", m.PlanID).
		Set("status = $4", m.Status).
		Set("settings = $5", m.Settings).
		Set("updated_at = $6", m.UpdatedAt).
		Where("id = $7", m.ID).
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", tenant.ErrAlreadyExists, t.Slug)
		}
		return fmt.Errorf("tenancy/postgres: update tenant: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return tenant.ErrNotFound
	}
	return nil
}

func (s *Store) ListTenants(ctx context.Context, opts tenant.ListOpts) ([]*tenant.Tenant, error) {
	var models []tenantModel
	q := s.pg.NewSelect(&models)

	if len(opts.Statuses) > 0 {
		statuses := make([]string, len(opts.Statuses))
		for i, st := range opts.Statuses {
			statuses[i] = string(st)
		}
		q = q.Where("status = ANY($1)", statuses)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("tenancy/postgres: list tenants: %w", err)
	}
	return convertAll(models, fromTenantModel)
}

// ==================== Membership Store ====================

func (s *Store) CreateMembership(ctx context.Context, m *tenant.Membership) error {
	mm := toMembershipModel(m)
	_, err := s.pg.NewInsert(mm).Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return tenant.ErrMembershipExists
		}
		return fmt.Errorf("tenancy/postgres: create membership: %w", err)
	}
	return nil
}

func (s *Store) GetMembership(ctx context.Context, membershipID id.MembershipID) (*tenant.Membership, error) {
	m := new(membershipModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", membershipID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, tenant.ErrMembershipNotFound
		}
		return nil, fmt.Errorf("tenancy/postgres: get membership: %w", err)
	}
	return fromMembershipModel(m)
}

func (s *Store) GetActiveMembership(ctx context.Context, tenantID id.TenantID, userID string) (*tenant.Membership, error) {
	m := new(membershipModel)
	err := s.pg.NewSelect(m).
		Where("tenant_id = $1", tenantID.String()).
		Where("user_id = $2", userID).
		Where("is_active = TRUE").
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, tenant.ErrMembershipNotFound
		}
		return nil, fmt.Errorf("tenancy/postgres: get active membership: %w", err)
	}
	return fromMembershipModel(m)
}

func (s *Store) UpdateMembership(ctx context.Context, m *tenant.Membership) error {
	mm := toMembershipModel(m)
	res, err := s.pg.NewUpdate(mm).WherePK().Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return tenant.ErrMembershipExists
		}
		return fmt.Errorf("tenancy/postgres: update membership: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return tenant.ErrMembershipNotFound
	}
	return nil
}

func (s *Store) ListMemberships(ctx context.Context, userID string) ([]*tenant.Membership, error) {
	var models []membershipModel
	err := s.pg.NewSelect(&models).
		Where("user_id = $1", userID).
		OrderExpr("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("tenancy/postgres: list memberships: %w", err)
	}
	return convertAll(models, fromMembershipModel)
}

// ==================== Usage Store ====================

// ApplyUsage runs the counter update and the record insert as one
// statement, so both commit or neither does. The tenant row is locked while
// the previous value is read, which serializes writers on the same tenant
// and keeps the zero clamp on fresh data.
func (s *Store) ApplyUsage(ctx context.Context, tenantID id.TenantID, m usage.Mutation, rec *usage.Record) (int64, int64, error) {
	col, err := usageColumn(m.Metric)
	if err != nil {
		return 0, 0, err
	}

	var (
		recID, source string
		recAt         time.Time
		meta          = []byte("{}")
	)
	if rec != nil {
		recID, source, recAt = rec.ID.String(), rec.Source, rec.Timestamp
		if len(rec.Metadata) > 0 {
			if meta, err = json.Marshal(rec.Metadata); err != nil {
				return 0, 0, fmt.Errorf("tenancy/postgres: encode record metadata: %w", err)
			}
		}
	}

	var previous int64
	err = s.pg.NewRaw(fmt.Sprintf(`
		WITH prev AS (
			SELECT id, %[1]s AS v FROM tenancy_tenants WHERE id = $1 FOR UPDATE
		), upd AS (
			UPDATE tenancy_tenants t SET %[1]s = %[2]s, updated_at = $3
			FROM prev WHERE t.id = prev.id
			RETURNING prev.v AS previous, t.%[1]s AS current
		), rec AS (
			INSERT INTO tenancy_usage_records (id, tenant_id, metric, value, timestamp, source, metadata)
			SELECT $4, $1, $5, upd.current - upd.previous, $6, $7, $8::jsonb
			FROM upd WHERE $9::boolean AND upd.current <> upd.previous
		)
		SELECT previous FROM upd
	`, col, counterExpr(m.Op)),
		tenantID.String(), m.Amount, now(),
		recID, string(m.Metric), recAt, source, string(meta), rec != nil,
	).Scan(ctx, &previous)
	if err != nil {
		if isNoRows(err) {
			return 0, 0, usage.ErrNotFound
		}
		return 0, 0, fmt.Errorf("tenancy/postgres: apply usage: %w", err)
	}
	return previous, m.Apply(previous), nil
}

func (s *Store) GetUsage(ctx context.Context, tenantID id.TenantID) (*usage.Usage, error) {
	m := new(tenantModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", tenantID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, usage.ErrNotFound
		}
		return nil, fmt.Errorf("tenancy/postgres: get usage: %w", err)
	}
	u := m.usage()
	return &u, nil
}

func (s *Store) ReplaceUsage(ctx context.Context, tenantID id.TenantID, u usage.Usage) error {
	res, err := s.pg.NewUpdate((*tenantModel)(nil)).
		Set("usage_users = $1", u.Users).
		Set("usage_events = $2", u.Events).
		Set("usage_storage = $3", u.Storage).
		Set("usage_api_calls = $4", u.APICalls).
		Set("updated_at = $5", now()).
		Where("id = $6", tenantID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tenancy/postgres: replace usage: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return usage.ErrNotFound
	}
	return nil
}

func (s *Store) ListRecords(ctx context.Context, tenantID id.TenantID, opts usage.QueryOpts) ([]*usage.Record, error) {
	var models []usageRecordModel
	q := s.pg.NewSelect(&models).
		Where("tenant_id = $1", tenantID.String())

	argIdx := 1
	if opts.Metric != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("metric = $%d", argIdx), string(opts.Metric))
	}
	if !opts.Since.IsZero() {
		argIdx++
		q = q.Where(fmt.Sprintf("timestamp >= $%d", argIdx), opts.Since)
	}
	if !opts.Until.IsZero() {
		argIdx++
		q = q.Where(fmt.Sprintf("timestamp < $%d", argIdx), opts.Until)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("timestamp DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("tenancy/postgres: list usage records: %w", err)
	}
	return convertAll(models, fromUsageRecordModel)
}

func (s *Store) PurgeRecords(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.pg.NewDelete((*usageRecordModel)(nil)).
		Where("timestamp < $1", before).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("tenancy/postgres: purge usage records: %w", err)
	}
	return res.RowsAffected()
}

// ==================== Alert Store ====================

func (s *Store) CreateAlert(ctx context.Context, a *alert.Alert) error {
	m := toAlertModel(a)
	_, err := s.pg.NewInsert(m).Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return alert.ErrDuplicateActive
		}
		return fmt.Errorf("tenancy/postgres: create alert: %w", err)
	}
	return nil
}

func (s *Store) GetAlert(ctx context.Context, alertID id.AlertID) (*alert.Alert, error) {
	m := new(alertModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", alertID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, alert.ErrNotFound
		}
		return nil, fmt.Errorf("tenancy/postgres: get alert: %w", err)
	}
	return fromAlertModel(m)
}

func (s *Store) GetActiveAlert(ctx context.Context, tenantID id.TenantID, metric usage.Metric) (*alert.Alert, error) {
	m := new(alertModel)
	err := s.pg.NewSelect(m).
		Where("tenant_id = $1", tenantID.String()).
		Where("metric = $2", string(metric)).
		Where("is_active = TRUE").
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, alert.ErrNotFound
		}
		return nil, fmt.Errorf("tenancy/postgres: get active alert: %w", err)
	}
	return fromAlertModel(m)
}

func (s *Store) UpdateAlertLevel(ctx context.Context, a *alert.Alert) error {
	res, err := s.pg.NewUpdate((*alertModel)(nil)).
		Set("type = $1", string(a.Type)).
		Set("current_value = $2", a.CurrentValue).
		Set("limit_value = $3", a.Limit).
		Set("percentage = $4", a.Percentage).
		Set("updated_at = $5", a.UpdatedAt).
		Where("id = $6", a.ID.String()).
		Where("is_active = TRUE").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tenancy/postgres: update alert level: %w", err)
	}
	return alertRowsAffected(res)
}

func (s *Store) ResolveAlert(ctx context.Context, a *alert.Alert) error {
	res, err := s.pg.NewUpdate((*alertModel)(nil)).
		Set("is_active = FALSE").
		Set("resolved_at = $1", a.ResolvedAt).
		Set("current_value = $2", a.CurrentValue).
		Set("limit_value = $3", a.Limit).
		Set("percentage = $4", a.Percentage).
		Set("updated_at = $5", a.UpdatedAt).
		Where("id = $6", a.ID.String()).
		Where("is_active = TRUE").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tenancy/postgres: resolve alert: %w", err)
	}
	return alertRowsAffected(res)
}

func (s *Store) MarkAlertNotified(ctx context.Context, alertID id.AlertID, sentAt time.Time) error {
	res, err := s.pg.NewUpdate((*alertModel)(nil)).
		Set("last_notified_at = $1", sentAt).
		Where("id = $2", alertID.String()).
		Where("is_active = TRUE").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tenancy/postgres: mark alert notified: %w", err)
	}
	return alertRowsAffected(res)
}

func alertRowsAffected(res interface{ RowsAffected() (int64, error) }) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return alert.ErrNotFound
	}
	return nil
}

func (s *Store) ListActiveAlerts(ctx context.Context, tenantID id.TenantID) ([]*alert.Alert, error) {
	return s.ListAlerts(ctx, tenantID, alert.ListOpts{ActiveOnly: true})
}

func (s *Store) ListAlertsForNotification(ctx context.Context, types []alert.Type, notifiedBefore time.Time) ([]*alert.Alert, error) {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}

	var models []alertModel
	err := s.pg.NewSelect(&models).
		Where("is_active = TRUE").
		Where("type = ANY($1)", names).
		Where("(last_notified_at IS NULL OR last_notified_at < $2)", notifiedBefore).
		OrderExpr("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("tenancy/postgres: list alerts for notification: %w", err)
	}
	return convertAll(models, fromAlertModel)
}

func (s *Store) ListAlerts(ctx context.Context, tenantID id.TenantID, opts alert.ListOpts) ([]*alert.Alert, error) {
	var models []alertModel
	q := s.pg.NewSelect(&models).
		Where("tenant_id = $1", tenantID.String())

	if opts.ActiveOnly {
		q = q.Where("is_active = TRUE")
	}
	if opts.Metric != "" {
		q = q.Where("metric = $2", string(opts.Metric))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("tenancy/postgres: list alerts: %w", err)
	}
	return convertAll(models, fromAlertModel)
}

func (s *Store) PurgeResolved(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.pg.NewDelete((*alertModel)(nil)).
		Where("is_active = FALSE").
		Where("resolved_at < $1", before).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("tenancy/postgres: purge resolved alerts: %w", err)
	}
	return res.RowsAffected()
}

// ==================== Recalculation Sources ====================

func (s *Store) CountActiveMemberships(ctx context.Context, tenantID id.TenantID) (int64, error) {
	var n int64
	err := s.pg.NewRaw(`
		SELECT COUNT(*) FROM tenancy_memberships
		WHERE tenant_id = $1 AND is_active = TRUE
	`, tenantID.String()).Scan(ctx, &n)
	if err != nil {
		return 0, fmt.Errorf("tenancy/postgres: count memberships: %w", err)
	}
	return n, nil
}

func (s *Store) CountEvents(ctx context.Context, tenantID id.TenantID) (int64, error) {
	var n int64
	err := s.pg.NewRaw(
		fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE tenant_id = $1`, s.eventsTable),
		tenantID.String(),
	).Scan(ctx, &n)
	if err != nil {
		return 0, fmt.Errorf("tenancy/postgres: count events: %w", err)
	}
	return n, nil
}

func (s *Store) ComputeStorage(ctx context.Context, tenantID id.TenantID) (int64, error) {
	var total int64
	err := s.pg.NewRaw(
		fmt.Sprintf(`SELECT COALESCE(SUM(size_bytes), 0) FROM %s WHERE tenant_id = $1`, s.filesTable),
		tenantID.String(),
	).Scan(ctx, &total)
	if err != nil {
		return 0, fmt.Errorf("tenancy/postgres: compute storage: %w", err)
	}
	return total, nil
}

func (s *Store) CountAPICalls(ctx context.Context, tenantID id.TenantID, since time.Time) (int64, error) {
	var n int64
	err := s.pg.NewRaw(
		fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE tenant_id = $1 AND timestamp >= $2`, s.apiCallsTable),
		tenantID.String(), since,
	).Scan(ctx, &n)
	if err != nil {
		return 0, fmt.Errorf("tenancy/postgres: count api calls: %w", err)
	}
	return n, nil
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// counterExpr is the SQL for the new counter value; prev.v is the locked
// previous value and $2 the mutation amount.
func counterExpr(op string) string {
	switch op {
	case usage.OpDecrement:
		return "GREATEST(0, prev.v - $2)"
	case usage.OpSet:
		return "GREATEST(0, $2)"
	default:
		return "prev.v + $2"
	}
}

// usageColumn maps a metric to its counter column.
func usageColumn(m usage.Metric) (string, error) {
	f := m.Field()
	if f == "" {
		return "", fmt.Errorf("%w: %q", usage.ErrInvalidMetric, m)
	}
	return "usage_" + f, nil
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// isUniqueViolation reports whether err is a unique index conflict.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

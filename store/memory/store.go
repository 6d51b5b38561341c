// Package memory provides an in-process store.Store for tests and
// single-node development. All state lives behind one RWMutex.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/xraph/tenancy/alert"
	"github.com/xraph/tenancy/id"
	"github.com/xraph/tenancy/store"
	"github.com/xraph/tenancy/tenant"
	"github.com/xraph/tenancy/usage"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	mu sync.RWMutex

	// Tenant storage
	tenants map[string]*tenant.Tenant
	slugs   map[string]string

	// Membership storage
	memberships map[string]*tenant.Membership

	// Usage log
	records []usage.Record

	// Alert storage
	alerts map[string]*alert.Alert

	// Recalculation sources
	events   map[string]int64
	storage  map[string]int64
	apiCalls map[string][]time.Time
}

func New() *Store {
	return &Store{
		tenants:     make(map[string]*tenant.Tenant),
		slugs:       make(map[string]string),
		memberships: make(map[string]*tenant.Membership),
		alerts:      make(map[string]*alert.Alert),
		events:      make(map[string]int64),
		storage:     make(map[string]int64),
		apiCalls:    make(map[string][]time.Time),
	}
}

// ──────────────────────────────────────────────────
// Tenant Store implementation
// ──────────────────────────────────────────────────

func (s *Store) CreateTenant(_ context.Context, t *tenant.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tenants[t.ID.String()]; exists {
		return tenant.ErrAlreadyExists
	}
	if t.Slug != "" {
		if _, taken := s.slugs[t.Slug]; taken {
			return fmt.Errorf("%w: slug %q", tenant.ErrAlreadyExists, t.Slug)
		}
		s.slugs[t.Slug] = t.ID.String()
	}
	s.tenants[t.ID.String()] = cloneTenant(t)
	return nil
}

func (s *Store) GetTenant(_ context.Context, tenantID id.TenantID) (*tenant.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if t, ok := s.tenants[tenantID.String()]; ok {
		return cloneTenant(t), nil
	}
	return nil, tenant.ErrNotFound
}

func (s *Store) GetTenantBySlug(ctx context.Context, slug string) (*tenant.Tenant, error) {
	s.mu.RLock()
	tid, ok := s.slugs[slug]
	s.mu.RUnlock()
	if !ok {
		return nil, tenant.ErrNotFound
	}
	parsed, err := id.ParseTenantID(tid)
	if err != nil {
		return nil, err
	}
	return s.GetTenant(ctx, parsed)
}

func (s *Store) UpdateTenant(_ context.Context, t *tenant.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.tenants[t.ID.String()]
	if !ok {
		return tenant.ErrNotFound
	}
	if existing.Slug != t.Slug {
		if _, taken := s.slugs[t.Slug]; taken && t.Slug != "" {
			return fmt.Errorf("%w: slug %q", tenant.ErrAlreadyExists, t.Slug)
		}
		delete(s.slugs, existing.Slug)
		if t.Slug != "" {
			s.slugs[t.Slug] = t.ID.String()
		}
	}

	updated := cloneTenant(t)
	updated.Usage = existing.Usage
	s.tenants[t.ID.String()] = updated
	return nil
}

func (s *Store) ListTenants(_ context.Context, opts tenant.ListOpts) ([]*tenant.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*tenant.Tenant, 0)
	for _, t := range s.tenants {
		if matchesStatus(t.Status, opts.Statuses) {
			result = append(result, cloneTenant(t))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID.String() < result[j].ID.String() })

	return paginate(result, opts.Offset, opts.Limit), nil
}

// ──────────────────────────────────────────────────
// Membership Store implementation
// ──────────────────────────────────────────────────

func (s *Store) CreateMembership(_ context.Context, m *tenant.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.memberships[m.ID.String()]; exists {
		return tenant.ErrMembershipExists
	}
	if m.IsActive {
		for _, existing := range s.memberships {
			if existing.IsActive && existing.TenantID == m.TenantID && existing.UserID == m.UserID {
				return tenant.ErrMembershipExists
			}
		}
	}
	s.memberships[m.ID.String()] = cloneMembership(m)
	return nil
}

func (s *Store) GetMembership(_ context.Context, membershipID id.MembershipID) (*tenant.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if m, ok := s.memberships[membershipID.String()]; ok {
		return cloneMembership(m), nil
	}
	return nil, tenant.ErrMembershipNotFound
}

func (s *Store) GetActiveMembership(_ context.Context, tenantID id.TenantID, userID string) (*tenant.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.memberships {
		if m.IsActive && m.TenantID == tenantID && m.UserID == userID {
			return cloneMembership(m), nil
		}
	}
	return nil, tenant.ErrMembershipNotFound
}

func (s *Store) UpdateMembership(_ context.Context, m *tenant.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.memberships[m.ID.String()]; !exists {
		return tenant.ErrMembershipNotFound
	}
	s.memberships[m.ID.String()] = cloneMembership(m)
	return nil
}

func (s *Store) ListMemberships(_ context.Context, userID string) ([]*tenant.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*tenant.Membership, 0)
	for _, m := range s.memberships {
		if m.UserID == userID {
			result = append(result, cloneMembership(m))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID.String() < result[j].ID.String() })
	return result, nil
}

// ──────────────────────────────────────────────────
// Usage Store implementation
// ──────────────────────────────────────────────────

func (s *Store) ApplyUsage(_ context.Context, tenantID id.TenantID, m usage.Mutation, rec *usage.Record) (int64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tenants[tenantID.String()]
	if !ok {
		return 0, 0, usage.ErrNotFound
	}
	previous := t.Usage.Get(m.Metric)
	current := m.Apply(previous)
	if rec != nil && current != previous {
		r := cloneRecord(rec)
		r.Value = current - previous
		s.records = append(s.records, r)
	}
	t.Usage.Set(m.Metric, current)
	return previous, current, nil
}

func (s *Store) GetUsage(_ context.Context, tenantID id.TenantID) (*usage.Usage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tenants[tenantID.String()]
	if !ok {
		return nil, usage.ErrNotFound
	}
	u := t.Usage
	return &u, nil
}

func (s *Store) ReplaceUsage(_ context.Context, tenantID id.TenantID, u usage.Usage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tenants[tenantID.String()]
	if !ok {
		return usage.ErrNotFound
	}
	t.Usage = u
	return nil
}

func (s *Store) ListRecords(_ context.Context, tenantID id.TenantID, opts usage.QueryOpts) ([]*usage.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*usage.Record, 0)
	for i := range s.records {
		r := &s.records[i]
		if r.TenantID != tenantID {
			continue
		}
		if opts.Metric != "" && r.Metric != opts.Metric {
			continue
		}
		if !opts.Since.IsZero() && r.Timestamp.Before(opts.Since) {
			continue
		}
		if !opts.Until.IsZero() && !r.Timestamp.Before(opts.Until) {
			continue
		}
		rc := cloneRecord(r)
		result = append(result, &rc)
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].Timestamp.After(result[j].Timestamp) })

	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) PurgeRecords(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[:0]
	var purged int64
	for _, r := range s.records {
		if r.Timestamp.Before(before) {
			purged++
			continue
		}
		kept = append(kept, r)
	}
	s.records = kept
	return purged, nil
}

// ──────────────────────────────────────────────────
// Alert Store implementation
// ──────────────────────────────────────────────────

func (s *Store) CreateAlert(_ context.Context, a *alert.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.IsActive && s.activeAlertLocked(a.TenantID, a.Metric, a.ID) != nil {
		return alert.ErrDuplicateActive
	}
	s.alerts[a.ID.String()] = cloneAlert(a)
	return nil
}

func (s *Store) GetAlert(_ context.Context, alertID id.AlertID) (*alert.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if a, ok := s.alerts[alertID.String()]; ok {
		return cloneAlert(a), nil
	}
	return nil, alert.ErrNotFound
}

func (s *Store) GetActiveAlert(_ context.Context, tenantID id.TenantID, metric usage.Metric) (*alert.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if a := s.activeAlertLocked(tenantID, metric, id.Nil); a != nil {
		return cloneAlert(a), nil
	}
	return nil, alert.ErrNotFound
}

func (s *Store) UpdateAlertLevel(_ context.Context, a *alert.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.alerts[a.ID.String()]
	if !ok || !cur.IsActive {
		return alert.ErrNotFound
	}
	cur.CurrentValue = a.CurrentValue
	cur.Limit = a.Limit
	cur.Percentage = a.Percentage
	cur.Type = a.Type
	cur.UpdatedAt = a.UpdatedAt
	return nil
}

func (s *Store) ResolveAlert(_ context.Context, a *alert.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.alerts[a.ID.String()]
	if !ok || !cur.IsActive {
		return alert.ErrNotFound
	}
	cur.CurrentValue = a.CurrentValue
	cur.Limit = a.Limit
	cur.Percentage = a.Percentage
	cur.IsActive = false
	if a.ResolvedAt != nil {
		at := *a.ResolvedAt
		cur.ResolvedAt = &at
	}
	cur.UpdatedAt = a.UpdatedAt
	return nil
}

func (s *Store) MarkAlertNotified(_ context.Context, alertID id.AlertID, sentAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.alerts[alertID.String()]
	if !ok || !cur.IsActive {
		return alert.ErrNotFound
	}
	cur.LastNotifiedAt = &sentAt
	return nil
}

func (s *Store) ListActiveAlerts(ctx context.Context, tenantID id.TenantID) ([]*alert.Alert, error) {
	return s.ListAlerts(ctx, tenantID, alert.ListOpts{ActiveOnly: true})
}

func (s *Store) ListAlertsForNotification(_ context.Context, types []alert.Type, notifiedBefore time.Time) ([]*alert.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*alert.Alert, 0)
	for _, a := range s.alerts {
		if !a.IsActive || !containsType(types, a.Type) {
			continue
		}
		if a.LastNotifiedAt != nil && !a.LastNotifiedAt.Before(notifiedBefore) {
			continue
		}
		result = append(result, cloneAlert(a))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (s *Store) ListAlerts(_ context.Context, tenantID id.TenantID, opts alert.ListOpts) ([]*alert.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*alert.Alert, 0)
	for _, a := range s.alerts {
		if a.TenantID != tenantID {
			continue
		}
		if opts.ActiveOnly && !a.IsActive {
			continue
		}
		if opts.Metric != "" && a.Metric != opts.Metric {
			continue
		}
		result = append(result, cloneAlert(a))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })

	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) PurgeResolved(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var purged int64
	for k, a := range s.alerts {
		if !a.IsActive && a.ResolvedAt != nil && a.ResolvedAt.Before(before) {
			delete(s.alerts, k)
			purged++
		}
	}
	return purged, nil
}

// activeAlertLocked returns the active alert for (tenant, metric) other than
// exclude. Callers hold s.mu.
func (s *Store) activeAlertLocked(tenantID id.TenantID, metric usage.Metric, exclude id.AlertID) *alert.Alert {
	for _, a := range s.alerts {
		if a.IsActive && a.TenantID == tenantID && a.Metric == metric && a.ID != exclude {
			return a
		}
	}
	return nil
}

// ──────────────────────────────────────────────────
// Core methods
// ──────────────────────────────────────────────────

func (s *Store) Migrate(_ context.Context) error {
	return nil
}

func (s *Store) Ping(_ context.Context) error {
	return nil
}

func (s *Store) Close() error {
	return nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func paginate[T any](items []T, offset, limit int) []T {
	start := offset
	if start > len(items) {
		start = len(items)
	}
	end := start + limit
	if limit == 0 || end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func matchesStatus(st tenant.Status, filter []tenant.Status) bool {
	if len(filter) == 0 {
		return true
	}
	for _, f := range filter {
		if f == st {
			return true
		}
	}
	return false
}

func containsType(types []alert.Type, t alert.Type) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}

func cloneTenant(t *tenant.Tenant) *tenant.Tenant {
	c := *t
	c.Settings = t.Settings.Clone()
	return &c
}

func cloneMembership(m *tenant.Membership) *tenant.Membership {
	c := *m
	c.FeaturePermissions = append([]string(nil), m.FeaturePermissions...)
	return &c
}

func cloneRecord(r *usage.Record) usage.Record {
	c := *r
	if r.Metadata != nil {
		c.Metadata = make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			c.Metadata[k] = v
		}
	}
	return c
}

func cloneAlert(a *alert.Alert) *alert.Alert {
	c := *a
	if a.ResolvedAt != nil {
		t := *a.ResolvedAt
		c.ResolvedAt = &t
	}
	if a.LastNotifiedAt != nil {
		t := *a.LastNotifiedAt
		c.LastNotifiedAt = &t
	}
	return &c
}

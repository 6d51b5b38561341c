package memory

import (
	"context"
	"time"

	"github.com/xraph/tenancy/id"
)

// The memory store keeps its own minimal event, storage and API-call
// records so Recalculate has something authoritative to count. Hosts feed
// them with the Record* helpers below.

// RecordEvent registers n events for a tenant.
func (s *Store) RecordEvent(tenantID id.TenantID, n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[tenantID.String()] += n
}

// SetStorage sets the total stored bytes for a tenant.
func (s *Store) SetStorage(tenantID id.TenantID, bytes int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.storage[tenantID.String()] = bytes
}

// RecordAPICall registers one API call at the given time.
func (s *Store) RecordAPICall(tenantID id.TenantID, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apiCalls[tenantID.String()] = append(s.apiCalls[tenantID.String()], at)
}

func (s *Store) CountActiveMemberships(_ context.Context, tenantID id.TenantID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, m := range s.memberships {
		if m.IsActive && m.TenantID == tenantID {
			n++
		}
	}
	return n, nil
}

func (s *Store) CountEvents(_ context.Context, tenantID id.TenantID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.events[tenantID.String()], nil
}

func (s *Store) ComputeStorage(_ context.Context, tenantID id.TenantID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.storage[tenantID.String()], nil
}

func (s *Store) CountAPICalls(_ context.Context, tenantID id.TenantID, since time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, at := range s.apiCalls[tenantID.String()] {
		if !at.Before(since) {
			n++
		}
	}
	return n, nil
}

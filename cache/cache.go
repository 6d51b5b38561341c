// Package cache implements the in-process tenant context cache: a
// TTL-bounded, capacity-bounded map from (user, tenant) to a resolved
// tenant.Context, with approximate-LRU batch eviction and a background
// sweeper.
package cache

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/xraph/tenancy/id"
	"github.com/xraph/tenancy/tenant"
)

// Defaults.
const (
	DefaultTTL           = 5 * time.Minute
	DefaultCapacity      = 1000
	DefaultSweepInterval = 10 * time.Minute
	DefaultEvictFraction = 0.10
)

// Loader resolves a tenant context on a cache miss.
type Loader interface {
	Load(ctx context.Context, userID string, tenantID id.TenantID) (*tenant.Context, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, userID string, tenantID id.TenantID) (*tenant.Context, error)

// Load implements Loader.
func (f LoaderFunc) Load(ctx context.Context, userID string, tenantID id.TenantID) (*tenant.Context, error) {
	return f(ctx, userID, tenantID)
}

// EvictReason says why entries left the cache.
type EvictReason string

const (
	EvictCapacity   EvictReason = "capacity"
	EvictExpired    EvictReason = "expired"
	EvictInvalidate EvictReason = "invalidate"
)

// Hooks observe cache activity. Every field is optional. Hooks run outside
// the cache lock.
type Hooks struct {
	OnHit       func(userID string, tenantID id.TenantID)
	OnMiss      func(userID string, tenantID id.TenantID)
	OnLoadError func(userID string, tenantID id.TenantID, err error)
	OnEvict     func(reason EvictReason, count int)
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits       int64
	Misses     int64
	Loads      int64
	LoadErrors int64
	Evictions  int64
	Expired    int64
	Size       int
}

type key struct {
	user   string
	tenant string
}

func (k key) String() string { return k.user + "\x00" + k.tenant }

type entry struct {
	value        *tenant.Context
	createdAt    time.Time
	expiresAt    time.Time
	lastAccessed time.Time
}

// pendingLoad tracks an in-flight load so invalidations that arrive while
// it runs can keep its result out of the map.
type pendingLoad struct {
	user   string
	tenant string
	stale  bool
}

// Cache maps (user, tenant) to a resolved tenant.Context. All map access,
// eviction and sweeping happen under one mutex.
type Cache struct {
	loader        Loader
	ttl           time.Duration
	capacity      int
	sweepInterval time.Duration
	evictFraction float64
	clock         clockwork.Clock
	logger        *slog.Logger
	hooks         Hooks

	mu      sync.Mutex
	entries map[key]*entry
	pending map[key]*pendingLoad
	stats   Stats

	group singleflight.Group

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL sets the entry lifetime.
func WithTTL(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithCapacity sets the maximum number of entries.
func WithCapacity(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// WithSweepInterval sets how often expired entries are swept.
func WithSweepInterval(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.sweepInterval = d
		}
	}
}

// WithEvictFraction sets the share of capacity removed per eviction.
func WithEvictFraction(f float64) Option {
	return func(c *Cache) {
		if f > 0 && f <= 1 {
			c.evictFraction = f
		}
	}
}

// WithClock sets the clock.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Cache) { c.clock = clock }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// WithHooks sets observation hooks.
func WithHooks(h Hooks) Option {
	return func(c *Cache) { c.hooks = h }
}

// New creates a Cache backed by loader.
func New(loader Loader, opts ...Option) *Cache {
	c := &Cache{
		loader:        loader,
		ttl:           DefaultTTL,
		capacity:      DefaultCapacity,
		sweepInterval: DefaultSweepInterval,
		evictFraction: DefaultEvictFraction,
		clock:         clockwork.NewRealClock(),
		logger:        slog.Default(),
		entries:       make(map[key]*entry),
		pending:       make(map[key]*pendingLoad),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the context for (userID, tenantID). An unexpired entry is
// returned without I/O. Otherwise the loader runs; concurrent misses of the
// same key share one load. Load errors are returned and nothing is cached.
func (c *Cache) Get(ctx context.Context, userID string, tenantID id.TenantID) (*tenant.Context, error) {
	k := key{user: userID, tenant: tenantID.String()}

	c.mu.Lock()
	now := c.clock.Now()
	if e, ok := c.entries[k]; ok && now.Before(e.expiresAt) {
		e.lastAccessed = now
		c.stats.Hits++
		v := e.value
		c.mu.Unlock()
		if c.hooks.OnHit != nil {
			c.hooks.OnHit(userID, tenantID)
		}
		return v, nil
	}
	c.stats.Misses++
	c.mu.Unlock()

	if c.hooks.OnMiss != nil {
		c.hooks.OnMiss(userID, tenantID)
	}

	// The shared load outlives any one caller; each caller still stops
	// waiting when its own ctx is done.
	loadCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(k.String(), func() (any, error) {
		return c.load(loadCtx, k, userID, tenantID)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.Err != nil {
		if c.hooks.OnLoadError != nil {
			c.hooks.OnLoadError(userID, tenantID, res.Err)
		}
		return nil, res.Err
	}
	return res.Val.(*tenant.Context), nil
}

func (c *Cache) load(ctx context.Context, k key, userID string, tenantID id.TenantID) (*tenant.Context, error) {
	p := &pendingLoad{user: k.user, tenant: k.tenant}
	c.mu.Lock()
	c.pending[k] = p
	c.mu.Unlock()

	tc, err := c.loader.Load(ctx, userID, tenantID)

	c.mu.Lock()
	if c.pending[k] == p {
		delete(c.pending, k)
	}
	c.stats.Loads++
	if err != nil {
		c.stats.LoadErrors++
		c.mu.Unlock()
		return nil, err
	}
	if p.stale {
		c.mu.Unlock()
		c.logger.Debug("cache: load raced with invalidation, not cached",
			"user_id", userID,
			"tenant_id", tenantID.String(),
		)
		return tc, nil
	}
	evicted := c.insertLocked(k, tc, c.clock.Now())
	c.mu.Unlock()

	if evicted > 0 {
		c.logger.Debug("cache: capacity eviction", "evicted", evicted, "capacity", c.capacity)
		if c.hooks.OnEvict != nil {
			c.hooks.OnEvict(EvictCapacity, evicted)
		}
	}
	return tc, nil
}

// insertLocked stores tc under k, evicting first when a new key would
// exceed capacity. It returns the number of evicted entries.
func (c *Cache) insertLocked(k key, tc *tenant.Context, now time.Time) int {
	evicted := 0
	if _, exists := c.entries[k]; !exists && len(c.entries) >= c.capacity {
		evicted = c.evictLocked()
	}
	c.entries[k] = &entry{
		value:        tc,
		createdAt:    now,
		expiresAt:    now.Add(c.ttl),
		lastAccessed: now,
	}
	return evicted
}

// evictLocked removes the ceil(capacity*fraction) least recently accessed
// entries.
func (c *Cache) evictLocked() int {
	n := int(math.Ceil(float64(c.capacity) * c.evictFraction))
	n = max(n, 1)

	type candidate struct {
		k    key
		seen time.Time
	}
	all := make([]candidate, 0, len(c.entries))
	for k, e := range c.entries {
		all = append(all, candidate{k: k, seen: e.lastAccessed})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].seen.Before(all[j].seen) })

	n = min(n, len(all))
	for _, cand := range all[:n] {
		delete(c.entries, cand.k)
	}
	c.stats.Evictions += int64(n)
	return n
}

// Invalidate removes the entry for one (user, tenant) pair. It returns the
// number of entries removed.
func (c *Cache) Invalidate(userID string, tenantID id.TenantID) int {
	tid := tenantID.String()
	return c.remove(func(user, tenant string) bool { return user == userID && tenant == tid })
}

// InvalidateUser removes every entry for userID.
func (c *Cache) InvalidateUser(userID string) int {
	return c.remove(func(user, _ string) bool { return user == userID })
}

// InvalidateTenant removes every entry for tenantID.
func (c *Cache) InvalidateTenant(tenantID id.TenantID) int {
	tid := tenantID.String()
	return c.remove(func(_, tenant string) bool { return tenant == tid })
}

// Clear removes every entry.
func (c *Cache) Clear() int {
	return c.remove(func(string, string) bool { return true })
}

func (c *Cache) remove(match func(user, tenant string) bool) int {
	c.mu.Lock()
	removed := 0
	for k := range c.entries {
		if match(k.user, k.tenant) {
			delete(c.entries, k)
			removed++
		}
	}
	for _, p := range c.pending {
		if match(p.user, p.tenant) {
			p.stale = true
		}
	}
	c.mu.Unlock()

	if removed > 0 && c.hooks.OnEvict != nil {
		c.hooks.OnEvict(EvictInvalidate, removed)
	}
	return removed
}

// Sweep removes every expired entry and returns how many were removed.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	now := c.clock.Now()
	removed := 0
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	c.stats.Expired += int64(removed)
	c.mu.Unlock()

	if removed > 0 {
		c.logger.Debug("cache: swept expired entries", "removed", removed)
		if c.hooks.OnEvict != nil {
			c.hooks.OnEvict(EvictExpired, removed)
		}
	}
	return removed
}

// Start runs Sweep every sweep interval until Stop is called or ctx is
// done. Calling Start on a running cache is a no-op.
func (c *Cache) Start(ctx context.Context) {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.running {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.running = true
	ticker := c.clock.NewTicker(c.sweepInterval)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				c.Sweep()
			}
		}
	}()
}

// Stop halts the sweeper and waits for it to exit.
func (c *Cache) Stop() {
	c.runMu.Lock()
	if !c.running {
		c.runMu.Unlock()
		return
	}
	c.cancel()
	c.running = false
	c.runMu.Unlock()

	c.wg.Wait()
}

// Len returns the number of physically present entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Contains reports whether an unexpired entry exists for the pair, without
// touching lastAccessed.
func (c *Cache) Contains(userID string, tenantID id.TenantID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key{user: userID, tenant: tenantID.String()}]
	return ok && c.clock.Now().Before(e.expiresAt)
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Size = len(c.entries)
	return s
}

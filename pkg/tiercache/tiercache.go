package tiercache

import (
	"context"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/singleflight"

	"tiercache/internal/common/logging"
	"tiercache/pkg/entry"
	"tiercache/pkg/memtier"
	"tiercache/pkg/persist"
	"tiercache/pkg/stores"
)

// ComputeFunc produces a value on a cache miss for GetOrCompute.
type ComputeFunc func(ctx context.Context) (any, error)

// Config holds cache settings. Zero values fall back to defaults.
type Config struct {
	// MaxEntries bounds the memory tier (default 100).
	MaxEntries int

	// DefaultTTL applies when Set is called with a non-positive TTL.
	DefaultTTL time.Duration

	// RootKey namespaces this cache's table in the backing store.
	RootKey string

	// Debounce is the quiet period before persistent writes land.
	Debounce time.Duration

	// Clock drives expiry and the debounce timer; tests inject a mock.
	Clock clock.Clock

	Logger logging.Logger
}

// Stats reports both tiers plus facade hit/miss counters.
type Stats struct {
	Memory  memtier.Stats `json:"memory"`
	Storage persist.Stats `json:"storage"`
	Hits    int64         `json:"hits"`
	Misses  int64         `json:"misses"`
}

// Cache is the two-tier facade. Construct one per application (or one per
// root key) and share it by reference.
type Cache struct {
	mem        *memtier.Tier
	pst        *persist.Tier
	clk        clock.Clock
	log        logging.Logger
	defaultTTL time.Duration
	group      singleflight.Group
	hits       atomic.Int64
	misses     atomic.Int64
}

// New creates a cache over the given backing store.
func New(store stores.KVStore, config Config) *Cache {
	if config.MaxEntries == 0 {
		config.MaxEntries = memtier.DefaultMaxEntries
	}
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = entry.DefaultTTL
	}
	if config.Clock == nil {
		config.Clock = clock.New()
	}
	if config.Logger == nil {
		config.Logger = logging.GetGlobalLogger()
	}

	return &Cache{
		mem: memtier.New(config.MaxEntries, config.Clock),
		pst: persist.New(store, persist.Config{
			RootKey:  config.RootKey,
			Debounce: config.Debounce,
			Clock:    config.Clock,
			Logger:   config.Logger,
		}),
		clk:        config.Clock,
		log:        config.Logger,
		defaultTTL: config.DefaultTTL,
	}
}

// Get returns the cached value for key. Memory is consulted first; a fresh
// persistent hit is promoted into the memory tier. Expired entries count
// as misses and are removed from whichever tier held them.
func (c *Cache) Get(ctx context.Context, key string) (any, bool) {
	if e := c.mem.Get(key); e != nil {
		c.hits.Add(1)
		return e.Value, true
	}

	e := c.pst.Read(ctx, key)
	if e == nil {
		c.misses.Add(1)
		return nil, false
	}
	if e.Expired(c.clk.Now()) {
		c.pst.Delete(ctx, key)
		c.misses.Add(1)
		return nil, false
	}

	c.mem.Set(key, e)
	c.hits.Add(1)
	return e.Value, true
}

// Set caches value under key in both tiers. The entry is stamped with the
// current time; a non-positive ttl uses the configured default. The call
// returns once memory is updated and a persistent write is scheduled, not
// after it lands.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	e := entry.New(value, ttl, c.clk.Now())
	c.mem.Set(key, e)
	c.pst.Put(ctx, key, e)
}

// Invalidate removes key from both tiers.
func (c *Cache) Invalidate(ctx context.Context, key string) {
	c.mem.Delete(key)
	c.pst.Delete(ctx, key)
}

// InvalidatePattern removes every key matching pattern from both tiers and
// returns the number of distinct keys removed. The only wildcard is '*',
// matching zero or more characters; everything else is literal. A key
// present in both tiers counts once.
func (c *Cache) InvalidatePattern(ctx context.Context, pattern string) int {
	matcher, err := compilePattern(pattern)
	if err != nil {
		c.log.Warn("invalid invalidation pattern",
			logging.String("pattern", pattern), logging.Err(err))
		return 0
	}

	removed := make(map[string]struct{})
	for _, key := range c.mem.Keys() {
		if matcher.MatchString(key) {
			c.mem.Delete(key)
			removed[key] = struct{}{}
		}
	}
	for _, key := range c.pst.DeleteMatching(ctx, matcher.MatchString) {
		removed[key] = struct{}{}
	}
	return len(removed)
}

// Clear empties the memory tier and deletes the persisted table outright.
// Unlike Set and Invalidate this writes through immediately; clearing is
// rare and explicit.
func (c *Cache) Clear(ctx context.Context) {
	c.mem.Clear()
	c.pst.Drop(ctx)
}

// GetOrCompute implements cache-aside: return the cached value, or invoke
// compute, cache its result and return it. Concurrent callers missing on
// the same key share a single computation. A compute error propagates
// unchanged and caches nothing.
func (c *Cache) GetOrCompute(ctx context.Context, key string, compute ComputeFunc, ttl time.Duration) (any, error) {
	if value, ok := c.Get(ctx, key); ok {
		return value, nil
	}

	value, err, _ := c.group.Do(key, func() (any, error) {
		// A concurrent caller may have landed the value while this
		// call waited its turn.
		if value, ok := c.Get(ctx, key); ok {
			return value, nil
		}
		value, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, value, ttl)
		return value, nil
	})
	return value, err
}

// GetTTL returns the remaining lifetime of key in the memory tier, zero if
// it is absent there. A key living only in the persistent tier reports
// zero; TTL is primarily a memory-tier concept.
func (c *Cache) GetTTL(key string) time.Duration {
	return time.Duration(c.mem.RemainingTTL(key)) * time.Second
}

// Prune removes expired entries from both tiers and re-enforces the memory
// bound, returning the total entries dropped. The maintenance janitor
// calls this on a schedule.
func (c *Cache) Prune(ctx context.Context) int {
	removed := c.mem.PruneExpired()
	c.mem.EvictIfOverCapacity()
	return removed + c.pst.PruneExpired(ctx)
}

// Stats reports both tiers and the facade counters. It never mutates
// cached state (beyond the persistent tier's one-time lazy load) and is
// safe to expose to monitoring.
func (c *Cache) Stats(ctx context.Context) Stats {
	return Stats{
		Memory:  c.mem.Stats(),
		Storage: c.pst.Stats(ctx),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}
}

// Close cancels any pending debounced write and flushes the persistent
// tier synchronously. The backing store itself is closed by its owner.
func (c *Cache) Close(ctx context.Context) {
	c.pst.Close(ctx)
}

// compilePattern turns a wildcard pattern into an anchored regexp: every
// regex metacharacter is escaped except '*', which becomes ".*".
func compilePattern(pattern string) (*regexp.Regexp, error) {
	parts := strings.Split(pattern, "*")
	for i := range parts {
		parts[i] = regexp.QuoteMeta(parts[i])
	}
	return regexp.Compile("^" + strings.Join(parts, ".*") + "$")
}

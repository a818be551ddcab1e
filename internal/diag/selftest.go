// Package diag exposes the cache's observability surface: a stats/health
// HTTP API and a self-test harness that exercises every cache behavior
// against throwaway instances.
package diag

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"tiercache/pkg/entry"
	"tiercache/pkg/persist"
	"tiercache/pkg/stores"
	"tiercache/pkg/tiercache"
)

// CheckResult reports the outcome of one self-test check.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

type check struct {
	name string
	run  func(ctx context.Context) error
}

// SelfTest runs every behavioral check against fresh, isolated cache
// instances driven by a virtual clock, so it completes without sleeping
// and without touching the live cache.
func SelfTest(ctx context.Context) []CheckResult {
	checks := []check{
		{"ttl-expiry", checkTTLExpiry},
		{"lru-eviction", checkLRUEviction},
		{"pattern-invalidation", checkPatternInvalidation},
		{"promotion", checkPromotion},
		{"cache-aside", checkCacheAside},
		{"quota-recovery", checkQuotaRecovery},
	}

	results := make([]CheckResult, 0, len(checks))
	for _, c := range checks {
		result := CheckResult{Name: c.name, Passed: true}
		if err := c.run(ctx); err != nil {
			result.Passed = false
			result.Detail = err.Error()
		}
		results = append(results, result)
	}
	return results
}

// AllPassed reports whether every check succeeded.
func AllPassed(results []CheckResult) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}

func newSandboxCache(config tiercache.Config) (*tiercache.Cache, *stores.MemoryStore, *clock.Mock) {
	clk := clock.NewMock()
	config.Clock = clk
	store := stores.NewMemoryStore(0)
	return tiercache.New(store, config), store, clk
}

func checkTTLExpiry(ctx context.Context) error {
	cache, _, clk := newSandboxCache(tiercache.Config{})

	cache.Set(ctx, "user:1", "payload", time.Second)
	if _, ok := cache.Get(ctx, "user:1"); !ok {
		return fmt.Errorf("fresh entry should be a hit")
	}

	clk.Add(1500 * time.Millisecond)
	if _, ok := cache.Get(ctx, "user:1"); ok {
		return fmt.Errorf("entry should expire after its TTL")
	}
	return nil
}

func checkLRUEviction(ctx context.Context) error {
	cache, _, _ := newSandboxCache(tiercache.Config{MaxEntries: 3})

	for i := 0; i < 5; i++ {
		cache.Set(ctx, fmt.Sprintf("k%d", i), i, time.Hour)
	}

	if size := cache.Stats(ctx).Memory.Size; size != 3 {
		return fmt.Errorf("memory tier holds %d entries, want 3", size)
	}
	if _, ok := cache.Get(ctx, "k0"); !ok {
		return fmt.Errorf("evicted key should still hit the persistent tier")
	}
	return nil
}

func checkPatternInvalidation(ctx context.Context) error {
	cache, _, _ := newSandboxCache(tiercache.Config{})

	cache.Set(ctx, "user:100", "a", time.Hour)
	cache.Set(ctx, "user:101", "b", time.Hour)
	cache.Set(ctx, "other:1", "c", time.Hour)

	if removed := cache.InvalidatePattern(ctx, "user:*"); removed != 2 {
		return fmt.Errorf("removed %d keys, want 2", removed)
	}
	if _, ok := cache.Get(ctx, "other:1"); !ok {
		return fmt.Errorf("keys outside the pattern must survive")
	}
	return nil
}

func checkPromotion(ctx context.Context) error {
	clk := clock.NewMock()
	store := stores.NewMemoryStore(0)

	table := map[string]*entry.Entry{
		"up:42": {Value: "alice", CachedAt: clk.Now().UnixMilli(), TTL: 3600},
	}
	data, err := json.Marshal(table)
	if err != nil {
		return err
	}
	if err := store.Set(ctx, persist.DefaultRootKey, string(data)); err != nil {
		return err
	}

	cache := tiercache.New(store, tiercache.Config{Clock: clk})
	value, ok := cache.Get(ctx, "up:42")
	if !ok || value != "alice" {
		return fmt.Errorf("persisted entry should be served on a memory miss")
	}
	if size := cache.Stats(ctx).Memory.Size; size != 1 {
		return fmt.Errorf("persistent hit should be promoted into memory")
	}
	return nil
}

func checkCacheAside(ctx context.Context) error {
	cache, _, _ := newSandboxCache(tiercache.Config{})

	calls := 0
	compute := func(ctx context.Context) (any, error) {
		calls++
		return "computed", nil
	}

	for i := 0; i < 2; i++ {
		value, err := cache.GetOrCompute(ctx, "lb:weekly", compute, time.Minute)
		if err != nil {
			return err
		}
		if value != "computed" {
			return fmt.Errorf("unexpected value %v", value)
		}
	}
	if calls != 1 {
		return fmt.Errorf("compute ran %d times, want 1", calls)
	}
	return nil
}

// quotaOnceStore refuses its first write with a quota error, provoking the
// persistent tier's reclamation path.
type quotaOnceStore struct {
	*stores.MemoryStore
	failed bool
}

func (q *quotaOnceStore) Set(ctx context.Context, key, value string) error {
	if !q.failed {
		q.failed = true
		return stores.ErrQuotaExceeded
	}
	return q.MemoryStore.Set(ctx, key, value)
}

func checkQuotaRecovery(ctx context.Context) error {
	clk := clock.NewMock()
	store := &quotaOnceStore{MemoryStore: stores.NewMemoryStore(0)}
	// Debounce far in the future so the only flush is the one Close runs.
	cache := tiercache.New(store, tiercache.Config{Clock: clk, Debounce: time.Hour})

	cache.Set(ctx, "stale", 1, time.Second)
	cache.Set(ctx, "fresh", 2, time.Hour)
	clk.Add(2 * time.Second) // "stale" is now expired

	cache.Close(ctx) // flush fails on quota, purges expired, retries

	raw, ok, err := store.MemoryStore.Get(ctx, persist.DefaultRootKey)
	if err != nil || !ok {
		return fmt.Errorf("table should be persisted after reclamation")
	}
	table := map[string]*entry.Entry{}
	if err := json.Unmarshal([]byte(raw), &table); err != nil {
		return err
	}
	if _, ok := table["stale"]; ok {
		return fmt.Errorf("expired entry should be purged during reclamation")
	}
	if _, ok := table["fresh"]; !ok {
		return fmt.Errorf("fresh entry should survive reclamation")
	}
	return nil
}

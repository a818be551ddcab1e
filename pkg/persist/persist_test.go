package persist

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tiercache/pkg/entry"
	"tiercache/pkg/stores"
)

// flakyStore wraps a MemoryStore, counts writes and can refuse a
// configured number of them with a quota error.
type flakyStore struct {
	*stores.MemoryStore
	mu         sync.Mutex
	sets       int
	quotaFails int
}

func newFlakyStore() *flakyStore {
	return &flakyStore{MemoryStore: stores.NewMemoryStore(0)}
}

func (f *flakyStore) Set(ctx context.Context, key, value string) error {
	f.mu.Lock()
	f.sets++
	fail := f.quotaFails > 0
	if fail {
		f.quotaFails--
	}
	f.mu.Unlock()

	if fail {
		return stores.ErrQuotaExceeded
	}
	return f.MemoryStore.Set(ctx, key, value)
}

func (f *flakyStore) setCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sets
}

func newTestTier(store stores.KVStore) (*Tier, *clock.Mock) {
	clk := clock.NewMock()
	tier := New(store, Config{Clock: clk})
	return tier, clk
}

func persistedTable(t *testing.T, store stores.KVStore) map[string]*entry.Entry {
	t.Helper()
	raw, ok, err := store.Get(context.Background(), DefaultRootKey)
	require.NoError(t, err)
	if !ok {
		return nil
	}
	table := make(map[string]*entry.Entry)
	require.NoError(t, json.Unmarshal([]byte(raw), &table))
	return table
}

func TestLazyLoad(t *testing.T) {
	ctx := context.Background()
	store := stores.NewMemoryStore(0)

	seed := map[string]*entry.Entry{
		"ua:1": {Value: "alice", CachedAt: 1, TTL: 3600},
	}
	data, err := json.Marshal(seed)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, DefaultRootKey, string(data)))

	tier, _ := newTestTier(store)

	e := tier.Read(ctx, "ua:1")
	require.NotNil(t, e)
	assert.Equal(t, "alice", e.Value)
	assert.Nil(t, tier.Read(ctx, "ua:2"))
}

func TestLoadCorruptTableDiscards(t *testing.T) {
	ctx := context.Background()
	store := stores.NewMemoryStore(0)
	require.NoError(t, store.Set(ctx, DefaultRootKey, "{not json"))

	tier, _ := newTestTier(store)

	assert.Nil(t, tier.Read(ctx, "anything"))

	_, ok, err := store.Get(ctx, DefaultRootKey)
	require.NoError(t, err)
	assert.False(t, ok, "corrupt root key is removed")
}

func TestCloseWithoutActivityKeepsPersistedTable(t *testing.T) {
	ctx := context.Background()
	store := stores.NewMemoryStore(0)

	seed := map[string]*entry.Entry{
		"ua:1": {Value: "alice", CachedAt: 1, TTL: 3600},
	}
	data, err := json.Marshal(seed)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, DefaultRootKey, string(data)))

	tier, _ := newTestTier(store)
	tier.Close(ctx)

	table := persistedTable(t, store)
	require.NotNil(t, table, "idle shutdown must not touch the root key")
	assert.Contains(t, table, "ua:1")
}

func TestDebouncedWrite(t *testing.T) {
	ctx := context.Background()
	store := newFlakyStore()
	tier, clk := newTestTier(store)

	tier.Put(ctx, "a", entry.New(1, time.Minute, clk.Now()))
	tier.Put(ctx, "b", entry.New(2, time.Minute, clk.Now()))
	tier.Put(ctx, "c", entry.New(3, time.Minute, clk.Now()))

	assert.Equal(t, 0, store.setCount(), "nothing written before the quiet period")

	clk.Add(DefaultDebounce)

	assert.Equal(t, 1, store.setCount(), "burst coalesces into one write")
	table := persistedTable(t, store)
	assert.Len(t, table, 3)
}

func TestDebounceSupersedesPendingWrite(t *testing.T) {
	ctx := context.Background()
	store := newFlakyStore()
	tier, clk := newTestTier(store)

	tier.Put(ctx, "a", entry.New(1, time.Minute, clk.Now()))
	clk.Add(DefaultDebounce / 2)
	tier.Put(ctx, "b", entry.New(2, time.Minute, clk.Now()))
	clk.Add(DefaultDebounce / 2)

	assert.Equal(t, 0, store.setCount(), "second put re-arms the timer")

	clk.Add(DefaultDebounce / 2)
	assert.Equal(t, 1, store.setCount())
}

func TestDeleteSchedulesWriteOnlyWhenPresent(t *testing.T) {
	ctx := context.Background()
	store := newFlakyStore()
	tier, clk := newTestTier(store)

	assert.False(t, tier.Delete(ctx, "ghost"))
	clk.Add(DefaultDebounce)
	assert.Equal(t, 0, store.setCount())

	tier.Put(ctx, "a", entry.New(1, time.Minute, clk.Now()))
	clk.Add(DefaultDebounce)
	assert.True(t, tier.Delete(ctx, "a"))
	clk.Add(DefaultDebounce)

	assert.Empty(t, persistedTable(t, store))
}

func TestDeleteMatching(t *testing.T) {
	ctx := context.Background()
	store := newFlakyStore()
	tier, clk := newTestTier(store)

	tier.Put(ctx, "user:1", entry.New(1, time.Minute, clk.Now()))
	tier.Put(ctx, "user:2", entry.New(2, time.Minute, clk.Now()))
	tier.Put(ctx, "other:1", entry.New(3, time.Minute, clk.Now()))

	removed := tier.DeleteMatching(ctx, func(key string) bool {
		return len(key) > 5 && key[:5] == "user:"
	})
	assert.ElementsMatch(t, []string{"user:1", "user:2"}, removed)

	clk.Add(DefaultDebounce)
	table := persistedTable(t, store)
	assert.Len(t, table, 1)
	assert.Contains(t, table, "other:1")
}

func TestQuotaRecoveryPurgesExpired(t *testing.T) {
	ctx := context.Background()
	store := newFlakyStore()
	tier, clk := newTestTier(store)

	tier.Put(ctx, "stale", entry.New(1, time.Second, clk.Now()))
	tier.Put(ctx, "fresh", entry.New(2, time.Hour, clk.Now()))
	clk.Add(2 * time.Second) // "stale" is now expired, debounce fired once

	store.mu.Lock()
	store.quotaFails = 1
	store.sets = 0
	store.mu.Unlock()

	tier.Flush(ctx)

	assert.Equal(t, 2, store.setCount(), "failed write plus one retry")
	table := persistedTable(t, store)
	assert.Len(t, table, 1)
	assert.Contains(t, table, "fresh")
	assert.NotContains(t, table, "stale")
}

func TestQuotaRecoveryPurgesOldestQuarter(t *testing.T) {
	ctx := context.Background()
	store := newFlakyStore()
	tier, clk := newTestTier(store)

	// Eight fresh entries with strictly increasing CachedAt; the two
	// oldest are the reclamation victims.
	for i, key := range []string{"k0", "k1", "k2", "k3", "k4", "k5", "k6", "k7"} {
		tier.Put(ctx, key, entry.New(i, time.Hour, clk.Now()))
		clk.Add(DefaultDebounce) // each put lands, spacing the timestamps
	}

	store.mu.Lock()
	store.quotaFails = 1
	store.mu.Unlock()

	tier.Flush(ctx)

	table := persistedTable(t, store)
	assert.Len(t, table, 6)
	assert.NotContains(t, table, "k0")
	assert.NotContains(t, table, "k1")
	assert.Contains(t, table, "k7")
}

func TestQuotaRecoveryDropsTableWhenRetryFails(t *testing.T) {
	ctx := context.Background()
	store := newFlakyStore()
	tier, clk := newTestTier(store)

	tier.Put(ctx, "a", entry.New(1, time.Hour, clk.Now()))
	clk.Add(DefaultDebounce)
	require.Equal(t, 1, store.setCount())

	store.mu.Lock()
	store.quotaFails = 2
	store.mu.Unlock()

	tier.Put(ctx, "b", entry.New(2, time.Hour, clk.Now()))
	clk.Add(DefaultDebounce)

	assert.Nil(t, persistedTable(t, store), "root key is dropped, not left stale")
	assert.Nil(t, tier.Read(ctx, "a"))
	assert.Nil(t, tier.Read(ctx, "b"))
}

func TestDropRemovesRootKeyImmediately(t *testing.T) {
	ctx := context.Background()
	store := newFlakyStore()
	tier, clk := newTestTier(store)

	tier.Put(ctx, "a", entry.New(1, time.Hour, clk.Now()))
	clk.Add(DefaultDebounce)
	require.NotNil(t, persistedTable(t, store))

	tier.Drop(ctx)

	assert.Nil(t, persistedTable(t, store))
	assert.Nil(t, tier.Read(ctx, "a"))
}

func TestPruneExpired(t *testing.T) {
	ctx := context.Background()
	store := newFlakyStore()
	tier, clk := newTestTier(store)

	tier.Put(ctx, "stale", entry.New(1, time.Second, clk.Now()))
	tier.Put(ctx, "fresh", entry.New(2, time.Hour, clk.Now()))
	clk.Add(2 * time.Second)

	assert.Equal(t, 1, tier.PruneExpired(ctx))
	assert.Equal(t, 0, tier.PruneExpired(ctx), "second prune finds nothing")

	clk.Add(DefaultDebounce)
	table := persistedTable(t, store)
	assert.Len(t, table, 1)
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	store := newFlakyStore()
	tier, clk := newTestTier(store)

	tier.Put(ctx, "stale", entry.New(1, time.Second, clk.Now()))
	tier.Put(ctx, "fresh", entry.New(2, time.Hour, clk.Now()))
	clk.Add(2 * time.Second)

	stats := tier.Stats(ctx)
	assert.Equal(t, 2, stats.Size)
	assert.Equal(t, 1, stats.Expired)

	// Stats does not purge.
	assert.Equal(t, 2, tier.Stats(ctx).Size)
}

func TestUnserializableValueSkipsPersistence(t *testing.T) {
	ctx := context.Background()
	store := newFlakyStore()
	tier, clk := newTestTier(store)

	tier.Put(ctx, "bad", entry.New(make(chan int), time.Minute, clk.Now()))
	clk.Add(DefaultDebounce)

	assert.Equal(t, 0, store.setCount(), "unserializable value never schedules a write")
	assert.Nil(t, tier.Read(ctx, "bad"))
}

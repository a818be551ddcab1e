// Package persist implements the durable cache tier: one serialized table
// kept under a single root key in a backing key-value store, written
// through a debounced scheduler so bursty cache activity produces a
// bounded write rate.
//
// The tier is best-effort by contract. Parse failures discard the
// persisted table, quota failures trigger reclamation and a retry, and
// every other store failure is logged and swallowed. Nothing here ever
// surfaces an error that would make the cache unusable.
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	apperrors "tiercache/internal/common/errors"
	"tiercache/internal/common/logging"
	"tiercache/pkg/entry"
	"tiercache/pkg/stores"
)

const (
	// DefaultRootKey is the store key the serialized table lives under.
	DefaultRootKey = "tiercache:table"

	// DefaultDebounce is the quiet period before a scheduled write lands.
	DefaultDebounce = 500 * time.Millisecond

	storeTimeout = 5 * time.Second
)

// Config holds tier settings. Zero values fall back to defaults.
type Config struct {
	// RootKey namespaces this tier in the backing store. Two cache
	// instances sharing a store must use distinct root keys.
	RootKey string

	// Debounce is the delay between the last scheduled write and the
	// actual store write.
	Debounce time.Duration

	// Clock is injected by tests to drive the debounce timer with
	// virtual time.
	Clock clock.Clock

	Logger logging.Logger
}

// Stats is a read-only snapshot of the tier.
type Stats struct {
	Size    int `json:"size"`
	Expired int `json:"expired"`
}

// Tier owns the in-memory copy of the persisted table and the debounce
// timer that flushes it.
type Tier struct {
	mu      sync.Mutex
	store   stores.KVStore
	rootKey string
	delay   time.Duration
	clk     clock.Clock
	log     logging.Logger

	table  map[string]*entry.Entry
	loaded bool
	timer  *clock.Timer
}

// New creates a persistent tier over the given store.
func New(store stores.KVStore, config Config) *Tier {
	if config.RootKey == "" {
		config.RootKey = DefaultRootKey
	}
	if config.Debounce <= 0 {
		config.Debounce = DefaultDebounce
	}
	if config.Clock == nil {
		config.Clock = clock.New()
	}
	if config.Logger == nil {
		config.Logger = logging.GetGlobalLogger()
	}
	return &Tier{
		store:   store,
		rootKey: config.RootKey,
		delay:   config.Debounce,
		clk:     config.Clock,
		log:     config.Logger,
		table:   make(map[string]*entry.Entry),
	}
}

// Read returns the entry for key, or nil. Expiry is the caller's concern;
// the tier reports whatever the table holds. Triggers the lazy load.
func (t *Tier) Read(ctx context.Context, key string) *entry.Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ensureLoadedLocked(ctx)
	return t.table[key]
}

// Put inserts or replaces the entry for key and schedules a write. A value
// that cannot be serialized is logged and skipped; it simply never reaches
// the durable tier.
func (t *Tier) Put(ctx context.Context, key string, e *entry.Entry) {
	if _, err := json.Marshal(e); err != nil {
		t.log.Warn("value is not serializable, skipping persistent tier",
			logging.String("key", key),
			logging.Err(apperrors.SerializationError("value is not serializable", err)))
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.ensureLoadedLocked(ctx)
	t.table[key] = e
	t.scheduleWriteLocked()
}

// Delete removes key from the table. A write is scheduled only if the key
// was actually present.
func (t *Tier) Delete(ctx context.Context, key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ensureLoadedLocked(ctx)
	if _, ok := t.table[key]; !ok {
		return false
	}
	delete(t.table, key)
	t.scheduleWriteLocked()
	return true
}

// DeleteMatching removes every key the matcher accepts and returns the
// removed keys. A write is scheduled only when something was removed.
func (t *Tier) DeleteMatching(ctx context.Context, matches func(string) bool) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ensureLoadedLocked(ctx)
	var removed []string
	for key := range t.table {
		if matches(key) {
			delete(t.table, key)
			removed = append(removed, key)
		}
	}
	if len(removed) > 0 {
		t.scheduleWriteLocked()
	}
	return removed
}

// PruneExpired drops every expired entry from the table and returns the
// count removed, scheduling a write if anything changed.
func (t *Tier) PruneExpired(ctx context.Context) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ensureLoadedLocked(ctx)
	removed := t.removeExpiredLocked()
	if removed > 0 {
		t.scheduleWriteLocked()
	}
	return removed
}

// Drop empties the table and deletes the root key immediately. Used by the
// facade's Clear, which is rare enough to skip the debounce.
func (t *Tier) Drop(ctx context.Context) {
	t.mu.Lock()
	t.table = make(map[string]*entry.Entry)
	t.loaded = true
	t.cancelTimerLocked()
	t.mu.Unlock()

	if err := t.store.Remove(ctx, t.rootKey); err != nil {
		t.log.Warn("failed to remove root key", logging.Err(err),
			logging.String("store", t.store.Name()))
	}
}

// Stats counts resident and expired-but-unpurged entries. It loads the
// table if needed but mutates nothing else.
func (t *Tier) Stats(ctx context.Context) Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ensureLoadedLocked(ctx)
	now := t.clk.Now()
	expired := 0
	for _, e := range t.table {
		if e.Expired(now) {
			expired++
		}
	}
	return Stats{Size: len(t.table), Expired: expired}
}

// Flush writes the table out now, bypassing the debounce. Called on Close
// and by tests.
func (t *Tier) Flush(ctx context.Context) {
	t.mu.Lock()
	t.cancelTimerLocked()
	t.mu.Unlock()
	t.flush(ctx)
}

// Close cancels any pending write and flushes synchronously. It does not
// close the backing store; the store's owner does that.
func (t *Tier) Close(ctx context.Context) {
	t.Flush(ctx)
}

// ensureLoadedLocked parses the root key once per tier lifetime. Corrupt
// data is discarded, and the loaded flag is set even on failure so a bad
// store is not hammered on every access.
func (t *Tier) ensureLoadedLocked(ctx context.Context) {
	if t.loaded {
		return
	}
	t.loaded = true

	raw, ok, err := t.store.Get(ctx, t.rootKey)
	if err != nil {
		t.log.Warn("failed to load persisted table, starting empty",
			logging.Err(apperrors.StorageError("store read failed", err)),
			logging.String("store", t.store.Name()))
		return
	}
	if !ok {
		return
	}

	table := make(map[string]*entry.Entry)
	if err := json.Unmarshal([]byte(raw), &table); err != nil {
		t.log.Warn("persisted table is corrupt, discarding",
			logging.Err(apperrors.CorruptionError("unparseable persisted table", err)),
			logging.String("root_key", t.rootKey))
		if removeErr := t.store.Remove(ctx, t.rootKey); removeErr != nil {
			t.log.Warn("failed to remove corrupt table", logging.Err(removeErr))
		}
		return
	}
	t.table = table
}

// scheduleWriteLocked arms the debounce timer, superseding any pending
// write. Only the state at fire time is ever written.
func (t *Tier) scheduleWriteLocked() {
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = t.clk.AfterFunc(t.delay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		t.flush(ctx)
	})
}

func (t *Tier) cancelTimerLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

// flush serializes the table and writes it under the root key, recovering
// from quota failures by reclamation. On the first quota failure every
// expired entry is purged; if that frees nothing, the oldest quarter of
// the table (by CachedAt) goes instead. One retry follows. If the store
// still refuses the write the whole table is dropped rather than left
// half-written.
func (t *Tier) flush(ctx context.Context) {
	data, ok := t.snapshot()
	if !ok {
		return
	}

	err := t.store.Set(ctx, t.rootKey, data)
	if err == nil {
		return
	}
	if !errors.Is(err, stores.ErrQuotaExceeded) {
		t.log.Warn("persistent write failed",
			logging.Err(apperrors.StorageError("store rejected write", err)),
			logging.String("store", t.store.Name()))
		return
	}

	t.mu.Lock()
	removed := t.removeExpiredLocked()
	if removed == 0 {
		removed = t.removeOldestQuarterLocked()
	}
	t.mu.Unlock()
	t.log.Info("store quota exceeded, reclaimed entries",
		logging.Int("removed", removed), logging.String("store", t.store.Name()))

	data, ok = t.snapshot()
	if !ok {
		return
	}
	if err := t.store.Set(ctx, t.rootKey, data); err != nil {
		t.log.Warn("persistent write failed after reclamation, dropping table",
			logging.Err(apperrors.StorageError("store rejected write", err)))
		t.mu.Lock()
		t.table = make(map[string]*entry.Entry)
		t.mu.Unlock()
		if removeErr := t.store.Remove(ctx, t.rootKey); removeErr != nil {
			t.log.Warn("failed to remove root key", logging.Err(removeErr))
		}
	}
}

func (t *Tier) snapshot() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Every mutation loads the table first, so an unloaded tier has
	// nothing to say. Writing its empty table would clobber whatever a
	// previous run persisted under the root key.
	if !t.loaded {
		return "", false
	}

	data, err := json.Marshal(t.table)
	if err != nil {
		t.log.Warn("failed to serialize table",
			logging.Err(apperrors.SerializationError("table is not serializable", err)))
		return "", false
	}
	return string(data), true
}

func (t *Tier) removeExpiredLocked() int {
	now := t.clk.Now()
	removed := 0
	for key, e := range t.table {
		if e.Expired(now) {
			delete(t.table, key)
			removed++
		}
	}
	return removed
}

// removeOldestQuarterLocked drops the oldest 25% of entries by CachedAt,
// at least one. A blunt instrument: the tier cannot know which keys the
// caller values.
func (t *Tier) removeOldestQuarterLocked() int {
	if len(t.table) == 0 {
		return 0
	}

	keys := make([]string, 0, len(t.table))
	for key := range t.table {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		return t.table[keys[i]].CachedAt < t.table[keys[j]].CachedAt
	})

	count := len(keys) / 4
	if count == 0 {
		count = 1
	}
	for _, key := range keys[:count] {
		delete(t.table, key)
	}
	return count
}

// Package memtier implements the fast in-process cache tier: a bounded
// map with LRU eviction driven by an access-order list.
package memtier

import (
	"container/list"
	"sync"

	"github.com/benbjohnson/clock"

	"tiercache/pkg/entry"
)

// DefaultMaxEntries bounds the tier when no explicit limit is configured.
const DefaultMaxEntries = 100

// Tier is a thread-safe LRU cache of entries. Every hit or write moves the
// key to the most-recently-used end of the access list; eviction removes
// from the other end.
type Tier struct {
	mu      sync.RWMutex
	items   map[string]*item
	lruList *list.List // front = most recently used
	maxSize int
	clk     clock.Clock
}

type item struct {
	key     string
	entry   *entry.Entry
	element *list.Element
}

// Stats is a point-in-time snapshot of the tier, for observability only.
type Stats struct {
	Size    int `json:"size"`
	MaxSize int `json:"max_size"`
	Expired int `json:"expired"`
}

// New creates a memory tier holding at most maxSize entries.
// A negative maxSize falls back to DefaultMaxEntries; zero is honored and
// makes the tier evict everything it is given.
func New(maxSize int, clk clock.Clock) *Tier {
	if maxSize < 0 {
		maxSize = DefaultMaxEntries
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Tier{
		items:   make(map[string]*item),
		lruList: list.New(),
		maxSize: maxSize,
		clk:     clk,
	}
}

// Get returns the entry for key, or nil on a miss. An expired entry is
// removed and reported as a miss. A hit counts as a touch.
func (t *Tier) Get(key string) *entry.Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	it, ok := t.items[key]
	if !ok {
		return nil
	}
	if it.entry.Expired(t.clk.Now()) {
		t.removeItem(it)
		return nil
	}
	t.lruList.MoveToFront(it.element)
	return it.entry
}

// Set inserts or overwrites the entry for key, touches it, then enforces
// the size bound.
func (t *Tier) Set(key string, e *entry.Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if it, ok := t.items[key]; ok {
		it.entry = e
		t.lruList.MoveToFront(it.element)
	} else {
		it := &item{key: key, entry: e}
		it.element = t.lruList.PushFront(it)
		t.items[key] = it
	}

	t.evictLocked()
}

// Delete removes key from the tier if present.
func (t *Tier) Delete(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	it, ok := t.items[key]
	if !ok {
		return false
	}
	t.removeItem(it)
	return true
}

// Keys returns every resident key, in no particular order. Expired entries
// are included; callers wanting a clean view should prune first.
func (t *Tier) Keys() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	keys := make([]string, 0, len(t.items))
	for k := range t.items {
		keys = append(keys, k)
	}
	return keys
}

// Clear drops every entry.
func (t *Tier) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.items = make(map[string]*item)
	t.lruList.Init()
}

// Len returns the number of resident entries, expired or not.
func (t *Tier) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.items)
}

// RemainingTTL returns the seconds left for key, or 0 if the key is absent
// or expired. It does not touch the key.
func (t *Tier) RemainingTTL(key string) int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	it, ok := t.items[key]
	if !ok {
		return 0
	}
	return it.entry.RemainingTTL(t.clk.Now())
}

// PruneExpired removes every expired entry and returns the count removed.
// It does not run LRU eviction.
func (t *Tier) PruneExpired() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clk.Now()
	var stale []*item
	for _, it := range t.items {
		if it.entry.Expired(now) {
			stale = append(stale, it)
		}
	}
	for _, it := range stale {
		t.removeItem(it)
	}
	return len(stale)
}

// EvictIfOverCapacity enforces the size bound outside of Set, so callers
// can run pruning followed by capacity enforcement as one maintenance pass.
func (t *Tier) EvictIfOverCapacity() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.evictLocked()
}

// Stats reports current size, capacity and the number of entries that have
// expired but not yet been purged. Read-only.
func (t *Tier) Stats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := t.clk.Now()
	expired := 0
	for _, it := range t.items {
		if it.entry.Expired(now) {
			expired++
		}
	}
	return Stats{Size: len(t.items), MaxSize: t.maxSize, Expired: expired}
}

func (t *Tier) evictLocked() {
	for len(t.items) > t.maxSize {
		element := t.lruList.Back()
		if element == nil {
			return
		}
		t.removeItem(element.Value.(*item))
	}
}

func (t *Tier) removeItem(it *item) {
	delete(t.items, it.key)
	t.lruList.Remove(it.element)
}

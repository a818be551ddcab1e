// Package entry defines the cache entry model shared by both cache tiers.
package entry

import "time"

// DefaultTTL is applied when a caller does not supply a TTL.
const DefaultTTL = 300 * time.Second

// Entry wraps a cached value with the metadata needed for expiry checks.
// CachedAt is stamped by the cache at insertion time, never by the caller.
// TTL is kept in whole seconds so the entry round-trips through JSON without
// precision games.
type Entry struct {
	Value    any   `json:"value"`
	CachedAt int64 `json:"cachedAt"` // unix milliseconds
	TTL      int64 `json:"ttl"`      // seconds
}

// New builds a fresh entry stamped with the given wall-clock time.
// A non-positive ttl falls back to DefaultTTL.
func New(value any, ttl time.Duration, now time.Time) *Entry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Entry{
		Value:    value,
		CachedAt: now.UnixMilli(),
		TTL:      int64(ttl / time.Second),
	}
}

// expiresAt returns the expiry instant in unix milliseconds.
func (e *Entry) expiresAt() int64 {
	return e.CachedAt + e.TTL*1000
}

// Expired reports whether the entry is past its TTL at the given time.
// A nil entry is never considered expired. Absence is modeled by a nil
// pointer, so an entry stamped exactly at the Unix epoch expires like any
// other.
func (e *Entry) Expired(now time.Time) bool {
	if e == nil {
		return false
	}
	return now.UnixMilli() > e.expiresAt()
}

// RemainingTTL returns how long the entry has left to live, in whole seconds.
// Missing and expired entries report zero.
func (e *Entry) RemainingTTL(now time.Time) int64 {
	if e == nil {
		return 0
	}
	remaining := (e.expiresAt() - now.UnixMilli()) / 1000
	if remaining < 0 {
		return 0
	}
	return remaining
}

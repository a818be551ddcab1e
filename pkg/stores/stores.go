// Package stores defines the backing key-value store contract the
// persistent cache tier writes through, plus the bundled implementations.
package stores

import (
	"context"
	"errors"
)

// ErrQuotaExceeded is returned by Set when the store cannot accept the
// value without exceeding its capacity. Implementations wrap their native
// capacity failures so callers can detect it with errors.Is.
var ErrQuotaExceeded = errors.New("store quota exceeded")

// KVStore is the minimal contract the persistent tier requires: get, set
// and remove by string key. The tier only ever touches its own root key.
type KVStore interface {
	// Name identifies the store for logs and metrics.
	Name() string

	// Get returns the stored value and whether the key was present.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value under key. Returns an error wrapping
	// ErrQuotaExceeded when the store is out of capacity.
	Set(ctx context.Context, key string, value string) error

	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error

	// Close releases any underlying resources.
	Close() error
}

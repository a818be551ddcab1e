// Package tiercache unifies a fast in-process LRU tier and a slower
// durable tier behind one key-value cache with TTL expiry, wildcard
// invalidation and a cache-aside helper.
//
// Reads go memory first, then the persistent tier, promoting persistent
// hits back into memory. Writes land in memory synchronously and reach the
// backing store through a debounced write, so callers never block on slow
// storage. The persistent tier is strictly best-effort: quota failures are
// recovered by reclamation, corrupt data is discarded, and any other store
// failure degrades the cache to memory-only instead of failing a request.
//
// Usage:
//
//	store := stores.NewMemoryStore(0)
//	cache := tiercache.New(store, tiercache.Config{MaxEntries: 100})
//	defer cache.Close(ctx)
//
//	cache.Set(ctx, tiercache.BuildKey(tiercache.PrefixUserProfile, "42"), profile, 5*time.Minute)
//	value, ok := cache.Get(ctx, "up:42")
//
//	leaderboard, err := cache.GetOrCompute(ctx, "lb:weekly", loadLeaderboard, time.Minute)
//
// Every Cache is an isolated instance. Two instances sharing one backing
// store must be configured with distinct root keys or they will silently
// overwrite each other's persisted tables.
package tiercache

package tiercache

// Key prefixes are a closed set, one per logical cache namespace, so
// wildcard invalidation of one namespace can never touch another.
const (
	// PrefixUserAnalytics namespaces per-user analytics aggregates.
	PrefixUserAnalytics = "ua:"
	// PrefixLeaderboard namespaces leaderboard query results.
	PrefixLeaderboard = "lb:"
	// PrefixUserProfile namespaces user profile lookups.
	PrefixUserProfile = "up:"
)

// BuildKey joins a namespace prefix and an identifier into a cache key.
func BuildKey(prefix, id string) string {
	return prefix + id
}

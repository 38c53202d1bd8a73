package contracts

import "chatsync/internal/core/domain"

// Store is the read-model cache shared by every consumer. The reconciler is
// its only writer for push events; the query layer writes fetch results.
type Store interface {
	// Get returns a copy of the entry.
	Get(key domain.QueryKey) (domain.CacheEntry, bool)
	// Set stores a fetch result.
	Set(key domain.QueryKey, entry domain.CacheEntry)
	// Patch runs updater on the live entry. updater reports whether it changed
	// anything; a missing key is a no-op and returns false.
	Patch(key domain.QueryKey, updater func(*domain.CacheEntry) bool) bool
	Remove(key domain.QueryKey)
	// Invalidate marks the entry Stale so the next read refetches it.
	Invalidate(key domain.QueryKey)
	InvalidateByPrefix(prefix domain.QueryKey) int
	RemoveByPrefix(prefix domain.QueryKey) int
	Keys(prefix domain.QueryKey) []domain.QueryKey
	// Batch runs fn with exclusive access; readers never observe a partial batch.
	// tx must not be retained after fn returns.
	Batch(fn func(tx Store))
}

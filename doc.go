// Package snapcache persists snapshots of server-synchronized collections so
// they can be shown instantly on the next start, before live sync has produced
// anything.
//
// Components:
//   - Store[T]: load/save/clear one collection's snapshot plus metadata under a
//     storage key. Entries are served only when owner, schema version and age
//     match; everything else reads as empty. An unreachable backend turns the
//     store into a no-op.
//   - Coordinator[T]: wraps a collection's sync function. Hydrates from the
//     snapshot unless live data commits first, then writes live state back
//     after a debounce window.
//   - Admin: statistics, eviction by owner, full eviction and version-keyed
//     invalidation across every storage key.
//   - backend.Opener: the local transactional store (sqlite, redis, bigcache,
//     optionally fronted by a ristretto read tier).
//
// Keys:
//
//	<collection>           - global collections
//	<collection>:<owner>   - owner-scoped collections (see StorageKey)
//
// Typical wiring:
//
//	db, _ := sqlite.New(sqlite.Config{Path: "cache.db"})
//	sync := snapcache.Wrap(liveSync, snapcache.CoordinatorOptions[Todo]{
//	    Options: snapcache.Options[Todo]{
//	        StorageKey: snapcache.StorageKey("todos", userID),
//	        Owner:      userID,
//	        Backend:    db,
//	    },
//	    Persist: true,
//	})
package snapcache

package snapcache

import (
	"context"
	"time"

	"github.com/unkn0wn-root/snapcache/backend"
	c "github.com/unkn0wn-root/snapcache/codec"
)

// NeverExpire disables the age check in Load.
const NeverExpire time.Duration = -1

// Store persists one collection's snapshot under one storage key.
// T is the caller's item type. Serialization is handled by a pluggable Codec[[]T].
type Store[T any] interface {
	// Load returns the snapshot when it exists, matches the configured owner and
	// schema version, and is younger than MaxAge. Anything else yields empty.
	Load(ctx context.Context) []T
	// Save replaces snapshot and metadata in one batch. Returns nil when the
	// backend is unavailable; *TxError when an available backend fails.
	Save(ctx context.Context, items []T) error
	// Clear removes snapshot and metadata. Absent entries are not an error.
	Clear(ctx context.Context) error
	// Describe returns stored metadata verbatim, without staleness checks.
	Describe(ctx context.Context) (Metadata, bool)
	// Available opens the backend if needed and reports whether it is usable.
	Available(ctx context.Context) bool
	Close(ctx context.Context) error
}

// Metadata is the bookkeeping record kept next to every snapshot.
type Metadata struct {
	StorageKey    string
	Timestamp     int64  // unix ms of the last successful write-back
	Owner         string // "" => not owner-scoped
	SchemaVersion int
	ItemCount     int
}

// Time returns Timestamp as a time.Time.
func (m Metadata) Time() time.Time { return time.UnixMilli(m.Timestamp) }

// Options tune a Store. Only StorageKey is required; others have sensible defaults.
type Options[T any] struct {
	// Required
	StorageKey string // e.g. StorageKey("todos", userID)

	MaxAge        time.Duration    // 0 => 24h; NeverExpire => no age check
	Owner         string           // "" => none
	SchemaVersion int              // 0 => 1
	Backend       backend.Opener   // nil => store is permanently unavailable
	Codec         c.Codec[[]T]     // nil => codec.JSON[[]T]
	OpenTimeout   time.Duration    // 0 => 3s
	Logger        Logger           // if nil, NopLogger is used
	Hooks         Hooks            // if nil, NopHooks is used
	Now           func() time.Time // nil => time.Now
}

func New[T any](opts Options[T]) (Store[T], error) {
	return newStore[T](opts)
}

// StorageKey builds the conventional key "<collection>" or "<collection>:<owner>".
func StorageKey(collection, owner string) string {
	if owner == "" {
		return collection
	}
	return collection + ":" + owner
}

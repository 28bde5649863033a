package snapcache

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// Wrap slow sinks with hooks/async.
type Hooks interface {
	// The backend could not be opened (error or timeout). Called once per
	// Store/Admin instance; the instance stays unavailable afterwards.
	StoreUnavailable(storageKey string, err error)

	// A stored entry exists but was not served.
	// reason ∈ {"missing_data", "schema_mismatch", "owner_mismatch", "expired"}
	EntryRejected(storageKey, reason string)

	// A stored entry could not be decoded and was deleted on read.
	// reason ∈ {"meta_decode", "key_mismatch", "frame_decode", "value_decode", "count_mismatch"}
	EntryCorrupt(storageKey, reason string)

	// The hydration race settled for a collection. state is StateHydrated or
	// StateLiveFirst; items is the number of cached rows committed (0 for LiveFirst).
	HydrationResolved(storageKey string, state State, items int)

	// A debounced write-back failed and was dropped.
	WriteBackFailed(storageKey string, err error)

	// Entries were evicted by administration.
	// reason ∈ {"owner", "all", "version_change"}
	Evicted(count int, reason string)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) StoreUnavailable(string, error)       {}
func (NopHooks) EntryRejected(string, string)         {}
func (NopHooks) EntryCorrupt(string, string)          {}
func (NopHooks) HydrationResolved(string, State, int) {}
func (NopHooks) WriteBackFailed(string, error)        {}
func (NopHooks) Evicted(int, string)                  {}

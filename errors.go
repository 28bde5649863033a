package snapcache

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrUnavailable marks a backend that could not be opened. Store and Admin
	// absorb it; it only surfaces through Hooks.StoreUnavailable and logs.
	ErrUnavailable = errors.New("snapcache: store unavailable")

	// ErrTransaction is matched by every *TxError.
	ErrTransaction = errors.New("snapcache: transaction failed")

	// ErrNoVersionStore is returned by InvalidateOnVersionChange when Admin
	// was built without a version store.
	ErrNoVersionStore = errors.New("snapcache: no version store configured")
)

// TxError reports a failed operation against an available backend.
type TxError struct {
	Op  string // "save", "clear", "evict_owner", "evict_all"
	Key string // storage key; empty for store-wide operations
	Err error
}

func (e *TxError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("snapcache: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("snapcache: %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *TxError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTransaction}
	}
	return []error{ErrTransaction, e.Err}
}

// EvictError aggregates per-key failures of EvictByOwner. Keys not listed in
// Failed were evicted.
type EvictError struct {
	Owner  string
	Failed map[string]error
}

func (e *EvictError) Error() string {
	keys := make([]string, 0, len(e.Failed))
	for k := range e.Failed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	fmt.Fprintf(&b, "snapcache: evict owner %q: %d key(s) failed:", e.Owner, len(keys))
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v;", k, e.Failed[k])
	}
	return strings.TrimSuffix(b.String(), ";")
}

func (e *EvictError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed)+1)
	errs = append(errs, ErrTransaction)
	for _, err := range e.Failed {
		errs = append(errs, err)
	}
	return errs
}

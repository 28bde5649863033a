package snapcache

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/unkn0wn-root/snapcache/backend"
	"github.com/unkn0wn-root/snapcache/internal/wire"
	"github.com/unkn0wn-root/snapcache/kv"
)

// VersionKey is where InvalidateOnVersionChange records the last seen app version.
const VersionKey = "snapcache:app-version"

// AdminOptions configure an Admin. Backend should point at the same store the
// collections use.
type AdminOptions struct {
	Backend     backend.Opener   // nil => every operation is a no-op
	Versions    kv.Store         // required only by InvalidateOnVersionChange
	Logger      Logger           // if nil, NopLogger is used
	Hooks       Hooks            // if nil, NopHooks is used
	OpenTimeout time.Duration    // 0 => 3s
	Now         func() time.Time // nil => time.Now
}

// Admin inspects and evicts entries across all storage keys. It holds no
// per-collection state and can run while coordinators are live.
type Admin struct {
	conn     *lazyConn
	versions kv.Store
	log      Logger
	hooks    Hooks
	now      func() time.Time
}

// EntryStats describes one cached collection.
type EntryStats struct {
	StorageKey    string
	Owner         string
	SchemaVersion int
	ItemCount     int
	Bytes         int // stored snapshot size
	Timestamp     int64
	Age           time.Duration
}

// Stats aggregates every cached collection. Times are unix ms; 0 when empty.
type Stats struct {
	CollectionCount int
	TotalBytes      int64
	OldestEntry     int64
	NewestEntry     int64
	Collections     []EntryStats // newest first
}

func NewAdmin(opts AdminOptions) *Admin {
	a := &Admin{
		versions: opts.Versions,
		now:      opts.Now,
	}
	a.log = coalesce[Logger](opts.Logger, NopLogger{})
	a.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	if a.now == nil {
		a.now = time.Now
	}
	a.conn = newLazyConn(opts.Backend, opts.OpenTimeout, "*", a.log, a.hooks)
	return a
}

func (a *Admin) Close(ctx context.Context) error { return a.conn.close(ctx) }

// entries decodes every metadata row, skipping undecodable ones.
func (a *Admin) entries(ctx context.Context, conn backend.Conn) ([]wire.Meta, error) {
	rows, err := conn.GetAll(ctx, backend.TableMetadata)
	if err != nil {
		return nil, err
	}
	out := make([]wire.Meta, 0, len(rows))
	for _, r := range rows {
		m, err := wire.DecodeMeta(r.Value)
		if err != nil || m.StorageKey != r.Key {
			a.log.Warn("skipping undecodable metadata", Fields{"key": r.Key, "err": err})
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// Statistics never fails; an unreachable store yields zero Stats.
func (a *Admin) Statistics(ctx context.Context) Stats {
	conn, err := a.conn.get(ctx)
	if err != nil {
		return Stats{}
	}
	metas, err := a.entries(ctx, conn)
	if err != nil {
		a.log.Warn("statistics: read metadata failed", Fields{"err": err})
		return Stats{}
	}
	data, err := conn.GetAll(ctx, backend.TableData)
	if err != nil {
		a.log.Warn("statistics: read snapshots failed", Fields{"err": err})
		return Stats{}
	}
	sizes := make(map[string]int, len(data))
	for _, r := range data {
		sizes[r.Key] = len(r.Value)
	}

	now := a.now().UnixMilli()
	st := Stats{Collections: make([]EntryStats, 0, len(metas))}
	for _, m := range metas {
		e := EntryStats{
			StorageKey:    m.StorageKey,
			Owner:         m.Owner,
			SchemaVersion: m.SchemaVersion,
			ItemCount:     m.ItemCount,
			Bytes:         sizes[m.StorageKey],
			Timestamp:     m.Timestamp,
			Age:           time.Duration(now-m.Timestamp) * time.Millisecond,
		}
		st.Collections = append(st.Collections, e)
		st.TotalBytes += int64(e.Bytes)
		if st.OldestEntry == 0 || e.Timestamp < st.OldestEntry {
			st.OldestEntry = e.Timestamp
		}
		if e.Timestamp > st.NewestEntry {
			st.NewestEntry = e.Timestamp
		}
	}
	st.CollectionCount = len(st.Collections)
	sort.SliceStable(st.Collections, func(i, j int) bool {
		ci, cj := st.Collections[i], st.Collections[j]
		if ci.Timestamp != cj.Timestamp {
			return ci.Timestamp > cj.Timestamp
		}
		return ci.StorageKey < cj.StorageKey
	})
	return st
}

// EvictByOwner removes every entry whose metadata names owner. An empty owner
// matches nothing, so global collections are never evicted by accident.
func (a *Admin) EvictByOwner(ctx context.Context, owner string) error {
	if owner == "" {
		return nil
	}
	conn, err := a.conn.get(ctx)
	if err != nil {
		return nil
	}
	metas, err := a.entries(ctx, conn)
	if err != nil {
		return &TxError{Op: "evict_owner", Err: err}
	}

	var failed map[string]error
	n := 0
	for _, m := range metas {
		if m.Owner != owner {
			continue
		}
		if err := conn.Apply(ctx,
			backend.Del(backend.TableData, m.StorageKey),
			backend.Del(backend.TableMetadata, m.StorageKey),
		); err != nil {
			if failed == nil {
				failed = make(map[string]error)
			}
			failed[m.StorageKey] = err
			continue
		}
		n++
	}
	if n > 0 {
		a.log.Info("evicted entries by owner", Fields{"count": n})
		a.hooks.Evicted(n, "owner")
	}
	if failed != nil {
		return &EvictError{Owner: owner, Failed: failed}
	}
	return nil
}

// EvictAll resets the whole store.
func (a *Admin) EvictAll(ctx context.Context) error {
	return a.evictAll(ctx, "all")
}

func (a *Admin) evictAll(ctx context.Context, reason string) error {
	conn, err := a.conn.get(ctx)
	if err != nil {
		return nil
	}
	n := 0
	if rows, err := conn.GetAll(ctx, backend.TableMetadata); err == nil {
		n = len(rows)
	}
	if err := conn.Drop(ctx); err != nil {
		return &TxError{Op: "evict_all", Err: err}
	}
	a.log.Info("evicted all entries", Fields{"count": n, "reason": reason})
	a.hooks.Evicted(n, reason)
	return nil
}

// InvalidateOnVersionChange evicts everything when the recorded app version
// differs from current, then records current. The first call only records.
// If the store is unavailable or eviction fails, the old version stays
// recorded so the next start retries.
func (a *Admin) InvalidateOnVersionChange(ctx context.Context, current string) (bool, error) {
	if a.versions == nil {
		return false, ErrNoVersionStore
	}
	if _, err := a.conn.get(ctx); err != nil {
		// Nothing could be evicted; leave the recorded version for a later start.
		return false, nil
	}
	prev, ok, err := a.versions.Get(ctx, VersionKey)
	if err != nil {
		return false, fmt.Errorf("snapcache: read app version: %w", err)
	}
	invalidated := false
	if ok && prev != current {
		if err := a.evictAll(ctx, "version_change"); err != nil {
			return false, err
		}
		a.log.Info("cache invalidated by version change", Fields{"from": prev, "to": current})
		invalidated = true
	}
	if err := a.versions.Set(ctx, VersionKey, current); err != nil {
		return invalidated, fmt.Errorf("snapcache: record app version: %w", err)
	}
	return invalidated, nil
}

// Package asynchook moves hook delivery off the caller's goroutine.
//
// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{RejectedEvery: 10})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	store, _ := snapcache.New[Todo](snapcache.Options[Todo]{
//	    StorageKey: snapcache.StorageKey("todos", userID),
//	    Owner:      userID,
//	    Backend:    db,
//	    Hooks:      hooks, // or `raw` if you don't want async
//	})
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/snapcache"
)

// Hooks queues events for inner and drops them when the queue is full.
type Hooks struct {
	inner   snapcache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex // excludes sends during Close
	closed  bool
	dropped atomic.Uint64
}

var _ snapcache.Hooks = (*Hooks)(nil)

func New(inner snapcache.Hooks, workers, qlen int) *Hooks {
	if inner == nil {
		inner = snapcache.NopHooks{}
	}
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Events sent afterwards
// are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped reports how many events were discarded because the queue was full
// or the hooks were closed.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default: // drop
		h.dropped.Add(1)
	}
}

func (h *Hooks) StoreUnavailable(k string, err error) {
	h.try(func() { h.inner.StoreUnavailable(k, err) })
}
func (h *Hooks) EntryRejected(k, r string) { h.try(func() { h.inner.EntryRejected(k, r) }) }
func (h *Hooks) EntryCorrupt(k, r string)  { h.try(func() { h.inner.EntryCorrupt(k, r) }) }
func (h *Hooks) HydrationResolved(k string, st snapcache.State, n int) {
	h.try(func() { h.inner.HydrationResolved(k, st, n) })
}
func (h *Hooks) WriteBackFailed(k string, err error) {
	h.try(func() { h.inner.WriteBackFailed(k, err) })
}
func (h *Hooks) Evicted(n int, r string) { h.try(func() { h.inner.Evicted(n, r) }) }

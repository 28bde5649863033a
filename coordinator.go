package snapcache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// OpType is the kind of a collection write.
type OpType string

const (
	OpInsert OpType = "insert"
	OpUpdate OpType = "update"
	OpDelete OpType = "delete"
)

// MetaFromCache is set to true in WriteOp.Metadata for rows written by the
// coordinator (hydrated rows and their replacement deletes).
const MetaFromCache = "snapcache.fromCache"

// WriteOp is one mutation inside a Begin..Commit batch.
type WriteOp[T any] struct {
	Type     OpType
	Value    T
	Metadata map[string]any
}

// SyncParams are the lifecycle primitives a reactive collection hands to its
// sync function.
type SyncParams[T any] interface {
	Begin()
	Write(op WriteOp[T])
	Commit()
	MarkReady()
	// Values is a live view of the collection's current contents. It is
	// called from the write-back timer goroutine.
	Values() []T
}

// Rollbacker is implemented by SyncParams that can discard an open batch.
// The coordinator calls it when a hydration batch loses the race after Begin.
type Rollbacker interface {
	Rollback()
}

// SyncFunc starts synchronization for one collection instance and returns its cleanup.
type SyncFunc[T any] func(params SyncParams[T]) (cleanup func())

// State is the hydration state of one collection instance.
type State int32

const (
	StateCold State = iota
	StateRacing
	StateHydrated
	StateLiveFirst
	StateSteady
	StateTornDown
)

func (s State) String() string {
	switch s {
	case StateCold:
		return "cold"
	case StateRacing:
		return "racing"
	case StateHydrated:
		return "hydrated"
	case StateLiveFirst:
		return "live_first"
	case StateSteady:
		return "steady"
	case StateTornDown:
		return "torn_down"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// CoordinatorOptions configure a Coordinator. The embedded Options configure
// its Snapshot Store.
type CoordinatorOptions[T any] struct {
	Options[T]

	Persist        bool          // false => Sync is a pass-through
	Debounce       time.Duration // 0 => 100ms
	KeepCachedRows bool          // true => the first live batch does not delete hydrated rows
}

// Coordinator interleaves snapshot hydration with a live sync for one
// collection instance and writes live state back, debounced.
//
// The live source must bracket its writes in Begin..Commit. A live batch and
// the hydration batch never overlap: whichever takes the batch slot first
// goes first, and hydration gives up rather than wait.
type Coordinator[T any] struct {
	live       SyncFunc[T]
	persist    bool
	debounce   time.Duration
	keepCached bool
	key        string
	store      Store[T]
	log        Logger
	hooks      Hooks

	liveCommitted atomic.Bool
	batchMu       sync.Mutex // held for the duration of one batch, live or hydration

	mu       sync.Mutex // guards everything below
	state    State
	closed   bool
	timer    *time.Timer
	timerGen uint64
	hydrated []T // rows to delete in the first live batch

	ctx         context.Context
	cancel      context.CancelFunc
	hydrateDone chan struct{}
	inflight    sync.WaitGroup
	saveMu      sync.Mutex // serializes write-backs
}

// NewCoordinator returns a single-use coordinator; Sync may be called once.
func NewCoordinator[T any](sync SyncFunc[T], opts CoordinatorOptions[T]) (*Coordinator[T], error) {
	if sync == nil {
		return nil, fmt.Errorf("snapcache: sync func is required")
	}
	c := &Coordinator[T]{
		live:       sync,
		persist:    opts.Persist,
		keepCached: opts.KeepCachedRows,
		key:        opts.StorageKey,
	}
	c.debounce = coalesce[time.Duration](opts.Debounce, defaultDebounce)
	c.log = withKey(coalesce[Logger](opts.Logger, NopLogger{}), c.key)
	c.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	if !c.persist {
		return c, nil
	}
	st, err := newStore[T](opts.Options)
	if err != nil {
		return nil, err
	}
	c.store = st
	return c, nil
}

// Wrap returns a SyncFunc that runs a fresh Coordinator per collection
// instance. With Persist unset the original sync is returned as is.
func Wrap[T any](sync SyncFunc[T], opts CoordinatorOptions[T]) SyncFunc[T] {
	if !opts.Persist {
		return sync
	}
	return func(params SyncParams[T]) func() {
		c, err := NewCoordinator(sync, opts)
		if err != nil {
			coalesce[Logger](opts.Logger, NopLogger{}).Error("snapcache coordinator disabled",
				Fields{"key": opts.StorageKey, "err": err})
			return sync(params)
		}
		return c.Sync(params)
	}
}

func (c *Coordinator[T]) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Sync starts the live sync with wrapped params and, concurrently, the
// hydration load. The returned cleanup tears both down.
func (c *Coordinator[T]) Sync(params SyncParams[T]) func() {
	if !c.persist {
		return c.live(params)
	}
	c.mu.Lock()
	if c.state != StateCold {
		c.mu.Unlock()
		c.log.Warn("coordinator reused; running live sync without persistence", nil)
		return c.live(params)
	}
	c.state = StateRacing
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.hydrateDone = make(chan struct{})
	c.mu.Unlock()

	go c.hydrate(params)
	cleanup := c.live(&liveParams[T]{SyncParams: params, c: c})
	var once sync.Once
	return func() { once.Do(func() { c.teardown(cleanup) }) }
}

func (c *Coordinator[T]) hydrate(params SyncParams[T]) {
	defer close(c.hydrateDone)

	items := c.store.Load(c.ctx)
	if len(items) == 0 {
		c.resolve(StateLiveFirst, 0, "cache_miss")
		return
	}
	if c.liveCommitted.Load() {
		c.resolve(StateLiveFirst, 0, "live_committed")
		return
	}
	if !c.batchMu.TryLock() {
		c.resolve(StateLiveFirst, 0, "live_batch_open")
		return
	}
	if c.liveCommitted.Load() || c.ctx.Err() != nil {
		c.batchMu.Unlock()
		c.resolve(StateLiveFirst, 0, "live_committed")
		return
	}

	params.Begin()
	for _, it := range items {
		params.Write(WriteOp[T]{Type: OpInsert, Value: it, Metadata: fromCacheMeta()})
	}
	// last chance for live data to win
	if c.liveCommitted.Load() || c.ctx.Err() != nil {
		if rb, ok := params.(Rollbacker); ok {
			rb.Rollback()
		}
		c.batchMu.Unlock()
		c.resolve(StateLiveFirst, 0, "live_committed")
		return
	}
	params.Commit()
	if !c.keepCached {
		c.mu.Lock()
		c.hydrated = items
		c.mu.Unlock()
	}
	c.batchMu.Unlock()
	params.MarkReady()
	c.resolve(StateHydrated, len(items), "")
}

func (c *Coordinator[T]) resolve(st State, n int, why string) {
	c.mu.Lock()
	if c.state == StateRacing {
		c.state = st
	}
	c.mu.Unlock()
	if st == StateHydrated {
		c.log.Debug("collection hydrated from snapshot", Fields{"items": n})
	} else {
		c.log.Debug("hydration skipped", Fields{"reason": why})
	}
	c.hooks.HydrationResolved(c.key, st, n)
}

func fromCacheMeta() map[string]any { return map[string]any{MetaFromCache: true} }

// takeHydrated returns the hydrated rows once; later calls get nil.
func (c *Coordinator[T]) takeHydrated() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	rows := c.hydrated
	c.hydrated = nil
	return rows
}

func (c *Coordinator[T]) onLiveCommit(values func() []T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	// a live commit before hydration settles means live won
	if c.state == StateRacing {
		c.state = StateLiveFirst
	}
	if c.state == StateHydrated || c.state == StateLiveFirst {
		c.state = StateSteady
	}

	if c.timer != nil {
		c.timer.Stop()
	}
	c.timerGen++
	gen := c.timerGen
	c.timer = time.AfterFunc(c.debounce, func() { c.writeBack(gen, values) })
}

func (c *Coordinator[T]) writeBack(gen uint64, values func() []T) {
	c.mu.Lock()
	// Stop can lose against a timer that already fired; gen catches that.
	if c.closed || gen != c.timerGen {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.inflight.Add(1)
	c.mu.Unlock()
	defer c.inflight.Done()

	c.saveMu.Lock()
	defer c.saveMu.Unlock()
	items := values()
	if err := c.store.Save(context.Background(), items); err != nil {
		c.log.Warn("write-back failed", Fields{"err": err})
		c.hooks.WriteBackFailed(c.key, err)
		return
	}
	c.log.Debug("write-back done", Fields{"items": len(items)})
}

func (c *Coordinator[T]) teardown(liveCleanup func()) {
	defer func() {
		if liveCleanup != nil {
			liveCleanup()
		}
	}()

	c.mu.Lock()
	c.closed = true
	c.state = StateTornDown
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.hydrated = nil
	c.mu.Unlock()

	c.cancel()
	<-c.hydrateDone
	c.inflight.Wait()
	if err := c.store.Close(context.Background()); err != nil {
		c.log.Warn("snapshot store close failed", Fields{"err": err})
	}
}

// liveParams intercepts the live sync's batch boundaries.
type liveParams[T any] struct {
	SyncParams[T]
	c       *Coordinator[T]
	inBatch atomic.Bool
}

func (p *liveParams[T]) Begin() {
	if p.inBatch.Swap(true) {
		p.SyncParams.Begin() // nested Begin; the slot is already ours
		return
	}
	p.c.batchMu.Lock()
	p.SyncParams.Begin()
	if p.c.keepCached {
		return
	}
	for _, row := range p.c.takeHydrated() {
		p.SyncParams.Write(WriteOp[T]{Type: OpDelete, Value: row, Metadata: fromCacheMeta()})
	}
}

// Commit is forwarded immediately; only the write-back is debounced.
func (p *liveParams[T]) Commit() {
	// set before the batch slot is released so hydration can never commit after us
	p.c.liveCommitted.Store(true)
	p.SyncParams.Commit()
	if p.inBatch.Swap(false) {
		p.c.batchMu.Unlock()
	}
	p.c.onLiveCommit(p.SyncParams.Values)
}

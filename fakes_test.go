package snapcache

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/unkn0wn-root/snapcache/backend"
)

// memBackend is an in-memory backend.Opener and backend.Conn in one.
type memBackend struct {
	mu        sync.Mutex
	tables    map[backend.Table]map[string][]byte
	saves     int // Apply calls that put a snapshot
	closes    int
	opens     int
	openErr   error
	openGate  chan struct{} // when set, Open blocks until closed
	applyErr  error
	failKeys  map[string]error // Apply fails when it touches one of these keys
	getAllErr error
	beforeGet func(t backend.Table, key string) // runs outside the lock
}

var (
	_ backend.Opener = (*memBackend)(nil)
	_ backend.Conn   = (*memBackend)(nil)
)

func newMemBackend() *memBackend {
	return &memBackend{tables: map[backend.Table]map[string][]byte{
		backend.TableData:     {},
		backend.TableMetadata: {},
	}}
}

func (b *memBackend) Open(ctx context.Context) (backend.Conn, error) {
	if b.openGate != nil {
		<-b.openGate
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.opens++
	if b.openErr != nil {
		return nil, b.openErr
	}
	return b, nil
}

func (b *memBackend) Get(_ context.Context, t backend.Table, key string) ([]byte, bool, error) {
	b.mu.Lock()
	hook := b.beforeGet
	b.mu.Unlock()
	if hook != nil {
		hook(t, key)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	tbl, ok := b.tables[t]
	if !ok {
		return nil, false, backend.ErrUnknownTable
	}
	v, ok := tbl[key]
	return v, ok, nil
}

func (b *memBackend) GetAll(_ context.Context, t backend.Table) ([]backend.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.getAllErr != nil {
		return nil, b.getAllErr
	}
	out := make([]backend.Record, 0, len(b.tables[t]))
	for k, v := range b.tables[t] {
		out = append(out, backend.Record{Key: k, Value: v})
	}
	return out, nil
}

func (b *memBackend) Apply(_ context.Context, muts ...backend.Mutation) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.applyErr != nil {
		return b.applyErr
	}
	for _, m := range muts {
		if err := b.failKeys[m.Key]; err != nil {
			return err
		}
	}
	for _, m := range muts {
		if m.Delete {
			delete(b.tables[m.Table], m.Key)
			continue
		}
		b.tables[m.Table][m.Key] = append([]byte(nil), m.Value...)
		if m.Table == backend.TableData {
			b.saves++
		}
	}
	return nil
}

func (b *memBackend) Drop(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.applyErr != nil {
		return b.applyErr
	}
	for t := range b.tables {
		b.tables[t] = map[string][]byte{}
	}
	return nil
}

func (b *memBackend) Close(context.Context) error {
	b.mu.Lock()
	b.closes++
	b.mu.Unlock()
	return nil
}

func (b *memBackend) put(t backend.Table, key string, v []byte) {
	b.mu.Lock()
	b.tables[t][key] = v
	b.mu.Unlock()
}

func (b *memBackend) has(t backend.Table, key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.tables[t][key]
	return ok
}

func (b *memBackend) saveCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.saves
}

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock { return &clock{now: time.UnixMilli(1_700_000_000_000)} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// recHooks records hook calls.
type recHooks struct {
	NopHooks
	mu          sync.Mutex
	unavailable []string
	rejected    []string
	corrupt     []string
	writeFailed int
	evicted     []string
	resolved    chan State
}

func newRecHooks() *recHooks { return &recHooks{resolved: make(chan State, 4)} }

func (h *recHooks) StoreUnavailable(key string, _ error) {
	h.mu.Lock()
	h.unavailable = append(h.unavailable, key)
	h.mu.Unlock()
}

func (h *recHooks) EntryRejected(_ string, reason string) {
	h.mu.Lock()
	h.rejected = append(h.rejected, reason)
	h.mu.Unlock()
}

func (h *recHooks) EntryCorrupt(_ string, reason string) {
	h.mu.Lock()
	h.corrupt = append(h.corrupt, reason)
	h.mu.Unlock()
}

func (h *recHooks) HydrationResolved(_ string, st State, _ int) { h.resolved <- st }

func (h *recHooks) WriteBackFailed(string, error) {
	h.mu.Lock()
	h.writeFailed++
	h.mu.Unlock()
}

func (h *recHooks) Evicted(_ int, reason string) {
	h.mu.Lock()
	h.evicted = append(h.evicted, reason)
	h.mu.Unlock()
}

func (h *recHooks) snapshot() (unavailable, rejected, corrupt []string, writeFailed int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.unavailable...),
		append([]string(nil), h.rejected...),
		append([]string(nil), h.corrupt...),
		h.writeFailed
}

type todo struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// collection is a minimal reactive collection: batched writes, keyed by ID.
type collection struct {
	mu         sync.Mutex
	rows       map[string]todo
	pending    []WriteOp[todo]
	ready      bool
	rolledBack bool
	history    [][]todo // contents after every commit
	onWrite    func(WriteOp[todo])
}

var (
	_ SyncParams[todo] = (*collection)(nil)
	_ Rollbacker       = (*collection)(nil)
)

func newCollection() *collection { return &collection{rows: map[string]todo{}} }

func (c *collection) Begin() {
	c.mu.Lock()
	c.pending = nil
	c.mu.Unlock()
}

func (c *collection) Write(op WriteOp[todo]) {
	c.mu.Lock()
	c.pending = append(c.pending, op)
	hook := c.onWrite
	c.mu.Unlock()
	if hook != nil {
		hook(op)
	}
}

func (c *collection) Commit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, op := range c.pending {
		switch op.Type {
		case OpDelete:
			delete(c.rows, op.Value.ID)
		default:
			c.rows[op.Value.ID] = op.Value
		}
	}
	c.pending = nil
	c.history = append(c.history, c.valuesLocked())
}

func (c *collection) Rollback() {
	c.mu.Lock()
	c.pending = nil
	c.rolledBack = true
	c.mu.Unlock()
}

func (c *collection) MarkReady() {
	c.mu.Lock()
	c.ready = true
	c.mu.Unlock()
}

func (c *collection) Values() []todo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.valuesLocked()
}

func (c *collection) valuesLocked() []todo {
	out := make([]todo, 0, len(c.rows))
	for _, v := range c.rows {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (c *collection) commits() [][]todo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]todo(nil), c.history...)
}

func todos(prefix string, n int) []todo {
	out := make([]todo, n)
	for i := range out {
		id := prefix + string(rune('a'+i))
		out[i] = todo{ID: id, Title: "title " + id}
	}
	return out
}

func sameTodos(a, b []todo) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// eventually polls cond until it holds or d elapses.
func eventually(d time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}

var errBoom = errors.New("boom")

// Package bigcache is an in-process snapshot backend on allegro/bigcache.
//
// Data lives only as long as the process. Useful for tests, short-lived CLIs,
// and as a fallback where no durable store exists.
package bigcache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	bc "github.com/allegro/bigcache/v3"

	"github.com/unkn0wn-root/snapcache/backend"
)

const sep = "\x00"

type Config struct {
	LifeWindow         time.Duration // 0 => 7 days; entries older than this are evicted by bigcache
	CleanWindow        time.Duration
	MaxEntriesInWindow int
	MaxEntrySize       int
	HardMaxCacheSizeMB int // ~ memory limit; 0 = unlimited
}

// Backend owns one bigcache instance. Every Open returns a view over it, so
// all stores and the admin opened from one Backend see the same rows.
type Backend struct {
	c  *bc.BigCache
	mu sync.RWMutex // Apply/Drop write-lock; reads never see half a batch
}

var _ backend.Opener = (*Backend)(nil)

func New(ctx context.Context, cfg Config) (*Backend, error) {
	life := cfg.LifeWindow
	if life <= 0 {
		life = 7 * 24 * time.Hour
	}
	conf := bc.DefaultConfig(life)
	conf.Verbose = false
	if cfg.CleanWindow > 0 {
		conf.CleanWindow = cfg.CleanWindow
	}
	if cfg.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	c, err := bc.New(ctx, conf)
	if err != nil {
		return nil, fmt.Errorf("bigcache: %w", err)
	}
	return &Backend{c: c}, nil
}

func (b *Backend) Open(context.Context) (backend.Conn, error) {
	return view{b}, nil
}

// Close releases the bigcache instance. Views become unusable.
func (b *Backend) Close(context.Context) error {
	return b.c.Close()
}

func rowKey(t backend.Table, key string) (string, error) {
	if !backend.ValidTable(t) {
		return "", fmt.Errorf("%w: %q", backend.ErrUnknownTable, t)
	}
	return string(t) + sep + key, nil
}

func (b *Backend) get(k string) ([]byte, bool, error) {
	v, err := b.c.Get(k)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (b *Backend) del(k string) error {
	if err := b.c.Delete(k); err != nil && !errors.Is(err, bc.ErrEntryNotFound) {
		return err
	}
	return nil
}

type prior struct {
	key    string
	value  []byte
	exists bool
}

func (b *Backend) apply(muts []backend.Mutation) error {
	keys := make([]string, len(muts))
	for i, m := range muts {
		k, err := rowKey(m.Table, m.Key)
		if err != nil {
			return err
		}
		keys[i] = k
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	undo := make([]prior, 0, len(muts))
	for i, m := range muts {
		old, ok, err := b.get(keys[i])
		if err != nil {
			b.rollback(undo)
			return err
		}
		undo = append(undo, prior{key: keys[i], value: old, exists: ok})
		if m.Delete {
			err = b.del(keys[i])
		} else {
			err = b.c.Set(keys[i], m.Value)
		}
		if err != nil {
			b.rollback(undo)
			return fmt.Errorf("apply %s %q: %w", m.Table, m.Key, err)
		}
	}
	return nil
}

// rollback restores prior values in reverse order. Best effort.
func (b *Backend) rollback(undo []prior) {
	for i := len(undo) - 1; i >= 0; i-- {
		p := undo[i]
		if p.exists {
			_ = b.c.Set(p.key, p.value)
		} else {
			_ = b.del(p.key)
		}
	}
}

type view struct{ b *Backend }

func (v view) Get(_ context.Context, t backend.Table, key string) ([]byte, bool, error) {
	k, err := rowKey(t, key)
	if err != nil {
		return nil, false, err
	}
	v.b.mu.RLock()
	defer v.b.mu.RUnlock()
	return v.b.get(k)
}

func (v view) GetAll(_ context.Context, t backend.Table) ([]backend.Record, error) {
	if !backend.ValidTable(t) {
		return nil, fmt.Errorf("%w: %q", backend.ErrUnknownTable, t)
	}
	prefix := string(t) + sep
	var out []backend.Record
	v.b.mu.RLock()
	defer v.b.mu.RUnlock()
	it := v.b.c.Iterator()
	for it.SetNext() {
		e, err := it.Value()
		if err != nil {
			return nil, fmt.Errorf("iterate %s: %w", t, err)
		}
		if !strings.HasPrefix(e.Key(), prefix) {
			continue
		}
		out = append(out, backend.Record{Key: strings.TrimPrefix(e.Key(), prefix), Value: e.Value()})
	}
	return out, nil
}

func (v view) Apply(_ context.Context, muts ...backend.Mutation) error {
	return v.b.apply(muts)
}

func (v view) Drop(context.Context) error {
	v.b.mu.Lock()
	defer v.b.mu.Unlock()
	return v.b.c.Reset()
}

// Close is a no-op: the Backend owns the cache.
func (view) Close(context.Context) error { return nil }

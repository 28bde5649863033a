// Package ristretto adds an in-memory read tier in front of another backend.
//
// Point reads (Get) are served from a dgraph-io/ristretto cache when possible.
// Every Apply and Drop invalidates the affected rows before touching the inner
// backend, so a read never observes a value older than the last write made
// through the same Opener.
package ristretto

import (
	"context"
	"errors"
	"sync/atomic"

	rc "github.com/dgraph-io/ristretto"

	"github.com/unkn0wn-root/snapcache/backend"
)

type Config struct {
	NumCounters int64
	MaxCost     int64 // bytes; cost of an entry is its length
	BufferItems int64
	Metrics     bool
}

// Opener wraps Inner. Connections opened through it share one read tier.
type Opener struct {
	inner backend.Opener
	c     *rc.Cache
	// bumped on every write; a Get only populates the tier when no write
	// happened between its inner read and its Set
	gen atomic.Uint64
}

var _ backend.Opener = (*Opener)(nil)

func Wrap(inner backend.Opener, cfg Config) (*Opener, error) {
	if inner == nil {
		return nil, errors.New("ristretto: inner opener is required")
	}
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 || cfg.BufferItems <= 0 {
		return nil, errors.New("ristretto: invalid config")
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	return &Opener{inner: inner, c: c}, nil
}

func (o *Opener) Open(ctx context.Context) (backend.Conn, error) {
	conn, err := o.inner.Open(ctx)
	if err != nil {
		return nil, err
	}
	return &Conn{o: o, inner: conn}, nil
}

// Close releases the read tier. Connections must be closed separately.
func (o *Opener) Close(context.Context) error {
	o.c.Wait()
	o.c.Close()
	return nil
}

// Metrics exposes ristretto counters when Config.Metrics is set.
func (o *Opener) Metrics() *rc.Metrics { return o.c.Metrics }

// Wait blocks until buffered tier writes are applied. Mostly for tests.
func (o *Opener) Wait() { o.c.Wait() }

func tierKey(t backend.Table, key string) string { return string(t) + "\x00" + key }

type Conn struct {
	o     *Opener
	inner backend.Conn
}

var _ backend.Conn = (*Conn)(nil)

func (c *Conn) Get(ctx context.Context, t backend.Table, key string) ([]byte, bool, error) {
	tk := tierKey(t, key)
	if v, ok := c.o.c.Get(tk); ok {
		if b, _ := v.([]byte); b != nil {
			return b, true, nil
		}
		c.o.c.Del(tk) // unexpected entry shape
	}
	gen := c.o.gen.Load()
	b, ok, err := c.inner.Get(ctx, t, key)
	if err != nil || !ok {
		return b, ok, err
	}
	if c.o.gen.Load() == gen {
		c.o.c.Set(tk, b, int64(len(b))+1)
	}
	return b, true, nil
}

func (c *Conn) GetAll(ctx context.Context, t backend.Table) ([]backend.Record, error) {
	return c.inner.GetAll(ctx, t)
}

func (c *Conn) Apply(ctx context.Context, muts ...backend.Mutation) error {
	c.o.gen.Add(1)
	for _, m := range muts {
		c.o.c.Del(tierKey(m.Table, m.Key))
	}
	err := c.inner.Apply(ctx, muts...)
	// a reader may have refilled a row between Del and the inner write
	c.o.gen.Add(1)
	for _, m := range muts {
		c.o.c.Del(tierKey(m.Table, m.Key))
	}
	return err
}

func (c *Conn) Drop(ctx context.Context) error {
	c.o.gen.Add(1)
	c.o.c.Clear()
	err := c.inner.Drop(ctx)
	c.o.gen.Add(1)
	c.o.c.Clear()
	return err
}

func (c *Conn) Close(ctx context.Context) error {
	return c.inner.Close(ctx)
}

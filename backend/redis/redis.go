// Package redis stores snapshot tables as Redis hashes.
//
// Each table is one hash: "<prefix>:data" and "<prefix>:metadata", with the
// storage key as the hash field. Batches run inside MULTI/EXEC.
package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/snapcache/backend"
)

var ErrNilClient = errors.New("redis backend: nil client")

type Config struct {
	Client      goredis.UniversalClient
	Prefix      string // "" => "snapcache"
	CloseClient bool   // set true only if this backend exclusively owns the client
}

// Opener hands out connections over one client.
type Opener struct {
	rdb         goredis.UniversalClient
	prefix      string
	closeClient bool
}

var _ backend.Opener = (*Opener)(nil)

func New(cfg Config) (*Opener, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	p := cfg.Prefix
	if p == "" {
		p = "snapcache"
	}
	return &Opener{rdb: cfg.Client, prefix: p, closeClient: cfg.CloseClient}, nil
}

// Open pings the server so an unreachable Redis surfaces as an open failure
// rather than on the first read.
func (o *Opener) Open(ctx context.Context) (backend.Conn, error) {
	if err := o.rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Conn{o: o}, nil
}

// Close releases the client only when this backend owns it.
// Safe to call multiple times; repeated calls become no-ops.
func (o *Opener) Close(context.Context) error {
	if o.closeClient {
		if err := o.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}

func (o *Opener) hash(t backend.Table) (string, error) {
	if !backend.ValidTable(t) {
		return "", fmt.Errorf("%w: %q", backend.ErrUnknownTable, t)
	}
	return o.prefix + ":" + string(t), nil
}

type Conn struct{ o *Opener }

var _ backend.Conn = (*Conn)(nil)

func (c *Conn) Get(ctx context.Context, t backend.Table, key string) ([]byte, bool, error) {
	h, err := c.o.hash(t)
	if err != nil {
		return nil, false, err
	}
	b, err := c.o.rdb.HGet(ctx, h, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil // miss
	}
	if err != nil {
		return nil, false, err // transport/server error
	}
	return b, true, nil
}

func (c *Conn) GetAll(ctx context.Context, t backend.Table) ([]backend.Record, error) {
	h, err := c.o.hash(t)
	if err != nil {
		return nil, err
	}
	m, err := c.o.rdb.HGetAll(ctx, h).Result()
	if err != nil {
		return nil, err
	}
	out := make([]backend.Record, 0, len(m))
	for k, v := range m {
		out = append(out, backend.Record{Key: k, Value: []byte(v)})
	}
	return out, nil
}

func (c *Conn) Apply(ctx context.Context, muts ...backend.Mutation) error {
	if len(muts) == 0 {
		return nil
	}
	hashes := make([]string, len(muts))
	for i, m := range muts {
		h, err := c.o.hash(m.Table)
		if err != nil {
			return err
		}
		hashes[i] = h
	}
	_, err := c.o.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		for i, m := range muts {
			if m.Delete {
				p.HDel(ctx, hashes[i], m.Key)
			} else {
				p.HSet(ctx, hashes[i], m.Key, m.Value)
			}
		}
		return nil
	})
	return err
}

func (c *Conn) Drop(ctx context.Context) error {
	keys := make([]string, 0, len(backend.Tables))
	for _, t := range backend.Tables {
		h, _ := c.o.hash(t)
		keys = append(keys, h)
	}
	return c.o.rdb.Del(ctx, keys...).Err()
}

// Close is a no-op; the Opener owns the client.
func (c *Conn) Close(context.Context) error { return nil }

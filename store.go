package snapcache

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/unkn0wn-root/snapcache/backend"
	c "github.com/unkn0wn-root/snapcache/codec"
	"github.com/unkn0wn-root/snapcache/internal/wire"
)

type store[T any] struct {
	key    string
	maxAge time.Duration
	owner  string
	schema int
	codec  c.Codec[[]T]
	conn   *lazyConn
	log    Logger
	hooks  Hooks
	now    func() time.Time
}

func newStore[T any](opts Options[T]) (*store[T], error) {
	if opts.StorageKey == "" {
		return nil, fmt.Errorf("snapcache: storage key is required")
	}
	if opts.SchemaVersion < 0 {
		return nil, fmt.Errorf("snapcache: schema version must be >= 0, got %d", opts.SchemaVersion)
	}

	s := &store[T]{
		key:   opts.StorageKey,
		owner: opts.Owner,
		codec: opts.Codec,
		now:   opts.Now,
	}

	// defaults
	s.log = withKey(coalesce[Logger](opts.Logger, NopLogger{}), s.key)
	s.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	s.maxAge = coalesce[time.Duration](opts.MaxAge, defaultMaxAge)
	s.schema = coalesce[int](opts.SchemaVersion, defaultSchemaVersion)
	if s.codec == nil {
		s.codec = c.JSON[[]T]{}
	}
	if s.now == nil {
		s.now = time.Now
	}

	s.conn = newLazyConn(opts.Backend, opts.OpenTimeout, s.key, s.log, s.hooks)
	return s, nil
}

func (s *store[T]) Available(ctx context.Context) bool {
	_, err := s.conn.get(ctx)
	return err == nil
}

func (s *store[T]) Close(ctx context.Context) error {
	return s.conn.close(ctx)
}

func (s *store[T]) Load(ctx context.Context) []T {
	conn, err := s.conn.get(ctx)
	if err != nil {
		return nil // logged once by lazyConn
	}
	items, err := s.load(ctx, conn)
	if err != nil {
		s.log.Warn("snapshot load failed", Fields{"err": err})
		return nil
	}
	return items
}

func (s *store[T]) load(ctx context.Context, conn backend.Conn) ([]T, error) {
	rawMeta, ok, err := conn.Get(ctx, backend.TableMetadata, s.key)
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	if !ok {
		return nil, nil
	}
	meta, err := wire.DecodeMeta(rawMeta)
	if err != nil {
		s.selfHeal(ctx, conn, "meta_decode")
		return nil, nil
	}
	if meta.StorageKey != s.key {
		s.selfHeal(ctx, conn, "key_mismatch")
		return nil, nil
	}
	if reason := s.reject(meta); reason != "" {
		s.log.Debug("snapshot rejected", Fields{"reason": reason})
		s.hooks.EntryRejected(s.key, reason)
		return nil, nil
	}

	rawData, ok, err := conn.Get(ctx, backend.TableData, s.key)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	if !ok {
		s.log.Debug("snapshot rejected", Fields{"reason": "missing_data"})
		s.hooks.EntryRejected(s.key, "missing_data")
		return nil, nil
	}
	count, payload, err := wire.DecodeSnapshot(rawData)
	if err != nil {
		s.selfHeal(ctx, conn, "frame_decode")
		return nil, nil
	}
	items, err := s.codec.Decode(payload)
	if err != nil {
		s.selfHeal(ctx, conn, "value_decode")
		return nil, nil
	}
	if len(items) != count {
		s.selfHeal(ctx, conn, "count_mismatch")
		return nil, nil
	}
	if count != meta.ItemCount {
		// A Save between the two reads pairs old metadata with new data.
		// Only an unchanged metadata record proves the pair is corrupt.
		again, ok, err := conn.Get(ctx, backend.TableMetadata, s.key)
		if err != nil {
			return nil, fmt.Errorf("re-read metadata: %w", err)
		}
		if !ok || !bytes.Equal(again, rawMeta) {
			s.log.Debug("snapshot changed during load", nil)
			return nil, nil
		}
		s.selfHeal(ctx, conn, "count_mismatch")
		return nil, nil
	}
	return items, nil
}

// reject returns why a well-formed entry must not be served, or "".
func (s *store[T]) reject(m wire.Meta) string {
	switch {
	case m.SchemaVersion != s.schema:
		return "schema_mismatch"
	case m.Owner != s.owner:
		return "owner_mismatch"
	case s.maxAge > 0 && s.now().UnixMilli()-m.Timestamp > s.maxAge.Milliseconds():
		return "expired"
	}
	return ""
}

// selfHeal deletes an undecodable entry (both tables). Best effort.
func (s *store[T]) selfHeal(ctx context.Context, conn backend.Conn, reason string) {
	err := conn.Apply(ctx,
		backend.Del(backend.TableData, s.key),
		backend.Del(backend.TableMetadata, s.key),
	)
	f := Fields{"reason": reason}
	if err != nil {
		f["err"] = err
	}
	s.log.Warn("corrupt snapshot removed", f)
	s.hooks.EntryCorrupt(s.key, reason)
}

func (s *store[T]) Save(ctx context.Context, items []T) error {
	conn, err := s.conn.get(ctx)
	if err != nil {
		return nil
	}
	payload, err := s.codec.Encode(items)
	if err != nil {
		return &TxError{Op: "save", Key: s.key, Err: fmt.Errorf("encode: %w", err)}
	}
	data, err := wire.EncodeSnapshot(len(items), payload)
	if err != nil {
		return &TxError{Op: "save", Key: s.key, Err: err}
	}
	meta, err := wire.EncodeMeta(wire.Meta{
		StorageKey:    s.key,
		Owner:         s.owner,
		Timestamp:     s.now().UnixMilli(),
		SchemaVersion: s.schema,
		ItemCount:     len(items),
	})
	if err != nil {
		return &TxError{Op: "save", Key: s.key, Err: err}
	}
	if err := conn.Apply(ctx,
		backend.Put(backend.TableData, s.key, data),
		backend.Put(backend.TableMetadata, s.key, meta),
	); err != nil {
		return &TxError{Op: "save", Key: s.key, Err: err}
	}
	s.log.Debug("snapshot saved", Fields{"items": len(items), "bytes": len(data)})
	return nil
}

func (s *store[T]) Clear(ctx context.Context) error {
	conn, err := s.conn.get(ctx)
	if err != nil {
		return nil
	}
	if err := conn.Apply(ctx,
		backend.Del(backend.TableData, s.key),
		backend.Del(backend.TableMetadata, s.key),
	); err != nil {
		return &TxError{Op: "clear", Key: s.key, Err: err}
	}
	return nil
}

func (s *store[T]) Describe(ctx context.Context) (Metadata, bool) {
	conn, err := s.conn.get(ctx)
	if err != nil {
		return Metadata{}, false
	}
	raw, ok, err := conn.Get(ctx, backend.TableMetadata, s.key)
	if err != nil {
		s.log.Warn("describe failed", Fields{"err": err})
		return Metadata{}, false
	}
	if !ok {
		return Metadata{}, false
	}
	m, err := wire.DecodeMeta(raw)
	if err != nil {
		s.log.Warn("describe: undecodable metadata", Fields{"err": err})
		return Metadata{}, false
	}
	return fromWire(m), true
}

func fromWire(m wire.Meta) Metadata {
	return Metadata{
		StorageKey:    m.StorageKey,
		Timestamp:     m.Timestamp,
		Owner:         m.Owner,
		SchemaVersion: m.SchemaVersion,
		ItemCount:     m.ItemCount,
	}
}

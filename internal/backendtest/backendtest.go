// Package backendtest is a conformance suite for backend.Conn implementations.
package backendtest

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/snapcache/backend"
)

// Factory returns a fresh, empty connection. The suite closes it.
type Factory func(t *testing.T) backend.Conn

// Run executes every conformance check against connections from newConn.
func Run(t *testing.T, newConn Factory) {
	t.Helper()
	cases := []struct {
		name string
		fn   func(t *testing.T, c backend.Conn)
	}{
		{"MissReturnsFalse", testMiss},
		{"PutGetOverwrite", testPutGetOverwrite},
		{"TablesAreIndependent", testTablesIndependent},
		{"ApplyBatchAcrossTables", testApplyBatch},
		{"DeleteAbsentIsNoop", testDeleteAbsent},
		{"GetAllEnumeratesTable", testGetAll},
		{"DropClearsEverything", testDrop},
		{"UnknownTableRejected", testUnknownTable},
		{"ConcurrentApply", testConcurrentApply},
		{"ReadersSeeWholeBatches", testReadersSeeWholeBatches},
		{"CloseIsIdempotent", testCloseTwice},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newConn(t)
			t.Cleanup(func() { _ = c.Close(context.Background()) })
			tc.fn(t, c)
		})
	}
}

func testMiss(t *testing.T, c backend.Conn) {
	v, ok, err := c.Get(context.Background(), backend.TableData, "nope")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, v)
}

func testPutGetOverwrite(t *testing.T, c backend.Conn) {
	ctx := context.Background()
	require.NoError(t, c.Apply(ctx, backend.Put(backend.TableData, "k", []byte("v1"))))
	require.NoError(t, c.Apply(ctx, backend.Put(backend.TableData, "k", []byte("v2"))))

	v, ok, err := c.Get(ctx, backend.TableData, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v2"), v)
}

func testTablesIndependent(t *testing.T, c backend.Conn) {
	ctx := context.Background()
	require.NoError(t, c.Apply(ctx, backend.Put(backend.TableData, "k", []byte("data"))))

	_, ok, err := c.Get(ctx, backend.TableMetadata, "k")
	require.NoError(t, err)
	assert.False(t, ok, "write to data table leaked into metadata table")
}

func testApplyBatch(t *testing.T, c backend.Conn) {
	ctx := context.Background()
	require.NoError(t, c.Apply(ctx,
		backend.Put(backend.TableData, "a", []byte("payload")),
		backend.Put(backend.TableMetadata, "a", []byte("meta")),
	))
	d, ok, err := c.Get(ctx, backend.TableData, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), d)

	m, ok, err := c.Get(ctx, backend.TableMetadata, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("meta"), m)

	require.NoError(t, c.Apply(ctx,
		backend.Del(backend.TableData, "a"),
		backend.Del(backend.TableMetadata, "a"),
	))
	for _, tbl := range backend.Tables {
		_, ok, err := c.Get(ctx, tbl, "a")
		require.NoError(t, err)
		assert.False(t, ok, "table %s still holds deleted key", tbl)
	}
}

func testDeleteAbsent(t *testing.T, c backend.Conn) {
	require.NoError(t, c.Apply(context.Background(),
		backend.Del(backend.TableData, "ghost"),
		backend.Del(backend.TableMetadata, "ghost"),
	))
}

func testGetAll(t *testing.T, c backend.Conn) {
	ctx := context.Background()
	require.NoError(t, c.Apply(ctx,
		backend.Put(backend.TableMetadata, "x", []byte("1")),
		backend.Put(backend.TableMetadata, "y", []byte("2")),
		backend.Put(backend.TableData, "z", []byte("3")),
	))
	recs, err := c.GetAll(ctx, backend.TableMetadata)
	require.NoError(t, err)
	sort.Slice(recs, func(i, j int) bool { return recs[i].Key < recs[j].Key })
	assert.Equal(t, []backend.Record{
		{Key: "x", Value: []byte("1")},
		{Key: "y", Value: []byte("2")},
	}, recs)
}

func testDrop(t *testing.T, c backend.Conn) {
	ctx := context.Background()
	require.NoError(t, c.Apply(ctx,
		backend.Put(backend.TableData, "a", []byte("1")),
		backend.Put(backend.TableMetadata, "a", []byte("2")),
	))
	require.NoError(t, c.Drop(ctx))
	for _, tbl := range backend.Tables {
		recs, err := c.GetAll(ctx, tbl)
		require.NoError(t, err)
		assert.Empty(t, recs, "table %s not empty after drop", tbl)
	}
	// still usable after drop
	require.NoError(t, c.Apply(ctx, backend.Put(backend.TableData, "b", []byte("3"))))
	_, ok, err := c.Get(ctx, backend.TableData, "b")
	require.NoError(t, err)
	assert.True(t, ok)
}

func testUnknownTable(t *testing.T, c backend.Conn) {
	ctx := context.Background()
	_, _, err := c.Get(ctx, backend.Table("bogus"), "k")
	assert.ErrorIs(t, err, backend.ErrUnknownTable)
	err = c.Apply(ctx, backend.Put(backend.Table("bogus"), "k", []byte("v")))
	assert.ErrorIs(t, err, backend.ErrUnknownTable)
}

func testConcurrentApply(t *testing.T, c backend.Conn) {
	ctx := context.Background()
	const n = 16
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			k := string(rune('a' + i))
			errs <- c.Apply(ctx,
				backend.Put(backend.TableData, k, []byte{byte(i)}),
				backend.Put(backend.TableMetadata, k, []byte{byte(i)}),
			)
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	recs, err := c.GetAll(ctx, backend.TableMetadata)
	require.NoError(t, err)
	assert.Len(t, recs, n)
}

// testReadersSeeWholeBatches: a batch writing "a" and "b" together is never
// observed half applied by GetAll.
func testReadersSeeWholeBatches(t *testing.T, c backend.Conn) {
	ctx := context.Background()
	put := func(gen byte) error {
		return c.Apply(ctx,
			backend.Put(backend.TableData, "a", []byte{gen}),
			backend.Put(backend.TableData, "b", []byte{gen}),
		)
	}
	require.NoError(t, put(0))

	done := make(chan struct{})
	writeErr := make(chan error, 1)
	go func() {
		defer close(done)
		for i := 1; i <= 200; i++ {
			if err := put(byte(i)); err != nil {
				writeErr <- err
				return
			}
		}
	}()

	for reading := true; reading; {
		select {
		case <-done:
			reading = false
		default:
		}
		recs, err := c.GetAll(ctx, backend.TableData)
		require.NoError(t, err)
		got := map[string][]byte{}
		for _, r := range recs {
			got[r.Key] = r.Value
		}
		require.Len(t, got, 2)
		require.Equal(t, got["a"], got["b"], "half-applied batch observed")
	}
	select {
	case err := <-writeErr:
		require.NoError(t, err)
	default:
	}
}

func testCloseTwice(t *testing.T, c backend.Conn) {
	ctx := context.Background()
	require.NoError(t, c.Close(ctx))
	assert.NoError(t, c.Close(ctx))
}

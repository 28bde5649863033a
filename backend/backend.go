// Package backend defines the local transactional store used by snapcache.
//
// A backend holds two logical tables keyed by storage key: TableData (framed
// snapshot payloads) and TableMetadata (framed per-entry bookkeeping). snapcache
// relies on Apply being atomic across both tables so that a snapshot and its
// metadata are always written and removed together.
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly the
// bytes last written for a key. Values handed to Apply must not be retained or
// mutated after Apply returns; callers must not mutate slices returned by Get.
package backend

import (
	"context"
	"errors"
)

// Table names a logical table.
type Table string

const (
	TableData     Table = "data"
	TableMetadata Table = "metadata"
)

// Tables lists every table a backend must provide.
var Tables = []Table{TableData, TableMetadata}

// ErrUnknownTable is returned for a Table not in Tables.
var ErrUnknownTable = errors.New("backend: unknown table")

// Record is one row returned by GetAll.
type Record struct {
	Key   string
	Value []byte
}

// Mutation is a single put (Delete=false) or delete (Delete=true).
type Mutation struct {
	Table  Table
	Key    string
	Value  []byte
	Delete bool
}

// Put is shorthand for a put mutation.
func Put(t Table, key string, value []byte) Mutation {
	return Mutation{Table: t, Key: key, Value: value}
}

// Del is shorthand for a delete mutation.
func Del(t Table, key string) Mutation {
	return Mutation{Table: t, Key: key, Delete: true}
}

// Opener establishes a connection. Open may block (disk, network); snapcache
// bounds it with its own timeout and treats a late result as unavailable.
type Opener interface {
	Open(ctx context.Context) (Conn, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context) (Conn, error)

func (f OpenerFunc) Open(ctx context.Context) (Conn, error) { return f(ctx) }

// Conn is an open connection. Must be safe for concurrent use.
type Conn interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	Get(ctx context.Context, t Table, key string) ([]byte, bool, error)

	// GetAll enumerates every row of a table. Order is unspecified.
	GetAll(ctx context.Context, t Table) ([]Record, error)

	// Apply performs all mutations atomically: either every mutation is
	// visible afterwards or none is. Deleting an absent key is not an error.
	Apply(ctx context.Context, muts ...Mutation) error

	// Drop removes every row from every table.
	Drop(ctx context.Context) error

	// Close releases resources. Safe to call more than once.
	Close(ctx context.Context) error
}

// ValidTable reports whether t is one of Tables.
func ValidTable(t Table) bool {
	for _, known := range Tables {
		if t == known {
			return true
		}
	}
	return false
}

// Package sqlite provides a SQLite-backed snapshot backend.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	_ "modernc.org/sqlite"

	"github.com/unkn0wn-root/snapcache/backend"
	"github.com/unkn0wn-root/snapcache/backend/sqlite/migrations"
	"github.com/unkn0wn-root/snapcache/internal/sqlitemigrate"
)

// Config locates the database file.
type Config struct {
	Path        string        `env:"SNAPCACHE_SQLITE_PATH"`
	BusyTimeout time.Duration `env:"SNAPCACHE_SQLITE_BUSY_TIMEOUT" envDefault:"5s"`
}

// ConfigFromEnv loads Config from environment variables.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Opener opens independent connections to one database file. Several
// snapshot stores may hold connections to the same file concurrently.
type Opener struct {
	path        string
	busyTimeout time.Duration
}

var _ backend.Opener = (*Opener)(nil)

// New validates cfg. The file is not touched until Open.
func New(cfg Config) (*Opener, error) {
	p := strings.TrimSpace(cfg.Path)
	if p == "" {
		return nil, errors.New("sqlite: storage path is required")
	}
	bt := cfg.BusyTimeout
	if bt <= 0 {
		bt = 5 * time.Second
	}
	return &Opener{path: filepath.Clean(p), busyTimeout: bt}, nil
}

func (o *Opener) dsn() string {
	return fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)",
		o.path, o.busyTimeout.Milliseconds())
}

// Open opens the database and applies embedded migrations, creating the
// tables on first use.
func (o *Opener) Open(ctx context.Context) (backend.Conn, error) {
	db, err := sql.Open("sqlite", o.dsn())
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// one writer per pool; other processes/pools wait on busy_timeout
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.Apply(ctx, db, migrations.FS, ""); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Conn{db: db}, nil
}

// Conn is an open SQLite connection pool.
type Conn struct {
	db        *sql.DB
	closeOnce sync.Once
	closeErr  error
}

var _ backend.Conn = (*Conn)(nil)

func tableName(t backend.Table) (string, error) {
	switch t {
	case backend.TableData:
		return "cache_data", nil
	case backend.TableMetadata:
		return "cache_metadata", nil
	default:
		return "", fmt.Errorf("%w: %q", backend.ErrUnknownTable, t)
	}
}

func (c *Conn) Get(ctx context.Context, t backend.Table, key string) ([]byte, bool, error) {
	name, err := tableName(t)
	if err != nil {
		return nil, false, err
	}
	var v []byte
	err = c.db.QueryRowContext(ctx, "SELECT value FROM "+name+" WHERE storage_key = ?", key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s %q: %w", t, key, err)
	}
	return v, true, nil
}

func (c *Conn) GetAll(ctx context.Context, t backend.Table) ([]backend.Record, error) {
	name, err := tableName(t)
	if err != nil {
		return nil, err
	}
	rows, err := c.db.QueryContext(ctx, "SELECT storage_key, value FROM "+name)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", t, err)
	}
	defer rows.Close()

	var out []backend.Record
	for rows.Next() {
		var r backend.Record
		if err := rows.Scan(&r.Key, &r.Value); err != nil {
			return nil, fmt.Errorf("scan %s: %w", t, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", t, err)
	}
	return out, nil
}

func (c *Conn) Apply(ctx context.Context, muts ...backend.Mutation) error {
	if len(muts) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	for _, m := range muts {
		name, err := tableName(m.Table)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		if m.Delete {
			_, err = tx.ExecContext(ctx, "DELETE FROM "+name+" WHERE storage_key = ?", m.Key)
		} else {
			_, err = tx.ExecContext(ctx,
				"INSERT INTO "+name+" (storage_key, value) VALUES (?, ?) "+
					"ON CONFLICT(storage_key) DO UPDATE SET value = excluded.value",
				m.Key, m.Value)
		}
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply %s %q: %w", m.Table, m.Key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (c *Conn) Drop(ctx context.Context) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	for _, t := range backend.Tables {
		name, _ := tableName(t)
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+name); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("drop %s: %w", t, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Close closes the pool. Repeated calls return the first result.
func (c *Conn) Close(context.Context) error {
	c.closeOnce.Do(func() { c.closeErr = c.db.Close() })
	return c.closeErr
}

package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/unkn0wn-root/snapcache/backend"
	"github.com/unkn0wn-root/snapcache/internal/backendtest"
)

func openTemp(t *testing.T, path string) backend.Conn {
	t.Helper()
	o, err := New(Config{Path: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c, err := o.Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return c
}

func TestConformance(t *testing.T) {
	backendtest.Run(t, func(t *testing.T) backend.Conn {
		return openTemp(t, filepath.Join(t.TempDir(), "snap.db"))
	})
}

func TestNewRequiresPath(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{Path: "   "}); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestDataSurvivesReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "snap.db")

	c1 := openTemp(t, path)
	if err := c1.Apply(ctx,
		backend.Put(backend.TableData, "todos", []byte("payload")),
		backend.Put(backend.TableMetadata, "todos", []byte("meta")),
	); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if err := c1.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	c2 := openTemp(t, path)
	defer c2.Close(ctx)
	v, ok, err := c2.Get(ctx, backend.TableData, "todos")
	if err != nil || !ok || string(v) != "payload" {
		t.Fatalf("Get after reopen: ok=%v err=%v v=%q", ok, err, v)
	}
}

func TestConcurrentConnectionsShareFile(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "snap.db")

	a := openTemp(t, path)
	defer a.Close(ctx)
	b := openTemp(t, path)
	defer b.Close(ctx)

	if err := a.Apply(ctx, backend.Put(backend.TableMetadata, "k", []byte("from-a"))); err != nil {
		t.Fatalf("Apply a: %v", err)
	}
	v, ok, err := b.Get(ctx, backend.TableMetadata, "k")
	if err != nil || !ok || string(v) != "from-a" {
		t.Fatalf("Get via b: ok=%v err=%v v=%q", ok, err, v)
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("SNAPCACHE_SQLITE_PATH", "/tmp/x.db")
	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv: %v", err)
	}
	if cfg.Path != "/tmp/x.db" {
		t.Fatalf("path = %q", cfg.Path)
	}
	if cfg.BusyTimeout.Seconds() != 5 {
		t.Fatalf("busy timeout default = %v", cfg.BusyTimeout)
	}
}

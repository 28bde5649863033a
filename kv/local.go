package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Local keeps settings in-process. When created with NewFile every write is
// flushed to a JSON file so the values survive restarts.
type Local struct {
	mu   sync.RWMutex
	vals map[string]string
	path string
}

var _ Store = (*Local)(nil)

func NewLocal() *Local {
	return &Local{vals: make(map[string]string)}
}

// NewFile loads settings from path if it exists. A missing file is treated as
// empty; the parent directory is created on first write.
func NewFile(path string) (*Local, error) {
	if path == "" {
		return nil, errors.New("kv: file path is required")
	}
	l := &Local{vals: make(map[string]string), path: path}
	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return l, nil
	case err != nil:
		return nil, fmt.Errorf("kv: read %s: %w", path, err)
	}
	if len(b) == 0 {
		return l, nil
	}
	if err := json.Unmarshal(b, &l.vals); err != nil {
		return nil, fmt.Errorf("kv: decode %s: %w", path, err)
	}
	if l.vals == nil {
		l.vals = make(map[string]string)
	}
	return l, nil
}

func (l *Local) Get(_ context.Context, key string) (string, bool, error) {
	l.mu.RLock()
	v, ok := l.vals[key]
	l.mu.RUnlock()
	return v, ok, nil
}

func (l *Local) Set(_ context.Context, key, value string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	prev, had := l.vals[key]
	l.vals[key] = value
	if err := l.flushLocked(); err != nil {
		if had {
			l.vals[key] = prev
		} else {
			delete(l.vals, key)
		}
		return err
	}
	return nil
}

func (l *Local) Remove(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	prev, had := l.vals[key]
	if !had {
		return nil
	}
	delete(l.vals, key)
	if err := l.flushLocked(); err != nil {
		l.vals[key] = prev
		return err
	}
	return nil
}

// flushLocked writes to a temp file and renames it over the target so a crash
// never leaves a half-written file behind.
func (l *Local) flushLocked() error {
	if l.path == "" {
		return nil
	}
	b, err := json.Marshal(l.vals)
	if err != nil {
		return fmt.Errorf("kv: encode: %w", err)
	}
	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("kv: mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".kv-*.tmp")
	if err != nil {
		return fmt.Errorf("kv: create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // no-op after a successful rename

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("kv: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("kv: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("kv: close temp: %w", err)
	}
	if err := os.Rename(tmpName, l.path); err != nil {
		return fmt.Errorf("kv: rename: %w", err)
	}
	return nil
}

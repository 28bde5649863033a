package kv

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestLocalGetSetRemove(t *testing.T) {
	ctx := context.Background()
	s := NewLocal()

	if _, ok, err := s.Get(ctx, "v"); err != nil || ok {
		t.Fatalf("expected miss, ok=%v err=%v", ok, err)
	}
	if err := s.Set(ctx, "v", "1.0"); err != nil {
		t.Fatal(err)
	}
	if v, ok, _ := s.Get(ctx, "v"); !ok || v != "1.0" {
		t.Fatalf("got %q ok=%v", v, ok)
	}
	if err := s.Remove(ctx, "v"); err != nil {
		t.Fatal(err)
	}
	if err := s.Remove(ctx, "v"); err != nil {
		t.Fatalf("removing a missing key: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "v"); ok {
		t.Fatal("expected miss after Remove")
	}
}

func TestFileSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "settings.json")

	s, err := NewFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Set(ctx, "app", "2.1.0"); err != nil {
		t.Fatal(err)
	}

	s2, err := NewFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if v, ok, _ := s2.Get(ctx, "app"); !ok || v != "2.1.0" {
		t.Fatalf("got %q ok=%v", v, ok)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("expected only the settings file, found %d entries", len(entries))
	}
}

func TestFileRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFile(path); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestNewFileRequiresPath(t *testing.T) {
	if _, err := NewFile(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

package asynchook

import (
	"sync"
	"testing"

	"github.com/unkn0wn-root/snapcache"
)

type countingHooks struct {
	snapcache.NopHooks
	mu       sync.Mutex
	rejected []string
	block    chan struct{}
}

func (c *countingHooks) EntryRejected(_, reason string) {
	if c.block != nil {
		<-c.block
	}
	c.mu.Lock()
	c.rejected = append(c.rejected, reason)
	c.mu.Unlock()
}

func TestDeliversQueuedEventsOnClose(t *testing.T) {
	inner := &countingHooks{}
	h := New(inner, 2, 16)
	for i := 0; i < 10; i++ {
		h.EntryRejected("todos", "expired")
	}
	h.Close()
	if len(inner.rejected) != 10 {
		t.Fatalf("expected 10 events, got %d", len(inner.rejected))
	}
	// after Close events are dropped, not panicking on a closed channel
	h.EntryRejected("todos", "expired")
	h.Close()
	if h.Dropped() != 1 {
		t.Fatalf("dropped=%d", h.Dropped())
	}
}

func TestDropsWhenQueueIsFull(t *testing.T) {
	inner := &countingHooks{block: make(chan struct{})}
	h := New(inner, 1, 1)

	// one event may be held by the worker and one by the queue; the rest drop
	for i := 0; i < 10; i++ {
		h.EntryRejected("todos", "expired")
	}
	if h.Dropped() < 8 {
		t.Fatalf("expected at least 8 drops, got %d", h.Dropped())
	}
	close(inner.block)
	h.Close()
}

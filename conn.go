package snapcache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/unkn0wn-root/snapcache/backend"
)

// lazyConn opens the backend once, on first use, and memoizes the outcome.
// A failed or timed-out open is final for the owning instance. A caller whose
// ctx ends first gets an error for that call only; the open keeps going.
type lazyConn struct {
	opener  backend.Opener
	timeout time.Duration
	label   string // storage key, or "*" for Admin
	log     Logger
	hooks   Hooks

	start sync.Once
	done  chan struct{} // closed once conn/err are final

	mu     sync.Mutex
	conn   backend.Conn
	err    error
	closed bool
}

func newLazyConn(o backend.Opener, timeout time.Duration, label string, log Logger, hooks Hooks) *lazyConn {
	return &lazyConn{
		opener:  o,
		timeout: coalesce[time.Duration](timeout, defaultOpenTimeout),
		label:   label,
		log:     log,
		hooks:   hooks,
		done:    make(chan struct{}),
	}
}

func (l *lazyConn) get(ctx context.Context) (backend.Conn, error) {
	l.start.Do(func() { go l.resolve() })
	select {
	case <-l.done:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, ctx.Err())
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed && l.err == nil {
		return nil, fmt.Errorf("%w: closed", ErrUnavailable)
	}
	return l.conn, l.err
}

func (l *lazyConn) resolve() {
	defer close(l.done)
	conn, err := l.open()
	l.mu.Lock()
	if err == nil && l.closed {
		// Close won the race; don't leak the late connection.
		_ = conn.Close(context.Background())
		conn, err = nil, fmt.Errorf("%w: closed", ErrUnavailable)
	}
	l.conn, l.err = conn, err
	l.mu.Unlock()
	if err != nil {
		l.log.Warn("snapcache backend unavailable", Fields{"key": l.label, "err": err})
		l.hooks.StoreUnavailable(l.label, err)
		return
	}
	l.log.Debug("snapcache backend opened", Fields{"key": l.label})
}

type openResult struct {
	conn backend.Conn
	err  error
}

// open races Opener.Open against the timeout. Some environments never answer
// an open request; the goroutine is left behind and closes whatever it gets.
func (l *lazyConn) open() (backend.Conn, error) {
	if l.opener == nil {
		return nil, fmt.Errorf("%w: no backend configured", ErrUnavailable)
	}
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("%w: closed", ErrUnavailable)
	}

	ch := make(chan openResult, 1)
	go func() {
		conn, err := l.opener.Open(context.Background())
		ch <- openResult{conn: conn, err: err}
	}()

	t := time.NewTimer(l.timeout)
	defer t.Stop()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnavailable, r.err)
		}
		if r.conn == nil {
			return nil, fmt.Errorf("%w: backend returned no connection", ErrUnavailable)
		}
		return r.conn, nil
	case <-t.C:
	}
	go func() {
		if r := <-ch; r.conn != nil {
			_ = r.conn.Close(context.Background())
		}
	}()
	return nil, fmt.Errorf("%w: open timed out after %s", ErrUnavailable, l.timeout)
}

// close marks the connection closed. An open still in flight closes its
// connection when it lands.
func (l *lazyConn) close(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	conn := l.conn
	l.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close(ctx)
}

// Package sloghooks reports snapcache hook events through log/slog.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/snapcache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	RejectedEvery uint64
	CorruptEvery  uint64
	// Optional key redactor. Defaults to SHA-256 prefix. Storage keys usually
	// embed an owner id.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	rejectedCtr atomic.Uint64
	corruptCtr  atomic.Uint64
}

var _ snapcache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) StoreUnavailable(storageKey string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("snapcache.store_unavailable",
		"key", h.redact(storageKey),
		"err", err)
}

func (h *Hooks) EntryRejected(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.RejectedEvery, &h.rejectedCtr) {
		return
	}
	h.l.Debug("snapcache.entry_rejected",
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) EntryCorrupt(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.CorruptEvery, &h.corruptCtr) {
		return
	}
	h.l.Warn("snapcache.entry_corrupt",
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) HydrationResolved(storageKey string, st snapcache.State, items int) {
	if h.l == nil {
		return
	}
	h.l.Debug("snapcache.hydration_resolved",
		"key", h.redact(storageKey),
		"state", st.String(),
		"items", items)
}

func (h *Hooks) WriteBackFailed(storageKey string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("snapcache.write_back_failed",
		"key", h.redact(storageKey),
		"err", err)
}

func (h *Hooks) Evicted(count int, reason string) {
	if h.l == nil {
		return
	}
	h.l.Info("snapcache.evicted",
		"count", count,
		"reason", reason)
}

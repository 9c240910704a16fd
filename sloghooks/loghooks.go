// Package sloghooks logs flashguard Hooks events through log/slog, with
// sampling for the high-volume ones and redacted cache keys.
package sloghooks

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/flashguard"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	SelfHealEvery      uint64
	RebuildSkipEvery   uint64
	NegativeCacheEvery uint64
	AdmissionEvery     uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	selfHealCtr  atomic.Uint64
	skipCtr      atomic.Uint64
	negativeCtr  atomic.Uint64
	admissionCtr atomic.Uint64
}

var _ flashguard.Hooks = (*Hooks)(nil)

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

func (h *Hooks) NegativeCached(storageKey string) {
	if h.l == nil || !sample(h.opts.NegativeCacheEvery, &h.negativeCtr) {
		return
	}
	h.l.Debug("flashguard.negative_cached", "key", h.redact(storageKey))
}

func (h *Hooks) RebuildScheduled(storageKey string) {
	if h.l == nil {
		return
	}
	h.l.Debug("flashguard.rebuild_scheduled", "key", h.redact(storageKey))
}

func (h *Hooks) RebuildSkipped(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.RebuildSkipEvery, &h.skipCtr) {
		return
	}
	level := slog.LevelDebug
	if reason == "pool_full" || reason == "lock_error" {
		level = slog.LevelWarn
	}
	h.l.Log(context.Background(), level, "flashguard.rebuild_skipped",
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) RebuildFailed(storageKey string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("flashguard.rebuild_failed",
		"key", h.redact(storageKey),
		"err", err)
}

func (h *Hooks) SelfHeal(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("flashguard.self_heal",
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) Admission(resourceID int64, outcome string) {
	if h.l == nil || !sample(h.opts.AdmissionEvery, &h.admissionCtr) {
		return
	}
	h.l.Debug("flashguard.admission",
		"resource_id", resourceID,
		"outcome", outcome)
}

func (h *Hooks) OrderCommitted(resourceID int64, duplicate bool) {
	if h.l == nil {
		return
	}
	h.l.Info("flashguard.order_committed",
		"resource_id", resourceID,
		"duplicate", duplicate)
}

func (h *Hooks) OrderFailed(streamID string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("flashguard.order_failed",
		"stream_id", streamID,
		"err", err)
}

func (h *Hooks) PendingRecovered(count int) {
	if h.l == nil || count == 0 {
		return
	}
	h.l.Info("flashguard.pending_recovered", "count", count)
}

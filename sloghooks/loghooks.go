// Package sloghooks logs gqlcache hook events to a *slog.Logger.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/unkn0wn-root/gqlcache"
)

type Options struct {
	// Sampling to avoid floods on hot paths; 0/1 = log all.
	MissEvery    uint64
	MergeEvery   uint64
	RefreshEvery uint64
	// Optional key redactor for storage keys. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	missCtr    atomic.Uint64
	mergeCtr   atomic.Uint64
	refreshCtr atomic.Uint64
}

var _ gqlcache.Hooks = (*Hooks)(nil)

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

func (h *Hooks) RecordsMerged(records, fields int) {
	if h.l == nil || !sample(h.opts.MergeEvery, &h.mergeCtr) {
		return
	}
	h.l.Debug("gqlcache.records_merged",
		"records", records,
		"fields", fields)
}

func (h *Hooks) OptimisticPushed(id uuid.UUID, records int) {
	if h.l == nil {
		return
	}
	h.l.Debug("gqlcache.optimistic_pushed",
		"mutation", id.String(),
		"records", records)
}

func (h *Hooks) OptimisticRolledBack(id uuid.UUID, records int) {
	if h.l == nil {
		return
	}
	h.l.Info("gqlcache.optimistic_rolled_back",
		"mutation", id.String(),
		"records", records)
}

func (h *Hooks) RecordsRemoved(count int, cascade bool) {
	if h.l == nil {
		return
	}
	h.l.Info("gqlcache.records_removed",
		"count", count,
		"cascade", cascade)
}

func (h *Hooks) CacheMiss(operation, reason string) {
	if h.l == nil || !sample(h.opts.MissEvery, &h.missCtr) {
		return
	}
	h.l.Debug("gqlcache.cache_miss",
		"operation", operation,
		"reason", reason)
}

func (h *Hooks) CorruptRecord(storageKey, reason string) {
	if h.l == nil {
		return
	}
	h.l.Warn("gqlcache.corrupt_record",
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) ProviderSetRejected(storageKey string) {
	if h.l == nil {
		return
	}
	h.l.Warn("gqlcache.provider_set_rejected",
		"key", h.redact(storageKey))
}

func (h *Hooks) WatcherRefreshed(operation string, changed bool) {
	if h.l == nil || !sample(h.opts.RefreshEvery, &h.refreshCtr) {
		return
	}
	h.l.Debug("gqlcache.watcher_refreshed",
		"operation", operation,
		"changed", changed)
}

func (h *Hooks) BackendError(op string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("gqlcache.backend_error",
		"op", op,
		"err", err)
}

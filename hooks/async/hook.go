// Package asynchook moves hook delivery off the store's hot path.
//
// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    MissEvery: 10, // sample logs: ~every 10th miss
//	})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	store, _ := gqlcache.New(gqlcache.Options{
//	    KeyResolver: normalize.IDResolver(""),
//	    Hooks:       hooks, // or raw to call synchronously
//	})
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/unkn0wn-root/gqlcache"
)

// Hooks forwards events to inner on a worker pool. Events are dropped, not
// queued, when the queue is full.
type Hooks struct {
	inner   gqlcache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

var _ gqlcache.Hooks = (*Hooks)(nil)

func New(inner gqlcache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Events sent after
// Close are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped reports how many events were discarded.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default: // drop
		h.dropped.Add(1)
	}
}

func (h *Hooks) RecordsMerged(r, f int)       { h.try(func() { h.inner.RecordsMerged(r, f) }) }
func (h *Hooks) RecordsRemoved(n int, c bool) { h.try(func() { h.inner.RecordsRemoved(n, c) }) }
func (h *Hooks) CacheMiss(op, r string)       { h.try(func() { h.inner.CacheMiss(op, r) }) }
func (h *Hooks) CorruptRecord(k, r string)    { h.try(func() { h.inner.CorruptRecord(k, r) }) }
func (h *Hooks) ProviderSetRejected(k string) {
	h.try(func() { h.inner.ProviderSetRejected(k) })
}
func (h *Hooks) BackendError(op string, err error) {
	h.try(func() { h.inner.BackendError(op, err) })
}
func (h *Hooks) WatcherRefreshed(op string, changed bool) {
	h.try(func() { h.inner.WatcherRefreshed(op, changed) })
}
func (h *Hooks) OptimisticPushed(id uuid.UUID, n int) {
	h.try(func() { h.inner.OptimisticPushed(id, n) })
}
func (h *Hooks) OptimisticRolledBack(id uuid.UUID, n int) {
	h.try(func() { h.inner.OptimisticRolledBack(id, n) })
}

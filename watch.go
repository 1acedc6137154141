package gqlcache

import (
	"context"
	"sort"
	"sync"

	"github.com/google/go-cmp/cmp"
	"github.com/tiendc/go-deepcopy"

	"github.com/unkn0wn-root/gqlcache/normalize"
	"github.com/unkn0wn-root/gqlcache/selection"
)

// Update is one emission of a Watcher.
type Update struct {
	Data Data
	// Missing is set when the operation cannot be answered from the cache.
	Missing bool
	// Err reports corrupt data or a record store failure.
	Err error
}

// Watcher follows one operation. It emits on C after its first read and
// then whenever a publish touches a record its last read depended on and
// the result differs from the previous emission.
//
// Each watcher runs on its own goroutine and reads in its own read
// transaction, so one slow consumer never delays the store or other
// watchers. C is unbuffered; wakes that arrive while the consumer is busy
// collapse into one re-read.
type Watcher struct {
	s    *store
	op   *selection.Operation
	name string
	log  Logger

	c      chan Update
	wakeC  chan struct{}
	done   chan struct{}
	exited chan struct{}
	once   sync.Once

	mu   sync.Mutex
	deps map[string]struct{}
}

// Watch starts a watcher for op. It stops when ctx ends, on Cancel or on
// store Close; C is closed then.
func (s *store) Watch(ctx context.Context, op *selection.Operation) (*Watcher, error) {
	w := &Watcher{
		s:      s,
		op:     op,
		name:   opName(op),
		log:    With(s.log, Fields{"operation": opName(op)}),
		c:      make(chan Update),
		wakeC:  make(chan struct{}, 1),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
		deps:   make(map[string]struct{}),
	}

	s.wmu.Lock()
	if s.closed.Load() {
		s.wmu.Unlock()
		return nil, ErrClosed
	}
	s.watchers[w] = struct{}{}
	s.wmu.Unlock()

	go w.run(ctx)
	return w, nil
}

// C returns the update stream.
func (w *Watcher) C() <-chan Update { return w.c }

// Cancel stops the watcher and waits for its goroutine to exit. Nothing is
// sent on C after Cancel returns. Safe to call more than once.
func (w *Watcher) Cancel() {
	w.once.Do(func() { close(w.done) })
	<-w.exited
}

// Dependencies returns the record keys the last read looked up, sorted.
func (w *Watcher) Dependencies() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.deps))
	for k := range w.deps {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (w *Watcher) dependsOn(keys []string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, k := range keys {
		if _, ok := w.deps[k]; ok {
			return true
		}
	}
	return false
}

func (w *Watcher) wake() {
	select {
	case w.wakeC <- struct{}{}:
	default: // a re-read is already pending
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.exited)
	defer close(w.c)
	defer w.s.unregister(w)

	var (
		last    Update
		emitted bool
	)
	for {
		u := w.refresh(ctx)
		changed := !emitted || !sameUpdate(last, u)
		if emitted {
			w.s.hooks.WatcherRefreshed(w.name, changed)
		}
		if changed {
			select {
			case w.c <- w.detach(u):
				last, emitted = u, true
			case <-w.done:
				return
			case <-ctx.Done():
				return
			}
		}

		select {
		case <-w.wakeC:
		case <-w.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// refresh re-reads the operation. Dependencies are replaced while the read
// lock is still held so no write can commit between the read and the
// dependency update.
func (w *Watcher) refresh(ctx context.Context) Update {
	s := w.s
	s.mu.RLock()
	d, err := normalize.Denormalize(ctx, view{s}, w.op.RootKey(), w.op.RootType(), w.op.Selections, w.op.Variables, s.fields)
	w.setDeps(d.Dependencies)
	s.mu.RUnlock()

	data, ok, err := s.result(w.name, d, err)
	return Update{Data: data, Missing: !ok && err == nil, Err: err}
}

// detach hands the consumer its own copy of the data so mutations on the
// receiving side cannot leak into the next comparison.
func (w *Watcher) detach(u Update) Update {
	if u.Data == nil {
		return u
	}
	var cp Data
	if err := deepcopy.Copy(&cp, &u.Data); err != nil {
		w.log.Warn("watcher data copy failed", Fields{"err": err})
		return u
	}
	u.Data = cp
	return u
}

func (w *Watcher) setDeps(keys []string) {
	deps := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		deps[k] = struct{}{}
	}
	w.mu.Lock()
	w.deps = deps
	w.mu.Unlock()
}

func (s *store) unregister(w *Watcher) {
	s.wmu.Lock()
	delete(s.watchers, w)
	s.wmu.Unlock()
}

func sameUpdate(a, b Update) bool {
	if a.Missing != b.Missing || (a.Err == nil) != (b.Err == nil) {
		return false
	}
	if a.Err != nil && a.Err.Error() != b.Err.Error() {
		return false
	}
	return cmp.Equal(a.Data, b.Data)
}

package gqlcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/unkn0wn-root/gqlcache/normalize"
	"github.com/unkn0wn-root/gqlcache/optimistic"
	"github.com/unkn0wn-root/gqlcache/record"
	"github.com/unkn0wn-root/gqlcache/recordstore"
	"github.com/unkn0wn-root/gqlcache/selection"
)

type store struct {
	records recordstore.RecordStore
	layer   *optimistic.Layer
	keys    normalize.KeyResolver
	fields  normalize.FieldKeyResolver
	merger  record.Merger
	log     Logger
	hooks   Hooks

	// mu guards records and layer as one view: writes exclusive, reads
	// shared.
	mu sync.RWMutex

	wmu      sync.Mutex
	watchers map[*Watcher]struct{}

	closed atomic.Bool
}

var _ Store = (*store)(nil)

func newStore(opts Options) (*store, error) {
	s := &store{
		records:  opts.Records,
		fields:   opts.FieldKeyResolver,
		watchers: make(map[*Watcher]struct{}),
	}

	// defaults
	if s.records == nil {
		s.records = recordstore.NewMemory(recordstore.MemoryOptions{})
	}
	s.keys = coalesce[normalize.KeyResolver](opts.KeyResolver, normalize.PathResolver)
	s.merger = coalesce[record.Merger](opts.Merger, record.DefaultMerger)
	s.log = coalesce[Logger](opts.Logger, NopLogger{})
	s.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	s.layer = optimistic.New(s.merger)
	if ma, ok := s.records.(recordstore.MergerAware); ok {
		ma.UseMerger(s.merger)
	}

	return s, nil
}

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

func opName(op *selection.Operation) string {
	if op.Name != "" {
		return op.Name
	}
	return "anonymous"
}

// view reads the base store through the optimistic layer. Callers hold mu.
type view struct{ s *store }

func (v view) ReadRecord(ctx context.Context, key string) (*record.Record, bool, error) {
	base, _, err := v.s.records.Load(ctx, key)
	if err != nil {
		return nil, false, err
	}
	r, ok := v.s.layer.Overlay(key, base)
	return r, ok, nil
}

// ==============================
// Reads
// ==============================

func (s *store) denormalize(ctx context.Context, rootKey, rootType string, sels []selection.Selection, vars map[string]any) (*normalize.Denormalized, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return normalize.Denormalize(ctx, view{s}, rootKey, rootType, sels, vars, s.fields)
}

// result turns a denormalize outcome into the read contract: misses are
// ok=false, everything else is an error.
func (s *store) result(name string, d *normalize.Denormalized, err error) (Data, bool, error) {
	if err == nil {
		return d.Data, true, nil
	}
	var me *MissError
	switch {
	case errors.As(err, &me):
		reason := "field"
		if me.Field == "" {
			reason = "record"
		}
		s.hooks.CacheMiss(name, reason)
		s.log.Debug("cache miss", Fields{"operation": name, "key": me.Key, "field": me.Field})
		return nil, false, nil
	case errors.Is(err, ErrCorrupt):
		s.log.Error("cached data does not match selection", Fields{"operation": name, "err": err})
		return nil, false, err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, false, err
	default:
		s.backendError("read", err)
		return nil, false, err
	}
}

func (s *store) backendError(op string, err error) {
	s.hooks.BackendError(op, err)
	s.log.Warn("record store "+op+" failed", Fields{"err": err})
}

func (s *store) ReadOperation(ctx context.Context, op *selection.Operation) (Data, bool, error) {
	if s.closed.Load() {
		return nil, false, ErrClosed
	}
	d, err := s.denormalize(ctx, op.RootKey(), op.RootType(), op.Selections, op.Variables)
	return s.result(opName(op), d, err)
}

func (s *store) ReadFragment(ctx context.Context, frag *selection.Fragment, key string) (Data, bool, error) {
	if s.closed.Load() {
		return nil, false, ErrClosed
	}
	d, err := s.denormalize(ctx, key, frag.TypeCondition, frag.Selections, frag.Variables)
	return s.result(frag.Name, d, err)
}

func (s *store) Denormalize(ctx context.Context, op *selection.Operation, rootKey string) (*normalize.Denormalized, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	return s.denormalize(ctx, rootKey, op.RootType(), op.Selections, op.Variables)
}

func (s *store) ReadRecord(ctx context.Context, key string) (*record.Record, bool, error) {
	if s.closed.Load() {
		return nil, false, ErrClosed
	}
	s.mu.RLock()
	r, ok, err := view{s}.ReadRecord(ctx, key)
	s.mu.RUnlock()
	if err != nil {
		s.backendError("read", err)
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return r.Clone(), true, nil
}

// ==============================
// Writes
// ==============================

func (s *store) Normalize(op *selection.Operation, data Data) (*normalize.Normalized, error) {
	n, err := normalize.Normalize(data, op.RootKey(), op.RootType(), op.Selections, op.Variables, s.keys)
	if err != nil {
		s.log.Error("response data does not match selection", Fields{"operation": opName(op), "err": err})
		return nil, err
	}
	return n, nil
}

func (s *store) WriteOperation(ctx context.Context, op *selection.Operation, data Data, publish bool) (record.Changes, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	n, err := s.Normalize(op, data)
	if err != nil {
		return nil, err
	}
	return s.commit(ctx, n.List(), publish)
}

func (s *store) WriteFragment(ctx context.Context, frag *selection.Fragment, key string, data Data, publish bool) (record.Changes, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	n, err := normalize.Normalize(data, key, frag.TypeCondition, frag.Selections, frag.Variables, s.keys)
	if err != nil {
		s.log.Error("fragment data does not match selection", Fields{"fragment": frag.Name, "key": key, "err": err})
		return nil, err
	}
	return s.commit(ctx, n.List(), publish)
}

func (s *store) MergeRecords(ctx context.Context, recs []*record.Record, publish bool) (record.Changes, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	return s.commit(ctx, recs, publish)
}

// commit merges recs into the base store in one exclusive transaction and
// publishes afterwards. On a backend failure the changes applied before it
// are still returned and published.
func (s *store) commit(ctx context.Context, recs []*record.Record, publish bool) (record.Changes, error) {
	s.mu.Lock()
	changes, err := s.records.Merge(ctx, recs, s.merger)
	s.mu.Unlock()

	if changes.Len() > 0 {
		fields := len(changes.FieldKeys())
		s.hooks.RecordsMerged(changes.Len(), fields)
		s.log.Debug("records merged", Fields{"records": changes.Len(), "fields": fields})
		if publish {
			s.publish(changes.Keys())
		}
	}
	if err != nil {
		s.backendError("write", err)
		return changes, fmt.Errorf("gqlcache: merge records: %w", err)
	}
	return changes, nil
}

// ==============================
// Optimistic layer
// ==============================

func (s *store) WriteOptimisticUpdates(ctx context.Context, op *selection.Operation, data Data, mutationID uuid.UUID, updateCacheBeforeNetwork bool) (record.Changes, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n, err := s.Normalize(op, data)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	changes := s.layer.Push(mutationID, n.List())
	s.mu.Unlock()

	s.hooks.OptimisticPushed(mutationID, changes.Len())
	s.log.Debug("optimistic patch pushed", Fields{"mutation": mutationID.String(), "records": changes.Len(), "published": updateCacheBeforeNetwork})
	if updateCacheBeforeNetwork {
		s.publish(changes.Keys())
	}
	return changes, nil
}

func (s *store) RollbackOptimisticUpdates(ctx context.Context, mutationID uuid.UUID, publish bool) (record.Changes, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	changes, ok := s.layer.Rollback(mutationID)
	s.mu.Unlock()

	if !ok {
		s.log.Debug("rollback of unknown mutation", Fields{"mutation": mutationID.String()})
		return make(record.Changes), nil
	}
	s.hooks.OptimisticRolledBack(mutationID, changes.Len())
	s.log.Debug("optimistic patch rolled back", Fields{"mutation": mutationID.String(), "records": changes.Len()})
	if publish {
		s.publish(changes.Keys())
	}
	return changes, nil
}

// ==============================
// Publishing
// ==============================

func (s *store) Publish(keys ...string) {
	s.publish(keys)
}

func (s *store) snapshotWatchers() []*Watcher {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	out := make([]*Watcher, 0, len(s.watchers))
	for w := range s.watchers {
		out = append(out, w)
	}
	return out
}

// publish wakes every watcher whose last read touched one of keys. It never
// blocks on a watcher.
func (s *store) publish(keys []string) {
	if len(keys) == 0 {
		return
	}
	for _, w := range s.snapshotWatchers() {
		if w.dependsOn(keys) {
			w.wake()
		}
	}
}

func (s *store) publishAll() {
	for _, w := range s.snapshotWatchers() {
		w.wake()
	}
}

// ==============================
// Lifecycle and diagnostics
// ==============================

func (s *store) Clear(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	s.mu.Lock()
	err := s.records.Clear(ctx)
	s.layer.Clear()
	s.mu.Unlock()

	s.log.Info("cache cleared", nil)
	s.publishAll()
	if err != nil {
		s.backendError("clear", err)
		return fmt.Errorf("gqlcache: clear: %w", err)
	}
	return nil
}

func (s *store) Dump(ctx context.Context) (map[string]map[string]*record.Record, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	tiers := []recordstore.RecordStore{s.records}
	if t, ok := s.records.(recordstore.Tiered); ok {
		tiers = t.Tiers()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]map[string]*record.Record, len(tiers)+s.layer.Len())
	for i, t := range tiers {
		d, err := t.Dump(ctx)
		if err != nil {
			s.backendError("dump", err)
			return nil, fmt.Errorf("gqlcache: dump %s: %w", t.Name(), err)
		}
		name := t.Name()
		if _, dup := out[name]; dup {
			name = fmt.Sprintf("%s#%d", name, i)
		}
		tbl := make(map[string]*record.Record, len(d))
		for k, r := range d {
			tbl[k] = r.Clone()
		}
		out[name] = tbl
	}
	for name, tbl := range s.layer.Dump() {
		out[name] = tbl
	}
	return out, nil
}

func (s *store) Close(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	for _, w := range s.snapshotWatchers() {
		w.Cancel()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.records.Close(ctx); err != nil {
		s.backendError("close", err)
		return err
	}
	return nil
}

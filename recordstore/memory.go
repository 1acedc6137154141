package recordstore

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/unkn0wn-root/gqlcache/record"
)

// MemoryOptions bound a Memory store. The zero value is an unbounded map.
type MemoryOptions struct {
	// Name labels the store in dumps. Default "memory".
	Name string
	// MaxRecords caps the table; least recently used records are evicted.
	// 0 = unbounded.
	MaxRecords int
	// TTL expires records this long after their last write. 0 = never.
	TTL time.Duration
	// OnEvict is called with the key of each record evicted for size or age.
	// It runs inside the store and must not call back into it.
	OnEvict func(key string)
}

// Memory is the in-process record table.
type Memory struct {
	name string

	mu     sync.RWMutex
	m      map[string]*record.Record
	lru    *expirable.LRU[string, *record.Record]
	closed bool
}

var _ RecordStore = (*Memory)(nil)

// NewMemory returns a map-backed store, or an expirable LRU when opts set a
// size or age bound.
func NewMemory(opts MemoryOptions) *Memory {
	s := &Memory{name: coalesce(opts.Name, "memory")}
	if opts.MaxRecords > 0 || opts.TTL > 0 {
		var onEvict expirable.EvictCallback[string, *record.Record]
		if opts.OnEvict != nil {
			onEvict = func(k string, _ *record.Record) { opts.OnEvict(k) }
		}
		s.lru = expirable.NewLRU[string, *record.Record](opts.MaxRecords, onEvict, opts.TTL)
		return s
	}
	s.m = make(map[string]*record.Record)
	return s
}

func (s *Memory) Name() string { return s.name }

func (s *Memory) get(key string) (*record.Record, bool) {
	if s.lru != nil {
		return s.lru.Get(key)
	}
	r, ok := s.m[key]
	return r, ok
}

func (s *Memory) put(r *record.Record) {
	if s.lru != nil {
		s.lru.Add(r.Key(), r)
		return
	}
	s.m[r.Key()] = r
}

func (s *Memory) Load(_ context.Context, key string) (*record.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, false, ErrClosed
	}
	r, ok := s.get(key)
	return r, ok, nil
}

func (s *Memory) LoadMany(_ context.Context, keys []string) (map[string]*record.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := make(map[string]*record.Record, len(keys))
	for _, k := range keys {
		if r, ok := s.get(k); ok {
			out[k] = r
		}
	}
	return out, nil
}

func (s *Memory) Merge(_ context.Context, recs []*record.Record, m record.Merger) (record.Changes, error) {
	if m == nil {
		m = record.DefaultMerger
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	changes := make(record.Changes)
	for _, in := range recs {
		if in == nil {
			continue
		}
		existing, _ := s.get(in.Key())
		if out, write := mergeOne(changes, m, existing, in); write {
			s.put(out)
		}
	}
	return changes, nil
}

func (s *Memory) Remove(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	if s.lru != nil {
		return s.lru.Remove(key), nil
	}
	_, ok := s.m[key]
	delete(s.m, key)
	return ok, nil
}

func (s *Memory) Dump(_ context.Context) (map[string]*record.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.lru != nil {
		keys := s.lru.Keys()
		out := make(map[string]*record.Record, len(keys))
		for _, k := range keys {
			if r, ok := s.lru.Peek(k); ok {
				out[k] = r
			}
		}
		return out, nil
	}
	out := make(map[string]*record.Record, len(s.m))
	for k, r := range s.m {
		out[k] = r
	}
	return out, nil
}

func (s *Memory) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lru != nil {
		return s.lru.Len()
	}
	return len(s.m)
}

func (s *Memory) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.lru != nil {
		s.lru.Purge()
		return nil
	}
	clear(s.m)
	return nil
}

func (s *Memory) Close(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

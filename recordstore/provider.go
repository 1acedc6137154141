package recordstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/unkn0wn-root/gqlcache/codec"
	"github.com/unkn0wn-root/gqlcache/internal/util"
	"github.com/unkn0wn-root/gqlcache/internal/wire"
	pr "github.com/unkn0wn-root/gqlcache/provider"
	"github.com/unkn0wn-root/gqlcache/record"
)

// CostFunc returns the provider cost of one encoded entry.
type CostFunc func(storageKey string, raw []byte) int64

// ProviderOptions configure a ProviderStore.
// Only Namespace and Provider are required; others have sensible defaults.
type ProviderOptions struct {
	// Required
	Namespace string // logical namespace, e.g. "app:prod"
	Provider  pr.Provider

	Codec       codec.Codec   // default codec.JSON
	TTL         time.Duration // per entry; 0 = no expiry
	ComputeCost CostFunc      // default 1
	Events      Events        // default no-op
	// LoadConcurrency caps parallel provider reads in LoadMany. Default 8.
	LoadConcurrency int
}

// ProviderStore persists records in a byte provider. Each record is encoded
// by the codec, framed in a wire envelope and stored under
// rec:<namespace>:<key>. Entries that fail validation are deleted on read
// and reported as misses.
type ProviderStore struct {
	ns     string
	p      pr.Provider
	codec  codec.Codec
	ttl    time.Duration
	cost   CostFunc
	events Events
	conc   int

	wmu sync.Mutex // serializes read-modify-write in Merge

	imu   sync.Mutex
	index map[string]struct{}

	closeOnce sync.Once
	closed    chan struct{}
}

var _ RecordStore = (*ProviderStore)(nil)

// NewProviderStore opens a store over opts.Provider. When the provider
// implements provider.Scanner the key index is seeded from it.
func NewProviderStore(ctx context.Context, opts ProviderOptions) (*ProviderStore, error) {
	if opts.Namespace == "" {
		return nil, errors.New("recordstore: namespace is required")
	}
	if opts.Provider == nil {
		return nil, errors.New("recordstore: provider is required")
	}
	s := &ProviderStore{
		ns:     opts.Namespace,
		p:      opts.Provider,
		codec:  opts.Codec,
		ttl:    opts.TTL,
		cost:   opts.ComputeCost,
		events: opts.Events,
		conc:   coalesce(opts.LoadConcurrency, 8),
		index:  make(map[string]struct{}),
		closed: make(chan struct{}),
	}
	if s.codec == nil {
		s.codec = codec.JSON{}
	}
	if s.cost == nil {
		s.cost = func(string, []byte) int64 { return 1 }
	}
	if s.events == nil {
		s.events = nopEvents{}
	}

	if sc, ok := s.p.(pr.Scanner); ok {
		keys, err := sc.Keys(ctx, util.NamespacePrefix(s.ns))
		if err != nil {
			return nil, fmt.Errorf("recordstore: scan %s: %w", s.ns, err)
		}
		for _, sk := range keys {
			if k, ok := util.ParseRecordKey(s.ns, sk); ok {
				s.index[k] = struct{}{}
			}
		}
	}
	return s, nil
}

func (s *ProviderStore) Name() string { return "provider/" + s.ns }

func (s *ProviderStore) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *ProviderStore) indexAdd(key string) {
	s.imu.Lock()
	s.index[key] = struct{}{}
	s.imu.Unlock()
}

func (s *ProviderStore) indexDel(key string) {
	s.imu.Lock()
	delete(s.index, key)
	s.imu.Unlock()
}

func (s *ProviderStore) selfHeal(ctx context.Context, key, sk, reason string) {
	_ = s.p.Del(ctx, sk)
	s.indexDel(key)
	s.events.CorruptRecord(sk, reason)
}

func (s *ProviderStore) Load(ctx context.Context, key string) (*record.Record, bool, error) {
	if s.isClosed() {
		return nil, false, ErrClosed
	}
	sk := util.RecordKey(s.ns, key)
	raw, ok, err := s.p.Get(ctx, sk)
	if err != nil {
		return nil, false, fmt.Errorf("recordstore: get %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	env, err := wire.DecodeRecord(raw)
	if err != nil {
		s.selfHeal(ctx, key, sk, "corrupt")
		return nil, false, nil
	}
	if env.Key != key {
		s.selfHeal(ctx, key, sk, "key_mismatch")
		return nil, false, nil
	}
	if env.Codec != s.codec.Name() {
		s.selfHeal(ctx, key, sk, "codec_mismatch")
		return nil, false, nil
	}
	r, err := s.codec.Decode(env.Payload)
	if err != nil || r.Key() != key {
		s.selfHeal(ctx, key, sk, "value_decode")
		return nil, false, nil
	}
	s.indexAdd(key)
	return r, true, nil
}

// LoadMany reads keys concurrently, at most LoadConcurrency at a time.
func (s *ProviderStore) LoadMany(ctx context.Context, keys []string) (map[string]*record.Record, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	var (
		mu  sync.Mutex
		out = make(map[string]*record.Record, len(keys))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.conc)
	for _, k := range keys {
		g.Go(func() error {
			r, ok, err := s.Load(gctx, k)
			if err != nil || !ok {
				return err
			}
			mu.Lock()
			out[k] = r
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *ProviderStore) Merge(ctx context.Context, recs []*record.Record, m record.Merger) (record.Changes, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	if m == nil {
		m = record.DefaultMerger
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()

	changes := make(record.Changes)
	for _, in := range recs {
		if in == nil {
			continue
		}
		existing, _, err := s.Load(ctx, in.Key())
		if err != nil {
			return changes, err
		}
		out, write := mergeOne(changes, m, existing, in)
		if !write {
			continue
		}
		if err := s.put(ctx, out); err != nil {
			return changes, err
		}
	}
	return changes, nil
}

func (s *ProviderStore) put(ctx context.Context, r *record.Record) error {
	payload, err := s.codec.Encode(r)
	if err != nil {
		return fmt.Errorf("recordstore: encode %s: %w", r.Key(), err)
	}
	raw, err := wire.EncodeRecord(wire.Envelope{Key: r.Key(), Codec: s.codec.Name(), Payload: payload})
	if err != nil {
		return fmt.Errorf("recordstore: frame %s: %w", r.Key(), err)
	}
	sk := util.RecordKey(s.ns, r.Key())
	ok, err := s.p.Set(ctx, sk, raw, s.cost(sk, raw), s.ttl)
	if err != nil {
		return fmt.Errorf("recordstore: set %s: %w", r.Key(), err)
	}
	if !ok {
		s.events.ProviderSetRejected(sk)
		return nil
	}
	s.indexAdd(r.Key())
	return nil
}

func (s *ProviderStore) Remove(ctx context.Context, key string) (bool, error) {
	if s.isClosed() {
		return false, ErrClosed
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()

	sk := util.RecordKey(s.ns, key)
	_, existed, err := s.p.Get(ctx, sk)
	if err != nil {
		return false, fmt.Errorf("recordstore: get %s: %w", key, err)
	}
	if err := s.p.Del(ctx, sk); err != nil {
		return false, fmt.Errorf("recordstore: del %s: %w", key, err)
	}
	s.indexDel(key)
	return existed, nil
}

// keys returns every known record key: the index, plus whatever the
// provider can enumerate.
func (s *ProviderStore) keys(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	s.imu.Lock()
	for k := range s.index {
		seen[k] = struct{}{}
	}
	s.imu.Unlock()

	if sc, ok := s.p.(pr.Scanner); ok {
		sks, err := sc.Keys(ctx, util.NamespacePrefix(s.ns))
		if err != nil {
			return nil, fmt.Errorf("recordstore: scan %s: %w", s.ns, err)
		}
		for _, sk := range sks {
			if k, ok := util.ParseRecordKey(s.ns, sk); ok {
				seen[k] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

func (s *ProviderStore) Dump(ctx context.Context) (map[string]*record.Record, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	keys, err := s.keys(ctx)
	if err != nil {
		return nil, err
	}
	return s.LoadMany(ctx, keys)
}

func (s *ProviderStore) Clear(ctx context.Context) error {
	if s.isClosed() {
		return ErrClosed
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()

	keys, err := s.keys(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, k := range keys {
		if err := s.p.Del(ctx, util.RecordKey(s.ns, k)); err != nil {
			errs = append(errs, fmt.Errorf("recordstore: del %s: %w", k, err))
			continue
		}
		s.indexDel(k)
	}
	return errors.Join(errs...)
}

// Close closes the underlying provider. Repeated calls are no-ops.
func (s *ProviderStore) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		err = s.p.Close(ctx)
	})
	return err
}

package recordstore

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/unkn0wn-root/gqlcache/codec"
	"github.com/unkn0wn-root/gqlcache/internal/util"
	"github.com/unkn0wn-root/gqlcache/internal/wire"
	"github.com/unkn0wn-root/gqlcache/record"
)

// ==============================
// Test helpers / fakes
// ==============================

type memProvider struct {
	mu     sync.Mutex
	m      map[string][]byte
	reject bool
	getErr error
	closed bool
}

func newMemProvider() *memProvider { return &memProvider{m: make(map[string][]byte)} }

func (p *memProvider) Get(_ context.Context, k string) ([]byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.getErr != nil {
		return nil, false, p.getErr
	}
	b, ok := p.m[k]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), b...), true, nil
}

func (p *memProvider) Set(_ context.Context, k string, v []byte, _ int64, _ time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reject {
		return false, nil
	}
	p.m[k] = append([]byte(nil), v...)
	return true, nil
}

func (p *memProvider) Del(_ context.Context, k string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.m, k)
	return nil
}

func (p *memProvider) Close(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// scanProvider adds key enumeration.
type scanProvider struct{ *memProvider }

func (p scanProvider) Keys(_ context.Context, prefix string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for k := range p.m {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}

type eventLog struct {
	mu       sync.Mutex
	corrupt  []string
	rejected []string
}

func (e *eventLog) CorruptRecord(sk, reason string) {
	e.mu.Lock()
	e.corrupt = append(e.corrupt, reason)
	e.mu.Unlock()
}

func (e *eventLog) ProviderSetRejected(sk string) {
	e.mu.Lock()
	e.rejected = append(e.rejected, sk)
	e.mu.Unlock()
}

func rec(key string, kv ...any) *record.Record {
	r := record.New(key)
	for i := 0; i+1 < len(kv); i += 2 {
		v, ok := kv[i+1].(record.Value)
		if !ok {
			v, _ = record.Scalar(kv[i+1])
		}
		r.Set(kv[i].(string), v)
	}
	return r
}

func newProviderStore(t *testing.T, p *memProvider, ev Events) *ProviderStore {
	t.Helper()
	s, err := NewProviderStore(context.Background(), ProviderOptions{Namespace: "test", Provider: p, Events: ev})
	if err != nil {
		t.Fatalf("NewProviderStore: %v", err)
	}
	return s
}

func mustMerge(t *testing.T, s RecordStore, recs ...*record.Record) record.Changes {
	t.Helper()
	ch, err := s.Merge(context.Background(), recs, nil)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	return ch
}

func mustLoad(t *testing.T, s RecordStore, key string) *record.Record {
	t.Helper()
	r, ok, err := s.Load(context.Background(), key)
	if err != nil || !ok {
		t.Fatalf("Load(%s) ok=%v err=%v", key, ok, err)
	}
	return r
}

func expectFieldKeys(t *testing.T, ch record.Changes, want ...string) {
	t.Helper()
	got := ch.FieldKeys()
	if len(want) == 0 && len(got) == 0 {
		return
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("changes (-want +got):\n%s", diff)
	}
}

// stores returns one of each implementation under a common name.
func stores(t *testing.T) map[string]RecordStore {
	return map[string]RecordStore{
		"memory":   NewMemory(MemoryOptions{}),
		"lru":      NewMemory(MemoryOptions{MaxRecords: 100}),
		"provider": newProviderStore(t, newMemProvider(), nil),
		"chain":    NewChain(NewMemory(MemoryOptions{}), newProviderStore(t, newMemProvider(), nil)),
	}
}

// ==============================
// Contract, every implementation
// ==============================

func TestContractMergeReportsChangedFields(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			expectFieldKeys(t, mustMerge(t, s, rec("2001", "id", "2001", "name", "R2-D2")), "2001.id", "2001.name")
			expectFieldKeys(t, mustMerge(t, s, rec("2001", "id", "2001", "name", "Artoo")), "2001.name")
			if ch := mustMerge(t, s, rec("2001", "name", "Artoo")); ch.Len() != 0 {
				t.Fatalf("idempotent merge reported %v", ch.FieldKeys())
			}

			if got := mustLoad(t, s, "2001").SortedFields(); !cmp.Equal(got, []string{"id", "name"}) {
				t.Fatalf("fields=%v", got)
			}
		})
	}
}

func TestContractEmptyRecordIsReported(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if ch := mustMerge(t, s, record.New("empty")); !ch.Contains("empty") {
				t.Fatalf("new empty record not reported")
			}
			mustLoad(t, s, "empty")
		})
	}
}

func TestContractRemoveDumpClear(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			mustMerge(t, s, rec("a", "v", 1), rec("b", "next", record.Ref("a")))

			d, err := s.Dump(ctx)
			if err != nil || len(d) != 2 {
				t.Fatalf("Dump len=%d err=%v", len(d), err)
			}

			many, err := s.LoadMany(ctx, []string{"a", "missing", "b"})
			if err != nil || len(many) != 2 {
				t.Fatalf("LoadMany len=%d err=%v", len(many), err)
			}

			if ok, err := s.Remove(ctx, "a"); err != nil || !ok {
				t.Fatalf("Remove ok=%v err=%v", ok, err)
			}
			if ok, err := s.Remove(ctx, "a"); err != nil || ok {
				t.Fatalf("second Remove ok=%v err=%v", ok, err)
			}

			if err := s.Clear(ctx); err != nil {
				t.Fatalf("Clear: %v", err)
			}
			if d, err = s.Dump(ctx); err != nil || len(d) != 0 {
				t.Fatalf("Dump after Clear len=%d err=%v", len(d), err)
			}

			if err := s.Close(ctx); err != nil {
				t.Fatalf("Close: %v", err)
			}
			if _, _, err := s.Load(ctx, "b"); !errors.Is(err, ErrClosed) {
				t.Fatalf("Load after Close: %v", err)
			}
		})
	}
}

func TestContractStoredRecordsAreNotAliased(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			in := rec("k", "v", 1)
			mustMerge(t, s, in)
			in.Set("v", record.Int(2))

			v, _ := mustLoad(t, s, "k").Get("v")
			if v.Interface() != int64(1) {
				t.Fatalf("stored record aliased input: v=%s", v)
			}
		})
	}
}

// ==============================
// Memory
// ==============================

func TestMemoryLRUEvicts(t *testing.T) {
	ctx := context.Background()
	var evicted []string
	s := NewMemory(MemoryOptions{MaxRecords: 2, OnEvict: func(k string) { evicted = append(evicted, k) }})

	for _, k := range []string{"a", "b", "c"} {
		mustMerge(t, s, rec(k, "v", k))
	}
	if s.Len() != 2 {
		t.Fatalf("len=%d", s.Len())
	}
	if !cmp.Equal(evicted, []string{"a"}) {
		t.Fatalf("evicted=%v", evicted)
	}
	if _, ok, _ := s.Load(ctx, "a"); ok {
		t.Fatalf("evicted record still loadable")
	}
}

func TestMemoryTTLExpires(t *testing.T) {
	ctx := context.Background()
	s := NewMemory(MemoryOptions{TTL: 20 * time.Millisecond})
	mustMerge(t, s, rec("a", "v", 1))

	deadline := time.Now().Add(time.Second)
	for {
		if _, ok, _ := s.Load(ctx, "a"); !ok {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("record did not expire")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestMemoryName(t *testing.T) {
	if n := NewMemory(MemoryOptions{}).Name(); n != "memory" {
		t.Fatalf("default name=%q", n)
	}
	if n := NewMemory(MemoryOptions{Name: "l1"}).Name(); n != "l1" {
		t.Fatalf("name=%q", n)
	}
}

// ==============================
// ProviderStore
// ==============================

func TestProviderStoreLayout(t *testing.T) {
	p := newMemProvider()
	s := newProviderStore(t, p, nil)
	mustMerge(t, s, rec("2001", "name", "R2-D2"))

	raw, ok := p.m["rec:test:2001"]
	if !ok {
		t.Fatalf("storage key layout: %v", p.m)
	}
	env, err := wire.DecodeRecord(raw)
	if err != nil {
		t.Fatalf("DecodeRecord: %v", err)
	}
	if env.Key != "2001" || env.Codec != "json" {
		t.Fatalf("envelope key=%q codec=%q", env.Key, env.Codec)
	}
}

func TestProviderStoreSelfHeal(t *testing.T) {
	ctx := context.Background()
	cases := map[string]struct {
		raw    func() []byte
		reason string
	}{
		"garbage": {
			raw:    func() []byte { return []byte("not an envelope") },
			reason: "corrupt",
		},
		"wrong key": {
			raw: func() []byte {
				payload, _ := codec.JSON{}.Encode(rec("other", "v", 1))
				b, _ := wire.EncodeRecord(wire.Envelope{Key: "other", Codec: "json", Payload: payload})
				return b
			},
			reason: "key_mismatch",
		},
		"other codec": {
			raw: func() []byte {
				payload, _ := codec.Msgpack{}.Encode(rec("k", "v", 1))
				b, _ := wire.EncodeRecord(wire.Envelope{Key: "k", Codec: "msgpack", Payload: payload})
				return b
			},
			reason: "codec_mismatch",
		},
		"bad payload": {
			raw: func() []byte {
				b, _ := wire.EncodeRecord(wire.Envelope{Key: "k", Codec: "json", Payload: []byte("{")})
				return b
			},
			reason: "value_decode",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			p := newMemProvider()
			ev := &eventLog{}
			s := newProviderStore(t, p, ev)
			p.m[util.RecordKey("test", "k")] = tc.raw()

			// corruption is a miss, not an error
			if _, ok, err := s.Load(ctx, "k"); err != nil || ok {
				t.Fatalf("Load ok=%v err=%v", ok, err)
			}
			if !cmp.Equal(ev.corrupt, []string{tc.reason}) {
				t.Fatalf("corrupt events=%v, want [%s]", ev.corrupt, tc.reason)
			}
			if _, still := p.m[util.RecordKey("test", "k")]; still {
				t.Fatalf("corrupt entry not deleted")
			}
		})
	}
}

func TestProviderStoreBackendError(t *testing.T) {
	ctx := context.Background()
	p := newMemProvider()
	s := newProviderStore(t, p, nil)
	boom := errors.New("boom")
	p.getErr = boom

	if _, _, err := s.Load(ctx, "k"); !errors.Is(err, boom) {
		t.Fatalf("Load err=%v", err)
	}
	if _, err := s.LoadMany(ctx, []string{"a", "b"}); !errors.Is(err, boom) {
		t.Fatalf("LoadMany err=%v", err)
	}
}

func TestProviderStoreSetRejected(t *testing.T) {
	ctx := context.Background()
	p := newMemProvider()
	p.reject = true
	ev := &eventLog{}
	s := newProviderStore(t, p, ev)

	mustMerge(t, s, rec("k", "v", 1))
	if !cmp.Equal(ev.rejected, []string{"rec:test:k"}) {
		t.Fatalf("rejected=%v", ev.rejected)
	}
	if _, ok, _ := s.Load(ctx, "k"); ok {
		t.Fatalf("rejected write is loadable")
	}
}

func TestProviderStoreSeedsIndexFromScanner(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	first := newProviderStore(t, mp, nil)
	mustMerge(t, first, rec("a", "v", 1), rec("b", "v", 2))
	mp.m["rec:other:z"] = []byte("foreign namespace")

	second, err := NewProviderStore(ctx, ProviderOptions{Namespace: "test", Provider: scanProvider{mp}})
	if err != nil {
		t.Fatalf("NewProviderStore: %v", err)
	}
	if d, err := second.Dump(ctx); err != nil || len(d) != 2 {
		t.Fatalf("Dump len=%d err=%v", len(d), err)
	}

	if err := second.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if diff := cmp.Diff(map[string][]byte{"rec:other:z": []byte("foreign namespace")}, mp.m); diff != "" {
		t.Fatalf("Clear touched a foreign namespace (-want +got):\n%s", diff)
	}
}

func TestProviderStoreCodecs(t *testing.T) {
	ctx := context.Background()
	for _, name := range []string{"json", "cbor", "msgpack", "protobuf"} {
		c, err := codec.ByName(name)
		if err != nil {
			t.Fatalf("ByName(%s): %v", name, err)
		}
		s, err := NewProviderStore(ctx, ProviderOptions{Namespace: "ns", Provider: newMemProvider(), Codec: c})
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}

		in := rec("k", "list", record.List(record.Ref("a"), record.Null()), "empty", record.List())
		mustMerge(t, s, in)
		if out := mustLoad(t, s, "k"); !in.Equal(out) {
			t.Fatalf("%s: record changed through the codec", name)
		}
	}
}

func TestProviderStoreRequiresOptions(t *testing.T) {
	if _, err := NewProviderStore(context.Background(), ProviderOptions{Provider: newMemProvider()}); err == nil {
		t.Fatalf("expected error without namespace")
	}
	if _, err := NewProviderStore(context.Background(), ProviderOptions{Namespace: "x"}); err == nil {
		t.Fatalf("expected error without provider")
	}
}

// ==============================
// Chain
// ==============================

func TestChainPromotesLowerHits(t *testing.T) {
	ctx := context.Background()
	l1 := NewMemory(MemoryOptions{Name: "l1"})
	l2 := NewMemory(MemoryOptions{Name: "l2"})
	mustMerge(t, l2, rec("a", "v", 1))

	c := NewChain(l1, l2)
	if r := mustLoad(t, c, "a"); r.Key() != "a" {
		t.Fatalf("key=%q", r.Key())
	}

	if _, ok, _ := l1.Load(ctx, "a"); !ok {
		t.Fatalf("hit not promoted into l1")
	}
	if c.Name() != "chain(l1,l2)" || len(c.Tiers()) != 2 {
		t.Fatalf("name=%q tiers=%d", c.Name(), len(c.Tiers()))
	}
}

func TestChainPromotionUsesMerger(t *testing.T) {
	l1 := NewMemory(MemoryOptions{Name: "l1"})
	l2 := NewMemory(MemoryOptions{Name: "l2"})
	mustMerge(t, l2, rec("a", "v", 1))

	// keeps only fields the upper tier does not have yet, tagging them
	var calls int
	tagging := record.MergerFunc(func(existing, incoming *record.Record) (*record.Record, record.FieldSet) {
		calls++
		out, fs := record.Merge(existing, incoming)
		if out != existing {
			out.Set("promoted", record.Bool(true))
			fs.Add("promoted")
		}
		return out, fs
	})

	c := NewChain(l1, l2)
	c.UseMerger(tagging)
	mustLoad(t, c, "a")
	if calls == 0 {
		t.Fatalf("promotion bypassed the chain merger")
	}
	if v, ok := mustLoad(t, l1, "a").Get("promoted"); !ok || v.String() != "true" {
		t.Fatalf("promoted record not built by the chain merger")
	}

	c.UseMerger(nil)
	mustMerge(t, l2, rec("b", "v", 2))
	mustLoad(t, c, "b")
	if _, ok := mustLoad(t, l1, "b").Get("promoted"); ok {
		t.Fatalf("nil merger did not restore the default")
	}
}

func TestChainRemoveFromEveryTier(t *testing.T) {
	ctx := context.Background()
	l1, l2 := NewMemory(MemoryOptions{}), NewMemory(MemoryOptions{})
	c := NewChain(l1, l2)
	mustMerge(t, c, rec("a", "v", 1))

	if ok, err := c.Remove(ctx, "a"); err != nil || !ok {
		t.Fatalf("Remove ok=%v err=%v", ok, err)
	}
	if l1.Len() != 0 || l2.Len() != 0 {
		t.Fatalf("tiers hold l1=%d l2=%d", l1.Len(), l2.Len())
	}
}

func TestChainMergeOntoLowerTierRecord(t *testing.T) {
	l1, l2 := NewMemory(MemoryOptions{Name: "l1"}), NewMemory(MemoryOptions{Name: "l2"})
	mustMerge(t, l2, rec("a", "v", 1))

	c := NewChain(l1, l2)
	expectFieldKeys(t, mustMerge(t, c, rec("a", "w", 2)), "a.w")
	if got := mustLoad(t, l1, "a").SortedFields(); !cmp.Equal(got, []string{"v", "w"}) {
		t.Fatalf("l1 fields=%v", got)
	}
}

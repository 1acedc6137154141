package ristretto

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	rc "github.com/dgraph-io/ristretto"
	"github.com/dgraph-io/ristretto/z"

	pr "github.com/unkn0wn-root/gqlcache/provider"
)

// Provider adapts a ristretto cache. Ristretto keeps only key hashes, so
// the provider tracks the string keys it admitted and forgets them when
// ristretto evicts or rejects the entry. Keys therefore lists only what
// this process wrote.
type Provider struct {
	c *rc.Cache

	mu   sync.Mutex
	keys map[uint64]string
}

var (
	_ pr.Provider = (*Provider)(nil)
	_ pr.Scanner  = (*Provider)(nil)
)

type Config struct {
	NumCounters int64
	MaxCost     int64
	BufferItems int64
	Metrics     bool
}

func New(cfg Config) (*Provider, error) {
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 || cfg.BufferItems <= 0 {
		return nil, errors.New("ristretto: invalid config")
	}
	p := &Provider{keys: make(map[uint64]string)}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.Metrics,
		OnEvict:     p.forget,
		OnReject:    p.forget,
	})
	if err != nil {
		return nil, err
	}
	p.c = c
	return p, nil
}

func (p *Provider) forget(it *rc.Item) {
	p.mu.Lock()
	delete(p.keys, it.Key)
	p.mu.Unlock()
}

func (p *Provider) track(key string) {
	h, _ := z.KeyToHash(key)
	p.mu.Lock()
	p.keys[h] = key
	p.mu.Unlock()
}

func (p *Provider) untrack(key string) {
	h, _ := z.KeyToHash(key)
	p.mu.Lock()
	delete(p.keys, h)
	p.mu.Unlock()
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := p.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, _ := v.([]byte)
	if b == nil {
		p.Del(context.Background(), key)
		return nil, false, nil
	}
	return b, true, nil
}

// Set blocks until ristretto has applied the write, so a record merged into
// the store is visible to the reads its publish triggers. The key is tracked
// before the write so a concurrent rejection cannot leave it behind.
func (p *Provider) Set(_ context.Context, key string, value []byte, cost int64, ttl time.Duration) (bool, error) {
	if cost <= 0 {
		cost = int64(len(value))
	}
	if ttl < 0 {
		ttl = 0
	}
	p.track(key)
	if !p.c.SetWithTTL(key, value, cost, ttl) {
		p.untrack(key)
		return false, nil
	}
	p.c.Wait()
	return true, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	p.c.Del(key)
	p.untrack(key)
	return nil
}

// Keys returns the tracked keys with prefix, sorted.
func (p *Provider) Keys(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	out := make([]string, 0, len(p.keys))
	for _, k := range p.keys {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	p.mu.Unlock()
	sort.Strings(out)
	return out, nil
}

func (p *Provider) Close(_ context.Context) error {
	p.c.Wait()
	p.c.Close()
	p.mu.Lock()
	p.keys = make(map[uint64]string)
	p.mu.Unlock()
	return nil
}

// Metrics exposes ristretto's counters when Config.Metrics is set.
func (p *Provider) Metrics() *rc.Metrics { return p.c.Metrics }

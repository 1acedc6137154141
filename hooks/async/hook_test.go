package asynchook

import (
	"sync"
	"testing"

	"github.com/unkn0wn-root/gqlcache"
)

type countHooks struct {
	gqlcache.NopHooks
	mu     sync.Mutex
	misses int
	block  chan struct{}
}

func (c *countHooks) CacheMiss(string, string) {
	if c.block != nil {
		<-c.block
	}
	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
}

func TestDeliversAndDrains(t *testing.T) {
	inner := &countHooks{}
	h := New(inner, 2, 64)
	for i := 0; i < 10; i++ {
		h.CacheMiss("Hero", "record")
	}
	h.Close()
	if inner.misses != 10 {
		t.Fatalf("delivered %d, want 10", inner.misses)
	}
	h.CacheMiss("Hero", "record")
	if h.Dropped() != 1 {
		t.Fatalf("send after Close must drop, dropped=%d", h.Dropped())
	}
}

func TestDropsWhenFull(t *testing.T) {
	inner := &countHooks{block: make(chan struct{})}
	h := New(inner, 1, 1)
	// one event held by the worker at most, one in the queue, the rest drop
	for i := 0; i < 5; i++ {
		h.CacheMiss("Hero", "record")
	}
	if h.Dropped() < 3 {
		t.Fatalf("dropped=%d, want at least 3", h.Dropped())
	}
	close(inner.block)
	h.Close()
}

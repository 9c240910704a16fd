package asynchook

import (
	"sync"
	"testing"

	"github.com/unkn0wn-root/flashguard"
)

type countHooks struct {
	flashguard.NopHooks
	mu      sync.Mutex
	outcome map[string]int
	block   chan struct{}
}

func (c *countHooks) Admission(_ int64, outcome string) {
	if c.block != nil {
		<-c.block
	}
	c.mu.Lock()
	c.outcome[outcome]++
	c.mu.Unlock()
}

func TestCloseDeliversQueued(t *testing.T) {
	inner := &countHooks{outcome: map[string]int{}}
	h := New(inner, 2, 100)
	for i := 0; i < 50; i++ {
		h.Admission(1, "ok")
	}
	h.Close()
	if inner.outcome["ok"] != 50 {
		t.Fatalf("delivered = %d, want 50", inner.outcome["ok"])
	}
	h.Admission(1, "ok") // after Close: dropped, no panic
	if h.Dropped() != 1 {
		t.Fatalf("dropped = %d, want 1", h.Dropped())
	}
}

func TestFullQueueDropsInsteadOfBlocking(t *testing.T) {
	inner := &countHooks{outcome: map[string]int{}, block: make(chan struct{})}
	h := New(inner, 1, 1)
	for i := 0; i < 10; i++ {
		h.Admission(1, "ok")
	}
	if h.Dropped() == 0 {
		t.Fatalf("expected drops with a stuck worker and a 1-slot queue")
	}
	close(inner.block)
	h.Close()
}

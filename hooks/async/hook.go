// Package asynchook moves Hooks calls off the request path.
//
// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{SelfHealEvery: 10})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	c, _ := cache.New[storage.Resource](cache.Options[storage.Resource]{
//	    Namespace: "resource",
//	    Provider:  provider,
//	    Locker:    locker,
//	    Hooks:     hooks, // or `raw` if you don't want async
//	})
//
// Events are dropped, never blocked on, when the queue is full; Dropped
// reports how many.
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/flashguard"
)

type Hooks struct {
	inner   flashguard.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex // guards closed against sends on q
	closed  bool
	dropped atomic.Uint64
}

var _ flashguard.Hooks = (*Hooks)(nil)

func New(inner flashguard.Hooks, workers, qlen int) *Hooks {
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

// Close drains queued events and stops the workers. Later events are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

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
	default:
		h.dropped.Add(1)
	}
}

func (h *Hooks) NegativeCached(k string)   { h.try(func() { h.inner.NegativeCached(k) }) }
func (h *Hooks) RebuildScheduled(k string) { h.try(func() { h.inner.RebuildScheduled(k) }) }
func (h *Hooks) RebuildSkipped(k, reason string) {
	h.try(func() { h.inner.RebuildSkipped(k, reason) })
}
func (h *Hooks) RebuildFailed(k string, err error) { h.try(func() { h.inner.RebuildFailed(k, err) }) }
func (h *Hooks) SelfHeal(k, reason string)         { h.try(func() { h.inner.SelfHeal(k, reason) }) }
func (h *Hooks) Admission(id int64, outcome string) {
	h.try(func() { h.inner.Admission(id, outcome) })
}
func (h *Hooks) OrderCommitted(id int64, dup bool) { h.try(func() { h.inner.OrderCommitted(id, dup) }) }
func (h *Hooks) OrderFailed(streamID string, err error) {
	h.try(func() { h.inner.OrderFailed(streamID, err) })
}
func (h *Hooks) PendingRecovered(n int) { h.try(func() { h.inner.PendingRecovered(n) }) }

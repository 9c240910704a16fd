package genstore

import (
	"context"
	"sync"
	"time"
)

type generation struct {
	n      uint64
	bumped time.Time
}

type LocalOptions struct {
	Sweep     time.Duration // prune interval; 0 disables the sweeper
	Retention time.Duration // generations not bumped for this long are pruned
	Now       func() time.Time
}

// Local keeps generations in process memory. A pruned key reads as 0 again,
// which can only let through a populate that has been in flight for longer
// than Retention.
type Local struct {
	mu   sync.Mutex
	gens map[string]generation
	now  func() time.Time

	quit chan struct{}
	done chan struct{}
	once sync.Once
}

var _ GenStore = (*Local)(nil)

func NewLocal(opts LocalOptions) *Local {
	s := &Local{gens: make(map[string]generation), now: opts.Now}
	if s.now == nil {
		s.now = time.Now
	}
	if opts.Sweep > 0 && opts.Retention > 0 {
		s.quit = make(chan struct{})
		s.done = make(chan struct{})
		go s.sweep(opts.Sweep, opts.Retention)
	}
	return s
}

func (s *Local) sweep(every, retention time.Duration) {
	defer close(s.done)
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			s.Prune(retention)
		case <-s.quit:
			return
		}
	}
}

func (s *Local) Snapshot(_ context.Context, k string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gens[k].n, nil
}

func (s *Local) Bump(_ context.Context, k string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.gens[k]
	g.n++
	g.bumped = s.now()
	s.gens[k] = g
	return g.n, nil
}

// Prune drops generations not bumped within retention and reports how many.
func (s *Local) Prune(retention time.Duration) int {
	if retention <= 0 {
		return 0
	}
	cutoff := s.now().Add(-retention)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, g := range s.gens {
		if g.bumped.Before(cutoff) {
			delete(s.gens, k)
			n++
		}
	}
	return n
}

// Close stops the sweeper. Safe to call more than once.
func (s *Local) Close(context.Context) error {
	s.once.Do(func() {
		if s.quit != nil {
			close(s.quit)
			<-s.done
		}
	})
	return nil
}

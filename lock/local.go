package lock

import (
	"context"
	"sync"
	"time"
)

type localLease struct {
	token string
	exp   time.Time
}

// Local is an in-process Locker with the same lease semantics as Redis.
// Suitable for a single instance and for tests.
type Local struct {
	mu     sync.Mutex
	leases map[string]localLease
	tokens *tokenSource
	now    func() time.Time
}

var _ Locker = (*Local)(nil)

func NewLocal() *Local {
	return &Local{
		leases: make(map[string]localLease),
		tokens: newTokenSource(),
		now:    time.Now,
	}
}

func (l *Local) TryAcquire(_ context.Context, resource string, lease time.Duration) (Handle, bool, error) {
	if lease <= 0 {
		return Handle{}, false, ErrInvalidLease
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	if cur, ok := l.leases[resource]; ok && cur.exp.After(now) {
		return Handle{}, false, nil
	}
	h := Handle{Resource: resource, Token: l.tokens.next(), Lease: lease}
	l.leases[resource] = localLease{token: h.Token, exp: now.Add(lease)}
	return h, true, nil
}

func (l *Local) Release(_ context.Context, h Handle) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cur, ok := l.leases[h.Resource]
	if !ok || cur.token != h.Token {
		return false, nil
	}
	delete(l.leases, h.Resource)
	return cur.exp.After(l.now()), nil
}

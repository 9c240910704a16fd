// Package lock provides lease-based mutual exclusion keyed by a resource name.
//
// Acquisition is a single "set if absent with expiry" carrying a token unique to
// the attempt; release is a single "delete if the token still matches". A holder
// that overran its lease therefore cannot release a lock re-acquired by someone
// else. TryAcquire never blocks or retries: retry policy belongs to the caller.
package lock

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidLease = errors.New("lock: lease must be > 0")

// Handle identifies one successful acquisition.
type Handle struct {
	Resource string
	Token    string
	Lease    time.Duration
}

// Locker is implemented by Redis (fleet-wide) and Local (in-process).
type Locker interface {
	// TryAcquire returns (handle, true, nil) when the lock was taken and
	// (Handle{}, false, nil) when someone else holds it.
	TryAcquire(ctx context.Context, resource string, lease time.Duration) (Handle, bool, error)
	// Release deletes the lock iff h still owns it. released=false means the
	// lease had already expired (and possibly been re-acquired).
	Release(ctx context.Context, h Handle) (released bool, err error)
}

// tokens are <process uuid>-<sequence>: unique per attempt across the fleet
// and attributable to a process when inspecting keys.
type tokenSource struct {
	prefix string
	seq    atomic.Uint64
}

func newTokenSource() *tokenSource {
	return &tokenSource{prefix: uuid.NewString()}
}

func (s *tokenSource) next() string {
	return s.prefix + "-" + strconv.FormatUint(s.seq.Add(1), 10)
}

package cache

import (
	"context"
	"errors"
	"time"

	"github.com/unkn0wn-root/flashguard"
	"github.com/unkn0wn-root/flashguard/internal/keys"
	"github.com/unkn0wn-root/flashguard/internal/wire"
	"github.com/unkn0wn-root/flashguard/lock"
)

// getLogical never calls load on the request path. Fresh entries are served
// as is; expired ones are served stale and at most one rebuild per key runs
// across all processes sharing the locker.
func (cl *Client[V]) getLogical(ctx context.Context, key string, load Loader[V], ttl time.Duration) (V, bool, error) {
	var zero V
	k := cl.storageKey(key)
	e, ok, err := cl.read(ctx, k)
	if err != nil || !ok || e.Kind == wire.KindEmpty {
		return zero, false, err
	}
	v, ok := cl.decode(ctx, k, e)
	if !ok {
		return zero, false, nil
	}
	if e.Expired(cl.now()) {
		cl.schedule(ctx, key, load, ttl)
	}
	return v, true, nil
}

func (cl *Client[V]) schedule(ctx context.Context, key string, load Loader[V], ttl time.Duration) {
	k := cl.storageKey(key)
	h, ok, err := cl.locker.TryAcquire(ctx, keys.Rebuild(cl.ns, key), cl.lease)
	if err != nil {
		cl.log.Warn("rebuild lock failed", flashguard.Fields{"key": key, "err": err})
		cl.hooks.RebuildSkipped(k, "lock_error")
		return
	}
	if !ok {
		cl.hooks.RebuildSkipped(k, "lock_held")
		return
	}

	cl.mu.RLock()
	defer cl.mu.RUnlock()
	if cl.closed {
		cl.release(h)
		cl.hooks.RebuildSkipped(k, "closed")
		return
	}
	if !cl.pool.TryGo(func() error {
		cl.rebuild(h, key, load, ttl)
		return nil
	}) {
		cl.release(h)
		cl.hooks.RebuildSkipped(k, "pool_full")
		return
	}
	cl.hooks.RebuildScheduled(k)
}

// rebuild runs on the pool detached from the request context and always
// releases h.
func (cl *Client[V]) rebuild(h lock.Handle, key string, load Loader[V], ttl time.Duration) {
	defer cl.release(h)
	ctx, cancel := context.WithTimeout(context.Background(), cl.rebuildTimeout)
	defer cancel()

	k := cl.storageKey(key)
	// a rebuild that finished before we took the lock leaves nothing to do
	if e, ok, err := cl.read(ctx, k); err == nil && ok && e.Kind == wire.KindLogical && !e.Expired(cl.now()) {
		return
	}

	res, err := cl.refreshLatest(ctx, key, load, ttl)
	switch {
	case err != nil:
		cl.hooks.RebuildFailed(k, err)
		cl.log.Error("rebuild failed", flashguard.Fields{"key": key, "err": err})
	case errors.Is(res.werr, errGenMoved):
		cl.hooks.RebuildSkipped(k, "gen_moved")
	case res.werr != nil:
		cl.hooks.RebuildFailed(k, res.werr)
		cl.log.Error("rebuild write-back failed", flashguard.Fields{"key": key, "err": res.werr})
	default:
		cl.log.Debug("rebuilt entry", flashguard.Fields{"key": key, "found": res.ok})
	}
}

// refreshLatest runs refresh again when an invalidation moved the generation
// during the load. The invalidating writer cannot rebuild while this lock is
// held, so the entry is reloaded against the new generation here. One retry
// only; a second move is reported as errGenMoved.
func (cl *Client[V]) refreshLatest(ctx context.Context, key string, load Loader[V], ttl time.Duration) (result[V], error) {
	res, err := cl.refresh(ctx, key, load, ttl)
	if err != nil || !errors.Is(res.werr, errGenMoved) {
		return res, err
	}
	cl.log.Debug("generation moved during rebuild, reloading", flashguard.Fields{"key": key})
	return cl.refresh(ctx, key, load, ttl)
}

package cache

import (
	"context"
	"errors"
	"time"

	"github.com/unkn0wn-root/flashguard"
	"github.com/unkn0wn-root/flashguard/internal/keys"
	"github.com/unkn0wn-root/flashguard/internal/wire"
)

// lookup serves k from the cache. hit=false means the caller must load.
func (cl *Client[V]) lookup(ctx context.Context, k string) (v V, found, hit bool, err error) {
	e, ok, err := cl.read(ctx, k)
	if err != nil || !ok {
		return v, false, false, err
	}
	if e.Kind == wire.KindEmpty {
		return v, false, true, nil
	}
	v, ok = cl.decode(ctx, k, e)
	if !ok {
		return v, false, false, nil
	}
	return v, true, true, nil
}

func (cl *Client[V]) getThrough(ctx context.Context, key string, load Loader[V], ttl time.Duration) (V, bool, error) {
	k := cl.storageKey(key)
	v, found, hit, err := cl.lookup(ctx, k)
	if err != nil || hit {
		return v, found, err
	}

	// coalesce concurrent misses in this process; a late flight re-reads first
	r, err, _ := cl.sf.Do(k, func() (any, error) {
		if v, found, hit, err := cl.lookup(ctx, k); err == nil && hit {
			return result[V]{v: v, ok: found}, nil
		}
		res, err := cl.refresh(ctx, key, load, ttl)
		if err != nil {
			return nil, err
		}
		cl.logWriteBack(k, res.werr)
		return res, nil
	})
	if err != nil {
		var zero V
		return zero, false, err
	}
	res := r.(result[V])
	return res.v, res.ok, nil
}

func (cl *Client[V]) getNaive(ctx context.Context, key string, load Loader[V], ttl time.Duration) (V, bool, error) {
	k := cl.storageKey(key)
	v, found, hit, err := cl.lookup(ctx, k)
	if err != nil || hit {
		return v, found, err
	}
	v, ok, err := load(ctx, key)
	if err != nil || !ok {
		return v, false, err
	}
	payload, err := cl.codec.Encode(v)
	if err != nil {
		return v, true, nil
	}
	cl.logWriteBack(k, cl.put(ctx, k, wire.EncodeValue(payload), ttl))
	return v, true, nil
}

func (cl *Client[V]) getMutex(ctx context.Context, key string, load Loader[V], ttl time.Duration) (V, bool, error) {
	k := cl.storageKey(key)
	for {
		v, found, hit, err := cl.lookup(ctx, k)
		if err != nil || hit {
			return v, found, err
		}
		h, ok, err := cl.locker.TryAcquire(ctx, keys.Rebuild(cl.ns, key), cl.lease)
		if err != nil {
			return v, false, flashguard.Transient("cache.lock", err)
		}
		if !ok {
			t := time.NewTimer(cl.retry)
			select {
			case <-ctx.Done():
				t.Stop()
				return v, false, ctx.Err()
			case <-t.C:
			}
			continue
		}

		res, err := func() (result[V], error) {
			defer cl.release(h)
			// the previous holder may have populated it
			if v, found, hit, err := cl.lookup(ctx, k); err == nil && hit {
				return result[V]{v: v, ok: found}, nil
			}
			return cl.refresh(ctx, key, load, ttl)
		}()
		if err != nil {
			var zero V
			return zero, false, err
		}
		cl.logWriteBack(k, res.werr)
		return res.v, res.ok, nil
	}
}

func (cl *Client[V]) logWriteBack(k string, err error) {
	switch {
	case err == nil:
	case errors.Is(err, errGenMoved):
		cl.hooks.RebuildSkipped(k, "gen_moved")
	default:
		cl.log.Warn("cache write-back failed", flashguard.Fields{"key": k, "err": err})
	}
}

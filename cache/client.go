package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/unkn0wn-root/flashguard"
	c "github.com/unkn0wn-root/flashguard/codec"
	gen "github.com/unkn0wn-root/flashguard/genstore"
	"github.com/unkn0wn-root/flashguard/internal/keys"
	"github.com/unkn0wn-root/flashguard/internal/wire"
	"github.com/unkn0wn-root/flashguard/lock"
	pr "github.com/unkn0wn-root/flashguard/provider"
)

const (
	defaultGenRetention = 30 * 24 * time.Hour
	defaultSweep        = time.Hour
)

// Client is a read-through cache for one record type.
// It is safe for concurrent use.
type Client[V any] struct {
	ns       string
	provider pr.Provider
	codec    c.Codec[V]
	locker   lock.Locker
	strategy Strategy
	gen      gen.GenStore
	ownsGen  bool
	log      flashguard.Logger
	hooks    flashguard.Hooks
	now      func() time.Time

	defaultTTL     time.Duration
	nullTTL        time.Duration
	lease          time.Duration
	retry          time.Duration
	rebuildTimeout time.Duration

	sf singleflight.Group

	mu     sync.RWMutex // guards closed against pool.TryGo
	closed bool
	pool   errgroup.Group
}

// result carries a load through singleflight.
type result[V any] struct {
	v    V
	ok   bool
	werr error // write-back outcome
}

func New[V any](opts Options[V]) (*Client[V], error) {
	if opts.Provider == nil {
		return nil, fmt.Errorf("cache: provider is required")
	}
	if opts.Namespace == "" {
		return nil, fmt.Errorf("cache: namespace is required")
	}
	switch opts.Strategy {
	case StrategyLogicalExpire, StrategyMutex:
		if opts.Locker == nil {
			return nil, fmt.Errorf("cache: locker is required for strategy %s", opts.Strategy)
		}
	case StrategyPassThrough, StrategyNaive:
	default:
		return nil, fmt.Errorf("cache: unknown strategy %d", opts.Strategy)
	}

	cl := &Client[V]{
		ns:       opts.Namespace,
		provider: opts.Provider,
		codec:    opts.Codec,
		locker:   opts.Locker,
		strategy: opts.Strategy,
	}

	// defaults
	if cl.codec == nil {
		cl.codec = c.JSON[V]{}
	}
	cl.log = coalesce[flashguard.Logger](opts.Logger, flashguard.NopLogger{})
	cl.hooks = coalesce[flashguard.Hooks](opts.Hooks, flashguard.NopHooks{})
	cl.defaultTTL = coalesce(opts.DefaultTTL, 30*time.Minute)
	cl.nullTTL = coalesce(opts.NullTTL, 2*time.Minute)
	cl.lease = coalesce(opts.LockLease, 10*time.Second)
	cl.retry = coalesce(opts.RetryInterval, 50*time.Millisecond)
	cl.rebuildTimeout = coalesce(opts.RebuildTimeout, cl.lease)
	cl.pool.SetLimit(coalesce(opts.RebuildWorkers, 10))

	cl.now = opts.Now
	if cl.now == nil {
		cl.now = time.Now
	}

	if opts.GenStore != nil {
		cl.gen = opts.GenStore
	} else {
		cl.gen = gen.NewLocal(gen.LocalOptions{Sweep: defaultSweep, Retention: defaultGenRetention, Now: cl.now})
		cl.ownsGen = true
	}
	return cl, nil
}

// Strategy reports the configured strategy.
func (cl *Client[V]) Strategy() Strategy { return cl.strategy }

// Get returns the cached value for key, consulting load according to the
// configured strategy. ttl is the native TTL for StrategyPassThrough,
// StrategyMutex and StrategyNaive, and the logical TTL a rebuild stamps under
// StrategyLogicalExpire. ttl=0 uses DefaultTTL.
func (cl *Client[V]) Get(ctx context.Context, key string, load Loader[V], ttl time.Duration) (V, bool, error) {
	if ttl <= 0 {
		ttl = cl.defaultTTL
	}
	switch cl.strategy {
	case StrategyLogicalExpire:
		return cl.getLogical(ctx, key, load, ttl)
	case StrategyMutex:
		return cl.getMutex(ctx, key, load, ttl)
	case StrategyNaive:
		return cl.getNaive(ctx, key, load, ttl)
	default:
		return cl.getThrough(ctx, key, load, ttl)
	}
}

// Set writes value with a native TTL. ttl=0 uses DefaultTTL.
func (cl *Client[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = cl.defaultTTL
	}
	payload, err := cl.codec.Encode(value)
	if err != nil {
		return err
	}
	return cl.put(ctx, cl.storageKey(key), wire.EncodeValue(payload), ttl)
}

// SetLogical writes value wrapped with ExpireAt = now + ttl and no native TTL.
// Used to pre-warm keys served under StrategyLogicalExpire.
func (cl *Client[V]) SetLogical(ctx context.Context, key string, value V, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = cl.defaultTTL
	}
	payload, err := cl.codec.Encode(value)
	if err != nil {
		return err
	}
	return cl.put(ctx, cl.storageKey(key), wire.EncodeLogical(cl.now().Add(ttl), payload), 0)
}

// Invalidate bumps the generation of key and deletes its entry. Any load that
// snapshotted the old generation will not write back.
func (cl *Client[V]) Invalidate(ctx context.Context, key string) error {
	k := cl.storageKey(key)
	newGen, bumpErr := cl.gen.Bump(ctx, k)
	delErr := cl.provider.Del(ctx, k)
	if bumpErr != nil || delErr != nil {
		cl.log.Warn("invalidate failed", flashguard.Fields{"key": key, "bump_err": bumpErr, "del_err": delErr})
		return &InvalidateError{Key: key, BumpErr: bumpErr, DelErr: delErr}
	}
	cl.log.Debug("invalidated key (bumped gen + deleted entry)", flashguard.Fields{"key": key, "newGen": newGen})
	return nil
}

// Rebuild loads key and writes it back synchronously while holding the
// rebuild lock. It returns flashguard.ErrLockContention when another rebuild
// holds the lock.
func (cl *Client[V]) Rebuild(ctx context.Context, key string, load Loader[V], ttl time.Duration) error {
	if ttl <= 0 {
		ttl = cl.defaultTTL
	}
	if cl.locker == nil {
		return cl.rebuildErr(cl.refresh(ctx, key, load, ttl))
	}
	h, ok, err := cl.locker.TryAcquire(ctx, keys.Rebuild(cl.ns, key), cl.lease)
	if err != nil {
		return flashguard.Transient("cache.rebuild", err)
	}
	if !ok {
		return flashguard.ErrLockContention
	}
	defer cl.release(h)
	return cl.rebuildErr(cl.refreshLatest(ctx, key, load, ttl))
}

func (cl *Client[V]) rebuildErr(res result[V], err error) error {
	if err != nil {
		return err
	}
	if errors.Is(res.werr, errGenMoved) {
		return nil
	}
	return res.werr
}

// Close stops accepting rebuilds and waits for in-flight ones, then closes
// the generation store (when owned) and the provider.
func (cl *Client[V]) Close(ctx context.Context) error {
	cl.mu.Lock()
	cl.closed = true
	cl.mu.Unlock()

	done := make(chan struct{})
	go func() {
		_ = cl.pool.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if cl.ownsGen {
		_ = cl.gen.Close(ctx)
	}
	return cl.provider.Close(ctx)
}

func (cl *Client[V]) storageKey(key string) string { return keys.Cache(cl.ns, key) }

// read fetches and decodes the envelope at k. Corrupt envelopes are deleted
// and reported as a miss.
func (cl *Client[V]) read(ctx context.Context, k string) (wire.Entry, bool, error) {
	raw, ok, err := cl.provider.Get(ctx, k)
	if err != nil {
		return wire.Entry{}, false, flashguard.Transient("cache.get", err)
	}
	if !ok {
		return wire.Entry{}, false, nil
	}
	e, err := wire.Decode(raw)
	if err != nil {
		cl.heal(ctx, k, "corrupt")
		return wire.Entry{}, false, nil
	}
	return e, true, nil
}

// decode turns a value-bearing envelope into V, deleting it when the payload
// does not decode.
func (cl *Client[V]) decode(ctx context.Context, k string, e wire.Entry) (V, bool) {
	v, err := cl.codec.Decode(e.Payload)
	if err != nil {
		cl.heal(ctx, k, "value_decode")
		var zero V
		return zero, false
	}
	return v, true
}

func (cl *Client[V]) heal(ctx context.Context, k, reason string) {
	_ = cl.provider.Del(ctx, k)
	cl.hooks.SelfHeal(k, reason)
	cl.log.Warn("self-healed cache entry", flashguard.Fields{"key": k, "reason": reason})
}

func (cl *Client[V]) snapshot(ctx context.Context, k string) (uint64, error) {
	g, err := cl.gen.Snapshot(ctx, k)
	if err != nil {
		return 0, flashguard.Transient("cache.snapshot", err)
	}
	return g, nil
}

var errGenMoved = errors.New("cache: generation moved")

// putIfCurrent writes b only while the generation of k still equals obs.
func (cl *Client[V]) putIfCurrent(ctx context.Context, k string, obs uint64, b []byte, ttl time.Duration) error {
	cur, err := cl.snapshot(ctx, k)
	if err != nil {
		return err
	}
	if cur != obs {
		cl.log.Debug("write-back skipped (gen mismatch)", flashguard.Fields{"key": k, "obs": obs, "cur": cur})
		return errGenMoved
	}
	return cl.put(ctx, k, b, ttl)
}

func (cl *Client[V]) put(ctx context.Context, k string, b []byte, ttl time.Duration) error {
	ok, err := cl.provider.Set(ctx, k, b, ttl)
	if err != nil {
		return flashguard.Transient("cache.set", err)
	}
	if !ok {
		cl.log.Debug("write rejected by provider (pressure)", flashguard.Fields{"key": k})
	}
	return nil
}

func (cl *Client[V]) release(h lock.Handle) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := cl.locker.Release(ctx, h); err != nil {
		cl.log.Warn("lock release failed", flashguard.Fields{"resource": h.Resource, "err": err})
	}
}

// refresh loads key and writes the envelope the strategy serves, guarded by
// the generation snapshot taken before the load. A failed load is returned as
// err; a failed or skipped write-back is carried in res.werr and never hides
// the loaded value.
func (cl *Client[V]) refresh(ctx context.Context, key string, load Loader[V], ttl time.Duration) (res result[V], err error) {
	k := cl.storageKey(key)
	obs, serr := cl.snapshot(ctx, k)
	v, ok, err := load(ctx, key)
	if err != nil {
		return res, err
	}
	res = result[V]{v: v, ok: ok}
	if serr != nil {
		res.werr = serr
		return res, nil
	}

	var b []byte
	ettl := ttl
	switch {
	case !ok && cl.strategy == StrategyLogicalExpire:
		// record is gone; readers see absent from now on
		if cur, err := cl.snapshot(ctx, k); err != nil {
			res.werr = err
		} else if cur != obs {
			res.werr = errGenMoved
		} else if err := cl.provider.Del(ctx, k); err != nil {
			res.werr = flashguard.Transient("cache.del", err)
		}
		return res, nil
	case !ok:
		b, ettl = wire.EncodeEmpty(), cl.nullTTL
	default:
		payload, err := cl.codec.Encode(v)
		if err != nil {
			res.werr = err
			return res, nil
		}
		if cl.strategy == StrategyLogicalExpire {
			b, ettl = wire.EncodeLogical(cl.now().Add(ttl), payload), 0
		} else {
			b = wire.EncodeValue(payload)
		}
	}

	res.werr = cl.putIfCurrent(ctx, k, obs, b, ettl)
	if res.werr == nil && !ok {
		cl.hooks.NegativeCached(k)
	}
	return res, nil
}

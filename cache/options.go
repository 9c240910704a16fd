package cache

import (
	"context"
	"time"

	"github.com/unkn0wn-root/flashguard"
	c "github.com/unkn0wn-root/flashguard/codec"
	gen "github.com/unkn0wn-root/flashguard/genstore"
	"github.com/unkn0wn-root/flashguard/lock"
	pr "github.com/unkn0wn-root/flashguard/provider"
)

// Strategy selects how Get behaves on a miss or an expired entry.
type Strategy int

const (
	// StrategyLogicalExpire serves wrapped entries that never expire natively.
	// Expired entries are returned stale while one rebuild per key runs in the
	// background under the distributed lock. A cold miss returns absent.
	StrategyLogicalExpire Strategy = iota
	// StrategyPassThrough loads on miss and caches absent results as a
	// short-lived negative marker.
	StrategyPassThrough
	// StrategyMutex is StrategyPassThrough where the load on miss runs under the
	// distributed lock; losers sleep RetryInterval and re-read.
	StrategyMutex
	// StrategyNaive loads on every miss with no negative caching and no
	// coalescing. Kept for comparison in tests.
	StrategyNaive
)

func (s Strategy) String() string {
	switch s {
	case StrategyLogicalExpire:
		return "logical_expire"
	case StrategyPassThrough:
		return "pass_through"
	case StrategyMutex:
		return "mutex"
	case StrategyNaive:
		return "naive"
	default:
		return "unknown"
	}
}

// Loader reads the durable record behind key. ok=false means no record exists.
type Loader[V any] func(ctx context.Context, key string) (v V, ok bool, err error)

// Options tune the cache client.
// Namespace and Provider are required; Locker is required for
// StrategyLogicalExpire and StrategyMutex. Others have sensible defaults.
type Options[V any] struct {
	// Required
	Namespace string // e.g. "shop", "resource"
	Provider  pr.Provider

	Locker   lock.Locker
	Strategy Strategy
	Codec    c.Codec[V]   // nil => JSON
	GenStore gen.GenStore // nil => in-process gen.Local
	Logger   flashguard.Logger
	Hooks    flashguard.Hooks

	DefaultTTL     time.Duration // value TTL (native or logical) when Get/Set pass 0; 0 => 30m
	NullTTL        time.Duration // negative marker TTL; 0 => 2m
	LockLease      time.Duration // rebuild/mutex lock lease; 0 => 10s
	RetryInterval  time.Duration // StrategyMutex contention sleep; 0 => 50ms
	RebuildWorkers int           // bounded rebuild pool; 0 => 10
	RebuildTimeout time.Duration // per async rebuild; 0 => LockLease

	Now func() time.Time // nil => time.Now
}

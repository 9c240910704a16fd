// Package idgen issues 64-bit order ids that increase per namespace and are
// unique across processes sharing one Redis.
//
// An id is (seconds since 2022-01-01T00:00:00Z) << 32 | n, where n is a daily
// per-namespace counter. Ids sort by issue second; within a second they sort
// by counter.
package idgen

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Epoch is the zero of the timestamp half of an id.
var Epoch = time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)

const counterBits = 32

var ErrNilClient = errors.New("idgen: nil client")

// Issuer hands out ids for a namespace such as "order".
type Issuer interface {
	NextID(ctx context.Context, namespace string) (int64, error)
}

func compose(now time.Time, n int64) int64 {
	return int64(now.Sub(Epoch)/time.Second)<<counterBits | n
}

// counterKey is the daily counter; a new day starts at 1 again.
func counterKey(namespace string, now time.Time) string {
	return "icr:" + namespace + ":" + now.UTC().Format("2006:01:02")
}

// Redis counts with INCR so every process sharing the server draws from the
// same sequence.
type Redis struct {
	rdb       redis.UniversalClient
	now       func() time.Time
	retention time.Duration
}

var _ Issuer = (*Redis)(nil)

func NewRedis(client redis.UniversalClient) (*Redis, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	return &Redis{rdb: client, now: time.Now, retention: 48 * time.Hour}, nil
}

func (g *Redis) NextID(ctx context.Context, namespace string) (int64, error) {
	now := g.now()
	key := counterKey(namespace, now)

	pipe := g.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, g.retention)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("idgen: incr %s: %w", key, err)
	}
	return compose(now, incr.Val()), nil
}

// Local is a Redis-free issuer for a single process.
type Local struct {
	mu   sync.Mutex
	now  func() time.Time
	days map[string]int64 // counterKey -> last n
}

var _ Issuer = (*Local)(nil)

func NewLocal() *Local {
	return &Local{now: time.Now, days: make(map[string]int64)}
}

func (g *Local) NextID(_ context.Context, namespace string) (int64, error) {
	now := g.now()
	key := counterKey(namespace, now)

	g.mu.Lock()
	g.days[key]++
	n := g.days[key]
	g.mu.Unlock()
	return compose(now, n), nil
}

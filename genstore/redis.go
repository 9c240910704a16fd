package genstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/flashguard/internal/keys"
)

var ErrNilClient = errors.New("genstore: redis client is required")

// Redis shares generations across every instance using the same Redis.
// Generation keys are derived from the cache storage key, so the cache
// namespace carries over.
type Redis struct {
	rdb redis.UniversalClient
	ttl time.Duration // 0 => generation keys never expire
}

var _ GenStore = (*Redis)(nil)

// NewRedis returns a Redis-backed store. A positive ttl bounds how long an
// idle generation key lives; it should exceed the longest cache TTL in use.
func NewRedis(client redis.UniversalClient, ttl time.Duration) (*Redis, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	return &Redis{rdb: client, ttl: ttl}, nil
}

func (s *Redis) Snapshot(ctx context.Context, storageKey string) (uint64, error) {
	n, err := s.rdb.Get(ctx, keys.Gen(storageKey)).Uint64()
	switch {
	case errors.Is(err, redis.Nil):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("genstore: snapshot %s: %w", storageKey, err)
	}
	return n, nil
}

func (s *Redis) Bump(ctx context.Context, storageKey string) (uint64, error) {
	k := keys.Gen(storageKey)
	var incr *redis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		if s.ttl > 0 {
			p.Expire(ctx, k, s.ttl)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("genstore: bump %s: %w", storageKey, err)
	}
	return uint64(incr.Val()), nil
}

// Close is a no-op; the client belongs to the caller.
func (s *Redis) Close(context.Context) error { return nil }

package lock

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/flashguard/internal/keys"
)

var releaseScript = redis.NewScript(`
if redis.call('get', KEYS[1]) == ARGV[1] then
	return redis.call('del', KEYS[1])
end
return 0
`)

// Redis is the fleet-wide Locker. Keys are lock:<resource>.
type Redis struct {
	rdb    redis.UniversalClient
	tokens *tokenSource
}

var _ Locker = (*Redis)(nil)

func NewRedis(client redis.UniversalClient) (*Redis, error) {
	if client == nil {
		return nil, errors.New("lock: redis client is required")
	}
	return &Redis{rdb: client, tokens: newTokenSource()}, nil
}

func (l *Redis) TryAcquire(ctx context.Context, resource string, lease time.Duration) (Handle, bool, error) {
	if lease <= 0 {
		return Handle{}, false, ErrInvalidLease
	}
	h := Handle{Resource: resource, Token: l.tokens.next(), Lease: lease}
	ok, err := l.rdb.SetNX(ctx, keys.Lock(resource), h.Token, lease).Result()
	if err != nil {
		return Handle{}, false, err
	}
	if !ok {
		return Handle{}, false, nil
	}
	return h, true, nil
}

func (l *Redis) Release(ctx context.Context, h Handle) (bool, error) {
	n, err := releaseScript.Run(ctx, l.rdb, []string{keys.Lock(h.Resource)}, h.Token).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Package redis is the shared cache provider. Every instance pointed at the
// same Redis sees the same entries, which is what makes negative markers and
// logical expiry hold across a fleet.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	pr "github.com/unkn0wn-root/flashguard/provider"
)

var ErrNilClient = errors.New("redis provider: nil client")

type Config struct {
	Client goredis.UniversalClient
	// Prefix is prepended to every key, e.g. "tenant-a:". Empty by default.
	Prefix string
	// OwnsClient makes Close close Client as well.
	OwnsClient bool
}

type Provider struct {
	rdb    goredis.UniversalClient
	prefix string
	owns   bool
	once   sync.Once
}

var _ pr.Provider = (*Provider)(nil)

func New(cfg Config) (*Provider, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	return &Provider{rdb: cfg.Client, prefix: cfg.Prefix, owns: cfg.OwnsClient}, nil
}

func (p *Provider) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := p.rdb.Get(ctx, p.prefix+key).Bytes()
	switch {
	case errors.Is(err, goredis.Nil):
		return nil, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("redis provider: get %s: %w", key, err)
	}
	return b, true, nil
}

// Set writes with SET key value [PX ttl]. ttl <= 0 stores the key without
// expiry and clears any TTL left on it; logically expiring entries rely on that.
func (p *Provider) Set(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if ttl < 0 {
		ttl = 0
	}
	if err := p.rdb.Set(ctx, p.prefix+key, value, ttl).Err(); err != nil {
		return false, fmt.Errorf("redis provider: set %s: %w", key, err)
	}
	return true, nil
}

func (p *Provider) Del(ctx context.Context, key string) error {
	if err := p.rdb.Del(ctx, p.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis provider: del %s: %w", key, err)
	}
	return nil
}

// Close closes the client only when the provider owns it.
func (p *Provider) Close(context.Context) error {
	var err error
	p.once.Do(func() {
		if p.owns {
			err = p.rdb.Close()
		}
	})
	return err
}

package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/flashguard/cache"
	c "github.com/unkn0wn-root/flashguard/codec"
	pr "github.com/unkn0wn-root/flashguard/provider"
	bp "github.com/unkn0wn-root/flashguard/provider/bigcache"
	rdp "github.com/unkn0wn-root/flashguard/provider/redis"
	rp "github.com/unkn0wn-root/flashguard/provider/ristretto"
	"github.com/unkn0wn-root/flashguard/seckill"
	"github.com/unkn0wn-root/flashguard/storage"
)

const maxEntryBytes = 1 << 20

// durable is everything the binary needs from the relational side.
type durable interface {
	storage.Resources
	storage.Stocks
	seckill.Store
}

func newProvider(ctx context.Context, cfg config, rdb redis.UniversalClient) (pr.Provider, error) {
	switch cfg.CacheProvider {
	case "redis":
		return rdp.New(rdp.Config{Client: rdb})
	case "ristretto":
		return rp.New(rp.Config{
			NumCounters: 1e6,
			MaxCost:     256 << 20,
			BufferItems: 64,
			Metrics:     true,
		})
	case "bigcache":
		return bp.New(ctx, bp.Config{
			LifeWindow:         cfg.CacheTTL,
			MaxEntrySize:       4 << 10,
			HardMaxCacheSizeMB: 256,
		})
	default:
		return nil, fmt.Errorf("unknown CACHE_PROVIDER %q", cfg.CacheProvider)
	}
}

func newCodec(name string) (c.Codec[storage.Resource], error) {
	inner, err := c.ByName[storage.Resource](name)
	if err != nil {
		return nil, err
	}
	return c.Limit[storage.Resource]{Inner: inner, MaxDecode: maxEntryBytes}, nil
}

func parseStrategy(name string) (cache.Strategy, error) {
	switch name {
	case "logical":
		return cache.StrategyLogicalExpire, nil
	case "passthrough":
		return cache.StrategyPassThrough, nil
	case "mutex":
		return cache.StrategyMutex, nil
	default:
		return 0, fmt.Errorf("unknown CACHE_STRATEGY %q", name)
	}
}

func resourceLoader(store storage.Resources) cache.Loader[storage.Resource] {
	return func(ctx context.Context, key string) (storage.Resource, bool, error) {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return storage.Resource{}, false, nil
		}
		return store.GetByID(ctx, id)
	}
}

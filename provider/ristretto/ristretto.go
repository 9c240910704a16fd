// Package ristretto is an in-process cache provider for single-instance
// deployments. Entries are admitted by TinyLFU and may be refused under
// pressure, in which case Set reports ok=false.
package ristretto

import (
	"context"
	"fmt"
	"time"

	rc "github.com/dgraph-io/ristretto"

	pr "github.com/unkn0wn-root/flashguard/provider"
)

type Config struct {
	NumCounters int64 // ~10x the expected number of entries
	MaxCost     int64 // bytes; an entry costs len(key)+len(value)
	BufferItems int64
	Metrics     bool
}

// DefaultConfig sizes the cache for roughly maxBytes of entries averaging
// avgEntry bytes each.
func DefaultConfig(maxBytes, avgEntry int64) Config {
	if avgEntry <= 0 {
		avgEntry = 512
	}
	return Config{
		NumCounters: 10 * (maxBytes / avgEntry),
		MaxCost:     maxBytes,
		BufferItems: 64,
	}
}

type Provider struct {
	c *rc.Cache
}

var _ pr.Provider = (*Provider)(nil)

func New(cfg Config) (*Provider, error) {
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 || cfg.BufferItems <= 0 {
		return nil, fmt.Errorf("ristretto: NumCounters, MaxCost and BufferItems must be positive")
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("ristretto: %w", err)
	}
	return &Provider{c: c}, nil
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := p.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, ok := v.([]byte)
	if !ok {
		p.c.Del(key)
		return nil, false, nil
	}
	return b, true, nil
}

// Set waits for the buffered write to apply, so a Get right after observes it.
// ttl <= 0 stores without expiry.
func (p *Provider) Set(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if ttl < 0 {
		ttl = 0
	}
	buf := make([]byte, len(value))
	copy(buf, value)
	ok := p.c.SetWithTTL(key, buf, int64(len(key)+len(value)), ttl)
	p.c.Wait()
	return ok, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	p.c.Del(key)
	return nil
}

func (p *Provider) Close(context.Context) error {
	p.c.Close()
	return nil
}

// Metrics is nil unless Config.Metrics was set.
func (p *Provider) Metrics() *rc.Metrics { return p.c.Metrics }

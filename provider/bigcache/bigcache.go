// Package bigcache is an in-process cache provider with one lifetime for all
// entries.
//
// BigCache has no per-entry TTL. Every entry, negative markers and logically
// expiring entries included, lives for LifeWindow. Size LifeWindow well above
// the logical TTL so wrapped entries are rebuilt before they are evicted.
package bigcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	bc "github.com/allegro/bigcache/v3"

	pr "github.com/unkn0wn-root/flashguard/provider"
)

type Config struct {
	LifeWindow         time.Duration // required
	CleanWindow        time.Duration // 0 => LifeWindow/4
	MaxEntriesInWindow int
	MaxEntrySize       int
	HardMaxCacheSizeMB int // 0 => unbounded
}

type Provider struct {
	c *bc.BigCache
}

var _ pr.Provider = (*Provider)(nil)

func New(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.LifeWindow <= 0 {
		return nil, errors.New("bigcache: LifeWindow is required")
	}
	conf := bc.DefaultConfig(cfg.LifeWindow)
	conf.Verbose = false
	conf.CleanWindow = cfg.CleanWindow
	if conf.CleanWindow <= 0 {
		conf.CleanWindow = cfg.LifeWindow / 4
	}
	if cfg.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB

	c, err := bc.New(ctx, conf)
	if err != nil {
		return nil, fmt.Errorf("bigcache: %w", err)
	}
	return &Provider{c: c}, nil
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	b, err := p.c.Get(key)
	switch {
	case errors.Is(err, bc.ErrEntryNotFound):
		return nil, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("bigcache: get %s: %w", key, err)
	}
	return b, true, nil
}

// Set ignores ttl; see the package comment.
func (p *Provider) Set(_ context.Context, key string, value []byte, _ time.Duration) (bool, error) {
	if err := p.c.Set(key, value); err != nil {
		return false, fmt.Errorf("bigcache: set %s: %w", key, err)
	}
	return true, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	if err := p.c.Delete(key); err != nil && !errors.Is(err, bc.ErrEntryNotFound) {
		return fmt.Errorf("bigcache: del %s: %w", key, err)
	}
	return nil
}

func (p *Provider) Close(context.Context) error { return p.c.Close() }

// Len reports the number of live entries.
func (p *Provider) Len() int { return p.c.Len() }

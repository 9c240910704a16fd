// Package provider defines the byte store behind the cache client.
//
// A provider must hand back exactly the bytes it was given: the cache frames
// plain values, negative markers and logically expiring entries itself (see
// internal/wire) and treats anything it cannot parse as corruption.
package provider

import (
	"context"
	"time"
)

// Provider is a byte store with optional native TTL. Safe for concurrent use.
// Only a shared provider (redis) gives fleet-wide stampede protection; the
// in-process ones suit a single instance.
type Provider interface {
	// Get returns (nil, false, nil) on a miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value. ttl <= 0 means no native expiry. ok=false reports a
	// write the store refused under memory pressure.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) (ok bool, err error)
	// Del removes key. Deleting a missing key is not an error.
	Del(ctx context.Context, key string) error
	Close(ctx context.Context) error
}

// Package genstore keeps a generation counter per cache key.
//
// The cache client snapshots a key's generation before calling a loader and
// writes the loaded value back only if the generation is unchanged. Invalidate
// bumps it, so a rebuild that raced a durable update cannot resurrect stale data.
package genstore

import "context"

// GenStore is where generations live. Local serves one process; Redis is
// required once several instances share a cache and invalidate each other.
type GenStore interface {
	// Snapshot returns the current generation of storageKey; missing => 0.
	Snapshot(ctx context.Context, storageKey string) (uint64, error)
	// Bump increments the generation and returns the new value.
	Bump(ctx context.Context, storageKey string) (uint64, error)
	Close(context.Context) error
}

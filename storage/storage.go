// Package storage holds the durable records served through the cache and the
// repository contracts the service binary wires together.
package storage

import (
	"context"
	"time"

	"github.com/unkn0wn-root/flashguard/seckill"
)

// Resource is the read-mostly record served through the cache.
type Resource struct {
	ID        int64     `json:"id" msgpack:"id" cbor:"1,keyasint"`
	Name      string    `json:"name" msgpack:"name" cbor:"2,keyasint"`
	Address   string    `json:"address" msgpack:"address" cbor:"3,keyasint"`
	Score     int       `json:"score" msgpack:"score" cbor:"4,keyasint"`
	UpdatedAt time.Time `json:"updated_at" msgpack:"updated_at" cbor:"5,keyasint"`
}

// Resources is the durable side of the cached read path.
type Resources interface {
	GetByID(ctx context.Context, id int64) (Resource, bool, error)
	// Save inserts r and returns its id.
	Save(ctx context.Context, r Resource) (int64, error)
	// Update overwrites an existing record; false when no row matched.
	Update(ctx context.Context, r Resource) (bool, error)
}

// Stocks holds the durable stock mirrored into the admission store.
type Stocks interface {
	GetStock(ctx context.Context, resourceID int64) (seckill.ResourceStock, bool, error)
	SaveStock(ctx context.Context, s seckill.ResourceStock) error
}

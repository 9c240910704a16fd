package seckill

import (
	"context"
	"errors"
)

// ErrOrderExists is returned by Tx.InsertOrder or Tx.Commit when the
// (requester, resource) pair or the order id is already taken.
var ErrOrderExists = errors.New("seckill: order already exists")

// Store opens units of work against durable storage.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
}

// Tx is one unit of work. Exactly one of Commit or Rollback ends it;
// Rollback after Commit is a no-op.
type Tx interface {
	OrderExists(ctx context.Context, requesterID, resourceID int64) (bool, error)
	// DecrementStock subtracts one unit when remaining > 0 and reports whether it did.
	DecrementStock(ctx context.Context, resourceID int64) (bool, error)
	InsertOrder(ctx context.Context, o Order) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Notifier is told about every newly committed order.
type Notifier interface {
	OrderCommitted(ctx context.Context, o Order) error
}

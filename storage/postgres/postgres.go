// Package postgres is the durable store over pgx: resource records for the
// cached read path, resource stock, and the orders committed by the worker.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/unkn0wn-root/flashguard/seckill"
	"github.com/unkn0wn-root/flashguard/storage"
)

type Store struct {
	pool *pgxpool.Pool
}

var (
	_ seckill.Store     = (*Store)(nil)
	_ storage.Resources = (*Store)(nil)
	_ storage.Stocks    = (*Store)(nil)
)

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) GetByID(ctx context.Context, id int64) (storage.Resource, bool, error) {
	const query = `SELECT id, name, address, score, updated_at FROM resources WHERE id = $1`

	var r storage.Resource
	err := s.pool.QueryRow(ctx, query, id).Scan(&r.ID, &r.Name, &r.Address, &r.Score, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.Resource{}, false, nil
	}
	if err != nil {
		return storage.Resource{}, false, fmt.Errorf("get resource: %w", err)
	}
	return r, true, nil
}

func (s *Store) Save(ctx context.Context, r storage.Resource) (int64, error) {
	const stmt = `
INSERT INTO resources (name, address, score, updated_at)
VALUES ($1, $2, $3, $4)
RETURNING id`

	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = time.Now()
	}
	var id int64
	if err := s.pool.QueryRow(ctx, stmt, r.Name, r.Address, r.Score, r.UpdatedAt).Scan(&id); err != nil {
		return 0, fmt.Errorf("save resource: %w", err)
	}
	return id, nil
}

func (s *Store) Update(ctx context.Context, r storage.Resource) (bool, error) {
	const stmt = `
UPDATE resources SET name = $2, address = $3, score = $4, updated_at = $5
WHERE id = $1`

	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = time.Now()
	}
	tag, err := s.pool.Exec(ctx, stmt, r.ID, r.Name, r.Address, r.Score, r.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("update resource: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) GetStock(ctx context.Context, resourceID int64) (seckill.ResourceStock, bool, error) {
	const query = `SELECT resource_id, remaining, begin_at, end_at FROM resource_stock WHERE resource_id = $1`

	var (
		st         seckill.ResourceStock
		begin, end *time.Time
	)
	err := s.pool.QueryRow(ctx, query, resourceID).Scan(&st.ResourceID, &st.Remaining, &begin, &end)
	if errors.Is(err, pgx.ErrNoRows) {
		return seckill.ResourceStock{}, false, nil
	}
	if err != nil {
		return seckill.ResourceStock{}, false, fmt.Errorf("get stock: %w", err)
	}
	if begin != nil {
		st.BeginAt = *begin
	}
	if end != nil {
		st.EndAt = *end
	}
	return st, true, nil
}

func (s *Store) SaveStock(ctx context.Context, st seckill.ResourceStock) error {
	const stmt = `
INSERT INTO resource_stock (resource_id, remaining, begin_at, end_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (resource_id) DO UPDATE
SET remaining = EXCLUDED.remaining, begin_at = EXCLUDED.begin_at, end_at = EXCLUDED.end_at`

	if _, err := s.pool.Exec(ctx, stmt, st.ResourceID, st.Remaining, nullTime(st.BeginAt), nullTime(st.EndAt)); err != nil {
		return fmt.Errorf("save stock: %w", err)
	}
	return nil
}

func (s *Store) Begin(ctx context.Context) (seckill.Tx, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	return &orderTx{tx: tx}, nil
}

type orderTx struct {
	tx pgx.Tx
}

func (t *orderTx) OrderExists(ctx context.Context, requesterID, resourceID int64) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM orders WHERE requester_id = $1 AND resource_id = $2)`

	var exists bool
	if err := t.tx.QueryRow(ctx, query, requesterID, resourceID).Scan(&exists); err != nil {
		return false, fmt.Errorf("order exists: %w", err)
	}
	return exists, nil
}

func (t *orderTx) DecrementStock(ctx context.Context, resourceID int64) (bool, error) {
	const stmt = `UPDATE resource_stock SET remaining = remaining - 1 WHERE resource_id = $1 AND remaining > 0`

	tag, err := t.tx.Exec(ctx, stmt, resourceID)
	if err != nil {
		return false, fmt.Errorf("decrement stock: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *orderTx) InsertOrder(ctx context.Context, o seckill.Order) error {
	const stmt = `
INSERT INTO orders (id, requester_id, resource_id, created_at)
VALUES ($1, $2, $3, $4)`

	if _, err := t.tx.Exec(ctx, stmt, o.ID, o.RequesterID, o.ResourceID, o.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return seckill.ErrOrderExists
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (t *orderTx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		if isUniqueViolation(err) {
			return seckill.ErrOrderExists
		}
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (t *orderTx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

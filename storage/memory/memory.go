// Package memory is an in-process durable store for tests and single-binary
// demos. Transactions stage their writes and validate them again at commit.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/unkn0wn-root/flashguard/seckill"
	"github.com/unkn0wn-root/flashguard/storage"
)

var (
	ErrTxDone   = errors.New("memory: transaction already finished")
	ErrConflict = errors.New("memory: stock changed since the transaction read it")
)

type pair struct{ requester, resource int64 }

type Store struct {
	mu        sync.Mutex
	nextID    int64
	resources map[int64]storage.Resource
	stocks    map[int64]seckill.ResourceStock
	orders    map[int64]seckill.Order
	pairs     map[pair]int64 // -> order id
}

var (
	_ seckill.Store     = (*Store)(nil)
	_ storage.Resources = (*Store)(nil)
	_ storage.Stocks    = (*Store)(nil)
)

func New() *Store {
	return &Store{
		resources: make(map[int64]storage.Resource),
		stocks:    make(map[int64]seckill.ResourceStock),
		orders:    make(map[int64]seckill.Order),
		pairs:     make(map[pair]int64),
	}
}

func (s *Store) GetByID(_ context.Context, id int64) (storage.Resource, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.resources[id]
	return r, ok, nil
}

func (s *Store) Save(_ context.Context, r storage.Resource) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == 0 {
		s.nextID++
		r.ID = s.nextID
	} else if r.ID > s.nextID {
		s.nextID = r.ID
	}
	s.resources[r.ID] = r
	return r.ID, nil
}

func (s *Store) Update(_ context.Context, r storage.Resource) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.resources[r.ID]; !ok {
		return false, nil
	}
	s.resources[r.ID] = r
	return true, nil
}

func (s *Store) GetStock(_ context.Context, resourceID int64) (seckill.ResourceStock, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stocks[resourceID]
	return st, ok, nil
}

func (s *Store) SaveStock(_ context.Context, st seckill.ResourceStock) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stocks[st.ResourceID] = st
	return nil
}

// Orders returns the committed orders of resourceID.
func (s *Store) Orders(resourceID int64) []seckill.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []seckill.Order
	for _, o := range s.orders {
		if o.ResourceID == resourceID {
			out = append(out, o)
		}
	}
	return out
}

func (s *Store) Begin(context.Context) (seckill.Tx, error) {
	return &tx{s: s, decs: make(map[int64]int)}, nil
}

type tx struct {
	s      *Store
	done   bool
	decs   map[int64]int // resource -> staged decrements
	orders []seckill.Order
}

func (t *tx) OrderExists(_ context.Context, requesterID, resourceID int64) (bool, error) {
	if t.done {
		return false, ErrTxDone
	}
	for _, o := range t.orders {
		if o.RequesterID == requesterID && o.ResourceID == resourceID {
			return true, nil
		}
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	_, ok := t.s.pairs[pair{requesterID, resourceID}]
	return ok, nil
}

func (t *tx) DecrementStock(_ context.Context, resourceID int64) (bool, error) {
	if t.done {
		return false, ErrTxDone
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	st, ok := t.s.stocks[resourceID]
	if !ok || st.Remaining-t.decs[resourceID] <= 0 {
		return false, nil
	}
	t.decs[resourceID]++
	return true, nil
}

func (t *tx) InsertOrder(_ context.Context, o seckill.Order) error {
	if t.done {
		return ErrTxDone
	}
	for _, staged := range t.orders {
		if staged.ID == o.ID || (staged.RequesterID == o.RequesterID && staged.ResourceID == o.ResourceID) {
			return seckill.ErrOrderExists
		}
	}
	t.orders = append(t.orders, o)
	return nil
}

// Commit applies the staged writes atomically or none of them.
func (t *tx) Commit(context.Context) error {
	if t.done {
		return ErrTxDone
	}
	t.done = true

	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for id, n := range t.decs {
		if t.s.stocks[id].Remaining < n {
			return ErrConflict
		}
	}
	for _, o := range t.orders {
		if _, ok := t.s.orders[o.ID]; ok {
			return seckill.ErrOrderExists
		}
		if _, ok := t.s.pairs[pair{o.RequesterID, o.ResourceID}]; ok {
			return seckill.ErrOrderExists
		}
	}

	for id, n := range t.decs {
		st := t.s.stocks[id]
		st.Remaining -= n
		t.s.stocks[id] = st
	}
	for _, o := range t.orders {
		t.s.orders[o.ID] = o
		t.s.pairs[pair{o.RequesterID, o.ResourceID}] = o.ID
	}
	return nil
}

func (t *tx) Rollback(context.Context) error {
	t.done = true
	return nil
}

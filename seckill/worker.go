package seckill

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/flashguard"
	"github.com/unkn0wn-root/flashguard/internal/keys"
	"github.com/unkn0wn-root/flashguard/lock"
)

type WorkerOptions struct {
	// Required
	Queue  Queue
	Store  Store
	Locker lock.Locker

	Notifier Notifier // optional
	Logger   flashguard.Logger
	Hooks    flashguard.Hooks

	Block           time.Duration // bounded wait of a normal read; 0 => 2s
	LockLease       time.Duration // per-requester lock; 0 => 30s
	RecoveryBackoff time.Duration // pause after a failed pending attempt; 0 => 1s
	Now             func() time.Time
}

// Worker drains the order stream and commits orders durably. One Worker is
// one consumer identity; run one per process.
type Worker struct {
	queue    Queue
	store    Store
	locker   lock.Locker
	notifier Notifier
	log      flashguard.Logger
	hooks    flashguard.Hooks
	now      func() time.Time

	block   time.Duration
	lease   time.Duration
	backoff time.Duration

	running atomic.Bool
}

func NewWorker(opts WorkerOptions) (*Worker, error) {
	if opts.Queue == nil {
		return nil, fmt.Errorf("seckill: queue is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("seckill: store is required")
	}
	if opts.Locker == nil {
		return nil, fmt.Errorf("seckill: locker is required")
	}
	w := &Worker{
		queue:    opts.Queue,
		store:    opts.Store,
		locker:   opts.Locker,
		notifier: opts.Notifier,
		now:      opts.Now,
	}
	w.log = coalesce[flashguard.Logger](opts.Logger, flashguard.NopLogger{})
	w.hooks = coalesce[flashguard.Hooks](opts.Hooks, flashguard.NopHooks{})
	w.block = coalesce(opts.Block, 2*time.Second)
	w.lease = coalesce(opts.LockLease, 30*time.Second)
	w.backoff = coalesce(opts.RecoveryBackoff, time.Second)
	if w.now == nil {
		w.now = time.Now
	}
	w.running.Store(true)
	return w, nil
}

// Run drains the pending list left by a previous run, then reads new records
// until Stop is called or ctx ends. Any failure sends the worker back through
// the pending drain before it reads again. A Worker that was stopped, even
// before Run, returns nil immediately.
func (w *Worker) Run(ctx context.Context) error {
	if !w.running.Load() {
		return nil
	}
	w.log.Info("order worker started", nil)
	defer w.log.Info("order worker stopped", nil)

	w.drainPending(ctx)
	for w.running.Load() {
		if err := ctx.Err(); err != nil {
			return err
		}
		msgs, err := w.queue.Read(ctx, w.block)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.log.Error("read order stream failed", flashguard.Fields{"err": err})
			w.drainPending(ctx)
			continue
		}
		for _, m := range msgs {
			if err := w.handle(ctx, m); err != nil {
				w.failed(m, err)
				w.drainPending(ctx)
				break
			}
		}
	}
	return nil
}

// Stop makes Run return after the current iteration. A stopped Worker cannot
// be restarted.
func (w *Worker) Stop() { w.running.Store(false) }

// drainPending processes this consumer's delivered-but-unacked records until
// none are left. Records that fail are retried after RecoveryBackoff.
func (w *Worker) drainPending(ctx context.Context) {
	recovered := 0
	defer func() { w.hooks.PendingRecovered(recovered) }()

	after, retry := "0", false
	for w.running.Load() && ctx.Err() == nil {
		msgs, err := w.queue.ReadPending(ctx, after)
		if err != nil {
			w.log.Error("read pending list failed", flashguard.Fields{"err": err})
			w.sleep(ctx, w.backoff)
			continue
		}
		if len(msgs) == 0 {
			if !retry {
				return
			}
			after, retry = "0", false
			w.sleep(ctx, w.backoff)
			continue
		}
		for _, m := range msgs {
			after = m.ID
			if err := w.handle(ctx, m); err != nil {
				w.failed(m, err)
				retry = true
				continue
			}
			recovered++
		}
	}
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (w *Worker) failed(m Message, err error) {
	w.hooks.OrderFailed(m.ID, err)
	w.log.Error("process reservation failed", flashguard.Fields{
		"stream_id": m.ID, "requester_id": m.Reservation.RequesterID, "err": err,
	})
}

// handle commits m and acks it. A nil return means m is acked.
func (w *Worker) handle(ctx context.Context, m Message) error {
	if m.Err != nil {
		// never commits; ack and drop
		w.log.Error("dropping malformed reservation", flashguard.Fields{"stream_id": m.ID, "err": m.Err})
		return w.ack(ctx, m.ID)
	}
	r := m.Reservation

	h, ok, err := w.locker.TryAcquire(ctx, keys.Requester(r.RequesterID), w.lease)
	if err != nil {
		return flashguard.Transient("seckill.lock", err)
	}
	if !ok {
		return fmt.Errorf("requester %d: %w", r.RequesterID, flashguard.ErrLockContention)
	}
	defer func() {
		if _, err := w.locker.Release(context.Background(), h); err != nil {
			w.log.Warn("requester lock release failed", flashguard.Fields{"requester_id": r.RequesterID, "err": err})
		}
	}()

	o := Order{ID: r.OrderID, RequesterID: r.RequesterID, ResourceID: r.ResourceID, CreatedAt: w.now()}
	dup, err := w.commit(ctx, o)
	switch {
	case errors.Is(err, flashguard.ErrResourceExhausted):
		// durable stock drifted below the mirrored counter
		w.hooks.OrderFailed(m.ID, err)
		w.log.Error("durable stock exhausted, dropping reservation", flashguard.Fields{
			"stream_id": m.ID, "resource_id": r.ResourceID, "requester_id": r.RequesterID, "order_id": r.OrderID,
		})
		return w.ack(ctx, m.ID)
	case err != nil:
		return err
	}

	if err := w.ack(ctx, m.ID); err != nil {
		return err
	}
	w.hooks.OrderCommitted(r.ResourceID, dup)
	if dup {
		w.log.Debug("order already committed", flashguard.Fields{"stream_id": m.ID, "order_id": r.OrderID})
		return nil
	}
	w.log.Debug("order committed", flashguard.Fields{"stream_id": m.ID, "order_id": r.OrderID})
	if w.notifier != nil {
		if err := w.notifier.OrderCommitted(ctx, o); err != nil {
			w.log.Warn("order notification failed", flashguard.Fields{"order_id": o.ID, "err": err})
		}
	}
	return nil
}

func (w *Worker) ack(ctx context.Context, id string) error {
	if err := w.queue.Ack(ctx, id); err != nil {
		return flashguard.Transient("seckill.ack", err)
	}
	return nil
}

// commit runs the durable unit of work for o. dup=true means an order for the
// pair already existed and nothing was written.
func (w *Worker) commit(ctx context.Context, o Order) (dup bool, err error) {
	tx, err := w.store.Begin(ctx)
	if err != nil {
		return false, flashguard.Transient("seckill.begin", err)
	}
	done := false
	defer func() {
		if !done {
			if rerr := tx.Rollback(context.Background()); rerr != nil {
				w.log.Warn("rollback failed", flashguard.Fields{"order_id": o.ID, "err": rerr})
			}
		}
	}()

	exists, err := tx.OrderExists(ctx, o.RequesterID, o.ResourceID)
	if err != nil {
		return false, flashguard.Transient("seckill.order_exists", err)
	}
	if exists {
		return true, nil
	}

	ok, err := tx.DecrementStock(ctx, o.ResourceID)
	if err != nil {
		return false, flashguard.Transient("seckill.decrement_stock", err)
	}
	if !ok {
		return false, flashguard.ErrResourceExhausted
	}

	if err := tx.InsertOrder(ctx, o); err != nil {
		if errors.Is(err, ErrOrderExists) {
			return true, nil
		}
		return false, flashguard.Transient("seckill.insert_order", err)
	}
	if err := tx.Commit(ctx); err != nil {
		if errors.Is(err, ErrOrderExists) {
			done = true
			return true, nil
		}
		return false, flashguard.Transient("seckill.commit", err)
	}
	done = true
	return false, nil
}

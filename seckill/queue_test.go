package seckill

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func newTestQueue(t *testing.T, rdb *redis.Client, consumer string) *RedisQueue {
	t.Helper()
	q, err := NewRedisQueue(rdb, QueueConfig{Consumer: consumer})
	if err != nil {
		t.Fatalf("NewRedisQueue: %v", err)
	}
	if err := q.EnsureGroup(context.Background()); err != nil {
		t.Fatalf("EnsureGroup: %v", err)
	}
	return q
}

func TestEnsureGroupIsIdempotent(t *testing.T) {
	_, rdb, _ := newTestAdmitter(t)
	q := newTestQueue(t, rdb, "c1")
	if err := q.EnsureGroup(context.Background()); err != nil {
		t.Fatalf("second EnsureGroup: %v", err)
	}
}

func TestQueueReadTimesOutEmpty(t *testing.T) {
	_, rdb, _ := newTestAdmitter(t)
	q := newTestQueue(t, rdb, "c1")
	msgs, err := q.Read(context.Background(), 20*time.Millisecond)
	if err != nil || len(msgs) != 0 {
		t.Fatalf("empty read: %v err=%v", msgs, err)
	}
}

func TestQueueDeliverPendingAck(t *testing.T) {
	ctx := context.Background()
	a, rdb, _ := newTestAdmitter(t)
	q := newTestQueue(t, rdb, "c1")

	_, _ = a.Publish(ctx, ResourceStock{ResourceID: 1, Remaining: 5})
	want := Reservation{OrderID: 77, RequesterID: 7, ResourceID: 1}
	if out, err := a.Admit(ctx, want, time.Now()); err != nil || out != OutcomeOK {
		t.Fatalf("Admit: out=%v err=%v", out, err)
	}

	msgs, err := q.Read(ctx, 50*time.Millisecond)
	if err != nil || len(msgs) != 1 {
		t.Fatalf("Read: %v err=%v", msgs, err)
	}
	if msgs[0].Err != nil || msgs[0].Reservation != want {
		t.Fatalf("message = %+v", msgs[0])
	}

	// delivered but unacked: a second normal read sees nothing, pending sees it
	if again, _ := q.Read(ctx, 20*time.Millisecond); len(again) != 0 {
		t.Fatalf("record delivered twice: %v", again)
	}
	pend, err := q.ReadPending(ctx, "0")
	if err != nil || len(pend) != 1 || pend[0].ID != msgs[0].ID {
		t.Fatalf("ReadPending: %v err=%v", pend, err)
	}
	if after, _ := q.ReadPending(ctx, pend[0].ID); len(after) != 0 {
		t.Fatalf("ReadPending after last id: %v", after)
	}

	// a restarted worker with the same identity still owns it
	q2 := newTestQueue(t, rdb, "c1")
	if pend, _ := q2.ReadPending(ctx, "0"); len(pend) != 1 {
		t.Fatalf("pending not visible to the same consumer after restart")
	}

	if err := q.Ack(ctx, msgs[0].ID); err != nil {
		t.Fatalf("Ack: %v", err)
	}
	if pend, _ := q.ReadPending(ctx, "0"); len(pend) != 0 {
		t.Fatalf("pending after ack: %v", pend)
	}
}

func TestQueueMalformedRecord(t *testing.T) {
	ctx := context.Background()
	_, rdb, _ := newTestAdmitter(t)
	q := newTestQueue(t, rdb, "c1")

	if err := rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: DefaultStream,
		Values: map[string]any{"requesterId": "x", "resourceId": "1"},
	}).Err(); err != nil {
		t.Fatalf("XAdd: %v", err)
	}
	msgs, err := q.Read(ctx, 50*time.Millisecond)
	if err != nil || len(msgs) != 1 {
		t.Fatalf("Read: %v err=%v", msgs, err)
	}
	if !errors.Is(msgs[0].Err, ErrMalformed) {
		t.Fatalf("want ErrMalformed, got %v", msgs[0].Err)
	}
	if msgs[0].Reservation != (Reservation{}) {
		t.Fatalf("malformed record carries a reservation: %+v", msgs[0].Reservation)
	}
}

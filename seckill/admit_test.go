package seckill

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/flashguard/internal/keys"
)

func newTestAdmitter(t *testing.T) (*RedisAdmitter, *redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	a, err := NewRedisAdmitter(rdb, "")
	if err != nil {
		t.Fatalf("NewRedisAdmitter: %v", err)
	}
	return a, rdb, mr
}

func TestNewRedisAdmitterRequiresClient(t *testing.T) {
	if _, err := NewRedisAdmitter(nil, ""); err != ErrNilClient {
		t.Fatalf("expected ErrNilClient, got %v", err)
	}
}

func TestAdmitOutcomes(t *testing.T) {
	ctx := context.Background()
	a, rdb, _ := newTestAdmitter(t)
	now := time.Now()

	if out, err := a.Admit(ctx, Reservation{OrderID: 1, RequesterID: 7, ResourceID: 9}, now); err != nil || out != OutcomeInsufficientStock {
		t.Fatalf("unpublished resource: out=%v err=%v", out, err)
	}

	if _, err := a.Publish(ctx, ResourceStock{ResourceID: 1, Remaining: 2}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if out, err := a.Admit(ctx, Reservation{OrderID: 10, RequesterID: 7, ResourceID: 1}, now); err != nil || out != OutcomeOK {
		t.Fatalf("first: out=%v err=%v", out, err)
	}
	if out, _ := a.Admit(ctx, Reservation{OrderID: 11, RequesterID: 7, ResourceID: 1}, now); out != OutcomeDuplicateRequest {
		t.Fatalf("same requester: out=%v", out)
	}
	if out, _ := a.Admit(ctx, Reservation{OrderID: 12, RequesterID: 8, ResourceID: 1}, now); out != OutcomeOK {
		t.Fatalf("second requester: out=%v", out)
	}
	if out, _ := a.Admit(ctx, Reservation{OrderID: 13, RequesterID: 9, ResourceID: 1}, now); out != OutcomeInsufficientStock {
		t.Fatalf("third requester: out=%v", out)
	}

	if n, _ := rdb.Get(ctx, keys.Stock(1)).Int(); n != 0 {
		t.Fatalf("remaining = %d, want 0", n)
	}
	msgs, err := rdb.XRange(ctx, DefaultStream, "-", "+").Result()
	if err != nil || len(msgs) != 2 {
		t.Fatalf("stream: %d records err=%v", len(msgs), err)
	}
	m := parseMessage(msgs[0])
	if m.Err != nil || m.Reservation != (Reservation{OrderID: 10, RequesterID: 7, ResourceID: 1}) {
		t.Fatalf("first record = %+v", m)
	}
}

func TestAdmitWindow(t *testing.T) {
	ctx := context.Background()
	a, _, _ := newTestAdmitter(t)
	begin := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	end := begin.Add(time.Hour)
	if _, err := a.Publish(ctx, ResourceStock{ResourceID: 1, Remaining: 5, BeginAt: begin, EndAt: end}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	cases := []struct {
		name string
		at   time.Time
		want Outcome
	}{
		{"before", begin.Add(-time.Second), OutcomeNotStarted},
		{"after", end.Add(time.Second), OutcomeEnded},
		{"inside", begin.Add(time.Minute), OutcomeOK},
	}
	for i, tc := range cases {
		out, err := a.Admit(ctx, Reservation{OrderID: int64(i), RequesterID: int64(100 + i), ResourceID: 1}, tc.at)
		if err != nil || out != tc.want {
			t.Fatalf("%s: out=%v err=%v, want %v", tc.name, out, err, tc.want)
		}
	}
}

func TestRepublishKeepsRunningSale(t *testing.T) {
	ctx := context.Background()
	a, rdb, _ := newTestAdmitter(t)
	now := time.Now()
	if seeded, err := a.Publish(ctx, ResourceStock{ResourceID: 77, Remaining: 1}); err != nil || !seeded {
		t.Fatalf("first Publish: seeded=%v err=%v", seeded, err)
	}
	if out, _ := a.Admit(ctx, Reservation{OrderID: 1, RequesterID: 1, ResourceID: 77}, now); out != OutcomeOK {
		t.Fatalf("first admit: out=%v", out)
	}

	// a restart republishes the same durable stock
	seeded, err := a.Publish(ctx, ResourceStock{ResourceID: 77, Remaining: 1})
	if err != nil || seeded {
		t.Fatalf("second Publish: seeded=%v err=%v", seeded, err)
	}
	if out, _ := a.Admit(ctx, Reservation{OrderID: 2, RequesterID: 1, ResourceID: 77}, now); out != OutcomeDuplicateRequest {
		t.Fatalf("same requester after republish: out=%v", out)
	}
	if out, _ := a.Admit(ctx, Reservation{OrderID: 3, RequesterID: 2, ResourceID: 77}, now); out != OutcomeInsufficientStock {
		t.Fatalf("other requester after republish: out=%v", out)
	}
	if n, _ := rdb.Get(ctx, keys.Stock(77)).Int(); n != 0 {
		t.Fatalf("remaining = %d, want 0", n)
	}
	if l, _ := rdb.XLen(ctx, DefaultStream).Result(); l != 1 {
		t.Fatalf("stream length = %d, want 1", l)
	}
}

func TestPublishClearsStaleMarkers(t *testing.T) {
	ctx := context.Background()
	a, rdb, _ := newTestAdmitter(t)
	rdb.SAdd(ctx, keys.Marker(1), 7)
	rdb.HSet(ctx, keys.Window(1), "end", 1)

	if seeded, err := a.Publish(ctx, ResourceStock{ResourceID: 1, Remaining: 1}); err != nil || !seeded {
		t.Fatalf("Publish: seeded=%v err=%v", seeded, err)
	}
	if out, _ := a.Admit(ctx, Reservation{OrderID: 1, RequesterID: 7, ResourceID: 1}, time.Now()); out != OutcomeOK {
		t.Fatalf("admit after seeding: out=%v", out)
	}
	if _, err := a.Publish(ctx, ResourceStock{ResourceID: 1, Remaining: -1}); err == nil {
		t.Fatalf("negative stock accepted")
	}
}

func TestResetStartsNewSale(t *testing.T) {
	ctx := context.Background()
	a, _, _ := newTestAdmitter(t)
	now := time.Now()
	_, _ = a.Publish(ctx, ResourceStock{ResourceID: 1, Remaining: 1})
	_, _ = a.Admit(ctx, Reservation{OrderID: 1, RequesterID: 7, ResourceID: 1}, now)

	if err := a.Reset(ctx, ResourceStock{ResourceID: 1, Remaining: 1}); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if out, _ := a.Admit(ctx, Reservation{OrderID: 2, RequesterID: 7, ResourceID: 1}, now); out != OutcomeOK {
		t.Fatalf("after reset: out=%v", out)
	}
	if err := a.Reset(ctx, ResourceStock{ResourceID: 1, Remaining: -1}); err == nil {
		t.Fatalf("negative stock accepted")
	}
}

func TestAdmitSameRequesterConcurrent(t *testing.T) {
	ctx := context.Background()
	a, rdb, _ := newTestAdmitter(t)
	_, _ = a.Publish(ctx, ResourceStock{ResourceID: 1, Remaining: 50})

	const n = 100
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		counts = map[Outcome]int{}
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := a.Admit(ctx, Reservation{OrderID: int64(i), RequesterID: 7, ResourceID: 1}, time.Now())
			if err != nil {
				t.Errorf("Admit: %v", err)
				return
			}
			mu.Lock()
			counts[out]++
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	if counts[OutcomeOK] != 1 || counts[OutcomeDuplicateRequest] != n-1 {
		t.Fatalf("outcomes = %v", counts)
	}
	if l, _ := rdb.XLen(ctx, DefaultStream).Result(); l != 1 {
		t.Fatalf("stream length = %d, want 1", l)
	}
	if left, _ := rdb.Get(ctx, keys.Stock(1)).Int(); left != 49 {
		t.Fatalf("remaining = %d, want 49", left)
	}
}

func TestAdmitLastUnitTwoRequesters(t *testing.T) {
	ctx := context.Background()
	a, rdb, _ := newTestAdmitter(t)
	_, _ = a.Publish(ctx, ResourceStock{ResourceID: 1, Remaining: 1})

	outs := make([]Outcome, 2)
	var wg sync.WaitGroup
	for i := range outs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outs[i], _ = a.Admit(ctx, Reservation{OrderID: int64(i), RequesterID: int64(i + 1), ResourceID: 1}, time.Now())
		}(i)
	}
	wg.Wait()

	ok, short := 0, 0
	for _, o := range outs {
		switch o {
		case OutcomeOK:
			ok++
		case OutcomeInsufficientStock:
			short++
		}
	}
	if ok != 1 || short != 1 {
		t.Fatalf("outcomes = %v", outs)
	}
	if left, _ := rdb.Get(ctx, keys.Stock(1)).Int(); left != 0 {
		t.Fatalf("remaining = %d, want 0", left)
	}
}

func TestAdmitStoreFailure(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 100 * time.Millisecond})
	t.Cleanup(func() { _ = rdb.Close() })
	a, _ := NewRedisAdmitter(rdb, "")
	if _, err := a.Admit(context.Background(), Reservation{ResourceID: 1, RequesterID: 1}, time.Now()); err == nil {
		t.Fatalf("expected error with the store down")
	}
}

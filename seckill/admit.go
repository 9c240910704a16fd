package seckill

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/flashguard/internal/keys"
)

// DefaultStream is the order stream the admission script appends to.
const DefaultStream = "stream.orders"

//go:embed admit.lua
var admitLua string

var admitScript = redis.NewScript(admitLua)

//go:embed publish.lua
var publishLua string

var publishScript = redis.NewScript(publishLua)

var ErrNilClient = errors.New("seckill: nil client")

// Admitter runs the atomic reservation and mirrors durable stock into the
// store it reads.
type Admitter interface {
	// Admit checks duplicate, window and stock, then reserves and enqueues r
	// in one indivisible step.
	Admit(ctx context.Context, r Reservation, now time.Time) (Outcome, error)
	// Publish seeds the counter, window and an empty marker set of s unless a
	// counter for the resource already exists. It reports whether it seeded.
	// Safe to call on every start: a running sale is left untouched.
	Publish(ctx context.Context, s ResourceStock) (bool, error)
	// Reset overwrites the counter and window of s and clears its requester
	// markers, starting a new sale.
	Reset(ctx context.Context, s ResourceStock) error
}

// RedisAdmitter evaluates the admission script server-side.
// The stock counter and marker set are mutated only by that script, Publish
// and Reset.
type RedisAdmitter struct {
	rdb    redis.UniversalClient
	stream string
}

var _ Admitter = (*RedisAdmitter)(nil)

// NewRedisAdmitter uses DefaultStream when stream is empty.
func NewRedisAdmitter(client redis.UniversalClient, stream string) (*RedisAdmitter, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	return &RedisAdmitter{rdb: client, stream: coalesce(stream, DefaultStream)}, nil
}

func (a *RedisAdmitter) Admit(ctx context.Context, r Reservation, now time.Time) (Outcome, error) {
	ks := []string{
		keys.Stock(r.ResourceID),
		keys.Marker(r.ResourceID),
		keys.Window(r.ResourceID),
		a.stream,
	}
	code, err := admitScript.Run(ctx, a.rdb, ks,
		r.ResourceID, r.RequesterID, r.OrderID, now.UnixMilli(),
	).Int()
	if err != nil {
		return 0, fmt.Errorf("seckill: admit script: %w", err)
	}
	o := Outcome(code)
	if o < OutcomeOK || o > OutcomeEnded {
		return 0, fmt.Errorf("seckill: admit script returned %d", code)
	}
	return o, nil
}

func (a *RedisAdmitter) Publish(ctx context.Context, s ResourceStock) (bool, error) {
	if s.Remaining < 0 {
		return false, fmt.Errorf("seckill: negative stock %d for resource %d", s.Remaining, s.ResourceID)
	}
	ks := []string{keys.Stock(s.ResourceID), keys.Marker(s.ResourceID), keys.Window(s.ResourceID)}
	n, err := publishScript.Run(ctx, a.rdb, ks, s.Remaining, unixMilli(s.BeginAt), unixMilli(s.EndAt)).Int()
	if err != nil {
		return false, fmt.Errorf("seckill: publish stock %d: %w", s.ResourceID, err)
	}
	return n == 1, nil
}

func (a *RedisAdmitter) Reset(ctx context.Context, s ResourceStock) error {
	if s.Remaining < 0 {
		return fmt.Errorf("seckill: negative stock %d for resource %d", s.Remaining, s.ResourceID)
	}
	win := keys.Window(s.ResourceID)
	_, err := a.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, keys.Stock(s.ResourceID), s.Remaining, 0)
		p.Del(ctx, keys.Marker(s.ResourceID), win)
		if !s.BeginAt.IsZero() {
			p.HSet(ctx, win, "begin", unixMilli(s.BeginAt))
		}
		if !s.EndAt.IsZero() {
			p.HSet(ctx, win, "end", unixMilli(s.EndAt))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("seckill: reset stock %d: %w", s.ResourceID, err)
	}
	return nil
}

// unixMilli formats t for the window hash; the zero time is an open side.
func unixMilli(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return strconv.FormatInt(t.UnixMilli(), 10)
}

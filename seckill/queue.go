package seckill

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultGroup is the consumer group of order workers.
const DefaultGroup = "g1"

// ErrMalformed marks a stream record that cannot be turned into a Reservation.
var ErrMalformed = errors.New("seckill: malformed reservation record")

// Message is one delivered stream record. Err is set (wrapping ErrMalformed)
// when the fields could not be parsed; Reservation is then zero.
type Message struct {
	ID          string
	Reservation Reservation
	Err         error
}

// Queue is the worker's view of the order stream under one consumer identity.
type Queue interface {
	// Read waits up to block for records never delivered to the group.
	// A timeout yields (nil, nil).
	Read(ctx context.Context, block time.Duration) ([]Message, error)
	// ReadPending returns records delivered to this consumer but not acked,
	// with stream id greater than after ("0" for the start). Never blocks.
	ReadPending(ctx context.Context, after string) ([]Message, error)
	Ack(ctx context.Context, id string) error
}

type QueueConfig struct {
	Stream   string // "" => DefaultStream
	Group    string // "" => DefaultGroup
	Consumer string // "" => random; set a stable name to recover pending records after restart
	Count    int64  // records per read; 0 => 1
}

// RedisQueue reads the order stream through a consumer group.
type RedisQueue struct {
	rdb      redis.UniversalClient
	stream   string
	group    string
	consumer string
	count    int64
}

var _ Queue = (*RedisQueue)(nil)

func NewRedisQueue(client redis.UniversalClient, cfg QueueConfig) (*RedisQueue, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	return &RedisQueue{
		rdb:      client,
		stream:   coalesce(cfg.Stream, DefaultStream),
		group:    coalesce(cfg.Group, DefaultGroup),
		consumer: coalesce(cfg.Consumer, "c-"+uuid.NewString()),
		count:    coalesce(cfg.Count, 1),
	}, nil
}

// Consumer reports the consumer identity this queue reads as.
func (q *RedisQueue) Consumer() string { return q.consumer }

// EnsureGroup creates the stream and group if missing. Safe to call repeatedly.
func (q *RedisQueue) EnsureGroup(ctx context.Context) error {
	err := q.rdb.XGroupCreateMkStream(ctx, q.stream, q.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("seckill: create group %s on %s: %w", q.group, q.stream, err)
	}
	return nil
}

func (q *RedisQueue) Read(ctx context.Context, block time.Duration) ([]Message, error) {
	if block <= 0 {
		block = time.Millisecond
	}
	return q.read(ctx, ">", block)
}

func (q *RedisQueue) ReadPending(ctx context.Context, after string) ([]Message, error) {
	// go-redis sends BLOCK for any Block >= 0; pending reads never block
	return q.read(ctx, coalesce(after, "0"), -1)
}

func (q *RedisQueue) read(ctx context.Context, id string, block time.Duration) ([]Message, error) {
	res, err := q.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: q.consumer,
		Streams:  []string{q.stream, id},
		Count:    q.count,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []Message
	for _, s := range res {
		for _, m := range s.Messages {
			out = append(out, parseMessage(m))
		}
	}
	return out, nil
}

func (q *RedisQueue) Ack(ctx context.Context, id string) error {
	return q.rdb.XAck(ctx, q.stream, q.group, id).Err()
}

func parseMessage(m redis.XMessage) Message {
	var (
		r    Reservation
		errs [3]error
	)
	r.RequesterID, errs[0] = field(m.Values, "requesterId")
	r.ResourceID, errs[1] = field(m.Values, "resourceId")
	r.OrderID, errs[2] = field(m.Values, "orderId")
	if err := errors.Join(errs[:]...); err != nil {
		return Message{ID: m.ID, Err: err}
	}
	return Message{ID: m.ID, Reservation: r}
}

func field(vals map[string]any, name string) (int64, error) {
	raw, ok := vals[name]
	if !ok {
		return 0, fmt.Errorf("%w: missing %s", ErrMalformed, name)
	}
	s, ok := raw.(string)
	if !ok {
		return 0, fmt.Errorf("%w: %s has type %T", ErrMalformed, name, raw)
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrMalformed, name, s)
	}
	return v, nil
}

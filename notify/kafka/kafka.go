// Package kafka publishes an event per newly committed order.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/unkn0wn-root/flashguard/seckill"
)

// Writer is the part of *kafka.Writer the notifier uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Config struct {
	Brokers []string
	Topic   string
	// WriteTimeout bounds one publish; 0 => 5s.
	WriteTimeout time.Duration
}

// Notifier implements seckill.Notifier. Events for one resource keep their
// order: the resource id is the message key.
type Notifier struct {
	w       Writer
	timeout time.Duration
}

var _ seckill.Notifier = (*Notifier)(nil)

// Event is the JSON value of each message.
type Event struct {
	OrderID     int64     `json:"order_id"`
	RequesterID int64     `json:"requester_id"`
	ResourceID  int64     `json:"resource_id"`
	CreatedAt   time.Time `json:"created_at"`
}

func New(cfg Config) (*Notifier, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: brokers are required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka: topic is required")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}
	return NewWithWriter(w, cfg.WriteTimeout), nil
}

func NewWithWriter(w Writer, timeout time.Duration) *Notifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Notifier{w: w, timeout: timeout}
}

func (n *Notifier) OrderCommitted(ctx context.Context, o seckill.Order) error {
	b, err := json.Marshal(Event{
		OrderID:     o.ID,
		RequesterID: o.RequesterID,
		ResourceID:  o.ResourceID,
		CreatedAt:   o.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("kafka: encode order %d: %w", o.ID, err)
	}
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	if err := n.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(o.ResourceID, 10)),
		Value: b,
	}); err != nil {
		return fmt.Errorf("kafka: publish order %d: %w", o.ID, err)
	}
	return nil
}

func (n *Notifier) Close() error { return n.w.Close() }

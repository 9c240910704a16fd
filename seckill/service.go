package seckill

import (
	"context"
	"fmt"
	"time"

	"github.com/unkn0wn-root/flashguard"
	"github.com/unkn0wn-root/flashguard/idgen"
)

// OrderNamespace is the idgen namespace of order ids.
const OrderNamespace = "order"

type ServiceOptions struct {
	Admitter Admitter     // required
	IDs      idgen.Issuer // required
	Logger   flashguard.Logger
	Hooks    flashguard.Hooks
	Now      func() time.Time
}

// Service is the synchronous admission path. It never touches durable storage.
type Service struct {
	admit Admitter
	ids   idgen.Issuer
	log   flashguard.Logger
	hooks flashguard.Hooks
	now   func() time.Time
}

func NewService(opts ServiceOptions) (*Service, error) {
	if opts.Admitter == nil {
		return nil, fmt.Errorf("seckill: admitter is required")
	}
	if opts.IDs == nil {
		return nil, fmt.Errorf("seckill: id issuer is required")
	}
	s := &Service{admit: opts.Admitter, ids: opts.IDs, now: opts.Now}
	s.log = coalesce[flashguard.Logger](opts.Logger, flashguard.NopLogger{})
	s.hooks = coalesce[flashguard.Hooks](opts.Hooks, flashguard.NopHooks{})
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// ReserveAndSubmit admits requester for one unit of resourceID. A rejection is
// reported in Result with a nil error; store failures are returned as
// *flashguard.TransientError and never count as acceptance.
func (s *Service) ReserveAndSubmit(ctx context.Context, requester Requester, resourceID int64) (Result, error) {
	orderID, err := s.ids.NextID(ctx, OrderNamespace)
	if err != nil {
		s.hooks.Admission(resourceID, "error")
		return Result{}, flashguard.Transient("seckill.next_id", err)
	}

	r := Reservation{OrderID: orderID, RequesterID: requester.ID, ResourceID: resourceID}
	out, err := s.admit.Admit(ctx, r, s.now())
	if err != nil {
		s.hooks.Admission(resourceID, "error")
		s.log.Error("admission failed", flashguard.Fields{
			"resource_id": resourceID, "requester_id": requester.ID, "err": err,
		})
		return Result{}, flashguard.Transient("seckill.admit", err)
	}
	s.hooks.Admission(resourceID, out.hookName())

	if out != OutcomeOK {
		s.log.Debug("admission rejected", flashguard.Fields{
			"resource_id": resourceID, "requester_id": requester.ID, "reason": out.String(),
		})
		return Result{Reason: out}, nil
	}
	return Result{Accepted: true, OrderID: orderID}, nil
}

// Publish mirrors durable stock into the admission store when no sale is
// running for the resource. false means an existing counter was kept.
func (s *Service) Publish(ctx context.Context, stock ResourceStock) (bool, error) {
	seeded, err := s.admit.Publish(ctx, stock)
	if err != nil {
		return false, flashguard.Transient("seckill.publish", err)
	}
	if seeded {
		s.log.Info("published stock", flashguard.Fields{"resource_id": stock.ResourceID, "remaining": stock.Remaining})
	} else {
		s.log.Info("sale already running, stock kept", flashguard.Fields{"resource_id": stock.ResourceID})
	}
	return seeded, nil
}

// Reset starts a new sale for the resource: the counter is overwritten and
// every requester may reserve again.
func (s *Service) Reset(ctx context.Context, stock ResourceStock) error {
	if err := s.admit.Reset(ctx, stock); err != nil {
		return flashguard.Transient("seckill.reset", err)
	}
	s.log.Warn("sale reset", flashguard.Fields{"resource_id": stock.ResourceID, "remaining": stock.Remaining})
	return nil
}

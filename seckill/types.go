package seckill

import (
	"time"

	"github.com/unkn0wn-root/flashguard"
)

// Requester identifies the caller of an admission. It is passed explicitly
// through every call, never read from ambient state.
type Requester struct {
	ID int64
}

// Reservation is what the admission script appends to the order stream.
type Reservation struct {
	OrderID     int64
	RequesterID int64
	ResourceID  int64
}

// Order is the durable record committed by the worker. Never mutated.
type Order struct {
	ID          int64
	RequesterID int64
	ResourceID  int64
	CreatedAt   time.Time
}

// ResourceStock is the durable stock of one resource and its active window.
// A zero BeginAt or EndAt leaves that side of the window open.
type ResourceStock struct {
	ResourceID int64
	Remaining  int
	BeginAt    time.Time
	EndAt      time.Time
}

// Outcome is the admission script's verdict. Values match the script's return codes.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeInsufficientStock
	OutcomeDuplicateRequest
	OutcomeNotStarted
	OutcomeEnded
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "OK"
	case OutcomeInsufficientStock:
		return "INSUFFICIENT_STOCK"
	case OutcomeDuplicateRequest:
		return "DUPLICATE_REQUEST"
	case OutcomeNotStarted:
		return "NOT_STARTED"
	case OutcomeEnded:
		return "ENDED"
	default:
		return "UNKNOWN"
	}
}

// Err maps a rejection onto the shared error taxonomy. OutcomeOK maps to nil.
func (o Outcome) Err() error {
	switch o {
	case OutcomeOK:
		return nil
	case OutcomeInsufficientStock:
		return flashguard.ErrResourceExhausted
	case OutcomeDuplicateRequest:
		return flashguard.ErrDuplicateRequest
	case OutcomeNotStarted:
		return flashguard.ErrNotStarted
	case OutcomeEnded:
		return flashguard.ErrEnded
	default:
		return flashguard.ErrResourceExhausted
	}
}

// hookName is the lower-case outcome label used by Hooks.Admission.
func (o Outcome) hookName() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeInsufficientStock:
		return "insufficient_stock"
	case OutcomeDuplicateRequest:
		return "duplicate_request"
	case OutcomeNotStarted:
		return "not_started"
	case OutcomeEnded:
		return "ended"
	default:
		return "error"
	}
}

// Result is returned to the caller of ReserveAndSubmit. OrderID is set only
// when Accepted; Reason only when not.
type Result struct {
	Accepted bool
	OrderID  int64
	Reason   Outcome
}

package order

import (
	"time"
)

type OrderStatus string

const (
	StatusUnpaid     OrderStatus = "UNPAID"
	StatusProcessing OrderStatus = "PROCESSING"
	StatusShipping   OrderStatus = "SHIPPING"
	StatusCompleted  OrderStatus = "COMPLETED"
	// StatusCancelled fires the store's restock trigger when written.
	StatusCancelled OrderStatus = "CANCELLED"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentSuccess PaymentStatus = "SUCCESS"
	PaymentFailed  PaymentStatus = "FAILED"
)

type Order struct {
	ID        uint
	Status    OrderStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Payment struct {
	OrderID       uint
	Status        PaymentStatus
	TransactionID string
	UpdatedAt     time.Time
}

// Outcome is the result of one reconcile call.
type Outcome int

const (
	OutcomeUnknown Outcome = iota
	OutcomeOrderNotFound
	OutcomeAlreadyResolved
	OutcomeAppliedSuccess
	OutcomeAppliedFailure
)

func (o Outcome) Applied() bool {
	return o == OutcomeAppliedSuccess || o == OutcomeAppliedFailure
}

func (o Outcome) String() string {
	switch o {
	case OutcomeOrderNotFound:
		return "order_not_found"
	case OutcomeAlreadyResolved:
		return "already_resolved"
	case OutcomeAppliedSuccess:
		return "applied_success"
	case OutcomeAppliedFailure:
		return "applied_failure"
	default:
		return "unknown"
	}
}

// transition is the pair of writes applied to an UNPAID order.
type transition struct {
	order   OrderStatus
	payment PaymentStatus
	outcome Outcome
}

func transitionFor(isSuccess bool) transition {
	if isSuccess {
		return transition{order: StatusProcessing, payment: PaymentSuccess, outcome: OutcomeAppliedSuccess}
	}
	return transition{order: StatusCancelled, payment: PaymentFailed, outcome: OutcomeAppliedFailure}
}

package payment

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventSucceeded = "payment.succeeded"
	EventFailed    = "payment.failed"
)

// SucceededEvent is published once per settled payment.
type SucceededEvent struct {
	PaymentID     string
	OrderNumber   string
	UserID        string
	Method        Method
	Amount        decimal.Decimal
	TransactionID string
	RiskLevel     RiskLevel
	OccurredAt    time.Time
}

func (SucceededEvent) EventName() string { return EventSucceeded }

func NewSucceededEvent(p *Payment) SucceededEvent {
	return SucceededEvent{
		PaymentID:     p.ID,
		OrderNumber:   p.OrderNumber,
		UserID:        p.UserID,
		Method:        p.Method,
		Amount:        p.Amount,
		TransactionID: p.TransactionID,
		RiskLevel:     p.RiskLevel,
		OccurredAt:    p.UpdatedAt,
	}
}

// FailedEvent is published when an attempt ends in FAILED.
type FailedEvent struct {
	PaymentID   string
	OrderNumber string
	UserID      string
	Method      Method
	Amount      decimal.Decimal
	Reason      string
	OccurredAt  time.Time
}

func (FailedEvent) EventName() string { return EventFailed }

func NewFailedEvent(p *Payment) FailedEvent {
	return FailedEvent{
		PaymentID:   p.ID,
		OrderNumber: p.OrderNumber,
		UserID:      p.UserID,
		Method:      p.Method,
		Amount:      p.Amount,
		Reason:      p.FailureReason,
		OccurredAt:  p.UpdatedAt,
	}
}

package payment

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/order"
)

var (
	ErrNotFound      = errors.New("payment: not found")
	ErrConflict      = errors.New("payment: concurrent modification")
	ErrNotRefundable = errors.New("payment: not refundable")
	ErrInvalidAmount = errors.New("payment: invalid amount")
	// ErrSettled means the attempt already captured money and can no longer be voided.
	ErrSettled = errors.New("payment: already settled")
)

// Status and Method share their vocabulary with the order's payment fields.
type (
	Status = order.PaymentStatus
	Method = order.PaymentMethod
)

const (
	StatusPending           = order.PaymentPending
	StatusProcessing        = order.PaymentProcessing
	StatusCompleted         = order.PaymentCompleted
	StatusFailed            = order.PaymentFailed
	StatusRefunded          = order.PaymentRefunded
	StatusPartiallyRefunded = order.PaymentPartiallyRefunded
	StatusCancelled         = order.PaymentCancelled
)

// Payment is one attempt to pay for an order.
type Payment struct {
	ID                   string
	OrderID              string
	OrderNumber          string
	UserID               string
	Method               Method
	Status               Status
	Amount               decimal.Decimal
	RefundedAmount       decimal.Decimal
	Currency             string
	TransactionID        string
	GatewayTransactionNo string
	GatewayResponse      json.RawMessage
	FailureReason        string
	RiskScore            float64
	RiskLevel            RiskLevel
	CreatedAt            time.Time
	UpdatedAt            time.Time
	ProcessedAt          *time.Time
}

// New starts a PENDING attempt.
func New(id string, o *order.Order, now time.Time) *Payment {
	return &Payment{
		ID:          id,
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		UserID:      o.UserID,
		Method:      o.PaymentMethod,
		Status:      StatusPending,
		Amount:      o.TotalAmount,
		Currency:    o.Currency,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (p *Payment) transition(to Status, now time.Time) error {
	if !p.Status.CanTransition(to) {
		return fmt.Errorf("%w: payment %s -> %s", order.ErrInvalidStateTransition, p.Status, to)
	}
	p.Status = to
	p.UpdatedAt = now
	return nil
}

// Processing marks the attempt as waiting on an external confirmation.
func (p *Payment) Processing(transactionID string, now time.Time) error {
	if err := p.transition(StatusProcessing, now); err != nil {
		return err
	}
	p.TransactionID = transactionID
	return nil
}

// Complete settles the attempt.
func (p *Payment) Complete(transactionID string, now time.Time) error {
	if err := p.transition(StatusCompleted, now); err != nil {
		return err
	}
	if transactionID != "" {
		p.TransactionID = transactionID
	}
	p.FailureReason = ""
	t := now
	p.ProcessedAt = &t
	return nil
}

// Fail closes the attempt with reason.
func (p *Payment) Fail(reason string, now time.Time) error {
	if err := p.transition(StatusFailed, now); err != nil {
		return err
	}
	p.FailureReason = reason
	t := now
	p.ProcessedAt = &t
	return nil
}

// Cancel voids an attempt that never settled.
func (p *Payment) Cancel(reason string, now time.Time) error {
	if err := p.transition(StatusCancelled, now); err != nil {
		return err
	}
	p.FailureReason = reason
	return nil
}

// Refundable is the amount that can still be returned to the payer.
func (p *Payment) Refundable() decimal.Decimal {
	return p.Amount.Sub(p.RefundedAmount)
}

// Refund returns amount to the payer, yielding REFUNDED once nothing remains.
func (p *Payment) Refund(amount decimal.Decimal, now time.Time) error {
	if p.Status != StatusCompleted && p.Status != StatusPartiallyRefunded {
		return fmt.Errorf("%w: status %s", ErrNotRefundable, p.Status)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: refund amount must be positive", ErrInvalidAmount)
	}
	if amount.GreaterThan(p.Refundable()) {
		return fmt.Errorf("%w: refund %s exceeds refundable %s", ErrInvalidAmount, amount, p.Refundable())
	}
	next := StatusPartiallyRefunded
	if amount.Equal(p.Refundable()) {
		next = StatusRefunded
	}
	if err := p.transition(next, now); err != nil {
		return err
	}
	p.RefundedAmount = p.RefundedAmount.Add(amount)
	return nil
}

// Clone returns a deep copy.
func (p *Payment) Clone() *Payment {
	if p == nil {
		return nil
	}
	cp := *p
	cp.GatewayResponse = append(json.RawMessage(nil), p.GatewayResponse...)
	if p.ProcessedAt != nil {
		t := *p.ProcessedAt
		cp.ProcessedAt = &t
	}
	return &cp
}

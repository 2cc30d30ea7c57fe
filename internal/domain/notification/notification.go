// Package notification describes customer-facing messages about orders and payments.
package notification

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindOrderCreated       Kind = "order.created"
	KindOrderStatusChanged Kind = "order.status_changed"
	KindPaymentSucceeded   Kind = "payment.succeeded"
	KindPaymentFailed      Kind = "payment.failed"
)

type Notification struct {
	Kind        Kind            `json:"type"`
	UserID      string          `json:"userId"`
	OrderNumber string          `json:"orderNumber"`
	PaymentID   string          `json:"paymentId,omitempty"`
	Status      string          `json:"status"`
	OldStatus   string          `json:"oldStatus,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Message     string          `json:"message,omitempty"`
	OccurredAt  time.Time       `json:"occurredAt"`
}

// Sender delivers a notification to one transport.
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

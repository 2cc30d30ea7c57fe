package order

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventCreated       = "order.created"
	EventStatusChanged = "order.status_changed"
)

// CreatedEvent is emitted once the create-order saga has persisted the order.
type CreatedEvent struct {
	OrderID       string
	OrderNumber   string
	UserID        string
	Status        Status
	PaymentStatus PaymentStatus
	PaymentMethod PaymentMethod
	TotalAmount   decimal.Decimal
	Currency      string
	OccurredAt    time.Time
}

func (CreatedEvent) EventName() string { return EventCreated }

func NewCreatedEvent(o *Order) CreatedEvent {
	return CreatedEvent{
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		UserID:        o.UserID,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		PaymentMethod: o.PaymentMethod,
		TotalAmount:   o.TotalAmount,
		Currency:      o.Currency,
		OccurredAt:    o.CreatedAt,
	}
}

// StatusChangedEvent carries a customer-visible old -> new status transition.
type StatusChangedEvent struct {
	OrderID     string
	OrderNumber string
	UserID      string
	OldStatus   Status
	NewStatus   Status
	Reason      string
	TotalAmount decimal.Decimal
	OccurredAt  time.Time
}

func (StatusChangedEvent) EventName() string { return EventStatusChanged }

func NewStatusChangedEvent(o *Order, old Status, reason string) StatusChangedEvent {
	return StatusChangedEvent{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		UserID:      o.UserID,
		OldStatus:   old,
		NewStatus:   o.Status,
		Reason:      reason,
		TotalAmount: o.TotalAmount,
		OccurredAt:  o.UpdatedAt,
	}
}

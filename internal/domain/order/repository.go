package order

import (
	"context"
	"time"
)

type Repository interface {
	// Insert stores a new order and returns ErrConflict when the order number is taken.
	Insert(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	FindByNumber(ctx context.Context, orderNumber string) (*Order, error)
	Update(ctx context.Context, o *Order) error
	Delete(ctx context.Context, id string) error
	// ListStale returns orders in the given statuses last updated before cutoff.
	ListStale(ctx context.Context, status Status, paymentStatus PaymentStatus, cutoff time.Time, limit int) ([]*Order, error)
}

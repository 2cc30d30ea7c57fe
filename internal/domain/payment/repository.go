package payment

import (
	"context"
	"time"
)

type Repository interface {
	// Insert stores a new attempt. It returns ErrConflict when the order already has a COMPLETED payment and p is COMPLETED.
	Insert(ctx context.Context, p *Payment) error
	Get(ctx context.Context, id string) (*Payment, error)
	FindByTransactionID(ctx context.Context, transactionID string) (*Payment, error)
	// LatestByOrderNumber returns the most recently created attempt for the order.
	LatestByOrderNumber(ctx context.Context, orderNumber string) (*Payment, error)
	// SettledByOrderNumber returns the attempt in COMPLETED or PARTIALLY_REFUNDED, if any.
	SettledByOrderNumber(ctx context.Context, orderNumber string) (*Payment, error)
	// UpdateIfStatus persists p only when the stored status still equals expected, otherwise ErrConflict.
	UpdateIfStatus(ctx context.Context, p *Payment, expected Status) error
	CountByUserSince(ctx context.Context, userID string, since time.Time) (int, error)
	CountByUserAndStatus(ctx context.Context, userID string, status Status) (int, error)
}

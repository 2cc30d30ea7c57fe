package inventory

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidQuantity   = errors.New("inventory: quantity must be greater than zero")
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
)

// Line is one (productId, quantity) entry of a remote reservation keyed by order.
type Line struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// Operation names a call against the inventory ledger.
type Operation string

const (
	OpReserve Operation = "reserve"
	OpConfirm Operation = "confirm"
	OpRelease Operation = "release"
)

// Outcome reports how a confirm or release call ended. Queued means the call was deferred for retry.
type Outcome struct {
	Queued bool
}

// Validate rejects empty reservations and non-positive quantities.
func Validate(lines []Line) error {
	if len(lines) == 0 {
		return fmt.Errorf("%w: no lines", ErrInvalidQuantity)
	}
	for _, l := range lines {
		if l.ProductID == "" {
			return fmt.Errorf("inventory: product id is required")
		}
		if l.Quantity <= 0 {
			return fmt.Errorf("%w: product %s", ErrInvalidQuantity, l.ProductID)
		}
	}
	return nil
}

// Package voucher holds the values exchanged with the voucher collaborator.
// Discount math lives there; this service only trusts the returned amounts.
package voucher

import "github.com/shopspring/decimal"

// Check asks whether code applies to an order of OrderAmount.
type Check struct {
	Code        string
	UserID      string
	OrderAmount decimal.Decimal
	Items       []Item
}

type Item struct {
	ProductID string
	Quantity  int
	Price     decimal.Decimal
}

// Quote is the collaborator's priced answer.
type Quote struct {
	Valid          bool
	Message        string
	VoucherID      string
	Code           string
	DiscountAmount decimal.Decimal
	FinalAmount    decimal.Decimal
	FreeShipping   bool
}

// Usage records that a voucher was spent on an order.
type Usage struct {
	VoucherID      string
	Code           string
	UserID         string
	OrderID        string
	OrderNumber    string
	OriginalAmount decimal.Decimal
	DiscountAmount decimal.Decimal
	FinalAmount    decimal.Decimal
}

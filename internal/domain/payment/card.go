package payment

import "github.com/shopspring/decimal"

// IntentStatus follows the card provider's intent lifecycle.
type IntentStatus string

const (
	IntentRequiresPaymentMethod IntentStatus = "requires_payment_method"
	IntentRequiresConfirmation  IntentStatus = "requires_confirmation"
	IntentProcessing            IntentStatus = "processing"
	IntentSucceeded             IntentStatus = "succeeded"
	IntentCanceled              IntentStatus = "canceled"
)

// IntentRequest asks the card provider for a new intent. AmountMinor is the amount in minor units.
type IntentRequest struct {
	OrderNumber string
	AmountMinor int64
	Currency    string
}

// Intent is the provider's view of a card payment.
type Intent struct {
	ID           string
	ClientSecret string
	Status       IntentStatus
}

// CardRefund is the provider's receipt for a refund.
type CardRefund struct {
	ID     string
	Status string
}

// MinorUnits converts an amount to the integer minor units card providers expect.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

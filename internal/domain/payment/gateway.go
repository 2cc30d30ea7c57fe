package payment

import (
	"time"

	"github.com/shopspring/decimal"
)

// RedirectRequest asks the redirect gateway for a signed checkout URL.
type RedirectRequest struct {
	OrderNumber string
	Amount      decimal.Decimal
	ClientIP    string
	ReturnURL   string
	CreatedAt   time.Time
}

// Redirect is a signed checkout URL and the transaction reference the gateway will echo back.
type Redirect struct {
	URL    string
	TxnRef string
}

// GatewayCallback is a parsed, signature-checked return or IPN request.
type GatewayCallback struct {
	Params        map[string]string
	TxnRef        string
	ResponseCode  string
	TransactionNo string
	Amount        decimal.Decimal
	Verified      bool
	// Success holds only for a verified callback with the success response code.
	Success bool
	Reason  string
}

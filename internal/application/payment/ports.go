package payment

import (
	"context"

	"github.com/shopspring/decimal"

	dompay "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/payment"
)

// CardProvider creates, confirms and refunds card payment intents.
type CardProvider interface {
	CreateIntent(ctx context.Context, req dompay.IntentRequest) (dompay.Intent, error)
	ConfirmIntent(ctx context.Context, intentID string) (dompay.Intent, error)
	Refund(ctx context.Context, intentID string, amount decimal.Decimal) (dompay.CardRefund, error)
}

// RedirectGateway signs outbound checkout URLs and verifies inbound callbacks.
type RedirectGateway interface {
	CreateRedirect(ctx context.Context, req dompay.RedirectRequest) (dompay.Redirect, error)
	VerifyCallback(params map[string]string) dompay.GatewayCallback
}

// BankAccount is where bank-transfer customers send money.
type BankAccount struct {
	BankName      string
	AccountNumber string
	AccountHolder string
}

package order

import (
	"context"

	apppay "github.com/Zhima-Mochi/minishop-fulfillment/internal/application/payment"
	dominventory "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/voucher"
)

// Inventory is the remote stock ledger, keyed by order id.
type Inventory interface {
	Reserve(ctx context.Context, orderID string, lines []dominventory.Line) error
	// Confirm and Release are idempotent and may defer the call, reporting Outcome.Queued.
	Confirm(ctx context.Context, orderID string, lines []dominventory.Line) (dominventory.Outcome, error)
	Release(ctx context.Context, orderID string, lines []dominventory.Line) (dominventory.Outcome, error)
}

type Vouchers interface {
	Validate(ctx context.Context, chk voucher.Check) (voucher.Quote, error)
	RecordUsage(ctx context.Context, u voucher.Usage) error
}

// Payments is the payment method adapter as seen by the orchestrator.
type Payments interface {
	Process(ctx context.Context, req apppay.Request) (*apppay.Result, error)
	SettleGatewayCallback(ctx context.Context, params map[string]string) (*apppay.Settlement, error)
	SettleBankTransfer(ctx context.Context, orderNumber, transactionID string) (*apppay.Settlement, error)
	SettleCard(ctx context.Context, intentID string) (*apppay.Settlement, error)
	VoidAttempt(ctx context.Context, paymentID, reason string) error
	VoidLatest(ctx context.Context, orderNumber, reason string) error
	RefundByOrderNumber(ctx context.Context, orderNumber, reason string) (*apppay.RefundResult, error)
}

var _ Payments = (*apppay.Service)(nil)

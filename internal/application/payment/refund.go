package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/fault"
	domorder "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/order"
	dompay "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"
)

const useCaseRefund = "payment.refund"

type RefundRequest struct {
	PaymentID string
	// Amount of zero refunds everything that remains.
	Amount decimal.Decimal
	Reason string
}

type RefundResult struct {
	Payment   *dompay.Payment
	Amount    decimal.Decimal
	Reference string
}

// Refund returns money for a COMPLETED or PARTIALLY_REFUNDED payment.
func (s *Service) Refund(ctx context.Context, req RefundRequest) (_ *RefundResult, err error) {
	ctx, run := s.in.Start(ctx, useCaseRefund, "RefundPayment", attribute.String("payment.id", req.PaymentID))
	run.With(observability.F("payment_id", req.PaymentID), observability.F("reason", req.Reason))
	defer func() { run.Finish(err) }()

	p, err := s.repo.Get(ctx, req.PaymentID)
	if err != nil {
		run.Fail("PAYMENT_LOOKUP_FAILED")
		return nil, wrapRepositoryError(err)
	}
	return s.refund(ctx, run, p, req.Amount, req.Reason)
}

// RefundByOrderNumber fully refunds the order's settled payment.
func (s *Service) RefundByOrderNumber(ctx context.Context, orderNumber, reason string) (_ *RefundResult, err error) {
	ctx, run := s.in.Start(ctx, useCaseRefund, "RefundOrderPayment", attribute.String("order.number", orderNumber))
	run.With(observability.F("order_number", orderNumber), observability.F("reason", reason))
	defer func() { run.Finish(err) }()

	p, err := s.repo.SettledByOrderNumber(ctx, orderNumber)
	if err != nil {
		run.Fail("PAYMENT_LOOKUP_FAILED")
		if errors.Is(err, dompay.ErrNotFound) {
			return nil, fmt.Errorf("%w: no settled payment for order %s", dompay.ErrNotRefundable, orderNumber)
		}
		return nil, wrapRepositoryError(err)
	}
	return s.refund(ctx, run, p, decimal.Zero, reason)
}

func (s *Service) refund(ctx context.Context, run replayer, p *dompay.Payment, amount decimal.Decimal, reason string) (*RefundResult, error) {
	if p.Status != dompay.StatusCompleted && p.Status != dompay.StatusPartiallyRefunded {
		run.Fail("NOT_REFUNDABLE")
		return nil, fmt.Errorf("%w: status %s", dompay.ErrNotRefundable, p.Status)
	}
	if amount.IsZero() {
		amount = p.Refundable()
	}
	if !amount.IsPositive() || amount.GreaterThan(p.Refundable()) {
		run.Fail("AMOUNT_INVALID")
		return nil, fault.Validationf("refund amount %s must be positive and at most %s", amount, p.Refundable())
	}

	now := s.now()
	var reference string
	if p.Method == domorder.MethodCard {
		if s.card == nil {
			return nil, fault.Rejected("card_provider", "card payments are not configured")
		}
		r, err := s.card.Refund(ctx, p.TransactionID, amount)
		if err != nil {
			run.Fail("PROVIDER_REFUND_FAILED")
			return nil, err
		}
		reference = r.ID
	} else {
		reference = fmt.Sprintf("REF%d", now.UnixMilli())
	}

	expected := p.Status
	if err := p.Refund(amount, now); err != nil {
		run.Fail("PAYMENT_TRANSITION_FAILED")
		return nil, err
	}
	if err := s.save(ctx, p, expected); err != nil {
		run.Fail("REPO_UPDATE_FAILED")
		return nil, err
	}
	return &RefundResult{Payment: p, Amount: amount, Reference: reference}, nil
}

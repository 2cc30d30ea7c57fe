package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/fault"
	domorder "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/order"
	dompay "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"
)

const (
	useCaseGatewayCallback = "payment.gateway_callback"
	useCaseBankTransfer    = "payment.confirm_bank_transfer"
	useCaseCard            = "payment.confirm_card"
	useCaseVoid            = "payment.void"
)

// Settlement reports how an external confirmation was applied to a payment attempt.
type Settlement struct {
	Payment     *dompay.Payment
	OrderNumber string
	// Verified is false only for redirect callbacks whose signature did not check out.
	Verified bool
	Success  bool
	// Duplicate means the attempt had already reached a final status; nothing changed.
	Duplicate bool
	Reason    string
}

// SettleGatewayCallback verifies a redirect-gateway callback and moves the attempt to COMPLETED or FAILED.
// Replays of an already final attempt are reported as duplicates.
func (s *Service) SettleGatewayCallback(ctx context.Context, params map[string]string) (_ *Settlement, err error) {
	if s.gateway == nil {
		return nil, fault.Rejected("gateway", "redirect gateway is not configured")
	}
	cb := s.gateway.VerifyCallback(params)
	ctx, run := s.in.Start(ctx, useCaseGatewayCallback, "GatewayCallback",
		attribute.String("payment.txn_ref", cb.TxnRef),
		attribute.Bool("callback.verified", cb.Verified),
		attribute.String("callback.response_code", cb.ResponseCode),
	)
	run.With(
		observability.F("txn_ref", cb.TxnRef),
		observability.F("verified", cb.Verified),
		observability.F("response_code", cb.ResponseCode),
	)
	defer func() { run.Finish(err) }()

	if !cb.Verified {
		run.Logger.Warn("callback_signature_invalid", observability.F("txn_ref", cb.TxnRef))
	}
	if cb.TxnRef == "" {
		run.Fail("TXN_REF_MISSING")
		return &Settlement{Verified: cb.Verified, Reason: cb.Reason}, fault.Validation("callback has no transaction reference")
	}

	p, err := s.findByReference(ctx, cb.TxnRef)
	if err != nil {
		run.Fail("PAYMENT_LOOKUP_FAILED")
		return &Settlement{Verified: cb.Verified, OrderNumber: cb.TxnRef, Reason: "payment not found"}, err
	}
	out := &Settlement{Payment: p, OrderNumber: p.OrderNumber, Verified: cb.Verified}
	if final(p.Status) {
		run.Replay("DUPLICATE_CALLBACK", "payment.duplicate_callback", attribute.String("payment.status", string(p.Status)))
		out.Duplicate = true
		out.Success = settled(p.Status)
		return out, nil
	}

	expected := p.Status
	now := s.now()
	p.GatewayTransactionNo = cb.TransactionNo
	if raw, jErr := json.Marshal(cb.Params); jErr == nil {
		p.GatewayResponse = raw
	}

	success, reason := cb.Success, cb.Reason
	if success && cb.Amount.IsPositive() && !cb.Amount.Equal(p.Amount) {
		success, reason = false, fmt.Sprintf("amount mismatch: gateway %s, expected %s", cb.Amount, p.Amount)
	}
	if success {
		s.assessRisk(ctx, p)
		err = p.Complete(p.TransactionID, now)
	} else {
		err = p.Fail(reason, now)
	}
	if err != nil {
		run.Fail("PAYMENT_TRANSITION_FAILED")
		return out, err
	}

	if err := s.save(ctx, p, expected); err != nil {
		if errors.Is(err, dompay.ErrConflict) {
			return s.raced(ctx, run, out)
		}
		run.Fail("REPO_UPDATE_FAILED")
		return out, err
	}
	s.publishOutcome(ctx, p)

	out.Success = success
	out.Reason = reason
	if !success {
		run.Fail("PAYMENT_FAILED")
	}
	run.Span().SetAttributes(attribute.String("payment.status", string(p.Status)))
	return out, nil
}

// raced resolves a lost compare-and-set: another delivery of the same callback already applied a final status.
func (s *Service) raced(ctx context.Context, run replayer, out *Settlement) (*Settlement, error) {
	current, err := s.repo.Get(ctx, out.Payment.ID)
	if err != nil {
		return out, wrapRepositoryError(err)
	}
	run.Replay("DUPLICATE_CALLBACK", "payment.duplicate_callback", attribute.String("payment.status", string(current.Status)))
	out.Payment = current
	out.Duplicate = true
	out.Success = settled(current.Status)
	return out, nil
}

// SettleBankTransfer records a manually confirmed bank transfer. An empty transactionID matches the latest attempt.
func (s *Service) SettleBankTransfer(ctx context.Context, orderNumber, transactionID string) (_ *Settlement, err error) {
	ctx, run := s.in.Start(ctx, useCaseBankTransfer, "ConfirmBankTransfer",
		attribute.String("order.number", orderNumber),
	)
	run.With(observability.F("order_number", orderNumber))
	defer func() { run.Finish(err) }()

	p, err := s.repo.LatestByOrderNumber(ctx, orderNumber)
	if err != nil {
		run.Fail("PAYMENT_LOOKUP_FAILED")
		return nil, wrapRepositoryError(err)
	}
	if p.Method != domorder.MethodBankTransfer {
		run.Fail("METHOD_MISMATCH")
		return nil, fault.Validationf("order %s is not paid by bank transfer", orderNumber)
	}
	if transactionID != "" && transactionID != p.TransactionID {
		run.Fail("TRANSACTION_MISMATCH")
		return nil, fault.Rejected("bank_transfer", "transaction id does not match the pending transfer")
	}
	return s.complete(ctx, run, p, p.TransactionID)
}

// SettleCard confirms a card intent with the provider and applies its status.
func (s *Service) SettleCard(ctx context.Context, intentID string) (_ *Settlement, err error) {
	ctx, run := s.in.Start(ctx, useCaseCard, "ConfirmCard",
		attribute.String("payment.intent_id", intentID),
	)
	run.With(observability.F("intent_id", intentID))
	defer func() { run.Finish(err) }()

	if s.card == nil {
		return nil, fault.Rejected("card_provider", "card payments are not configured")
	}
	p, err := s.repo.FindByTransactionID(ctx, intentID)
	if err != nil {
		run.Fail("PAYMENT_LOOKUP_FAILED")
		return nil, wrapRepositoryError(err)
	}
	if final(p.Status) {
		run.Replay("DUPLICATE_CONFIRMATION", "payment.duplicate_confirmation")
		return &Settlement{Payment: p, OrderNumber: p.OrderNumber, Verified: true, Duplicate: true, Success: settled(p.Status)}, nil
	}

	intent, err := s.card.ConfirmIntent(ctx, intentID)
	if err != nil {
		run.Fail("PROVIDER_CONFIRM_FAILED")
		return nil, err
	}
	switch intent.Status {
	case dompay.IntentSucceeded:
		return s.complete(ctx, run, p, intentID)
	case dompay.IntentProcessing, dompay.IntentRequiresConfirmation:
		run.Fail("PROVIDER_PENDING")
		return &Settlement{Payment: p, OrderNumber: p.OrderNumber, Verified: true, Reason: "card payment still processing"}, nil
	default:
		expected := p.Status
		reason := fmt.Sprintf("card payment not completed: %s", intent.Status)
		if err := p.Fail(reason, s.now()); err != nil {
			return nil, err
		}
		if err := s.save(ctx, p, expected); err != nil {
			if errors.Is(err, dompay.ErrConflict) {
				return s.raced(ctx, run, &Settlement{Payment: p, OrderNumber: p.OrderNumber, Verified: true})
			}
			return nil, err
		}
		s.publishOutcome(ctx, p)
		run.Fail("PAYMENT_FAILED")
		return &Settlement{Payment: p, OrderNumber: p.OrderNumber, Verified: true, Reason: reason}, nil
	}
}

type replayer interface {
	Replay(status, event string, attrs ...attribute.KeyValue)
	Fail(status string)
}

func (s *Service) complete(ctx context.Context, run replayer, p *dompay.Payment, reference string) (*Settlement, error) {
	out := &Settlement{Payment: p, OrderNumber: p.OrderNumber, Verified: true}
	if final(p.Status) {
		run.Replay("DUPLICATE_CONFIRMATION", "payment.duplicate_confirmation")
		out.Duplicate = true
		out.Success = settled(p.Status)
		return out, nil
	}
	expected := p.Status
	s.assessRisk(ctx, p)
	if err := p.Complete(reference, s.now()); err != nil {
		run.Fail("PAYMENT_TRANSITION_FAILED")
		return nil, err
	}
	if err := s.save(ctx, p, expected); err != nil {
		if errors.Is(err, dompay.ErrConflict) {
			return s.raced(ctx, run, out)
		}
		run.Fail("REPO_UPDATE_FAILED")
		return nil, err
	}
	s.publishOutcome(ctx, p)
	out.Success = true
	return out, nil
}

// VoidAttempt cancels a payment attempt that has not settled. Missing or already failed attempts are left alone.
// A settled attempt is reported as a *SettledError.
func (s *Service) VoidAttempt(ctx context.Context, paymentID, reason string) error {
	p, err := s.repo.Get(ctx, paymentID)
	if err != nil {
		if errors.Is(err, dompay.ErrNotFound) {
			return nil
		}
		return wrapRepositoryError(err)
	}
	return s.void(ctx, p, reason)
}

// VoidLatest cancels the order's latest attempt when it is still open. A settled attempt is reported as a *SettledError.
func (s *Service) VoidLatest(ctx context.Context, orderNumber, reason string) error {
	p, err := s.repo.LatestByOrderNumber(ctx, orderNumber)
	if err != nil {
		if errors.Is(err, dompay.ErrNotFound) {
			return nil
		}
		return wrapRepositoryError(err)
	}
	return s.void(ctx, p, reason)
}

// SettledError refuses a void because the attempt already captured money.
type SettledError struct {
	Payment *dompay.Payment
}

func (e *SettledError) Error() string {
	return fmt.Sprintf("%s: payment %s is %s", dompay.ErrSettled, e.Payment.ID, e.Payment.Status)
}

func (e *SettledError) Unwrap() error { return dompay.ErrSettled }

func (s *Service) void(ctx context.Context, p *dompay.Payment, reason string) (err error) {
	if settled(p.Status) {
		return &SettledError{Payment: p}
	}
	if final(p.Status) {
		return nil
	}
	ctx, run := s.in.Start(ctx, useCaseVoid, "VoidPayment", attribute.String("payment.id", p.ID))
	run.With(observability.F("payment_id", p.ID), observability.F("order_number", p.OrderNumber))
	defer func() { run.Finish(err) }()

	expected := p.Status
	if err := p.Cancel(reason, s.now()); err != nil {
		return err
	}
	if err := s.save(ctx, p, expected); err != nil {
		if !errors.Is(err, dompay.ErrConflict) {
			return err
		}
		// A settlement may have won the race.
		cur, gErr := s.repo.Get(ctx, p.ID)
		if gErr != nil {
			return wrapRepositoryError(gErr)
		}
		if settled(cur.Status) {
			run.Fail("ALREADY_SETTLED")
			return &SettledError{Payment: cur}
		}
		run.Replay("ALREADY_FINAL", "payment.void_skipped")
		return nil
	}
	return nil
}

func (s *Service) findByReference(ctx context.Context, ref string) (*dompay.Payment, error) {
	p, err := s.repo.FindByTransactionID(ctx, ref)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, dompay.ErrNotFound) {
		return nil, wrapRepositoryError(err)
	}
	p, err = s.repo.LatestByOrderNumber(ctx, ref)
	return p, wrapRepositoryError(err)
}

// final reports statuses a callback or confirmation can no longer change.
func final(st dompay.Status) bool {
	return st != dompay.StatusPending && st != dompay.StatusProcessing
}

func settled(st dompay.Status) bool {
	return st == dompay.StatusCompleted || st == dompay.StatusPartiallyRefunded || st == dompay.StatusRefunded
}

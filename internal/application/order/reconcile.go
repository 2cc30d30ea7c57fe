package order

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/application"
	apppay "github.com/Zhima-Mochi/minishop-fulfillment/internal/application/payment"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/deadletter"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/fault"
	domorder "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/order"
	dompay "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/pkg/retry"
)

const (
	useCaseConfirmPayment  = "order.confirm_payment"
	useCaseGatewayCallback = "order.gateway_callback"
	useCaseBankTransfer    = "order.confirm_bank_transfer"
	useCaseCard            = "order.confirm_card"
)

// Reconciliation is the order-level outcome of an external payment confirmation.
type Reconciliation struct {
	Order      *domorder.Order
	Settlement *apppay.Settlement
}

// ConfirmPayment confirms the inventory reservation, then records the payment on the order and moves it to CONFIRMED.
// Failed attempts are retried with a linear backoff; exhaustion is escalated as ErrCriticalConsistency.
func (s *Service) ConfirmPayment(ctx context.Context, orderNumber, reference string) (_ *domorder.Order, err error) {
	ctx, run := s.in.Start(ctx, useCaseConfirmPayment, "ConfirmPayment",
		attribute.String("order.number", orderNumber),
	)
	run.With(observability.F("order_number", orderNumber))
	defer func() { run.Finish(err) }()

	var (
		confirmed *domorder.Order
		old       domorder.Status
		replayed  bool
		last      *domorder.Order
	)
	policy := retry.Linear(s.saga.ConfirmAttempts, s.saga.ConfirmBaseDelay)
	err = retry.Do(ctx, policy, func(ctx context.Context, attempt int) error {
		o, err := s.repo.FindByNumber(ctx, orderNumber)
		if errors.Is(err, domorder.ErrNotFound) {
			return retry.Permanent(err)
		}
		if err != nil {
			return wrapRepositoryError(err)
		}
		last = o
		if o.PaymentStatus == domorder.PaymentCompleted && o.Status != domorder.StatusPending && o.Status != domorder.StatusProcessing {
			confirmed, replayed = o, true
			return nil
		}
		if o.IsTerminal() {
			return retry.Permanent(fmt.Errorf("%w: order %s is %s", domorder.ErrTerminalState, orderNumber, o.Status))
		}
		if _, err := s.inventory.Confirm(ctx, o.ID, lines(o.Items)); err != nil {
			run.Logger.Warn("confirm_attempt_failed", observability.F("attempt", attempt), observability.F("step", "inventory"), observability.F("error", err.Error()))
			return err
		}
		prev, err := o.ConfirmPayment(reference, s.now())
		if err != nil {
			return retry.Permanent(err)
		}
		if err := s.repo.Update(ctx, o); err != nil {
			run.Logger.Warn("confirm_attempt_failed", observability.F("attempt", attempt), observability.F("step", "persist"), observability.F("error", err.Error()))
			return wrapRepositoryError(err)
		}
		confirmed, old = o, prev
		return nil
	})
	if err != nil {
		var exhausted *retry.ExhaustedError
		if errors.As(err, &exhausted) {
			run.Fail("CRITICAL_CONSISTENCY")
			if last == nil {
				last = &domorder.Order{OrderNumber: orderNumber}
			}
			s.escalate(ctx, "order.confirm_payment", last, domorder.StatusConfirmed, exhausted, exhausted.Attempts, deadletter.PriorityCritical)
			return nil, fmt.Errorf("%w: order %s: %w", fault.ErrCriticalConsistency, orderNumber, err)
		}
		run.Fail("CONFIRM_REJECTED")
		return nil, err
	}
	if replayed {
		run.Replay("ALREADY_CONFIRMED", "order.confirm_replayed")
		return confirmed, nil
	}
	s.publishStatusChanged(ctx, confirmed, old, "payment confirmed")
	run.Span().SetAttributes(attribute.String("order.status", string(confirmed.Status)))
	return confirmed, nil
}

// HandleGatewayCallback applies a redirect-gateway callback. Success confirms the order; any other outcome,
// including an unverifiable signature, fails the payment and cancels the order. Replays change nothing.
func (s *Service) HandleGatewayCallback(ctx context.Context, params map[string]string) (_ *Reconciliation, err error) {
	ctx, run := s.in.Start(ctx, useCaseGatewayCallback, "HandleGatewayCallback")
	defer func() { run.Finish(err) }()

	st, err := s.payments.SettleGatewayCallback(ctx, params)
	if err != nil {
		run.Fail("SETTLEMENT_FAILED")
		return &Reconciliation{Settlement: st}, err
	}
	run.With(
		observability.F("order_number", st.OrderNumber),
		observability.F("verified", st.Verified),
		observability.F("success", st.Success),
	)
	run.Span().SetAttributes(
		attribute.String("order.number", st.OrderNumber),
		attribute.Bool("callback.verified", st.Verified),
	)
	return s.reconcile(ctx, run, st)
}

// ConfirmBankTransfer records a manually verified transfer for orderNumber.
func (s *Service) ConfirmBankTransfer(ctx context.Context, orderNumber, transactionID string) (_ *Reconciliation, err error) {
	ctx, run := s.in.Start(ctx, useCaseBankTransfer, "ConfirmBankTransfer",
		attribute.String("order.number", orderNumber),
	)
	run.With(observability.F("order_number", orderNumber))
	defer func() { run.Finish(err) }()

	st, err := s.payments.SettleBankTransfer(ctx, orderNumber, transactionID)
	if err != nil {
		run.Fail("SETTLEMENT_FAILED")
		return nil, err
	}
	return s.reconcile(ctx, run, st)
}

// ConfirmCard confirms the card intent with the provider and reconciles the order.
func (s *Service) ConfirmCard(ctx context.Context, intentID string) (_ *Reconciliation, err error) {
	ctx, run := s.in.Start(ctx, useCaseCard, "ConfirmCard",
		attribute.String("payment.intent_id", intentID),
	)
	run.With(observability.F("intent_id", intentID))
	defer func() { run.Finish(err) }()

	st, err := s.payments.SettleCard(ctx, intentID)
	if err != nil {
		run.Fail("SETTLEMENT_FAILED")
		return nil, err
	}
	if !st.Success && !st.Duplicate && st.Payment != nil && st.Payment.Status == domorder.PaymentProcessing {
		run.Fail("PAYMENT_PENDING")
		o, err := s.load(ctx, st.OrderNumber)
		return &Reconciliation{Order: o, Settlement: st}, err
	}
	return s.reconcile(ctx, run, st)
}

func (s *Service) reconcile(ctx context.Context, run *application.Run, st *apppay.Settlement) (*Reconciliation, error) {
	out := &Reconciliation{Settlement: st}
	reference := paymentReference(st.Payment)

	if st.Duplicate {
		run.Replay("DUPLICATE_CALLBACK", "order.duplicate_confirmation")
		o, err := s.load(ctx, st.OrderNumber)
		if err != nil {
			return out, err
		}
		out.Order = o
		// A replay after a crash between settlement and confirmation finishes the confirmation.
		if st.Success && o.PaymentStatus != domorder.PaymentCompleted && !o.IsTerminal() {
			o, err = s.ConfirmPayment(ctx, st.OrderNumber, reference)
			if err != nil {
				return out, err
			}
			out.Order = o
		}
		return out, nil
	}

	if st.Success {
		o, err := s.ConfirmPayment(ctx, st.OrderNumber, reference)
		if err != nil {
			run.Fail("CONFIRM_FAILED")
			return out, err
		}
		out.Order = o
		return out, nil
	}

	run.Fail("PAYMENT_FAILED")
	o, err := s.cancel(ctx, st.OrderNumber, st.Reason, true)
	if errors.Is(err, domorder.ErrTerminalState) {
		o, err = s.load(ctx, st.OrderNumber)
	}
	if err != nil {
		return out, err
	}
	out.Order = o
	return out, nil
}

// paymentReference is the identifier recorded on the order: the gateway's transaction number when known.
func paymentReference(p *dompay.Payment) string {
	if p == nil {
		return ""
	}
	if p.GatewayTransactionNo != "" {
		return p.GatewayTransactionNo
	}
	return p.TransactionID
}

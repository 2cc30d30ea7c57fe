package order

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/deadletter"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/fault"
	domorder "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/order"
	dompay "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"
)

const (
	useCaseOrderCancel = "order.cancel"
	useCaseOrderDelete = "order.delete"
)

// Cancel unwinds a live order: the settled payment is refunded or the open attempt voided,
// the inventory reservation is released and the order leaves the active lifecycle.
// Terminal orders are rejected with ErrTerminalState and left untouched.
func (s *Service) Cancel(ctx context.Context, orderNumber, reason string) (*domorder.Order, error) {
	return s.cancel(ctx, orderNumber, reason, false)
}

// cancel with paymentFailed set records the payment as FAILED instead of CANCELLED.
func (s *Service) cancel(ctx context.Context, orderNumber, reason string, paymentFailed bool) (_ *domorder.Order, err error) {
	ctx, run := s.in.Start(ctx, useCaseOrderCancel, "CancelOrder",
		attribute.String("order.number", orderNumber),
	)
	run.With(observability.F("order_number", orderNumber), observability.F("reason", reason))
	defer func() { run.Finish(err) }()

	o, err := s.load(ctx, orderNumber)
	if err != nil {
		run.Fail("ORDER_LOAD_FAILED")
		return nil, err
	}
	if o.IsTerminal() {
		run.Fail("TERMINAL_STATE")
		return nil, fmt.Errorf("%w: order %s is %s", domorder.ErrTerminalState, orderNumber, o.Status)
	}

	now := s.now()
	shipped := o.Status == domorder.StatusShipped
	refund := o.PaymentStatus == domorder.PaymentCompleted && o.PaymentMethod != domorder.MethodCashOnDelivery
	if !refund && !paymentFailed && (o.PaymentStatus == domorder.PaymentPending || o.PaymentStatus == domorder.PaymentProcessing) {
		if vErr := s.payments.VoidLatest(ctx, orderNumber, reason); vErr != nil {
			if errors.Is(vErr, dompay.ErrSettled) {
				// Settled after all: the confirmation never reached the order.
				run.Logger.Warn("cancel_found_settled_payment", observability.F("error", vErr.Error()))
				refund = o.SetPaymentStatus(domorder.PaymentCompleted, now) == nil
			} else {
				run.Logger.Warn("payment_void_failed", observability.F("error", vErr.Error()))
			}
		}
	}

	var old domorder.Status
	switch {
	case refund:
		if _, rErr := s.payments.RefundByOrderNumber(ctx, orderNumber, reason); rErr != nil {
			run.Logger.Error("refund_failed", observability.F("error", rErr.Error()))
			s.escalate(ctx, "payment.refund", o, domorder.StatusRefunded, rErr, 1, deadletter.PriorityCritical)
			old, err = o.Cancel(reason, now)
		} else {
			old, err = o.Refund(reason, now)
		}
	default:
		if paymentFailed {
			if err := o.SetPaymentStatus(domorder.PaymentFailed, now); err != nil {
				run.Logger.Warn("payment_status_not_updated", observability.F("error", err.Error()))
			}
		}
		old, err = o.Cancel(reason, now)
	}
	if err != nil {
		run.Fail("STATE_TRANSITION_FAILED")
		return nil, err
	}

	if err := s.repo.Update(ctx, o); err != nil {
		run.Fail("ORDER_UPDATE_FAILED")
		return nil, wrapRepositoryError(err)
	}
	if !shipped {
		s.releaseInventory(ctx, o.ID, o.Items)
	}
	s.publishStatusChanged(ctx, o, old, reason)

	run.Span().SetAttributes(attribute.String("order.status", string(o.Status)))
	return o, nil
}

// Delete hard-deletes an order that has not been paid, releasing its reservation.
func (s *Service) Delete(ctx context.Context, orderNumber string) (err error) {
	ctx, run := s.in.Start(ctx, useCaseOrderDelete, "DeleteOrder",
		attribute.String("order.number", orderNumber),
	)
	run.With(observability.F("order_number", orderNumber))
	defer func() { run.Finish(err) }()

	o, err := s.load(ctx, orderNumber)
	if err != nil {
		run.Fail("ORDER_LOAD_FAILED")
		return err
	}
	if o.Settled() {
		run.Fail("ORDER_SETTLED")
		return settledRejection(orderNumber)
	}
	if err := s.discard(ctx, o, "order deleted"); err != nil {
		if errors.Is(err, dompay.ErrSettled) {
			run.Fail("PAYMENT_SETTLED")
			return fmt.Errorf("%w: %w", settledRejection(orderNumber), err)
		}
		return err
	}
	return nil
}

func settledRejection(orderNumber string) error {
	return fault.Rejected("order", fmt.Sprintf("order %s has a settled payment and cannot be deleted", orderNumber))
}

// Release hands the reservation for orderID back to inventory.
func (s *Service) Release(ctx context.Context, orderID string, items []domorder.Item) {
	s.releaseInventory(ctx, orderID, items)
}

// discard voids the open payment attempt, releases inventory and removes the order.
// A settled attempt stops it before anything is released. The error then wraps *apppay.SettledError.
func (s *Service) discard(ctx context.Context, o *domorder.Order, reason string) error {
	if err := s.payments.VoidLatest(ctx, o.OrderNumber, reason); err != nil {
		return err
	}
	s.Release(ctx, o.ID, o.Items)
	if err := s.repo.Delete(ctx, o.ID); err != nil && !errors.Is(err, domorder.ErrNotFound) {
		return wrapRepositoryError(err)
	}
	return nil
}

package order

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/fault"
	domorder "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"
)

const useCaseUpdateStatus = "order.update_status"

// GetOrder returns the order with the given number.
func (s *Service) GetOrder(ctx context.Context, orderNumber string) (*domorder.Order, error) {
	if strings.TrimSpace(orderNumber) == "" {
		return nil, fault.Validation("orderNumber is required")
	}
	return s.load(ctx, orderNumber)
}

// UpdateStatus moves an order along the fulfilment lifecycle (ship, deliver, complete).
// CANCELLED is routed through Cancel so that payment and inventory are unwound with it.
func (s *Service) UpdateStatus(ctx context.Context, orderNumber, status, reason string) (_ *domorder.Order, err error) {
	to, err := domorder.ParseStatus(strings.ToUpper(strings.TrimSpace(status)))
	if err != nil {
		return nil, fault.Validation(err.Error())
	}
	switch to {
	case domorder.StatusCancelled:
		return s.Cancel(ctx, orderNumber, reason)
	case domorder.StatusPending, domorder.StatusProcessing, domorder.StatusConfirmed, domorder.StatusRefunded, domorder.StatusFailed:
		return nil, fault.Validationf("status %s is set by payment reconciliation only", to)
	}

	ctx, run := s.in.Start(ctx, useCaseUpdateStatus, "UpdateOrderStatus",
		attribute.String("order.number", orderNumber),
		attribute.String("order.target_status", string(to)),
	)
	run.With(observability.F("order_number", orderNumber), observability.F("target_status", string(to)))
	defer func() { run.Finish(err) }()

	o, err := s.load(ctx, orderNumber)
	if err != nil {
		run.Fail("ORDER_LOAD_FAILED")
		return nil, err
	}
	if o.Status == to {
		run.Replay("UNCHANGED", "order.status_unchanged")
		return o, nil
	}
	old, err := o.TransitionTo(to, s.now())
	if err != nil {
		if errors.Is(err, domorder.ErrTerminalState) {
			run.Fail("TERMINAL_STATE")
		} else {
			run.Fail("INVALID_TRANSITION")
		}
		return nil, err
	}
	if err := s.repo.Update(ctx, o); err != nil {
		run.Fail("ORDER_UPDATE_FAILED")
		return nil, wrapRepositoryError(err)
	}
	s.publishStatusChanged(ctx, o, old, reason)
	return o, nil
}

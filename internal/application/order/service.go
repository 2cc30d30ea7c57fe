// Package order runs the create-order saga and reconciles asynchronous payment outcomes with orders.
package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/application"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/deadletter"
	dominventory "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability/logctx"
)

const orderService = "order-service"

var (
	ErrNotFound   = domorder.ErrNotFound
	ErrConflict   = domorder.ErrConflict
	ErrRepository = errors.New("order: repository failure")
)

// SagaOptions bounds the retry and timeout behaviour of the orchestrator.
type SagaOptions struct {
	ConfirmAttempts  int
	ConfirmBaseDelay time.Duration
	PaymentTimeout   time.Duration
	SweepBatch       int
}

func (o SagaOptions) withDefaults() SagaOptions {
	if o.ConfirmAttempts <= 0 {
		o.ConfirmAttempts = 3
	}
	if o.ConfirmBaseDelay < 0 {
		o.ConfirmBaseDelay = 0
	}
	if o.PaymentTimeout <= 0 {
		o.PaymentTimeout = 30 * time.Minute
	}
	if o.SweepBatch <= 0 {
		o.SweepBatch = 100
	}
	return o
}

type Deps struct {
	Repo        domorder.Repository
	IDs         application.IDGenerator
	Inventory   Inventory
	Vouchers    Vouchers
	Payments    Payments
	DeadLetters deadletter.Sink
	Publisher   domoutbox.Publisher
	Clock       application.Clock
	Saga        SagaOptions
}

// Service is the order orchestrator. It owns the order aggregate and drives every collaborator through ports.
type Service struct {
	repo        domorder.Repository
	ids         application.IDGenerator
	inventory   Inventory
	vouchers    Vouchers
	payments    Payments
	deadLetters deadletter.Sink
	publisher   domoutbox.Publisher
	now         application.Clock
	saga        SagaOptions
	in          application.Instruments

	creates singleflight.Group
}

func NewService(d Deps, tel observability.Observability) *Service {
	now := d.Clock
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:        d.Repo,
		ids:         d.IDs,
		inventory:   d.Inventory,
		vouchers:    d.Vouchers,
		payments:    d.Payments,
		deadLetters: d.DeadLetters,
		publisher:   d.Publisher,
		now:         now,
		saga:        d.Saga.withDefaults(),
		in:          application.NewInstruments(tel, orderService),
	}
}

func (s *Service) load(ctx context.Context, orderNumber string) (*domorder.Order, error) {
	o, err := s.repo.FindByNumber(ctx, orderNumber)
	if err != nil {
		return nil, wrapRepositoryError(err)
	}
	return o, nil
}

// releaseInventory hands the reservation back. Failures are logged; the gateway queues unreachable calls itself.
func (s *Service) releaseInventory(ctx context.Context, orderID string, items []domorder.Item) {
	logger := logctx.FromOr(ctx, s.in.Logger())
	out, err := s.inventory.Release(ctx, orderID, lines(items))
	switch {
	case err != nil:
		logger.Warn("inventory_release_failed", observability.F("order_id", orderID), observability.F("error", err.Error()))
	case out.Queued:
		logger.Info("inventory_release_queued", observability.F("order_id", orderID))
	}
}

// escalate records a failure that needs an operator.
func (s *Service) escalate(ctx context.Context, op string, o *domorder.Order, target domorder.Status, cause error, attempts int, prio deadletter.Priority) {
	rec := deadletter.New(orderService, op, cause, s.now())
	rec.Attempts = attempts
	rec.Priority = prio
	rec.TargetStatus = string(target)
	if o != nil {
		rec.OrderID = o.ID
		rec.OrderNumber = o.OrderNumber
	}
	logger := logctx.FromOr(ctx, s.in.Logger())
	if s.deadLetters == nil {
		logger.Error("manual_intervention_required",
			observability.F("operation", op),
			observability.F("order_number", rec.OrderNumber),
			observability.F("error", rec.Error),
		)
		return
	}
	if err := s.deadLetters.Emit(context.WithoutCancel(ctx), rec); err != nil {
		logger.Error("dead_letter_emit_failed",
			observability.F("operation", op),
			observability.F("failure_id", rec.FailureID),
			observability.F("error", err.Error()),
		)
	}
}

func (s *Service) publishStatusChanged(ctx context.Context, o *domorder.Order, old domorder.Status, reason string) {
	if old == o.Status {
		return
	}
	_ = s.in.Publish(ctx, s.publisher, domorder.NewStatusChangedEvent(o, old, reason))
}

func lines(items []domorder.Item) []dominventory.Line {
	out := make([]dominventory.Line, 0, len(items))
	for _, it := range items {
		out = append(out, dominventory.Line{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return out
}

func wrapRepositoryError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domorder.ErrNotFound), errors.Is(err, domorder.ErrConflict):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrRepository, err)
	}
}

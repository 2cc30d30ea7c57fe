// Package inventory replays inventory confirm and release calls that were deferred while the ledger was unreachable.
package inventory

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/application"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/deadletter"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/fault"
	dominventory "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/pkg/retry"
)

const (
	inventoryService = "inventory-retry"
	useCaseRetry     = "inventory.retry"
)

// Ledger applies one operation against the inventory collaborator without any fallback.
type Ledger interface {
	Apply(ctx context.Context, op dominventory.Operation, orderID string, lines []dominventory.Line) error
}

type RetryResult struct {
	Applied  bool
	Attempts int
}

// RetryUseCase re-applies a deferred operation with a bounded linear backoff and
// escalates to a dead-letter record when it cannot be applied.
type RetryUseCase struct {
	ledger      Ledger
	deadLetters deadletter.Sink
	policy      retry.Policy
	now         application.Clock
	in          application.Instruments
}

var _ application.UseCase[dominventory.RetryRequestedEvent, *RetryResult] = (*RetryUseCase)(nil)

func NewRetryUseCase(ledger Ledger, deadLetters deadletter.Sink, attempts int, baseDelay time.Duration, tel observability.Observability) *RetryUseCase {
	return &RetryUseCase{
		ledger:      ledger,
		deadLetters: deadLetters,
		policy:      retry.Linear(attempts, baseDelay),
		now:         time.Now,
		in:          application.NewInstruments(tel, inventoryService),
	}
}

func (uc *RetryUseCase) Execute(ctx context.Context, evt dominventory.RetryRequestedEvent) (_ *RetryResult, err error) {
	ctx, run := uc.in.Start(ctx, useCaseRetry, "RetryInventory",
		attribute.String("inventory.operation", string(evt.Operation)),
		attribute.String("order.id", evt.OrderID),
	)
	run.With(
		observability.F("operation", string(evt.Operation)),
		observability.F("order_id", evt.OrderID),
		observability.F("cause", evt.Cause),
	)
	defer func() { run.Finish(err) }()

	res := &RetryResult{}
	err = retry.Do(ctx, uc.policy, func(ctx context.Context, attempt int) error {
		res.Attempts = attempt
		err := uc.ledger.Apply(ctx, evt.Operation, evt.OrderID, evt.Lines)
		if errors.Is(err, fault.ErrBusinessRejection) {
			return retry.Permanent(err)
		}
		return err
	})
	run.With(observability.F("attempts", res.Attempts))
	if err == nil {
		res.Applied = true
		return res, nil
	}

	run.Fail("RETRY_EXHAUSTED")
	rec := deadletter.New(inventoryService, "inventory."+string(evt.Operation), err, uc.now())
	rec.OrderID = evt.OrderID
	rec.Attempts = res.Attempts
	rec.Priority = deadletter.PriorityHigh
	if emitErr := uc.deadLetters.Emit(context.WithoutCancel(ctx), rec); emitErr != nil {
		run.Logger.Error("dead_letter_emit_failed", observability.F("failure_id", rec.FailureID), observability.F("error", emitErr.Error()))
	}
	return res, err
}

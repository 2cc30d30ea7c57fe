package inventory

import (
	"context"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/application"
	dominventory "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/inventory"
	domoutbox "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/outbox"
)

// Worker feeds inventory.retry_requested events into the retry use case.
type Worker struct {
	subscriber domoutbox.Subscriber
	useCase    application.UseCase[dominventory.RetryRequestedEvent, *RetryResult]
}

func NewWorker(subscriber domoutbox.Subscriber, useCase application.UseCase[dominventory.RetryRequestedEvent, *RetryResult]) *Worker {
	return &Worker{subscriber: subscriber, useCase: useCase}
}

func (w *Worker) Start() {
	if w.subscriber == nil || w.useCase == nil {
		return
	}
	w.subscriber.Subscribe(dominventory.EventRetryRequested, domoutbox.Typed(w.handleRetryRequested))
}

func (w *Worker) handleRetryRequested(ctx context.Context, evt dominventory.RetryRequestedEvent) error {
	_, err := w.useCase.Execute(ctx, evt)
	return err
}

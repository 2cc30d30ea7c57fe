// Package notification turns order and payment events into customer notifications.
package notification

import (
	"context"
	"fmt"

	domnotify "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/notification"
	domorder "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/outbox"
	dompay "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability/logctx"
)

const workerService = "notification-worker"

// Worker dispatches one notification per subscribed event. Delivery failures are logged and counted, never returned.
type Worker struct {
	subscriber domoutbox.Subscriber
	sender     domnotify.Sender
	log        observability.Logger
	sent       observability.Counter // notifications_total{kind,outcome}
}

func NewWorker(subscriber domoutbox.Subscriber, sender domnotify.Sender, tel observability.Observability) *Worker {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Worker{
		subscriber: subscriber,
		sender:     sender,
		log:        tel.Logger().With(observability.F("service", workerService)),
		sent:       tel.Metrics().Counter(observability.MNotifications),
	}
}

func (w *Worker) Start() {
	if w.subscriber == nil || w.sender == nil {
		return
	}
	w.subscriber.Subscribe(domorder.EventCreated, domoutbox.Typed(func(ctx context.Context, e domorder.CreatedEvent) error {
		return w.dispatch(ctx, fromCreated(e))
	}))
	w.subscriber.Subscribe(domorder.EventStatusChanged, domoutbox.Typed(func(ctx context.Context, e domorder.StatusChangedEvent) error {
		return w.dispatch(ctx, fromStatusChanged(e))
	}))
	w.subscriber.Subscribe(dompay.EventSucceeded, domoutbox.Typed(func(ctx context.Context, e dompay.SucceededEvent) error {
		return w.dispatch(ctx, fromPaymentSucceeded(e))
	}))
	w.subscriber.Subscribe(dompay.EventFailed, domoutbox.Typed(func(ctx context.Context, e dompay.FailedEvent) error {
		return w.dispatch(ctx, fromPaymentFailed(e))
	}))
}

func (w *Worker) dispatch(ctx context.Context, n domnotify.Notification) error {
	logger := logctx.FromOr(ctx, w.log).With(
		observability.F("kind", string(n.Kind)),
		observability.F("order_number", n.OrderNumber),
	)
	outcome := "success"
	if err := w.sender.Send(ctx, n); err != nil {
		outcome = "error"
		logger.Warn("notification_failed", observability.F("error", err.Error()))
	} else {
		logger.Debug("notification_sent")
	}
	w.sent.Add(1,
		observability.L("kind", string(n.Kind)),
		observability.L("outcome", outcome),
	)
	return nil
}

func fromCreated(e domorder.CreatedEvent) domnotify.Notification {
	return domnotify.Notification{
		Kind:        domnotify.KindOrderCreated,
		UserID:      e.UserID,
		OrderNumber: e.OrderNumber,
		Status:      string(e.Status),
		Amount:      e.TotalAmount,
		Message:     fmt.Sprintf("Order %s has been placed", e.OrderNumber),
		OccurredAt:  e.OccurredAt,
	}
}

func fromStatusChanged(e domorder.StatusChangedEvent) domnotify.Notification {
	msg := fmt.Sprintf("Order %s is now %s", e.OrderNumber, e.NewStatus)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return domnotify.Notification{
		Kind:        domnotify.KindOrderStatusChanged,
		UserID:      e.UserID,
		OrderNumber: e.OrderNumber,
		Status:      string(e.NewStatus),
		OldStatus:   string(e.OldStatus),
		Amount:      e.TotalAmount,
		Message:     msg,
		OccurredAt:  e.OccurredAt,
	}
}

func fromPaymentSucceeded(e dompay.SucceededEvent) domnotify.Notification {
	return domnotify.Notification{
		Kind:        domnotify.KindPaymentSucceeded,
		UserID:      e.UserID,
		OrderNumber: e.OrderNumber,
		PaymentID:   e.PaymentID,
		Status:      string(dompay.StatusCompleted),
		Amount:      e.Amount,
		Message:     fmt.Sprintf("Payment for order %s succeeded", e.OrderNumber),
		OccurredAt:  e.OccurredAt,
	}
}

func fromPaymentFailed(e dompay.FailedEvent) domnotify.Notification {
	return domnotify.Notification{
		Kind:        domnotify.KindPaymentFailed,
		UserID:      e.UserID,
		OrderNumber: e.OrderNumber,
		PaymentID:   e.PaymentID,
		Status:      string(dompay.StatusFailed),
		Amount:      e.Amount,
		Message:     fmt.Sprintf("Payment for order %s failed: %s", e.OrderNumber, e.Reason),
		OccurredAt:  e.OccurredAt,
	}
}

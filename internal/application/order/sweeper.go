package order

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	apppay "github.com/Zhima-Mochi/minishop-fulfillment/internal/application/payment"
	domorder "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"
)

const useCaseSweep = "order.sweep_stale_payments"

// SweepStale removes orders whose external payment has been PROCESSING for longer than the payment timeout.
// Each one has its open attempt voided and its reservation released before it is deleted.
// An order whose attempt settled without the confirmation landing is confirmed instead, never deleted.
func (s *Service) SweepStale(ctx context.Context) (swept int, err error) {
	ctx, run := s.in.Start(ctx, useCaseSweep, "SweepStalePayments")
	recovered := 0
	defer func() {
		run.With(observability.F("swept", swept), observability.F("recovered", recovered))
		run.Finish(err)
	}()

	cutoff := s.now().Add(-s.saga.PaymentTimeout)
	stale, err := s.repo.ListStale(ctx, domorder.StatusProcessing, domorder.PaymentProcessing, cutoff, s.saga.SweepBatch)
	if err != nil {
		run.Fail("ORDER_LIST_FAILED")
		return 0, wrapRepositoryError(err)
	}
	for _, o := range stale {
		err := s.discard(ctx, o, "payment timeout")
		var settled *apppay.SettledError
		switch {
		case errors.As(err, &settled):
			if _, cErr := s.ConfirmPayment(ctx, o.OrderNumber, paymentReference(settled.Payment)); cErr != nil {
				run.Logger.Error("stale_order_not_confirmed",
					observability.F("order_number", o.OrderNumber),
					observability.F("error", cErr.Error()),
				)
				continue
			}
			run.Logger.Warn("stale_order_confirmed", observability.F("order_number", o.OrderNumber))
			recovered++
		case err != nil:
			run.Logger.Warn("stale_order_not_swept",
				observability.F("order_number", o.OrderNumber),
				observability.F("error", err.Error()),
			)
		default:
			swept++
		}
	}
	run.Span().SetAttributes(attribute.Int("sweep.count", swept), attribute.Int("sweep.recovered", recovered))
	return swept, nil
}

// Sweeper runs SweepStale on a fixed interval until stopped.
type Sweeper struct {
	svc      *Service
	interval time.Duration
	log      observability.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSweeper(svc *Service, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Sweeper{
		svc:      svc,
		interval: interval,
		log:      svc.in.Logger().With(observability.F("component", "payment_timeout_sweeper")),
	}
}

func (w *Sweeper) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		t := time.NewTicker(w.interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if _, err := w.svc.SweepStale(ctx); err != nil {
					w.log.Warn("sweep_failed", observability.F("error", err.Error()))
				}
			}
		}
	}()
}

// Stop cancels the loop and waits for an in-flight sweep to return.
func (w *Sweeper) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

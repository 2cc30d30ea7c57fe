package inventory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/deadletter"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/fault"
	dominventory "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/inventory"
	domoutbox "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/outbox"
)

type flakyLedger struct {
	mu       sync.Mutex
	failures int
	err      error
	calls    int
}

func (l *flakyLedger) Apply(context.Context, dominventory.Operation, string, []dominventory.Line) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.calls <= l.failures {
		return l.err
	}
	return nil
}

type recordingSink struct {
	records []deadletter.Record
}

func (s *recordingSink) Emit(_ context.Context, r deadletter.Record) error {
	s.records = append(s.records, r)
	return nil
}

func retryEvent(op dominventory.Operation) dominventory.RetryRequestedEvent {
	return dominventory.NewRetryRequestedEvent(op, "o-1",
		[]dominventory.Line{{ProductID: "p-1", Quantity: 2}},
		errors.New("inventory unreachable"), time.Now())
}

func TestRetryAppliesAfterTransientFailures(t *testing.T) {
	ledger := &flakyLedger{failures: 2, err: fault.Unavailable("inventory", errors.New("timeout"))}
	sink := &recordingSink{}
	uc := NewRetryUseCase(ledger, sink, 3, 0, nil)

	res, err := uc.Execute(context.Background(), retryEvent(dominventory.OpConfirm))
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, 3, res.Attempts)
	assert.Empty(t, sink.records)
}

func TestRetryExhaustionIsDeadLettered(t *testing.T) {
	ledger := &flakyLedger{failures: 10, err: fault.Unavailable("inventory", errors.New("timeout"))}
	sink := &recordingSink{}
	uc := NewRetryUseCase(ledger, sink, 3, 0, nil)

	res, err := uc.Execute(context.Background(), retryEvent(dominventory.OpRelease))
	assert.ErrorIs(t, err, fault.ErrCollaboratorUnavailable)
	assert.False(t, res.Applied)

	require.Len(t, sink.records, 1)
	rec := sink.records[0]
	assert.Equal(t, "inventory.release", rec.Operation)
	assert.Equal(t, "o-1", rec.OrderID)
	assert.Equal(t, 3, rec.Attempts)
	assert.Equal(t, deadletter.PriorityHigh, rec.Priority)
}

func TestRetryStopsOnRejection(t *testing.T) {
	ledger := &flakyLedger{failures: 10, err: fault.Rejected("inventory", "unknown reservation")}
	sink := &recordingSink{}
	uc := NewRetryUseCase(ledger, sink, 5, 0, nil)

	res, err := uc.Execute(context.Background(), retryEvent(dominventory.OpConfirm))
	assert.ErrorIs(t, err, fault.ErrBusinessRejection)
	assert.Equal(t, 1, res.Attempts)
	assert.Len(t, sink.records, 1)
}

type capturingSubscriber struct {
	handlers map[string]domoutbox.Handler
}

func (s *capturingSubscriber) Subscribe(name string, h domoutbox.Handler) {
	if s.handlers == nil {
		s.handlers = map[string]domoutbox.Handler{}
	}
	s.handlers[name] = h
}

func TestWorkerRoutesRetryEvents(t *testing.T) {
	ledger := &flakyLedger{}
	sub := &capturingSubscriber{}
	NewWorker(sub, NewRetryUseCase(ledger, &recordingSink{}, 1, 0, nil)).Start()

	h, ok := sub.handlers[dominventory.EventRetryRequested]
	require.True(t, ok)
	require.NoError(t, h(context.Background(), retryEvent(dominventory.OpConfirm)))
	assert.Equal(t, 1, ledger.calls)
}

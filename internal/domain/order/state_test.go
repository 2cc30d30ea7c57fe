package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOrder(t *testing.T) *Order {
	t.Helper()
	o, err := New("id-1", draft(), fixedNow)
	require.NoError(t, err)
	return o
}

func TestForwardPath(t *testing.T) {
	o := newOrder(t)
	require.NoError(t, o.AwaitPayment(fixedNow))
	assert.Equal(t, StatusProcessing, o.Status)
	assert.Equal(t, PaymentProcessing, o.PaymentStatus)

	from, err := o.ConfirmPayment("TXN-1", fixedNow)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, from)
	assert.Equal(t, StatusConfirmed, o.Status)
	assert.Equal(t, PaymentCompleted, o.PaymentStatus)
	require.NotNil(t, o.PaidAt)

	for _, next := range []Status{StatusShipped, StatusDelivered, StatusCompleted} {
		_, err := o.TransitionTo(next, fixedNow)
		require.NoError(t, err, next)
	}
	assert.Equal(t, StatusCompleted, o.Status)
}

func TestConfirmPaymentFromPendingForCashOnDelivery(t *testing.T) {
	o := newOrder(t)
	require.NoError(t, o.SetPaymentStatus(PaymentCompleted, fixedNow))

	_, err := o.ConfirmPayment("", fixedNow)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, o.Status)
}

func TestCancelRejectedOnTerminalStates(t *testing.T) {
	for _, st := range []Status{StatusCancelled, StatusDelivered, StatusCompleted, StatusFailed, StatusRefunded} {
		t.Run(string(st), func(t *testing.T) {
			o := newOrder(t)
			o.Status = st
			before := *o

			_, err := o.Cancel("changed my mind", fixedNow)
			assert.ErrorIs(t, err, ErrTerminalState)
			assert.Equal(t, before.Status, o.Status)
			assert.Empty(t, o.CancellationReason)
			assert.Nil(t, o.CancelledAt)
		})
	}
}

func TestCancelClosesOpenPaymentAttempt(t *testing.T) {
	o := newOrder(t)
	require.NoError(t, o.AwaitPayment(fixedNow))

	from, err := o.Cancel("timeout", fixedNow)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, from)
	assert.Equal(t, StatusCancelled, o.Status)
	assert.Equal(t, PaymentCancelled, o.PaymentStatus)
	assert.Equal(t, "timeout", o.CancellationReason)
	assert.NotNil(t, o.CancelledAt)
}

func TestRefundRequiresSettledPayment(t *testing.T) {
	o := newOrder(t)
	_, err := o.Refund("customer request", fixedNow)
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
	assert.Equal(t, StatusPending, o.Status)

	_, err = o.ConfirmPayment("TXN", fixedNow)
	require.NoError(t, err)
	_, err = o.Refund("customer request", fixedNow)
	require.NoError(t, err)
	assert.Equal(t, StatusRefunded, o.Status)
	assert.Equal(t, PaymentRefunded, o.PaymentStatus)
}

func TestDeliveredOnlyAdvancesToCompleted(t *testing.T) {
	o := newOrder(t)
	o.Status = StatusDelivered
	_, err := o.TransitionTo(StatusShipped, fixedNow)
	assert.ErrorIs(t, err, ErrTerminalState)
	_, err = o.TransitionTo(StatusCompleted, fixedNow)
	assert.NoError(t, err)
}

func TestSkippingStatesIsRejected(t *testing.T) {
	o := newOrder(t)
	_, err := o.TransitionTo(StatusShipped, fixedNow)
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
}

func TestPaymentStatusTable(t *testing.T) {
	assert.True(t, PaymentPending.CanTransition(PaymentCompleted))
	assert.True(t, PaymentCompleted.CanTransition(PaymentPartiallyRefunded))
	assert.False(t, PaymentCompleted.CanTransition(PaymentFailed))
	assert.False(t, PaymentFailed.CanTransition(PaymentCompleted))
	assert.True(t, PaymentRefunded.Terminal())
}

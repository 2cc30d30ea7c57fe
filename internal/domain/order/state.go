package order

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

var (
	ErrInvalidStateTransition = errors.New("order: invalid state transition")
	ErrTerminalState          = errors.New("order: order is in a terminal state")
)

// OrderState implements the state pattern for order lifecycle transitions.
type OrderState interface {
	Status() Status
	// Terminal states reject cancellation and every transition not listed in their own table.
	Terminal() bool
	Next(to Status) (OrderState, error)
}

type state struct {
	status   Status
	terminal bool
	next     []Status
}

func (s state) Status() Status { return s.status }
func (s state) Terminal() bool { return s.terminal }

func (s state) Next(to Status) (OrderState, error) {
	if slices.Contains(s.next, to) {
		return stateFor(to), nil
	}
	if s.terminal {
		return nil, fmt.Errorf("%w: %s", ErrTerminalState, s.status)
	}
	return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, s.status, to)
}

var (
	pendingState    = state{status: StatusPending, next: []Status{StatusProcessing, StatusConfirmed, StatusCancelled, StatusFailed, StatusRefunded}}
	processingState = state{status: StatusProcessing, next: []Status{StatusConfirmed, StatusCancelled, StatusFailed, StatusRefunded}}
	confirmedState  = state{status: StatusConfirmed, next: []Status{StatusShipped, StatusCancelled, StatusFailed, StatusRefunded}}
	shippedState    = state{status: StatusShipped, next: []Status{StatusDelivered, StatusCancelled, StatusFailed, StatusRefunded}}
	deliveredState  = state{status: StatusDelivered, terminal: true, next: []Status{StatusCompleted}}
	completedState  = state{status: StatusCompleted, terminal: true}
	cancelledState  = state{status: StatusCancelled, terminal: true}
	failedState     = state{status: StatusFailed, terminal: true}
	refundedState   = state{status: StatusRefunded, terminal: true}
)

func stateFor(s Status) OrderState {
	switch s {
	case StatusPending:
		return pendingState
	case StatusProcessing:
		return processingState
	case StatusConfirmed:
		return confirmedState
	case StatusShipped:
		return shippedState
	case StatusDelivered:
		return deliveredState
	case StatusCompleted:
		return completedState
	case StatusCancelled:
		return cancelledState
	case StatusFailed:
		return failedState
	case StatusRefunded:
		return refundedState
	default:
		return state{status: s, terminal: true}
	}
}

// ParseStatus validates an externally supplied status name.
func ParseStatus(s string) (Status, error) {
	if st := Status(s); slices.Contains(allStatuses, st) {
		return st, nil
	}
	return "", fmt.Errorf("order: unknown status %q", s)
}

var allStatuses = []Status{
	StatusPending, StatusProcessing, StatusConfirmed, StatusShipped, StatusDelivered,
	StatusCompleted, StatusCancelled, StatusFailed, StatusRefunded,
}

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending:           {PaymentProcessing, PaymentCompleted, PaymentFailed, PaymentCancelled},
	PaymentProcessing:        {PaymentCompleted, PaymentFailed, PaymentCancelled},
	PaymentCompleted:         {PaymentRefunded, PaymentPartiallyRefunded},
	PaymentPartiallyRefunded: {PaymentRefunded, PaymentPartiallyRefunded},
}

// CanTransition reports whether a payment may move from one status to another.
func (s PaymentStatus) CanTransition(to PaymentStatus) bool {
	return slices.Contains(paymentTransitions[s], to)
}

// Terminal reports whether no further payment transition is possible.
func (s PaymentStatus) Terminal() bool {
	return len(paymentTransitions[s]) == 0
}

// State returns the lifecycle state of the order.
func (o *Order) State() OrderState { return stateFor(o.Status) }

// IsTerminal reports whether the order can no longer be cancelled.
func (o *Order) IsTerminal() bool { return o.State().Terminal() }

// TransitionTo moves the order to status and returns the previous status.
func (o *Order) TransitionTo(to Status, now time.Time) (Status, error) {
	from := o.Status
	next, err := o.State().Next(to)
	if err != nil {
		return from, err
	}
	o.Status = next.Status()
	o.touch(now)
	return from, nil
}

// SetPaymentStatus moves the payment status, treating a repeat of the current status as a no-op.
func (o *Order) SetPaymentStatus(to PaymentStatus, now time.Time) error {
	if o.PaymentStatus == to {
		return nil
	}
	if !o.PaymentStatus.CanTransition(to) {
		return fmt.Errorf("%w: payment %s -> %s", ErrInvalidStateTransition, o.PaymentStatus, to)
	}
	o.PaymentStatus = to
	o.touch(now)
	return nil
}

// AwaitPayment marks the order PROCESSING while an external payment event is pending.
func (o *Order) AwaitPayment(now time.Time) error {
	if _, err := o.TransitionTo(StatusProcessing, now); err != nil {
		return err
	}
	return o.SetPaymentStatus(PaymentProcessing, now)
}

// ConfirmPayment records a settled payment and moves a PENDING or PROCESSING order to CONFIRMED.
// Callers must have confirmed the inventory reservation first.
func (o *Order) ConfirmPayment(reference string, now time.Time) (Status, error) {
	from := o.Status
	if err := o.SetPaymentStatus(PaymentCompleted, now); err != nil {
		return from, err
	}
	if reference != "" {
		o.PaymentReference = reference
	}
	if o.PaidAt == nil {
		t := now
		o.PaidAt = &t
	}
	if o.Status == StatusPending || o.Status == StatusProcessing {
		return o.TransitionTo(StatusConfirmed, now)
	}
	return from, nil
}

// Cancel moves the order to CANCELLED. A pending payment attempt is cancelled with it.
func (o *Order) Cancel(reason string, now time.Time) (Status, error) {
	from, err := o.TransitionTo(StatusCancelled, now)
	if err != nil {
		return from, err
	}
	if o.PaymentStatus == PaymentPending || o.PaymentStatus == PaymentProcessing {
		o.PaymentStatus = PaymentCancelled
	}
	o.markCancelled(reason, now)
	return from, nil
}

// Refund moves a settled order to REFUNDED with the given reason.
func (o *Order) Refund(reason string, now time.Time) (Status, error) {
	from := o.Status
	if _, err := o.State().Next(StatusRefunded); err != nil {
		return from, err
	}
	if err := o.SetPaymentStatus(PaymentRefunded, now); err != nil {
		return from, err
	}
	o.Status = StatusRefunded
	o.markCancelled(reason, now)
	return from, nil
}

// Fail moves the order to FAILED.
func (o *Order) Fail(reason string, now time.Time) (Status, error) {
	from, err := o.TransitionTo(StatusFailed, now)
	if err != nil {
		return from, err
	}
	if o.PaymentStatus == PaymentPending || o.PaymentStatus == PaymentProcessing {
		o.PaymentStatus = PaymentFailed
	}
	o.CancellationReason = reason
	return from, nil
}

func (o *Order) markCancelled(reason string, now time.Time) {
	o.CancellationReason = reason
	t := now
	o.CancelledAt = &t
}

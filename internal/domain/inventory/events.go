package inventory

import "time"

const EventRetryRequested = "inventory.retry_requested"

// RetryRequestedEvent defers an idempotent confirm or release that could not reach the ledger.
type RetryRequestedEvent struct {
	Operation  Operation
	OrderID    string
	Lines      []Line
	Cause      string
	OccurredAt time.Time
}

func (RetryRequestedEvent) EventName() string { return EventRetryRequested }

func NewRetryRequestedEvent(op Operation, orderID string, lines []Line, cause error, now time.Time) RetryRequestedEvent {
	evt := RetryRequestedEvent{
		Operation:  op,
		OrderID:    orderID,
		Lines:      append([]Line(nil), lines...),
		OccurredAt: now,
	}
	if cause != nil {
		evt.Cause = cause.Error()
	}
	return evt
}

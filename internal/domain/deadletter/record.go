// Package deadletter describes failures that exhausted automated recovery and need an operator.
package deadletter

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Priority string

const (
	PriorityCritical Priority = "CRITICAL"
	PriorityHigh     Priority = "HIGH"
)

// Record is emitted once per escalated failure.
type Record struct {
	FailureID                  string    `json:"failureId"`
	Timestamp                  time.Time `json:"timestamp"`
	Service                    string    `json:"service"`
	Operation                  string    `json:"operation"`
	OrderID                    string    `json:"orderId,omitempty"`
	OrderNumber                string    `json:"orderNumber,omitempty"`
	TargetStatus               string    `json:"targetStatus,omitempty"`
	Error                      string    `json:"error"`
	Attempts                   int       `json:"attempts"`
	RequiresManualIntervention bool      `json:"requiresManualIntervention"`
	Priority                   Priority  `json:"priority"`
}

// New fills the identity fields of a record.
func New(service, operation string, cause error, now time.Time) Record {
	r := Record{
		FailureID:                  uuid.NewString(),
		Timestamp:                  now,
		Service:                    service,
		Operation:                  operation,
		RequiresManualIntervention: true,
		Priority:                   PriorityCritical,
	}
	if cause != nil {
		r.Error = cause.Error()
	}
	return r
}

// Sink receives escalated records.
type Sink interface {
	Emit(ctx context.Context, r Record) error
}

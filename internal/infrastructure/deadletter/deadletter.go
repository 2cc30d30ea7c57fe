// Package deadletter publishes failures that need an operator.
package deadletter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"

	domain "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/deadletter"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"
)

// LogSink writes each record as an error-level entry.
type LogSink struct {
	log observability.Logger
}

func NewLogSink(log observability.Logger) *LogSink {
	if log == nil {
		log = observability.NopLogger()
	}
	return &LogSink{log: log.With(observability.F("component", "dead_letter"))}
}

func (s *LogSink) Emit(_ context.Context, r domain.Record) error {
	s.log.Error("manual_intervention_required",
		observability.F("failure_id", r.FailureID),
		observability.F("timestamp", r.Timestamp),
		observability.F("service", r.Service),
		observability.F("operation", r.Operation),
		observability.F("order_id", r.OrderID),
		observability.F("order_number", r.OrderNumber),
		observability.F("target_status", r.TargetStatus),
		observability.F("error", r.Error),
		observability.F("attempts", r.Attempts),
		observability.F("requires_manual_intervention", r.RequiresManualIntervention),
		observability.F("priority", string(r.Priority)),
	)
	return nil
}

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaSink appends records to the dead-letter topic keyed by failure id.
type KafkaSink struct {
	w MessageWriter
}

func NewKafkaSink(w MessageWriter) *KafkaSink {
	return &KafkaSink{w: w}
}

func (s *KafkaSink) Emit(ctx context.Context, r domain.Record) error {
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal dead-letter record: %w", err)
	}
	return s.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(r.FailureID),
		Value: body,
		Time:  r.Timestamp,
		Headers: []kafka.Header{
			{Key: "operation", Value: []byte(r.Operation)},
			{Key: "priority", Value: []byte(r.Priority)},
		},
	})
}

// Fanout emits to every sink and counts each record once.
type Fanout struct {
	sinks   []domain.Sink
	counter observability.Counter
}

func NewFanout(metrics observability.Metrics, sinks ...domain.Sink) *Fanout {
	if metrics == nil {
		metrics = observability.NopMetrics()
	}
	return &Fanout{sinks: sinks, counter: metrics.Counter(observability.MDeadLetterRecords)}
}

// Emit detaches from ctx cancellation so an escalation is not lost with the request that raised it.
func (f *Fanout) Emit(ctx context.Context, r domain.Record) error {
	ctx = context.WithoutCancel(ctx)
	f.counter.Add(1,
		observability.L("operation", r.Operation),
		observability.L("priority", string(r.Priority)),
	)
	var errs []error
	for _, s := range f.sinks {
		if err := s.Emit(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ domain.Sink = (*Fanout)(nil)

// Package workerpresentation instruments event handlers run by the background workers.
package workerpresentation

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/fault"
	domoutbox "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability/logctx"
)

// WithEventContext injects a logger for one background execution.
// Fields: event_id (generated if empty), trace_id and span_id when valid, plus the low-cardinality attrs.
func WithEventContext(
	ctx context.Context,
	base observability.Logger,
	tel observability.Observability,
	traceID trace.TraceID,
	spanID trace.SpanID,
	attrs map[string]string,
) context.Context {
	if base == nil {
		if tel == nil {
			tel = observability.Nop()
		}
		base = tel.Logger()
	}

	evtID := attrs["event_id"]
	if evtID == "" {
		evtID = uuid.NewString()
	}
	fields := make([]observability.Field, 0, len(attrs)+3)
	fields = append(fields, observability.F("event_id", evtID))
	if traceID.IsValid() {
		fields = append(fields, observability.F("trace_id", traceID.String()))
	}
	if spanID.IsValid() {
		fields = append(fields, observability.F("span_id", spanID.String()))
	}
	for k, v := range attrs {
		if k == "event_id" || v == "" {
			continue
		}
		fields = append(fields, observability.F(k, v))
	}
	return logctx.With(ctx, base.With(fields...))
}

// Subscriber wraps every handler registered through it in a consumer span and an event-scoped logger.
type Subscriber struct {
	next     domoutbox.Subscriber
	consumer string
	tel      observability.Observability
}

var _ domoutbox.Subscriber = (*Subscriber)(nil)

// Instrument decorates next for the named consumer, e.g. "notification-worker".
func Instrument(next domoutbox.Subscriber, consumer string, tel observability.Observability) *Subscriber {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Subscriber{next: next, consumer: consumer, tel: tel}
}

func (s *Subscriber) Subscribe(eventName string, h domoutbox.Handler) {
	s.next.Subscribe(eventName, func(ctx context.Context, e domoutbox.Event) error {
		ctx, span := s.tel.Tracer().Start(ctx, "consume "+eventName,
			attribute.String("messaging.operation", "process"),
			attribute.String("messaging.destination", eventName),
			attribute.String("messaging.consumer", s.consumer),
		)
		defer span.End()

		attrs := map[string]string{"consumer": s.consumer}
		// Loggers handed over by the bus already carry the event name.
		base := logctx.From(ctx)
		if base == nil {
			attrs["event"] = eventName
		}
		sc := span.SpanContext()
		ctx = WithEventContext(ctx, base, s.tel, sc.TraceID(), sc.SpanID(), attrs)
		err := h(ctx, e)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, fault.Kind(err))
		}
		return err
	})
}

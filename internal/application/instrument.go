package application

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/fault"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability/logctx"
)

const (
	SpanPrefix     = "UC."
	publishPeer    = "outbox"
	PublishTimeout = 300 * time.Millisecond
)

// Instruments bundles the tracer, base logger and RED metrics shared by use cases of one service.
type Instruments struct {
	tracer observability.Tracer
	// Base logger with fixed fields prebound.
	log observability.Logger

	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}
	extCounter   observability.Counter   // external_requests_total{peer,endpoint,outcome}
	extHistogram observability.Histogram // external_request_duration_seconds{peer,endpoint}
}

func NewInstruments(tel observability.Observability, service string) Instruments {
	if tel == nil {
		tel = observability.Nop()
	}
	m := tel.Metrics()
	return Instruments{
		tracer:       tel.Tracer(),
		log:          tel.Logger().With(observability.F("service", service)),
		reqCounter:   m.Counter(observability.MUsecaseRequests),
		durHistogram: m.Histogram(observability.MUsecaseDuration),
		extCounter:   m.Counter(observability.MExternalRequests),
		extHistogram: m.Histogram(observability.MExternalRequestDuration),
	}
}

// Logger returns the base logger.
func (in Instruments) Logger() observability.Logger { return in.log }

// Run tracks one use-case execution. Finish must be deferred by the caller.
type Run struct {
	in      Instruments
	useCase string
	start   time.Time
	span    trace.Span
	fields  []observability.Field

	// Logger is the request-scoped logger, also stored on the returned context.
	Logger observability.Logger
	// Status is a short machine-readable code reported on the span and log line.
	Status string
}

// Start opens the span and the request-scoped logger for useCase.
func (in Instruments) Start(ctx context.Context, useCase, spanName string, attrs ...attribute.KeyValue) (context.Context, *Run) {
	logger := logctx.FromOr(ctx, in.log).With(observability.F("use_case", useCase))
	attrs = append([]attribute.KeyValue{attribute.String("use_case", useCase)}, attrs...)
	ctx, span := in.tracer.Start(ctx, SpanPrefix+spanName, attrs...)
	ctx = logctx.With(ctx, logger)
	return ctx, &Run{
		in:      in,
		useCase: useCase,
		start:   time.Now(),
		span:    span,
		Logger:  logger,
		Status:  "OK",
	}
}

// Span returns the use-case span.
func (r *Run) Span() trace.Span { return r.span }

// Fail records a status code for the failure about to be returned.
func (r *Run) Fail(status string) { r.Status = status }

// Replay marks an idempotent replay of an earlier execution.
func (r *Run) Replay(status, event string, attrs ...attribute.KeyValue) {
	r.Status = status
	if r.span != nil {
		r.span.AddEvent(event, trace.WithAttributes(attrs...))
	}
}

// With adds fields to the use_case_done entry.
func (r *Run) With(fields ...observability.Field) { r.fields = append(r.fields, fields...) }

// Finish closes the span, records the RED metrics and writes the use_case_done entry.
func (r *Run) Finish(err error) {
	lat := time.Since(r.start).Seconds()
	outcome := "success"
	if err != nil {
		outcome = fault.Kind(err)
		if r.Status == "OK" {
			r.Status = "ERROR"
		}
	}

	if r.span != nil {
		if err != nil {
			r.span.RecordError(err)
			r.span.SetStatus(codes.Error, r.Status)
		} else {
			r.span.SetStatus(codes.Ok, r.Status)
		}
		r.span.End()
	}

	r.in.reqCounter.Add(1,
		observability.L("use_case", r.useCase),
		observability.L("outcome", outcome),
	)
	r.in.durHistogram.Observe(lat,
		observability.L("use_case", r.useCase),
	)

	fields := []observability.Field{
		observability.F("outcome", outcome),
		observability.F("status", r.Status),
		observability.F("latency_seconds", lat),
	}
	if traceID, spanID := observability.SpanIDs(r.span); traceID != "" {
		fields = append(fields,
			observability.F("trace_id", traceID),
			observability.F("span_id", spanID),
		)
	}
	fields = append(fields, r.fields...)
	if err != nil {
		fields = append(fields, observability.F("error", err.Error()))
	}
	r.Logger.Info("use_case_done", fields...)
}

// Publish emits evt with a short timeout and records it as an external call.
// Failures are returned for logging only; events are best effort.
func (in Instruments) Publish(ctx context.Context, pub outbox.Publisher, evt outbox.Event) error {
	if pub == nil || evt == nil {
		return nil
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), PublishTimeout)
	defer cancel()
	start := time.Now()
	outcome := "success"

	err := pub.Publish(pubCtx, evt)
	if err != nil {
		outcome = "error"
	} else if pubCtx.Err() != nil {
		outcome = "canceled"
		err = pubCtx.Err()
	}

	in.extCounter.Add(1,
		observability.L("peer", publishPeer),
		observability.L("endpoint", evt.EventName()),
		observability.L("outcome", outcome),
	)
	in.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", publishPeer),
		observability.L("endpoint", evt.EventName()),
	)
	if err != nil {
		logctx.FromOr(ctx, in.log).Warn("event_publish_failed",
			observability.F("event", evt.EventName()),
			observability.F("error", err.Error()),
		)
	}
	return err
}

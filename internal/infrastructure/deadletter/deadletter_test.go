package deadletter

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	domain "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/deadletter"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/observability/zaplogger"
)

type fakeWriter struct {
	msgs []kafka.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

type failingSink struct{}

func (failingSink) Emit(context.Context, domain.Record) error { return errors.New("broker down") }

func record() domain.Record {
	r := domain.New("order-service", "order.confirm_payment", errors.New("inventory timeout"), time.Unix(1700000000, 0).UTC())
	r.OrderNumber = "ORD-1"
	r.TargetStatus = "CONFIRMED"
	r.Attempts = 3
	return r
}

func TestFanoutWritesEverySink(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	w := &fakeWriter{}
	f := NewFanout(nil, NewLogSink(zaplogger.New(zap.New(core))), failingSink{}, NewKafkaSink(w))

	err := f.Emit(context.Background(), record())
	assert.ErrorContains(t, err, "broker down")

	entries := logs.FilterMessage("manual_intervention_required").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "ORD-1", entries[0].ContextMap()["order_number"])
	assert.Equal(t, "CRITICAL", entries[0].ContextMap()["priority"])

	require.Len(t, w.msgs, 1)
	var got domain.Record
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, "order.confirm_payment", got.Operation)
	assert.True(t, got.RequiresManualIntervention)
	assert.Equal(t, 3, got.Attempts)
}

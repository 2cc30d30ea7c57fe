// Package notify delivers customer notifications over HTTP, Kafka, RabbitMQ or the log.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/fault"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/notification"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/httpclient"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability/logctx"
)

// HTTPSender posts to the notification collaborator.
type HTTPSender struct {
	http *httpclient.Client
}

func NewHTTPSender(hc *httpclient.Client) *HTTPSender {
	return &HTTPSender{http: hc}
}

func (s *HTTPSender) Send(ctx context.Context, n notification.Notification) error {
	resp, err := s.http.PostJSON(ctx, "send", "/api/notifications", n, nil)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fault.Rejected(s.http.Peer(), fmt.Sprintf("status %d", resp.Status))
	}
	return nil
}

// MessageWriter is the part of *kafka.Writer the sender needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaSender writes one JSON message per notification keyed by order number.
type KafkaSender struct {
	w MessageWriter
}

func NewKafkaSender(w MessageWriter) *KafkaSender {
	return &KafkaSender{w: w}
}

func (s *KafkaSender) Send(ctx context.Context, n notification.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(n.OrderNumber),
		Value: body,
		Time:  n.OccurredAt,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(n.Kind)},
		},
	}
	if err := s.w.WriteMessages(ctx, msg); err != nil {
		return fault.Unavailable("kafka", err)
	}
	return nil
}

// Channel is the part of *amqp.Channel the sender needs.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPSender publishes to a topic exchange with the notification kind as routing key.
type AMQPSender struct {
	ch       Channel
	exchange string
}

func NewAMQPSender(ch Channel, exchange string) *AMQPSender {
	return &AMQPSender{ch: ch, exchange: exchange}
}

func (s *AMQPSender) Send(ctx context.Context, n notification.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	err = s.ch.PublishWithContext(ctx, s.exchange, string(n.Kind), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    n.OccurredAt,
		Type:         string(n.Kind),
		Body:         body,
	})
	if err != nil {
		return fault.Unavailable("amqp", err)
	}
	return nil
}

// LogSender writes notifications to the structured log.
type LogSender struct {
	log observability.Logger
}

func NewLogSender(log observability.Logger) *LogSender {
	if log == nil {
		log = observability.NopLogger()
	}
	return &LogSender{log: log.With(observability.F("component", "notification_log"))}
}

func (s *LogSender) Send(ctx context.Context, n notification.Notification) error {
	logctx.FromOr(ctx, s.log).Info("notification",
		observability.F("kind", string(n.Kind)),
		observability.F("user_id", n.UserID),
		observability.F("order_number", n.OrderNumber),
		observability.F("payment_id", n.PaymentID),
		observability.F("status", n.Status),
		observability.F("amount", n.Amount.String()),
	)
	return nil
}

var (
	_ notification.Sender = (*HTTPSender)(nil)
	_ notification.Sender = (*KafkaSender)(nil)
	_ notification.Sender = (*AMQPSender)(nil)
	_ notification.Sender = (*LogSender)(nil)
	_ MessageWriter       = (*kafka.Writer)(nil)
	_ Channel             = (*amqp.Channel)(nil)
)

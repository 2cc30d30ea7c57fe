// Package messaging opens broker connections shared by the notification and dead-letter sinks.
package messaging

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/pkg/retry"
)

// NewKafkaWriter returns a synchronous writer keyed by hash so one order's messages keep their order.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
	}
}

const ExchangeType = "topic"

// DialAMQP connects to RabbitMQ with a few attempts, opens a channel and declares a durable topic exchange.
func DialAMQP(ctx context.Context, url, exchange string) (*amqp.Connection, *amqp.Channel, error) {
	var conn *amqp.Connection
	err := retry.Do(ctx, retry.Linear(5, time.Second), func(ctx context.Context, _ int) error {
		var dialErr error
		conn, dialErr = amqp.Dial(url)
		return dialErr
	})
	if err != nil {
		return nil, nil, fmt.Errorf("could not connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("could not open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, ExchangeType, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("could not declare exchange: %w", err)
	}
	return conn, ch, nil
}

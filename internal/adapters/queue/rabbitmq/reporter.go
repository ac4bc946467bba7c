package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	"golang-messaging-bridge/internal/domain"

	amqp "github.com/rabbitmq/amqp091-go"
)

const exchangeName = "bridge"
const queueName = "bridge.reports"
const routingKey = "bridge.reports"

// Reporter implements ports.DeliveryReporter using RabbitMQ.
type Reporter struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewReporter dials RabbitMQ, declares the exchange and queue, and binds them.
func NewReporter(amqpURL string) (*Reporter, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declare(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &Reporter{conn: conn, channel: ch}, nil
}

// Report serialises a domain.BroadcastReport and sends it to the queue.
func (r *Reporter) Report(ctx context.Context, report domain.BroadcastReport) error {
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	return r.channel.PublishWithContext(
		ctx,
		exchangeName,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    report.ID.String(),
			Body:         body,
		},
	)
}

// Close cleanly shuts down the channel and connection.
func (r *Reporter) Close() {
	r.channel.Close()
	r.conn.Close()
}

// declare idempotently sets up the exchange, queue, and binding.
func declare(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(exchangeName, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	if err := ch.QueueBind(queueName, routingKey, exchangeName, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	return nil
}

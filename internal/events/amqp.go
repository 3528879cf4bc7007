package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// AMQPFeed carries change events over a RabbitMQ fanout exchange. Every
// subscription binds its own exclusive, auto-deleted queue.
type AMQPFeed struct {
	conn     *amqp.Connection
	exchange string
	buffer   int
	logger   *zap.Logger

	mu      sync.Mutex
	publish *amqp.Channel
}

// NewAMQPFeed declares the exchange and opens the publishing channel.
func NewAMQPFeed(conn *amqp.Connection, exchange string, buffer int, logger *zap.Logger) (*AMQPFeed, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := declareExchange(ch, exchange); err != nil {
		_ = ch.Close()
		return nil, err
	}
	return &AMQPFeed{conn: conn, exchange: exchange, buffer: buffer, logger: logger, publish: ch}, nil
}

func declareExchange(ch *amqp.Channel, exchange string) error {
	err := ch.ExchangeDeclare(
		exchange, // name
		"fanout", // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return nil
}

// Publish sends the event to the exchange. Change events are transient.
func (f *AMQPFeed) Publish(ctx context.Context, event Event) error {
	event = stamp(event)
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publish == nil {
		return ErrFeedClosed
	}
	err = f.publish.PublishWithContext(
		ctx,
		f.exchange, // exchange
		"",         // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Transient,
			MessageId:    event.ID,
			Timestamp:    event.Timestamp,
			Type:         string(event.Type),
		},
	)
	if err != nil {
		return fmt.Errorf("publish to %s: %w", f.exchange, err)
	}
	return nil
}

// Subscribe binds a private queue to the exchange and consumes it.
func (f *AMQPFeed) Subscribe(ctx context.Context, mask Mask) (Subscription, error) {
	ch, err := f.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}

	queue, err := ch.QueueDeclare(
		"",    // name
		false, // durable
		true,  // auto-delete
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(queue.Name, "", f.exchange, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("bind queue: %w", err)
	}
	deliveries, err := ch.Consume(
		queue.Name, // queue
		"",         // consumer tag
		true,       // auto-ack
		true,       // exclusive
		false,      // no-local
		false,      // no-wait
		nil,        // args
	)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("consume queue: %w", err)
	}

	sub := newRelaySubscription(f.buffer, ch.Close)
	startRelay(ctx, sub, deliveries, func(d amqp.Delivery) []byte {
		return d.Body
	}, mask, f.logger)

	f.logger.Debug("amqp subscription opened", zap.String("queue", queue.Name))
	return sub, nil
}

// Close closes the publishing channel. The connection is owned by the caller.
func (f *AMQPFeed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publish == nil {
		return nil
	}
	err := f.publish.Close()
	f.publish = nil
	return err
}

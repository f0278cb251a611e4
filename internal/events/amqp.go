package events

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// amqpChannel is the part of *amqp.Channel the publisher uses.
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher writes events to a durable RabbitMQ queue as persistent messages.
// The connection is dialed once and shared; the channel is guarded because amqp channels are not goroutine safe.
type AMQPPublisher struct {
	conn    io.Closer
	mu      sync.Mutex
	channel amqpChannel
	queue   string
}

// NewAMQPPublisher dials the broker and declares the queue.
func NewAMQPPublisher(url, queue string) (*AMQPPublisher, error) {
	if strings.TrimSpace(queue) == "" {
		return nil, errEmptyChannel
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("events: amqp dial: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("events: amqp channel: %w", err)
	}
	if _, err := channel.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("events: amqp queue declare: %w", err)
	}
	return &AMQPPublisher{conn: conn, channel: channel, queue: queue}, nil
}

// PublishVersionPublished publishes the event through the default exchange, routed to the queue.
func (p *AMQPPublisher) PublishVersionPublished(ctx context.Context, event VersionPublished) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("events: marshal version published: %w", err)
	}
	message := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    event.PublishedAt.UTC(),
		Type:         "version_published",
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.channel.PublishWithContext(ctx, "", p.queue, false, false, message); err != nil {
		return fmt.Errorf("events: amqp publish: %w", err)
	}
	return nil
}

// Close closes the channel, then the connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	channelErr := p.channel.Close()
	connErr := p.conn.Close()
	if channelErr != nil {
		return channelErr
	}
	return connErr
}

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/clipwave/clipwave/internal/config"
	"github.com/clipwave/clipwave/internal/metrics"
	"github.com/clipwave/clipwave/pkg/models"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	ExchangeName    = "clipwave"
	EventsQueueName = "clipwave_project_events"
	EventsRouteKey  = "project.events"
)

// Queue publishes project lifecycle events to RabbitMQ
type Queue struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// URL builds the AMQP connection URL for cfg
func URL(cfg config.QueueConfig) string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Vhost)
}

// New creates a new queue client
func New(cfg config.QueueConfig) (*Queue, error) {
	conn, err := amqp.Dial(URL(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	// Declare exchange
	err = channel.ExchangeDeclare(
		ExchangeName,
		"direct",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	// Declare queue
	_, err = channel.QueueDeclare(
		EventsQueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	// Bind queue to exchange
	err = channel.QueueBind(
		EventsQueueName,
		EventsRouteKey,
		ExchangeName,
		false,
		nil,
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to bind queue: %w", err)
	}

	return &Queue{
		conn:    conn,
		channel: channel,
	}, nil
}

// Close closes the queue connection
func (q *Queue) Close() error {
	if q.channel != nil {
		q.channel.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}

// Lifecycle reports whether an event type goes to the broker. Per-tick
// progress stays on the websocket hub.
func Lifecycle(t models.EventType) bool {
	return t != models.EventStepProgress
}

// Publish sends a lifecycle event to the exchange; progress ticks are skipped
func (q *Queue) Publish(ctx context.Context, e models.ProjectEvent) error {
	if !Lifecycle(e.Type) {
		return nil
	}

	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = q.channel.PublishWithContext(ctx,
		ExchangeName,
		EventsRouteKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			MessageId:    e.ID,
			Type:         string(e.Type),
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	metrics.RecordEventPublished("amqp", string(e.Type))
	return nil
}

// Decode parses a delivered event body
func Decode(body []byte) (models.ProjectEvent, error) {
	var e models.ProjectEvent
	if err := json.Unmarshal(body, &e); err != nil {
		return e, fmt.Errorf("failed to decode event: %w", err)
	}
	if e.Type == "" || e.ProjectID == "" {
		return e, fmt.Errorf("event is missing type or project id")
	}
	return e, nil
}

// ConsumeEvents starts consuming lifecycle events. Undecodable messages are
// dropped; handler errors requeue the message.
func (q *Queue) ConsumeEvents(ctx context.Context, handler func(models.ProjectEvent) error) error {
	err := q.channel.Qos(
		10,    // prefetch count
		0,     // prefetch size
		false, // global
	)
	if err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := q.channel.Consume(
		EventsQueueName,
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}

				e, err := Decode(msg.Body)
				if err != nil {
					msg.Nack(false, false)
					continue
				}

				if err := handler(e); err != nil {
					msg.Nack(false, true)
				} else {
					msg.Ack(false)
				}
			}
		}
	}()

	return nil
}

// Depth returns the number of messages waiting in the events queue
func (q *Queue) Depth() (int, error) {
	info, err := q.channel.QueueInspect(EventsQueueName)
	if err != nil {
		return 0, fmt.Errorf("failed to inspect queue: %w", err)
	}

	return info.Messages, nil
}

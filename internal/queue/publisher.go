package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Topology names shared by publisher and consumer.
const (
	Exchange      = "vidarena"
	JobQueue      = "video.generation"
	JobRoutingKey = "video.generation"
	DeadQueue     = "video.generation.dead"
)

// attemptsHeader tracks how many delivery attempts a message has consumed.
const attemptsHeader = "x-attempts"

// Publisher enqueues generation jobs as persistent messages.
type Publisher struct {
	channel *amqp.Channel
}

// NewPublisher opens a channel on the given connection and declares the
// queue topology so enqueue works regardless of start order.
func NewPublisher(conn *amqp.Connection) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open publisher channel: %w", err)
	}
	if err := declareTopology(ch); err != nil {
		return nil, err
	}
	return &Publisher{channel: ch}, nil
}

// Enqueue publishes one generation job.
func (p *Publisher) Enqueue(ctx context.Context, job GenerationJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	return p.publish(ctx, body, 1)
}

// publish sends a job payload with the given attempt number recorded.
func (p *Publisher) publish(ctx context.Context, body []byte, attempt int) error {
	err := p.channel.PublishWithContext(ctx,
		Exchange,
		JobRoutingKey,
		false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Headers:      amqp.Table{attemptsHeader: int32(attempt)},
		},
	)
	if err != nil {
		return fmt.Errorf("publish job: %w", err)
	}
	return nil
}

// Close releases the publisher channel.
func (p *Publisher) Close() error {
	return p.channel.Close()
}

// declareTopology declares the exchange, the job queue, and the dead-letter
// queue. Declarations are idempotent.
func declareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	for _, q := range []string{JobQueue, DeadQueue} {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", q, err)
		}
	}
	if err := ch.QueueBind(JobQueue, JobRoutingKey, Exchange, false, nil); err != nil {
		return fmt.Errorf("bind job queue: %w", err)
	}
	return nil
}

package queue

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler processes one job payload. A nil return (including benign
// no-ops) acks the message; an error consumes a retry attempt unless it is
// marked NonRetryable.
type Handler func(ctx context.Context, body []byte) error

// ConsumerConfig configures the worker-pool consumer.
type ConsumerConfig struct {
	URL string
	// WorkerCount is the number of concurrent jobs; also used as the
	// channel prefetch so workers are never starved or flooded.
	WorkerCount int
	// MaxAttempts bounds deliveries per job before dead-lettering.
	MaxAttempts int
	// BaseBackoff is the first retry delay; it doubles per attempt and is
	// capped at one minute.
	BaseBackoff time.Duration
}

// Consumer pulls generation jobs off the durable queue and runs them on a
// fixed-size worker pool with exponential-backoff retries.
type Consumer struct {
	conn        *amqp.Connection
	channel     *amqp.Channel
	handler     Handler
	logger      *slog.Logger
	workerCount int
	maxAttempts int
	baseBackoff time.Duration
	wg          sync.WaitGroup
}

// NewConsumer dials the broker, declares the topology, and prepares the
// worker pool. Call Start to begin consuming.
func NewConsumer(cfg ConsumerConfig, handler Handler, logger *slog.Logger) (*Consumer, error) {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 5
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declareTopology(ch); err != nil {
		_ = conn.Close()
		return nil, err
	}

	if err := ch.Qos(cfg.WorkerCount, 0, false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}

	return &Consumer{
		conn:        conn,
		channel:     ch,
		handler:     handler,
		logger:      logger,
		workerCount: cfg.WorkerCount,
		maxAttempts: cfg.MaxAttempts,
		baseBackoff: cfg.BaseBackoff,
	}, nil
}

// Start consumes until the context is cancelled, then drains the pool.
func (c *Consumer) Start(ctx context.Context) error {
	deliveries, err := c.channel.ConsumeWithContext(ctx, JobQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	c.logger.Info("starting worker pool",
		slog.Int("workers", c.workerCount),
		slog.String("queue", JobQueue),
	)

	for i := 0; i < c.workerCount; i++ {
		c.wg.Add(1)
		go c.worker(ctx, i, deliveries)
	}

	<-ctx.Done()
	c.logger.Info("context cancelled, waiting for workers to finish")
	c.wg.Wait()
	return nil
}

func (c *Consumer) worker(ctx context.Context, id int, deliveries <-chan amqp.Delivery) {
	defer c.wg.Done()
	log := c.logger.With(slog.Int("worker_id", id))
	log.Info("worker started")

	for {
		select {
		case <-ctx.Done():
			log.Info("worker shutting down")
			return
		case d, ok := <-deliveries:
			if !ok {
				log.Info("delivery channel closed")
				return
			}
			c.processDelivery(ctx, d, log)
		}
	}
}

// processDelivery runs the handler and applies the retry policy: failures
// are republished with an incremented attempt count after a backoff sleep,
// until the attempt budget is spent and the message is dead-lettered. The
// failed row stays in the datastore for operator inspection either way.
func (c *Consumer) processDelivery(ctx context.Context, d amqp.Delivery, log *slog.Logger) {
	attempt := attemptFromHeaders(d)

	err := c.handler(ctx, d.Body)
	if err == nil {
		_ = d.Ack(false)
		return
	}

	if IsNonRetryable(err) || attempt >= c.maxAttempts {
		log.Warn("dead-lettering job",
			slog.Int("attempt", attempt),
			slog.Bool("non_retryable", IsNonRetryable(err)),
			slog.String("error", err.Error()),
		)
		if pubErr := c.deadLetter(ctx, d.Body, err.Error()); pubErr != nil {
			log.Error("dead-letter publish failed, requeueing", slog.String("error", pubErr.Error()))
			_ = d.Nack(false, true)
			return
		}
		_ = d.Ack(false)
		return
	}

	delay := c.backoff(attempt)
	log.Warn("job failed, retrying",
		slog.Int("attempt", attempt),
		slog.Int("max_attempts", c.maxAttempts),
		slog.Duration("backoff", delay),
		slog.String("error", err.Error()),
	)

	select {
	case <-time.After(delay):
	case <-ctx.Done():
		_ = d.Nack(false, true)
		return
	}

	if pubErr := c.republish(ctx, d.Body, attempt+1); pubErr != nil {
		log.Error("republish failed, requeueing original", slog.String("error", pubErr.Error()))
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

// republish re-enqueues a failed job with the bumped attempt counter.
func (c *Consumer) republish(ctx context.Context, body []byte, attempt int) error {
	return c.channel.PublishWithContext(ctx,
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
}

// deadLetter parks an exhausted job with the final failure reason attached.
func (c *Consumer) deadLetter(ctx context.Context, body []byte, reason string) error {
	return c.channel.PublishWithContext(ctx,
		"",
		DeadQueue,
		false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Headers:      amqp.Table{"x-dead-reason": reason},
		},
	)
}

// backoff doubles per consumed attempt, capped at one minute.
func (c *Consumer) backoff(attempt int) time.Duration {
	delay := time.Duration(float64(c.baseBackoff) * math.Pow(2, float64(attempt-1)))
	if delay > time.Minute {
		delay = time.Minute
	}
	return delay
}

// attemptFromHeaders reads the attempt counter, defaulting to 1 for
// messages published by older producers.
func attemptFromHeaders(d amqp.Delivery) int {
	if d.Headers == nil {
		return 1
	}
	if v, ok := d.Headers[attemptsHeader]; ok {
		switch n := v.(type) {
		case int32:
			return int(n)
		case int64:
			return int(n)
		case int:
			return n
		}
	}
	return 1
}

// Close releases the channel and connection.
func (c *Consumer) Close() error {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Brutus88Ai/brutus-x-ai/internal/domain"
	"github.com/Brutus88Ai/brutus-x-ai/shared/rabbitmq"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// jobMessage is the creation notification published by the API service.
type jobMessage struct {
	JobID string `json:"job_id"`
}

// Consumer reacts to job-creation messages. Prefetch is pinned to 1:
// combined with the dispatcher's busy guard, a worker process never has
// more than one pipeline in flight.
type Consumer struct {
	rabbit       *rabbitmq.Client
	dispatcher   *Dispatcher
	requeueDelay time.Duration
	logger       *slog.Logger
}

// NewConsumer creates a queue-triggered consumer.
func NewConsumer(rabbit *rabbitmq.Client, dispatcher *Dispatcher, logger *slog.Logger) *Consumer {
	return &Consumer{
		rabbit:       rabbit,
		dispatcher:   dispatcher,
		requeueDelay: 2 * time.Second,
		logger:       logger,
	}
}

// Start consumes until the context is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	channel := c.rabbit.GetChannel()
	if channel == nil {
		return fmt.Errorf("rabbitmq channel is nil")
	}

	if err := channel.Qos(1, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	deliveries, err := c.rabbit.Consume(c.dispatcher.WorkerID())
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info("Job consumer started",
		slog.String("worker_id", c.dispatcher.WorkerID()),
	)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Job consumer stopped")
			return nil
		case delivery, ok := <-deliveries:
			if !ok {
				c.logger.Warn("RabbitMQ delivery channel closed")
				return fmt.Errorf("delivery channel closed")
			}
			c.handleDelivery(ctx, delivery)
		}
	}
}

func (c *Consumer) handleDelivery(ctx context.Context, delivery amqp.Delivery) {
	var msg jobMessage
	if err := json.Unmarshal(delivery.Body, &msg); err != nil {
		c.logger.Error("Failed to parse job message",
			slog.String("error", err.Error()),
			slog.String("body", string(delivery.Body)),
		)
		c.nack(delivery, false)
		return
	}

	if _, err := uuid.Parse(msg.JobID); err != nil {
		c.logger.Error("Invalid job_id in message",
			slog.String("job_id", msg.JobID),
		)
		c.nack(delivery, false)
		return
	}

	processed, err := c.dispatcher.TryRun(ctx, msg.JobID)
	if !processed {
		// Busy with another job; hand the delivery back for a free
		// worker instead of queueing it locally. With prefetch 1 and a
		// single consumer the broker redelivers straight back here, so
		// hold the delivery briefly to avoid a nack/redeliver spin for
		// the length of the running pipeline.
		select {
		case <-time.After(c.requeueDelay):
		case <-ctx.Done():
		}
		c.nack(delivery, true)
		return
	}
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.nack(delivery, false)
			return
		}
		// Storage or pipeline infrastructure error; the message may
		// succeed elsewhere.
		c.nack(delivery, true)
		return
	}

	if ackErr := delivery.Ack(false); ackErr != nil {
		c.logger.Error("Failed to ACK message",
			slog.String("job_id", msg.JobID),
			slog.String("error", ackErr.Error()),
		)
	}
}

func (c *Consumer) nack(delivery amqp.Delivery, requeue bool) {
	if err := delivery.Nack(false, requeue); err != nil {
		c.logger.Error("Failed to NACK message",
			slog.String("error", err.Error()),
		)
	}
}

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"bulksender/internal/logging"
)

// CommandHandler applies one command. Returning an error wrapping
// ErrDiscard drops the job; any other error requeues it.
type CommandHandler func(ctx context.Context, job *CommandJob) error

// Consumer consumes command jobs from RabbitMQ, one at a time
type Consumer struct {
	conn      *Connection
	queueName string
	handler   CommandHandler
	log       zerolog.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	doneChan chan struct{}
}

// NewConsumer declares the queue and returns a consumer for it
func NewConsumer(conn *Connection, queueName string, handler CommandHandler) (*Consumer, error) {
	if conn == nil {
		return nil, errors.New("connection cannot be nil")
	}
	if queueName == "" {
		return nil, errors.New("queue name cannot be empty")
	}
	if handler == nil {
		return nil, errors.New("handler cannot be nil")
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to get channel: %w", err)
	}
	if err := declareQueue(ch, queueName); err != nil {
		return nil, err
	}

	return newConsumer(conn, queueName, handler), nil
}

func newConsumer(conn *Connection, queueName string, handler CommandHandler) *Consumer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		conn:      conn,
		queueName: queueName,
		handler:   handler,
		log:       logging.With().Str("component", "consumer").Str("queue", queueName).Logger(),
		ctx:       ctx,
		cancel:    cancel,
		doneChan:  make(chan struct{}),
	}
}

// Start begins consuming in the background
func (c *Consumer) Start() error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to get channel: %w", err)
	}

	// one unacknowledged job at a time
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := ch.Consume(
		c.queueName,
		"",    // consumer tag (auto-generated)
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	go func() {
		defer close(c.doneChan)

		for {
			select {
			case <-c.ctx.Done():
				c.log.Info().Msg("consumer stopping")
				return
			case d, ok := <-msgs:
				if !ok {
					c.log.Warn().Msg("delivery channel closed")
					return
				}
				c.handleDelivery(d)
			}
		}
	}()

	c.log.Info().Msg("consumer started")
	return nil
}

// Stop cancels in-flight handlers and waits for the loop to exit
func (c *Consumer) Stop() error {
	c.cancel()
	<-c.doneChan
	c.log.Info().Msg("consumer stopped")
	return nil
}

// handleDelivery acknowledges, requeues or drops one delivery
func (c *Consumer) handleDelivery(d amqp.Delivery) {
	err := c.processMessage(d)

	switch {
	case err == nil:
		if ackErr := d.Ack(false); ackErr != nil {
			c.log.Error().Err(ackErr).Msg("failed to ack job")
		}
	case errors.Is(err, ErrDiscard):
		c.log.Warn().Err(err).Msg("dropping job")
		if nackErr := d.Nack(false, false); nackErr != nil {
			c.log.Error().Err(nackErr).Msg("failed to reject job")
		}
	default:
		c.log.Error().Err(err).Msg("job failed, requeueing")
		if nackErr := d.Nack(false, true); nackErr != nil {
			c.log.Error().Err(nackErr).Msg("failed to requeue job")
		}
	}
}

func (c *Consumer) processMessage(d amqp.Delivery) error {
	var job CommandJob
	if err := json.Unmarshal(d.Body, &job); err != nil {
		return fmt.Errorf("%w: failed to unmarshal command job: %w", ErrDiscard, err)
	}
	if err := job.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrDiscard, err)
	}

	if err := c.handler(c.ctx, &job); err != nil {
		return fmt.Errorf("handler failed: %w", err)
	}

	return nil
}

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"bulksender/internal/models"
)

// Publisher publishes JSON messages to one durable queue
type Publisher struct {
	conn      *Connection
	queueName string
}

// NewPublisher declares the queue and returns a publisher for it
func NewPublisher(conn *Connection, queueName string) (*Publisher, error) {
	if conn == nil {
		return nil, errors.New("connection cannot be nil")
	}
	if queueName == "" {
		return nil, errors.New("queue name cannot be empty")
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to get channel: %w", err)
	}
	if err := declareQueue(ch, queueName); err != nil {
		return nil, err
	}

	return &Publisher{
		conn:      conn,
		queueName: queueName,
	}, nil
}

// PublishCommand publishes a campaign command
func (p *Publisher) PublishCommand(ctx context.Context, job *CommandJob) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("invalid command: %w", err)
	}
	return p.publishJSON(ctx, job, job.CampaignID)
}

// PublishEvent publishes a campaign event
func (p *Publisher) PublishEvent(ctx context.Context, event models.Event) error {
	return p.publishJSON(ctx, event, event.CampaignID)
}

func (p *Publisher) publishJSON(ctx context.Context, v any, correlationID string) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to get channel: %w", err)
	}

	err = ch.PublishWithContext(
		ctx,
		"",          // exchange (default)
		p.queueName, // routing key
		false,       // mandatory
		false,       // immediate
		amqp.Publishing{
			DeliveryMode:  amqp.Persistent,
			ContentType:   "application/json",
			CorrelationId: correlationID,
			Body:          body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	return nil
}

// Close is a no-op; the connection is closed by its owner
func (p *Publisher) Close() error {
	return nil
}

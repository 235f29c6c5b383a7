package events

import (
	"context"

	"bulksender/internal/models"
)

// EventPublisher is implemented by queue.Publisher
type EventPublisher interface {
	PublishEvent(ctx context.Context, event models.Event) error
}

// QueueSink forwards events to a message queue
type QueueSink struct {
	publisher EventPublisher
}

// NewQueueSink creates a sink on a publisher
func NewQueueSink(publisher EventPublisher) *QueueSink {
	return &QueueSink{publisher: publisher}
}

func (s *QueueSink) Name() string { return "queue" }

func (s *QueueSink) Publish(ctx context.Context, event models.Event) error {
	return s.publisher.PublishEvent(ctx, event)
}

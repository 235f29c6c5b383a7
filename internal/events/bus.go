// Package events fans campaign events out to the outer surfaces:
// a RabbitMQ queue, Redis pub/sub and connected websocket clients.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"bulksender/internal/logging"
	"bulksender/internal/models"
)

const defaultPublishTimeout = 2 * time.Second

// Sink receives every event published on a Bus
type Sink interface {
	Name() string
	Publish(ctx context.Context, event models.Event) error
}

// Bus delivers events to its sinks in order. A failing sink is logged
// and skipped; it never affects the other sinks or the caller.
type Bus struct {
	mu      sync.RWMutex
	sinks   []Sink
	timeout time.Duration
	log     zerolog.Logger
}

// NewBus creates a bus with the given sinks
func NewBus(sinks ...Sink) *Bus {
	return &Bus{
		sinks:   sinks,
		timeout: defaultPublishTimeout,
		log:     logging.With().Str("component", "events").Logger(),
	}
}

// Add registers another sink
func (b *Bus) Add(sink Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, sink)
}

// Publish hands the event to every sink
func (b *Bus) Publish(ctx context.Context, event models.Event) {
	b.mu.RLock()
	sinks := b.sinks
	b.mu.RUnlock()

	for _, sink := range sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, b.timeout)
		err := sink.Publish(sinkCtx, event)
		cancel()

		if err != nil {
			b.log.Warn().
				Err(err).
				Str("sink", sink.Name()).
				Str("campaign_id", event.CampaignID).
				Str("event", string(event.Type)).
				Msg("failed to publish event")
		}
	}
}

// SinkFunc adapts a function to the Sink interface
type SinkFunc func(ctx context.Context, event models.Event) error

func (f SinkFunc) Name() string { return "func" }

func (f SinkFunc) Publish(ctx context.Context, event models.Event) error {
	return f(ctx, event)
}

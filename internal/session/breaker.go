package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"bulksender/internal/logging"
)

// BreakerConfig tunes the per channel circuit breakers
type BreakerConfig struct {
	// FailureThreshold is the consecutive failure count that opens a breaker
	FailureThreshold uint32
	// Timeout is how long an open breaker waits before a half-open probe
	Timeout time.Duration
	// MaxRequests is the number of probes allowed while half-open
	MaxRequests uint32
}

// DefaultBreakerConfig returns the breaker defaults
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		Timeout:          60 * time.Second,
		MaxRequests:      1,
	}
}

// BreakerProvider isolates failing channels behind circuit breakers.
// A channel whose breaker is open reports itself unavailable.
type BreakerProvider struct {
	next Provider
	cfg  BreakerConfig

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[struct{}]
}

// NewBreakerProvider wraps a provider with one breaker per channel
func NewBreakerProvider(next Provider, cfg BreakerConfig) *BreakerProvider {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	return &BreakerProvider{
		next:     next,
		cfg:      cfg,
		breakers: make(map[string]*gobreaker.CircuitBreaker[struct{}]),
	}
}

// Send runs the wrapped send through the channel's breaker
func (b *BreakerProvider) Send(ctx context.Context, channelID, recipient string, payload Payload) error {
	cb := b.breaker(channelID)

	_, err := cb.Execute(func() (struct{}, error) {
		return struct{}{}, b.next.Send(ctx, channelID, recipient, payload)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s circuit %s", ErrChannelUnavailable, channelID, cb.State())
	}
	return err
}

// IsAvailable is false while the channel's breaker is open
func (b *BreakerProvider) IsAvailable(channelID string) bool {
	if b.State(channelID) == gobreaker.StateOpen {
		return false
	}
	return b.next.IsAvailable(channelID)
}

// State returns the breaker state of a channel
func (b *BreakerProvider) State(channelID string) gobreaker.State {
	return b.breaker(channelID).State()
}

func (b *BreakerProvider) breaker(channelID string) *gobreaker.CircuitBreaker[struct{}] {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cb, ok := b.breakers[channelID]; ok {
		return cb
	}

	threshold := b.cfg.FailureThreshold
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        channelID,
		MaxRequests: b.cfg.MaxRequests,
		Timeout:     b.cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("channel_id", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("channel circuit breaker state changed")
		},
	})
	b.breakers[channelID] = cb
	return cb
}

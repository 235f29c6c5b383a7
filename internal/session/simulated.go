package session

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// SimulatedProvider fakes sender sessions with a configurable success rate
type SimulatedProvider struct {
	mu          sync.Mutex
	successRate float64 // 0.0 to 1.0 (e.g., 0.95 = 95% success)
	minLatency  time.Duration
	maxLatency  time.Duration
	offline     map[string]bool
	rand        *rand.Rand
}

// NewSimulatedProvider creates a simulated provider.
// successRate is clamped to [0, 1]; a nil rng seeds one from the clock.
func NewSimulatedProvider(successRate float64, rng *rand.Rand) *SimulatedProvider {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	return &SimulatedProvider{
		successRate: clampRate(successRate),
		minLatency:  50 * time.Millisecond,
		maxLatency:  200 * time.Millisecond,
		offline:     make(map[string]bool),
		rand:        rng,
	}
}

// SetLatency sets the simulated network latency range
func (s *SimulatedProvider) SetLatency(min, max time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if max < min {
		max = min
	}
	s.minLatency = min
	s.maxLatency = max
}

// SetSuccessRate updates the success rate (for testing)
func (s *SimulatedProvider) SetSuccessRate(rate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.successRate = clampRate(rate)
}

// SetOnline marks a channel as connected or disconnected
func (s *SimulatedProvider) SetOnline(channelID string, online bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if online {
		delete(s.offline, channelID)
		return
	}
	s.offline[channelID] = true
}

// IsAvailable reports whether the channel is online
func (s *SimulatedProvider) IsAvailable(channelID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.offline[channelID]
}

// Send simulates one delivery through the channel
func (s *SimulatedProvider) Send(ctx context.Context, channelID, recipient string, payload Payload) error {
	if !s.IsAvailable(channelID) {
		return fmt.Errorf("%w: %s", ErrChannelUnavailable, channelID)
	}

	latency, success, reason := s.roll()

	// Simulate network latency
	timer := time.NewTimer(latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("send to %s via %s: %w", recipient, channelID, ctx.Err())
	case <-timer.C:
	}

	if !success {
		return fmt.Errorf("failed to send to %s via %s: %s", recipient, channelID, reason)
	}
	return nil
}

func (s *SimulatedProvider) roll() (time.Duration, bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	latency := s.minLatency
	if span := s.maxLatency - s.minLatency; span > 0 {
		latency += time.Duration(s.rand.Int63n(int64(span)))
	}

	success := s.rand.Float64() < s.successRate
	if success {
		return latency, true, ""
	}

	// Simulate different types of failures
	failures := []string{
		"network timeout",
		"invalid phone number",
		"recipient not on platform",
		"service temporarily unavailable",
		"message rejected",
	}
	return latency, false, failures[s.rand.Intn(len(failures))]
}

func clampRate(rate float64) float64 {
	if rate < 0.0 {
		return 0.0
	}
	if rate > 1.0 {
		return 1.0
	}
	return rate
}

// Package session defines the contract of the sender sessions ("channels")
// a campaign dispatches through, plus a simulated provider and a
// circuit-breaker decorator.
package session

import (
	"context"
	"errors"
)

// ErrChannelUnavailable is returned when a channel cannot send right now
var ErrChannelUnavailable = errors.New("channel unavailable")

// Payload is the message content handed to a channel as-is
type Payload struct {
	Text      string            `json:"text"`
	Variables map[string]string `json:"variables,omitempty"`
	MediaRefs []string          `json:"media_refs,omitempty"`
}

// Provider supplies one addressable sender per authenticated channel
type Provider interface {
	// Send delivers one message; a nil error means the channel accepted it
	Send(ctx context.Context, channelID, recipient string, payload Payload) error
	// IsAvailable reports whether the channel is currently able to send
	IsAvailable(channelID string) bool
}

// FilterAvailable returns the channels the provider reports as available, in input order
func FilterAvailable(p Provider, channels []string) []string {
	out := make([]string, 0, len(channels))
	for _, ch := range channels {
		if p.IsAvailable(ch) {
			out = append(out, ch)
		}
	}
	return out
}

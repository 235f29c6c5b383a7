// Package rotation assigns campaign messages to sender channels.
//
// Assignment is keyed by the absolute message number, so recomputing the
// channel of message k after a pause or a crash always gives the same answer.
package rotation

import (
	"errors"
	"sort"
)

// ErrNoChannelsAvailable is returned when rotation is asked to pick from an empty set
var ErrNoChannelsAvailable = errors.New("no channels available")

// Rotator tracks channel assignments of one campaign run.
// It is not safe for concurrent use.
type Rotator struct {
	messagesPerChannel map[string]int
	currentIndex       int
}

// NewRotator creates a rotator with an empty distribution
func NewRotator() *Rotator {
	return &Rotator{messagesPerChannel: make(map[string]int)}
}

// NextForRotation picks sorted(channels)[messageNumber mod len(channels)]
func (r *Rotator) NextForRotation(availableChannels []string, messageNumber int) (string, error) {
	if len(availableChannels) == 0 {
		return "", ErrNoChannelsAvailable
	}

	sorted := make([]string, len(availableChannels))
	copy(sorted, availableChannels)
	sort.Strings(sorted)

	idx := messageNumber % len(sorted)
	if idx < 0 {
		idx += len(sorted)
	}

	channel := sorted[idx]
	r.record(channel)
	return channel, nil
}

// NextForSingle returns the pinned channel and records the assignment
func (r *Rotator) NextForSingle(channelID string) string {
	r.record(channelID)
	return channelID
}

// Distribution returns a copy of assignments per channel
func (r *Rotator) Distribution() map[string]int {
	out := make(map[string]int, len(r.messagesPerChannel))
	for k, v := range r.messagesPerChannel {
		out[k] = v
	}
	return out
}

// CurrentIndex is the number of assignments made since the last reset
func (r *Rotator) CurrentIndex() int {
	return r.currentIndex
}

// Reset clears the distribution
func (r *Rotator) Reset() {
	r.messagesPerChannel = make(map[string]int)
	r.currentIndex = 0
}

func (r *Rotator) record(channel string) {
	r.messagesPerChannel[channel]++
	r.currentIndex++
}

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"bulksender/internal/models"
)

const (
	// AllEventsChannel receives the events of every campaign
	AllEventsChannel = "campaign:events"

	historyLength = 100
	historyTTL    = 24 * time.Hour
)

// CampaignChannel is the pub/sub channel of one campaign
func CampaignChannel(campaignID string) string {
	return AllEventsChannel + ":" + campaignID
}

func historyKey(campaignID string) string {
	return "campaign:history:" + campaignID
}

// RedisSink publishes events over Redis pub/sub and keeps a short
// per campaign history for late subscribers
type RedisSink struct {
	client *redis.Client
}

// NewRedisSink creates a sink on an existing client
func NewRedisSink(client *redis.Client) *RedisSink {
	return &RedisSink{client: client}
}

func (s *RedisSink) Name() string { return "redis" }

// Publish sends the event to the campaign channel and the global channel
func (s *RedisSink) Publish(ctx context.Context, event models.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	key := historyKey(event.CampaignID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Publish(ctx, CampaignChannel(event.CampaignID), body)
		pipe.Publish(ctx, AllEventsChannel, body)
		pipe.LPush(ctx, key, body)
		pipe.LTrim(ctx, key, 0, historyLength-1)
		pipe.Expire(ctx, key, historyTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to publish event to redis: %w", err)
	}

	return nil
}

// History returns up to limit recent events of a campaign, oldest first
func (s *RedisSink) History(ctx context.Context, campaignID string, limit int) ([]models.Event, error) {
	if limit <= 0 || limit > historyLength {
		limit = historyLength
	}

	raw, err := s.client.LRange(ctx, historyKey(campaignID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read event history: %w", err)
	}

	events := make([]models.Event, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var event models.Event
		if err := json.Unmarshal([]byte(raw[i]), &event); err != nil {
			return nil, fmt.Errorf("failed to decode event: %w", err)
		}
		events = append(events, event)
	}

	return events, nil
}

// Ping checks the redis connection
func (s *RedisSink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

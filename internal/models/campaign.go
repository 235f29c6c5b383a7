package models

import (
	"fmt"
	"time"
)

// CampaignState represents the lifecycle state of a campaign run
type CampaignState string

const (
	CampaignStateIdle      CampaignState = "idle"
	CampaignStateRunning   CampaignState = "running"
	CampaignStatePaused    CampaignState = "paused"
	CampaignStateCompleted CampaignState = "completed"
	CampaignStateStopped   CampaignState = "stopped"
	CampaignStateFailed    CampaignState = "failed"
)

// IsTerminal reports whether no further transitions are permitted
func (s CampaignState) IsTerminal() bool {
	return s == CampaignStateCompleted || s == CampaignStateStopped || s == CampaignStateFailed
}

// DelayPreset names a fixed delay range between two sends
type DelayPreset string

const (
	DelayVeryShort DelayPreset = "very-short"
	DelayShort     DelayPreset = "short"
	DelayMedium    DelayPreset = "medium"
	DelayLong      DelayPreset = "long"
	DelayVeryLong  DelayPreset = "very-long"
	DelayCustom    DelayPreset = "custom"
	DelayManual    DelayPreset = "manual"
)

// RequiresRange reports whether the preset takes a caller supplied range
func (p DelayPreset) RequiresRange() bool {
	return p == DelayCustom || p == DelayManual
}

// DelayRange is an inclusive range in seconds
type DelayRange struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// DelaySettings selects the pacing between two sends
type DelaySettings struct {
	Preset DelayPreset `json:"preset" yaml:"preset"`
	Custom *DelayRange `json:"custom,omitempty" yaml:"custom,omitempty"`
}

// PacingOverrides replaces parts of the default pacing policy for one
// campaign. Zero fields keep the default.
type PacingOverrides struct {
	DailyLimit          int `json:"daily_limit,omitempty" yaml:"daily_limit,omitempty" validate:"omitempty,min=1"`
	LongPauseEveryMin   int `json:"long_pause_every_min,omitempty" yaml:"long_pause_every_min,omitempty" validate:"omitempty,min=1"`
	LongPauseEveryMax   int `json:"long_pause_every_max,omitempty" yaml:"long_pause_every_max,omitempty" validate:"omitempty,min=1"`
	LongPauseMinSeconds int `json:"long_pause_min_seconds,omitempty" yaml:"long_pause_min_seconds,omitempty" validate:"omitempty,min=1"`
	LongPauseMaxSeconds int `json:"long_pause_max_seconds,omitempty" yaml:"long_pause_max_seconds,omitempty" validate:"omitempty,min=1"`
}

// SendingStrategy selects how messages are spread over channels
type SendingStrategy string

const (
	StrategySingle     SendingStrategy = "single"
	StrategyRotational SendingStrategy = "rotational"
)

// MessageTask is one queued outbound message
type MessageTask struct {
	ID           string            `json:"id,omitempty" yaml:"id,omitempty"`
	Recipient    string            `json:"recipient" yaml:"recipient"`
	TemplateText string            `json:"template_text" yaml:"template_text"`
	Variables    map[string]string `json:"variables,omitempty" yaml:"variables,omitempty"`
	MediaRefs    []string          `json:"media_refs,omitempty" yaml:"media_refs,omitempty"`
}

// MessageID returns the stable message identifier, falling back to the queue index
func (m MessageTask) MessageID(index int) string {
	if m.ID != "" {
		return m.ID
	}
	return fmt.Sprintf("msg-%d", index)
}

// CampaignTask is the immutable input of a campaign run
type CampaignTask struct {
	Messages  []MessageTask    `json:"messages" yaml:"messages"`
	Delay     DelaySettings    `json:"delay" yaml:"delay"`
	Strategy  SendingStrategy  `json:"strategy" yaml:"strategy"`
	ChannelID string           `json:"channel_id,omitempty" yaml:"channel_id,omitempty"`
	Channels  []string         `json:"channels,omitempty" yaml:"channels,omitempty"`
	Pacing    *PacingOverrides `json:"pacing,omitempty" yaml:"pacing,omitempty"`
}

// Validate checks the task shape; delay ranges are checked by the sampler
func (t *CampaignTask) Validate() error {
	if len(t.Messages) == 0 {
		return fmt.Errorf("campaign has no messages")
	}
	seen := make(map[string]int, len(t.Messages))
	for i, m := range t.Messages {
		if m.Recipient == "" {
			return fmt.Errorf("message %d has no recipient", i)
		}
		id := m.MessageID(i)
		if prev, ok := seen[id]; ok {
			return fmt.Errorf("message %d reuses id %q of message %d", i, id, prev)
		}
		seen[id] = i
	}

	if p := t.Pacing; p != nil {
		if p.DailyLimit < 0 || p.LongPauseEveryMin < 0 || p.LongPauseEveryMax < 0 ||
			p.LongPauseMinSeconds < 0 || p.LongPauseMaxSeconds < 0 {
			return fmt.Errorf("pacing overrides must not be negative")
		}
	}

	switch t.Strategy {
	case StrategySingle:
		if t.ChannelID == "" {
			return fmt.Errorf("single strategy requires channel_id")
		}
	case StrategyRotational:
		if len(t.Channels) == 0 {
			return fmt.Errorf("rotational strategy requires at least one channel")
		}
	default:
		return fmt.Errorf("invalid strategy: must be 'single' or 'rotational'")
	}

	return nil
}

// MessageError describes one failed message
type MessageError struct {
	MessageIndex int    `json:"message_index"`
	Recipient    string `json:"recipient"`
	ChannelID    string `json:"channel_id"`
	Reason       string `json:"reason"`
}

// ExecutionResult is the checkpoint or final accounting of a run
type ExecutionResult struct {
	State        CampaignState  `json:"state"`
	TotalCount   int            `json:"total_count"`
	SentCount    int            `json:"sent_count"`
	FailedCount  int            `json:"failed_count"`
	PendingCount int            `json:"pending_count"`
	Errors       []MessageError `json:"errors"`
	Reason       string         `json:"reason,omitempty"`
}

// CampaignRecord is the persisted campaign snapshot
type CampaignRecord struct {
	ID          string        `json:"id" db:"id"`
	Status      CampaignState `json:"status" db:"status"`
	SentCount   int           `json:"sent_count" db:"sent_count"`
	FailedCount int           `json:"failed_count" db:"failed_count"`
	CreatedAt   time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at" db:"updated_at"`
}

package models

import "time"

// EventType names a progress event sent to the control surface
type EventType string

const (
	EventProgress  EventType = "progress"
	EventPaused    EventType = "paused"
	EventResumed   EventType = "resumed"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
	EventStopped   EventType = "stopped"
)

// Progress is the per message snapshot carried by progress events
type Progress struct {
	Recipient       string        `json:"recipient,omitempty"`
	ChannelID       string        `json:"channel_id,omitempty"`
	Status          MessageStatus `json:"status,omitempty"`
	SentCount       int           `json:"sent_count"`
	FailedCount     int           `json:"failed_count"`
	TotalMessages   int           `json:"total_messages"`
	PercentComplete float64       `json:"percent_complete"`
}

// Event is one entry of a campaign's outbound event stream
type Event struct {
	Type       EventType        `json:"type"`
	CampaignID string           `json:"campaign_id"`
	Time       time.Time        `json:"time"`
	Progress   *Progress        `json:"progress,omitempty"`
	Result     *ExecutionResult `json:"result,omitempty"`
	Reason     string           `json:"reason,omitempty"`
}

// IsTerminal reports whether the event closes the stream
func (e Event) IsTerminal() bool {
	return e.Type == EventCompleted || e.Type == EventFailed || e.Type == EventStopped
}

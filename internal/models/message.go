package models

import "time"

// MessageStatus represents valid message statuses
type MessageStatus string

const (
	MessageStatusPending MessageStatus = "pending"
	MessageStatusSent    MessageStatus = "sent"
	MessageStatusFailed  MessageStatus = "failed"
)

// MessageOutcome is the persisted status of one campaign message
type MessageOutcome struct {
	MessageID    string        `json:"message_id" db:"message_id"`
	MessageIndex int           `json:"message_index" db:"message_index"`
	Recipient    string        `json:"recipient" db:"recipient"`
	ChannelID    string        `json:"channel_id,omitempty" db:"channel_id"`
	Status       MessageStatus `json:"status" db:"status"`
	LastError    *string       `json:"last_error,omitempty" db:"last_error"`
	UpdatedAt    time.Time     `json:"updated_at" db:"updated_at"`
}

package queue

import (
	"errors"
	"fmt"

	"bulksender/internal/models"
)

const (
	// CommandQueue carries CommandJob messages to workers
	CommandQueue = "campaign_commands"
	// EventQueue carries models.Event messages from workers
	EventQueue = "campaign_events"
)

// CommandAction names a lifecycle command
type CommandAction string

const (
	ActionStart  CommandAction = "start"
	ActionPause  CommandAction = "pause"
	ActionResume CommandAction = "resume"
	ActionStop   CommandAction = "stop"
)

// ErrDiscard marks a job that must not be redelivered
var ErrDiscard = errors.New("discard job")

// CommandJob asks a worker to apply a command to a campaign
type CommandJob struct {
	Action     CommandAction        `json:"action"`
	CampaignID string               `json:"campaign_id"`
	Task       *models.CampaignTask `json:"task,omitempty"`
}

// Validate checks the job shape; the task itself is validated by the controller
func (j *CommandJob) Validate() error {
	switch j.Action {
	case ActionStart:
		if j.Task == nil {
			return errors.New("start command requires a task")
		}
	case ActionPause, ActionResume, ActionStop:
		if j.CampaignID == "" {
			return fmt.Errorf("%s command requires campaign_id", j.Action)
		}
	default:
		return fmt.Errorf("unknown action %q", j.Action)
	}
	return nil
}

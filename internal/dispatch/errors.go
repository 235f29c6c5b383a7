package dispatch

import (
	"errors"
	"fmt"

	"bulksender/internal/models"
)

var (
	// ErrInvalidTransition is matched by every rejected lifecycle command
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrInvalidTask wraps validation failures of a campaign task
	ErrInvalidTask = errors.New("invalid campaign task")
)

// TransitionError reports a command that is not valid in the current state
type TransitionError struct {
	Op     string
	From   models.CampaignState
	Reason string
}

func (e *TransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cannot %s campaign in state %s: %s", e.Op, e.From, e.Reason)
	}
	return fmt.Sprintf("cannot %s campaign in state %s", e.Op, e.From)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

package service

import (
	"context"
	"fmt"

	"bulksender/internal/queue"
)

// HandleCommand applies a queued command job. Errors the same job would
// hit again on redelivery are wrapped with queue.ErrDiscard.
func (s *CampaignService) HandleCommand(ctx context.Context, job *queue.CommandJob) error {
	var err error
	switch job.Action {
	case queue.ActionStart:
		if job.Task == nil {
			return fmt.Errorf("%w: start command requires a task", queue.ErrDiscard)
		}
		_, err = s.StartCampaign(ctx, &StartCampaignRequest{CampaignID: job.CampaignID, Task: *job.Task})
	case queue.ActionPause:
		_, err = s.PauseCampaign(ctx, job.CampaignID)
	case queue.ActionResume:
		_, err = s.ResumeCampaign(ctx, job.CampaignID)
	case queue.ActionStop:
		_, err = s.StopCampaign(ctx, job.CampaignID)
	default:
		return fmt.Errorf("%w: unknown action %q", queue.ErrDiscard, job.Action)
	}

	if err != nil && IsClientError(err) {
		return fmt.Errorf("%w: %w", queue.ErrDiscard, err)
	}
	return err
}

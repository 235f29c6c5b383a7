package dispatch

import (
	"context"
	"errors"
	"fmt"

	"bulksender/internal/models"
	"bulksender/internal/session"
)

const stopReason = "stopped by request"

func (c *Controller) run(ctx context.Context) {
	defer close(c.done)
	defer close(c.events)
	defer c.cancel()

	for i, msg := range c.task.Messages {
		if c.alreadySent[msg.MessageID(i)] {
			continue
		}

		if c.checkpoint(ctx) {
			c.finish(models.CampaignStateStopped, stopReason, nil)
			return
		}

		delay, err := c.governor.ComputeDelay(c.task.Delay, 0)
		if err != nil {
			c.log.Error().Err(err).Int("message_index", i).Msg("campaign halted")
			c.finish(models.CampaignStateFailed, err.Error(), c.unattempted(i))
			return
		}

		if delay.LongPause > 0 {
			c.log.Info().
				Dur("long_pause", delay.LongPause).
				Int("message_index", i).
				Msg("burst limit reached, cooling down")
			if c.deps.Observer != nil {
				c.deps.Observer.LongPause(c.id, delay.LongPause)
			}
		}

		if err := c.opts.Wait(ctx, delay.Total()); err != nil {
			c.finish(models.CampaignStateStopped, stopReason, nil)
			return
		}

		c.process(ctx, i, msg)
	}

	c.finish(models.CampaignStateCompleted, "", nil)
}

// checkpoint suspends the loop while paused. It reports true when the
// campaign was stopped.
func (c *Controller) checkpoint(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}

	c.mu.Lock()
	if !c.pauseRequested {
		c.mu.Unlock()
		return false
	}
	c.pauseRequested = false
	c.state = models.CampaignStatePaused
	progress := c.progressLocked()
	c.mu.Unlock()

	c.persistCounts(models.CampaignStatePaused)
	c.log.Info().Int("sent", progress.SentCount).Int("failed", progress.FailedCount).Msg("campaign paused")
	c.emit(models.Event{Type: models.EventPaused, Progress: &progress})

	select {
	case <-ctx.Done():
		return true
	case <-c.resume:
	}

	c.mu.Lock()
	progress = c.progressLocked()
	c.mu.Unlock()

	c.persistCounts(models.CampaignStateRunning)
	c.log.Info().Msg("campaign resumed")
	c.emit(models.Event{Type: models.EventResumed, Progress: &progress})
	return ctx.Err() != nil
}

func (c *Controller) process(ctx context.Context, index int, msg models.MessageTask) {
	channelID, err := c.selectChannel(index)
	if err == nil && !c.deps.Provider.IsAvailable(channelID) {
		err = fmt.Errorf("%w: %s", session.ErrChannelUnavailable, channelID)
	}

	started := c.opts.Now()
	if err == nil {
		err = c.send(ctx, channelID, msg)
	}
	latency := c.opts.Now().Sub(started)

	outcome := &models.MessageOutcome{
		MessageID:    msg.MessageID(index),
		MessageIndex: index,
		Recipient:    msg.Recipient,
		ChannelID:    channelID,
		Status:       models.MessageStatusSent,
		UpdatedAt:    c.opts.Now(),
	}

	if err == nil {
		c.governor.RecordSent()
	} else {
		reason := err.Error()
		outcome.Status = models.MessageStatusFailed
		outcome.LastError = &reason
		c.log.Warn().
			Err(err).
			Int("message_index", index).
			Str("recipient", msg.Recipient).
			Str("channel_id", channelID).
			Msg("message failed")
	}

	c.persistOutcome(outcome)
	if c.deps.Observer != nil {
		c.deps.Observer.MessageProcessed(c.id, channelID, outcome.Status, latency)
	}

	c.mu.Lock()
	if outcome.Status == models.MessageStatusSent {
		c.sent++
	} else {
		c.failed++
		c.errs = append(c.errs, models.MessageError{
			MessageIndex: index,
			Recipient:    msg.Recipient,
			ChannelID:    channelID,
			Reason:       *outcome.LastError,
		})
	}
	c.last = models.Progress{Recipient: msg.Recipient, ChannelID: channelID, Status: outcome.Status}
	c.distribution = c.rotator.Distribution()
	c.govSnapshot = c.governor.Snapshot()
	progress := c.progressLocked()
	c.mu.Unlock()

	c.emit(models.Event{Type: models.EventProgress, Progress: &progress})
}

func (c *Controller) selectChannel(index int) (string, error) {
	if c.task.Strategy == models.StrategySingle {
		return c.rotator.NextForSingle(c.task.ChannelID), nil
	}
	return c.rotator.NextForRotation(c.task.Channels, index)
}

// send runs outside the stop signal so an in-flight message is never aborted by Stop
func (c *Controller) send(ctx context.Context, channelID string, msg models.MessageTask) error {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.SendTimeout)
	defer cancel()

	err := c.deps.Provider.Send(sendCtx, channelID, msg.Recipient, session.Payload{
		Text:      msg.TemplateText,
		Variables: msg.Variables,
		MediaRefs: msg.MediaRefs,
	})
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("send timed out after %s: %w", c.opts.SendTimeout, err)
	}
	return err
}

func (c *Controller) unattempted(from int) []*models.MessageOutcome {
	var out []*models.MessageOutcome
	for i := from; i < len(c.task.Messages); i++ {
		msg := c.task.Messages[i]
		id := msg.MessageID(i)
		if c.alreadySent[id] {
			continue
		}
		out = append(out, &models.MessageOutcome{
			MessageID:    id,
			MessageIndex: i,
			Recipient:    msg.Recipient,
			Status:       models.MessageStatusPending,
		})
	}
	return out
}

func (c *Controller) finish(state models.CampaignState, reason string, pending []*models.MessageOutcome) {
	if len(pending) > 0 && c.deps.Store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), c.opts.StoreTimeout)
		if err := c.deps.Store.MarkPending(ctx, c.id, pending); err != nil {
			c.log.Error().Err(err).Int("count", len(pending)).Msg("failed to persist pending messages")
		}
		cancel()
	}

	c.mu.Lock()
	// a stop accepted before this point wins over the loop's own outcome
	if c.stopRequested && state != models.CampaignStateStopped {
		state = models.CampaignStateStopped
		reason = stopReason
	}
	c.state = state
	c.pauseRequested = false
	c.finishedAt = c.opts.Now()
	c.result = c.resultLocked(reason)
	result := c.result
	c.mu.Unlock()

	c.persistCounts(state)

	c.log.Info().
		Str("state", string(state)).
		Int("sent", result.SentCount).
		Int("failed", result.FailedCount).
		Int("pending", result.PendingCount).
		Str("reason", reason).
		Msg("campaign finished")

	eventType := models.EventCompleted
	switch state {
	case models.CampaignStateStopped:
		eventType = models.EventStopped
	case models.CampaignStateFailed:
		eventType = models.EventFailed
	}
	c.emit(models.Event{Type: eventType, Result: &result, Reason: reason})
}

func (c *Controller) persistOutcome(outcome *models.MessageOutcome) {
	if c.deps.Store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.StoreTimeout)
	defer cancel()

	if err := c.deps.Store.RecordMessageOutcome(ctx, c.id, outcome); err != nil {
		c.log.Error().Err(err).Str("message_id", outcome.MessageID).Msg("failed to persist message outcome")
	}
}

func (c *Controller) persistCounts(state models.CampaignState) {
	if c.deps.Store == nil {
		return
	}

	c.mu.Lock()
	sent, failed := c.sent, c.failed
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.StoreTimeout)
	defer cancel()

	if err := c.deps.Store.UpdateCampaignCounts(ctx, c.id, sent, failed, state); err != nil {
		c.log.Error().Err(err).Str("state", string(state)).Msg("failed to persist campaign counts")
	}
}

func (c *Controller) emit(event models.Event) {
	event.CampaignID = c.id
	event.Time = c.opts.Now()
	c.events <- event
}

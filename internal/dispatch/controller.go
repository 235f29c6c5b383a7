// Package dispatch runs a single campaign.
//
// A Controller owns one processing loop that paces sends through an
// antiban.Governor, routes them through a rotation.Rotator and reports
// every step on its event channel. Pause takes effect between messages,
// never during a send. Stop aborts a pending delay but lets an in-flight
// send finish.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"bulksender/internal/antiban"
	"bulksender/internal/logging"
	"bulksender/internal/models"
	"bulksender/internal/repository"
	"bulksender/internal/rotation"
	"bulksender/internal/session"
)

const (
	DefaultSendTimeout  = 30 * time.Second
	DefaultStoreTimeout = 5 * time.Second
	DefaultEventBuffer  = 256
)

// Observer receives per message measurements, typically for metrics
type Observer interface {
	MessageProcessed(campaignID, channelID string, status models.MessageStatus, latency time.Duration)
	LongPause(campaignID string, d time.Duration)
}

// WaitFunc blocks for d or until ctx is cancelled
type WaitFunc func(ctx context.Context, d time.Duration) error

// Deps are the collaborators of a controller
type Deps struct {
	Provider session.Provider
	// Store may be nil, in which case nothing is persisted
	Store    repository.ProgressStore
	Observer Observer
	Logger   *zerolog.Logger
}

// Options tune a controller; zero values take defaults
type Options struct {
	Governor     antiban.GovernorConfig
	SendTimeout  time.Duration
	StoreTimeout time.Duration
	// EventBuffer is the capacity of the event channel. The loop blocks
	// when it is full, so the channel must be drained.
	EventBuffer int
	Wait        WaitFunc
	Now         func() time.Time
}

func (o Options) withDefaults() Options {
	if o.SendTimeout <= 0 {
		o.SendTimeout = DefaultSendTimeout
	}
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = DefaultStoreTimeout
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = DefaultEventBuffer
	}
	if o.Wait == nil {
		o.Wait = Sleep
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Status is a point in time view of a campaign
type Status struct {
	CampaignID     string                   `json:"campaign_id"`
	State          models.CampaignState     `json:"state"`
	Progress       models.Progress          `json:"progress"`
	PendingCount   int                      `json:"pending_count"`
	SkippedCount   int                      `json:"skipped_count"`
	PauseRequested bool                     `json:"pause_requested,omitempty"`
	StopRequested  bool                     `json:"stop_requested,omitempty"`
	Distribution   map[string]int           `json:"distribution"`
	Governor       antiban.GovernorSnapshot `json:"governor"`
	StartedAt      *time.Time               `json:"started_at,omitempty"`
	FinishedAt     *time.Time               `json:"finished_at,omitempty"`
	Reason         string                   `json:"reason,omitempty"`
}

// Controller drives one campaign through Idle, Running, Paused and a terminal state
type Controller struct {
	id   string
	deps Deps
	opts Options
	log  zerolog.Logger

	events   chan models.Event
	done     chan struct{}
	resume   chan struct{}
	cancel   context.CancelFunc

	// owned by the loop goroutine once running
	task        models.CampaignTask
	governor    *antiban.Governor
	rotator     *rotation.Rotator
	alreadySent map[string]bool

	mu             sync.Mutex
	state          models.CampaignState
	starting       bool
	pauseRequested bool
	stopRequested  bool
	total          int
	sent           int
	failed         int
	skipped        int
	last           models.Progress
	errs           []models.MessageError
	distribution   map[string]int
	govSnapshot    antiban.GovernorSnapshot
	result         models.ExecutionResult
	startedAt      time.Time
	finishedAt     time.Time
}

// New creates an idle controller for a campaign
func New(campaignID string, deps Deps, opts Options) *Controller {
	opts = opts.withDefaults()

	var log zerolog.Logger
	if deps.Logger != nil {
		log = deps.Logger.With().Str("campaign_id", campaignID).Logger()
	} else {
		log = logging.With().Str("component", "dispatch").Str("campaign_id", campaignID).Logger()
	}

	return &Controller{
		id:           campaignID,
		deps:         deps,
		opts:         opts,
		log:          log,
		events:       make(chan models.Event, opts.EventBuffer),
		done:         make(chan struct{}),
		resume:       make(chan struct{}, 1),
		state:        models.CampaignStateIdle,
		distribution: map[string]int{},
	}
}

// ID returns the campaign id
func (c *Controller) ID() string {
	return c.id
}

// Events streams progress and lifecycle events. It is closed after the terminal event.
func (c *Controller) Events() <-chan models.Event {
	return c.events
}

// Done is closed once the campaign reached a terminal state
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Start validates the task and begins sending. Messages the store already
// records as sent for this campaign are skipped.
func (c *Controller) Start(ctx context.Context, task models.CampaignTask) error {
	c.mu.Lock()
	if c.state != models.CampaignStateIdle || c.starting {
		state := c.state
		c.mu.Unlock()
		return &TransitionError{Op: "start", From: state}
	}
	c.starting = true
	c.mu.Unlock()

	skipped, err := c.prepare(ctx, task)

	c.mu.Lock()
	c.starting = false
	if err != nil {
		c.mu.Unlock()
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.state = models.CampaignStateRunning
	c.startedAt = c.opts.Now()
	c.total = len(c.task.Messages)
	c.skipped = skipped
	c.sent = skipped
	c.govSnapshot = c.governor.Snapshot()
	c.mu.Unlock()

	c.persistCounts(models.CampaignStateRunning)
	c.log.Info().
		Int("total", c.total).
		Int("skipped", skipped).
		Str("strategy", string(c.task.Strategy)).
		Str("preset", string(c.task.Delay.Preset)).
		Msg("campaign started")

	go c.run(runCtx)
	return nil
}

// prepare validates the task and builds the loop state; it returns the
// number of messages already sent by an earlier run
func (c *Controller) prepare(ctx context.Context, task models.CampaignTask) (int, error) {
	if c.deps.Provider == nil {
		return 0, errors.New("dispatch: session provider is required")
	}
	if err := task.Validate(); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidTask, err)
	}
	if err := antiban.ValidateSettings(task.Delay); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidTask, err)
	}

	governor, err := antiban.NewGovernor(c.opts.Governor.WithOverrides(task.Pacing))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidTask, err)
	}

	alreadySent := map[string]bool{}
	if c.deps.Store != nil {
		alreadySent, err = c.deps.Store.SentMessageIDs(ctx, c.id)
		if err != nil {
			return 0, fmt.Errorf("failed to load campaign progress: %w", err)
		}
	}

	skipped := 0
	for i, m := range task.Messages {
		if alreadySent[m.MessageID(i)] {
			skipped++
		}
	}

	task.Messages = append([]models.MessageTask(nil), task.Messages...)
	task.Channels = append([]string(nil), task.Channels...)
	if task.Pacing != nil {
		pacing := *task.Pacing
		task.Pacing = &pacing
	}

	c.task = task
	c.governor = governor
	c.rotator = rotation.NewRotator()
	c.alreadySent = alreadySent
	return skipped, nil
}

// Pause asks the loop to suspend after the in-flight message
func (c *Controller) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != models.CampaignStateRunning {
		return &TransitionError{Op: "pause", From: c.state}
	}
	if c.pauseRequested {
		return &TransitionError{Op: "pause", From: c.state, Reason: "pause already requested"}
	}

	c.pauseRequested = true
	c.log.Debug().Msg("pause requested")
	return nil
}

// Resume continues a paused campaign at its next unsent message
func (c *Controller) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != models.CampaignStatePaused {
		return &TransitionError{Op: "resume", From: c.state}
	}

	c.state = models.CampaignStateRunning
	select {
	case c.resume <- struct{}{}:
	default:
	}
	return nil
}

// Stop ends a running or paused campaign and returns once it is finalized
// as Stopped. Only the first caller succeeds; a concurrent caller waits for
// the run to end and gets a TransitionError.
// It must not be called from inside a provider Send.
func (c *Controller) Stop() error {
	c.mu.Lock()
	state := c.state
	if state != models.CampaignStateRunning && state != models.CampaignStatePaused {
		c.mu.Unlock()
		return &TransitionError{Op: "stop", From: state}
	}
	if c.stopRequested {
		c.mu.Unlock()
		<-c.done
		return &TransitionError{Op: "stop", From: c.State(), Reason: "already stopped"}
	}
	c.stopRequested = true
	c.mu.Unlock()

	c.cancel()
	<-c.done
	return nil
}

// State returns the current lifecycle state
func (c *Controller) State() models.CampaignState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status returns the current state and counters
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	distribution := make(map[string]int, len(c.distribution))
	for k, v := range c.distribution {
		distribution[k] = v
	}

	status := Status{
		CampaignID:     c.id,
		State:          c.state,
		Progress:       c.progressLocked(),
		PendingCount:   c.total - c.sent - c.failed,
		SkippedCount:   c.skipped,
		PauseRequested: c.pauseRequested,
		StopRequested:  c.stopRequested && !c.state.IsTerminal(),
		Distribution:   distribution,
		Governor:       c.govSnapshot,
		Reason:         c.result.Reason,
	}
	if !c.startedAt.IsZero() {
		started := c.startedAt
		status.StartedAt = &started
	}
	if !c.finishedAt.IsZero() {
		finished := c.finishedAt
		status.FinishedAt = &finished
	}
	return status
}

// Distribution returns the number of messages assigned to each channel
func (c *Controller) Distribution() map[string]int {
	return c.Status().Distribution
}

// Result returns the final accounting once terminal, or a checkpoint before that
func (c *Controller) Result() models.ExecutionResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.IsTerminal() {
		return c.result
	}
	return c.resultLocked("")
}

func (c *Controller) resultLocked(reason string) models.ExecutionResult {
	errs := make([]models.MessageError, len(c.errs))
	copy(errs, c.errs)

	return models.ExecutionResult{
		State:        c.state,
		TotalCount:   c.total,
		SentCount:    c.sent,
		FailedCount:  c.failed,
		PendingCount: c.total - c.sent - c.failed,
		Errors:       errs,
		Reason:       reason,
	}
}

func (c *Controller) progressLocked() models.Progress {
	p := c.last
	p.SentCount = c.sent
	p.FailedCount = c.failed
	p.TotalMessages = c.total
	if c.total > 0 {
		pct := float64(c.sent+c.failed) / float64(c.total) * 100
		p.PercentComplete = math.Round(pct*100) / 100
	}
	return p
}

// Sleep waits for d unless ctx is cancelled first
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"bulksender/internal/dispatch"
	"bulksender/internal/logging"
	"bulksender/internal/metrics"
	"bulksender/internal/models"
	"bulksender/internal/repository"
	"bulksender/internal/session"
)

// ErrShuttingDown is returned for campaigns started after Shutdown
var ErrShuttingDown = errors.New("campaign service is shutting down")

// EventPublisher fans campaign events out to subscribers
type EventPublisher interface {
	Publish(ctx context.Context, event models.Event)
}

// HistoryReader returns recent events of a campaign, oldest first
type HistoryReader interface {
	History(ctx context.Context, campaignID string, limit int) ([]models.Event, error)
}

// CampaignDeps are the collaborators of the campaign service. Only
// Provider is required.
type CampaignDeps struct {
	Provider session.Provider
	Store    repository.ProgressStore
	Events   EventPublisher
	History  HistoryReader
	Observer dispatch.Observer
}

// CampaignService owns the controllers of every campaign started by this process
type CampaignService struct {
	deps CampaignDeps
	opts dispatch.Options
	log  zerolog.Logger

	mu        sync.RWMutex
	campaigns map[string]*dispatch.Controller
	// ids reserved by a StartCampaign that is still loading progress
	starting map[string]struct{}
	closed   bool
	starts   sync.WaitGroup
	forwards sync.WaitGroup
}

// NewCampaignService creates a new campaign service
func NewCampaignService(deps CampaignDeps, opts dispatch.Options) *CampaignService {
	return &CampaignService{
		deps:      deps,
		opts:      opts,
		log:       logging.With().Str("component", "campaign-service").Logger(),
		campaigns: make(map[string]*dispatch.Controller),
		starting:  make(map[string]struct{}),
	}
}

// StartCampaignRequest represents a request to start a campaign
type StartCampaignRequest struct {
	CampaignID string              `json:"campaign_id,omitempty" validate:"omitempty,max=64,printascii,excludesall=/?#"`
	Task       models.CampaignTask `json:"task"`
}

// StartCampaign validates the task and starts a controller for it. An
// empty campaign id gets a generated one. Restarting a finished campaign
// id skips the messages the store already has as sent.
func (s *CampaignService) StartCampaign(ctx context.Context, req *StartCampaignRequest) (*dispatch.Status, error) {
	if req == nil {
		return nil, &ValidationError{Message: "request is required"}
	}

	id := req.CampaignID
	if id == "" {
		id = uuid.NewString()
	}

	task, err := s.availableChannels(req.Task)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrShuttingDown
	}
	_, reserved := s.starting[id]
	if existing, ok := s.campaigns[id]; reserved || (ok && !existing.Status().State.IsTerminal()) {
		s.mu.Unlock()
		return nil, &ConflictError{Resource: "campaign", Message: fmt.Sprintf("campaign %s is already active", id)}
	}
	s.starting[id] = struct{}{}
	s.starts.Add(1)
	s.mu.Unlock()
	defer s.starts.Done()

	// Start reads the store, so it runs without holding the registry lock
	ctrl := dispatch.New(id, dispatch.Deps{
		Provider: s.deps.Provider,
		Store:    s.deps.Store,
		Observer: s.deps.Observer,
	}, s.opts)
	startErr := ctrl.Start(ctx, task)

	s.mu.Lock()
	delete(s.starting, id)
	if startErr != nil {
		s.mu.Unlock()
		return nil, controllerError(startErr)
	}
	s.campaigns[id] = ctrl
	s.forwards.Add(1)
	s.mu.Unlock()

	metrics.ActiveCampaigns.Inc()
	go s.forward(ctrl)

	status := ctrl.Status()
	return &status, nil
}

// availableChannels drops rotational channels that are offline at start
func (s *CampaignService) availableChannels(task models.CampaignTask) (models.CampaignTask, error) {
	if s.deps.Provider == nil {
		return task, errors.New("campaign service has no session provider")
	}

	switch task.Strategy {
	case models.StrategyRotational:
		if len(task.Channels) == 0 {
			return task, nil
		}
		available := session.FilterAvailable(s.deps.Provider, task.Channels)
		if len(available) == 0 {
			return task, &ValidationError{Message: "none of the requested channels is available"}
		}
		if len(available) < len(task.Channels) {
			s.log.Warn().
				Strs("requested", task.Channels).
				Strs("available", available).
				Msg("dropping unavailable channels")
		}
		task.Channels = available
	case models.StrategySingle:
		if task.ChannelID != "" && !s.deps.Provider.IsAvailable(task.ChannelID) {
			return task, &ValidationError{Message: fmt.Sprintf("channel %s is not available", task.ChannelID)}
		}
	}
	return task, nil
}

// forward drains the controller's events into the publisher until the terminal event
func (s *CampaignService) forward(ctrl *dispatch.Controller) {
	defer s.forwards.Done()
	defer metrics.ActiveCampaigns.Dec()

	for event := range ctrl.Events() {
		metrics.RecordEvent(event)
		if s.deps.Events != nil {
			s.deps.Events.Publish(context.Background(), event)
		}
		if event.IsTerminal() {
			s.log.Info().
				Str("campaign_id", event.CampaignID).
				Str("event", string(event.Type)).
				Str("reason", event.Reason).
				Msg("campaign finished")
		}
	}
}

func (s *CampaignService) controller(id string) (*dispatch.Controller, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctrl, ok := s.campaigns[id]
	if !ok {
		return nil, &NotFoundError{Resource: "campaign", ID: id}
	}
	return ctrl, nil
}

// PauseCampaign suspends a running campaign after its in-flight message
func (s *CampaignService) PauseCampaign(ctx context.Context, id string) (*dispatch.Status, error) {
	ctrl, err := s.controller(id)
	if err != nil {
		return nil, err
	}
	if err := ctrl.Pause(); err != nil {
		return nil, controllerError(err)
	}
	status := ctrl.Status()
	return &status, nil
}

// ResumeCampaign continues a paused campaign
func (s *CampaignService) ResumeCampaign(ctx context.Context, id string) (*dispatch.Status, error) {
	ctrl, err := s.controller(id)
	if err != nil {
		return nil, err
	}
	if err := ctrl.Resume(); err != nil {
		return nil, controllerError(err)
	}
	status := ctrl.Status()
	return &status, nil
}

// StopCampaign ends a campaign and returns its final status
func (s *CampaignService) StopCampaign(ctx context.Context, id string) (*dispatch.Status, error) {
	ctrl, err := s.controller(id)
	if err != nil {
		return nil, err
	}
	if err := ctrl.Stop(); err != nil {
		return nil, controllerError(err)
	}
	status := ctrl.Status()
	return &status, nil
}

// GetStatus returns the live status of a campaign, falling back to the
// persisted snapshot for campaigns this process does not run
func (s *CampaignService) GetStatus(ctx context.Context, id string) (*dispatch.Status, error) {
	if ctrl, err := s.controller(id); err == nil {
		status := ctrl.Status()
		return &status, nil
	}

	if s.deps.Store == nil {
		return nil, &NotFoundError{Resource: "campaign", ID: id}
	}

	record, err := s.deps.Store.GetCampaign(ctx, id)
	if errors.Is(err, repository.ErrCampaignNotFound) {
		return nil, &NotFoundError{Resource: "campaign", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}

	return &dispatch.Status{
		CampaignID: record.ID,
		State:      record.Status,
		Progress: models.Progress{
			SentCount:   record.SentCount,
			FailedCount: record.FailedCount,
		},
		Distribution: map[string]int{},
	}, nil
}

// ListCampaigns returns the status of every campaign known to this process, ordered by id
func (s *CampaignService) ListCampaigns(ctx context.Context) []dispatch.Status {
	s.mu.RLock()
	ctrls := make([]*dispatch.Controller, 0, len(s.campaigns))
	for _, ctrl := range s.campaigns {
		ctrls = append(ctrls, ctrl)
	}
	s.mu.RUnlock()

	statuses := make([]dispatch.Status, 0, len(ctrls))
	for _, ctrl := range ctrls {
		statuses = append(statuses, ctrl.Status())
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].CampaignID < statuses[j].CampaignID })
	return statuses
}

// ListMessages returns the persisted per message outcomes of a campaign
func (s *CampaignService) ListMessages(ctx context.Context, id string) ([]*models.MessageOutcome, error) {
	if s.deps.Store == nil {
		return nil, &BusinessLogicError{Message: "message persistence is disabled"}
	}

	if _, err := s.GetStatus(ctx, id); err != nil {
		return nil, err
	}

	messages, err := s.deps.Store.ListMessages(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

// EventHistory returns the most recent events of a campaign
func (s *CampaignService) EventHistory(ctx context.Context, id string, limit int) ([]models.Event, error) {
	if s.deps.History == nil {
		return nil, &BusinessLogicError{Message: "event history is disabled"}
	}

	events, err := s.deps.History.History(ctx, id, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read event history: %w", err)
	}
	return events, nil
}

// Shutdown stops every active campaign and waits for their events to be
// forwarded, or for ctx to expire
func (s *CampaignService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	var ctrls []*dispatch.Controller
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		// starts already in progress register their controller first
		s.starts.Wait()

		s.mu.RLock()
		ctrls = make([]*dispatch.Controller, 0, len(s.campaigns))
		for _, ctrl := range s.campaigns {
			ctrls = append(ctrls, ctrl)
		}
		s.mu.RUnlock()

		for _, ctrl := range ctrls {
			if err := ctrl.Stop(); err != nil && !errors.Is(err, dispatch.ErrInvalidTransition) {
				s.log.Error().Err(err).Str("campaign_id", ctrl.ID()).Msg("failed to stop campaign")
			}
		}
		s.forwards.Wait()
	}()

	select {
	case <-stopped:
		s.log.Info().Int("campaigns", len(ctrls)).Msg("campaign service stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("campaign service shutdown: %w", ctx.Err())
	}
}

package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"bulksender/internal/dispatch"
	"bulksender/internal/models"
	"bulksender/internal/service"
)

const (
	maxBodyBytes        = 10 << 20
	defaultHistoryLimit = 50
)

var validate = validator.New()

// CampaignHandler handles HTTP requests for campaign operations
type CampaignHandler struct {
	campaignService *service.CampaignService
}

// NewCampaignHandler creates a new campaign handler
func NewCampaignHandler(campaignService *service.CampaignService) *CampaignHandler {
	return &CampaignHandler{
		campaignService: campaignService,
	}
}

// Register mounts the campaign routes
func (h *CampaignHandler) Register(router *mux.Router) {
	router.HandleFunc("/campaigns", h.Start).Methods(http.MethodPost)
	router.HandleFunc("/campaigns", h.List).Methods(http.MethodGet)
	router.HandleFunc("/campaigns/{id}", h.GetByID).Methods(http.MethodGet)
	router.HandleFunc("/campaigns/{id}/pause", h.Pause).Methods(http.MethodPost)
	router.HandleFunc("/campaigns/{id}/resume", h.Resume).Methods(http.MethodPost)
	router.HandleFunc("/campaigns/{id}/stop", h.Stop).Methods(http.MethodPost)
	router.HandleFunc("/campaigns/{id}/messages", h.Messages).Methods(http.MethodGet)
	router.HandleFunc("/campaigns/{id}/events", h.Events).Methods(http.MethodGet)
}

// Start handles POST /campaigns - validates a task and starts sending
func (h *CampaignHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req service.StartCampaignRequest

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			WriteError(w, http.StatusBadRequest, CodeInvalidJSON, "Request body is empty")
			return
		}
		WriteError(w, http.StatusBadRequest, CodeInvalidJSON, "Invalid JSON format")
		return
	}

	if err := validate.Struct(req); err != nil {
		WriteValidationError(w, validationMessage(err))
		return
	}

	status, err := h.campaignService.StartCampaign(r.Context(), &req)
	if err != nil {
		HandleServiceError(w, err)
		return
	}

	WriteCreated(w, status)
}

// List handles GET /campaigns - lists campaigns of this process, optionally by state
func (h *CampaignHandler) List(w http.ResponseWriter, r *http.Request) {
	statuses := h.campaignService.ListCampaigns(r.Context())

	if stateStr := r.URL.Query().Get("state"); stateStr != "" {
		state := models.CampaignState(stateStr)
		if !validState(state) {
			WriteValidationError(w, "invalid state: must be one of idle, running, paused, completed, stopped, failed")
			return
		}

		filtered := statuses[:0]
		for _, status := range statuses {
			if status.State == state {
				filtered = append(filtered, status)
			}
		}
		statuses = filtered
	}

	WriteOK(w, ListCampaignsResponse{Campaigns: statuses, Count: len(statuses)})
}

// GetByID handles GET /campaigns/{id}
func (h *CampaignHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	status, err := h.campaignService.GetStatus(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		HandleServiceError(w, err)
		return
	}

	WriteOK(w, status)
}

// Pause handles POST /campaigns/{id}/pause
func (h *CampaignHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, h.campaignService.PauseCampaign)
}

// Resume handles POST /campaigns/{id}/resume
func (h *CampaignHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, h.campaignService.ResumeCampaign)
}

// Stop handles POST /campaigns/{id}/stop; it returns once the campaign is finalized
func (h *CampaignHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, h.campaignService.StopCampaign)
}

type commandFunc func(ctx context.Context, id string) (*dispatch.Status, error)

func (h *CampaignHandler) command(w http.ResponseWriter, r *http.Request, apply commandFunc) {
	status, err := apply(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		HandleServiceError(w, err)
		return
	}

	WriteOK(w, status)
}

// Messages handles GET /campaigns/{id}/messages - persisted per message outcomes
func (h *CampaignHandler) Messages(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	messages, err := h.campaignService.ListMessages(r.Context(), id)
	if err != nil {
		HandleServiceError(w, err)
		return
	}

	if statusStr := r.URL.Query().Get("status"); statusStr != "" {
		status := models.MessageStatus(statusStr)
		if status != models.MessageStatusPending && status != models.MessageStatusSent && status != models.MessageStatusFailed {
			WriteValidationError(w, "invalid status: must be one of pending, sent, failed")
			return
		}

		filtered := messages[:0]
		for _, m := range messages {
			if m.Status == status {
				filtered = append(filtered, m)
			}
		}
		messages = filtered
	}

	WriteOK(w, ListMessagesResponse{CampaignID: id, Messages: messages, Count: len(messages)})
}

// Events handles GET /campaigns/{id}/events - recent events, oldest first
func (h *CampaignHandler) Events(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	limit := defaultHistoryLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l <= 0 {
			WriteValidationError(w, "limit must be a positive integer")
			return
		}
		limit = l
	}

	events, err := h.campaignService.EventHistory(r.Context(), id, limit)
	if err != nil {
		HandleServiceError(w, err)
		return
	}

	WriteOK(w, EventHistoryResponse{CampaignID: id, Events: events})
}

func validState(state models.CampaignState) bool {
	switch state {
	case models.CampaignStateIdle, models.CampaignStateRunning, models.CampaignStatePaused,
		models.CampaignStateCompleted, models.CampaignStateStopped, models.CampaignStateFailed:
		return true
	}
	return false
}

// validationMessage flattens validator errors into one line
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

// Request/Response types

// ListCampaignsResponse represents the response for listing campaigns
type ListCampaignsResponse struct {
	Campaigns []dispatch.Status `json:"campaigns"`
	Count     int               `json:"count"`
}

// ListMessagesResponse represents the persisted messages of a campaign
type ListMessagesResponse struct {
	CampaignID string                   `json:"campaign_id"`
	Messages   []*models.MessageOutcome `json:"messages"`
	Count      int                      `json:"count"`
}

// EventHistoryResponse represents recent events of a campaign
type EventHistoryResponse struct {
	CampaignID string         `json:"campaign_id"`
	Events     []models.Event `json:"events"`
}

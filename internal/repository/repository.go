package repository

import (
	"context"
	"errors"

	"bulksender/internal/models"
)

// ErrCampaignNotFound is returned when no campaign row matches
var ErrCampaignNotFound = errors.New("campaign not found")

// ProgressStore persists campaign counts and per message outcomes.
// Writes are idempotent by (campaign, message) so a crashed run can be resumed.
type ProgressStore interface {
	// RecordMessageOutcome upserts one message status; a sent message is never downgraded
	RecordMessageOutcome(ctx context.Context, campaignID string, outcome *models.MessageOutcome) error
	// MarkPending inserts pending rows, leaving existing rows untouched
	MarkPending(ctx context.Context, campaignID string, outcomes []*models.MessageOutcome) error
	// UpdateCampaignCounts upserts the campaign snapshot
	UpdateCampaignCounts(ctx context.Context, campaignID string, sent, failed int, status models.CampaignState) error
	// SentMessageIDs returns the ids already delivered for the campaign
	SentMessageIDs(ctx context.Context, campaignID string) (map[string]bool, error)
	GetCampaign(ctx context.Context, campaignID string) (*models.CampaignRecord, error)
	ListMessages(ctx context.Context, campaignID string) ([]*models.MessageOutcome, error)
}

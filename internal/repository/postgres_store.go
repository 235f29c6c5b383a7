package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"bulksender/internal/models"
)

type postgresProgressStore struct {
	db *sql.DB
}

// NewPostgresProgressStore creates a progress store backed by Postgres
func NewPostgresProgressStore(db *sql.DB) ProgressStore {
	return &postgresProgressStore{db: db}
}

// RecordMessageOutcome upserts a message status
func (r *postgresProgressStore) RecordMessageOutcome(ctx context.Context, campaignID string, outcome *models.MessageOutcome) error {
	query := `
		INSERT INTO campaign_messages (campaign_id, message_id, message_index, recipient, channel_id, status, last_error, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, CURRENT_TIMESTAMP)
		ON CONFLICT (campaign_id, message_id) DO UPDATE
		SET channel_id = EXCLUDED.channel_id,
			status = EXCLUDED.status,
			last_error = EXCLUDED.last_error,
			updated_at = CURRENT_TIMESTAMP
		WHERE campaign_messages.status <> 'sent'
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		campaignID,
		outcome.MessageID,
		outcome.MessageIndex,
		outcome.Recipient,
		outcome.ChannelID,
		outcome.Status,
		outcome.LastError,
	)
	if err != nil {
		return fmt.Errorf("failed to record message outcome: %w", err)
	}

	return nil
}

// MarkPending inserts pending rows for messages never attempted
func (r *postgresProgressStore) MarkPending(ctx context.Context, campaignID string, outcomes []*models.MessageOutcome) error {
	if len(outcomes) == 0 {
		return nil
	}

	ids := make([]string, len(outcomes))
	indexes := make([]int64, len(outcomes))
	recipients := make([]string, len(outcomes))
	for i, o := range outcomes {
		ids[i] = o.MessageID
		indexes[i] = int64(o.MessageIndex)
		recipients[i] = o.Recipient
	}

	query := `
		INSERT INTO campaign_messages (campaign_id, message_id, message_index, recipient, status, updated_at)
		SELECT $1, m.message_id, m.message_index, m.recipient, 'pending', CURRENT_TIMESTAMP
		FROM unnest($2::text[], $3::int[], $4::text[]) AS m(message_id, message_index, recipient)
		ON CONFLICT (campaign_id, message_id) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, query, campaignID, pq.Array(ids), pq.Array(indexes), pq.Array(recipients))
	if err != nil {
		return fmt.Errorf("failed to mark messages pending: %w", err)
	}

	return nil
}

// UpdateCampaignCounts upserts the campaign snapshot
func (r *postgresProgressStore) UpdateCampaignCounts(ctx context.Context, campaignID string, sent, failed int, status models.CampaignState) error {
	query := `
		INSERT INTO campaigns (id, status, sent_count, failed_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status,
			sent_count = EXCLUDED.sent_count,
			failed_count = EXCLUDED.failed_count,
			updated_at = CURRENT_TIMESTAMP
	`

	if _, err := r.db.ExecContext(ctx, query, campaignID, status, sent, failed); err != nil {
		return fmt.Errorf("failed to update campaign counts: %w", err)
	}

	return nil
}

// SentMessageIDs returns the delivered message ids of a campaign
func (r *postgresProgressStore) SentMessageIDs(ctx context.Context, campaignID string) (map[string]bool, error) {
	query := `
		SELECT message_id
		FROM campaign_messages
		WHERE campaign_id = $1 AND status = 'sent'
	`

	rows, err := r.db.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to get sent messages: %w", err)
	}
	defer rows.Close()

	sent := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan message id: %w", err)
		}
		sent[id] = true
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sent messages: %w", err)
	}

	return sent, nil
}

// GetCampaign retrieves the persisted campaign snapshot
func (r *postgresProgressStore) GetCampaign(ctx context.Context, campaignID string) (*models.CampaignRecord, error) {
	query := `
		SELECT id, status, sent_count, failed_count, created_at, updated_at
		FROM campaigns
		WHERE id = $1
	`

	campaign := &models.CampaignRecord{}
	err := r.db.QueryRowContext(ctx, query, campaignID).Scan(
		&campaign.ID,
		&campaign.Status,
		&campaign.SentCount,
		&campaign.FailedCount,
		&campaign.CreatedAt,
		&campaign.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrCampaignNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}

	return campaign, nil
}

// ListMessages retrieves every message row of a campaign in queue order
func (r *postgresProgressStore) ListMessages(ctx context.Context, campaignID string) ([]*models.MessageOutcome, error) {
	query := `
		SELECT message_id, message_index, recipient, channel_id, status, last_error, updated_at
		FROM campaign_messages
		WHERE campaign_id = $1
		ORDER BY message_index ASC
	`

	rows, err := r.db.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages := []*models.MessageOutcome{}
	for rows.Next() {
		message := &models.MessageOutcome{}
		err := rows.Scan(
			&message.MessageID,
			&message.MessageIndex,
			&message.Recipient,
			&message.ChannelID,
			&message.Status,
			&message.LastError,
			&message.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, message)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}

	return messages, nil
}

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"bulksender/internal/models"
)

type sqliteProgressStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens a SQLite database file and applies the schema.
// Use ":memory:" for a throwaway database.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// a single connection serializes writers and keeps :memory: databases shared
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure sqlite: %w", err)
	}

	if _, err := MigrateUp(db, DialectSQLite); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// NewSQLiteProgressStore creates a progress store backed by a local SQLite file
func NewSQLiteProgressStore(db *sql.DB) ProgressStore {
	return &sqliteProgressStore{db: db, now: time.Now}
}

func (r *sqliteProgressStore) RecordMessageOutcome(ctx context.Context, campaignID string, outcome *models.MessageOutcome) error {
	query := `
		INSERT INTO campaign_messages (campaign_id, message_id, message_index, recipient, channel_id, status, last_error, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (campaign_id, message_id) DO UPDATE
		SET channel_id = excluded.channel_id,
			status = excluded.status,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at
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
		string(outcome.Status),
		outcome.LastError,
		r.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to record message outcome: %w", err)
	}

	return nil
}

func (r *sqliteProgressStore) MarkPending(ctx context.Context, campaignID string, outcomes []*models.MessageOutcome) error {
	if len(outcomes) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO campaign_messages (campaign_id, message_id, message_index, recipient, status, updated_at)
		VALUES (?, ?, ?, ?, 'pending', ?)
		ON CONFLICT (campaign_id, message_id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := r.now().UnixMilli()
	for _, o := range outcomes {
		if _, err := stmt.ExecContext(ctx, campaignID, o.MessageID, o.MessageIndex, o.Recipient, now); err != nil {
			return fmt.Errorf("failed to mark message pending: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (r *sqliteProgressStore) UpdateCampaignCounts(ctx context.Context, campaignID string, sent, failed int, status models.CampaignState) error {
	query := `
		INSERT INTO campaigns (id, status, sent_count, failed_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE
		SET status = excluded.status,
			sent_count = excluded.sent_count,
			failed_count = excluded.failed_count,
			updated_at = excluded.updated_at
	`

	now := r.now().UnixMilli()
	if _, err := r.db.ExecContext(ctx, query, campaignID, string(status), sent, failed, now, now); err != nil {
		return fmt.Errorf("failed to update campaign counts: %w", err)
	}

	return nil
}

func (r *sqliteProgressStore) SentMessageIDs(ctx context.Context, campaignID string) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT message_id FROM campaign_messages WHERE campaign_id = ? AND status = 'sent'`,
		campaignID,
	)
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

func (r *sqliteProgressStore) GetCampaign(ctx context.Context, campaignID string) (*models.CampaignRecord, error) {
	var (
		campaign           models.CampaignRecord
		status             string
		createdAt, updated int64
	)

	err := r.db.QueryRowContext(ctx,
		`SELECT id, status, sent_count, failed_count, created_at, updated_at FROM campaigns WHERE id = ?`,
		campaignID,
	).Scan(&campaign.ID, &status, &campaign.SentCount, &campaign.FailedCount, &createdAt, &updated)

	if err == sql.ErrNoRows {
		return nil, ErrCampaignNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}

	campaign.Status = models.CampaignState(status)
	campaign.CreatedAt = time.UnixMilli(createdAt).UTC()
	campaign.UpdatedAt = time.UnixMilli(updated).UTC()
	return &campaign, nil
}

func (r *sqliteProgressStore) ListMessages(ctx context.Context, campaignID string) ([]*models.MessageOutcome, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT message_id, message_index, recipient, channel_id, status, last_error, updated_at
		FROM campaign_messages
		WHERE campaign_id = ?
		ORDER BY message_index ASC
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages := []*models.MessageOutcome{}
	for rows.Next() {
		var (
			message   models.MessageOutcome
			status    string
			lastError sql.NullString
			updatedAt int64
		)
		err := rows.Scan(
			&message.MessageID,
			&message.MessageIndex,
			&message.Recipient,
			&message.ChannelID,
			&status,
			&lastError,
			&updatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}

		message.Status = models.MessageStatus(status)
		if lastError.Valid {
			message.LastError = &lastError.String
		}
		message.UpdatedAt = time.UnixMilli(updatedAt).UTC()
		messages = append(messages, &message)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}

	return messages, nil
}

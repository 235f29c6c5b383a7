package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bulksender/internal/models"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock DB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestPostgresStore_RecordMessageOutcome(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewPostgresProgressStore(db)

	reason := "network timeout"
	outcome := &models.MessageOutcome{
		MessageID:    "m-1",
		MessageIndex: 1,
		Recipient:    "+254700000001",
		ChannelID:    "s1",
		Status:       models.MessageStatusFailed,
		LastError:    &reason,
	}

	mock.ExpectExec(`INSERT INTO campaign_messages .* ON CONFLICT \(campaign_id, message_id\) DO UPDATE .* WHERE campaign_messages.status <> 'sent'`).
		WithArgs("camp-1", "m-1", 1, "+254700000001", "s1", models.MessageStatusFailed, &reason).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.RecordMessageOutcome(context.Background(), "camp-1", outcome)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordMessageOutcome_WrapsError(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewPostgresProgressStore(db)

	mock.ExpectExec(`INSERT INTO campaign_messages`).
		WillReturnError(errors.New("connection reset"))

	err := store.RecordMessageOutcome(context.Background(), "camp-1", &models.MessageOutcome{MessageID: "m-0"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to record message outcome")
	assert.Contains(t, err.Error(), "connection reset")
}

func TestPostgresStore_MarkPending(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewPostgresProgressStore(db)

	mock.ExpectExec(`INSERT INTO campaign_messages .* FROM unnest\(.*\) .* DO NOTHING`).
		WithArgs("camp-1", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))

	err := store.MarkPending(context.Background(), "camp-1", []*models.MessageOutcome{
		{MessageID: "m-3", MessageIndex: 3, Recipient: "a"},
		{MessageID: "m-4", MessageIndex: 4, Recipient: "b"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MarkPending_Empty(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewPostgresProgressStore(db)

	require.NoError(t, store.MarkPending(context.Background(), "camp-1", nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateCampaignCounts(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewPostgresProgressStore(db)

	mock.ExpectExec(`INSERT INTO campaigns .* ON CONFLICT \(id\) DO UPDATE`).
		WithArgs("camp-1", models.CampaignStatePaused, 4, 1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.UpdateCampaignCounts(context.Background(), "camp-1", 4, 1, models.CampaignStatePaused)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SentMessageIDs(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewPostgresProgressStore(db)

	mock.ExpectQuery(`SELECT message_id FROM campaign_messages WHERE campaign_id = \$1 AND status = 'sent'`).
		WithArgs("camp-1").
		WillReturnRows(sqlmock.NewRows([]string{"message_id"}).AddRow("m-0").AddRow("m-1"))

	ids, err := store.SentMessageIDs(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"m-0": true, "m-1": true}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetCampaign(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewPostgresProgressStore(db)

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT id, status, sent_count, failed_count, created_at, updated_at FROM campaigns`).
		WithArgs("camp-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "sent_count", "failed_count", "created_at", "updated_at"}).
			AddRow("camp-1", "completed", 9, 1, now, now))

	campaign, err := store.GetCampaign(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStateCompleted, campaign.Status)
	assert.Equal(t, 9, campaign.SentCount)
	assert.Equal(t, 1, campaign.FailedCount)
	assert.Equal(t, now, campaign.UpdatedAt)
}

func TestPostgresStore_GetCampaign_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewPostgresProgressStore(db)

	mock.ExpectQuery(`SELECT .* FROM campaigns`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetCampaign(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrCampaignNotFound)
}

func TestPostgresStore_ListMessages(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewPostgresProgressStore(db)

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT message_id, message_index, recipient, channel_id, status, last_error, updated_at FROM campaign_messages .* ORDER BY message_index ASC`).
		WithArgs("camp-1").
		WillReturnRows(sqlmock.NewRows([]string{"message_id", "message_index", "recipient", "channel_id", "status", "last_error", "updated_at"}).
			AddRow("m-0", 0, "a", "s1", "sent", nil, now).
			AddRow("m-1", 1, "b", "s2", "failed", "rejected", now).
			AddRow("m-2", 2, "c", "", "pending", nil, now))

	messages, err := store.ListMessages(context.Background(), "camp-1")
	require.NoError(t, err)
	require.Len(t, messages, 3)

	assert.Equal(t, models.MessageStatusSent, messages[0].Status)
	assert.Nil(t, messages[0].LastError)
	require.NotNil(t, messages[1].LastError)
	assert.Equal(t, "rejected", *messages[1].LastError)
	assert.Equal(t, models.MessageStatusPending, messages[2].Status)
}

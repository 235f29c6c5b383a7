package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bulksender/internal/models"
)

func newSQLiteStore(t *testing.T) ProgressStore {
	t.Helper()
	db, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLiteProgressStore(db)
}

func strPtr(s string) *string { return &s }

func TestSQLiteStore_SentIsNeverDowngraded(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	sent := &models.MessageOutcome{MessageID: "m-0", Recipient: "a", ChannelID: "s1", Status: models.MessageStatusSent}
	require.NoError(t, store.RecordMessageOutcome(ctx, "camp-1", sent))

	failed := &models.MessageOutcome{MessageID: "m-0", Recipient: "a", ChannelID: "s2", Status: models.MessageStatusFailed, LastError: strPtr("late")}
	require.NoError(t, store.RecordMessageOutcome(ctx, "camp-1", failed))

	messages, err := store.ListMessages(ctx, "camp-1")
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, models.MessageStatusSent, messages[0].Status)
	assert.Equal(t, "s1", messages[0].ChannelID)
	assert.Nil(t, messages[0].LastError)
}

func TestSQLiteStore_FailedCanBecomeSent(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordMessageOutcome(ctx, "camp-1", &models.MessageOutcome{
		MessageID: "m-0", Recipient: "a", Status: models.MessageStatusFailed, LastError: strPtr("rejected"),
	}))
	require.NoError(t, store.RecordMessageOutcome(ctx, "camp-1", &models.MessageOutcome{
		MessageID: "m-0", Recipient: "a", ChannelID: "s1", Status: models.MessageStatusSent,
	}))

	ids, err := store.SentMessageIDs(ctx, "camp-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"m-0": true}, ids)
}

func TestSQLiteStore_MarkPendingLeavesExistingRows(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordMessageOutcome(ctx, "camp-1", &models.MessageOutcome{
		MessageID: "m-1", MessageIndex: 1, Recipient: "b", ChannelID: "s1", Status: models.MessageStatusSent,
	}))

	err := store.MarkPending(ctx, "camp-1", []*models.MessageOutcome{
		{MessageID: "m-1", MessageIndex: 1, Recipient: "b"},
		{MessageID: "m-2", MessageIndex: 2, Recipient: "c"},
		{MessageID: "m-3", MessageIndex: 3, Recipient: "d"},
	})
	require.NoError(t, err)

	messages, err := store.ListMessages(ctx, "camp-1")
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, models.MessageStatusSent, messages[0].Status)
	assert.Equal(t, models.MessageStatusPending, messages[1].Status)
	assert.Equal(t, 3, messages[2].MessageIndex)
}

func TestSQLiteStore_UpdateCampaignCounts(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	_, err := store.GetCampaign(ctx, "camp-1")
	assert.ErrorIs(t, err, ErrCampaignNotFound)

	require.NoError(t, store.UpdateCampaignCounts(ctx, "camp-1", 2, 0, models.CampaignStatePaused))
	require.NoError(t, store.UpdateCampaignCounts(ctx, "camp-1", 9, 1, models.CampaignStateCompleted))

	campaign, err := store.GetCampaign(ctx, "camp-1")
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStateCompleted, campaign.Status)
	assert.Equal(t, 9, campaign.SentCount)
	assert.Equal(t, 1, campaign.FailedCount)
	assert.False(t, campaign.UpdatedAt.Before(campaign.CreatedAt))
}

func TestSQLiteStore_CampaignsAreIsolated(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordMessageOutcome(ctx, "a", &models.MessageOutcome{MessageID: "m-0", Recipient: "x", Status: models.MessageStatusSent}))
	require.NoError(t, store.RecordMessageOutcome(ctx, "b", &models.MessageOutcome{MessageID: "m-0", Recipient: "x", Status: models.MessageStatusFailed}))

	ids, err := store.SentMessageIDs(ctx, "b")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.db")
	ctx := context.Background()

	db, err := OpenSQLite(path)
	require.NoError(t, err)
	store := NewSQLiteProgressStore(db)
	require.NoError(t, store.RecordMessageOutcome(ctx, "camp-1", &models.MessageOutcome{MessageID: "m-0", Recipient: "a", Status: models.MessageStatusSent}))
	require.NoError(t, db.Close())

	db, err = OpenSQLite(path)
	require.NoError(t, err)
	defer db.Close()

	ids, err := NewSQLiteProgressStore(db).SentMessageIDs(ctx, "camp-1")
	require.NoError(t, err)
	assert.True(t, ids["m-0"])
}

func TestMigrations_UpDown(t *testing.T) {
	db, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	defer db.Close()

	applied, err := AppliedVersions(db)
	require.NoError(t, err)
	assert.Equal(t, map[int]bool{1: true, 2: true}, applied)

	count, err := MigrateUp(db, DialectSQLite)
	require.NoError(t, err)
	assert.Zero(t, count)

	version, err := MigrateDown(db, DialectSQLite)
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	count, err = MigrateUp(db, DialectSQLite)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMigrations_UnknownDialect(t *testing.T) {
	_, err := Migrations("oracle")
	assert.Error(t, err)
}

func TestRebind(t *testing.T) {
	assert.Equal(t, "WHERE a = ? AND b = ?", rebind(DialectSQLite, "WHERE a = $1 AND b = $12"))
	assert.Equal(t, "WHERE a = $1", rebind(DialectPostgres, "WHERE a = $1"))
}

func TestSQLiteStore_Timestamps(t *testing.T) {
	db, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	defer db.Close()

	fixed := time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC)
	store := &sqliteProgressStore{db: db, now: func() time.Time { return fixed }}

	require.NoError(t, store.RecordMessageOutcome(context.Background(), "c", &models.MessageOutcome{MessageID: "m", Recipient: "r", Status: models.MessageStatusSent}))
	messages, err := store.ListMessages(context.Background(), "c")
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, fixed, messages[0].UpdatedAt)
}

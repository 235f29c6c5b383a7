package events

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bulksender/internal/models"
)

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client
}

func progressEvent(campaignID string, sent int) models.Event {
	return models.Event{
		Type:       models.EventProgress,
		CampaignID: campaignID,
		Time:       time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Progress:   &models.Progress{SentCount: sent, TotalMessages: 10},
	}
}

type recordingSink struct {
	mu     sync.Mutex
	name   string
	err    error
	events []models.Event
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Publish(ctx context.Context, event models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return s.err
}

func TestBus_FailingSinkDoesNotBlockOthers(t *testing.T) {
	broken := &recordingSink{name: "broken", err: errors.New("down")}
	healthy := &recordingSink{name: "healthy"}

	bus := NewBus(broken)
	bus.Add(healthy)

	bus.Publish(context.Background(), progressEvent("camp-1", 1))
	bus.Publish(context.Background(), progressEvent("camp-1", 2))

	assert.Len(t, broken.events, 2)
	require.Len(t, healthy.events, 2)
	assert.Equal(t, 2, healthy.events[1].Progress.SentCount)
}

func TestBus_SinkGetsDeadline(t *testing.T) {
	var hasDeadline bool
	bus := NewBus(SinkFunc(func(ctx context.Context, event models.Event) error {
		_, hasDeadline = ctx.Deadline()
		return nil
	}))

	bus.Publish(context.Background(), progressEvent("camp-1", 1))
	assert.True(t, hasDeadline)
}

type fakePublisher struct {
	events []models.Event
}

func (f *fakePublisher) PublishEvent(ctx context.Context, event models.Event) error {
	f.events = append(f.events, event)
	return nil
}

func TestQueueSink_Forwards(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewQueueSink(pub)

	require.NoError(t, sink.Publish(context.Background(), progressEvent("camp-1", 3)))
	require.Len(t, pub.events, 1)
	assert.Equal(t, "camp-1", pub.events[0].CampaignID)
	assert.Equal(t, "queue", sink.Name())
}

func TestRedisSink_PublishesToCampaignChannel(t *testing.T) {
	client := setupTestRedis(t)
	sink := NewRedisSink(client)
	ctx := context.Background()

	sub := client.Subscribe(ctx, CampaignChannel("camp-1"))
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, sink.Publish(ctx, progressEvent("camp-1", 4)))

	select {
	case msg := <-sub.Channel():
		assert.Equal(t, "campaign:events:camp-1", msg.Channel)
		var got models.Event
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, models.EventProgress, got.Type)
		assert.Equal(t, 4, got.Progress.SentCount)
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}

func TestRedisSink_HistoryIsOldestFirstAndCapped(t *testing.T) {
	client := setupTestRedis(t)
	sink := NewRedisSink(client)
	ctx := context.Background()

	for i := 1; i <= historyLength+5; i++ {
		require.NoError(t, sink.Publish(ctx, progressEvent("camp-1", i)))
	}
	require.NoError(t, sink.Publish(ctx, progressEvent("camp-2", 1)))

	history, err := sink.History(ctx, "camp-1", 3)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, []int{103, 104, 105}, []int{
		history[0].Progress.SentCount,
		history[1].Progress.SentCount,
		history[2].Progress.SentCount,
	})

	all, err := sink.History(ctx, "camp-1", 0)
	require.NoError(t, err)
	assert.Len(t, all, historyLength)

	ttl := client.TTL(ctx, historyKey("camp-1")).Val()
	assert.Greater(t, ttl, time.Duration(0))

	assert.NoError(t, sink.Ping(ctx))
}

func TestHub_BroadcastsToMatchingClients(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		_ = hub.Run(ctx)
	}()

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		NewClient(hub, conn, r.URL.Query().Get("campaign_id")).Start()
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	filtered, _, err := websocket.DefaultDialer.Dial(wsURL+"?campaign_id=camp-1", nil)
	require.NoError(t, err)
	defer filtered.Close()
	everything, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer everything.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Publish(context.Background(), progressEvent("camp-2", 1)))
	require.NoError(t, hub.Publish(context.Background(), progressEvent("camp-1", 7)))

	var got models.Event
	require.NoError(t, filtered.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, filtered.ReadJSON(&got))
	assert.Equal(t, "camp-1", got.CampaignID)
	assert.Equal(t, 7, got.Progress.SentCount)

	require.NoError(t, everything.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, everything.ReadJSON(&got))
	assert.Equal(t, "camp-2", got.CampaignID)
	require.NoError(t, everything.ReadJSON(&got))
	assert.Equal(t, "camp-1", got.CampaignID)

	cancel()
	<-hubDone
	assert.Equal(t, 0, hub.ClientCount())
}

func TestHub_PublishFailsWhenFull(t *testing.T) {
	hub := NewHub()
	for i := 0; i < cap(hub.broadcast); i++ {
		require.NoError(t, hub.Publish(context.Background(), progressEvent("c", i)))
	}
	assert.ErrorIs(t, hub.Publish(context.Background(), progressEvent("c", 0)), ErrHubFull)
}

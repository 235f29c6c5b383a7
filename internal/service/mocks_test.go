package service

import (
	"context"
	"sync"

	"bulksender/internal/models"
	"bulksender/internal/session"
)

// MockProvider mocks session.Provider
type MockProvider struct {
	SendFunc        func(ctx context.Context, channelID, recipient string, payload session.Payload) error
	IsAvailableFunc func(channelID string) bool

	mu    sync.Mutex
	Calls map[string]int
}

func NewMockProvider() *MockProvider {
	return &MockProvider{Calls: make(map[string]int)}
}

func (m *MockProvider) Send(ctx context.Context, channelID, recipient string, payload session.Payload) error {
	m.mu.Lock()
	m.Calls["Send"]++
	m.mu.Unlock()

	if m.SendFunc != nil {
		return m.SendFunc(ctx, channelID, recipient, payload)
	}
	return nil
}

func (m *MockProvider) IsAvailable(channelID string) bool {
	if m.IsAvailableFunc != nil {
		return m.IsAvailableFunc(channelID)
	}
	return true
}

// MockEventPublisher records published events
type MockEventPublisher struct {
	mu     sync.Mutex
	events []models.Event
}

func (m *MockEventPublisher) Publish(ctx context.Context, event models.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

func (m *MockEventPublisher) Events() []models.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Event(nil), m.events...)
}

// MockHistoryReader mocks HistoryReader
type MockHistoryReader struct {
	HistoryFunc func(ctx context.Context, campaignID string, limit int) ([]models.Event, error)
}

func (m *MockHistoryReader) History(ctx context.Context, campaignID string, limit int) ([]models.Event, error) {
	if m.HistoryFunc != nil {
		return m.HistoryFunc(ctx, campaignID, limit)
	}
	return nil, nil
}

type fakeQueue struct{ connected bool }

func (f fakeQueue) IsConnected() bool { return f.connected }

type fakePinger struct{ err error }

func (f fakePinger) Ping(ctx context.Context) error { return f.err }

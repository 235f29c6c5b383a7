package events

import (
	"context"
	"errors"
	"sort"
	"sync"

	"bulksender/internal/logging"
	"bulksender/internal/models"
)

// ErrHubFull is returned when the broadcast buffer is saturated
var ErrHubFull = errors.New("websocket hub broadcast buffer full")

// Hub tracks websocket clients and broadcasts campaign events to them
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan models.Event
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
}

// NewHub creates a hub; call Run to start it
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan models.Event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Name() string { return "websocket" }

// Publish queues the event for broadcast without blocking
func (h *Hub) Publish(ctx context.Context, event models.Event) error {
	select {
	case h.broadcast <- event:
		return nil
	default:
		return ErrHubFull
	}
}

// Run serves registrations and broadcasts until ctx is cancelled.
// It must be called once.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	for {
		// lifecycle events first so a new client sees the next broadcast
		select {
		case client := <-h.register:
			h.add(client)
			continue
		case client := <-h.unregister:
			h.remove(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			count := h.ClientCount()
			h.closeAll()
			logging.Info().Str("component", "websocket-hub").Int("clients_closed", count).Msg("websocket hub stopped")
			return ctx.Err()
		case client := <-h.register:
			h.add(client)
		case client := <-h.unregister:
			h.remove(client)
		case event := <-h.broadcast:
			h.deliver(event)
		}
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) add(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()
	logging.Debug().Int("total_clients", total).Str("campaign_id", client.campaignID).Msg("websocket client connected")
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	total := len(h.clients)
	h.mu.Unlock()
	logging.Debug().Int("total_clients", total).Msg("websocket client disconnected")
}

// deliver sends in client id order and drops clients that cannot keep up
func (h *Hub) deliver(event models.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		if client.wants(event) {
			clients = append(clients, client)
		}
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })

	for _, client := range clients {
		select {
		case client.send <- event:
		default:
			close(client.send)
			delete(h.clients, client)
			logging.Warn().Uint64("client_id", client.id).Msg("dropping slow websocket client")
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}

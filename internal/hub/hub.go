// Package hub fans digest progress events out to connected SSE clients.
package hub

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"gamecatalog/backend/internal/digest"
)

// clientBuffer is how many events a client may lag behind before new ones
// are dropped for it.
const clientBuffer = 32

// Client receives encoded events. The hub closes it on Unsubscribe.
type Client chan []byte

// Hub manages the connected clients.
type Hub struct {
	clients map[Client]struct{}
	mu      sync.RWMutex
	log     zerolog.Logger
}

// NewHub creates a new Hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[Client]struct{}),
		log:     logger.With().Str("component", "hub").Logger(),
	}
}

// Subscribe registers and returns a new client.
func (h *Hub) Subscribe() Client {
	client := make(Client, clientBuffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = struct{}{}
	return client
}

// Unsubscribe removes a client and closes its channel.
func (h *Hub) Unsubscribe(client Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client)
	}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends an event to every client without blocking.
func (h *Hub) Broadcast(event digest.Event) {
	message, err := json.Marshal(event)
	if err != nil {
		h.log.Error().Err(err).Str("type", string(event.Type)).Msg("failed to encode digest event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client <- message:
		default:
			// Slow client; it misses this event.
		}
	}
}

// OnDigestEvent implements digest.Observer.
func (h *Hub) OnDigestEvent(event digest.Event) {
	h.Broadcast(event)
}

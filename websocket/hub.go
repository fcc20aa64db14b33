package websocket

import (
	"context"
	"log"
	"sync"
	"time"
)

// Hub keeps track of the live connections so they can be closed on
// shutdown. Room membership lives in chat.Registry.
type Hub struct {
	mu      sync.Mutex
	clients map[*Client]struct{}
}

// NewHub creates a new hub instance
func NewHub() *Hub {
	return &Hub{clients: make(map[*Client]struct{})}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
}

// Count returns the number of live connections.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Shutdown asks every connection to close and waits until they are gone
// or ctx is done.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	for c := range h.clients {
		c.close()
	}
	h.mu.Unlock()

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		if n := h.Count(); n == 0 {
			log.Println("[hub] All websocket connections closed")
			return nil
		}
		select {
		case <-ctx.Done():
			log.Printf("[hub] Timeout waiting for %d websocket connections", h.Count())
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

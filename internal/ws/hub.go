package ws

import (
	"log"
	"sync"
)

// Hub tracks connected clients by player identity and delivers outbound
// events to them. Room membership lives in the lobby manager; the hub only
// knows who is on the wire.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
	}
}

// register attaches a client. A second connection claiming the same player
// identity is refused; the first connection keeps it.
func (h *Hub) register(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, taken := h.clients[c.playerID]; taken {
		return false
	}
	h.clients[c.playerID] = c
	log.Printf("Player %s connected (total: %d)", c.playerID, len(h.clients))
	return true
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, ok := h.clients[c.playerID]; ok && current == c {
		delete(h.clients, c.playerID)
		close(c.send)
		log.Printf("Player %s disconnected (total: %d)", c.playerID, len(h.clients))
	}
}

// SendTo implements protocol.Sender. Events for players without a live
// connection are dropped, and a slow consumer loses events rather than
// stalling the caller.
func (h *Hub) SendTo(playerID string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	c, ok := h.clients[playerID]
	if !ok {
		return
	}
	select {
	case c.send <- data:
	default:
		log.Printf("Dropping event for slow player %s", playerID)
	}
}

// ClientCount returns the number of attached connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

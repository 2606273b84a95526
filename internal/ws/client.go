package ws

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/harborgames/matchroom/backend/internal/auth"
	"github.com/harborgames/matchroom/backend/internal/protocol"
	"github.com/harborgames/matchroom/backend/internal/ratelimit"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxCommandSize    = 512
	commandsPerSecond = 8
	commandBurst      = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// CommandHandler consumes decoded client commands and connection drops.
type CommandHandler interface {
	Handle(conn protocol.Connection, data []byte)
	Disconnect(playerID string)
}

type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	handler  CommandHandler
	send     chan []byte
	playerID string
	limiter  *ratelimit.Limiter
}

func (c *Client) PlayerID() string {
	return c.playerID
}

// Send queues data for the write pump without blocking.
func (c *Client) Send(data []byte) error {
	select {
	case c.send <- data:
		return nil
	default:
		return fmt.Errorf("send buffer full for player %s", c.playerID)
	}
}

// ServeWs upgrades an HTTP request to a lobby connection. The player
// identity comes from a signed token in the ?token query parameter, issued
// by POST /api/token; unverified requests are rejected before the upgrade.
func ServeWs(hub *Hub, handler CommandHandler, verifier *auth.Service, w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	playerID, err := verifier.VerifyToken(token)
	if err != nil {
		log.Printf("Rejected connection: %v", err)
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("Upgrade error:", err)
		return
	}

	client := &Client{
		hub:      hub,
		conn:     conn,
		handler:  handler,
		send:     make(chan []byte, 64),
		playerID: playerID,
		limiter:  ratelimit.NewLimiter(commandsPerSecond, commandBurst),
	}

	if !hub.register(client) {
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "player already connected")
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		conn.Close()
		return
	}

	if welcome, err := json.Marshal(protocol.Welcome{Type: protocol.EventWelcome, PlayerID: playerID}); err == nil {
		client.Send(welcome)
	}

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.handler.Disconnect(c.playerID)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxCommandSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	rateLimitWarnings := 0

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error for %s: %v", c.playerID, err)
			}
			break
		}

		if !c.limiter.Allow() {
			rateLimitWarnings++
			if rateLimitWarnings%10 == 1 {
				log.Printf("Rate limit exceeded for player %s (warning #%d)", c.playerID, rateLimitWarnings)
			}
			if rateLimitWarnings > 100 {
				log.Printf("Disconnecting player %s for excessive rate limit violations", c.playerID)
				return
			}
			continue
		}

		c.handler.Handle(c, message)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

package chathub

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"liveflow/backend/internal/capture"
	"liveflow/backend/internal/models"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256
)

// WebSocketClient реалізує інтерфейс chathub.Client
type WebSocketClient struct {
	SessionID string
	Conn      *websocket.Conn
	Hub       *ManagerService
	Send      chan models.ServerEvent

	device *capture.ClientDevice

	mu     sync.Mutex
	closed bool
}

// NewWebSocketClient wraps conn for the browsing session sid.
func NewWebSocketClient(sid string, conn *websocket.Conn, hub *ManagerService) *WebSocketClient {
	c := &WebSocketClient{
		SessionID: sid,
		Conn:      conn,
		Hub:       hub,
		Send:      make(chan models.ServerEvent, sendBufferSize),
	}
	c.device = capture.NewClientDevice(func(*capture.Handle) {
		c.trySend(models.ServerEvent{Type: models.EventReleaseMedia})
	})
	return c
}

func (c *WebSocketClient) GetUserID() string                         { return c.SessionID }
func (c *WebSocketClient) GetSendChannel() chan<- models.ServerEvent { return c.Send }
func (c *WebSocketClient) Device() capture.Device                    { return c.device }

// Run запускає 'pumps' для WebSocket
func (c *WebSocketClient) Run() {
	go c.writePump()
	go c.readPump()
}

// Close закриває Send канал (що зупинить writePump)
func (c *WebSocketClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
}

// trySend is for events raised outside the session, which may arrive after
// the client was closed.
func (c *WebSocketClient) trySend(ev models.ServerEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.Send <- ev:
	default:
		log.Printf("WARNING: dropping %s event for session %s: client too slow", ev.Type, c.SessionID)
	}
}

func (c *WebSocketClient) readPump() {
	defer func() {
		c.Hub.UnregisterCh <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	ctx := context.Background()
	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("error reading message: %v", err)
			}
			return
		}

		var cmd models.ClientCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			log.Printf("Error decoding JSON from client %s: %v", c.SessionID, err)
			continue
		}
		c.Hub.HandleCommand(ctx, c.SessionID, cmd)
	}
}

// writePump читає події з каналу Send і записує їх у WebSocket.
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Канал закрито хабом, закриваємо з'єднання WS
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(ev); err != nil {
				log.Printf("ERROR: write to client %s: %v", c.SessionID, err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

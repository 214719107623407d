package handler

import (
	"log"
	"net/http"

	"liveflow/backend/internal/chathub"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// ServeWebSocket оновлює HTTP-з'єднання до WebSocket. Expects RequireSession
// to have run.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	sid := sessionID(c)
	confirmed, err := h.Sessions.IsAgeConfirmed(c.Request.Context(), sid)
	if err != nil {
		log.Printf("ERROR: age gate lookup for %s: %v", sid, err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to load session"})
		return
	}
	if !confirmed {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Age confirmation required"})
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		log.Printf("WARNING: websocket upgrade for %s: %v", sid, err)
		return
	}

	// 1. Створення нового клієнта
	client := chathub.NewWebSocketClient(sid, conn, h.Hub)
	// 2. Реєстрація клієнта в Chat Hub
	h.Hub.Register(c.Request.Context(), client)
	// 3. Запуск клієнта
	client.Run()
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

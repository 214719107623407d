package handler

import (
	"time"

	"liveflow/backend/internal/catalog"
	"liveflow/backend/internal/chathub"
	"liveflow/backend/internal/session"

	"github.com/gin-gonic/gin"
)

// Handler містить посилання на ChatHub та сховища сесій
type Handler struct {
	Hub      *chathub.ManagerService
	Sessions session.Store
	Catalog  *catalog.Service

	// JWTSecret signs session tokens; TokenTTL bounds their lifetime.
	JWTSecret []byte
	TokenTTL  time.Duration

	// AllowedOrigins limits WebSocket upgrades; "*" allows any origin.
	AllowedOrigins []string
}

func NewHandler(hub *chathub.ManagerService, store session.Store, cat *catalog.Service, secret string, ttl time.Duration) *Handler {
	return &Handler{
		Hub:       hub,
		Sessions:  store,
		Catalog:   cat,
		JWTSecret: []byte(secret),
		TokenTTL:  ttl,
	}
}

// RegisterRoutes mounts the REST API and the WebSocket endpoint on r.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	api := r.Group("/api")
	api.POST("/session", h.CreateSession)
	api.GET("/streams", h.ListStreams)

	authed := api.Group("/session", h.RequireSession())
	authed.GET("", h.GetSession)
	authed.DELETE("", h.EndSession)
	authed.POST("/age", h.ConfirmAge)
	authed.PUT("/preferences", h.UpdatePreferences)

	r.GET("/ws", h.RequireSession(), h.ServeWebSocket)
}

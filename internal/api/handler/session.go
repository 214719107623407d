package handler

import (
	"errors"
	"log"
	"net/http"

	"liveflow/backend/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type preferencesRequest struct {
	SelfIdentity      string   `json:"self_identity" binding:"required"`
	DesiredIdentities []string `json:"desired_identities" binding:"omitempty,max=12,dive,required"`
}

type sessionResponse struct {
	SessionID    string                  `json:"session_id"`
	AgeConfirmed bool                    `json:"age_confirmed"`
	Preferences  *models.UserPreferences `json:"preferences"`
}

// CreateSession видає новий ID сесії та JWT
func (h *Handler) CreateSession(c *gin.Context) {
	sid := uuid.New().String()
	token, err := h.generateJWT(sid)
	if err != nil {
		log.Printf("ERROR: sign session token: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create token"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"token": token, "session_id": sid})
}

// GetSession returns both onboarding gates of the caller.
func (h *Handler) GetSession(c *gin.Context) {
	sid := sessionID(c)
	ctx := c.Request.Context()

	confirmed, err := h.Sessions.IsAgeConfirmed(ctx, sid)
	if err != nil {
		log.Printf("ERROR: age gate lookup for %s: %v", sid, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load session"})
		return
	}
	prefs, err := h.Sessions.LoadPreferences(ctx, sid)
	if err != nil {
		log.Printf("ERROR: load preferences for %s: %v", sid, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load session"})
		return
	}
	c.JSON(http.StatusOK, sessionResponse{SessionID: sid, AgeConfirmed: confirmed, Preferences: prefs})
}

func (h *Handler) ConfirmAge(c *gin.Context) {
	sid := sessionID(c)
	if err := h.Sessions.SaveAgeConfirmation(c.Request.Context(), sid); err != nil {
		log.Printf("ERROR: save age confirmation for %s: %v", sid, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save age confirmation"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"age_confirmed": true})
}

// EndSession drops the live connection and both gates; the token stays
// valid but the session starts over from the age gate.
func (h *Handler) EndSession(c *gin.Context) {
	sid := sessionID(c)
	h.Hub.Disconnect(sid)
	if err := h.Sessions.End(c.Request.Context(), sid); err != nil {
		log.Printf("ERROR: end session %s: %v", sid, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to end session"})
		return
	}
	c.Status(http.StatusNoContent)
}

// UpdatePreferences validates and stores the identity filter. Tags may use
// either the canonical or the legacy spelling.
func (h *Handler) UpdatePreferences(c *gin.Context) {
	var req preferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": bindError(err)})
		return
	}

	self, err := models.ParseIdentityTag(req.SelfIdentity)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	prefs := models.UserPreferences{SelfIdentity: &self}
	for _, raw := range req.DesiredIdentities {
		tag, err := models.ParseIdentityTag(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		prefs.DesiredIdentities = append(prefs.DesiredIdentities, tag)
	}
	if err := prefs.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sid := sessionID(c)
	if err := h.Sessions.SavePreferences(c.Request.Context(), sid, prefs); err != nil {
		log.Printf("ERROR: save preferences for %s: %v", sid, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save preferences"})
		return
	}
	c.JSON(http.StatusOK, prefs)
}

// bindError names the first failing field instead of echoing validator
// internals.
func bindError(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return "invalid field " + verrs[0].Field() + ": " + verrs[0].Tag()
	}
	return "invalid request body"
}

package chathub

import (
	"errors"
	"log"

	"liveflow/backend/internal/capture"
	"liveflow/backend/internal/models"
	"liveflow/backend/internal/moderation"
)

// errorEvent maps an operation error to what the client should see. ok is
// false when nothing should be sent.
func errorEvent(err error) (ev models.ServerEvent, ok bool) {
	switch {
	case err == nil,
		errors.Is(err, ErrEmptyMessage),
		errors.Is(err, ErrSessionChanged),
		// Already surfaced as warnings by the session.
		errors.Is(err, moderation.ErrMessageRejected),
		errors.Is(err, ErrRateLimited):
		return ev, false
	case errors.Is(err, capture.ErrPermissionDenied):
		return models.ServerEvent{Type: models.EventError, Code: "permission_denied", Text: "Camera access is required for random mode."}, true
	case errors.Is(err, models.ErrIdentityRequired):
		return models.ServerEvent{Type: models.EventError, Code: "identity_required", Text: "Choose how you identify before searching."}, true
	case errors.Is(err, ErrBanned):
		return models.ServerEvent{Type: models.EventError, Code: "banned", Text: "You are temporarily blocked from matching."}, true
	case errors.Is(err, ErrAlreadyActive):
		return models.ServerEvent{Type: models.EventError, Code: "already_active", Text: "A search is already running."}, true
	case errors.Is(err, ErrNotConnected):
		return models.ServerEvent{Type: models.EventError, Code: "not_connected", Text: "You are not connected to anyone."}, true
	}
	log.Printf("ERROR: unexpected session error: %v", err)
	return models.ServerEvent{Type: models.EventError, Code: "internal", Text: "Something went wrong."}, true
}

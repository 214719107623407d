// Package session keeps the per-browsing-session gates: the age confirmation
// flag and the onboarding preferences. Both expire with the session.
package session

import (
	"context"
	"encoding/json"
	"log"

	"liveflow/backend/internal/models"
)

// Store persists the two independent session gates.
type Store interface {
	SaveAgeConfirmation(ctx context.Context, sid string) error
	IsAgeConfirmed(ctx context.Context, sid string) (bool, error)
	SavePreferences(ctx context.Context, sid string, prefs models.UserPreferences) error
	// LoadPreferences returns nil when nothing usable is stored.
	LoadPreferences(ctx context.Context, sid string) (*models.UserPreferences, error)
	End(ctx context.Context, sid string) error
}

const ageConfirmedValue = "true"

func ageKey(sid string) string   { return "session:" + sid + ":age_confirmed" }
func prefsKey(sid string) string { return "session:" + sid + ":preferences" }

func encodePreferences(prefs models.UserPreferences) ([]byte, error) {
	if err := prefs.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(prefs)
}

// decodePreferences treats malformed state as absent.
func decodePreferences(sid string, raw []byte) *models.UserPreferences {
	var prefs models.UserPreferences
	if err := json.Unmarshal(raw, &prefs); err != nil {
		log.Printf("WARNING: malformed persisted preferences for session %s: %v", sid, err)
		return nil
	}
	if err := prefs.Validate(); err != nil {
		log.Printf("WARNING: malformed persisted preferences for session %s: %v", sid, err)
		return nil
	}
	return &prefs
}

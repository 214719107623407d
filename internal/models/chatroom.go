package models

import "time"

// ChatRoom represents a pairing of two real sessions.
type ChatRoom struct {
	// RoomID is the unique identifier for the chat room (UUID).
	RoomID string `gorm:"primaryKey"`
	// User1ID and User2ID are the session ids of the participants.
	User1ID string `gorm:"index"`
	User2ID string `gorm:"index"`
	// User1Tag and User2Tag are the declared identities at match time.
	User1Tag IdentityTag
	User2Tag IdentityTag
	// IsActive indicates whether the chat room is currently active.
	IsActive  bool
	StartedAt time.Time
	EndedAt   *time.Time
}

// OtherUser returns the id of the counterpart of userID.
func (r *ChatRoom) OtherUser(userID string) (string, bool) {
	switch userID {
	case r.User1ID:
		return r.User2ID, true
	case r.User2ID:
		return r.User1ID, true
	}
	return "", false
}

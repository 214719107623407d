package models

import "time"

// MatchState is the state of a random-mode session.
type MatchState string

const (
	StateIdle      MatchState = "idle"
	StateSearching MatchState = "searching"
	StateConnected MatchState = "connected"
)

// Sender labels shown in the transcript.
const (
	SenderYou      = "you"
	SenderStranger = "stranger"
	SenderSystem   = "system"
)

// Message types.
const (
	MessageText        = "text"
	MessageSystem      = "system"
	MessagePartnerLeft = "system_partner_left"
)

// ChatMessage is immutable once created.
type ChatMessage struct {
	ID       string    `json:"id"`
	SenderID string    `json:"-"`
	Sender   string    `json:"sender"`
	RoomID   string    `json:"room_id,omitempty"`
	Text     string    `json:"text"`
	Type     string    `json:"type"`
	SentAt   time.Time `json:"sent_at"`
}

// RelayEnvelope is the pub/sub form of a ChatMessage. It keeps the sender's
// session id, which is never shown to clients.
type RelayEnvelope struct {
	SenderID string      `json:"sender_id"`
	Message  ChatMessage `json:"message"`
}

// Command types sent by clients.
const (
	CommandStart   = "start"
	CommandSkip    = "skip"
	CommandStop    = "stop"
	CommandMessage = "message"
	CommandReport  = "report"
)

// ClientCommand is the envelope read from a client connection.
type ClientCommand struct {
	Type         string `json:"type"`
	Text         string `json:"text,omitempty"`
	Reason       string `json:"reason,omitempty"`
	MediaGranted bool   `json:"media_granted,omitempty"`
}

// Event types sent to clients.
const (
	EventState        = "state"
	EventTick         = "tick"
	EventMessage      = "message"
	EventWarning      = "warning"
	EventError        = "error"
	EventReleaseMedia = "release_media"
)

// ServerEvent is the envelope written to a client connection.
type ServerEvent struct {
	Type             string       `json:"type"`
	State            MatchState   `json:"state,omitempty"`
	RemainingSeconds int          `json:"remaining_seconds,omitempty"`
	Message          *ChatMessage `json:"message,omitempty"`
	Code             string       `json:"code,omitempty"`
	Text             string       `json:"text,omitempty"`
}

// SearchRequest asks a match provider for a partner.
type SearchRequest struct {
	SessionID   string
	Preferences UserPreferences
	Rematch     bool
}

// Partner describes the counterpart found by a provider.
type Partner struct {
	SessionID string
	RoomID    string
	Identity  *IdentityTag
	Simulated bool
}

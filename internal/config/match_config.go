package config

import "time"

const (
	// Random mode
	CountdownSeconds = 180
	TickInterval     = time.Second
	MatchDelay       = 3 * time.Second
	RematchDelay     = 2 * time.Second

	// Chat
	MaxMessageLength  = 500
	MessageRatePerSec = 2
	MessageRateBurst  = 5

	// Moderation
	DefaultModerationTimeout = 4 * time.Second
	DefaultModerationModel   = "gemini-3-flash-preview"

	// FailOpenDefault allows messages through when the remote gate errors.
	FailOpenDefault = true

	// Session
	DefaultSessionTTL = 12 * time.Hour

	// Complaints & bans
	ComplaintWindow       = 24 * time.Hour
	ComplaintBanThreshold = 100
	BanDuration           = 6 * time.Hour
)

var ComplaintWeights = map[string]int{
	"spam":       5,
	"harassment": 50,
	"underage":   250,
	"illegal":    250,
	"other":      10,
}

// DefaultBlocklist is the built-in local filter list.
var DefaultBlocklist = []string{"palavrao1", "palavrao2", "spam", "link-malicioso"}

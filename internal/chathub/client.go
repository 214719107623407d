package chathub

import (
	"liveflow/backend/internal/capture"
	"liveflow/backend/internal/models"
)

// Client is the interface for any type of connection (e.g., WebSocket, Telegram).
// It abstracts the underlying communication mechanism, allowing the hub to manage
// different client types uniformly.
type Client interface {
	// GetUserID returns the browsing-session id the client is bound to.
	GetUserID() string

	// GetSendChannel returns the channel to which the session writes events
	// intended for this specific client. It is a send-only channel.
	GetSendChannel() chan<- models.ServerEvent

	// Device returns the capture device backing this connection.
	Device() capture.Device

	// Run starts the client's read and write pumps, which handle incoming and
	// outgoing messages.
	Run()
	// Close gracefully shuts down the client's connection and associated channels.
	Close()
}

package chathub

import (
	"sync"

	"liveflow/backend/internal/models"
)

// Transcript is the ordered, append-only message list of one match.
type Transcript struct {
	mu       sync.RWMutex
	messages []models.ChatMessage
}

func NewTranscript() *Transcript {
	return &Transcript{}
}

// Append adds msg after every previously appended message.
func (t *Transcript) Append(msg models.ChatMessage) {
	t.mu.Lock()
	t.messages = append(t.messages, msg)
	t.mu.Unlock()
}

// Clear empties the transcript.
func (t *Transcript) Clear() {
	t.mu.Lock()
	t.messages = nil
	t.mu.Unlock()
}

// Messages returns a copy of the transcript in submission order.
func (t *Transcript) Messages() []models.ChatMessage {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]models.ChatMessage, len(t.messages))
	copy(out, t.messages)
	return out
}

func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

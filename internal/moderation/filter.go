// Package moderation decides whether a chat message may enter a transcript.
// A message passes the local blocklist first and, when configured, a remote
// text classifier.
package moderation

import (
	"errors"
	"strings"
)

// ErrMessageRejected is returned when a gate flags a message.
var ErrMessageRejected = errors.New("message rejected by moderation")

// Blocklist is the local text filter.
type Blocklist struct {
	terms []string
}

// NewBlocklist builds a filter from terms, lowercased; blanks are dropped.
func NewBlocklist(terms []string) *Blocklist {
	b := &Blocklist{}
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			b.terms = append(b.terms, t)
		}
	}
	return b
}

// IsAllowed reports false if any blocked term occurs anywhere in text,
// ignoring case.
func (b *Blocklist) IsAllowed(text string) bool {
	lower := strings.ToLower(text)
	for _, t := range b.terms {
		if strings.Contains(lower, t) {
			return false
		}
	}
	return true
}

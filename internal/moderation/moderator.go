package moderation

import "context"

// Moderator chains the local filter and the optional remote gate.
type Moderator struct {
	Local  *Blocklist
	Remote *RemoteGate
}

// Check returns ErrMessageRejected when either gate flags text. The remote
// gate runs only for text the local filter accepted.
func (m *Moderator) Check(ctx context.Context, text string) error {
	if m.Local != nil && !m.Local.IsAllowed(text) {
		return ErrMessageRejected
	}
	if m.Remote != nil && !m.Remote.Classify(ctx, text) {
		return ErrMessageRejected
	}
	return nil
}

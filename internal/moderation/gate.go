package moderation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
)

// ErrModerationService wraps any failure talking to the remote classifier.
var ErrModerationService = errors.New("moderation service error")

const promptTemplate = `Analyze whether the following chat message contains hate, harassment, spam or explicit sexual content. Answer only "SAFE" or "UNSAFE". Message: %q`

const safeVerdict = "SAFE"

// Generator sends a prompt to a text model and returns its raw answer.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ErrorPolicy decides the verdict when the classifier cannot answer.
type ErrorPolicy bool

const (
	// FailOpen lets the message through on error.
	FailOpen ErrorPolicy = true
	// FailClosed blocks the message on error.
	FailClosed ErrorPolicy = false
)

// RemoteGate asks an external model for a SAFE/UNSAFE verdict.
type RemoteGate struct {
	gen     Generator
	timeout time.Duration
	policy  ErrorPolicy
}

// NewRemoteGate returns a gate bounded by timeout. A zero timeout means the
// caller's context is the only bound.
func NewRemoteGate(gen Generator, timeout time.Duration, policy ErrorPolicy) *RemoteGate {
	return &RemoteGate{gen: gen, timeout: timeout, policy: policy}
}

// Classify returns true when the message is safe. Errors and timeouts resolve
// to the configured policy.
func (g *RemoteGate) Classify(ctx context.Context, text string) bool {
	safe, err := g.classify(ctx, text)
	if err != nil && errors.Is(ctx.Err(), context.Canceled) {
		// The caller gave up; nobody will read this verdict.
		return bool(g.policy)
	}
	if err != nil {
		log.Printf("ERROR: %v (fail_open=%t)", err, bool(g.policy))
		return bool(g.policy)
	}
	return safe
}

func (g *RemoteGate) classify(ctx context.Context, text string) (bool, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	answer, err := g.gen.Generate(ctx, fmt.Sprintf(promptTemplate, text))
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrModerationService, err)
	}
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("%w: %w", ErrModerationService, err)
	}
	return strings.EqualFold(strings.TrimSpace(answer), safeVerdict), nil
}

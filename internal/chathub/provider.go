package chathub

import (
	"context"
	"math/rand/v2"
	"time"

	"liveflow/backend/internal/config"
	"liveflow/backend/internal/models"
)

// MatchProvider finds a partner for a searching session. FindMatch blocks
// until a partner is found or ctx is cancelled; callers must not assume any
// particular latency.
type MatchProvider interface {
	FindMatch(ctx context.Context, req models.SearchRequest) (models.Partner, error)
}

// SimulatedProvider pretends to match after a fixed delay. The counterpart
// tag is drawn from the tags the caller accepts.
type SimulatedProvider struct {
	Scheduler    Scheduler
	MatchDelay   time.Duration
	RematchDelay time.Duration
	// Pick chooses an index in [0, n); defaults to math/rand.
	Pick func(n int) int
}

func NewSimulatedProvider(s Scheduler) *SimulatedProvider {
	return &SimulatedProvider{
		Scheduler:    s,
		MatchDelay:   config.MatchDelay,
		RematchDelay: config.RematchDelay,
		Pick:         rand.IntN,
	}
}

func (p *SimulatedProvider) FindMatch(ctx context.Context, req models.SearchRequest) (models.Partner, error) {
	delay := p.MatchDelay
	if req.Rematch {
		delay = p.RematchDelay
	}
	if err := sleep(ctx, p.Scheduler, delay); err != nil {
		return models.Partner{}, err
	}

	candidates := req.Preferences.DesiredIdentities
	if len(candidates) == 0 {
		candidates = models.AllIdentityTags
	}
	tag := candidates[p.Pick(len(candidates))]
	return models.Partner{Identity: &tag, Simulated: true}, nil
}

package chathub

import (
	"context"
	"time"
)

// Scheduler runs f once after d. The returned stop func cancels a pending
// call and reports whether it did so.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) (stop func() bool)
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// RealScheduler is backed by time.AfterFunc.
var RealScheduler Scheduler = realScheduler{}

// sleep blocks for d on s, or until ctx is done.
func sleep(ctx context.Context, s Scheduler, d time.Duration) error {
	fired := make(chan struct{})
	stop := s.AfterFunc(d, func() { close(fired) })
	select {
	case <-fired:
		return nil
	case <-ctx.Done():
		stop()
		return ctx.Err()
	}
}

package pipeline

import (
	"context"
	"sync/atomic"
)

const DefaultMaxConcurrent = 6

// Limiter bounds the number of simultaneous in-flight translation
// calls with a semaphore.
type Limiter struct {
	slots    chan struct{}
	inFlight atomic.Int64
}

func NewLimiter(max int) *Limiter {
	if max <= 0 {
		max = DefaultMaxConcurrent
	}
	return &Limiter{slots: make(chan struct{}, max)}
}

// Acquire blocks until a slot is free or the context is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	select {
	case l.slots <- struct{}{}:
		l.inFlight.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Limiter) Release() {
	l.inFlight.Add(-1)
	<-l.slots
}

func (l *Limiter) InFlight() int {
	return int(l.inFlight.Load())
}

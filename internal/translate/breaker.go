package translate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
)

// ErrBackendDown marks a structural backend failure: the circuit is
// open and the session should terminate instead of retrying forever.
var ErrBackendDown = errors.New("translation backend unreachable")

// Breaker wraps a Client with a circuit breaker. Only structural
// failures (network or server unavailable) trip it; auth, quota and
// rate-limit failures pass through without counting, since they say
// nothing about reachability.
type Breaker struct {
	inner Client
	cb    *gobreaker.CircuitBreaker
}

type breakerResult struct {
	out []string
	err error
}

func NewBreaker(inner Client) *Breaker {
	return &Breaker{
		inner: inner,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "translate-backend",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 4
			},
		}),
	}
}

func (b *Breaker) Translate(ctx context.Context, texts []string, cfg Config) ([]string, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		out, terr := b.inner.Translate(ctx, texts, cfg)
		if terr != nil && structural(terr) {
			return nil, terr
		}
		return breakerResult{out: out, err: terr}, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: circuit open", ErrBackendDown)
		}
		return nil, err
	}
	r := res.(breakerResult)
	return r.out, r.err
}

func structural(err error) bool {
	switch Categorize(err) {
	case CategoryNetworkUnavailable, CategoryServerUnavailable:
		return true
	default:
		return false
	}
}

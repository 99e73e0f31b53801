package probes

import (
	"context"

	"golang.org/x/time/rate"
)

// Pacer bounds the rate of outbound probe dials across all workers.
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer returns a pacer allowing perSecond dials with the given burst.
// A non-positive rate returns nil, which never waits.
func NewPacer(perSecond float64, burst int) *Pacer {
	if perSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &Pacer{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Wait blocks until a dial is permitted or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil {
		return nil
	}
	return p.limiter.Wait(ctx)
}

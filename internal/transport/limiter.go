package transport

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/zmlAEQ/pingburst/pkg/metrics"
)

// Limiter bounds in-flight submissions for one transport and exports the
// current count as transport_inflight{mode}. A nil Limiter is unbounded.
type Limiter struct {
	sem    *semaphore.Weighted
	labels map[string]string
}

// NewLimiter returns nil when max <= 0.
func NewLimiter(max int64, mode string) *Limiter {
	if max <= 0 {
		return nil
	}
	return &Limiter{sem: semaphore.NewWeighted(max), labels: map[string]string{"mode": mode}}
}

// Acquire blocks until a slot is free or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	if l == nil {
		return nil
	}
	if !l.sem.TryAcquire(1) {
		metrics.Inc("transport_limited_total", l.labels)
		if err := l.sem.Acquire(ctx, 1); err != nil {
			return err
		}
	}
	metrics.AddGauge("transport_inflight", l.labels, 1)
	return nil
}

func (l *Limiter) Release() {
	if l == nil {
		return
	}
	metrics.AddGauge("transport_inflight", l.labels, -1)
	l.sem.Release(1)
}

package transport

import (
	"context"
	"errors"
	"sync"

	"github.com/zmlAEQ/pingburst/internal/payload"
	"github.com/zmlAEQ/pingburst/pkg/logger"
	"github.com/zmlAEQ/pingburst/pkg/metrics"
)

// Fallback submits through a primary transport and, only when the primary
// could not deliver, through a secondary one. Accepted, Rejected and Stale
// answers from the primary are final.
type Fallback struct {
	primary   Transport
	secondary Transport
	warned    sync.Once
}

var _ Transport = (*Fallback)(nil)

func NewFallback(primary, secondary Transport) *Fallback {
	return &Fallback{primary: primary, secondary: secondary}
}

func (f *Fallback) Name() string { return f.primary.Name() }

func (f *Fallback) Submit(ctx context.Context, tx *payload.Transaction) Result {
	res := f.primary.Submit(ctx, tx)
	if res.Kind != Unreachable || ctx.Err() != nil {
		return res
	}
	f.warned.Do(func() {
		logger.WarnJ("transport_fallback", map[string]any{"from": f.primary.Name(), "to": f.secondary.Name(), "err": res.Reason})
	})
	metrics.Inc("transport_fallback_total", map[string]string{"from": f.primary.Name(), "to": f.secondary.Name()})
	sec := f.secondary.Submit(ctx, tx)
	if sec.Kind == Unreachable {
		sec.Reason = errors.Join(res.Reason, sec.Reason)
	}
	return sec
}

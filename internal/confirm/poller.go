package confirm

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/zmlAEQ/pingburst/internal/payload"
	"github.com/zmlAEQ/pingburst/internal/rpc"
	"github.com/zmlAEQ/pingburst/pkg/logger"
	"github.com/zmlAEQ/pingburst/pkg/metrics"
)

// StatusClient is the subset of the RPC client the poller needs.
type StatusClient interface {
	GetSignatureStatuses(ctx context.Context, sigs []string) ([]*rpc.SignatureStatus, error)
}

type PollerConfig struct {
	Interval   time.Duration
	Commitment string
	// RateLimit caps status requests per second across all watches.
	RateLimit float64
	// SeenCacheSize bounds the memory of already reported signatures.
	SeenCacheSize int
}

func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		Interval:      500 * time.Millisecond,
		Commitment:    rpc.CommitmentConfirmed,
		RateLimit:     20,
		SeenCacheSize: 1 << 16,
	}
}

// Poller asks the endpoint for signature statuses at a fixed interval.
type Poller struct {
	c    StatusClient
	cfg  PollerConfig
	lim  *rate.Limiter
	seen *lru.Cache[payload.Signature, struct{}]
}

var (
	_ Tracker = (*Poller)(nil)
	_ Checker = (*Poller)(nil)
)

func NewPoller(c StatusClient, cfg PollerConfig) *Poller {
	d := DefaultPollerConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = d.Interval
	}
	if cfg.Commitment == "" {
		cfg.Commitment = d.Commitment
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = d.RateLimit
	}
	if cfg.SeenCacheSize <= 0 {
		cfg.SeenCacheSize = d.SeenCacheSize
	}
	seen, _ := lru.New[payload.Signature, struct{}](cfg.SeenCacheSize)
	return &Poller{
		c:    c,
		cfg:  cfg,
		lim:  rate.NewLimiter(rate.Limit(cfg.RateLimit), rpc.MaxStatusBatch/64+1),
		seen: seen,
	}
}

func (p *Poller) Watch(ctx context.Context, sigs []payload.Signature) (<-chan Update, error) {
	out := make(chan Update, len(sigs))
	pending := make(map[payload.Signature]struct{}, len(sigs))
	for _, s := range sigs {
		if !p.seen.Contains(s) {
			pending[s] = struct{}{}
		}
	}
	go func() {
		defer close(out)
		t := time.NewTicker(p.cfg.Interval)
		defer t.Stop()
		for len(pending) > 0 {
			list := make([]payload.Signature, 0, len(pending))
			for s := range pending {
				list = append(list, s)
			}
			ups, _ := p.poll(ctx, list)
			for _, u := range ups {
				delete(pending, u.Signature)
				out <- u
			}
			if len(pending) == 0 {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
		}
	}()
	return out, nil
}

func (p *Poller) Check(ctx context.Context, sigs []payload.Signature) ([]Update, error) {
	return p.poll(ctx, sigs)
}

// poll looks up sigs in MaxStatusBatch chunks and returns updates for those
// not reported before. A failed chunk is skipped; its error is returned after
// the remaining chunks are tried.
func (p *Poller) poll(ctx context.Context, sigs []payload.Signature) ([]Update, error) {
	var (
		ups     []Update
		lastErr error
	)
	for start := 0; start < len(sigs); start += rpc.MaxStatusBatch {
		end := start + rpc.MaxStatusBatch
		if end > len(sigs) {
			end = len(sigs)
		}
		chunk := sigs[start:end]
		if err := p.lim.Wait(ctx); err != nil {
			return ups, err
		}
		strs := make([]string, len(chunk))
		for i, s := range chunk {
			strs[i] = s.String()
		}
		sts, err := p.c.GetSignatureStatuses(ctx, strs)
		if err != nil {
			lastErr = err
			metrics.Inc("confirm_poll_total", map[string]string{"result": "error"})
			if ctx.Err() == nil {
				logger.WarnJ("confirm_poll", map[string]any{"result": "error", "batch": len(chunk), "err": err})
			}
			continue
		}
		metrics.Inc("confirm_poll_total", map[string]string{"result": "ok"})
		for i, st := range sts {
			if i >= len(chunk) || st == nil {
				continue
			}
			var u Update
			switch {
			case st.Failed():
				u = Update{Signature: chunk[i], Status: Failed, Slot: st.Slot, Err: txError(st.Err)}
			case st.Reached(p.cfg.Commitment):
				u = Update{Signature: chunk[i], Status: Confirmed, Slot: st.Slot}
			default:
				continue
			}
			if already, _ := p.seen.ContainsOrAdd(u.Signature, struct{}{}); already {
				continue
			}
			metrics.Inc("confirm_updates_total", map[string]string{"tracker": "poll", "status": u.Status.String()})
			ups = append(ups, u)
		}
	}
	return ups, lastErr
}

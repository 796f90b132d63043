package transport

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/zmlAEQ/pingburst/internal/payload"
	"github.com/zmlAEQ/pingburst/internal/rpc"
	"github.com/zmlAEQ/pingburst/pkg/logger"
	"github.com/zmlAEQ/pingburst/pkg/metrics"
)

// RPCConfig tunes the generic transport. Zero fields take defaults.
type RPCConfig struct {
	// Retries is how many times an undelivered submission is retried.
	Retries     int
	BaseBackoff time.Duration
	MaxInFlight int64
	Commitment  string
	// BreakerFailures consecutive delivery failures open the breaker for
	// BreakerCooldown; while open, submissions fail fast as Unreachable.
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

func DefaultRPCConfig() RPCConfig {
	return RPCConfig{
		Retries:         3,
		BaseBackoff:     50 * time.Millisecond,
		MaxInFlight:     64,
		Commitment:      rpc.CommitmentConfirmed,
		BreakerFailures: 16,
		BreakerCooldown: 5 * time.Second,
	}
}

func (c RPCConfig) withDefaults() RPCConfig {
	d := DefaultRPCConfig()
	if c.Retries < 0 {
		c.Retries = 0
	} else if c.Retries == 0 {
		c.Retries = d.Retries
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = d.BaseBackoff
	}
	if c.MaxInFlight == 0 {
		c.MaxInFlight = d.MaxInFlight
	}
	if c.Commitment == "" {
		c.Commitment = d.Commitment
	}
	if c.BreakerFailures == 0 {
		c.BreakerFailures = d.BreakerFailures
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = d.BreakerCooldown
	}
	return c
}

// RPCTransport submits through the generic request/response endpoint.
type RPCTransport struct {
	c   *rpc.Client
	cfg RPCConfig
	lim *Limiter
	cb  *gobreaker.CircuitBreaker
}

var _ Transport = (*RPCTransport)(nil)

// NewRPC builds the generic transport. A negative cfg.Retries disables retries.
func NewRPC(c *rpc.Client, cfg RPCConfig) *RPCTransport {
	cfg = cfg.withDefaults()
	t := &RPCTransport{c: c, cfg: cfg, lim: NewLimiter(cfg.MaxInFlight, string(ModeGeneric))}
	t.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "rpc-submit",
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WarnJ("transport_breaker", map[string]any{"name": name, "from": from.String(), "to": to.String()})
		},
	})
	return t
}

func (t *RPCTransport) Name() string { return string(ModeGeneric) }

func (t *RPCTransport) Submit(ctx context.Context, tx *payload.Transaction) Result {
	res := t.submit(ctx, tx)
	metrics.Inc("transport_submit_total", map[string]string{"mode": t.Name(), "result": res.Kind.String()})
	return res
}

func (t *RPCTransport) submit(ctx context.Context, tx *payload.Transaction) Result {
	if err := t.lim.Acquire(ctx); err != nil {
		return Undelivered(err)
	}
	defer t.lim.Release()

	raw := tx.Encode()
	var last error
	for attempt := 0; attempt <= t.cfg.Retries; attempt++ {
		if attempt > 0 {
			if err := sleepContext(ctx, fullJitter(exponential(t.cfg.BaseBackoff, attempt))); err != nil {
				break
			}
		}
		// Endpoint refusals are returned as values so they do not count
		// against the breaker.
		v, err := t.cb.Execute(func() (interface{}, error) {
			sig, err := t.c.SendTransaction(ctx, raw, t.cfg.Commitment)
			var rerr *rpc.Error
			if errors.As(err, &rerr) {
				return rerr, nil
			}
			if err != nil {
				return nil, err
			}
			return sig, nil
		})
		if err != nil {
			last = err
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) || ctx.Err() != nil {
				break
			}
			continue
		}
		switch r := v.(type) {
		case *rpc.Error:
			if r.BlockhashNotFound() {
				return StaleToken(r)
			}
			return Reject(r)
		case string:
			if r != tx.ID().String() {
				logger.WarnJ("transport_submit", map[string]any{"mode": t.Name(), "result": "signature_mismatch", "want": tx.ID().String(), "got": r})
			}
		}
		return Accept()
	}
	if last == nil {
		last = ctx.Err()
	}
	return Undelivered(last)
}

// Package token supplies freshness tokens and decides when one has lapsed.
package token

import (
	"context"
	"fmt"
	"time"

	"github.com/zmlAEQ/pingburst/internal/payload"
	"github.com/zmlAEQ/pingburst/internal/rpc"
	"github.com/zmlAEQ/pingburst/pkg/logger"
	"github.com/zmlAEQ/pingburst/pkg/metrics"
)

// Token anchors a transaction to recent cluster state. A transaction bound to
// it can land only while the cluster's block height is <= LastValidHeight.
type Token struct {
	Hash            payload.Hash
	LastValidHeight uint64
	Slot            uint64
	FetchedAt       time.Time
}

// Source hands out tokens and classifies them as expired.
type Source interface {
	Latest(ctx context.Context) (Token, error)
	Expired(ctx context.Context, t Token) (bool, error)
}

// RPCSource reads tokens from the generic endpoint.
type RPCSource struct {
	c          *rpc.Client
	commitment string
}

func NewRPCSource(c *rpc.Client, commitment string) *RPCSource {
	if commitment == "" {
		commitment = rpc.CommitmentConfirmed
	}
	return &RPCSource{c: c, commitment: commitment}
}

func (s *RPCSource) Latest(ctx context.Context) (Token, error) {
	bh, err := s.c.GetLatestBlockhash(ctx, s.commitment)
	if err != nil {
		metrics.Inc("token_refresh_total", map[string]string{"result": "error"})
		return Token{}, fmt.Errorf("get latest blockhash: %w", err)
	}
	h, err := payload.ParseHash(bh.Blockhash)
	if err != nil {
		metrics.Inc("token_refresh_total", map[string]string{"result": "decode_error"})
		return Token{}, err
	}
	metrics.Inc("token_refresh_total", map[string]string{"result": "ok"})
	return Token{Hash: h, LastValidHeight: bh.LastValidBlockHeight, Slot: bh.Slot, FetchedAt: time.Now()}, nil
}

func (s *RPCSource) Expired(ctx context.Context, t Token) (bool, error) {
	h, err := s.c.GetBlockHeight(ctx, s.commitment)
	if err != nil {
		return false, fmt.Errorf("get block height: %w", err)
	}
	return h > t.LastValidHeight, nil
}

// Refresh fetches a token whose hash differs from prev, polling every interval
// while the source keeps returning the old one. Resigning against an unchanged
// hash would reproduce the old signature.
func Refresh(ctx context.Context, src Source, prev payload.Hash, interval time.Duration) (Token, error) {
	if interval <= 0 {
		interval = 400 * time.Millisecond
	}
	for attempt := 0; ; attempt++ {
		t, err := src.Latest(ctx)
		if err == nil && t.Hash != prev {
			if attempt > 0 {
				logger.InfoJ("token_refresh", map[string]any{"result": "ok", "waits": attempt})
			}
			return t, nil
		}
		if err != nil {
			logger.WarnJ("token_refresh", map[string]any{"result": "error", "attempt": attempt, "err": err})
		}
		select {
		case <-ctx.Done():
			if err != nil {
				return Token{}, fmt.Errorf("%w (last error: %v)", ctx.Err(), err)
			}
			return Token{}, ctx.Err()
		case <-time.After(interval):
		}
	}
}

package sender

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zmlAEQ/pingburst/internal/confirm"
	"github.com/zmlAEQ/pingburst/internal/payload"
	"github.com/zmlAEQ/pingburst/internal/token"
	"github.com/zmlAEQ/pingburst/internal/transport"
)

type fate int

const (
	land fate = iota
	drop
	reject
	unreachable
	failOnChain
	stale
)

// fakeCluster plays both transport and tracker. decide picks the fate of each
// submission by batch index (the ping amount) and per-index attempt number.
type fakeCluster struct {
	decide func(index uint64, attempt int) fate

	mu       sync.Mutex
	attempts map[uint64]int
	sigs     map[uint64][]payload.Signature
	landed   map[payload.Signature]confirm.Update
	watches  int
	released int
}

func newCluster(decide func(index uint64, attempt int) fate) *fakeCluster {
	return &fakeCluster{
		decide:   decide,
		attempts: map[uint64]int{},
		sigs:     map[uint64][]payload.Signature{},
		landed:   map[payload.Signature]confirm.Update{},
	}
}

func amountOf(tx *payload.Transaction) uint64 {
	ixs := tx.Message().Instructions
	data := ixs[len(ixs)-1].Data
	return binary.LittleEndian.Uint64(data[4:12])
}

func (c *fakeCluster) Name() string { return "fake" }

func (c *fakeCluster) Submit(_ context.Context, tx *payload.Transaction) transport.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := amountOf(tx)
	attempt := c.attempts[idx]
	c.attempts[idx]++
	c.sigs[idx] = append(c.sigs[idx], tx.ID())
	switch c.decide(idx, attempt) {
	case land:
		c.landed[tx.ID()] = confirm.Update{Signature: tx.ID(), Status: confirm.Confirmed, Slot: 100 + idx}
	case failOnChain:
		c.landed[tx.ID()] = confirm.Update{Signature: tx.ID(), Status: confirm.Failed, Err: confirm.ErrTransactionFailed}
	case reject:
		return transport.Reject(errors.New("malformed payload"))
	case unreachable:
		return transport.Undelivered(errors.New("no route to leader"))
	case stale:
		return transport.StaleToken(errors.New("Blockhash not found"))
	}
	return transport.Accept()
}

func (c *fakeCluster) Watch(ctx context.Context, sigs []payload.Signature) (<-chan confirm.Update, error) {
	out := make(chan confirm.Update, len(sigs))
	c.mu.Lock()
	c.watches++
	var ups []confirm.Update
	for _, s := range sigs {
		if u, ok := c.landed[s]; ok {
			ups = append(ups, u)
		}
	}
	c.mu.Unlock()
	go func() {
		defer close(out)
		for _, u := range ups {
			out <- u
		}
		if len(ups) < len(sigs) {
			<-ctx.Done()
			c.mu.Lock()
			c.released++
			c.mu.Unlock()
		}
	}()
	return out, nil
}

func (c *fakeCluster) attemptsFor(idx uint64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts[idx]
}

func (c *fakeCluster) releasedWatches() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.released
}

func (c *fakeCluster) signaturesFor(idx uint64) []payload.Signature {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]payload.Signature(nil), c.sigs[idx]...)
}

// fakeSource issues a new hash on every call; a token lapses ttl after it was
// fetched.
type fakeSource struct {
	ttl   time.Duration
	seq   atomic.Uint64
	fails atomic.Bool
}

func (s *fakeSource) Latest(context.Context) (token.Token, error) {
	if s.fails.Load() {
		return token.Token{}, errors.New("endpoint down")
	}
	n := s.seq.Add(1)
	var h payload.Hash
	binary.LittleEndian.PutUint64(h[:], n)
	return token.Token{Hash: h, LastValidHeight: n, FetchedAt: time.Now()}, nil
}

func (s *fakeSource) Expired(_ context.Context, t token.Token) (bool, error) {
	return time.Since(t.FetchedAt) > s.ttl, nil
}

// flakySigner fails the calls whose ordinal is listed in fail.
type flakySigner struct {
	inner payload.Signer
	fail  func(n int) bool
	n     atomic.Int64
}

func (f *flakySigner) PublicKey() payload.Identity { return f.inner.PublicKey() }
func (f *flakySigner) Sign(ctx context.Context, msg []byte) (payload.Signature, error) {
	n := int(f.n.Add(1) - 1)
	if f.fail(n) {
		return payload.Signature{}, errors.New("hardware wallet unplugged")
	}
	return f.inner.Sign(ctx, msg)
}

// Package sender runs the parallel dispatch and resign loop: it submits a
// batch concurrently, watches for confirmations until the round's freshness
// token lapses, and resigns only the unconfirmed payloads against a new token
// for the next round.
package sender

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zmlAEQ/pingburst/internal/confirm"
	"github.com/zmlAEQ/pingburst/internal/journal"
	"github.com/zmlAEQ/pingburst/internal/payload"
	"github.com/zmlAEQ/pingburst/internal/token"
	"github.com/zmlAEQ/pingburst/internal/transport"
	"github.com/zmlAEQ/pingburst/pkg/bus"
	"github.com/zmlAEQ/pingburst/pkg/logger"
	"github.com/zmlAEQ/pingburst/pkg/metrics"
	"github.com/zmlAEQ/pingburst/pkg/trace"
)

// Recorder persists dispatch and outcome entries.
type Recorder interface {
	Append(e journal.Entry) error
}

type Engine struct {
	tr      transport.Transport
	tracker confirm.Tracker
	checker confirm.Checker
	src     token.Source
	signers []payload.Signer
	cfg     Config
	bus     *bus.Bus
	journal Recorder
}

type Option func(*Engine)

// WithBus publishes progress events.
func WithBus(b *bus.Bus) Option { return func(e *Engine) { e.bus = b } }

// WithJournal records every dispatch and terminal outcome.
func WithJournal(r Recorder) Option { return func(e *Engine) { e.journal = r } }

// WithChecker overrides the one-shot status check run before reaping. By
// default the tracker is used when it implements confirm.Checker.
func WithChecker(c confirm.Checker) Option { return func(e *Engine) { e.checker = c } }

func New(tr transport.Transport, tracker confirm.Tracker, src token.Source, signers []payload.Signer, cfg Config, opts ...Option) *Engine {
	e := &Engine{tr: tr, tracker: tracker, src: src, signers: signers, cfg: cfg.withDefaults()}
	if c, ok := tracker.(confirm.Checker); ok {
		e.checker = c
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// run is the state of one Run call.
type run struct {
	*Engine
	ctx     context.Context
	traceID string
	b       *batch
	tok     token.Token
	round   int
}

// Run drives msgs to a terminal outcome each. The returned report is always
// non-nil; a non-nil error means the run was aborted (total transport outage,
// no token, signer unusable, or ctx cancelled) and the report is partial.
func (e *Engine) Run(ctx context.Context, msgs []payload.Message) (*Report, error) {
	ctx, tid := trace.Ensure(ctx)
	start := time.Now()
	r := &run{Engine: e, ctx: ctx, traceID: tid, b: newBatch(msgs)}
	err := r.loop()
	rep := r.b.report(tid, r.round, time.Since(start))
	for _, o := range rep.Outcomes {
		metrics.Inc("sender_outcomes_total", map[string]string{"state": o.State.String()})
	}
	fields := map[string]any{
		"trace_id":   tid,
		"batch":      len(msgs),
		"rounds":     rep.Rounds,
		"confirmed":  rep.Confirmed(),
		"failed":     len(rep.Failures()),
		"elapsed_ms": rep.Elapsed.Milliseconds(),
	}
	if err != nil {
		fields["err"] = err
		logger.ErrorJ("sender_done", fields)
		return rep, err
	}
	logger.InfoJ("sender_done", fields)
	return rep, nil
}

func (r *run) loop() error {
	if r.b.len() == 0 {
		return nil
	}
	if len(r.signers) == 0 {
		return payload.ErrNoSigners
	}
	tok, err := r.src.Latest(r.ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTokenUnavailable, err)
	}
	r.tok = tok
	if err := r.buildInitial(); err != nil {
		return err
	}
	for r.round = 1; ; r.round++ {
		if len(r.b.indices(Pending)) == 0 {
			return nil
		}
		if err := r.dispatchRound(); err != nil {
			return err
		}
		expired := r.b.indices(Expired)
		if len(expired) == 0 {
			return nil
		}
		if r.round >= r.cfg.MaxRounds {
			for _, i := range expired {
				r.terminal(i, r.b.fail(i, ErrRetriesExhausted))
			}
			return nil
		}
		tok, err := token.Refresh(r.ctx, r.src, r.tok.Hash, r.cfg.TokenRefreshInterval)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrTokenUnavailable, err)
		}
		r.tok = tok
		r.resign(expired)
	}
}

// buildInitial signs every payload against the first token. A signer that
// fails for the whole batch is fatal; isolated failures only fail their slot.
func (r *run) buildInitial() error {
	msgs := make([]payload.Message, r.b.len())
	for i := range r.b.slots {
		msgs[i] = r.b.slots[i].msg
	}
	txs, errs := payload.BuildBatch(r.ctx, msgs, r.tok.Hash, r.signers)
	var first error
	failed := 0
	for i, tx := range txs {
		if errs[i] != nil {
			failed++
			if first == nil {
				first = errs[i]
			}
			r.terminal(i, r.b.fail(i, errs[i]))
			continue
		}
		r.b.bind(i, tx)
	}
	if failed == len(txs) {
		return first
	}
	return nil
}

func (r *run) resign(idx []int) {
	for _, i := range idx {
		tx, err := payload.Build(r.ctx, r.b.slots[i].msg, r.tok.Hash, r.signers)
		if err != nil {
			r.terminal(i, r.b.fail(i, err))
			continue
		}
		if err := r.b.resign(i, tx); err != nil {
			logger.ErrorJ("sender_resign", map[string]any{"trace_id": r.traceID, "index": i, "err": err})
			continue
		}
		metrics.Inc("sender_resign_total", nil)
	}
	logger.InfoJ("sender_resign", map[string]any{"trace_id": r.traceID, "round": r.round, "resigned": len(idx), "token": r.tok.Hash.String()})
}

func (r *run) dispatchRound() error {
	start := time.Now()
	idx := r.b.indices(Pending)
	metrics.Inc("sender_rounds_total", nil)
	r.publish(bus.Event{Kind: bus.KindRound, Body: bus.RoundInfo{
		Pending:   len(idx),
		Confirmed: r.b.count(Confirmed),
		Failed:    r.b.count(Failed),
		Total:     r.b.len(),
	}})

	txs := make([]*payload.Transaction, len(idx))
	for k, i := range idx {
		if err := r.b.dispatch(i); err != nil {
			return err
		}
		txs[k] = r.b.slots[i].tx
		r.record(journal.Entry{Event: journal.EventDispatch, Round: r.round, Index: i, Signature: txs[k].ID().String(), Token: r.tok.Hash.String()})
	}

	results := make([]transport.Result, len(idx))
	var g errgroup.Group
	if r.cfg.SendConcurrency > 0 {
		g.SetLimit(r.cfg.SendConcurrency)
	}
	for k := range idx {
		k := k
		g.Go(func() error {
			results[k] = r.tr.Submit(r.ctx, txs[k])
			return nil
		})
	}
	_ = g.Wait()

	var (
		watch       []payload.Signature
		rejected    int
		stale       int
		undelivered int
		lastUndeliv error
	)
	for k, i := range idx {
		switch res := results[k]; res.Kind {
		case transport.Accepted:
			watch = append(watch, txs[k].ID())
		case transport.Rejected:
			rejected++
			r.terminal(i, r.b.fail(i, fmt.Errorf("%w: %w", ErrProtocolRejected, res.Reason)))
		case transport.Stale:
			// left in flight; reaped as expired below and resigned
			stale++
		default:
			undelivered++
			lastUndeliv = res.Reason
			r.b.slots[i].undelivered = true
		}
	}
	logger.InfoJ("sender_round", map[string]any{
		"trace_id":    r.traceID,
		"round":       r.round,
		"mode":        r.tr.Name(),
		"dispatched":  len(idx),
		"accepted":    len(watch),
		"rejected":    rejected,
		"stale":       stale,
		"undelivered": undelivered,
	})
	if len(idx) > 0 && undelivered == len(idx) {
		abort := fmt.Errorf("%w: %d of %d submissions undelivered in round %d: %v", ErrTransportUnavailable, undelivered, len(idx), r.round, lastUndeliv)
		for _, i := range idx {
			r.terminal(i, r.b.fail(i, abort))
		}
		return abort
	}

	if len(watch) > 0 {
		r.observe(watch)
	}
	if err := r.ctx.Err(); err != nil {
		return err
	}

	expired := 0
	for _, i := range idx {
		if r.b.slots[i].state != InFlight {
			continue
		}
		if err := r.b.expire(i); err == nil {
			expired++
			r.publish(bus.Event{Kind: bus.KindExpired, Index: i})
		}
	}
	metrics.ObserveSummary("sender_round_ms", nil, float64(time.Since(start).Milliseconds()))
	logger.InfoJ("sender_reap", map[string]any{
		"trace_id":  r.traceID,
		"round":     r.round,
		"confirmed": r.b.count(Confirmed),
		"failed":    r.b.count(Failed),
		"expired":   expired,
	})
	return nil
}

// observe waits for confirmations of sigs until all resolve, the token
// lapses, or the observation timeout fires. The tracker's watch is cancelled
// and drained before returning.
func (r *run) observe(sigs []payload.Signature) {
	wctx, cancel := context.WithTimeout(r.ctx, r.cfg.ObservationTimeout)
	defer cancel()

	outstanding := len(sigs)
	ch, err := r.tracker.Watch(wctx, sigs)
	if err != nil {
		logger.WarnJ("sender_watch", map[string]any{"trace_id": r.traceID, "round": r.round, "result": "error", "err": err})
		ch = nil
	}
	tick := time.NewTicker(r.cfg.ExpiryPollInterval)
	defer tick.Stop()

wait:
	for outstanding > 0 {
		select {
		case u, ok := <-ch:
			if !ok {
				ch = nil
				continue
			}
			if r.apply(u) {
				outstanding--
			}
		case <-tick.C:
			exp, err := r.src.Expired(wctx, r.tok)
			if err != nil {
				logger.WarnJ("sender_expiry_check", map[string]any{"trace_id": r.traceID, "err": err})
				continue
			}
			if exp {
				break wait
			}
		case <-wctx.Done():
			break wait
		}
	}
	cancel()
	if ch != nil {
		for u := range ch {
			if r.apply(u) {
				outstanding--
			}
		}
	}

	if outstanding == 0 || r.checker == nil || r.ctx.Err() != nil {
		return
	}
	var left []payload.Signature
	for _, s := range sigs {
		if i, ok := r.b.bySig[s]; ok && r.b.slots[i].state == InFlight {
			left = append(left, s)
		}
	}
	cctx, ccancel := context.WithTimeout(r.ctx, r.cfg.ExpiryPollInterval+5*time.Second)
	defer ccancel()
	ups, err := r.checker.Check(cctx, left)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.WarnJ("sender_final_check", map[string]any{"trace_id": r.traceID, "round": r.round, "err": err})
	}
	for _, u := range ups {
		r.apply(u)
	}
}

// apply folds one tracker update into the batch. It reports whether the
// update resolved an in-flight payload.
func (r *run) apply(u confirm.Update) bool {
	switch u.Status {
	case confirm.Confirmed:
		i, ok := r.b.confirm(u.Signature, u.Slot)
		if !ok {
			return false
		}
		r.publish(bus.Event{Kind: bus.KindConfirmed, Index: i})
		r.record(journal.Entry{Event: journal.EventConfirmed, Round: r.round, Index: i, Signature: u.Signature.String()})
		return true
	case confirm.Failed:
		i, ok := r.b.bySig[u.Signature]
		if !ok || r.b.slots[i].state != InFlight {
			return false
		}
		r.b.slots[i].landedSlot = u.Slot
		r.terminal(i, r.b.fail(i, fmt.Errorf("%w: %w", ErrProtocolRejected, u.Err)))
		return true
	}
	return false
}

// terminal reports a slot's failure once the transition succeeded.
func (r *run) terminal(i int, transitionErr error) {
	if transitionErr != nil {
		logger.ErrorJ("sender_state", map[string]any{"trace_id": r.traceID, "index": i, "err": transitionErr})
		return
	}
	sl := r.b.slots[i]
	r.publish(bus.Event{Kind: bus.KindFailed, Index: i, Body: sl.reason})
	e := journal.Entry{Event: journal.EventFailed, Round: r.round, Index: i}
	if sl.tx != nil {
		e.Signature = sl.tx.ID().String()
	}
	if sl.reason != nil {
		e.Reason = sl.reason.Error()
	}
	r.record(e)
}

func (r *run) publish(ev bus.Event) {
	if r.bus == nil {
		return
	}
	ev.Round = uint64(r.round)
	ev.TraceID = r.traceID
	r.bus.Publish(r.ctx, ev)
}

func (r *run) record(e journal.Entry) {
	if r.journal == nil {
		return
	}
	e.TraceID = r.traceID
	if err := r.journal.Append(e); err != nil {
		logger.WarnJ("sender_journal", map[string]any{"trace_id": r.traceID, "err": err})
	}
}

package report

import (
	"context"
	"sync"

	"github.com/zmlAEQ/pingburst/pkg/bus"
	"github.com/zmlAEQ/pingburst/pkg/logger"
)

// Progress logs one line per dispatch round from the engine's event bus, with
// the confirmations, failures and expiries seen since the previous round.
type Progress struct {
	sub  bus.Subscriber
	stop chan struct{}
	wg   sync.WaitGroup

	mu      sync.Mutex
	rounds  int
	counts  map[bus.Kind]int
	lastRnd bus.RoundInfo
}

func NewProgress(b *bus.Bus) *Progress {
	return &Progress{sub: b.Subscribe(), counts: map[bus.Kind]int{}}
}

func (p *Progress) Name() string { return "progress" }

func (p *Progress) Start(context.Context) error {
	p.stop = make(chan struct{})
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case ev := <-p.sub:
				p.handle(ev)
			case <-p.stop:
				for {
					select {
					case ev := <-p.sub:
						p.handle(ev)
					default:
						p.flush(0)
						return
					}
				}
			}
		}
	}()
	return nil
}

func (p *Progress) Stop(context.Context) error {
	if p.stop == nil {
		return nil
	}
	close(p.stop)
	p.wg.Wait()
	p.stop = nil
	return nil
}

// Rounds reports how many round events were seen.
func (p *Progress) Rounds() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rounds
}

func (p *Progress) handle(ev bus.Event) {
	switch ev.Kind {
	case bus.KindRound:
		p.flush(ev.Round - 1)
		info, _ := ev.Body.(bus.RoundInfo)
		p.mu.Lock()
		p.rounds++
		p.lastRnd = info
		p.mu.Unlock()
		logger.InfoJ("progress_round", map[string]any{
			"trace_id":   ev.TraceID,
			"round":      ev.Round,
			"dispatched": info.Pending,
			"confirmed":  info.Confirmed,
			"failed":     info.Failed,
			"total":      info.Total,
		})
	default:
		p.mu.Lock()
		p.counts[ev.Kind]++
		p.mu.Unlock()
	}
}

// flush logs the per-kind tallies accumulated since the last round line.
func (p *Progress) flush(round uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.counts) == 0 {
		return
	}
	fields := map[string]any{
		"confirmed": p.counts[bus.KindConfirmed],
		"failed":    p.counts[bus.KindFailed],
		"expired":   p.counts[bus.KindExpired],
	}
	if round > 0 {
		fields["round"] = round
	}
	logger.InfoJ("progress_settled", fields)
	p.counts = map[bus.Kind]int{}
}

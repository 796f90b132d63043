package bus

import (
	"context"

	"github.com/zmlAEQ/pingburst/pkg/metrics"
)

type Kind string

const (
	// KindRound marks the start of a dispatch round; Body is a RoundInfo.
	KindRound Kind = "round"
	// KindConfirmed is emitted once per payload when its signature lands.
	KindConfirmed Kind = "confirmed"
	// KindFailed is emitted when a payload reaches a terminal failure.
	KindFailed Kind = "failed"
	// KindExpired is emitted when a payload's token lapsed unconfirmed.
	KindExpired Kind = "expired"
)

// RoundInfo is the body of a KindRound event.
type RoundInfo struct {
	Pending   int
	Confirmed int
	Failed    int
	Total     int
}

type Event struct {
	Kind    Kind
	Round   uint64
	Index   int
	Body    any
	TraceID string
}

type Subscriber <-chan Event

// Bus is a single-consumer event pipe. Publishing never blocks: events are
// dropped when the consumer falls behind.
type Bus struct {
	pub chan Event
}

func New(size int) *Bus {
	if size <= 0 {
		size = 128
	}
	return &Bus{pub: make(chan Event, size)}
}

func (b *Bus) Publish(_ context.Context, ev Event) {
	if b == nil {
		return
	}
	select {
	case b.pub <- ev:
	default:
		metrics.Inc("bus_dropped_total", nil)
	}
}

func (b *Bus) Subscribe() Subscriber { return b.pub }

package sender

import (
	"time"

	"github.com/zmlAEQ/pingburst/internal/payload"
)

// Outcome is the terminal result for one batch position.
type Outcome struct {
	Index     int
	State     State
	Signature payload.Signature
	// Signatures lists every signature used for this position, oldest first.
	Signatures []payload.Signature
	Reason     error
	Attempts   int
	Slot       uint64
}

// Report is the result of one Run, in batch index order.
type Report struct {
	TraceID  string
	Outcomes []Outcome
	Rounds   int
	Elapsed  time.Duration
}

// OK reports whether every payload confirmed.
func (r *Report) OK() bool { return len(r.Failures()) == 0 }

// Failures returns the non-confirmed outcomes in index order.
func (r *Report) Failures() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.State != Confirmed {
			out = append(out, o)
		}
	}
	return out
}

func (r *Report) Confirmed() int { return len(r.Outcomes) - len(r.Failures()) }

func (b *batch) report(traceID string, rounds int, elapsed time.Duration) *Report {
	r := &Report{TraceID: traceID, Rounds: rounds, Elapsed: elapsed, Outcomes: make([]Outcome, len(b.slots))}
	for i, sl := range b.slots {
		o := Outcome{
			Index:      i,
			State:      sl.state,
			Reason:     sl.reason,
			Attempts:   sl.attempts,
			Slot:       sl.landedSlot,
			Signatures: append([]payload.Signature(nil), sl.history...),
		}
		if sl.tx != nil {
			o.Signature = sl.tx.ID()
		}
		r.Outcomes[i] = o
	}
	return r
}

package sender

import (
	"fmt"

	"github.com/zmlAEQ/pingburst/internal/payload"
)

// State is a payload's position in the submission lifecycle.
type State int

const (
	Pending State = iota
	InFlight
	Confirmed
	Failed
	Expired
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case InFlight:
		return "in_flight"
	case Confirmed:
		return "confirmed"
	case Failed:
		return "failed"
	case Expired:
		return "expired"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool { return s == Confirmed || s == Failed }

var transitions = map[State][]State{
	Pending:  {InFlight, Failed},
	InFlight: {Confirmed, Expired, Failed},
	Expired:  {Pending, Failed},
}

func allowed(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// slot is one batch position. tx is replaced on every resign; msg never
// changes.
type slot struct {
	state       State
	msg         payload.Message
	tx          *payload.Transaction
	reason      error
	attempts    int
	landedSlot  uint64
	undelivered bool
	history     []payload.Signature
}

// batch is the arena of slots for one run. Its length is fixed at creation.
type batch struct {
	slots []slot
	bySig map[payload.Signature]int
}

func newBatch(msgs []payload.Message) *batch {
	b := &batch{slots: make([]slot, len(msgs)), bySig: make(map[payload.Signature]int, len(msgs))}
	for i, m := range msgs {
		b.slots[i] = slot{state: Pending, msg: m}
	}
	return b
}

func (b *batch) len() int { return len(b.slots) }

func (b *batch) indices(s State) []int {
	var out []int
	for i := range b.slots {
		if b.slots[i].state == s {
			out = append(out, i)
		}
	}
	return out
}

func (b *batch) count(s State) int {
	n := 0
	for i := range b.slots {
		if b.slots[i].state == s {
			n++
		}
	}
	return n
}

func (b *batch) transition(i int, to State) error {
	sl := &b.slots[i]
	if sl.state == to && sl.state.Terminal() {
		return nil
	}
	if !allowed(sl.state, to) {
		return fmt.Errorf("%w: slot %d %s -> %s", ErrIllegalTransition, i, sl.state, to)
	}
	sl.state = to
	return nil
}

// bind installs a freshly signed transaction in a Pending slot.
func (b *batch) bind(i int, tx *payload.Transaction) {
	sl := &b.slots[i]
	if sl.tx != nil {
		delete(b.bySig, sl.tx.ID())
	}
	sl.tx = tx
	sl.undelivered = false
	sl.history = append(sl.history, tx.ID())
	b.bySig[tx.ID()] = i
}

func (b *batch) dispatch(i int) error {
	if err := b.transition(i, InFlight); err != nil {
		return err
	}
	b.slots[i].attempts++
	return nil
}

// confirm applies an observed confirmation. It returns the slot index and
// whether the update changed anything; stale or repeated signatures are
// ignored.
func (b *batch) confirm(sig payload.Signature, landed uint64) (int, bool) {
	i, ok := b.bySig[sig]
	if !ok || b.slots[i].state != InFlight {
		return i, false
	}
	if err := b.transition(i, Confirmed); err != nil {
		return i, false
	}
	b.slots[i].landedSlot = landed
	return i, true
}

func (b *batch) fail(i int, reason error) error {
	if err := b.transition(i, Failed); err != nil {
		return err
	}
	b.slots[i].reason = reason
	return nil
}

// expire retires the slot's current signature; it can no longer confirm.
func (b *batch) expire(i int) error {
	if err := b.transition(i, Expired); err != nil {
		return err
	}
	if tx := b.slots[i].tx; tx != nil {
		delete(b.bySig, tx.ID())
	}
	b.slots[i].reason = ErrExpired
	return nil
}

// resign moves an Expired slot back to Pending with a new transaction.
func (b *batch) resign(i int, tx *payload.Transaction) error {
	if err := b.transition(i, Pending); err != nil {
		return err
	}
	b.slots[i].reason = nil
	b.bind(i, tx)
	return nil
}

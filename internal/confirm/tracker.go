// Package confirm observes which submitted signatures have landed.
//
// Both trackers share one contract: Watch returns a channel that yields at
// most one Update per signature and is closed once the watch ends, either
// because every signature was reported or because ctx was cancelled. After
// cancelling, callers drain the channel to collect updates that raced the
// cancellation; the tracker has released its resources by the time the
// channel is closed.
package confirm

import (
	"context"
	"errors"
	"fmt"

	"github.com/zmlAEQ/pingburst/internal/payload"
)

// Status is the terminal observation for a signature.
type Status int

const (
	Confirmed Status = iota
	// Failed means the transaction landed but the cluster recorded an error.
	Failed
)

func (s Status) String() string {
	switch s {
	case Confirmed:
		return "confirmed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// ErrTransactionFailed wraps the cluster's error for a landed transaction.
var ErrTransactionFailed = errors.New("transaction failed")

type Update struct {
	Signature payload.Signature
	Status    Status
	Slot      uint64
	Err       error
}

// Tracker streams confirmation updates for a set of signatures.
type Tracker interface {
	Watch(ctx context.Context, sigs []payload.Signature) (<-chan Update, error)
}

// Checker performs a one-shot status lookup. Signatures already reported by
// the same tracker are not reported again.
type Checker interface {
	Check(ctx context.Context, sigs []payload.Signature) ([]Update, error)
}

func txError(raw []byte) error {
	return fmt.Errorf("%w: %s", ErrTransactionFailed, raw)
}

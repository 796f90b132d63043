// Package report turns a finished run into the user-visible result: one line
// per failed payload and a consolidated error, or the elapsed time.
package report

import (
	"errors"
	"fmt"
	"io"

	"github.com/zmlAEQ/pingburst/internal/sender"
)

// BatchError is the consolidated failure of a run. It unwraps to every
// per-payload reason.
type BatchError struct {
	Count    int
	Failures []sender.Outcome
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("%d write transactions failed", e.Count)
}

func (e *BatchError) Unwrap() []error {
	out := make([]error, 0, len(e.Failures))
	for _, o := range e.Failures {
		if o.Reason != nil {
			out = append(out, o.Reason)
		}
	}
	return out
}

// Aggregate returns nil when every payload confirmed, otherwise a *BatchError
// with the failures in index order.
func Aggregate(rep *sender.Report) error {
	if rep == nil {
		return nil
	}
	fails := rep.Failures()
	if len(fails) == 0 {
		return nil
	}
	return &BatchError{Count: len(fails), Failures: fails}
}

// Write prints one line per failure followed by nothing, or "Took <ms>ms" on
// full success. It returns the aggregated error.
func Write(w io.Writer, rep *sender.Report) error {
	err := Aggregate(rep)
	var be *BatchError
	if !errors.As(err, &be) {
		fmt.Fprintf(w, "Took %dms\n", rep.Elapsed.Milliseconds())
		return nil
	}
	for _, o := range be.Failures {
		fmt.Fprintln(w, failureLine(o))
	}
	return err
}

func failureLine(o sender.Outcome) string {
	reason := "unknown"
	if o.Reason != nil {
		reason = o.Reason.Error()
	}
	if o.Signature.IsZero() {
		return fmt.Sprintf("payload %d: %s", o.Index, reason)
	}
	return fmt.Sprintf("payload %d (%s): %s", o.Index, o.Signature, reason)
}

// ExitCode is 0 only for a run that was not aborted and confirmed everything.
func ExitCode(rep *sender.Report, runErr error) int {
	if runErr != nil || Aggregate(rep) != nil {
		return 1
	}
	return 0
}

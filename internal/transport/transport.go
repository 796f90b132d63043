// Package transport defines the uniform submit contract shared by the direct
// leader channel and the generic request/response endpoint.
package transport

import (
	"context"
	"fmt"
	"strings"

	"github.com/zmlAEQ/pingburst/internal/payload"
)

// Kind classifies a submission.
type Kind int

const (
	// Accepted means the payload was handed to the cluster. It says nothing
	// about whether it will land.
	Accepted Kind = iota
	// Rejected means the cluster refused the payload; retrying it unchanged
	// cannot succeed.
	Rejected
	// Unreachable means the payload could not be delivered.
	Unreachable
	// Stale means the cluster no longer knows the freshness token the payload
	// is bound to. The payload is dead but resigning it can succeed.
	Stale
)

func (k Kind) String() string {
	switch k {
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	case Unreachable:
		return "unreachable"
	case Stale:
		return "stale"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Result is the outcome of one Submit call. Reason is nil when Accepted.
type Result struct {
	Kind   Kind
	Reason error
}

func Accept() Result               { return Result{Kind: Accepted} }
func Reject(reason error) Result   { return Result{Kind: Rejected, Reason: reason} }
func Undelivered(err error) Result { return Result{Kind: Unreachable, Reason: err} }
func StaleToken(reason error) Result { return Result{Kind: Stale, Reason: reason} }

func (r Result) String() string {
	if r.Reason == nil {
		return r.Kind.String()
	}
	return r.Kind.String() + ": " + r.Reason.Error()
}

// Transport submits signed transactions. Implementations must be safe for
// concurrent Submit calls; one submission never waits on another beyond the
// implementation's own resource limits.
type Transport interface {
	Name() string
	Submit(ctx context.Context, tx *payload.Transaction) Result
}

// Mode selects a transport at startup.
type Mode string

const (
	ModeDirect  Mode = "direct"
	ModeGeneric Mode = "generic"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeDirect, "tpu", "":
		return ModeDirect, nil
	case ModeGeneric, "rpc":
		return ModeGeneric, nil
	default:
		return "", fmt.Errorf("unknown transport mode %q (want direct or generic)", s)
	}
}

package sender

import "errors"

var (
	// ErrTransportUnavailable aborts a run when every submission of a round
	// was undelivered.
	ErrTransportUnavailable = errors.New("transport unavailable")
	// ErrTokenUnavailable aborts a run when no freshness token can be fetched.
	ErrTokenUnavailable = errors.New("freshness token unavailable")
	// ErrProtocolRejected marks a payload the cluster refused or recorded as
	// failed. It is terminal for that payload.
	ErrProtocolRejected = errors.New("protocol rejected")
	// ErrExpired marks a payload whose token lapsed before it confirmed.
	ErrExpired = errors.New("expired")
	// ErrRetriesExhausted marks a payload still unconfirmed after the last round.
	ErrRetriesExhausted = errors.New("exhausted retries")
	// ErrIllegalTransition is returned by the state machine for transitions
	// outside the lifecycle.
	ErrIllegalTransition = errors.New("illegal state transition")
)

package payload

import (
	"context"
	"errors"
	"fmt"
)

// Signer produces signatures for a fixed identity. Implementations are not
// assumed to be safe for concurrent use; the builder calls them serially.
type Signer interface {
	PublicKey() Identity
	Sign(ctx context.Context, msg []byte) (Signature, error)
}

var (
	ErrNoSigners     = errors.New("no signers")
	ErrMissingSigner = errors.New("missing signer")
)

// SigningError reports that a signer could not sign a message.
type SigningError struct {
	Signer Identity
	Err    error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("signing error: signer %s: %v", e.Signer, e.Err)
}

func (e *SigningError) Unwrap() error { return e.Err }

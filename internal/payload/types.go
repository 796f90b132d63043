package payload

import (
	"fmt"

	"github.com/mr-tron/base58"
)

const (
	IdentitySize  = 32
	SignatureSize = 64
	HashSize      = 32
)

// Identity is a signer's public key.
type Identity [IdentitySize]byte

func (id Identity) String() string { return base58.Encode(id[:]) }

// Signature identifies a signed transaction on the cluster.
type Signature [SignatureSize]byte

func (s Signature) String() string { return base58.Encode(s[:]) }

func (s Signature) IsZero() bool { return s == Signature{} }

// ParseSignature decodes a base58 signature.
func ParseSignature(s string) (Signature, error) {
	var sig Signature
	b, err := base58.Decode(s)
	if err != nil {
		return sig, fmt.Errorf("parse signature: %w", err)
	}
	if len(b) != SignatureSize {
		return sig, fmt.Errorf("parse signature: want %d bytes, got %d", SignatureSize, len(b))
	}
	copy(sig[:], b)
	return sig, nil
}

// Hash is the freshness token value a message is bound to.
type Hash [HashSize]byte

func (h Hash) String() string { return base58.Encode(h[:]) }

func (h Hash) IsZero() bool { return h == Hash{} }

// ParseHash decodes a base58 hash.
func ParseHash(s string) (Hash, error) {
	var h Hash
	b, err := base58.Decode(s)
	if err != nil {
		return h, fmt.Errorf("parse hash: %w", err)
	}
	if len(b) != HashSize {
		return h, fmt.Errorf("parse hash: want %d bytes, got %d", HashSize, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// Package signer provides the ed25519 keypair signer used by the CLI.
package signer

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zmlAEQ/pingburst/internal/payload"
)

// Keypair signs with an in-memory ed25519 private key.
type Keypair struct {
	priv ed25519.PrivateKey
	pub  payload.Identity
}

var _ payload.Signer = (*Keypair)(nil)

// Generate returns a random keypair.
func Generate() (*Keypair, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return FromPrivateKey(priv), nil
}

// FromPrivateKey wraps an existing ed25519 key.
func FromPrivateKey(priv ed25519.PrivateKey) *Keypair {
	k := &Keypair{priv: priv}
	copy(k.pub[:], priv.Public().(ed25519.PublicKey))
	return k
}

// LoadKeypair reads a keypair file: a JSON array of the 64 private key bytes.
func LoadKeypair(path string) (*Keypair, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keypair: %w", err)
	}
	var ints []int
	if err := json.Unmarshal(b, &ints); err != nil {
		return nil, fmt.Errorf("decode keypair %s: %w", path, err)
	}
	if len(ints) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("decode keypair %s: want %d bytes, got %d", path, ed25519.PrivateKeySize, len(ints))
	}
	raw := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("decode keypair %s: byte %d out of range", path, i)
		}
		raw[i] = byte(v)
	}
	priv := ed25519.NewKeyFromSeed(raw[:ed25519.SeedSize])
	if !priv.Equal(ed25519.PrivateKey(raw)) {
		return nil, fmt.Errorf("decode keypair %s: public key does not match seed", path)
	}
	return FromPrivateKey(priv), nil
}

// Write stores the keypair in the format LoadKeypair reads.
func (k *Keypair) Write(path string) error {
	ints := make([]int, len(k.priv))
	for i, b := range k.priv {
		ints[i] = int(b)
	}
	b, err := json.Marshal(ints)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

func (k *Keypair) PublicKey() payload.Identity { return k.pub }

func (k *Keypair) Sign(ctx context.Context, msg []byte) (payload.Signature, error) {
	var sig payload.Signature
	if err := ctx.Err(); err != nil {
		return sig, err
	}
	copy(sig[:], ed25519.Sign(k.priv, msg))
	return sig, nil
}

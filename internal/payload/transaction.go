package payload

import (
	"crypto/ed25519"
	"errors"
	"fmt"
)

// MaxTransactionSize is the largest encoded transaction the cluster accepts.
const MaxTransactionSize = 1232

var ErrTransactionTooLarge = errors.New("transaction too large")

// Transaction is a message plus one signature per required signer. It is
// immutable; resigning produces a new Transaction.
type Transaction struct {
	msg  Message
	body []byte
	sigs []Signature
}

func (t *Transaction) Message() Message { return t.msg.WithRecent(t.msg.Recent) }

// Recent returns the freshness token hash the transaction is bound to.
func (t *Transaction) Recent() Hash { return t.msg.Recent }

// Signatures returns a copy of the signature set, payer first.
func (t *Transaction) Signatures() []Signature { return append([]Signature(nil), t.sigs...) }

// ID is the payer's signature, which is how the cluster keys the transaction.
func (t *Transaction) ID() Signature {
	if len(t.sigs) == 0 {
		return Signature{}
	}
	return t.sigs[0]
}

// Encode returns the wire form: compact-u16 signature count, signatures,
// message bytes.
func (t *Transaction) Encode() []byte {
	buf := make([]byte, 0, 3+len(t.sigs)*SignatureSize+len(t.body))
	buf = appendShortVec(buf, len(t.sigs))
	for _, s := range t.sigs {
		buf = append(buf, s[:]...)
	}
	return append(buf, t.body...)
}

// DecodeTransaction parses the output of Encode.
func DecodeTransaction(b []byte) (*Transaction, error) {
	n, k, err := readShortVec(b)
	if err != nil {
		return nil, fmt.Errorf("transaction: signature count: %w", err)
	}
	b = b[k:]
	if len(b) < n*SignatureSize {
		return nil, errors.New("transaction: truncated signatures")
	}
	sigs := make([]Signature, n)
	for i := range sigs {
		copy(sigs[i][:], b[:SignatureSize])
		b = b[SignatureSize:]
	}
	msg, required, err := decodeMessage(b)
	if err != nil {
		return nil, err
	}
	if required != n {
		return nil, fmt.Errorf("transaction: header wants %d signatures, got %d", required, n)
	}
	return &Transaction{msg: msg, body: append([]byte(nil), b...), sigs: sigs}, nil
}

// Verify checks every signature against its signer's key.
func (t *Transaction) Verify() error {
	signers := t.msg.Signers()
	if len(signers) != len(t.sigs) {
		return fmt.Errorf("transaction: %d signers, %d signatures", len(signers), len(t.sigs))
	}
	for i, id := range signers {
		if !ed25519.Verify(ed25519.PublicKey(id[:]), t.body, t.sigs[i][:]) {
			return fmt.Errorf("transaction: bad signature for %s", id)
		}
	}
	return nil
}

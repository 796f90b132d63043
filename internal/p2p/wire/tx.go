package wire

import (
	"fmt"

	"github.com/zmlAEQ/pingburst/internal/payload"
)

// TypeTxV1 tags envelopes carrying payload.Transaction's binary encoding.
const TypeTxV1 = "tx_v1"

// TxEnvelope is the frame written to the leader stream. Signature duplicates
// the payer signature so a receiver can dedupe without decoding Tx.
type TxEnvelope struct {
	Type      string `json:"type"`
	Signature string `json:"signature"`
	Tx        []byte `json:"tx"`
}

// TxFromInternal wraps a signed transaction for the wire.
func TxFromInternal(tx *payload.Transaction) TxEnvelope {
	return TxEnvelope{Type: TypeTxV1, Signature: tx.ID().String(), Tx: tx.Encode()}
}

// ToInternal decodes the envelope and checks that the advertised signature
// matches the payload.
func (w TxEnvelope) ToInternal() (*payload.Transaction, error) {
	if w.Type != TypeTxV1 {
		return nil, fmt.Errorf("wire: unsupported tx type %q", w.Type)
	}
	tx, err := payload.DecodeTransaction(w.Tx)
	if err != nil {
		return nil, err
	}
	if tx.ID().String() != w.Signature {
		return nil, fmt.Errorf("wire: signature mismatch")
	}
	return tx, nil
}

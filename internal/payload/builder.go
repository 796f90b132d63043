package payload

import (
	"context"
	"fmt"

	"github.com/zmlAEQ/pingburst/pkg/metrics"
)

// Build binds msg to the freshness token hash recent and signs it with every
// required signer. signers may hold more keys than the message needs.
func Build(ctx context.Context, msg Message, recent Hash, signers []Signer) (*Transaction, error) {
	if len(signers) == 0 {
		return nil, ErrNoSigners
	}
	m := msg.WithRecent(recent)
	byID := make(map[Identity]Signer, len(signers))
	for _, s := range signers {
		byID[s.PublicKey()] = s
	}
	required := m.Signers()
	body, err := m.Bytes()
	if err != nil {
		return nil, err
	}
	if size := len(appendShortVec(nil, len(required))) + len(required)*SignatureSize + len(body); size > MaxTransactionSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTransactionTooLarge, size)
	}
	sigs := make([]Signature, len(required))
	for i, id := range required {
		s, ok := byID[id]
		if !ok {
			return nil, &SigningError{Signer: id, Err: ErrMissingSigner}
		}
		sig, err := s.Sign(ctx, body)
		if err != nil {
			metrics.Inc("builder_sign_total", map[string]string{"result": "error"})
			return nil, &SigningError{Signer: id, Err: err}
		}
		sigs[i] = sig
	}
	metrics.Inc("builder_sign_total", map[string]string{"result": "ok"})
	return &Transaction{msg: m, body: body, sigs: sigs}, nil
}

// BuildBatch builds one transaction per message, in order, invoking the
// signers serially. A failure is confined to its own index: errs[i] is set
// exactly when txs[i] is nil.
func BuildBatch(ctx context.Context, msgs []Message, recent Hash, signers []Signer) ([]*Transaction, []error) {
	txs := make([]*Transaction, len(msgs))
	errs := make([]error, len(msgs))
	for i, m := range msgs {
		if err := ctx.Err(); err != nil {
			errs[i] = err
			continue
		}
		txs[i], errs[i] = Build(ctx, m, recent, signers)
	}
	return txs, errs
}

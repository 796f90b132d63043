package rpc

import (
	"context"
	"encoding/base64"
	"encoding/json"
)

// Commitment levels understood by the endpoint.
const (
	CommitmentProcessed = "processed"
	CommitmentConfirmed = "confirmed"
	CommitmentFinalized = "finalized"
)

// MaxStatusBatch is the most signatures one getSignatureStatuses call accepts.
const MaxStatusBatch = 256

type commitmentOpts struct {
	Commitment string `json:"commitment,omitempty"`
}

// LatestBlockhash is the current freshness token and the last block height at
// which transactions bound to it can still land.
type LatestBlockhash struct {
	Slot                 uint64
	Blockhash            string
	LastValidBlockHeight uint64
}

func (c *Client) GetLatestBlockhash(ctx context.Context, commitment string) (LatestBlockhash, error) {
	var res struct {
		Context struct {
			Slot uint64 `json:"slot"`
		} `json:"context"`
		Value struct {
			Blockhash            string `json:"blockhash"`
			LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
		} `json:"value"`
	}
	if err := c.Call(ctx, "getLatestBlockhash", []any{commitmentOpts{commitment}}, &res); err != nil {
		return LatestBlockhash{}, err
	}
	return LatestBlockhash{Slot: res.Context.Slot, Blockhash: res.Value.Blockhash, LastValidBlockHeight: res.Value.LastValidBlockHeight}, nil
}

func (c *Client) GetBlockHeight(ctx context.Context, commitment string) (uint64, error) {
	var h uint64
	err := c.Call(ctx, "getBlockHeight", []any{commitmentOpts{commitment}}, &h)
	return h, err
}

type sendOpts struct {
	Encoding            string `json:"encoding"`
	SkipPreflight       bool   `json:"skipPreflight"`
	PreflightCommitment string `json:"preflightCommitment,omitempty"`
	MaxRetries          *int   `json:"maxRetries,omitempty"`
}

// SendTransaction submits a wire-encoded transaction and returns the
// signature the endpoint reports.
func (c *Client) SendTransaction(ctx context.Context, raw []byte, preflightCommitment string) (string, error) {
	zero := 0
	var sig string
	err := c.Call(ctx, "sendTransaction", []any{
		base64.StdEncoding.EncodeToString(raw),
		sendOpts{Encoding: "base64", PreflightCommitment: preflightCommitment, MaxRetries: &zero},
	}, &sig)
	return sig, err
}

// SignatureStatus is one entry of getSignatureStatuses. Err is non-empty when
// the transaction landed but failed.
type SignatureStatus struct {
	Slot               uint64          `json:"slot"`
	Confirmations      *uint64         `json:"confirmations"`
	Err                json.RawMessage `json:"err"`
	ConfirmationStatus string          `json:"confirmationStatus"`
}

// Failed reports whether the status carries a transaction error.
func (s *SignatureStatus) Failed() bool {
	return len(s.Err) > 0 && string(s.Err) != "null"
}

// Reached reports whether the status satisfies the given commitment.
func (s *SignatureStatus) Reached(commitment string) bool {
	rank := map[string]int{CommitmentProcessed: 0, CommitmentConfirmed: 1, CommitmentFinalized: 2}
	want, ok := rank[commitment]
	if !ok {
		want = 1
	}
	got, ok := rank[s.ConfirmationStatus]
	if !ok {
		// Older nodes omit confirmationStatus; nil confirmations means rooted.
		if s.Confirmations == nil {
			got = 2
		} else {
			got = 0
		}
	}
	return got >= want
}

// GetSignatureStatuses returns one entry per signature, nil where the
// endpoint has no record. Callers must keep len(sigs) <= MaxStatusBatch.
func (c *Client) GetSignatureStatuses(ctx context.Context, sigs []string) ([]*SignatureStatus, error) {
	var res struct {
		Value []*SignatureStatus `json:"value"`
	}
	err := c.Call(ctx, "getSignatureStatuses", []any{sigs, map[string]bool{"searchTransactionHistory": false}}, &res)
	return res.Value, err
}

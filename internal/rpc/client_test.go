package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func rpcServer(t *testing.T, handle func(method string, params json.RawMessage) (any, *Error)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     uint64          `json:"id"`
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		res, rerr := handle(req.Method, req.Params)
		out := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		if rerr != nil {
			out["error"] = rerr
		} else {
			out["result"] = res
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGetLatestBlockhash(t *testing.T) {
	srv := rpcServer(t, func(method string, _ json.RawMessage) (any, *Error) {
		require.Equal(t, "getLatestBlockhash", method)
		return map[string]any{
			"context": map[string]any{"slot": 42},
			"value":   map[string]any{"blockhash": "abc", "lastValidBlockHeight": 150},
		}, nil
	})
	c := New(Config{URL: srv.URL})
	bh, err := c.GetLatestBlockhash(context.Background(), CommitmentConfirmed)
	require.NoError(t, err)
	require.Equal(t, LatestBlockhash{Slot: 42, Blockhash: "abc", LastValidBlockHeight: 150}, bh)
}

func TestCall_RPCError(t *testing.T) {
	srv := rpcServer(t, func(string, json.RawMessage) (any, *Error) {
		return nil, &Error{Code: -32002, Message: "preflight failure"}
	})
	c := New(Config{URL: srv.URL})
	_, err := c.SendTransaction(context.Background(), []byte{1, 2}, CommitmentConfirmed)
	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, -32002, rerr.Code)
}

func TestCall_HTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()
	c := New(Config{URL: srv.URL})
	_, err := c.GetBlockHeight(context.Background(), "")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	require.Equal(t, http.StatusTooManyRequests, se.Code)
}

func TestGetSignatureStatuses(t *testing.T) {
	srv := rpcServer(t, func(method string, params json.RawMessage) (any, *Error) {
		var p []json.RawMessage
		require.NoError(t, json.Unmarshal(params, &p))
		var sigs []string
		require.NoError(t, json.Unmarshal(p[0], &sigs))
		require.Equal(t, []string{"a", "b", "c"}, sigs)
		return map[string]any{"value": []any{
			map[string]any{"slot": 1, "confirmations": 0, "err": nil, "confirmationStatus": "confirmed"},
			nil,
			map[string]any{"slot": 2, "confirmations": nil, "err": map[string]any{"InstructionError": []any{0, "Custom"}}, "confirmationStatus": "finalized"},
		}}, nil
	})
	c := New(Config{URL: srv.URL})
	st, err := c.GetSignatureStatuses(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, st, 3)
	require.True(t, st[0].Reached(CommitmentConfirmed))
	require.False(t, st[0].Reached(CommitmentFinalized))
	require.False(t, st[0].Failed())
	require.Nil(t, st[1])
	require.True(t, st[2].Failed())
}

func TestCall_Unreachable(t *testing.T) {
	c := New(Config{URL: "http://127.0.0.1:1"})
	_, err := c.GetBlockHeight(context.Background(), "")
	require.Error(t, err)
	var rerr *Error
	require.False(t, errors.As(err, &rerr))
}

func TestError_BlockhashNotFound(t *testing.T) {
	cases := []struct {
		err  Error
		want bool
	}{
		{Error{Code: CodeSendTransactionPreflightFailure, Message: "Transaction simulation failed: Blockhash not found"}, true},
		{Error{Code: CodeSendTransactionPreflightFailure, Message: "Transaction simulation failed", Data: []byte(`{"err":"BlockhashNotFound"}`)}, true},
		{Error{Code: CodeSendTransactionPreflightFailure, Message: "Transaction simulation failed", Data: []byte(`{"err":"InsufficientFundsForFee"}`)}, false},
		{Error{Code: -32602, Message: "Blockhash not found"}, false},
	}
	for i, c := range cases {
		if got := c.err.BlockhashNotFound(); got != c.want {
			t.Fatalf("case %d: got %v want %v", i, got, c.want)
		}
	}
}

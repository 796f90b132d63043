// Package rpc is a JSON-RPC 2.0 client for the cluster's generic endpoint.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/zmlAEQ/pingburst/pkg/metrics"
)

// Error is a JSON-RPC error object returned by the endpoint. It means the
// request reached the cluster and was refused.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string { return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message) }

// CodeSendTransactionPreflightFailure is returned when simulation of a
// submitted transaction fails; Data carries the transaction error.
const CodeSendTransactionPreflightFailure = -32002

// BlockhashNotFound reports a preflight failure caused by an unknown or
// lapsed recent blockhash. Unlike other refusals, a resigned copy can land.
func (e *Error) BlockhashNotFound() bool {
	if e.Code != CodeSendTransactionPreflightFailure {
		return false
	}
	return strings.Contains(e.Message, "Blockhash not found") || bytes.Contains(e.Data, []byte("BlockhashNotFound"))
}

// StatusError is a non-200 HTTP reply.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string { return fmt.Sprintf("http status %d: %s", e.Code, e.Body) }

// Config tunes a Client. Zero fields take defaults.
type Config struct {
	URL     string
	Timeout time.Duration
	// RateLimit caps requests per second; 0 disables the limit.
	RateLimit float64
	Burst     int
}

type Client struct {
	url     string
	http    *http.Client
	limiter *rate.Limiter
	nextID  atomic.Uint64
}

func New(cfg Config) *Client {
	c := &Client{url: cfg.URL, http: NewHTTPClient(cfg.Timeout)}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = int(cfg.RateLimit) + 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return c
}

// URL returns the endpoint address.
func (c *Client) URL() string { return c.url }

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type response struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *Error          `json:"error"`
}

// Call invokes method and decodes the result into out (which may be nil).
// Endpoint refusals are returned as *Error; anything else is a transport
// failure.
func (c *Client) Call(ctx context.Context, method string, params any, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	body, err := json.Marshal(request{JSONRPC: "2.0", ID: c.nextID.Add(1), Method: method, Params: params})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.Inc("rpc_requests_total", map[string]string{"method": method, "result": "transport_error"})
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		metrics.Inc("rpc_requests_total", map[string]string{"method": method, "result": "transport_error"})
		return err
	}
	metrics.ObserveSummary("rpc_request_ms", map[string]string{"method": method}, float64(time.Since(start).Milliseconds()))
	if resp.StatusCode != http.StatusOK {
		metrics.Inc("rpc_requests_total", map[string]string{"method": method, "result": "http_error"})
		if len(raw) > 256 {
			raw = raw[:256]
		}
		return &StatusError{Code: resp.StatusCode, Body: string(raw)}
	}
	var r response
	if err := json.Unmarshal(raw, &r); err != nil {
		metrics.Inc("rpc_requests_total", map[string]string{"method": method, "result": "decode_error"})
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if r.Error != nil {
		metrics.Inc("rpc_requests_total", map[string]string{"method": method, "result": "rpc_error"})
		return r.Error
	}
	metrics.Inc("rpc_requests_total", map[string]string{"method": method, "result": "ok"})
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(r.Result, out); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

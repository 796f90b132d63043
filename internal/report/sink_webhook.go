package report

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/zmlAEQ/pingburst/pkg/logger"
)

// WebhookSink posts a Summary to a configured endpoint; best-effort.
type WebhookSink struct {
	URL     string
	Timeout time.Duration
}

func (w WebhookSink) Publish(ctx context.Context, s Summary) {
	if w.URL == "" {
		return
	}
	body, err := json.Marshal(s)
	if err != nil {
		logger.ErrorJ("report_webhook", map[string]any{"result": "marshal_error", "err": err.Error()})
		return
	}
	ctx, cancel := context.WithTimeout(ctx, w.timeout())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		logger.ErrorJ("report_webhook", map[string]any{"result": "request_error", "err": err.Error()})
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		logger.ErrorJ("report_webhook", map[string]any{"result": "post_error", "err": err.Error()})
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		logger.ErrorJ("report_webhook", map[string]any{"result": "remote_error", "code": resp.StatusCode})
		return
	}
	logger.InfoJ("report_webhook", map[string]any{"result": "ok", "code": resp.StatusCode, "trace_id": s.TraceID})
}

func (w WebhookSink) timeout() time.Duration {
	if w.Timeout > 0 {
		return w.Timeout
	}
	return 500 * time.Millisecond
}

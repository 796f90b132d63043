package confirm

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zmlAEQ/pingburst/internal/payload"
	"github.com/zmlAEQ/pingburst/internal/rpc"
	"github.com/zmlAEQ/pingburst/pkg/logger"
	"github.com/zmlAEQ/pingburst/pkg/metrics"
)

// Subscriber receives confirmations over the endpoint's websocket push feed,
// one signatureSubscribe per signature on a connection owned by the watch.
type Subscriber struct {
	url          string
	commitment   string
	dialer       *websocket.Dialer
	writeTimeout time.Duration
}

var _ Tracker = (*Subscriber)(nil)

func NewSubscriber(url, commitment string) *Subscriber {
	if commitment == "" {
		commitment = rpc.CommitmentConfirmed
	}
	return &Subscriber{
		url:          url,
		commitment:   commitment,
		dialer:       &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		writeTimeout: 2 * time.Second,
	}
}

type wsRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type wsMessage struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpc.Error      `json:"error"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type signatureNotification struct {
	Result struct {
		Context struct {
			Slot uint64 `json:"slot"`
		} `json:"context"`
		Value struct {
			Err json.RawMessage `json:"err"`
		} `json:"value"`
	} `json:"result"`
	Subscription uint64 `json:"subscription"`
}

// watch is the state of one Watch call.
type watch struct {
	s    *Subscriber
	conn *websocket.Conn
	sigs []payload.Signature
	out  chan Update

	mu     sync.Mutex
	active map[uint64]payload.Signature // subscription id -> signature
}

func (s *Subscriber) Watch(ctx context.Context, sigs []payload.Signature) (<-chan Update, error) {
	out := make(chan Update, len(sigs))
	if len(sigs) == 0 {
		close(out)
		return out, nil
	}
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return nil, err
	}
	w := &watch{s: s, conn: conn, sigs: sigs, out: out, active: map[uint64]payload.Signature{}}
	for i, sig := range sigs {
		err := w.write(wsRequest{
			JSONRPC: "2.0",
			ID:      uint64(i + 1),
			Method:  "signatureSubscribe",
			Params:  []any{sig.String(), map[string]string{"commitment": s.commitment}},
		})
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		w.read()
	}()
	go func() {
		select {
		case <-ctx.Done():
		case <-readerDone:
		}
		w.release()
		<-readerDone
		close(out)
	}()
	return out, nil
}

func (w *watch) write(v any) error {
	_ = w.conn.SetWriteDeadline(time.Now().Add(w.s.writeTimeout))
	return w.conn.WriteJSON(v)
}

func (w *watch) read() {
	reported := make(map[payload.Signature]struct{}, len(w.sigs))
	for len(reported) < len(w.sigs) {
		var m wsMessage
		if err := w.conn.ReadJSON(&m); err != nil {
			return
		}
		switch {
		case m.Method == "signatureNotification":
			var n signatureNotification
			if err := json.Unmarshal(m.Params, &n); err != nil {
				continue
			}
			w.mu.Lock()
			sig, ok := w.active[n.Subscription]
			// The endpoint drops a signature subscription after notifying.
			delete(w.active, n.Subscription)
			w.mu.Unlock()
			if !ok {
				continue
			}
			if _, dup := reported[sig]; dup {
				continue
			}
			reported[sig] = struct{}{}
			u := Update{Signature: sig, Status: Confirmed, Slot: n.Result.Context.Slot}
			if len(n.Result.Value.Err) > 0 && string(n.Result.Value.Err) != "null" {
				u.Status, u.Err = Failed, txError(n.Result.Value.Err)
			}
			metrics.Inc("confirm_updates_total", map[string]string{"tracker": "ws", "status": u.Status.String()})
			w.out <- u
		case m.ID > 0 && m.ID <= uint64(len(w.sigs)):
			if m.Error != nil {
				logger.WarnJ("confirm_subscribe", map[string]any{"result": "error", "signature": w.sigs[m.ID-1].String(), "err": m.Error})
				continue
			}
			var subID uint64
			if err := json.Unmarshal(m.Result, &subID); err != nil {
				continue
			}
			w.mu.Lock()
			w.active[subID] = w.sigs[m.ID-1]
			w.mu.Unlock()
		}
	}
}

// release unsubscribes whatever is still active and closes the connection,
// which also stops the reader.
func (w *watch) release() {
	w.mu.Lock()
	ids := make([]uint64, 0, len(w.active))
	for id := range w.active {
		ids = append(ids, id)
	}
	w.active = map[uint64]payload.Signature{}
	w.mu.Unlock()
	next := uint64(len(w.sigs))
	for _, id := range ids {
		next++
		if err := w.write(wsRequest{JSONRPC: "2.0", ID: next, Method: "signatureUnsubscribe", Params: []any{id}}); err != nil {
			break
		}
	}
	if len(ids) > 0 {
		metrics.Add("confirm_unsubscribe_total", nil, float64(len(ids)))
		logger.InfoJ("confirm_release", map[string]any{"unsubscribed": len(ids)})
	}
	_ = w.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(w.s.writeTimeout))
	_ = w.conn.Close()
}

package confirm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/zmlAEQ/pingburst/internal/payload"
)

// wsCluster is a push endpoint that notifies the signatures in land (with an
// optional error) and records unsubscribed subscription ids.
type wsCluster struct {
	land         map[string]string // signature -> err json ("null" for success)
	unsubscribed chan uint64
}

func (c *wsCluster) serve(t *testing.T) *httptest.Server {
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var req struct {
				ID     uint64            `json:"id"`
				Method string            `json:"method"`
				Params []json.RawMessage `json:"params"`
			}
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			switch req.Method {
			case "signatureSubscribe":
				var sig string
				_ = json.Unmarshal(req.Params[0], &sig)
				sub := req.ID + 100
				_ = conn.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": sub})
				if e, ok := c.land[sig]; ok {
					_ = conn.WriteJSON(map[string]any{
						"jsonrpc": "2.0",
						"method":  "signatureNotification",
						"params": map[string]any{
							"result":       map[string]any{"context": map[string]any{"slot": 5}, "value": map[string]any{"err": json.RawMessage(e)}},
							"subscription": sub,
						},
					})
				}
			case "signatureUnsubscribe":
				var sub uint64
				_ = json.Unmarshal(req.Params[0], &sub)
				c.unsubscribed <- sub
				_ = conn.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": true})
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string { return "ws" + strings.TrimPrefix(srv.URL, "http") }

func TestSubscriber_NotifiesAndReleasesOutstanding(t *testing.T) {
	a, b, c := payload.Signature{1}, payload.Signature{2}, payload.Signature{3}
	cl := &wsCluster{
		land:         map[string]string{a.String(): "null", b.String(): `{"InstructionError":[0,"Custom"]}`},
		unsubscribed: make(chan uint64, 8),
	}
	srv := cl.serve(t)

	s := NewSubscriber(wsURL(srv), "")
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := s.Watch(ctx, []payload.Signature{a, b, c})
	require.NoError(t, err)

	got := map[payload.Signature]Update{}
	for len(got) < 2 {
		select {
		case u := <-ch:
			got[u.Signature] = u
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for notifications, got %d", len(got))
		}
	}
	require.Equal(t, Confirmed, got[a].Status)
	require.Equal(t, Failed, got[b].Status)
	require.ErrorIs(t, got[b].Err, ErrTransactionFailed)

	cancel()
	require.Empty(t, collect(t, ch, 2*time.Second))
	select {
	case sub := <-cl.unsubscribed:
		require.Equal(t, uint64(3+100), sub, "only the unconfirmed subscription is released")
	case <-time.After(2 * time.Second):
		t.Fatalf("outstanding subscription was not released")
	}
}

func TestSubscriber_ClosesWhenAllReported(t *testing.T) {
	a := payload.Signature{9}
	cl := &wsCluster{land: map[string]string{a.String(): "null"}, unsubscribed: make(chan uint64, 1)}
	srv := cl.serve(t)
	ch, err := NewSubscriber(wsURL(srv), "").Watch(context.Background(), []payload.Signature{a})
	require.NoError(t, err)
	ups := collect(t, ch, 2*time.Second)
	require.Len(t, ups, 1)
	require.Equal(t, a, ups[0].Signature)
}

func TestSubscriber_DialError(t *testing.T) {
	_, err := NewSubscriber("ws://127.0.0.1:1", "").Watch(context.Background(), []payload.Signature{{1}})
	require.Error(t, err)
}

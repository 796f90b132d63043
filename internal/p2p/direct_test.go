package p2p

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	p2phost "github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	mocknet "github.com/libp2p/go-libp2p/p2p/net/mock"
	"github.com/libp2p/go-msgio"
	"github.com/stretchr/testify/require"

	"github.com/zmlAEQ/pingburst/internal/p2p/wire"
	"github.com/zmlAEQ/pingburst/internal/payload"
	"github.com/zmlAEQ/pingburst/internal/signer"
	"github.com/zmlAEQ/pingburst/internal/transport"
	"github.com/zmlAEQ/pingburst/pkg/metrics"
)

// serveLeader records every transaction written to the leader's tx protocol.
func serveLeader(h p2phost.Host) <-chan *payload.Transaction {
	got := make(chan *payload.Transaction, 64)
	h.SetStreamHandler(ProtocolTx, func(s network.Stream) {
		defer s.Close()
		r := msgio.NewVarintReaderSize(s, 1<<20)
		for {
			b, err := r.ReadMsg()
			if err != nil {
				return
			}
			var env wire.TxEnvelope
			err = json.Unmarshal(b, &env)
			r.ReleaseMsg(b)
			if err != nil {
				continue
			}
			if tx, err := env.ToInternal(); err == nil {
				got <- tx
			}
		}
	})
	return got
}

func pair(t *testing.T, link bool) (client, leader p2phost.Host) {
	t.Helper()
	mn := mocknet.New()
	t.Cleanup(func() { _ = mn.Close() })
	client, err := mn.GenPeer()
	require.NoError(t, err)
	leader, err = mn.GenPeer()
	require.NoError(t, err)
	if link {
		require.NoError(t, mn.LinkAll())
	}
	return client, leader
}

func leaderAddr(h p2phost.Host) string {
	return fmt.Sprintf("%s/p2p/%s", h.Addrs()[0], h.ID())
}

func pings(t *testing.T, n int) []*payload.Transaction {
	t.Helper()
	k, err := signer.Generate()
	require.NoError(t, err)
	txs, errs := payload.BuildBatch(context.Background(), payload.PingBatch(k.PublicKey(), n), payload.Hash{9}, []payload.Signer{k})
	for _, e := range errs {
		require.NoError(t, e)
	}
	return txs
}

func TestDirectTransport_ReusesOneStream(t *testing.T) {
	metrics.Reset()
	client, leader := pair(t, true)
	got := serveLeader(leader)

	tr := NewDirect(NetConfig{Leader: leaderAddr(leader)}, WithHost(client))
	require.NoError(t, tr.Start(context.Background()))
	defer func() { _ = tr.Stop(context.Background()) }()

	txs := pings(t, 3)
	for _, tx := range txs {
		require.Equal(t, transport.Accepted, tr.Submit(context.Background(), tx).Kind)
	}
	seen := map[payload.Signature]bool{}
	for range txs {
		select {
		case tx := <-got:
			seen[tx.ID()] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("leader received %d of %d", len(seen), len(txs))
		}
	}
	for _, tx := range txs {
		require.True(t, seen[tx.ID()])
	}
	dump := metrics.DumpProm()
	require.Contains(t, dump, `p2p_stream_open_total{result="ok"} 1`)
	require.Contains(t, dump, `transport_submit_total{mode="direct",result="accepted"} 3`)
}

func TestDirectTransport_UnreachableLeader(t *testing.T) {
	client, leader := pair(t, false)
	tr := NewDirect(NetConfig{Leader: leaderAddr(leader), DialTimeout: 200 * time.Millisecond}, WithHost(client))
	require.NoError(t, tr.Start(context.Background()), "an unreachable leader is not a start failure")
	defer func() { _ = tr.Stop(context.Background()) }()

	res := tr.Submit(context.Background(), pings(t, 1)[0])
	require.Equal(t, transport.Unreachable, res.Kind)
	require.Error(t, res.Reason)
}

func TestDirectTransport_NotStarted(t *testing.T) {
	tr := NewDirect(NetConfig{})
	res := tr.Submit(context.Background(), pings(t, 1)[0])
	require.Equal(t, transport.Unreachable, res.Kind)
	require.ErrorIs(t, res.Reason, errNotStarted)
}

func TestParseLeader(t *testing.T) {
	_, err := ParseLeader("")
	require.Error(t, err)
	_, err = ParseLeader("/ip4/127.0.0.1/tcp/8000")
	require.Error(t, err, "address without /p2p/ component")
	_, err = ParseLeader("not-a-multiaddr")
	require.True(t, err != nil && strings.Contains(err.Error(), "parse leader"))
}

package p2p

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	libp2p "github.com/libp2p/go-libp2p"
	p2phost "github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/peerstore"
	"github.com/libp2p/go-msgio"
	ma "github.com/multiformats/go-multiaddr"
	"golang.org/x/sync/singleflight"

	"github.com/zmlAEQ/pingburst/internal/p2p/wire"
	"github.com/zmlAEQ/pingburst/internal/payload"
	"github.com/zmlAEQ/pingburst/internal/transport"
	"github.com/zmlAEQ/pingburst/pkg/logger"
	"github.com/zmlAEQ/pingburst/pkg/metrics"
)

var errNotStarted = errors.New("direct transport not started")

// DirectTransport keeps one long-lived libp2p stream to the leader and writes
// each transaction to it as a varint-framed envelope. Writes are serialized on
// the stream; a broken stream is reopened once per submission. Reopening runs
// outside both locks and concurrent submitters share a single dial.
type DirectTransport struct {
	cfg      NetConfig
	host     p2phost.Host
	ownsHost bool
	lim      *transport.Limiter
	dial     singleflight.Group

	mu     sync.Mutex // guards leader and the current stream
	leader *peer.AddrInfo
	stream network.Stream
	w      msgio.WriteCloser

	wmu sync.Mutex // serializes frames on the stream
}

type leaderStream struct {
	s network.Stream
	w msgio.WriteCloser
}

var _ transport.Transport = (*DirectTransport)(nil)

// Option customizes a DirectTransport.
type Option func(*DirectTransport)

// WithHost reuses an existing host instead of creating one on Start. The
// caller keeps ownership of it.
func WithHost(h p2phost.Host) Option { return func(t *DirectTransport) { t.host = h } }

func NewDirect(cfg NetConfig, opts ...Option) *DirectTransport {
	cfg = cfg.withDefaults()
	t := &DirectTransport{cfg: cfg, lim: transport.NewLimiter(cfg.MaxInFlight, string(transport.ModeDirect))}
	for _, o := range opts {
		o(t)
	}
	return t
}

func (t *DirectTransport) Name() string { return string(transport.ModeDirect) }

func (t *DirectTransport) Start(ctx context.Context) error {
	info, err := ParseLeader(t.cfg.Leader)
	if err != nil {
		return err
	}
	if t.host == nil {
		opts := []libp2p.Option{libp2p.NoListenAddrs}
		if len(t.cfg.Listen) > 0 {
			var addrs []ma.Multiaddr
			for _, s := range t.cfg.Listen {
				if strings.TrimSpace(s) == "" {
					continue
				}
				a, err := ma.NewMultiaddr(s)
				if err != nil {
					return err
				}
				addrs = append(addrs, a)
			}
			if len(addrs) > 0 {
				opts = []libp2p.Option{libp2p.ListenAddrs(addrs...)}
			}
		}
		h, err := libp2p.New(opts...)
		if err != nil {
			return err
		}
		t.host = h
		t.ownsHost = true
	}
	t.host.Peerstore().AddAddrs(info.ID, info.Addrs, peerstore.PermanentAddrTTL)

	t.mu.Lock()
	t.leader = &info
	t.mu.Unlock()
	// Warm the channel so the first round pays no handshake. Failure here is
	// not fatal: Submit retries and reports Unreachable.
	if _, err := t.current(ctx); err != nil {
		logger.WarnJ("p2p_start", map[string]any{"result": "leader_unreachable", "leader": info.ID.String(), "err": err})
	} else {
		logger.InfoJ("p2p_start", map[string]any{"result": "ok", "self_id": t.host.ID().String(), "leader": info.ID.String()})
	}
	return nil
}

func (t *DirectTransport) Stop(_ context.Context) error {
	t.mu.Lock()
	if t.stream != nil {
		_ = t.stream.Close()
		t.stream, t.w = nil, nil
	}
	t.leader = nil
	t.mu.Unlock()
	if t.ownsHost && t.host != nil {
		return t.host.Close()
	}
	return nil
}

func (t *DirectTransport) Submit(ctx context.Context, tx *payload.Transaction) transport.Result {
	res := t.submit(ctx, tx)
	metrics.Inc("transport_submit_total", map[string]string{"mode": t.Name(), "result": res.Kind.String()})
	return res
}

func (t *DirectTransport) submit(ctx context.Context, tx *payload.Transaction) transport.Result {
	if err := t.lim.Acquire(ctx); err != nil {
		return transport.Undelivered(err)
	}
	defer t.lim.Release()

	b, err := json.Marshal(wire.TxFromInternal(tx))
	if err != nil {
		return transport.Reject(err)
	}

	var last error
	for attempt := 0; attempt < 2; attempt++ {
		ls, err := t.current(ctx)
		if err != nil {
			return transport.Undelivered(err)
		}
		t.wmu.Lock()
		_ = ls.s.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
		err = ls.w.WriteMsg(b)
		t.wmu.Unlock()
		if err != nil {
			last = err
			metrics.Inc(MetricP2PMessagesTotal, map[string]string{"direction": "tx", "result": "error"})
			logger.WarnJ("p2p_write", map[string]any{"result": "error", "attempt": attempt, "err": err})
			t.dropStream(ls.s)
			continue
		}
		metrics.Inc(MetricP2PMessagesTotal, map[string]string{"direction": "tx", "result": "ok"})
		metrics.Add(MetricP2PBytesTotal, map[string]string{"direction": "tx"}, float64(len(b)))
		return transport.Accept()
	}
	return transport.Undelivered(last)
}

// current returns the open leader stream, dialing it if there is none.
func (t *DirectTransport) current(ctx context.Context) (leaderStream, error) {
	t.mu.Lock()
	ls := leaderStream{s: t.stream, w: t.w}
	t.mu.Unlock()
	if ls.w != nil {
		return ls, nil
	}
	ch := t.dial.DoChan("leader", func() (any, error) { return t.open() })
	select {
	case r := <-ch:
		if r.Err != nil {
			return leaderStream{}, r.Err
		}
		return r.Val.(leaderStream), nil
	case <-ctx.Done():
		return leaderStream{}, ctx.Err()
	}
}

// open dials the leader and installs the new stream. It runs at most once at
// a time and is bounded by DialTimeout rather than any one caller's context.
func (t *DirectTransport) open() (leaderStream, error) {
	t.mu.Lock()
	if t.w != nil {
		ls := leaderStream{s: t.stream, w: t.w}
		t.mu.Unlock()
		return ls, nil
	}
	host, leader := t.host, t.leader
	t.mu.Unlock()
	if host == nil || leader == nil {
		return leaderStream{}, errNotStarted
	}

	dctx, cancel := context.WithTimeout(context.Background(), t.cfg.DialTimeout)
	defer cancel()
	if err := host.Connect(dctx, *leader); err != nil {
		metrics.Inc(MetricP2PStreamOpen, map[string]string{"result": "dial_error"})
		return leaderStream{}, err
	}
	s, err := host.NewStream(dctx, leader.ID, ProtocolTx)
	if err != nil {
		metrics.Inc(MetricP2PStreamOpen, map[string]string{"result": "stream_error"})
		return leaderStream{}, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.leader == nil {
		// stopped while dialing
		_ = s.Reset()
		return leaderStream{}, errNotStarted
	}
	metrics.Inc(MetricP2PStreamOpen, map[string]string{"result": "ok"})
	t.stream = s
	t.w = msgio.NewVarintWriter(s)
	return leaderStream{s: s, w: t.w}, nil
}

// dropStream resets s if it is still the current stream; a stream already
// replaced by another submitter is left alone.
func (t *DirectTransport) dropStream(s network.Stream) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stream != s {
		return
	}
	_ = s.Reset()
	t.stream, t.w = nil, nil
}

package p2p

import (
	"fmt"
	"strings"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	ma "github.com/multiformats/go-multiaddr"
)

// ProtocolTx is the stream protocol the leader accepts transactions on.
const ProtocolTx protocol.ID = "/pingburst/tx/1.0.0"

// ParseLeader decodes a leader multiaddr that ends in /p2p/<peer-id>.
func ParseLeader(addr string) (peer.AddrInfo, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return peer.AddrInfo{}, fmt.Errorf("empty leader address")
	}
	m, err := ma.NewMultiaddr(addr)
	if err != nil {
		return peer.AddrInfo{}, fmt.Errorf("parse leader %q: %w", addr, err)
	}
	info, err := peer.AddrInfoFromP2pAddr(m)
	if err != nil {
		return peer.AddrInfo{}, fmt.Errorf("parse leader %q: %w", addr, err)
	}
	return *info, nil
}

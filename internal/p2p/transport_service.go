package p2p

import (
	"context"

	"github.com/zmlAEQ/pingburst/pkg/lifecycle"
)

// NetService is a thin lifecycle wrapper for a DirectTransport.
type NetService struct{ t *DirectTransport }

func NewNetService(t *DirectTransport) *NetService { return &NetService{t: t} }

func (s *NetService) Name() string                    { return "p2p-direct" }
func (s *NetService) Start(ctx context.Context) error { return s.t.Start(ctx) }
func (s *NetService) Stop(ctx context.Context) error  { return s.t.Stop(ctx) }

var _ lifecycle.Service = (*NetService)(nil)

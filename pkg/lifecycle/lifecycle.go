// Package lifecycle starts and stops long-running services in order.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/zmlAEQ/pingburst/pkg/logger"
)

// Service is anything with a start/stop lifecycle.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Manager starts services in registration order and stops them in reverse.
type Manager struct {
	mu      sync.Mutex
	svcs    []Service
	started []Service
}

func New() *Manager { return &Manager{} }

func (m *Manager) Add(s Service) {
	if s == nil {
		return
	}
	m.mu.Lock()
	m.svcs = append(m.svcs, s)
	m.mu.Unlock()
}

// StartAll starts every service. If one fails, the ones already started are
// stopped and the error is returned.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.svcs {
		if err := s.Start(ctx); err != nil {
			logger.ErrorJ("lifecycle", map[string]any{"op": "start", "service": s.Name(), "result": "error", "err": err})
			_ = m.stopStarted(ctx)
			return fmt.Errorf("start %s: %w", s.Name(), err)
		}
		m.started = append(m.started, s)
		logger.InfoJ("lifecycle", map[string]any{"op": "start", "service": s.Name(), "result": "ok"})
	}
	return nil
}

// StopAll stops started services in reverse order and joins their errors.
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopStarted(ctx)
}

func (m *Manager) stopStarted(ctx context.Context) error {
	var errs []error
	for i := len(m.started) - 1; i >= 0; i-- {
		s := m.started[i]
		if err := s.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", s.Name(), err))
		}
	}
	m.started = nil
	return errors.Join(errs...)
}

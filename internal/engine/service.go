package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	logx "chimebot/pkg/logx"
)

// Service is one scheduler instance. Exactly one loop goroutine runs between
// Start and Stop; ticks never overlap because the loop body completes before
// the next wait begins.
type Service struct {
	cfg  Config
	deps Deps
	log  logx.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	// pollCh lets Apply shorten or lengthen the cadence of a running loop.
	pollCh chan time.Duration
}

func New(cfg Config, deps Deps) (*Service, error) {
	if deps.Store == nil {
		return nil, errors.New("engine: store is required")
	}
	if deps.Messenger == nil {
		return nil, errors.New("engine: messenger is required")
	}
	if deps.Registry == nil {
		return nil, errors.New("engine: registry is required")
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:    cfg,
		deps:   deps,
		log:    log,
		pollCh: make(chan time.Duration, 1),
	}, nil
}

// Start spawns the loop goroutine. Idempotent: a second Start while running
// is a no-op.
func (s *Service) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	go s.run(ctx, stopCh, doneCh)
	s.log.Info("scheduler started", logx.Duration("poll_interval", s.cfg.pollInterval()))
	return nil
}

// Stop signals the loop and waits (bounded by ctx) for the in-flight tick to
// finish. Stop before Start and double Stop are no-ops.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	doneCh := s.doneCh
	s.mu.Unlock()

	select {
	case <-doneCh:
		s.log.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out", logx.Err(ctx.Err()))
		return ctx.Err()
	}
}

// Apply updates the poll cadence of a running loop. Safe to call anytime.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	// Drop-oldest so a burst of reloads keeps only the latest value.
	select {
	case s.pollCh <- cfg.pollInterval():
	default:
		select {
		case <-s.pollCh:
		default:
		}
		select {
		case s.pollCh <- cfg.pollInterval():
		default:
		}
	}
}

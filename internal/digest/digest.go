// Package digest posts a periodic schedule digest to configured ops
// channels. Unlike the engine's user-authored events, its cadence is a fixed
// cron spec from config.
package digest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"

	"chimebot/internal/chat"
	logx "chimebot/pkg/logx"
)

// Renderer produces the digest text for one channel.
// reports.Reports.RenderDigest satisfies this.
type Renderer func(ctx context.Context, ref chat.ChannelRef) (string, error)

type Config struct {
	Enabled  bool
	Spec     string // 5-field cron spec; default "0 9 * * 1" (Monday 09:00)
	Channels []chat.ChannelRef
}

const defaultSpec = "0 9 * * 1"

type Service struct {
	cfg    Config
	sender chat.Sender
	render Renderer
	log    logx.Logger

	mu sync.Mutex
	c  *cron.Cron
}

func New(cfg Config, sender chat.Sender, render Renderer, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, sender: sender, render: render, log: log}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// ValidateSpec checks a cron spec without starting anything. Used by config
// validation so a bad spec is rejected at reload time.
func ValidateSpec(spec string) error {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil
	}
	_, err := cron.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("invalid digest cron spec %q: %w", spec, err)
	}
	return nil
}

// Start schedules the digest job. Idempotent while running.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}

	spec := strings.TrimSpace(s.cfg.Spec)
	if spec == "" {
		spec = defaultSpec
	}

	c := cron.New() // standard 5-field parser
	if _, err := c.AddFunc(spec, func() { s.post(ctx) }); err != nil {
		return fmt.Errorf("digest: %w", err)
	}
	s.c = c
	c.Start()
	s.log.Info("digest started",
		logx.String("spec", spec), logx.Int("channels", len(s.cfg.Channels)))
	return nil
}

// Stop halts the cron schedule and waits for an in-flight post to finish.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	s.log.Info("digest stopped")
	return nil
}

// Apply swaps config. A changed spec takes effect by restarting the cron
// schedule when the service is running.
func (s *Service) Apply(ctx context.Context, cfg Config) {
	s.mu.Lock()
	changed := strings.TrimSpace(cfg.Spec) != strings.TrimSpace(s.cfg.Spec)
	running := s.c != nil
	s.cfg = cfg
	s.mu.Unlock()

	if running && changed {
		_ = s.Stop(ctx)
		if err := s.Start(ctx); err != nil {
			s.log.Error("digest restart after config change failed", logx.Err(err))
		}
	}
}

// post renders and sends the digest to every configured channel. Per-channel
// errors are logged, never fatal.
func (s *Service) post(ctx context.Context) {
	s.mu.Lock()
	channels := s.cfg.Channels
	s.mu.Unlock()

	for _, ref := range channels {
		text, err := s.render(ctx, ref)
		if err != nil {
			s.log.Error("digest render failed", logx.String("channel", string(ref)), logx.Err(err))
			continue
		}
		if err := s.sender.Send(ctx, ref, text); err != nil {
			s.log.Error("digest send failed", logx.String("channel", string(ref)), logx.Err(err))
		}
	}
}

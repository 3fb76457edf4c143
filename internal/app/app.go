package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"chimebot/internal/chat"
	telegram "chimebot/internal/chat/telegram"
	"chimebot/internal/config"
	"chimebot/internal/digest"
	"chimebot/internal/engine"
	"chimebot/internal/eventbus"
	"chimebot/internal/reports"
	"chimebot/internal/runtime/supervisor"
	"chimebot/internal/store"
	logx "chimebot/pkg/logx"
)

// App is the composition root. New builds every component from the config
// file; Start spins them up; Stop unwinds them in reverse order.
type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store     store.Store
	messenger chat.Messenger

	registry *engine.Registry
	reports  *reports.Reports
	engine   *engine.Service
	digest   *digest.Service
}

func New(ctx context.Context, cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfgm.Commit(cfg)

	// Messenger first: the log service's chat sink sends through it.
	bootLog := logx.NewConsole(cfg.Logging.Level).With(logx.String("comp", "telegram"))
	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	msgr, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, bootLog)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogxConfig(cfg), msgr)
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	storeCfg := mapStoreConfig(cfg)
	st, err := store.Open(ctx, storeCfg, log.With(logx.String("comp", "store")))
	if err != nil {
		logSvc.Close()
		return nil, err
	}
	log.Info("store opened", logx.String("driver", storeCfg.Driver))

	registry := engine.NewRegistry()
	rep := reports.New(st, msgr, log.With(logx.String("comp", "reports")))
	if err := rep.RegisterAll(registry); err != nil {
		_ = st.Close()
		logSvc.Close()
		return nil, err
	}

	engCfg, err := mapEngineConfig(cfg)
	if err != nil {
		_ = st.Close()
		logSvc.Close()
		return nil, err
	}
	engSvc, err := engine.New(engCfg, engine.Deps{
		Store:     st,
		Messenger: msgr,
		Registry:  registry,
		Log:       log.With(logx.String("comp", "engine")),
		Bus:       bus,
	})
	if err != nil {
		_ = st.Close()
		logSvc.Close()
		return nil, err
	}

	digSvc := digest.New(mapDigestConfig(cfg), msgr, rep.RenderDigest,
		log.With(logx.String("comp", "digest")))

	return &App{
		cfgPath:   cfgPath,
		cfgm:      cfgm,
		log:       log,
		logs:      logSvc,
		bus:       bus,
		store:     st,
		messenger: msgr,
		registry:  registry,
		reports:   rep,
		engine:    engSvc,
		digest:    digSvc,
	}, nil
}

// Registry exposes the action registry so callers can add handlers beyond the
// built-in reports before Start.
func (a *App) Registry() *engine.Registry { return a.registry }

func (a *App) Store() store.Store { return a.store }

// Done is closed when the app supervisor context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	// Transactional config reload: validate before commit/publish.
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		if cfg.Digest.Enabled {
			if err := digest.ValidateSpec(cfg.Digest.Spec); err != nil {
				return fmt.Errorf("digest.spec: %w", err)
			}
		}
		return nil
	})

	if err := a.messenger.Start(a.sup.Context()); err != nil {
		return err
	}
	if err := a.engine.Start(a.sup.Context()); err != nil {
		return err
	}
	if a.digest.Enabled() {
		if err := a.digest.Start(a.sup.Context()); err != nil {
			a.log.Warn("digest start failed", logx.Err(err))
		}
	}

	// Log engine outcomes at debug for operational visibility.
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	// Hot reload fan-out.
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

// applyConfig pushes a validated config snapshot into the running components.
// Immutable settings (token, store) only log a restart-required warning.
func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	for _, s := range sections {
		if s == "store" {
			a.log.Warn("store config changed; restart required for changes to take effect")
		}
		if s == "telegram" {
			a.log.Warn("telegram config changed; restart required for changes to take effect")
		}
	}

	a.logs.Apply(mapLogxConfig(newCfg))

	if engCfg, err := mapEngineConfig(newCfg); err != nil {
		a.log.Warn("invalid engine config; keeping previous", logx.Err(err))
	} else {
		a.engine.Apply(engCfg)
	}

	prevDigest := a.digest.Enabled()
	a.digest.Apply(ctx, mapDigestConfig(newCfg))
	switch {
	case !prevDigest && a.digest.Enabled():
		a.log.Info("digest enabled via config")
		if err := a.digest.Start(ctx); err != nil {
			a.log.Warn("digest start failed", logx.Err(err))
		}
	case prevDigest && !a.digest.Enabled():
		a.log.Info("digest disabled via config")
		stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := a.digest.Stop(stopCtx); err != nil {
			a.log.Warn("digest stop failed", logx.Err(err))
		}
		cancel()
	}

	a.bus.Publish(eventbus.Event{Type: "config.updated", Data: sections})

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")

	// Cancel the run context first so background loops start unwinding.
	a.sup.Cancel()

	// Each shutdown step gets an upper bound so one component can't stall
	// the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			// Respect the caller's deadline; never extend it.
			if dl, ok := ctx.Deadline(); ok {
				rem := time.Until(dl)
				if rem <= 0 {
					max = 0
				} else if rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn(
				"stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("digest", 2*time.Second, func(c context.Context) error { return a.digest.Stop(c) })
	step("engine", 2*time.Second, func(c context.Context) error { return a.engine.Stop(c) })
	step("messenger", 2*time.Second, func(c context.Context) error { return a.messenger.Stop(c) })
	step("store", 1*time.Second, func(context.Context) error { return a.store.Close() })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}

// ---- config mapping ----

func mapLogxConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Chat: logx.ChatConfig{
			Enabled:    cfg.Logging.Chat.Enabled,
			Channel:    cfg.Logging.Chat.Channel,
			MinLevel:   cfg.Logging.Chat.MinLevel,
			RatePerSec: cfg.Logging.Chat.RatePerSec,
		},
	}
}

func mapStoreConfig(cfg *config.Config) store.Config {
	sc := store.Config{Driver: "sqlite", Path: "./chimebot.db"}
	if cfg.Store == nil {
		return sc
	}
	if d := strings.TrimSpace(cfg.Store.Driver); d != "" {
		sc.Driver = d
	}
	if p := strings.TrimSpace(cfg.Store.Path); p != "" {
		sc.Path = p
	}
	// Validated earlier; a parse failure here just keeps the default.
	if bt, err := config.ParseDurationField("store.busy_timeout", cfg.Store.BusyTimeout); err == nil {
		sc.BusyTimeout = bt
	}
	return sc
}

func mapEngineConfig(cfg *config.Config) (engine.Config, error) {
	poll, err := config.ParseDurationOrDefault("engine.poll_interval", cfg.Engine.PollInterval, time.Minute)
	if err != nil {
		return engine.Config{}, err
	}
	return engine.Config{PollInterval: poll}, nil
}

func mapDigestConfig(cfg *config.Config) digest.Config {
	channels := make([]chat.ChannelRef, 0, len(cfg.Digest.Channels))
	for _, c := range cfg.Digest.Channels {
		if s := strings.TrimSpace(c); s != "" {
			channels = append(channels, chat.ChannelRef(s))
		}
	}
	return digest.Config{
		Enabled:  cfg.Digest.Enabled,
		Spec:     cfg.Digest.Spec,
		Channels: channels,
	}
}

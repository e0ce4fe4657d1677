package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/IbragimovN/coachlast/internal/commands"
	"github.com/IbragimovN/coachlast/internal/config"
	"github.com/IbragimovN/coachlast/internal/eventbus"
	"github.com/IbragimovN/coachlast/internal/guidance"
	"github.com/IbragimovN/coachlast/internal/proactive"
	"github.com/IbragimovN/coachlast/internal/registry"
	rtsup "github.com/IbragimovN/coachlast/internal/runtime/supervisor"
	"github.com/IbragimovN/coachlast/internal/status"
	"github.com/IbragimovN/coachlast/internal/storage"
	"github.com/IbragimovN/coachlast/internal/task/engine"
	"github.com/IbragimovN/coachlast/internal/task/scheduler"
	kit "github.com/IbragimovN/coachlast/internal/transport"
	telegram "github.com/IbragimovN/coachlast/internal/transport/telegram/adapter"
	logx "github.com/IbragimovN/coachlast/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store
	reg   *registry.Registry

	adapter *telegram.Adapter

	engine *engine.Service
	sched  *scheduler.Service
	coord  *proactive.Coordinator
	guide  *guidance.Generator
	cmds   *commands.Handler
	status *status.Service

	statusOn bool
	updates  chan kit.Update
}

// NewApp loads configuration and state and wires every component. Nothing
// runs until Start. A missing token or a corrupt state file is fatal here.
func NewApp(ctx context.Context, cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.RequireToken(); err != nil {
		return nil, err
	}

	// The Telegram log sink needs the adapter, and the adapter needs a
	// logger, so the sender is attached once the adapter exists.
	logSvc, root := logx.New(cfg.LogConfig(), nil)
	log := root.With(logx.String("comp", "app"))

	adCfg, err := mapAdapterConfig(cfg)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(adCfg, root.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	logSvc.SetSender(kit.OperatorSender{Out: ad})

	bus := eventbus.New()

	sc, err := cfg.StoreConfig()
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, root.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	state, err := store.Load(ctx)
	if err != nil {
		_ = store.Close()
		if errors.Is(err, storage.ErrCorruptState) {
			return nil, fmt.Errorf("refusing to start with unreadable state: %w", err)
		}
		return nil, err
	}
	reg := registry.New(store, state, root.With(logx.String("comp", "registry")))
	log.Info("state loaded", logx.String("driver", sc.Driver), logx.Int("users", reg.Len()))

	engCfg, err := mapTaskEngineConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	engineSvc := engine.New(engCfg, root.With(logx.String("comp", "taskengine")), bus)

	schedCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	schedSvc, err := scheduler.New(schedCfg, engineSvc, root.With(logx.String("comp", "scheduler")))
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	coord, err := proactive.New(schedSvc, reg, kit.UserSender{Out: ad}, proactive.Options{
		Morning:           cfg.Coach.Morning,
		Evening:           cfg.Coach.Evening,
		MiddayPick:        cfg.Coach.MiddayPick,
		MiddayWindowStart: cfg.Coach.MiddayWindowStart,
		MiddayWindowEnd:   cfg.Coach.MiddayWindowEnd,
		Log:               root.With(logx.String("comp", "proactive")),
		Bus:               bus,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	backend, err := newBackend(ctx, cfg)
	if err != nil {
		// Guidance degrades to fallback text; it never blocks startup.
		log.Warn("guidance backend unavailable", logx.String("provider", cfg.ResolvedProvider()), logx.Err(err))
		backend = nil
	}
	gopts, err := mapGuidanceOptions(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	gopts.Log = root.With(logx.String("comp", "guidance"))
	guide := guidance.New(backend, gopts)
	if guide.Configured() {
		log.Info("guidance backend ready", logx.String("provider", guide.Provider()))
	} else {
		log.Warn("no guidance backend configured; using fallback replies")
	}

	cmds := commands.New(reg, coord, guide, ad, commands.Options{
		BotName:      cfg.BotName,
		BotUsername:  ad.Username(),
		SystemPrompt: cfg.Guidance.SystemPrompt,
		Location:     cfg.Location(),
		Log:          root.With(logx.String("comp", "commands")),
	})

	statusSvc := status.New(mapStatusConfig(cfg), status.Info{
		BotName:         cfg.BotName,
		TokenConfigured: true,
		Backend:         guide,
		Location:        cfg.Location(),
		Users:           reg.Len,
		Jobs:            func() int { return len(schedSvc.Names("")) },
		Tasks:           func() status.TaskStats { return taskStats(engineSvc, schedSvc) },
		NextRun:         schedSvc.NextRun,
	}, root.With(logx.String("comp", "status")))

	return &App{
		cfgm:     cfgm,
		log:      log,
		logs:     logSvc,
		bus:      bus,
		store:    store,
		reg:      reg,
		adapter:  ad,
		engine:   engineSvc,
		sched:    schedSvc,
		coord:    coord,
		guide:    guide,
		cmds:     cmds,
		status:   statusSvc,
		statusOn: cfg.StatusEnabled(),
		updates:  make(chan kit.Update, 256),
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
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
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if err := cfg.RequireToken(); err != nil {
			return err
		}
		if _, err := mapTaskEngineConfig(cfg); err != nil {
			return err
		}
		if _, err := mapSchedulerConfig(cfg); err != nil {
			return err
		}
		_, err := mapAdapterConfig(cfg)
		return err
	})

	a.engine.Start(a.sup.Context())

	// Jobs for known users exist before the first update is read.
	n, err := a.coord.InstallAll(a.sup.Context())
	if err != nil {
		a.log.Error("some users could not be scheduled", logx.Int("installed", n), logx.Err(err))
	}
	a.log.Info("proactive jobs installed", logx.Int("users", n), logx.Int("jobs", len(a.sched.Names(""))))

	menuCtx, cancel := context.WithTimeout(a.sup.Context(), 10*time.Second)
	if err := a.adapter.SetCommands(menuCtx, commands.Menu()); err != nil {
		a.log.Warn("menu update failed", logx.Err(err))
	}
	cancel()

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	a.sup.Go0("commands.dispatch", func(c context.Context) {
		a.cmds.Run(c, a.updates, a.engine)
	})

	// Debug-level event trace; frequent schedules would be noisy at info.
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
				a.log.Debug("event", logx.String("type", e.Type), logx.Any("data", e.Data), logx.Time("time", e.Time))
			}
		}
	})

	// hot reload config fan-out
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
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	if a.statusOn {
		a.status.Start(a.sup.Context())
	}

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("sd_notify failed", logx.Err(err))
	} else if sent {
		a.log.Debug("systemd notified ready")
	}

	a.log.Info("app started", logx.String("bot", a.adapter.Username()))
	return nil
}

// applyConfig applies the live-reloadable part of a new config. Only the
// logging block takes effect at runtime; anything else waits for a restart.
func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	ch := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(ch.Sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	changed := strings.Join(ch.Sections, ",")
	a.log.Debug("config change summary", append([]logx.Field{logx.String("changed", changed)}, ch.Attrs...)...)

	a.logs.Apply(newCfg.LogConfig())

	if ch.RestartRequired {
		a.log.Warn("config changed; restart required for changes to take effect", logx.String("changed", changed))
		return
	}
	a.log.Info("config reloaded", logx.String("changed", changed))
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	// First, cancel the app run context so background loops start unwinding immediately.
	a.sup.Cancel()

	// Helper: run a shutdown step with an upper bound so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			// respect the caller's deadline; never extend it
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
			took := time.Since(start)
			if took >= 500*time.Millisecond {
				a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
			} else {
				a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
			}
		case <-stepCtx.Done():
			// fn must honor stepCtx; if it doesn't, report when it finally returns.
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", time.Since(start)),
			)
			go func() {
				err := <-done
				took := time.Since(start)
				if err != nil {
					a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err), logx.Duration("took", took))
				} else {
					a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Duration("took", took))
				}
			}()
		}
	}

	// Triggers first, then the queue they feed, then the transport.
	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("taskengine", 3*time.Second, func(c context.Context) error { a.engine.Stop(c); return nil })
	step("status", 1*time.Second, func(c context.Context) error { a.status.Stop(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("storage", 1*time.Second, func(c context.Context) error { return a.store.Close() })

	// Finally, wait for supervised goroutines (config watch/reload, command dispatcher, etc.)
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// Package app wires the reminder bot together and owns its lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hydrobot/internal/commands"
	"hydrobot/internal/config"
	"hydrobot/internal/eventbus"
	"hydrobot/internal/messages"
	"hydrobot/internal/metrics"
	"hydrobot/internal/notifier"
	"hydrobot/internal/observability/ops"
	"hydrobot/internal/registry"
	"hydrobot/internal/reminder"
	"hydrobot/internal/runtime/supervisor"
	"hydrobot/internal/storage"
	"hydrobot/internal/sweeper"
	"hydrobot/internal/transport"
	"hydrobot/internal/transport/telegram"
	"hydrobot/pkg/logx"
	"hydrobot/pkg/systemd"
)

const updateBuffer = 256

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter   *telegram.Adapter
	registry  *registry.Registry
	notif     *notifier.Service
	sweeper   *sweeper.Sweeper
	cmdm      *commands.Manager
	hydration *commands.Hydration
	metrics   *metrics.Metrics
	ops       *ops.Server

	updates chan transport.Update
}

// New loads the config, opens storage and builds every component. Nothing
// runs until Start.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgm.Path(), err)
	}

	logSvc, root := logx.New(cfg.LogxConfig(), nil)
	log := root.With(logx.String("comp", "app"))
	comp := func(name string) logx.Logger { return root.With(logx.String("comp", name)) }

	tc, err := mapTelegramConfig(cfg)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(tc, comp("telegram"))
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	logSvc.SetSender(transport.LogSink{Adapter: ad})

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	store, err := storage.Open(sc, comp("storage"))
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}

	a, err := build(cfg, cfgm, logSvc, root, ad, store)
	if err != nil {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, err
	}
	log.Info("app built", logx.String("storage", sc.Driver), logx.Int("subscribers", a.registry.Count()))
	return a, nil
}

func build(cfg *config.Config, cfgm *config.Manager, logSvc *logx.Service, root logx.Logger, ad *telegram.Adapter, store storage.Store) (*App, error) {
	comp := func(name string) logx.Logger { return root.With(logx.String("comp", name)) }
	bus := eventbus.New()

	loadCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	subs, _, err := store.LoadAll(loadCtx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	reg := registry.New(store, registry.WithLogger(comp("registry")), registry.WithBus(bus))
	reg.Load(subs)

	nc, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	notif := notifier.New(nc, ad, comp("notifier"), bus)

	swc, err := mapSweeperConfig(cfg)
	if err != nil {
		return nil, err
	}
	resolver := messages.NewResolver(store, messages.WithLogger(comp("messages")))
	sw := sweeper.New(swc, reg, resolver, notif, sweeper.WithLogger(comp("sweeper")), sweeper.WithBus(bus))

	flowTimeout, err := config.ParseDurationOrDefault("reminder.registration_timeout", cfg.Reminder.RegistrationTimeout, 3*time.Minute)
	if err != nil {
		return nil, err
	}
	svc := reminder.NewService(reg, store, comp("reminder"))
	hyd := commands.NewHydration(svc, ad, flowTimeout, comp("hydration"))
	cmdm := commands.NewManager(comp("commands"), ad, bus, cfg.Telegram.OwnerUserIDs, commands.Options{})
	cmdm.SetRoutes(hyd.Commands(), hyd.Callbacks())

	m := metrics.New(reg.Count)
	var opsSrv *ops.Server
	if cfg.Ops.Enabled {
		opsSrv = ops.New(mapOpsConfig(cfg), m.Handler(), comp("ops"))
	}

	return &App{
		cfgm:      cfgm,
		log:       root.With(logx.String("comp", "app")),
		logs:      logSvc,
		bus:       bus,
		store:     store,
		adapter:   ad,
		registry:  reg,
		notif:     notif,
		sweeper:   sw,
		cmdm:      cmdm,
		hydration: hyd,
		metrics:   m,
		ops:       opsSrv,
		updates:   make(chan transport.Update, updateBuffer),
	}, nil
}

// Done is closed when the app context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	runCtx := a.sup.Context()

	a.sup.Go("metrics.events", func(c context.Context) error { return a.metrics.Run(c, a.bus) })
	if a.ops != nil {
		if err := a.ops.Start(runCtx); err != nil {
			// ops is optional; the bot keeps running without it.
			a.log.Error("ops server not started", logx.Err(err))
		}
	}

	if err := a.adapter.Start(runCtx, a.updates); err != nil {
		return fmt.Errorf("start telegram: %w", err)
	}
	menuCtx, cancel := context.WithTimeout(runCtx, 10*time.Second)
	if err := a.cmdm.UpdateMenu(menuCtx); err != nil {
		a.log.Warn("command menu not updated", logx.Err(err))
	}
	cancel()

	a.sup.Go("commands.dispatch", func(c context.Context) error { return a.cmdm.Run(c, a.updates) })

	a.sweeper.Start(runCtx)
	a.sup.Go0("sweeper.catchup", func(c context.Context) {
		r := a.sweeper.RunNow(c)
		a.log.Info("startup sweep done", logx.Int("due", r.Due), logx.Int("sent", r.Sent), logx.Int("failed", r.Failed), logx.Int("deferred", r.Deferred))
	})

	a.sup.Go0("eventbus.log", a.logEvents)
	a.sup.Go0("config.reload", a.reloadLoop)
	a.sup.Go("config.watch", a.cfgm.Watch)

	if _, err := systemd.Ready(); err != nil {
		a.log.Warn("sd_notify ready failed", logx.Err(err))
	}
	a.log.Info("app started", logx.Int("subscribers", a.registry.Count()))
	return nil
}

func (a *App) logEvents(ctx context.Context) {
	events, unsub := a.bus.Subscribe(128)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			switch d := e.Data.(type) {
			case eventbus.SubscriberEvent:
				a.log.Debug("event", logx.String("type", e.Type), logx.Int64("user_id", d.UserID), logx.String("error", d.Error))
			default:
				a.log.Debug("event", logx.String("type", e.Type))
			}
		}
	}
}

// Stop shuts components down in dependency order. Each step is bounded so
// one stuck component cannot stall the rest.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	if _, err := systemd.Stopping(); err != nil {
		a.log.Debug("sd_notify stopping failed", logx.Err(err))
	}

	var errs []error
	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, limit)
		defer cancel()

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
			if err != nil && !errors.Is(err, context.Canceled) {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("sweeper", 10*time.Second, a.sweeper.Stop)
	step("adapter", 3*time.Second, a.adapter.Stop)
	step("dispatcher", 3*time.Second, func(c context.Context) error {
		a.sup.Cancel()
		a.hydration.Close()
		return a.sup.Wait(c)
	})
	if a.ops != nil {
		step("ops", 2*time.Second, a.ops.Stop)
	}
	step("storage", 3*time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	_ = a.logs.Close()
	return errors.Join(errs...)
}

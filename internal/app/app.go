package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"ecsrelay/internal/config"
	"ecsrelay/internal/eventbus"
	"ecsrelay/internal/gate"
	"ecsrelay/internal/health"
	"ecsrelay/internal/ingress/httpapi"
	"ecsrelay/internal/notifier"
	"ecsrelay/internal/relay"
	rtsup "ecsrelay/internal/runtime/supervisor"
	"ecsrelay/internal/storage"
	logx "ecsrelay/pkg/logx"
	"ecsrelay/pkg/systemd"
)

// Mode selects the ingress the process serves.
type Mode string

const (
	ModeHTTP   Mode = "http"
	ModeLambda Mode = "lambda"
)

type App struct {
	mode Mode

	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	gate   *gate.Gate
	notif  *notifier.Service
	relay  *relay.Relay
	health *health.Prober
	http   *httpapi.Service
	reg    *prometheus.Registry
}

func NewApp(cfgPath string, mode Mode) (*App, error) {
	if mode == "" {
		mode = ModeHTTP
	}
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validateMapped(cfg); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg))
	log = log.With(logx.String("comp", "app"))
	bus := eventbus.New()

	sc, err := mapStoreConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	log.Info("store opened", logx.String("driver", sc.Driver))

	// Close the store on any later construction error.
	ok := false
	defer func() {
		if !ok {
			_ = store.Close()
		}
	}()

	resolver, err := newResolver(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	sink, err := newSink(cfg)
	if err != nil {
		return nil, err
	}
	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	notifSvc := notifier.New(ncfg, sink, log.With(logx.String("comp", "notifier")), bus)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "ecsrelay",
			Name:      "eventbus_dropped_total",
			Help:      "Events a slow in-process subscriber missed.",
		}, func() float64 { return float64(bus.Dropped()) }),
	)

	g := gate.New(mapGateConfig(cfg), store)
	rcfg, err := mapRelayConfig(cfg)
	if err != nil {
		return nil, err
	}
	r := relay.New(rcfg, g, resolver, notifSvc, log.With(logx.String("comp", "relay")), bus, relay.NewMetrics(reg))

	prober := health.New(mapHealthConfig(cfg), log.With(logx.String("comp", "health")), bus,
		health.Check{Name: "store", Fn: store.Ping},
		health.Check{Name: "identity", Fn: func(ctx context.Context) error {
			_, err := resolver.ResolveEnvironment(ctx)
			return err
		}},
	)

	a := &App{
		mode:   mode,
		cfgm:   cfgm,
		log:    log,
		logs:   logSvc,
		bus:    bus,
		store:  store,
		gate:   g,
		notif:  notifSvc,
		relay:  r,
		health: prober,
		reg:    reg,
	}
	if mode == ModeHTTP {
		hcfg, err := mapHTTPConfig(cfg)
		if err != nil {
			return nil, err
		}
		a.http = httpapi.New(hcfg, httpapi.Deps{
			Relay:    r,
			History:  notifSvc,
			Health:   prober,
			Gatherer: reg,
		}, log.With(logx.String("comp", "httpapi")))
	}
	log.Info("app configured",
		logx.String("mode", string(mode)),
		logx.String("sink", sink.Name()),
		logx.Bool("notifier", ncfg.Enabled),
	)
	ok = true
	return a, nil
}

// Relay is the event entry point; the Lambda ingress drives it directly.
func (a *App) Relay() *relay.Relay { return a.relay }

func (a *App) Logger() logx.Logger { return a.log }

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
	a.cfgm.SetValidator(func(c context.Context, cfg *config.Config) error {
		return validateMapped(cfg)
	})

	if err := a.health.Start(a.sup.Context()); err != nil {
		return fmt.Errorf("health: %w", err)
	}
	if a.http != nil {
		a.http.Start(a.sup.Context())
	}

	// Debug-level event log; relay and health publish on every event/probe.
	if a.bus != nil {
		events, unsub := a.bus.Subscribe(128)
		a.sup.Go("eventbus.log", func(c context.Context) error {
			defer unsub()
			for {
				select {
				case <-c.Done():
					return nil
				case e, ok := <-events:
					if !ok {
						return nil
					}
					a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
				}
			}
		})
	}

	// Lambda packages are immutable, so there is nothing to watch.
	if a.mode == ModeHTTP {
		sub := a.cfgm.Subscribe(8)
		a.sup.Go("config.reload", func(c context.Context) error {
			defer a.cfgm.Unsubscribe(sub)
			lastApplied := a.cfgm.Get()
			for {
				select {
				case <-c.Done():
					return nil
				case newCfg, ok := <-sub:
					if !ok {
						return nil
					}
					// Coalesce bursts: keep only the latest config in the channel.
				drain:
					for {
						select {
						case newer := <-sub:
							if newer != nil {
								newCfg = newer
							}
						default:
							break drain
						}
					}
					a.applyConfig(lastApplied, newCfg)
					lastApplied = newCfg
				}
			}
		})
		a.sup.Go("config.watch", func(c context.Context) error {
			return a.cfgm.Watch(c)
		})
	}

	_, _ = systemd.Status("relaying ECS task events")
	a.log.Info("app started", logx.String("mode", string(a.mode)))
	return nil
}

// applyConfig hot-applies the sections that support it. Store, identity,
// sink and http are only logged; they need a restart.
func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if restart := config.RestartRequired(sections); len(restart) > 0 {
		a.log.Warn("config sections changed that require a restart", logx.String("sections", strings.Join(restart, ",")))
	}

	a.logs.Apply(mapLoggingConfig(newCfg))
	a.gate.Apply(mapGateConfig(newCfg))

	if rc, err := mapRelayConfig(newCfg); err != nil {
		a.log.Warn("invalid relay config; keeping previous", logx.Err(err))
	} else {
		a.relay.Apply(rc)
	}

	if nc, err := mapNotifierConfig(newCfg); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		prev := a.notif.Enabled()
		a.notif.Apply(nc)
		if prev != nc.Enabled {
			a.log.Info("notifier toggled via config", logx.Bool("enabled", nc.Enabled))
		}
	}

	if err := a.health.Apply(mapHealthConfig(newCfg)); err != nil {
		a.log.Warn("invalid health schedule; keeping previous", logx.Err(err))
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return a.closeStore()
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

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
				if rem := time.Until(dl); rem <= 0 {
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
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", time.Since(start)),
			)
			// Leak logging: observe when/if the step eventually finishes.
			go func() {
				err := <-done
				if err != nil {
					a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err), logx.Duration("took", time.Since(start)))
				}
			}()
		}
	}

	// HTTP first so no new events arrive while the store closes.
	step("http", 5*time.Second, func(c context.Context) error {
		if a.http != nil {
			a.http.Stop(c)
		}
		return nil
	})
	step("health", time.Second, func(c context.Context) error { a.health.Stop(c); return nil })
	step("storage", time.Second, func(c context.Context) error { return a.closeStore() })
	step("supervisor", 2*time.Second, func(c context.Context) error {
		if err := a.sup.Wait(c); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

func (a *App) closeStore() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

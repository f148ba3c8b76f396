package app

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"remindbot/internal/bot"
	"remindbot/internal/config"
	"remindbot/internal/eventbus"
	"remindbot/internal/notifier"
	"remindbot/internal/reminder"
	"remindbot/internal/runtime/supervisor"
	"remindbot/internal/storage"
	"remindbot/internal/task/scheduler"
	kit "remindbot/internal/transport"
	telegram "remindbot/internal/transport/telegram/adapter"
	"remindbot/pkg/logx"
)

const (
	jobAudit        = "reminders.audit"
	jobPruneSession = "bot.sessions.prune"
	pruneEvery      = "@every 5m"
)

// App wires the reminder core to Telegram and owns the process lifecycle.
type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	audit storage.Store

	adapter kit.Adapter
	sched   *scheduler.Service
	notif   *notifier.Service
	mgr     *reminder.Manager
	router  *bot.Router

	auditEvery string
	updates    chan kit.Update
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	r, err := config.Resolve(cfg)
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
	ad, err := telegram.New(telegram.Config{Token: r.Token, PollTimeout: r.PollTimeout}, bootLog)
	if err != nil {
		return nil, err
	}

	// The Telegram sink needs its target before it is enabled, or Apply warns.
	lc := logConfig(cfg)
	boot := lc
	boot.Telegram.Enabled = false
	logSvc, log := logx.New(boot, ad)
	logSvc.SetTelegramTarget(r.GroupLog, lc.Telegram.ThreadID)
	logSvc.Apply(lc)

	audit, err := storage.Open(storageConfig(r), log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	if audit != nil {
		log.Info("audit log enabled", logx.String("driver", r.AuditDriver))
	}

	bus := eventbus.New()
	sched := scheduler.New(schedulerConfig(r), log.With(logx.String("comp", "scheduler")), bus)
	notif := notifier.New(notifierConfig(r), ad, log.With(logx.String("comp", "notifier")), bus)
	mgr := reminder.NewManager(reminder.Config{Delay: r.Delay}, reminder.Deps{
		Store:    reminder.NewFileStore(r.StorePath, log.With(logx.String("comp", "store"))),
		Timers:   sched,
		Notifier: notif,
		Bus:      bus,
		Audit:    audit,
		Log:      log.With(logx.String("comp", "reminders")),
	})
	router := bot.New(botConfig(r), ad, mgr, log.With(logx.String("comp", "bot")))

	return &App{
		cfgm:       cfgm,
		log:        log.With(logx.String("comp", "app")),
		logs:       logSvc,
		bus:        bus,
		audit:      audit,
		adapter:    ad,
		sched:      sched,
		notif:      notif,
		mgr:        mgr,
		router:     router,
		auditEvery: r.AuditEvery,
		updates:    make(chan kit.Update, 256),
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
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return config.Validate(cfg)
	})

	// Restore before the first update arrives so callbacks find their reminders.
	a.sched.Start(a.sup.Context())
	if _, err := a.mgr.Restore(a.sup.Context()); err != nil {
		return err
	}
	if err := a.scheduleJobs(); err != nil {
		return err
	}

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	a.sup.Go("reminders.run", a.mgr.Run)
	a.sup.Go("bot.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.updates)
	})
	a.sup.Go0("bot.menu", func(c context.Context) {
		if err := a.router.PublishMenu(c); err != nil {
			a.log.Warn("publish command menu failed", logx.Err(err))
		}
	})

	if a.bus != nil {
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
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: only the newest config matters.
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
				a.applyConfig(last, newCfg)
				last = newCfg
			}
		}
	})
	a.sup.Go("config.watch", a.cfgm.Watch)
	a.sup.Go0("systemd.watchdog", func(c context.Context) { watchdog(c, a.log) })

	sdNotify(a.log, daemon.SdNotifyReady)
	a.log.Info("app started", logx.Int("reminders", a.mgr.Len()))
	return nil
}

// scheduleJobs registers the periodic maintenance jobs on the scheduler.
func (a *App) scheduleJobs() error {
	if a.auditEvery != "" {
		if err := a.scheduleAudit(); err != nil {
			return err
		}
	}
	if err := a.sched.AddSchedule(jobPruneSession, pruneEvery, 5*time.Second, a.router.PruneSessions); err != nil {
		return fmt.Errorf("schedule %s: %w", jobPruneSession, err)
	}
	return nil
}

func (a *App) scheduleAudit() error {
	err := a.sched.AddSchedule(jobAudit, a.auditEvery, 30*time.Second, func(c context.Context) error {
		_, err := a.mgr.Audit(c)
		return err
	})
	if err != nil {
		return fmt.Errorf("schedule %s: %w", jobAudit, err)
	}
	return nil
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	sdNotify(a.log, daemon.SdNotifyStopping)
	a.log.Info("stopping", logx.String("reason", string(reason)))

	a.sup.Cancel()

	a.step(ctx, "scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	a.step(ctx, "adapter", 2*time.Second, a.adapter.Stop)
	a.step(ctx, "storage", time.Second, func(context.Context) error {
		if a.audit != nil {
			return a.audit.Close()
		}
		return nil
	})
	a.step(ctx, "supervisor", 2*time.Second, a.sup.Wait)

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// step runs one shutdown step bounded by max and the caller's deadline.
// A step that overruns is logged and left behind.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem < max {
			max = rem
		}
	}
	if max <= 0 {
		a.log.Warn("stop step skipped, no time left", logx.String("name", name))
		return
	}
	stepCtx, cancel := context.WithTimeout(ctx, max)
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
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Duration("elapsed", time.Since(start)),
		)
	}
}

package scheduler

import (
	"context"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"remindbot/internal/eventbus"
	"remindbot/pkg/logx"
)

type Option func(*Service)

// WithClock replaces time.Now, used for lateness checks and timer delays.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus, opts ...Option) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	buf := cfg.FiredBuffer
	if buf <= 0 {
		buf = defaultFiredBuffer
	}
	s := &Service{
		log:   log,
		bus:   bus,
		now:   time.Now,
		fired: make(chan Firing, buf),
		cfg:   cfg,
		once:  map[string]*onceDef{},
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Fired delivers expired one-shot timers. It is never closed.
func (s *Service) Fired() <-chan Firing { return s.fired }

func (s *Service) grace() time.Duration {
	if s.cfg.MisfireGrace > 0 {
		return s.cfg.MisfireGrace
	}
	return DefaultMisfireGrace
}

// Apply updates the misfire grace immediately. A timezone change restarts the
// periodic runner.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	cfg.FiredBuffer = s.cfg.FiredBuffer
	s.cfg = cfg
	if s.running && oldTZ != strings.TrimSpace(cfg.Timezone) {
		s.stopCronLocked(context.Background())
		s.startCronLocked()
	}
}

// Start arms every stored one-shot timer and starts periodic jobs. ctx is the
// parent of every periodic job run.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.quit = make(chan struct{})
	s.baseCtx = ctx

	s.startCronLocked()
	for id, d := range s.once {
		s.armLocked(id, d)
	}
	s.log.Info("service started", logx.String("tz", s.loc.String()), logx.Int("timers", len(s.once)), logx.Int("schedules", len(s.defs)))
}

// Stop halts every runtime timer and the periodic runner. Definitions are
// kept so a later Start re-arms them.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.quit)
	for _, d := range s.once {
		if d.timer != nil {
			d.timer.Stop()
			d.timer = nil
		}
	}
	s.stopCronLocked(ctx)
	s.mu.Unlock()

	s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

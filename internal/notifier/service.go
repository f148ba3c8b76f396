package notifier

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"remindbot/internal/eventbus"
	"remindbot/internal/reminder"
	kit "remindbot/internal/transport"
	"remindbot/pkg/logx"
)

var _ reminder.Notifier = (*Service)(nil)

// Service implements reminder.Notifier. It is safe for concurrent use.
type Service struct {
	sender kit.Sender
	log    logx.Logger
	bus    eventbus.Bus

	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	// sleep waits between attempts; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error

	sent, failed, unreachable, retries atomic.Uint64
}

func New(cfg Config, sender kit.Sender, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{sender: sender, log: log, bus: bus, sleep: sleepCtx}
	s.Apply(cfg)
	return s
}

// Apply swaps the delivery policy. In-flight deliveries finish with the
// policy they started with.
func (s *Service) Apply(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = DefaultRatePerSec
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = DefaultRetryBase
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = DefaultRetryMaxDelay
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	if cfg.Delay <= 0 {
		cfg.Delay = reminder.DefaultDelay
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.limiter == nil || s.cfg.RatePerSec != cfg.RatePerSec {
		// Burst equals the per-second rate so short spikes are not delayed.
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	}
	s.cfg = cfg
}

func (s *Service) Stats() Stats {
	return Stats{
		Sent:        s.sent.Load(),
		Failed:      s.failed.Load(),
		Unreachable: s.unreachable.Load(),
		Retries:     s.retries.Load(),
	}
}

// Deliver sends n to its owner with delay/delete buttons. An unreachable
// chat yields an error matching reminder.ErrUnreachable; other failures are
// retried up to RetryMax times before the last error is returned.
func (s *Service) Deliver(ctx context.Context, n reminder.Notice) error {
	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	s.mu.Unlock()

	msg := Render(n, cfg.Delay)
	to := kit.ChatTarget{ChatID: n.OwnerID}
	attempts := 1 + cfg.RetryMax

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			return err
		}

		callCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
		_, err := msg.Send(callCtx, s.sender, to)
		cancel()
		if err == nil {
			s.sent.Add(1)
			s.publish(EventSent, n, attempt, nil)
			return nil
		}
		if errors.Is(err, kit.ErrChatUnreachable) {
			s.unreachable.Add(1)
			s.publish(EventFailed, n, attempt, err)
			return fmt.Errorf("%w: %w", reminder.ErrUnreachable, err)
		}
		if errors.Is(err, kit.ErrPartialSend) {
			// The head of the message and its buttons arrived; a retry would
			// send them again.
			s.sent.Add(1)
			s.log.Warn("reminder partially delivered",
				logx.String("job_id", n.JobID),
				logx.Int64("owner_id", n.OwnerID),
				logx.Err(err),
			)
			s.publish(EventSent, n, attempt, err)
			return nil
		}

		lastErr = err
		s.log.Debug("reminder send failed",
			logx.String("job_id", n.JobID),
			logx.Int("attempt", attempt),
			logx.Int("max", attempts),
			logx.Err(err),
		)
		if attempt == attempts {
			break
		}
		s.retries.Add(1)
		if err := s.sleep(ctx, retryDelay(cfg, attempt)); err != nil {
			lastErr = errors.Join(lastErr, err)
			break
		}
	}

	s.failed.Add(1)
	s.publish(EventFailed, n, attempts, lastErr)
	return fmt.Errorf("notify owner %d: %w", n.OwnerID, lastErr)
}

func (s *Service) publish(kind string, n reminder.Notice, attempts int, err error) {
	if s.bus == nil {
		return
	}
	now := time.Now()
	e := DeliveryEvent{JobID: n.JobID, OwnerID: n.OwnerID, Attempts: attempts, At: now}
	if err != nil {
		e.Error = err.Error()
	}
	s.bus.Publish(eventbus.Event{Type: kind, Time: now, Data: e})
}

// retryDelay is the wait before attempt+1: base*2^(attempt-1), capped, with
// 0.7..1.3 jitter.
func retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt && d < cfg.RetryMaxDelay; i++ {
		d *= 2
	}
	d = min(d, cfg.RetryMaxDelay)
	d = time.Duration(float64(d) * (0.7 + rand.Float64()*0.6))
	return min(max(d, 0), cfg.RetryMaxDelay)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

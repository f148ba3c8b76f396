package scheduler

import (
	"errors"
	"sort"
	"strings"
	"time"

	"remindbot/internal/eventbus"
	"remindbot/pkg/logx"
)

var (
	ErrJobIDRequired = errors.New("scheduler: job id required")
	ErrTimeRequired  = errors.New("scheduler: fire time required")
)

// Schedule arms a one-shot timer for jobID at the given moment, replacing any
// timer already armed for the same id. While the service is stopped the
// definition is stored and armed by Start.
func (s *Service) Schedule(jobID string, at time.Time, p Payload) error {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return ErrJobIDRequired
	}
	if at.IsZero() {
		return ErrTimeRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.once[jobID]; ok && old.timer != nil {
		old.timer.Stop()
	}
	s.seq++
	d := &onceDef{at: at, payload: p, ver: s.seq}
	s.once[jobID] = d
	if s.running {
		s.armLocked(jobID, d)
	}
	s.log.Debug("timer armed", logx.String("job_id", jobID), logx.Time("at", at), logx.Bool("running", s.running))
	return nil
}

// Cancel disarms jobID. It reports whether a timer existed; cancelling an
// unknown id is not an error.
func (s *Service) Cancel(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.once[jobID]
	if !ok {
		return false
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	delete(s.once, jobID)
	return true
}

func (s *Service) Has(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.once[jobID]
	return ok
}

// DueAt returns the moment jobID is armed for.
func (s *Service) DueAt(jobID string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.once[jobID]
	if !ok {
		return time.Time{}, false
	}
	return d.at, true
}

// Armed returns the ids of all pending one-shot timers, sorted.
func (s *Service) Armed() []string {
	s.mu.Lock()
	ids := make([]string, 0, len(s.once))
	for id := range s.once {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	sort.Strings(ids)
	return ids
}

func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.once)
}

func (s *Service) armLocked(jobID string, d *onceDef) {
	delay := max(d.at.Sub(s.now()), 0)
	ver := d.ver
	d.timer = time.AfterFunc(delay, func() { s.expire(jobID, ver) })
}

// expire runs on the timer goroutine. It drops the definition, then either
// enqueues a Firing or reports a misfire.
func (s *Service) expire(jobID string, ver uint64) {
	s.mu.Lock()
	d, ok := s.once[jobID]
	if !ok || d.ver != ver || !s.running {
		s.mu.Unlock()
		return
	}
	delete(s.once, jobID)
	quit := s.quit
	grace := s.grace()
	s.mu.Unlock()

	f := Firing{JobID: jobID, Payload: d.payload, DueAt: d.at, FiredAt: s.now()}
	if late := f.Late(); late > grace {
		s.log.Warn("timer misfired; skipping",
			logx.String("job_id", jobID),
			logx.Time("due_at", f.DueAt),
			logx.Duration("late", late),
			logx.Duration("grace", grace),
		)
		if s.bus != nil {
			s.bus.Publish(eventbus.Event{Type: EventMisfired, Data: f})
		}
		return
	}

	select {
	case s.fired <- f:
	case <-quit:
		s.log.Warn("firing dropped: scheduler stopped", logx.String("job_id", jobID))
	}
}

package reminder

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"remindbot/internal/eventbus"
	"remindbot/internal/storage"
	"remindbot/internal/task/scheduler"
	"remindbot/internal/timespec"
	"remindbot/pkg/logx"
)

const (
	DefaultDelay = 10 * time.Minute
	// DefaultDeliveries bounds how many firings Run delivers at once.
	DefaultDeliveries = 8
)

// Timers is the slice of the scheduler the Manager drives.
type Timers interface {
	Schedule(jobID string, at time.Time, p scheduler.Payload) error
	Cancel(jobID string) bool
	Has(jobID string) bool
	DueAt(jobID string) (time.Time, bool)
	Armed() []string
	Fired() <-chan scheduler.Firing
}

type Config struct {
	// Delay is added to fire_at by Delay. Zero means DefaultDelay.
	Delay time.Duration
	// Deliveries is how many firings are delivered concurrently. Zero means
	// DefaultDeliveries.
	Deliveries int
}

type Deps struct {
	Store    Store
	Timers   Timers
	Notifier Notifier

	Bus   eventbus.Bus  // optional
	Audit storage.Store // optional
	Log   logx.Logger
	Now   func() time.Time
}

// Manager serializes every mutation of the reminder list. One mutex covers
// "change the list, persist it, touch the timers", so the store and the
// timers move in lockstep. A mutation persists a copy first and commits it
// in memory only after the write succeeded.
type Manager struct {
	mu        sync.Mutex
	reminders []Reminder
	delay     time.Duration

	deliveries int

	store    Store
	timers   Timers
	notifier Notifier
	bus      eventbus.Bus
	audit    storage.Store
	log      logx.Logger
	now      func() time.Time
}

func NewManager(cfg Config, deps Deps) *Manager {
	m := &Manager{
		store:    deps.Store,
		timers:   deps.Timers,
		notifier: deps.Notifier,
		bus:      deps.Bus,
		audit:    deps.Audit,
		log:      deps.Log,
		now:      deps.Now,
	}
	if m.log.IsZero() {
		m.log = logx.Nop()
	}
	if m.now == nil {
		m.now = time.Now
	}
	m.deliveries = cfg.Deliveries
	if m.deliveries <= 0 {
		m.deliveries = DefaultDeliveries
	}
	m.SetDelay(cfg.Delay)
	return m
}

// SetDelay changes the snooze duration used by later Delay calls.
func (m *Manager) SetDelay(d time.Duration) {
	if d <= 0 {
		d = DefaultDelay
	}
	m.mu.Lock()
	m.delay = d
	m.mu.Unlock()
}

type RestoreStats struct {
	Loaded int
	Armed  int
	// Past counts reminders whose fire_at had already passed. They stay
	// stored but are not armed.
	Past int
}

// Restore loads the store and arms a timer for every reminder still in the
// future. A reminder that came due while the process was down is never fired
// retroactively.
func (m *Manager) Restore(ctx context.Context) (RestoreStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all, err := m.store.Load()
	if err != nil {
		return RestoreStats{}, fmt.Errorf("restore reminders: %w", err)
	}
	if all == nil {
		all = []Reminder{}
	}
	m.reminders = all

	now := m.now()
	st := RestoreStats{Loaded: len(all)}
	stored := make(map[string]struct{}, len(all))
	for _, r := range all {
		stored[r.JobID] = struct{}{}
		if !r.FireAt.After(now) {
			st.Past++
			continue
		}
		if err := m.timers.Schedule(r.JobID, r.FireAt, scheduler.Payload{OwnerID: r.OwnerID}); err != nil {
			m.log.Warn("restore: arm failed", logx.String("job_id", r.JobID), logx.Err(err))
			continue
		}
		st.Armed++
	}
	for _, id := range m.timers.Armed() {
		if _, ok := stored[id]; !ok {
			m.timers.Cancel(id)
		}
	}

	m.log.Info("reminders restored", logx.Int("loaded", st.Loaded), logx.Int("armed", st.Armed), logx.Int("past", st.Past))
	return st, nil
}

// CreateRaw parses rawTime and creates the reminder. Parse failures are
// returned as *timespec.ParseError.
func (m *Manager) CreateRaw(ctx context.Context, ownerID int64, rawTime, text string) (Reminder, error) {
	c, err := timespec.Parse(rawTime)
	if err != nil {
		return Reminder{}, err
	}
	return m.Create(ctx, ownerID, c, text)
}

// Create schedules text for the next occurrence of clock. Identical
// reminders are allowed; each gets its own job id. An out-of-range clock is
// rejected with a *timespec.ParseError of KindRange.
func (m *Manager) Create(ctx context.Context, ownerID int64, clock timespec.Clock, text string) (Reminder, error) {
	if !clock.Valid() {
		return Reminder{}, &timespec.ParseError{Kind: timespec.KindRange, Input: clock.String()}
	}
	m.mu.Lock()
	r := Reminder{
		JobID:   NewJobID(ownerID),
		OwnerID: ownerID,
		FireAt:  timespec.NextOccurrence(m.now(), clock),
		Text:    text,
	}
	next := append(slices.Clone(m.reminders), r)
	if err := m.store.Save(next); err != nil {
		m.mu.Unlock()
		m.record(ctx, "create", r, err)
		return Reminder{}, fmt.Errorf("create reminder: %w", err)
	}
	m.reminders = next
	m.arm(r)
	m.mu.Unlock()

	m.log.Info("reminder created", logx.String("job_id", r.JobID), logx.Int64("owner_id", ownerID), logx.Time("fire_at", r.FireAt))
	m.publish(EventCreated, r)
	m.record(ctx, "create", r, nil)
	return r, nil
}

// Delete removes jobID from the store and cancels its timer.
func (m *Manager) Delete(ctx context.Context, jobID string) error {
	m.mu.Lock()
	i := m.indexLocked(jobID)
	if i < 0 {
		m.mu.Unlock()
		return ErrNotFound
	}
	r := m.reminders[i]
	next := slices.Delete(slices.Clone(m.reminders), i, i+1)
	if err := m.store.Save(next); err != nil {
		m.mu.Unlock()
		m.record(ctx, "delete", r, err)
		return fmt.Errorf("delete reminder: %w", err)
	}
	m.reminders = next
	m.timers.Cancel(jobID)
	m.mu.Unlock()

	m.log.Info("reminder deleted", logx.String("job_id", jobID), logx.Int64("owner_id", r.OwnerID))
	m.publish(EventDeleted, r)
	m.record(ctx, "delete", r, nil)
	return nil
}

// Delay pushes fire_at back by the configured delay and re-arms the timer.
// When the shifted moment is still not in the future (the reminder fired long
// ago) the new fire_at is now plus the delay.
func (m *Manager) Delay(ctx context.Context, jobID string) (Reminder, error) {
	m.mu.Lock()
	i := m.indexLocked(jobID)
	if i < 0 {
		m.mu.Unlock()
		return Reminder{}, ErrNotFound
	}
	now := m.now()
	r := m.reminders[i]
	r.FireAt = r.FireAt.Add(m.delay)
	if !r.FireAt.After(now) {
		r.FireAt = now.Add(m.delay)
	}
	next := slices.Clone(m.reminders)
	next[i] = r
	if err := m.store.Save(next); err != nil {
		m.mu.Unlock()
		m.record(ctx, "delay", r, err)
		return Reminder{}, fmt.Errorf("delay reminder: %w", err)
	}
	m.reminders = next
	m.arm(r)
	m.mu.Unlock()

	m.log.Info("reminder delayed", logx.String("job_id", jobID), logx.Time("fire_at", r.FireAt))
	m.publish(EventDelayed, r)
	m.record(ctx, "delay", r, nil)
	return r, nil
}

// Fire delivers jobID to its owner. The reminder stays stored after a
// successful delivery. An unreachable owner loses all reminders; any other
// delivery error is returned and changes nothing.
func (m *Manager) Fire(ctx context.Context, jobID string) error {
	r, ok := m.Get(jobID)
	if !ok {
		return ErrNotFound
	}

	start := time.Now()
	err := m.notifier.Deliver(ctx, Notice{JobID: r.JobID, OwnerID: r.OwnerID, Text: r.Text, FireAt: r.FireAt})
	took := time.Since(start)
	switch {
	case err == nil:
		m.log.Info("reminder delivered", logx.String("job_id", jobID), logx.Int64("owner_id", r.OwnerID), logx.Duration("took", took))
		m.publish(EventFired, r)
		m.record(ctx, "fire", r, nil)
		return nil
	case errors.Is(err, ErrUnreachable):
		m.log.Warn("owner unreachable; purging reminders", logx.Int64("owner_id", r.OwnerID), logx.Err(err))
		m.record(ctx, "fire", r, err)
		if perr := m.purgeOwner(ctx, r.OwnerID); perr != nil {
			return errors.Join(err, perr)
		}
		return err
	default:
		m.log.Error("reminder delivery failed", logx.String("job_id", jobID), logx.Int64("owner_id", r.OwnerID), logx.Err(err))
		m.record(ctx, "fire", r, err)
		return fmt.Errorf("deliver %s: %w", jobID, err)
	}
}

func (m *Manager) purgeOwner(ctx context.Context, ownerID int64) error {
	m.mu.Lock()
	next := make([]Reminder, 0, len(m.reminders))
	var gone []string
	for _, r := range m.reminders {
		if r.OwnerID == ownerID {
			gone = append(gone, r.JobID)
			continue
		}
		next = append(next, r)
	}
	if len(gone) == 0 {
		m.mu.Unlock()
		return nil
	}
	if err := m.store.Save(next); err != nil {
		m.mu.Unlock()
		m.log.Error("purge not persisted", logx.Int64("owner_id", ownerID), logx.Err(err))
		return fmt.Errorf("purge owner %d: %w", ownerID, err)
	}
	m.reminders = next
	for _, id := range gone {
		m.timers.Cancel(id)
	}
	m.mu.Unlock()

	m.log.Info("owner reminders purged", logx.Int64("owner_id", ownerID), logx.Int("count", len(gone)))
	if m.bus != nil {
		m.bus.Publish(eventbus.Event{Type: EventPurged, Data: PurgeResult{OwnerID: ownerID, JobIDs: gone}})
	}
	m.record(ctx, "purge", Reminder{OwnerID: ownerID}, nil)
	return nil
}

// List returns the owner's reminders in store order.
func (m *Manager) List(ownerID int64) []Reminder {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Reminder
	for _, r := range m.reminders {
		if r.OwnerID == ownerID {
			out = append(out, r)
		}
	}
	return out
}

func (m *Manager) Get(jobID string) (Reminder, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i := m.indexLocked(jobID); i >= 0 {
		return m.reminders[i], true
	}
	return Reminder{}, false
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reminders)
}

// Run consumes timer firings until ctx ends. Each firing is delivered on its
// own goroutine, at most Config.Deliveries at a time, so one slow owner does
// not hold back the others. Run returns after in-flight deliveries finish.
func (m *Manager) Run(ctx context.Context) error {
	fired := m.timers.Fired()
	sem := make(chan struct{}, m.deliveries)
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case f := <-fired:
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return nil
			}
			wg.Add(1)
			go func(jobID string) {
				defer wg.Done()
				defer func() { <-sem }()
				m.deliver(ctx, jobID)
			}(f.JobID)
		}
	}
}

func (m *Manager) deliver(ctx context.Context, jobID string) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("delivery panicked", logx.String("job_id", jobID), logx.Any("panic", r))
		}
	}()
	if err := m.Fire(ctx, jobID); errors.Is(err, ErrNotFound) {
		m.log.Debug("fired reminder no longer stored", logx.String("job_id", jobID))
	}
}

type AuditStats struct {
	Rearmed     int
	Rescheduled int
	Orphans     int
}

// Audit reconciles timers with the list: every stored future reminder gets a
// timer at its fire_at and timers without a stored reminder are cancelled.
func (m *Manager) Audit(ctx context.Context) (AuditStats, error) {
	m.mu.Lock()
	now := m.now()
	var st AuditStats
	stored := make(map[string]struct{}, len(m.reminders))
	for _, r := range m.reminders {
		stored[r.JobID] = struct{}{}
		if !r.FireAt.After(now) {
			continue
		}
		due, ok := m.timers.DueAt(r.JobID)
		switch {
		case !ok:
			st.Rearmed++
		case !due.Equal(r.FireAt):
			st.Rescheduled++
		default:
			continue
		}
		m.arm(r)
	}
	for _, id := range m.timers.Armed() {
		if _, ok := stored[id]; !ok && m.timers.Cancel(id) {
			st.Orphans++
		}
	}
	m.mu.Unlock()

	if st != (AuditStats{}) {
		m.log.Warn("timer drift repaired", logx.Int("rearmed", st.Rearmed), logx.Int("rescheduled", st.Rescheduled), logx.Int("orphans", st.Orphans))
	} else {
		m.log.Debug("timers consistent")
	}
	return st, ctx.Err()
}

func (m *Manager) indexLocked(jobID string) int {
	return slices.IndexFunc(m.reminders, func(r Reminder) bool { return r.JobID == jobID })
}

// arm must be called with m.mu held.
func (m *Manager) arm(r Reminder) {
	if err := m.timers.Schedule(r.JobID, r.FireAt, scheduler.Payload{OwnerID: r.OwnerID}); err != nil {
		m.log.Error("arm timer failed", logx.String("job_id", r.JobID), logx.Err(err))
	}
}

func (m *Manager) publish(kind string, r Reminder) {
	if m.bus != nil {
		m.bus.Publish(eventbus.Event{Type: kind, Data: r})
	}
}

// record appends a best-effort audit entry.
func (m *Manager) record(ctx context.Context, action string, r Reminder, err error) {
	if m.audit == nil {
		return
	}
	e := storage.AuditEntry{
		At:      m.now(),
		Action:  action,
		OwnerID: r.OwnerID,
		JobID:   r.JobID,
		FireAt:  r.FireAt,
		OK:      err == nil,
	}
	if err != nil {
		e.Error = err.Error()
	}
	if aerr := m.audit.AppendAudit(context.WithoutCancel(ctx), e); aerr != nil {
		m.log.Debug("audit append failed", logx.String("action", action), logx.Err(aerr))
	}
}

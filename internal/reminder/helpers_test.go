package reminder

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"remindbot/internal/eventbus"
	"remindbot/internal/task/scheduler"
	"remindbot/pkg/logx"
)

// base is a fixed local "now" far from the real clock; timers armed by tests
// that use it stay on an unstarted scheduler.
var base = time.Date(2030, 1, 10, 8, 0, 0, 0, time.Local)

type memStore struct {
	mu       sync.Mutex
	data     []Reminder
	saves    int
	failSave error
}

func (s *memStore) Load() ([]Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.data), nil
}

func (s *memStore) Save(all []Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSave != nil {
		return s.failSave
	}
	s.data = slices.Clone(all)
	s.saves++
	return nil
}

func (s *memStore) snapshot() []Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.data)
}

func (s *memStore) setFail(err error) {
	s.mu.Lock()
	s.failSave = err
	s.mu.Unlock()
}

type fakeNotifier struct {
	mu        sync.Mutex
	got       []Notice
	errFor    map[int64]error
	delivered chan Notice
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{errFor: map[int64]error{}, delivered: make(chan Notice, 16)}
}

func (n *fakeNotifier) Deliver(_ context.Context, notice Notice) error {
	n.mu.Lock()
	err := n.errFor[notice.OwnerID]
	if err == nil {
		n.got = append(n.got, notice)
	}
	n.mu.Unlock()
	if err == nil {
		n.delivered <- notice
	}
	return err
}

func (n *fakeNotifier) fail(owner int64, err error) {
	n.mu.Lock()
	n.errFor[owner] = err
	n.mu.Unlock()
}

func (n *fakeNotifier) notices() []Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.got)
}

type fixture struct {
	store    *memStore
	timers   *scheduler.Service
	notifier *fakeNotifier
	bus      eventbus.Bus
	mgr      *Manager
	now      time.Time
}

// newFixture wires a Manager with a fixed clock to an unstarted scheduler.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    &memStore{},
		notifier: newFakeNotifier(),
		bus:      eventbus.New(),
		now:      base,
	}
	f.timers = scheduler.New(scheduler.Config{}, logx.Nop(), f.bus)
	f.mgr = NewManager(Config{}, Deps{
		Store:    f.store,
		Timers:   f.timers,
		Notifier: f.notifier,
		Bus:      f.bus,
		Log:      logx.Nop(),
		Now:      func() time.Time { return f.now },
	})
	return f
}

func at(day, hour, minute int) time.Time {
	return time.Date(2030, 1, day, hour, minute, 0, 0, time.Local)
}

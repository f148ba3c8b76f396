package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remindbot/internal/bot"
	"remindbot/internal/config"
	"remindbot/internal/eventbus"
	"remindbot/internal/notifier"
	"remindbot/internal/reminder"
	"remindbot/internal/task/scheduler"
	"remindbot/internal/timespec"
	"remindbot/pkg/logx"
)

var testNow = time.Date(2030, 3, 1, 8, 0, 0, 0, time.Local)

// newTestApp assembles the components New would build, minus Telegram.
func newTestApp(t *testing.T, auditEvery string) *App {
	t.Helper()
	bus := eventbus.New()
	sched := scheduler.New(scheduler.Config{}, logx.Nop(), bus, scheduler.WithClock(func() time.Time { return testNow }))
	mgr := reminder.NewManager(reminder.Config{}, reminder.Deps{
		Store:  reminder.NewFileStore(filepath.Join(t.TempDir(), "reminders.json"), logx.Nop()),
		Timers: sched,
		Bus:    bus,
		Log:    logx.Nop(),
		Now:    func() time.Time { return testNow },
	})
	return &App{
		log:        logx.Nop(),
		bus:        bus,
		sched:      sched,
		notif:      notifier.New(notifier.Config{}, nil, logx.Nop(), bus),
		mgr:        mgr,
		router:     bot.New(bot.Config{}, nil, mgr, logx.Nop()),
		auditEvery: auditEvery,
	}
}

func scheduleNames(s *scheduler.Service) []string {
	var out []string
	for _, it := range s.Schedules() {
		out = append(out, it.Name)
	}
	return out
}

func TestScheduleJobs(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, "@every 10m")
	require.NoError(t, a.scheduleJobs())
	assert.ElementsMatch(t, []string{jobAudit, jobPruneSession}, scheduleNames(a.sched))

	off := newTestApp(t, "")
	require.NoError(t, off.scheduleJobs())
	assert.Equal(t, []string{jobPruneSession}, scheduleNames(off.sched))

	bad := newTestApp(t, "every so often")
	assert.Error(t, bad.scheduleJobs())
}

func TestApplyConfigUpdatesDelay(t *testing.T) {
	t.Parallel()
	a := newTestApp(t, config.DefaultAuditEvery)
	ctx := context.Background()

	r, err := a.mgr.Create(ctx, 42, timespec.Clock{Hour: 9}, "stand-up")
	require.NoError(t, err)

	a.applyConfig(&config.Config{}, &config.Config{Reminders: config.RemindersConfig{Delay: "15m"}})

	delayed, err := a.mgr.Delay(ctx, r.JobID)
	require.NoError(t, err)
	assert.Equal(t, r.FireAt.Add(15*time.Minute), delayed.FireAt)
}

func TestApplyConfigAuditSchedule(t *testing.T) {
	t.Parallel()
	a := newTestApp(t, config.DefaultAuditEvery)
	require.NoError(t, a.scheduleJobs())

	a.applyConfig(&config.Config{}, &config.Config{Reminders: config.RemindersConfig{AuditEvery: "off"}})
	assert.Equal(t, []string{jobPruneSession}, scheduleNames(a.sched))
	assert.Empty(t, a.auditEvery)

	a.applyConfig(
		&config.Config{Reminders: config.RemindersConfig{AuditEvery: "off"}},
		&config.Config{Reminders: config.RemindersConfig{AuditEvery: "@every 1h"}},
	)
	assert.ElementsMatch(t, []string{jobAudit, jobPruneSession}, scheduleNames(a.sched))
	assert.Equal(t, "@every 1h", a.auditEvery)
}

func TestApplyConfigKeepsPreviousOnInvalid(t *testing.T) {
	t.Parallel()
	a := newTestApp(t, config.DefaultAuditEvery)
	require.NoError(t, a.scheduleJobs())

	a.applyConfig(&config.Config{}, &config.Config{Reminders: config.RemindersConfig{
		Delay:      "soon",
		AuditEvery: "off",
	}})
	assert.Equal(t, config.DefaultAuditEvery, a.auditEvery)
	assert.ElementsMatch(t, []string{jobAudit, jobPruneSession}, scheduleNames(a.sched))
}

func TestMappingHelpers(t *testing.T) {
	t.Parallel()
	r := config.Resolved{
		Delay:         7 * time.Minute,
		MisfireGrace:  time.Minute,
		RatePerSec:    3,
		RetryMax:      2,
		RetryBase:     time.Second,
		RetryMaxDelay: 4 * time.Second,
		SendTimeout:   9 * time.Second,
		AuditDriver:   "file",
		AuditPath:     "./audit",
	}
	assert.Equal(t, notifier.Config{
		RatePerSec:    3,
		RetryMax:      2,
		RetryBase:     time.Second,
		RetryMaxDelay: 4 * time.Second,
		SendTimeout:   9 * time.Second,
		Delay:         7 * time.Minute,
	}, notifierConfig(r))
	assert.Equal(t, time.Minute, schedulerConfig(r).MisfireGrace)
	assert.Equal(t, "file", storageConfig(r).Driver)
	assert.Equal(t, 7*time.Minute, botConfig(r).Delay)

	lc := logConfig(&config.Config{Logging: config.LoggingConfig{
		Level:    "debug",
		File:     config.LoggingFile{Enabled: true, Path: "bot.log"},
		Telegram: config.LoggingTelegram{ThreadID: 5},
	}})
	assert.Equal(t, "debug", lc.Level)
	assert.True(t, lc.File.Enabled)
	assert.Equal(t, 5, lc.Telegram.ThreadID)
}

func TestStopBeforeStart(t *testing.T) {
	t.Parallel()
	a := newTestApp(t, "")
	assert.NoError(t, a.Stop(context.Background(), StopUnknown))
	assert.NoError(t, a.Err())
	select {
	case <-a.Done():
	default:
		t.Fatal("Done should be closed before Start")
	}
}

package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"remindbot/internal/eventbus"
	"remindbot/pkg/logx"
)

// EventMisfired is published when a timer expired too late to fire.
const EventMisfired = "reminder.misfired"

const (
	DefaultMisfireGrace = 30 * time.Second
	defaultFiredBuffer  = 64
)

type Config struct {
	// MisfireGrace is how late a timer may expire and still fire. Zero means
	// DefaultMisfireGrace.
	MisfireGrace time.Duration
	// FiredBuffer is the capacity of the Fired channel.
	FiredBuffer int
	// Timezone (IANA name) for periodic jobs. Empty means time.Local.
	Timezone string
}

// Payload travels with a one-shot timer and comes back in its Firing.
type Payload struct {
	OwnerID int64
}

// Firing reports an expired one-shot timer.
type Firing struct {
	JobID string
	Payload
	DueAt   time.Time
	FiredAt time.Time
}

// Late is how far after its due time the timer expired.
func (f Firing) Late() time.Duration { return f.FiredAt.Sub(f.DueAt) }

type onceDef struct {
	at      time.Time
	payload Payload
	ver     uint64
	timer   *time.Timer // nil while stopped
}

type periodicDef struct {
	name    string
	spec    string
	timeout time.Duration
	job     func(ctx context.Context) error
	entryID cron.EntryID
}

type Service struct {
	log logx.Logger
	bus eventbus.Bus
	now func() time.Time

	fired chan Firing

	mu      sync.Mutex
	cfg     Config
	running bool
	quit    chan struct{}
	baseCtx context.Context

	once map[string]*onceDef
	seq  uint64

	parser cron.Parser
	loc    *time.Location
	c      *cron.Cron
	defs   []periodicDef
}

// ScheduleInfo describes a registered periodic job.
type ScheduleInfo struct {
	Name string
	Spec string
	Next time.Time
	Prev time.Time
}

// Package reminder owns the reminder registry: the durable JSON store, the
// in-memory list and the one-shot timers that fire each reminder.
//
// The store is the source of truth. Timers are a projection of it and are
// rebuilt by Restore and reconciled by Audit.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("reminder: not found")
	// ErrUnreachable is returned by a Notifier when the owner can no longer
	// be messaged. Every reminder of that owner is purged.
	ErrUnreachable = errors.New("reminder: owner unreachable")
)

// Event types published on the event bus. Data is a Reminder, except for
// EventPurged which carries a PurgeResult.
const (
	EventCreated = "reminder.created"
	EventDelayed = "reminder.delayed"
	EventDeleted = "reminder.deleted"
	EventFired   = "reminder.fired"
	EventPurged  = "reminder.purged"
)

type Reminder struct {
	JobID   string
	OwnerID int64
	FireAt  time.Time
	Text    string
}

// Notice is what a Notifier delivers to the owner.
type Notice struct {
	JobID   string
	OwnerID int64
	Text    string
	FireAt  time.Time
}

// Notifier delivers a due reminder. Implementations wrap ErrUnreachable when
// the owner blocked the bot or the chat is gone.
type Notifier interface {
	Deliver(ctx context.Context, n Notice) error
}

// Store persists the whole collection.
type Store interface {
	Load() ([]Reminder, error)
	Save(all []Reminder) error
}

type PurgeResult struct {
	OwnerID int64
	JobIDs  []string
}

// NewJobID returns "<owner>_<uuid>".
func NewJobID(ownerID int64) string {
	return fmt.Sprintf("%d_%s", ownerID, uuid.NewString())
}

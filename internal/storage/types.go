package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage. An empty Driver or "none" disables it.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// AuditEntry records one reminder lifecycle change.
type AuditEntry struct {
	At      time.Time `json:"at"`
	Action  string    `json:"action"` // create | delete | delay | fire | purge
	OwnerID int64     `json:"owner_id"`
	JobID   string    `json:"job_id,omitempty"`
	FireAt  time.Time `json:"fire_at,omitzero"`
	OK      bool      `json:"ok"`
	Error   string    `json:"error,omitempty"`
	TookMS  int64     `json:"took_ms,omitempty"`
}

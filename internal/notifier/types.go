package notifier

import "time"

// Events published on the bus after each delivery.
const (
	EventSent   = "notifier.sent"
	EventFailed = "notifier.failed"
)

const (
	DefaultRatePerSec    = 20
	DefaultRetryMax      = 3
	DefaultRetryBase     = 500 * time.Millisecond
	DefaultRetryMaxDelay = 10 * time.Second
	DefaultSendTimeout   = 15 * time.Second
)

type Config struct {
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	SendTimeout   time.Duration
	// Delay is shown on the snooze button.
	Delay time.Duration
}

// DeliveryEvent is the Data of EventSent and EventFailed.
type DeliveryEvent struct {
	JobID    string    `json:"job_id"`
	OwnerID  int64     `json:"owner_id"`
	Attempts int       `json:"attempts"`
	At       time.Time `json:"at"`
	Error    string    `json:"error,omitempty"`
}

type Stats struct {
	Sent        uint64
	Failed      uint64
	Unreachable uint64
	Retries     uint64
}

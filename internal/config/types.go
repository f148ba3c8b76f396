package config

// Config is the on-disk configuration. Durations are Go duration strings
// ("500ms", "10s", "10m").
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Reminders RemindersConfig `json:"reminders"`
	Notifier  NotifierConfig  `json:"notifier"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
}

type TelegramConfig struct {
	// Token may be left empty when BOT_TOKEN is set in the environment.
	Token string `json:"token"`
	// GroupLog is the chat id receiving log lines when logging.telegram is enabled.
	GroupLog    string `json:"group_log"`
	PollTimeout string `json:"poll_timeout"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// RemindersConfig controls the reminder core.
//
// Defaults:
//   - store_path: "./reminders.json"
//   - delay: "10m"
//   - misfire_grace: "30s"
//   - audit_every: "@every 10m" (any scheduler spec; "off" disables)
type RemindersConfig struct {
	StorePath    string `json:"store_path"`
	Delay        string `json:"delay"`
	MisfireGrace string `json:"misfire_grace"`
	AuditEvery   string `json:"audit_every"`
}

// NotifierConfig controls reminder delivery.
type NotifierConfig struct {
	RatePerSec    int    `json:"rate_per_sec"`
	RetryMax      int    `json:"retry_max"`
	RetryBase     string `json:"retry_base"`
	RetryMaxDelay string `json:"retry_max_delay"`
	SendTimeout   string `json:"send_timeout"`
}

// StorageConfig controls the optional operator audit log.
//
//	"storage": { "driver": "file", "path": "./remindbot_audit" }
type StorageConfig struct {
	Driver      string `json:"driver"` // file | sqlite | none
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

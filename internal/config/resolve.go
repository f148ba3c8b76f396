package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// TokenEnv is consulted when telegram.token is empty.
const TokenEnv = "BOT_TOKEN"

const (
	DefaultStorePath    = "./reminders.json"
	DefaultDelay        = 10 * time.Minute
	DefaultMisfireGrace = 30 * time.Second
	DefaultAuditEvery   = "@every 10m"
	DefaultPollTimeout  = 10 * time.Second
)

// Resolved holds typed settings with defaults applied.
type Resolved struct {
	Token       string
	GroupLog    int64
	PollTimeout time.Duration

	StorePath    string
	Delay        time.Duration
	MisfireGrace time.Duration
	AuditEvery   string // empty when disabled

	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	SendTimeout   time.Duration

	AuditDriver      string // "" when disabled
	AuditPath        string
	AuditBusyTimeout time.Duration
}

// Resolve validates cfg and applies defaults. It reads TokenEnv from the
// process environment when the token is not set in the file.
func Resolve(cfg *Config) (Resolved, error) {
	return resolve(cfg, os.Getenv)
}

func resolve(cfg *Config, getenv func(string) string) (Resolved, error) {
	if cfg == nil {
		return Resolved{}, errors.New("config is nil")
	}
	var (
		r    Resolved
		errs []error
	)
	dur := func(path, raw string, def time.Duration) time.Duration {
		d, err := ParseDurationOrDefault(path, raw, def)
		if err != nil {
			errs = append(errs, err)
		}
		return d
	}

	r.Token = strings.TrimSpace(cfg.Telegram.Token)
	if r.Token == "" {
		r.Token = strings.TrimSpace(getenv(TokenEnv))
	}
	if gl := strings.TrimSpace(cfg.Telegram.GroupLog); gl != "" {
		id, err := strconv.ParseInt(gl, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("telegram.group_log: invalid chat id %q", gl))
		}
		r.GroupLog = id
	}
	r.PollTimeout = dur("telegram.poll_timeout", cfg.Telegram.PollTimeout, DefaultPollTimeout)

	rc := cfg.Reminders
	r.StorePath = strings.TrimSpace(rc.StorePath)
	if r.StorePath == "" {
		r.StorePath = DefaultStorePath
	}
	r.Delay = dur("reminders.delay", rc.Delay, DefaultDelay)
	r.MisfireGrace = dur("reminders.misfire_grace", rc.MisfireGrace, DefaultMisfireGrace)
	switch s := strings.TrimSpace(rc.AuditEvery); strings.ToLower(s) {
	case "":
		r.AuditEvery = DefaultAuditEvery
	case "off", "none", "disabled":
		r.AuditEvery = ""
	default:
		r.AuditEvery = s
	}

	nc := cfg.Notifier
	if nc.RatePerSec < 0 || nc.RetryMax < 0 {
		errs = append(errs, errors.New("notifier: rate_per_sec and retry_max must be >= 0"))
	}
	r.RatePerSec = nc.RatePerSec
	if r.RatePerSec == 0 {
		r.RatePerSec = 20
	}
	r.RetryMax = nc.RetryMax
	if r.RetryMax == 0 {
		r.RetryMax = 3
	}
	r.RetryBase = dur("notifier.retry_base", nc.RetryBase, 500*time.Millisecond)
	r.RetryMaxDelay = dur("notifier.retry_max_delay", nc.RetryMaxDelay, 10*time.Second)
	r.SendTimeout = dur("notifier.send_timeout", nc.SendTimeout, 15*time.Second)

	if sc := cfg.Storage; sc != nil {
		driver := strings.ToLower(strings.TrimSpace(sc.Driver))
		switch driver {
		case "", "none", "off", "disabled":
		case "file", "sqlite":
			r.AuditDriver = driver
			r.AuditPath = strings.TrimSpace(sc.Path)
			r.AuditBusyTimeout = dur("storage.busy_timeout", sc.BusyTimeout, 5*time.Second)
		default:
			errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", sc.Driver))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return Resolved{}, err
	}
	return r, nil
}

// Validate checks cfg for errors without requiring a token. It is the hook
// used for hot reloads.
func Validate(cfg *Config) error {
	_, err := Resolve(cfg)
	return err
}

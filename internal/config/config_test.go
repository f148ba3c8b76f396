package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleJSON = `{
  "telegram": {"token": "abc", "group_log": "-100123", "poll_timeout": "20s"},
  "logging": {"level": "debug", "console": true},
  "reminders": {"store_path": "/tmp/r.json", "delay": "5m", "misfire_grace": "1m"},
  "notifier": {"rate_per_sec": 5}
}`

const sampleYAML = `
telegram:
  token: abc
  group_log: "-100123"
  poll_timeout: 20s
logging:
  level: debug
  console: true
reminders:
  store_path: /tmp/r.json
  delay: 5m
  misfire_grace: 1m
notifier:
  rate_per_sec: 5
`

func TestDecodeJSONAndYAMLAgree(t *testing.T) {
	t.Parallel()
	j, err := Decode("config.json", []byte(sampleJSON))
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	y, err := Decode("config.yaml", []byte(sampleYAML))
	if err != nil {
		t.Fatalf("yaml: %v", err)
	}
	if hashConfig(j) != hashConfig(y) {
		t.Fatalf("json and yaml decoded differently:\n%+v\n%+v", j, y)
	}
}

func TestDecodeRejectsUnknownFieldsAndTrailingData(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		path string
		data string
	}{
		{name: "unknown json", path: "c.json", data: `{"reminders": {"delai": "5m"}}`},
		{name: "unknown yaml", path: "c.yml", data: "plugins:\n  echo: {}\n"},
		{name: "trailing", path: "c.json", data: `{} {}`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := Decode(tt.path, []byte(tt.data)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestResolveDefaults(t *testing.T) {
	t.Parallel()
	r, err := resolve(&Config{}, func(string) string { return "" })
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if r.StorePath != DefaultStorePath || r.Delay != DefaultDelay || r.MisfireGrace != DefaultMisfireGrace {
		t.Fatalf("unexpected defaults: %+v", r)
	}
	if r.AuditEvery != DefaultAuditEvery {
		t.Fatalf("AuditEvery = %q", r.AuditEvery)
	}
	if r.AuditDriver != "" {
		t.Fatalf("audit should be disabled by default, got %q", r.AuditDriver)
	}
	if r.PollTimeout != DefaultPollTimeout || r.RatePerSec <= 0 || r.RetryMax <= 0 {
		t.Fatalf("unexpected notifier/telegram defaults: %+v", r)
	}
}

func TestResolveOverridesAndEnvToken(t *testing.T) {
	t.Parallel()
	cfg, err := Decode("c.json", []byte(sampleJSON))
	if err != nil {
		t.Fatal(err)
	}
	cfg.Telegram.Token = ""
	cfg.Reminders.AuditEvery = "off"
	cfg.Storage = &StorageConfig{Driver: "file", Path: "./audit"}

	r, err := resolve(cfg, func(k string) string {
		if k == TokenEnv {
			return " from-env "
		}
		return ""
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if r.Token != "from-env" {
		t.Fatalf("Token = %q", r.Token)
	}
	if r.GroupLog != -100123 {
		t.Fatalf("GroupLog = %d", r.GroupLog)
	}
	if r.Delay != 5*time.Minute || r.MisfireGrace != time.Minute || r.PollTimeout != 20*time.Second {
		t.Fatalf("durations not applied: %+v", r)
	}
	if r.AuditEvery != "" {
		t.Fatalf("audit_every off should disable, got %q", r.AuditEvery)
	}
	if r.AuditDriver != "file" || r.AuditPath != "./audit" {
		t.Fatalf("storage not applied: %+v", r)
	}
}

func TestResolveCollectsErrors(t *testing.T) {
	t.Parallel()
	cfg := &Config{
		Telegram:  TelegramConfig{GroupLog: "not-a-number"},
		Reminders: RemindersConfig{Delay: "ten minutes"},
		Storage:   &StorageConfig{Driver: "postgres"},
	}
	_, err := resolve(cfg, func(string) string { return "" })
	if err == nil {
		t.Fatalf("expected error")
	}
	for _, want := range []string{"telegram.group_log", "reminders.delay", "storage.driver"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %s", err, want)
		}
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	oldCfg := &Config{Telegram: TelegramConfig{Token: "secret-old"}}
	newCfg := &Config{
		Telegram:  TelegramConfig{Token: "secret-new"},
		Reminders: RemindersConfig{Delay: "15m"},
		Storage:   &StorageConfig{Driver: "sqlite"},
	}
	changed, attrs := SummarizeConfigChange(oldCfg, newCfg)
	want := []string{"reminders", "storage", "telegram"}
	if strings.Join(changed, ",") != strings.Join(want, ",") {
		t.Fatalf("changed = %v, want %v", changed, want)
	}
	if len(attrs) == 0 {
		t.Fatalf("expected attrs")
	}
	if got := RequiresRestart(changed); strings.Join(got, ",") != "storage,telegram" {
		t.Fatalf("RequiresRestart = %v", got)
	}
}

func TestWatchPublishesValidChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"reminders": {"delay": "5m"}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	m := NewConfigManager(path)
	m.debounce = 20 * time.Millisecond
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	m.SetValidator(func(_ context.Context, cfg *Config) error { return Validate(cfg) })
	sub := m.Subscribe(1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Watch(ctx)
	}()

	// Give the watcher a moment to register the directory.
	time.Sleep(100 * time.Millisecond)

	// Invalid duration is rejected and never published.
	if err := os.WriteFile(path, []byte(`{"reminders": {"delay": "soon"}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(150 * time.Millisecond)
	if err := os.WriteFile(path, []byte(`{"reminders": {"delay": "7m"}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-sub:
		if cfg.Reminders.Delay != "7m" {
			t.Fatalf("published delay = %q, want 7m", cfg.Reminders.Delay)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no config published")
	}
	if got := m.Get().Reminders.Delay; got != "7m" {
		t.Fatalf("Get().Reminders.Delay = %q", got)
	}

	cancel()
	<-done
}

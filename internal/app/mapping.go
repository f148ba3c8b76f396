package app

import (
	"remindbot/internal/bot"
	"remindbot/internal/config"
	"remindbot/internal/notifier"
	"remindbot/internal/storage"
	"remindbot/internal/task/scheduler"
	"remindbot/pkg/logx"
)

func logConfig(cfg *config.Config) logx.Config {
	lc := cfg.Logging
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File: logx.FileConfig{
			Enabled: lc.File.Enabled,
			Path:    lc.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    lc.Telegram.Enabled,
			ThreadID:   lc.Telegram.ThreadID,
			MinLevel:   lc.Telegram.MinLevel,
			RatePerSec: lc.Telegram.RatePerSec,
		},
	}
}

func notifierConfig(r config.Resolved) notifier.Config {
	return notifier.Config{
		RatePerSec:    r.RatePerSec,
		RetryMax:      r.RetryMax,
		RetryBase:     r.RetryBase,
		RetryMaxDelay: r.RetryMaxDelay,
		SendTimeout:   r.SendTimeout,
		Delay:         r.Delay,
	}
}

func schedulerConfig(r config.Resolved) scheduler.Config {
	return scheduler.Config{MisfireGrace: r.MisfireGrace}
}

func storageConfig(r config.Resolved) storage.Config {
	return storage.Config{Driver: r.AuditDriver, Path: r.AuditPath, BusyTimeout: r.AuditBusyTimeout}
}

func botConfig(r config.Resolved) bot.Config {
	return bot.Config{Delay: r.Delay}
}

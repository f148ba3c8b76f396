package app

import (
	"strings"

	"remindbot/internal/config"
	"remindbot/pkg/logx"
)

// applyConfig pushes a reloaded config into the running components. Settings
// that only take effect at startup are reported and left alone.
func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	if restart := config.RequiresRestart(sections); len(restart) > 0 {
		a.log.Warn("config sections changed; restart required for changes to take effect",
			logx.String("sections", strings.Join(restart, ",")))
	}

	r, err := config.Resolve(newCfg)
	if err != nil {
		a.log.Warn("invalid config; keeping previous", logx.Err(err))
		return
	}

	if a.logs != nil {
		lc := logConfig(newCfg)
		a.logs.SetTelegramTarget(r.GroupLog, lc.Telegram.ThreadID)
		a.logs.Apply(lc)
	}
	if a.notif != nil {
		a.notif.Apply(notifierConfig(r))
	}
	if a.mgr != nil {
		a.mgr.SetDelay(r.Delay)
	}
	if a.router != nil {
		a.router.SetDelay(r.Delay)
	}
	if a.sched != nil {
		a.sched.Apply(schedulerConfig(r))
		a.applyAuditSchedule(r.AuditEvery)
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

// applyAuditSchedule re-registers the audit job when its schedule changed.
func (a *App) applyAuditSchedule(every string) {
	if every == a.auditEvery {
		return
	}
	a.sched.Remove(jobAudit)
	a.auditEvery = every
	if every == "" {
		a.log.Info("reminder audit disabled")
		return
	}
	if err := a.scheduleAudit(); err != nil {
		a.log.Warn("reschedule audit failed", logx.Err(err))
	}
}

// Package scheduler arms one-shot reminder timers and runs periodic jobs.
//
// One-shot timers are keyed by job id. Scheduling an id that is already armed
// replaces the previous timer; a version counter makes a stale callback from
// the replaced timer a no-op. Expired timers never run user code: they enqueue
// a Firing on the Fired channel, which a single consumer drains.
//
// Periodic jobs (cron expressions, @every, Go durations, HH:MM intervals) run
// on robfig/cron.
package scheduler

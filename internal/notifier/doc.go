// Package notifier delivers due reminders to their owners over the chat
// transport.
//
// Every delivery waits on a shared token bucket, is bounded by a per-attempt
// send timeout and is retried with jittered exponential backoff. A chat that
// can no longer be reached is reported as reminder.ErrUnreachable right away
// and never retried.
package notifier

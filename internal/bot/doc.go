// Package bot is the chat front-end of the reminder service.
//
// It turns transport updates into Manager calls: the /start menu, the
// two-step "add reminder" conversation (time, then text), the per-owner list
// with delete buttons and the delay/delete buttons attached to delivered
// reminders. Updates from one chat are handled in arrival order; different
// chats are handled in parallel.
package bot

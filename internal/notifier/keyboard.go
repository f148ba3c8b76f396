package notifier

import (
	"fmt"
	"time"

	tele "gopkg.in/telebot.v4"

	"remindbot/internal/reminder"
	"remindbot/pkg/tgui"
)

// Callback data is "rem:<action>:<job_id>".
const (
	CallbackNS   = "rem"
	ActionDelay  = "delay"
	ActionDelete = "delete"
)

// ReminderKeyboard is attached to every delivered reminder. A job id too long
// for Telegram's callback data gets no buttons; Telegram would reject the
// whole message otherwise.
func ReminderKeyboard(jobID string, delay time.Duration) *tgui.Inline {
	kb := tgui.NewInline()
	if btn, ok := CallbackButton("⏰ "+DelayLabel(delay), ActionDelay, jobID); ok {
		kb.Row(btn)
	}
	if btn, ok := CallbackButton("❌ Delete", ActionDelete, jobID); ok {
		kb.Row(btn)
	}
	return kb
}

// CallbackButton builds a reminder button. It reports false when the
// callback data would exceed tgui.MaxCallbackDataLen.
func CallbackButton(text, action, jobID string) (tele.Btn, bool) {
	data, err := tgui.CheckedData(CallbackNS, action, jobID)
	if err != nil {
		return tele.Btn{}, false
	}
	return tgui.Btn(text, data), true
}

// DelayLabel renders the snooze button text, e.g. "Delay 10 min".
func DelayLabel(d time.Duration) string {
	if d <= 0 {
		d = reminder.DefaultDelay
	}
	if d%time.Minute == 0 {
		return fmt.Sprintf("Delay %d min", int(d/time.Minute))
	}
	return "Delay " + d.String()
}

// Render builds the reminder message for n.
func Render(n reminder.Notice, delay time.Duration) tgui.Message {
	return tgui.New().
		RawLine(tgui.JoinH(" ", tgui.Esc("🔔"), tgui.B("Reminder:"), tgui.Esc(n.Text))).
		Inline(ReminderKeyboard(n.JobID, delay)).
		Build()
}

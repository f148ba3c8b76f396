package bot

import (
	"fmt"
	"strconv"
	"time"

	"remindbot/internal/notifier"
	"remindbot/internal/reminder"
	"remindbot/pkg/tgui"
)

// Callback actions handled here in addition to notifier.ActionDelay and
// notifier.ActionDelete.
const (
	actionAdd  = "add"
	actionList = "list"
	actionBack = "back"
)

const (
	clockLayout   = "15:04"
	listLabelRune = 20
)

func mainMenu() *tgui.Inline {
	return tgui.NewInline().
		Row(tgui.Btn("➕ Add reminder", tgui.Data(notifier.CallbackNS, actionAdd, ""))).
		Row(tgui.Btn("📋 My reminders", tgui.Data(notifier.CallbackNS, actionList, "")))
}

func welcomeView() tgui.Message {
	return tgui.New().
		Line("👋 Hi! I am a reminder bot.").
		Blank().
		Line("Press a button to add or view your reminders:").
		Inline(mainMenu()).
		Build()
}

func menuView(text string) tgui.Message {
	return tgui.New().Line(text).Inline(mainMenu()).Build()
}

func plainView(text string) tgui.Message {
	return tgui.New().Line(text).Build()
}

// listView renders the owner's reminders with one delete button per row and
// a back button.
func listView(rs []reminder.Reminder) tgui.Message {
	if len(rs) == 0 {
		return menuView(msgListEmpty)
	}
	b := tgui.New().Title("📋", "Your reminders:").Blank()
	kb := tgui.NewInline()
	for i, r := range rs {
		idx := strconv.Itoa(i + 1)
		at := r.FireAt.Format(clockLayout)
		b.Line(idx + ". " + at + " — " + r.Text)
		label := "❌ " + idx + ". " + at + " — " + tgui.TruncRunes(r.Text, listLabelRune)
		if btn, ok := notifier.CallbackButton(label, notifier.ActionDelete, r.JobID); ok {
			kb.Row(btn)
		}
	}
	kb.Row(tgui.Btn("⬅️ Back", tgui.Data(notifier.CallbackNS, actionBack, "")))
	return b.Inline(kb).Build()
}

func createdText(r reminder.Reminder) string {
	return fmt.Sprintf("✅ Reminder set for %s: %s", r.FireAt.Format(clockLayout), r.Text)
}

func delayedText(r reminder.Reminder, d time.Duration) string {
	return fmt.Sprintf("⏰ Reminder delayed by %s: %s", humanDelay(d), r.Text)
}

func humanDelay(d time.Duration) string {
	if d%time.Minute == 0 {
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	}
	return d.String()
}

const (
	msgAskTime    = "⏰ Enter the reminder time (for example 9:30, 09.30, 930):"
	msgBadTime    = "❌ Invalid format. Enter the time as HH:MM (for example 09:30)."
	msgAskText    = "📝 Now enter the reminder text:"
	msgEmptyText  = "📝 The text cannot be empty. Enter the reminder text:"
	msgListEmpty  = "📭 You have no active reminders."
	msgBack       = "⬅️ Main menu"
	msgDeleted    = "❌ Reminder deleted."
	msgNotFound   = "❌ Reminder not found."
	msgCancelled  = "Cancelled."
	msgSaveFailed = "⚠️ Could not save the reminder, please try again later."
	msgUnknownCmd = "Unknown command. Try /start"
	msgIdleText   = "Press /start to add or view reminders."
)

package bot

import (
	"context"
	"errors"
	"strings"

	"remindbot/internal/notifier"
	"remindbot/internal/reminder"
	"remindbot/internal/timespec"
	kit "remindbot/internal/transport"
	"remindbot/pkg/logx"
	"remindbot/pkg/tgui"
)

func (r *Router) registerRoutes() {
	r.commands = map[string]HandlerFunc{
		"start":  r.handleStart,
		"add":    r.handleAdd,
		"list":   r.handleList,
		"cancel": r.handleCancel,
	}
	ns := notifier.CallbackNS + ":"
	r.callbacks = map[string]HandlerFunc{
		ns + actionAdd:             r.handleAdd,
		ns + actionList:            r.handleList,
		ns + actionBack:            r.handleBack,
		ns + notifier.ActionDelete: r.handleDelete,
		ns + notifier.ActionDelay:  r.handleDelay,
	}
	r.text = r.handleText
}

func (r *Router) send(ctx context.Context, req *Request, m tgui.Message) error {
	_, err := m.Send(ctx, r.adapter, req.Chat)
	return err
}

// show edits the message a button was pressed on, or sends a new message for
// text commands.
func (r *Router) show(ctx context.Context, req *Request, m tgui.Message) error {
	if req.Update.Kind == kit.UpdateCallback && req.MessageID != 0 {
		ref := kit.MessageRef{ChatID: req.Chat.ChatID, ThreadID: req.Chat.ThreadID, MessageID: req.MessageID}
		return m.Edit(ctx, r.adapter, ref)
	}
	return r.send(ctx, req, m)
}

func (r *Router) handleStart(ctx context.Context, req *Request) error {
	r.sessions.clear(req.OwnerID())
	return r.send(ctx, req, welcomeView())
}

func (r *Router) handleAdd(ctx context.Context, req *Request) error {
	r.sessions.set(req.OwnerID(), session{stage: stageTime})
	return r.send(ctx, req, plainView(msgAskTime))
}

func (r *Router) handleCancel(ctx context.Context, req *Request) error {
	r.sessions.clear(req.OwnerID())
	return r.send(ctx, req, menuView(msgCancelled))
}

func (r *Router) handleUnknown(ctx context.Context, req *Request) error {
	return r.send(ctx, req, plainView(msgUnknownCmd))
}

func (r *Router) handleList(ctx context.Context, req *Request) error {
	return r.show(ctx, req, listView(r.reminders.List(req.OwnerID())))
}

func (r *Router) handleBack(ctx context.Context, req *Request) error {
	return r.show(ctx, req, menuView(msgBack))
}

// handleText drives the add conversation: a time, then the text.
func (r *Router) handleText(ctx context.Context, req *Request) error {
	owner := req.OwnerID()
	st := r.sessions.get(owner)
	switch st.stage {
	case stageTime:
		clock, err := timespec.Parse(req.Text)
		if err != nil {
			req.Logger.Debug("time rejected", logx.String("input", req.Text), logx.Err(err))
			r.sessions.set(owner, st)
			return r.send(ctx, req, plainView(msgBadTime))
		}
		r.sessions.set(owner, session{stage: stageText, clock: clock})
		return r.send(ctx, req, plainView(msgAskText))

	case stageText:
		if strings.TrimSpace(req.Text) == "" {
			return r.send(ctx, req, plainView(msgEmptyText))
		}
		rem, err := r.reminders.Create(ctx, owner, st.clock, req.Text)
		r.sessions.clear(owner)
		if err != nil {
			_ = r.send(ctx, req, menuView(msgSaveFailed))
			return err
		}
		return r.send(ctx, req, menuView(createdText(rem)))

	default:
		return r.send(ctx, req, plainView(msgIdleText))
	}
}

func (r *Router) handleDelete(ctx context.Context, req *Request) error {
	if _, ok := r.owned(req); !ok {
		return r.send(ctx, req, plainView(msgNotFound))
	}
	err := r.reminders.Delete(ctx, req.Payload)
	switch {
	case errors.Is(err, reminder.ErrNotFound):
		return r.send(ctx, req, plainView(msgNotFound))
	case err != nil:
		return err
	}
	return r.show(ctx, req, menuView(msgDeleted))
}

func (r *Router) handleDelay(ctx context.Context, req *Request) error {
	if _, ok := r.owned(req); !ok {
		return r.send(ctx, req, plainView(msgNotFound))
	}
	rem, err := r.reminders.Delay(ctx, req.Payload)
	switch {
	case errors.Is(err, reminder.ErrNotFound):
		return r.send(ctx, req, plainView(msgNotFound))
	case err != nil:
		return err
	}
	return r.show(ctx, req, menuView(delayedText(rem, r.delayDuration())))
}

// owned reports whether the callback's job id names a reminder of this chat.
// Reminders of other chats are reported as not found.
func (r *Router) owned(req *Request) (reminder.Reminder, bool) {
	if req.Payload == "" {
		return reminder.Reminder{}, false
	}
	rem, ok := r.reminders.Get(req.Payload)
	if !ok || rem.OwnerID != req.OwnerID() {
		return reminder.Reminder{}, false
	}
	return rem, true
}

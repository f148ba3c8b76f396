package bot

import (
	"context"
	"time"

	kit "remindbot/internal/transport"
	"remindbot/pkg/logx"
)

// Commands is the command menu shown by Telegram clients.
func Commands() []kit.BotCommand {
	return []kit.BotCommand{
		{Command: "start", Description: "Main menu"},
		{Command: "add", Description: "Add a reminder"},
		{Command: "list", Description: "My reminders"},
		{Command: "cancel", Description: "Cancel adding a reminder"},
	}
}

// PublishMenu pushes Commands to the adapter when it supports command menus.
func (r *Router) PublishMenu(ctx context.Context) error {
	up, ok := r.adapter.(kit.CommandMenuUpdater)
	if !ok {
		return nil
	}
	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := up.UpdateMenuCommands(cctx, Commands()); err != nil {
		r.log.Warn("menu update failed", logx.Err(err))
		return err
	}
	return nil
}

package adapter

import (
	"errors"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v4"

	kit "remindbot/internal/transport"
)

// Descriptions Telegram returns when a chat can never be reached again.
var unreachableHints = []string{
	"bot was blocked by the user",
	"chat not found",
	"user is deactivated",
	"bot was kicked",
	"bot can't initiate conversation",
	"have no rights to send a message",
}

// classify wraps err with transport.ErrChatUnreachable when Telegram says the
// chat is gone. Anything else (network failures, flood limits, 5xx) is
// returned unchanged and may be retried.
func classify(err error) error {
	if err == nil || errors.Is(err, kit.ErrChatUnreachable) {
		return err
	}
	if isUnreachable(err) {
		return fmt.Errorf("%w: %w", kit.ErrChatUnreachable, err)
	}
	return err
}

func isUnreachable(err error) bool {
	var te *tele.Error
	if errors.As(err, &te) {
		if te.Code == 403 {
			return true
		}
		if matchesHint(te.Description) || matchesHint(te.Message) {
			return true
		}
	}
	return matchesHint(err.Error())
}

func matchesHint(s string) bool {
	s = strings.ToLower(s)
	for _, h := range unreachableHints {
		if strings.Contains(s, h) {
			return true
		}
	}
	return false
}

func isNotModified(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "message is not modified")
}

package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"net/http"
	"strings"

	kit "remindbot/internal/transport"
	"remindbot/pkg/logx"
)

var _ kit.CommandMenuUpdater = (*Adapter)(nil)

const apiBase = "https://api.telegram.org/bot"

type menuCommand struct {
	Command     string `json:"command"`
	Description string `json:"description"`
}

// UpdateMenuCommands publishes the bot's command menu (setMyCommands). The
// call is skipped when the list is unchanged since the last success.
func (a *Adapter) UpdateMenuCommands(ctx context.Context, cmds []kit.BotCommand) error {
	a.menuMu.Lock()
	defer a.menuMu.Unlock()

	list := menuPayload(cmds)
	sum := menuHash(list)
	if sum == a.menuHash {
		return nil
	}

	body, err := json.Marshal(struct {
		Commands []menuCommand `json:"commands"`
	}{Commands: list})
	if err != nil {
		return err
	}
	url := apiBase + strings.TrimSpace(a.cfg.Token) + "/setMyCommands"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var out struct {
		OK          bool   `json:"ok"`
		ErrorCode   int    `json:"error_code"`
		Description string `json:"description"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	if resp.StatusCode/100 != 2 || !out.OK {
		if out.Description != "" {
			return fmt.Errorf("telegram setMyCommands failed: %s (code=%d http=%d)", out.Description, out.ErrorCode, resp.StatusCode)
		}
		return fmt.Errorf("telegram setMyCommands failed: http=%d", resp.StatusCode)
	}

	a.menuHash = sum
	a.log.Info("menu commands updated", logx.Int("count", len(list)))
	return nil
}

// menuPayload applies Telegram's limits: at most 100 commands, descriptions
// of at most 256 bytes, no empty command names.
func menuPayload(cmds []kit.BotCommand) []menuCommand {
	out := make([]menuCommand, 0, len(cmds))
	for _, c := range cmds {
		name := strings.TrimPrefix(strings.TrimSpace(c.Command), "/")
		if name == "" {
			continue
		}
		d := c.Description
		if d == "" {
			d = name
		}
		if len(d) > 256 {
			d = d[:256]
		}
		out = append(out, menuCommand{Command: name, Description: d})
		if len(out) == 100 {
			break
		}
	}
	return out
}

func menuHash(list []menuCommand) uint64 {
	h := fnv.New64a()
	for _, c := range list {
		h.Write([]byte(c.Command))
		h.Write([]byte{0})
		h.Write([]byte(c.Description))
		h.Write([]byte{0})
	}
	return h.Sum64()
}

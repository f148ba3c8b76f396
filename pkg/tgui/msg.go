package tgui

import (
	"context"
	"strings"

	kit "remindbot/internal/transport"
)

// Message is rendered text plus the options to send it with.
type Message struct {
	Text string
	Opt  *kit.SendOptions
}

// Send sends m to a chat.
func (m Message) Send(ctx context.Context, s kit.Sender, to kit.ChatTarget) (kit.MessageRef, error) {
	return s.SendText(ctx, to, m.Text, m.options())
}

// Editor edits a message in place.
type Editor interface {
	EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error
}

// Edit replaces the message at ref with m.
func (m Message) Edit(ctx context.Context, e Editor, ref kit.MessageRef) error {
	return e.EditText(ctx, ref, m.Text, m.options())
}

func (m Message) options() *kit.SendOptions {
	if m.Opt == nil {
		return &kit.SendOptions{}
	}
	return m.Opt
}

// Builder assembles a Message line by line. Text added with Line is escaped;
// RawLine takes H as is.
type Builder struct {
	kb    *Inline
	lines []string
}

func New() *Builder { return &Builder{} }

// Inline attaches a keyboard. A nil or empty keyboard removes it.
func (b *Builder) Inline(kb *Inline) *Builder {
	b.kb = kb
	return b
}

// Title adds a bold line, prefixed by emoji when given.
func (b *Builder) Title(emoji, title string) *Builder {
	t := strings.TrimSpace(title)
	if t == "" {
		return b
	}
	line := B(t)
	if e := strings.TrimSpace(emoji); e != "" {
		line = Esc(e) + " " + line
	}
	b.lines = append(b.lines, line.String())
	return b
}

func (b *Builder) Line(s string) *Builder {
	b.lines = append(b.lines, Esc(s).String())
	return b
}

func (b *Builder) RawLine(h H) *Builder {
	b.lines = append(b.lines, h.String())
	return b
}

func (b *Builder) Blank() *Builder { return b.Line("") }

// Build returns the Message with ParseMode HTML and link previews disabled.
func (b *Builder) Build() Message {
	opt := &kit.SendOptions{ParseMode: "HTML", DisablePreview: true}
	if b.kb != nil && b.kb.Rows() > 0 {
		opt.ReplyMarkupAdapter = b.kb.Markup()
	}
	return Message{Text: strings.Trim(strings.Join(b.lines, "\n"), "\n"), Opt: opt}
}

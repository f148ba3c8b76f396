package bot

import (
	"context"
	"math/rand/v2"
	"runtime/debug"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"remindbot/internal/reminder"
	"remindbot/internal/runtime/supervisor"
	"remindbot/internal/timespec"
	kit "remindbot/internal/transport"
	"remindbot/pkg/logx"
	"remindbot/pkg/tgui"
)

const (
	defaultWorkers        = 4
	defaultQueueSize      = 64
	defaultHandlerTimeout = 15 * time.Second
	defaultSessionTTL     = 30 * time.Minute
)

// Reminders is the part of reminder.Manager the front-end uses.
type Reminders interface {
	Create(ctx context.Context, ownerID int64, clock timespec.Clock, text string) (reminder.Reminder, error)
	Delete(ctx context.Context, jobID string) error
	Delay(ctx context.Context, jobID string) (reminder.Reminder, error)
	List(ownerID int64) []reminder.Reminder
	Get(jobID string) (reminder.Reminder, bool)
}

type Config struct {
	// Workers is the number of chat shards handled in parallel.
	Workers int
	// QueueSize bounds pending updates per shard.
	QueueSize      int
	HandlerTimeout time.Duration
	// SessionTTL is how long an unfinished add conversation is remembered.
	SessionTTL time.Duration
	// Delay is the snooze duration shown in confirmations.
	Delay time.Duration
}

type Request struct {
	Update    kit.Update
	Chat      kit.ChatTarget
	FromID    int64
	MessageID int
	Command   string
	Text      string
	Payload   string
	ReqID     string
	Logger    logx.Logger
}

// OwnerID identifies whose reminders a request touches: the chat.
func (r *Request) OwnerID() int64 { return r.Chat.ChatID }

type Router struct {
	cfg       Config
	log       logx.Logger
	adapter   kit.Adapter
	reminders Reminders
	sessions  *sessions
	delay     atomic.Int64

	commands  map[string]HandlerFunc
	callbacks map[string]HandlerFunc
	text      HandlerFunc
}

func New(cfg Config, adapter kit.Adapter, reminders Reminders, log logx.Logger) *Router {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = defaultHandlerTimeout
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultSessionTTL
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Router{
		cfg:       cfg,
		log:       log,
		adapter:   adapter,
		reminders: reminders,
		sessions:  newSessions(cfg.SessionTTL, nil),
	}
	r.SetDelay(cfg.Delay)
	r.registerRoutes()
	return r
}

// SetDelay updates the snooze duration quoted to users.
func (r *Router) SetDelay(d time.Duration) {
	if d <= 0 {
		d = reminder.DefaultDelay
	}
	r.delay.Store(int64(d))
}

func (r *Router) delayDuration() time.Duration { return time.Duration(r.delay.Load()) }

// PruneSessions forgets abandoned add conversations.
func (r *Router) PruneSessions(context.Context) error {
	if n := r.sessions.prune(); n > 0 {
		r.log.Debug("sessions pruned", logx.Int("count", n), logx.Int("left", r.sessions.len()))
	}
	return nil
}

// DispatchLoop consumes updates until ctx ends or updates is closed. Each chat
// is pinned to one worker so its updates are handled in order.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	sup := supervisor.New(ctx,
		supervisor.WithLogger(r.log.With(logx.String("comp", "bot.router"))),
		supervisor.WithCancelOnError(false),
	)
	shards := make([]chan kit.Update, r.cfg.Workers)
	for i := range shards {
		shards[i] = make(chan kit.Update, r.cfg.QueueSize)
		q := shards[i]
		idx := i
		sup.GoRestart("worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case up := <-q:
					r.safeHandle(c, up, idx)
				}
			}
		},
			supervisor.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			supervisor.WithStopOnCleanExit(true),
		)
	}
	r.log.Info("dispatcher started", logx.Int("workers", len(shards)), logx.Int("queue_cap", r.cfg.QueueSize))

	defer func() {
		sup.Cancel()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		r.log.Info("dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			chatID := updateChat(up)
			select {
			case shards[shardFor(chatID, len(shards))] <- up:
			default:
				r.reject(ctx, up)
			}
		}
	}
}

func (r *Router) safeHandle(ctx context.Context, up kit.Update, worker int) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("panic in update handler", logx.Int("worker", worker), logx.Any("panic", p), logx.String("stack", string(debug.Stack())))
		}
	}()
	_ = r.Handle(ctx, up)
}

// reject tells the user the bot is overloaded.
func (r *Router) reject(ctx context.Context, up kit.Update) {
	switch up.Kind {
	case kit.UpdateCallback:
		_ = r.adapter.AnswerCallback(ctx, up.Callback.ID, "busy, try again")
	case kit.UpdateMessage:
		_, _ = r.adapter.SendText(ctx, kit.ChatTarget{ChatID: up.Message.ChatID, ThreadID: up.Message.ThreadID}, "busy, try again", nil)
	}
}

// Handle routes one update synchronously.
func (r *Router) Handle(ctx context.Context, up kit.Update) error {
	var (
		h   HandlerFunc
		req *Request
	)
	switch up.Kind {
	case kit.UpdateMessage:
		h, req = r.routeMessage(up)
	case kit.UpdateCallback:
		h, req = r.routeCallback(up)
	}
	if h == nil {
		if up.Kind == kit.UpdateCallback && up.Callback != nil {
			_ = r.adapter.AnswerCallback(ctx, up.Callback.ID, "")
		}
		return nil
	}

	req.ReqID = newReqID()
	req.Logger = r.log.With(
		logx.String("rid", req.ReqID),
		logx.Int64("chat_id", req.Chat.ChatID),
		logx.Int64("from_id", req.FromID),
	)
	final := Chain(h, MWPanicRecover(), MWRequestLog(), MWTimeout(r.cfg.HandlerTimeout))
	err := final(ctx, req)
	if up.Kind == kit.UpdateCallback {
		// Stops the client's loading indicator.
		_ = r.adapter.AnswerCallback(ctx, up.Callback.ID, "")
	}
	return err
}

func (r *Router) routeMessage(up kit.Update) (HandlerFunc, *Request) {
	msg := up.Message
	if msg == nil {
		return nil, nil
	}
	req := &Request{
		Update:    up,
		Chat:      kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID},
		FromID:    msg.FromID,
		MessageID: msg.ID,
		Text:      msg.Text,
	}
	if name, ok := commandName(msg.Text); ok {
		h, known := r.commands[name]
		if !known {
			req.Command = "unknown"
			return r.handleUnknown, req
		}
		req.Command = name
		return h, req
	}
	req.Command = "text"
	return r.text, req
}

func (r *Router) routeCallback(up kit.Update) (HandlerFunc, *Request) {
	cb := up.Callback
	if cb == nil {
		return nil, nil
	}
	parsed, ok := tgui.ParseData(strings.TrimSpace(cb.Data))
	if !ok {
		return nil, nil
	}
	key := parsed.NS + ":" + parsed.Action
	h, ok := r.callbacks[key]
	if !ok {
		return nil, nil
	}
	return h, &Request{
		Update:    up,
		Chat:      kit.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID},
		FromID:    cb.FromID,
		MessageID: cb.MessageID,
		Command:   "cb:" + key,
		Payload:   parsed.Payload,
	}
}

// commandName extracts "start" from "/start@remindbot arg".
func commandName(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	word, _, _ := strings.Cut(text[1:], " ")
	word, _, _ = strings.Cut(word, "@")
	return strings.ToLower(word), true
}

func updateChat(up kit.Update) int64 {
	switch {
	case up.Message != nil:
		return up.Message.ChatID
	case up.Callback != nil:
		return up.Callback.ChatID
	}
	return 0
}

func shardFor(chatID int64, n int) int {
	u := uint64(chatID)
	return int(u % uint64(n))
}

var ridSeq atomic.Uint64

// newReqID is a short request id: base36 time, sequence and two random chars.
func newReqID() string {
	const alpha = "abcdefghijklmnopqrstuvwxyz0123456789"
	n := ridSeq.Add(1)
	return strconv.FormatInt(time.Now().UnixNano(), 36) + "-" +
		strconv.FormatUint(n, 36) +
		string([]byte{alpha[rand.IntN(len(alpha))], alpha[rand.IntN(len(alpha))]})
}

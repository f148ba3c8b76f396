package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"remindbot/internal/reminder"
	"remindbot/internal/task/scheduler"
	kit "remindbot/internal/transport"
	"remindbot/pkg/logx"
)

type outMsg struct {
	chat    int64
	text    string
	edit    int // message id when edited, 0 for a new message
	buttons []string
}

type fakeAdapter struct {
	mu       sync.Mutex
	out      []outMsg
	answered []string
	nextID   int
}

func (a *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (a *fakeAdapter) Stop(context.Context) error { return nil }

func (a *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextID++
	a.out = append(a.out, outMsg{chat: to.ChatID, text: text, buttons: buttonData(opt)})
	return kit.MessageRef{ChatID: to.ChatID, MessageID: a.nextID}, nil
}

func (a *fakeAdapter) EditText(_ context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.out = append(a.out, outMsg{chat: ref.ChatID, text: text, edit: ref.MessageID, buttons: buttonData(opt)})
	return nil
}

func (a *fakeAdapter) AnswerCallback(_ context.Context, id string, _ string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.answered = append(a.answered, id)
	return nil
}

func (a *fakeAdapter) last(t *testing.T) outMsg {
	t.Helper()
	a.mu.Lock()
	defer a.mu.Unlock()
	require.NotEmpty(t, a.out, "nothing sent")
	return a.out[len(a.out)-1]
}

func (a *fakeAdapter) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.out)
}

func buttonData(opt *kit.SendOptions) []string {
	if opt == nil {
		return nil
	}
	rm, ok := opt.ReplyMarkupAdapter.(*tele.ReplyMarkup)
	if !ok {
		return nil
	}
	var out []string
	for _, row := range rm.InlineKeyboard {
		for _, b := range row {
			out = append(out, b.Data)
		}
	}
	return out
}

type memStore struct {
	mu   sync.Mutex
	data []reminder.Reminder
	fail error
}

func (s *memStore) Load() ([]reminder.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]reminder.Reminder(nil), s.data...), nil
}

func (s *memStore) Save(all []reminder.Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.data = append([]reminder.Reminder(nil), all...)
	return nil
}

type nopNotifier struct{}

func (nopNotifier) Deliver(context.Context, reminder.Notice) error { return nil }

var now = time.Date(2030, 3, 1, 8, 0, 0, 0, time.Local)

type harness struct {
	ad    *fakeAdapter
	store *memStore
	mgr   *reminder.Manager
	r     *Router
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{ad: &fakeAdapter{}, store: &memStore{}}
	h.mgr = reminder.NewManager(reminder.Config{}, reminder.Deps{
		Store:    h.store,
		Timers:   scheduler.New(scheduler.Config{}, logx.Nop(), nil),
		Notifier: nopNotifier{},
		Log:      logx.Nop(),
		Now:      func() time.Time { return now },
	})
	h.r = New(Config{}, h.ad, h.mgr, logx.Nop())
	return h
}

func (h *harness) say(t *testing.T, chat int64, text string) error {
	t.Helper()
	return h.r.Handle(context.Background(), kit.Update{
		Kind:    kit.UpdateMessage,
		Message: &kit.Message{ID: 1, ChatID: chat, FromID: chat, Text: text},
	})
}

func (h *harness) press(t *testing.T, chat int64, msgID int, data string) error {
	t.Helper()
	return h.r.Handle(context.Background(), kit.Update{
		Kind:     kit.UpdateCallback,
		Callback: &kit.Callback{ID: "cb-" + data, ChatID: chat, FromID: chat, MessageID: msgID, Data: data},
	})
}

func TestStartShowsMainMenu(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	require.NoError(t, h.say(t, 10, "/start@remind_bot"))
	m := h.ad.last(t)
	assert.Contains(t, m.text, "reminder bot")
	assert.Equal(t, []string{"rem:add", "rem:list"}, m.buttons)
}

func TestAddConversation(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	require.NoError(t, h.press(t, 10, 5, "rem:add"))
	assert.Equal(t, msgAskTime, h.ad.last(t).text)
	assert.Contains(t, h.ad.answered, "cb-rem:add")

	require.NoError(t, h.say(t, 10, "25:00"))
	assert.Equal(t, msgBadTime, h.ad.last(t).text)

	require.NoError(t, h.say(t, 10, "9.30"))
	assert.Equal(t, msgAskText, h.ad.last(t).text)

	require.NoError(t, h.say(t, 10, "call mom"))
	m := h.ad.last(t)
	assert.Equal(t, "✅ Reminder set for 09:30: call mom", m.text)
	assert.Equal(t, []string{"rem:add", "rem:list"}, m.buttons)

	list := h.mgr.List(10)
	require.Len(t, list, 1)
	assert.Equal(t, "call mom", list[0].Text)
	assert.True(t, list[0].FireAt.Equal(time.Date(2030, 3, 1, 9, 30, 0, 0, time.Local)))

	// The conversation is over; plain text no longer creates reminders.
	require.NoError(t, h.say(t, 10, "10:00"))
	assert.Equal(t, msgIdleText, h.ad.last(t).text)
	assert.Len(t, h.mgr.List(10), 1)
}

func TestAddConversationIsPerChat(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	require.NoError(t, h.say(t, 1, "/add"))
	require.NoError(t, h.say(t, 2, "12:00"))
	assert.Equal(t, msgIdleText, h.ad.last(t).text)
	require.NoError(t, h.say(t, 1, "12:00"))
	assert.Equal(t, msgAskText, h.ad.last(t).text)
}

func TestReminderTextIsStoredVerbatim(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	require.NoError(t, h.say(t, 1, "/add"))
	require.NoError(t, h.say(t, 1, "12:00"))
	require.NoError(t, h.say(t, 1, "   "))
	assert.Equal(t, msgEmptyText, h.ad.last(t).text)

	require.NoError(t, h.say(t, 1, "  buy milk\n  and bread "))
	list := h.mgr.List(1)
	require.Len(t, list, 1)
	assert.Equal(t, "  buy milk\n  and bread ", list[0].Text)
}

func TestListSkipsButtonForOversizedJobID(t *testing.T) {
	t.Parallel()
	long := "7_" + strings.Repeat("x", 60)
	m := listView([]reminder.Reminder{
		{JobID: long, OwnerID: 7, FireAt: now.Add(time.Hour), Text: "legacy"},
		{JobID: "7_a", OwnerID: 7, FireAt: now.Add(2 * time.Hour), Text: "fresh"},
	})
	assert.Contains(t, m.Text, "1. 09:00 — legacy")
	assert.Equal(t, []string{"rem:delete:7_a", "rem:back"}, buttonData(m.Opt))
}

func TestCancelAbortsConversation(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	require.NoError(t, h.say(t, 1, "/add"))
	require.NoError(t, h.say(t, 1, "/cancel"))
	require.NoError(t, h.say(t, 1, "12:00"))
	assert.Equal(t, msgIdleText, h.ad.last(t).text)
}

func TestSaveFailureIsReported(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	require.NoError(t, h.say(t, 1, "/add"))
	require.NoError(t, h.say(t, 1, "12:00"))
	h.store.fail = errors.New("disk full")
	require.Error(t, h.say(t, 1, "x"))
	assert.Equal(t, msgSaveFailed, h.ad.last(t).text)
	assert.Empty(t, h.mgr.List(1))
}

func TestListShowsRemindersWithDeleteButtons(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	a, err := h.mgr.CreateRaw(ctx, 7, "09:30", "a rather long reminder text that gets cut")
	require.NoError(t, err)
	b, err := h.mgr.CreateRaw(ctx, 7, "18:00", "b")
	require.NoError(t, err)
	_, err = h.mgr.CreateRaw(ctx, 8, "18:00", "not mine")
	require.NoError(t, err)

	require.NoError(t, h.press(t, 7, 42, "rem:list"))
	m := h.ad.last(t)
	assert.Equal(t, 42, m.edit, "list should edit the menu message")
	assert.Contains(t, m.text, "1. 09:30 — a rather long reminder text that gets cut")
	assert.Contains(t, m.text, "2. 18:00 — b")
	assert.NotContains(t, m.text, "not mine")
	assert.Equal(t, []string{"rem:delete:" + a.JobID, "rem:delete:" + b.JobID, "rem:back"}, m.buttons)

	require.NoError(t, h.press(t, 9, 43, "rem:list"))
	assert.Equal(t, msgListEmpty, h.ad.last(t).text)

	require.NoError(t, h.press(t, 7, 42, "rem:back"))
	assert.Equal(t, msgBack, h.ad.last(t).text)
}

func TestDeleteCallback(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	r, err := h.mgr.CreateRaw(context.Background(), 7, "09:30", "x")
	require.NoError(t, err)

	// Another chat cannot delete it.
	require.NoError(t, h.press(t, 8, 1, "rem:delete:"+r.JobID))
	assert.Equal(t, msgNotFound, h.ad.last(t).text)
	assert.Len(t, h.mgr.List(7), 1)

	require.NoError(t, h.press(t, 7, 3, "rem:delete:"+r.JobID))
	m := h.ad.last(t)
	assert.Equal(t, msgDeleted, m.text)
	assert.Equal(t, 3, m.edit)
	assert.Empty(t, h.mgr.List(7))

	require.NoError(t, h.press(t, 7, 3, "rem:delete:"+r.JobID))
	assert.Equal(t, msgNotFound, h.ad.last(t).text)
	assert.Zero(t, h.ad.last(t).edit)
}

func TestDelayCallback(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	r, err := h.mgr.CreateRaw(context.Background(), 7, "09:30", "stretch")
	require.NoError(t, err)

	require.NoError(t, h.press(t, 7, 9, "rem:delay:"+r.JobID))
	assert.Equal(t, "⏰ Reminder delayed by 10 minutes: stretch", h.ad.last(t).text)
	got, ok := h.mgr.Get(r.JobID)
	require.True(t, ok)
	assert.True(t, got.FireAt.Equal(r.FireAt.Add(10*time.Minute)))

	require.NoError(t, h.press(t, 7, 9, "rem:delay:7_gone"))
	assert.Equal(t, msgNotFound, h.ad.last(t).text)
}

func TestUnknownInput(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	require.NoError(t, h.say(t, 1, "/nope"))
	assert.Equal(t, msgUnknownCmd, h.ad.last(t).text)

	before := h.ad.count()
	require.NoError(t, h.press(t, 1, 1, "other:thing"))
	assert.Equal(t, before, h.ad.count())
	assert.Contains(t, h.ad.answered, "cb-other:thing")
}

func TestDispatchLoopKeepsChatOrder(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	updates := make(chan kit.Update, 8)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.r.DispatchLoop(ctx, updates) }()

	for _, text := range []string{"/add", "07:15", "tea"} {
		updates <- kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: 3, FromID: 3, Text: text}}
	}

	require.Eventually(t, func() bool { return len(h.mgr.List(3)) == 1 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, "tea", h.mgr.List(3)[0].Text)

	cancel()
	require.NoError(t, <-done)
}

func TestSessionsExpire(t *testing.T) {
	t.Parallel()
	clock := now
	s := newSessions(time.Minute, func() time.Time { return clock })
	s.set(1, session{stage: stageTime})
	s.set(2, session{stage: stageTime})
	assert.Equal(t, stageTime, s.get(1).stage)

	clock = clock.Add(2 * time.Minute)
	assert.Equal(t, stageIdle, s.get(1).stage)
	assert.Equal(t, 1, s.prune())
	assert.Zero(t, s.len())
}

func TestCommandName(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"/start":             "start",
		"/List@remind_bot":   "list",
		"  /add 09:30 extra ": "add",
	}
	for in, want := range tests {
		got, ok := commandName(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := commandName("09:30")
	assert.False(t, ok)
	assert.NotEqual(t, newReqID(), newReqID())
}

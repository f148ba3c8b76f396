package bot

import (
	"sync"
	"time"

	"remindbot/internal/timespec"
)

type stage int

const (
	stageIdle stage = iota
	stageTime
	stageText
)

// session is the state of the add conversation in one chat.
type session struct {
	stage stage
	clock timespec.Clock
	at    time.Time
}

// sessions keeps one conversation per chat. A conversation left alone for
// longer than ttl is forgotten.
type sessions struct {
	mu  sync.Mutex
	ttl time.Duration
	now func() time.Time
	m   map[int64]session
}

func newSessions(ttl time.Duration, now func() time.Time) *sessions {
	if now == nil {
		now = time.Now
	}
	return &sessions{ttl: ttl, now: now, m: map[int64]session{}}
}

func (s *sessions) get(chatID int64) session {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.m[chatID]
	if !ok {
		return session{}
	}
	if s.ttl > 0 && s.now().Sub(cur.at) > s.ttl {
		delete(s.m, chatID)
		return session{}
	}
	return cur
}

func (s *sessions) set(chatID int64, st session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st.stage == stageIdle {
		delete(s.m, chatID)
		return
	}
	st.at = s.now()
	s.m[chatID] = st
}

func (s *sessions) clear(chatID int64) { s.set(chatID, session{}) }

// prune drops expired conversations and reports how many were dropped.
func (s *sessions) prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ttl <= 0 {
		return 0
	}
	now := s.now()
	n := 0
	for id, st := range s.m {
		if now.Sub(st.at) > s.ttl {
			delete(s.m, id)
			n++
		}
	}
	return n
}

func (s *sessions) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}

package reminder

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"remindbot/pkg/logx"
)

// FireAtLayout is the on-disk form of fire_at: local wall time, no offset.
const FireAtLayout = "2006-01-02T15:04:05"

// FileStore keeps the collection as one JSON array, rewritten whole on every
// Save. It does no locking; callers serialize access.
type FileStore struct {
	path string
	log  logx.Logger
	loc  *time.Location
}

func NewFileStore(path string, log logx.Logger) *FileStore {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &FileStore{path: path, log: log, loc: time.Local}
}

func (s *FileStore) Path() string { return s.path }

type record struct {
	OwnerID int64  `json:"owner_id"`
	FireAt  string `json:"fire_at"`
	Text    string `json:"text"`
	JobID   string `json:"job_id"`
}

// diskRecord also accepts the legacy chat_id and time keys.
type diskRecord struct {
	OwnerID *int64 `json:"owner_id"`
	ChatID  *int64 `json:"chat_id"`
	FireAt  string `json:"fire_at"`
	Time    string `json:"time"`
	Text    string `json:"text"`
	JobID   string `json:"job_id"`
}

// Load reads the collection. An absent, empty or malformed file yields an
// empty collection. Records without a job id get a fresh one and the file is
// rewritten right away.
func (s *FileStore) Load() ([]Reminder, error) {
	out, fresh, err := s.read()
	if err != nil {
		return nil, err
	}
	if migrated := len(fresh); migrated > 0 {
		if err := s.Save(out); err != nil {
			s.log.Warn("job id migration not persisted", logx.Int("count", migrated), logx.Err(err))
		} else {
			s.log.Info("assigned job ids to legacy reminders", logx.Int("count", migrated))
		}
	}
	return out, nil
}

// Peek reads the collection like Load but never writes. Records without a
// job id are returned with an empty JobID.
func (s *FileStore) Peek() ([]Reminder, error) {
	out, fresh, err := s.read()
	if err != nil {
		return nil, err
	}
	for _, i := range fresh {
		out[i].JobID = ""
	}
	return out, nil
}

// read decodes the file and reports the indexes of records that were given a
// new job id.
func (s *FileStore) read() ([]Reminder, []int, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []Reminder{}, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read reminders: %w", err)
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return []Reminder{}, nil, nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		s.log.Warn("reminder store unreadable; starting empty", logx.String("path", s.path), logx.Err(err))
		return []Reminder{}, nil, nil
	}

	out := make([]Reminder, 0, len(raw))
	var fresh []int
	for i, item := range raw {
		r, isNew, err := s.decode(item)
		if err != nil {
			s.log.Warn("skipping malformed reminder", logx.Int("index", i), logx.Err(err))
			continue
		}
		if isNew {
			fresh = append(fresh, len(out))
		}
		out = append(out, r)
	}
	return out, fresh, nil
}

func (s *FileStore) decode(item json.RawMessage) (Reminder, bool, error) {
	var d diskRecord
	if err := json.Unmarshal(item, &d); err != nil {
		return Reminder{}, false, err
	}
	var owner int64
	switch {
	case d.OwnerID != nil:
		owner = *d.OwnerID
	case d.ChatID != nil:
		owner = *d.ChatID
	default:
		return Reminder{}, false, errors.New("missing owner_id")
	}
	rawAt := d.FireAt
	if rawAt == "" {
		rawAt = d.Time
	}
	at, err := time.ParseInLocation(FireAtLayout, strings.TrimSpace(rawAt), s.loc)
	if err != nil {
		return Reminder{}, false, fmt.Errorf("fire_at: %w", err)
	}
	r := Reminder{JobID: strings.TrimSpace(d.JobID), OwnerID: owner, FireAt: at, Text: d.Text}
	if r.JobID == "" {
		r.JobID = NewJobID(owner)
		return r, true, nil
	}
	return r, false, nil
}

// Save replaces the file with all. The write goes to a temp file that is
// synced and renamed over the target, so a failure leaves the old file intact.
func (s *FileStore) Save(all []Reminder) error {
	b, err := Encode(all)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("save reminders: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("save reminders: %w", err)
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("save reminders: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("save reminders: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("save reminders: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("save reminders: %w", err)
	}
	return nil
}

// Encode renders the durable layout: a JSON array indented by four spaces,
// keys in the order owner_id, fire_at, text, job_id, with HTML and non-ASCII
// characters left unescaped.
func Encode(all []Reminder) ([]byte, error) {
	recs := make([]record, 0, len(all))
	for _, r := range all {
		recs = append(recs, record{
			OwnerID: r.OwnerID,
			FireAt:  r.FireAt.In(time.Local).Format(FireAtLayout),
			Text:    r.Text,
			JobID:   r.JobID,
		})
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(recs); err != nil {
		return nil, fmt.Errorf("encode reminders: %w", err)
	}
	return buf.Bytes(), nil
}

// Package timespec turns free-form user text such as "9:30", "09.30" or "930"
// into a wall-clock time of day.
package timespec

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/width"
)

// Kind classifies why a time could not be parsed.
type Kind int

const (
	KindEmpty Kind = iota + 1
	KindPattern
	KindRange
)

func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindPattern:
		return "pattern"
	case KindRange:
		return "range"
	default:
		return "unknown"
	}
}

var (
	ErrEmpty   = errors.New("timespec: empty input")
	ErrPattern = errors.New("timespec: unrecognized time format")
	ErrRange   = errors.New("timespec: hour or minute out of range")
)

// ParseError is returned by Parse. It matches ErrEmpty, ErrPattern or ErrRange
// via errors.Is.
type ParseError struct {
	Kind  Kind
	Input string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("timespec: invalid time %q (%s)", e.Input, e.Kind)
}

func (e *ParseError) Is(target error) bool {
	switch target {
	case ErrEmpty:
		return e.Kind == KindEmpty
	case ErrPattern:
		return e.Kind == KindPattern
	case ErrRange:
		return e.Kind == KindRange
	}
	return false
}

// Clock is a normalized time of day.
type Clock struct {
	Hour   int
	Minute int
}

// Valid reports whether c is a time of day (00:00 through 23:59).
func (c Clock) Valid() bool {
	return c.Hour >= 0 && c.Hour <= 23 && c.Minute >= 0 && c.Minute <= 59
}

// String renders the canonical HH:MM form.
func (c Clock) String() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }

var (
	separatorRun = regexp.MustCompile(`[.\-–—\s]+`)
	nonClock     = regexp.MustCompile(`[^0-9:]`)
	colonForm    = regexp.MustCompile(`^(\d{1,2}):(\d{1,2})$`)
	digitsForm   = regexp.MustCompile(`^\d{3,4}$`)

	colonGlyphs = strings.NewReplacer("：", ":", "∶", ":")
)

// foldSpace maps every Unicode space (NBSP, U+2000..U+200A, \v, the
// information separators U+001C..U+001F) to ' ' so it separates like one.
func foldSpace(r rune) rune {
	if unicode.IsSpace(r) || (r >= 0x1c && r <= 0x1f) {
		return ' '
	}
	return r
}

// Parse normalizes raw user input into a Clock.
func Parse(raw string) (Clock, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Clock{}, &ParseError{Kind: KindEmpty, Input: raw}
	}

	// Fold fullwidth forms (colon and digits) before the ratio colon replacement.
	s = width.Narrow.String(s)
	s = colonGlyphs.Replace(s)
	s = strings.Map(foldSpace, s)
	s = separatorRun.ReplaceAllString(s, ":")
	s = nonClock.ReplaceAllString(s, "")

	var hs, ms string
	if m := colonForm.FindStringSubmatch(s); m != nil {
		hs, ms = m[1], m[2]
	} else if digitsForm.MatchString(s) {
		split := len(s) - 2
		hs, ms = s[:split], s[split:]
	} else {
		return Clock{}, &ParseError{Kind: KindPattern, Input: raw}
	}

	h, _ := strconv.Atoi(hs)
	m, _ := strconv.Atoi(ms)
	c := Clock{Hour: h, Minute: m}
	if !c.Valid() {
		return Clock{}, &ParseError{Kind: KindRange, Input: raw}
	}
	return c, nil
}

// Normalize is Parse followed by Clock.String.
func Normalize(raw string) (string, error) {
	c, err := Parse(raw)
	if err != nil {
		return "", err
	}
	return c.String(), nil
}

// NextOccurrence combines now's date with c in now's location. If that moment
// is not strictly after now, it rolls forward by one day.
func NextOccurrence(now time.Time, c Clock) time.Time {
	y, mo, d := now.Date()
	at := time.Date(y, mo, d, c.Hour, c.Minute, 0, 0, now.Location())
	if !at.After(now) {
		at = at.AddDate(0, 0, 1)
	}
	return at
}

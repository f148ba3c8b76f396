package timespec

import (
	"errors"
	"testing"
	"time"
)

func TestNormalizeAcceptedForms(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want string
	}{
		{raw: "9:30", want: "09:30"},
		{raw: "09:30", want: "09:30"},
		{raw: "09.30", want: "09:30"},
		{raw: "930", want: "09:30"},
		{raw: "9-30", want: "09:30"},
		{raw: "9 30", want: "09:30"},
		{raw: "9–30", want: "09:30"},
		{raw: "21—05", want: "21:05"},
		{raw: "2359", want: "23:59"},
		{raw: "0:0", want: "00:00"},
		{raw: "  7:5  ", want: "07:05"},
		{raw: "9：30", want: "09:30"},
		{raw: "9∶30", want: "09:30"},
		{raw: "９：３０", want: "09:30"},
		{raw: "9:30h", want: "09:30"},
		{raw: "12\u00a05", want: "12:05"},
		{raw: "12\u20025", want: "12:05"},
		{raw: "12\u202f5", want: "12:05"},
		{raw: "12\v5", want: "12:05"},
		{raw: "12\u30005", want: "12:05"},
		{raw: "12\x1f5", want: "12:05"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()
			got, err := Normalize(tt.raw)
			if err != nil {
				t.Fatalf("Normalize(%q) error: %v", tt.raw, err)
			}
			if got != tt.want {
				t.Fatalf("Normalize(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		kind Kind
		is   error
	}{
		{raw: "", kind: KindEmpty, is: ErrEmpty},
		{raw: "   ", kind: KindEmpty, is: ErrEmpty},
		{raw: "25:00", kind: KindRange, is: ErrRange},
		{raw: "9:75", kind: KindRange, is: ErrRange},
		{raw: "2460", kind: KindRange, is: ErrRange},
		{raw: "abc", kind: KindPattern, is: ErrPattern},
		{raw: "12:30:00", kind: KindPattern, is: ErrPattern},
		{raw: "12345", kind: KindPattern, is: ErrPattern},
		{raw: "93", kind: KindPattern, is: ErrPattern},
		{raw: "9 : 30", kind: KindPattern, is: ErrPattern},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()
			_, err := Parse(tt.raw)
			if err == nil {
				t.Fatalf("Parse(%q) expected error", tt.raw)
			}
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("Parse(%q) error type = %T, want *ParseError", tt.raw, err)
			}
			if pe.Kind != tt.kind {
				t.Fatalf("Parse(%q) kind = %v, want %v", tt.raw, pe.Kind, tt.kind)
			}
			if !errors.Is(err, tt.is) {
				t.Fatalf("errors.Is(%v, %v) = false", err, tt.is)
			}
		})
	}
}

func TestNextOccurrence(t *testing.T) {
	t.Parallel()
	loc := time.Local
	c := Clock{Hour: 9, Minute: 30}

	at10 := time.Date(2026, 3, 14, 10, 0, 0, 0, loc)
	if got, want := NextOccurrence(at10, c), time.Date(2026, 3, 15, 9, 30, 0, 0, loc); !got.Equal(want) {
		t.Fatalf("after the time of day: got %v, want %v", got, want)
	}

	at8 := time.Date(2026, 3, 14, 8, 0, 0, 0, loc)
	if got, want := NextOccurrence(at8, c), time.Date(2026, 3, 14, 9, 30, 0, 0, loc); !got.Equal(want) {
		t.Fatalf("before the time of day: got %v, want %v", got, want)
	}

	exact := time.Date(2026, 3, 14, 9, 30, 0, 0, loc)
	if got, want := NextOccurrence(exact, c), time.Date(2026, 3, 15, 9, 30, 0, 0, loc); !got.Equal(want) {
		t.Fatalf("exactly now must roll over: got %v, want %v", got, want)
	}
}

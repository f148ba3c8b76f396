package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"remindbot/pkg/logx"
)

func TestAddScheduleRunsAndRemoves(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop(), nil)
	s.Start(context.Background())
	defer s.Stop(context.Background())

	var runs atomic.Int32
	err := s.AddSchedule("audit", "cron:* * * * * *", time.Second, func(context.Context) error {
		runs.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("AddSchedule: %v", err)
	}
	infos := s.Schedules()
	if len(infos) != 1 || infos[0].Name != "audit" || infos[0].Next.IsZero() {
		t.Fatalf("Schedules() = %+v", infos)
	}

	deadline := time.Now().Add(3 * time.Second)
	for runs.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if runs.Load() == 0 {
		t.Fatalf("periodic job never ran")
	}

	if !s.Remove("audit") {
		t.Fatalf("Remove reported false")
	}
	if s.Remove("audit") {
		t.Fatalf("second Remove reported true")
	}
	if len(s.Schedules()) != 0 {
		t.Fatalf("schedule still listed")
	}
}

func TestAddScheduleRejectsBadSpecs(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop(), nil)
	job := func(context.Context) error { return nil }
	if err := s.AddSchedule("", "10m", 0, job); err == nil {
		t.Fatalf("expected name error")
	}
	if err := s.AddSchedule("x", "cron:not a cron", 0, job); err == nil {
		t.Fatalf("expected cron error")
	}
	if err := s.AddSchedule("x", "10m", 0, nil); err == nil {
		t.Fatalf("expected job error")
	}
}

func TestAddScheduleUpsertsByName(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop(), nil)
	job := func(context.Context) error { return nil }
	if err := s.AddSchedule("audit", "10m", 0, job); err != nil {
		t.Fatal(err)
	}
	if err := s.AddSchedule("audit", "@every 5m", 0, job); err != nil {
		t.Fatal(err)
	}
	infos := s.Schedules()
	if len(infos) != 1 || infos[0].Spec != "@every 5m" {
		t.Fatalf("Schedules() = %+v", infos)
	}
}

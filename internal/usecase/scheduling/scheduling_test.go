package scheduling

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"helpdesk-ai/internal/infra/config"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSchedulerFiresRegisteredJob(t *testing.T) {
	var count atomic.Int32
	s := NewScheduler(newTestLogger())
	s.Register(ActionSessionReap, func(context.Context) error {
		count.Add(1)
		return nil
	})
	if err := s.Add(Task{Name: "reap", Schedule: "40ms", Action: ActionSessionReap}); err != nil {
		t.Fatal(err)
	}

	s.Start(context.Background())
	time.Sleep(200 * time.Millisecond)
	s.Stop()

	if count.Load() < 1 {
		t.Fatalf("job never ran")
	}
	st := s.Status()
	if len(st) != 1 || st[0].Runs < 1 || st[0].LastRun.IsZero() {
		t.Errorf("status = %+v", st)
	}
}

func TestSchedulerUnknownAction(t *testing.T) {
	s := NewScheduler(newTestLogger())
	if err := s.Add(Task{Name: "x", Schedule: "1h", Action: "nope"}); err == nil {
		t.Error("expected error for unregistered action")
	}
}

func TestSchedulerDuplicateTask(t *testing.T) {
	s := NewScheduler(newTestLogger())
	s.Register(ActionAuditRetention, func(context.Context) error { return nil })
	if err := s.Add(Task{Name: "a", Schedule: "1h", Action: ActionAuditRetention}); err != nil {
		t.Fatal(err)
	}
	if err := s.Add(Task{Name: "a", Schedule: "2h", Action: ActionAuditRetention}); err == nil {
		t.Error("expected duplicate task error")
	}
}

func TestRunNowRecordsError(t *testing.T) {
	s := NewScheduler(newTestLogger())
	s.Register(ActionAuditRetention, func(context.Context) error { return errors.New("disk full") })
	s.Add(Task{Name: "retention", Schedule: "0 3 * * *", Action: ActionAuditRetention})

	if err := s.RunNow(context.Background(), "retention"); err == nil {
		t.Fatal("expected job error")
	}
	st := s.Status()[0]
	if st.LastError != "disk full" || st.Runs != 1 {
		t.Errorf("status = %+v", st)
	}
	if err := s.RunNow(context.Background(), "missing"); err == nil {
		t.Error("expected not found")
	}
}

func TestAddFromConfig(t *testing.T) {
	s := NewScheduler(newTestLogger())
	s.Register(ActionAuditRetention, func(context.Context) error { return nil })
	s.Register(ActionSessionReap, func(context.Context) error { return nil })

	err := s.AddFromConfig(config.Defaults().Scheduler.Tasks)
	if err != nil {
		t.Fatal(err)
	}
	st := s.Status()
	if len(st) != 2 || st[0].Name != "audit-retention" || st[1].Name != "session-reap" {
		t.Errorf("status = %+v", st)
	}
}

func TestStopWithoutStart(t *testing.T) {
	s := NewScheduler(newTestLogger())
	s.Stop()
}

func TestParseSchedule(t *testing.T) {
	valid := []string{"*/5 * * * *", "0 3 * * *", "@daily", "30m", "250ms"}
	for _, v := range valid {
		if _, err := ParseSchedule(v); err != nil {
			t.Errorf("ParseSchedule(%q): %v", v, err)
		}
	}
	invalid := []string{"", "soon", "-1h", "0s"}
	for _, v := range invalid {
		if _, err := ParseSchedule(v); err == nil {
			t.Errorf("ParseSchedule(%q) should fail", v)
		}
	}

	sched, _ := ParseSchedule("90m")
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := sched.Next(base); !got.Equal(base.Add(90 * time.Minute)) {
		t.Errorf("Next = %v", got)
	}
}

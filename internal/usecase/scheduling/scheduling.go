// Package scheduling runs the desk's maintenance jobs: audit-log retention
// and stale-session reaping.
package scheduling

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"helpdesk-ai/internal/infra/config"
)

// Action names a maintenance job.
type Action string

const (
	ActionAuditRetention Action = "audit_retention"
	ActionSessionReap    Action = "session_reap"
)

// JobFunc performs one run of a job.
type JobFunc func(ctx context.Context) error

// Task binds a schedule to an action.
type Task struct {
	Name     string
	Schedule string // cron expression "0 3 * * *" or duration "1h"
	Action   Action
}

// TaskStatus reports the outcome of a task's most recent run.
type TaskStatus struct {
	Name      string    `json:"name"`
	Action    Action    `json:"action"`
	Schedule  string    `json:"schedule"`
	Runs      int       `json:"runs"`
	LastRun   time.Time `json:"last_run,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	NextRun   time.Time `json:"next_run,omitempty"`
}

const jobTimeout = 5 * time.Minute

// Scheduler runs registered jobs on cron or fixed-interval schedules.
// A run that is still in progress when the next tick fires is skipped.
type Scheduler struct {
	cron    *cron.Cron
	logger  *slog.Logger
	mu      sync.Mutex
	jobs    map[Action]JobFunc
	status  map[string]*TaskStatus
	entries map[string]cron.EntryID
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
}

// NewScheduler creates an idle scheduler.
func NewScheduler(logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger:  logger,
		jobs:    make(map[Action]JobFunc),
		status:  make(map[string]*TaskStatus),
		entries: make(map[string]cron.EntryID),
	}
}

// Register installs the implementation of an action.
func (s *Scheduler) Register(action Action, fn JobFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[action] = fn
}

// Add schedules a task. Its action must already be registered.
func (s *Scheduler) Add(task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn, ok := s.jobs[task.Action]
	if !ok {
		return fmt.Errorf("scheduler: task %q: unknown action %q", task.Name, task.Action)
	}
	if _, dup := s.status[task.Name]; dup {
		return fmt.Errorf("scheduler: task %q already scheduled", task.Name)
	}
	sched, err := ParseSchedule(task.Schedule)
	if err != nil {
		return fmt.Errorf("scheduler: task %q: %w", task.Name, err)
	}

	st := &TaskStatus{Name: task.Name, Action: task.Action, Schedule: task.Schedule}
	s.status[task.Name] = st
	s.entries[task.Name] = s.cron.Schedule(sched, cron.FuncJob(func() { s.run(task.Name, fn) }))
	s.logger.Info("scheduled task added", "task", task.Name, "schedule", task.Schedule, "action", task.Action)
	return nil
}

// AddFromConfig schedules every configured task.
func (s *Scheduler) AddFromConfig(tasks []config.ScheduledTaskConfig) error {
	for _, tc := range tasks {
		if err := s.Add(Task{Name: tc.Name, Schedule: tc.Schedule, Action: Action(tc.Action)}); err != nil {
			return err
		}
	}
	return nil
}

// RunNow executes a task immediately, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	st, ok := s.status[name]
	var fn JobFunc
	if ok {
		fn = s.jobs[st.Action]
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("scheduler: task %q not found", name)
	}
	return s.execute(ctx, name, fn)
}

func (s *Scheduler) run(name string, fn JobFunc) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		return
	}
	_ = s.execute(ctx, name, fn)
}

func (s *Scheduler) execute(ctx context.Context, name string, fn JobFunc) error {
	ctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)

	s.mu.Lock()
	if st := s.status[name]; st != nil {
		st.Runs++
		st.LastRun = start
		st.LastError = ""
		if err != nil {
			st.LastError = err.Error()
		}
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("scheduled task failed", "task", name, "error", err, "duration", time.Since(start))
	} else {
		s.logger.Info("scheduled task completed", "task", name, "duration", time.Since(start))
	}
	return err
}

// Status returns a snapshot of every task, sorted by name.
func (s *Scheduler) Status() []TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TaskStatus, 0, len(s.status))
	for name, st := range s.status {
		cp := *st
		if id, ok := s.entries[name]; ok {
			cp.NextRun = s.cron.Entry(id).Next
		}
		out = append(out, cp)
	}
	slices.SortFunc(out, func(a, b TaskStatus) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})
	return out
}

// Start begins firing tasks. It is a no-op when already running.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
	s.running = true
}

// Stop halts the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.running = false
	s.ctx = nil
	s.mu.Unlock()

	<-s.cron.Stop().Done()
}

// ParseSchedule accepts a five-field cron expression, a descriptor such as
// "@daily", or a positive Go duration.
func ParseSchedule(schedule string) (cron.Schedule, error) {
	if schedule == "" {
		return nil, fmt.Errorf("empty schedule")
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if sched, err := parser.Parse(schedule); err == nil {
		return sched, nil
	}
	d, err := time.ParseDuration(schedule)
	if err != nil {
		return nil, fmt.Errorf("not a cron expression or duration: %q", schedule)
	}
	if d <= 0 {
		return nil, fmt.Errorf("duration must be positive: %q", schedule)
	}
	return every(d), nil
}

// every fires at a fixed interval; unlike cron.Every it keeps sub-second
// precision.
type every time.Duration

func (e every) Next(t time.Time) time.Time { return t.Add(time.Duration(e)) }

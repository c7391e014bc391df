package cron

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	oasis "github.com/nevindra/clawgate"
)

// TaskFunc is the closure a scheduled task runs. It receives a context-free
// signature (the scheduler itself owns cancellation via abort) and returns
// an error that becomes a RunRecord failure.
type TaskFunc func() error

// ScheduledTask is one row of the scheduler's task table.
type ScheduledTask struct {
	Name           string
	Expr           *CronExpression
	Task           TaskFunc
	DeleteAfterRun bool
	StaggerMS      int
	CreatedAt      time.Time
	Enabled        bool
}

// RunRecord captures the outcome of a single task execution.
type RunRecord struct {
	TaskName  string
	StartedAt time.Time
	EndedAt   time.Time
	Status    string // "ok", "error", "panic"
	Error     string
}

// Scheduler holds the task table and a minute-tick run loop.
type Scheduler struct {
	mu      sync.Mutex
	tasks   map[string]*ScheduledTask
	runs    []RunRecord
	running atomic.Bool
	aborted atomic.Bool
	stopCh  chan struct{}
	log     *slog.Logger
	nowFunc func() time.Time
}

// New creates an empty Scheduler. log may be nil.
func New(log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		tasks:   make(map[string]*ScheduledTask),
		log:     log,
		nowFunc: time.Now,
	}
}

// sanitizeName strips path separators and ".." so a task name can never be
// used to traverse a filesystem path derived from it.
func sanitizeName(name string) string {
	name = strings.ReplaceAll(name, "..", "")
	name = strings.ReplaceAll(name, "/", "")
	name = strings.ReplaceAll(name, `\`, "")
	return strings.TrimSpace(name)
}

// Schedule registers or replaces (with a warning) a task under name.
func (s *Scheduler) Schedule(name, cronExpr string, task TaskFunc, deleteAfterRun bool, staggerMS int) *oasis.Error {
	if task == nil {
		return oasis.NewInvalidArgument("task function must not be nil", name)
	}
	clean := sanitizeName(name)
	if clean == "" {
		return oasis.NewInvalidArgument("task name must not be empty after sanitization", name)
	}

	expr, err := Parse(cronExpr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[clean]; exists {
		s.log.Warn("cron: replacing scheduled task", "name", clean)
	}
	s.tasks[clean] = &ScheduledTask{
		Name: clean, Expr: expr, Task: task,
		DeleteAfterRun: deleteAfterRun, StaggerMS: staggerMS,
		CreatedAt: s.nowFunc(), Enabled: true,
	}
	return nil
}

// Cancel removes a task from the registry. Returns false if unknown.
func (s *Scheduler) Cancel(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[name]; !ok {
		return false
	}
	delete(s.tasks, name)
	return true
}

// SetEnabled toggles whether a task is eligible to run on the next tick.
func (s *Scheduler) SetEnabled(name string, enabled bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[name]
	if !ok {
		return false
	}
	t.Enabled = enabled
	return true
}

// ManualRun spawns a one-shot run of a task immediately, without waiting
// for the next cron boundary.
func (s *Scheduler) ManualRun(name string) *oasis.Error {
	s.mu.Lock()
	t, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return oasis.NewNotFound("scheduled task not found", name)
	}
	go s.runTask(t)
	return nil
}

// AbortCurrent sets a best-effort cooperative-abort flag observed by tasks
// that poll it; it does not forcibly interrupt a running goroutine.
func (s *Scheduler) AbortCurrent() {
	s.aborted.Store(true)
}

// Aborted reports whether AbortCurrent has been called since the last
// resetAbort (called at the top of every tick).
func (s *Scheduler) Aborted() bool { return s.aborted.Load() }

// Start begins the minute-tick run loop on the calling goroutine; callers
// typically invoke it via `go scheduler.Start()`. It returns when Stop is
// called.
func (s *Scheduler) Start() {
	if !s.running.CompareAndSwap(false, true) {
		return
	}
	s.stopCh = make(chan struct{})

	for {
		wait := s.untilNextMinuteBoundary()
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
			s.aborted.Store(false)
			s.tick()
		case <-s.stopCh:
			timer.Stop()
			s.running.Store(false)
			return
		}
	}
}

// Stop cancels the run loop's timer and causes Start to return.
func (s *Scheduler) Stop() {
	if s.running.Load() {
		close(s.stopCh)
	}
}

func (s *Scheduler) untilNextMinuteBoundary() time.Duration {
	now := s.nowFunc()
	next := now.Truncate(time.Minute).Add(time.Minute).Add(time.Second)
	return next.Sub(now)
}

// tick collects matching tasks under lock, then spawns one goroutine per
// match so a slow task never delays the others or the next tick.
func (s *Scheduler) tick() {
	now := s.nowFunc()

	s.mu.Lock()
	var due []*ScheduledTask
	for _, t := range s.tasks {
		if t.Enabled && Matches(t.Expr, now) {
			due = append(due, t)
		}
	}
	s.mu.Unlock()

	for _, t := range due {
		go s.runTask(t)
	}
}

func (s *Scheduler) runTask(t *ScheduledTask) {
	if t.StaggerMS > 0 {
		time.Sleep(time.Duration(t.StaggerMS) * time.Millisecond)
	}

	record := RunRecord{TaskName: t.Name, StartedAt: s.nowFunc()}
	func() {
		defer func() {
			if r := recover(); r != nil {
				record.Status = "panic"
				record.Error = fmt.Sprint(r)
				s.log.Error("cron: task panicked", "name", t.Name, "panic", r)
			}
		}()
		if err := t.Task(); err != nil {
			record.Status = "error"
			record.Error = err.Error()
		} else {
			record.Status = "ok"
		}
	}()
	record.EndedAt = s.nowFunc()

	s.mu.Lock()
	s.runs = append(s.runs, record)
	if t.DeleteAfterRun && record.Status == "ok" {
		delete(s.tasks, t.Name)
	}
	s.mu.Unlock()
}

// ListParams controls paging/filtering for List and ListRuns.
type ListParams struct {
	Limit, Offset int
	Query         string
	StatusFilter  string
	SortBy        string
	Descending    bool
}

func (p ListParams) normalized() ListParams {
	if p.Limit <= 0 {
		p.Limit = 50
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// List returns a paged, filtered view of the task table, sorted by name.
func (s *Scheduler) List(p ListParams) []*ScheduledTask {
	p = p.normalized()
	s.mu.Lock()
	all := make([]*ScheduledTask, 0, len(s.tasks))
	for _, t := range s.tasks {
		if p.Query != "" && !strings.Contains(t.Name, p.Query) {
			continue
		}
		all = append(all, t)
	}
	s.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		if p.Descending {
			return all[i].Name > all[j].Name
		}
		return all[i].Name < all[j].Name
	})

	return page(all, p.Offset, p.Limit)
}

// ListRuns returns a paged, filtered view of run history. Default sort is
// started_at descending (most recent first).
func (s *Scheduler) ListRuns(p ListParams) []RunRecord {
	p = p.normalized()
	if p.SortBy == "" {
		p.SortBy = "started_at"
		p.Descending = true
	}

	s.mu.Lock()
	all := make([]RunRecord, 0, len(s.runs))
	for _, r := range s.runs {
		if p.Query != "" && !strings.Contains(r.TaskName, p.Query) {
			continue
		}
		if p.StatusFilter != "" && r.Status != p.StatusFilter {
			continue
		}
		all = append(all, r)
	}
	s.mu.Unlock()

	lessFn := func(i, j int) bool {
		if p.SortBy == "name" {
			return all[i].TaskName < all[j].TaskName
		}
		return all[i].StartedAt.Before(all[j].StartedAt)
	}
	sort.Slice(all, func(i, j int) bool {
		if p.Descending {
			return lessFn(j, i)
		}
		return lessFn(i, j)
	})

	return pageRuns(all, p.Offset, p.Limit)
}

func page(items []*ScheduledTask, offset, limit int) []*ScheduledTask {
	if offset >= len(items) {
		return []*ScheduledTask{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

func pageRuns(items []RunRecord, offset, limit int) []RunRecord {
	if offset >= len(items) {
		return []RunRecord{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

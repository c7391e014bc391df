package cron

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestScheduleRejectsEmptyName(t *testing.T) {
	s := New(nil)
	err := s.Schedule("", "* * * * *", func() error { return nil }, false, 0)
	if err == nil {
		t.Fatal("expected error for empty name")
	}
}

func TestScheduleSanitizesName(t *testing.T) {
	s := New(nil)
	if err := s.Schedule("../../etc/passwd", "* * * * *", func() error { return nil }, false, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	list := s.List(ListParams{})
	if len(list) != 1 || list[0].Name != "etcpasswd" {
		t.Fatalf("expected sanitized name 'etcpasswd', got %+v", list)
	}
}

func TestScheduleRejectsNilTask(t *testing.T) {
	s := New(nil)
	if err := s.Schedule("task", "* * * * *", nil, false, 0); err == nil {
		t.Fatal("expected error for nil task")
	}
}

func TestScheduleReplacesExisting(t *testing.T) {
	s := New(nil)
	var calls int32
	s.Schedule("task", "* * * * *", func() error { atomic.AddInt32(&calls, 1); return nil }, false, 0)
	s.Schedule("task", "0 0 * * *", func() error { atomic.AddInt32(&calls, 2); return nil }, false, 0)

	if len(s.tasks) != 1 {
		t.Fatalf("expected single task after replace, got %d", len(s.tasks))
	}
}

func TestManualRunExecutesImmediately(t *testing.T) {
	s := New(nil)
	done := make(chan struct{})
	s.Schedule("task", "0 0 1 1 *", func() error { close(done); return nil }, false, 0)

	if err := s.ManualRun("task"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for manual run")
	}
}

func TestManualRunUnknownTask(t *testing.T) {
	s := New(nil)
	if err := s.ManualRun("does-not-exist"); err == nil {
		t.Fatal("expected NotFound error")
	}
}

func TestRunTaskRecordsRunHistory(t *testing.T) {
	s := New(nil)
	task := &ScheduledTask{Name: "x", Task: func() error { return errors.New("boom") }}
	s.runTask(task)

	runs := s.ListRuns(ListParams{})
	if len(runs) != 1 {
		t.Fatalf("expected 1 run record, got %d", len(runs))
	}
	if runs[0].Status != "error" || runs[0].Error != "boom" {
		t.Fatalf("unexpected run record: %+v", runs[0])
	}
}

func TestRunTaskRecoversPanic(t *testing.T) {
	s := New(nil)
	task := &ScheduledTask{Name: "x", Task: func() error { panic("kaboom") }}
	s.runTask(task)

	runs := s.ListRuns(ListParams{})
	if len(runs) != 1 || runs[0].Status != "panic" {
		t.Fatalf("expected panic status, got %+v", runs)
	}
}

func TestRunTaskDeletesAfterSuccessfulRun(t *testing.T) {
	s := New(nil)
	s.tasks["once"] = &ScheduledTask{Name: "once", DeleteAfterRun: true, Task: func() error { return nil }}
	s.runTask(s.tasks["once"])

	if _, ok := s.tasks["once"]; ok {
		t.Fatal("expected task to be removed after successful delete_after_run execution")
	}
}

func TestRunTaskKeepsAfterFailedRunEvenWithDeleteAfterRun(t *testing.T) {
	s := New(nil)
	s.tasks["once"] = &ScheduledTask{Name: "once", DeleteAfterRun: true, Task: func() error { return errors.New("fail") }}
	s.runTask(s.tasks["once"])

	if _, ok := s.tasks["once"]; !ok {
		t.Fatal("expected task to survive a failed run even with delete_after_run set")
	}
}

func TestListPaging(t *testing.T) {
	s := New(nil)
	for _, name := range []string{"a", "b", "c"} {
		s.Schedule(name, "* * * * *", func() error { return nil }, false, 0)
	}

	page1 := s.List(ListParams{Limit: 2, Offset: 0})
	if len(page1) != 2 {
		t.Fatalf("expected 2 results, got %d", len(page1))
	}
	page2 := s.List(ListParams{Limit: 2, Offset: 2})
	if len(page2) != 1 {
		t.Fatalf("expected 1 result, got %d", len(page2))
	}
}

func TestListRunsDefaultSortDescending(t *testing.T) {
	s := New(nil)
	base := time.Now()
	s.runs = []RunRecord{
		{TaskName: "a", StartedAt: base},
		{TaskName: "b", StartedAt: base.Add(time.Minute)},
	}

	runs := s.ListRuns(ListParams{})
	if runs[0].TaskName != "b" {
		t.Fatalf("expected most recent run first, got %+v", runs)
	}
}

func TestCancelRemovesTask(t *testing.T) {
	s := New(nil)
	s.Schedule("x", "* * * * *", func() error { return nil }, false, 0)
	if !s.Cancel("x") {
		t.Fatal("expected Cancel to succeed")
	}
	if s.Cancel("x") {
		t.Fatal("expected second Cancel on same name to report false")
	}
}

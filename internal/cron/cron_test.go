package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewCronJob(t *testing.T) {
	job := NewCronJob("daily digest", Schedule{Kind: "cron", Expr: "0 0 9 * * *"}, Payload{Message: "What interviews do I have today?", Channel: "telegram", ChatID: "100"})
	if job.ID == "" {
		t.Error("job ID should not be empty")
	}
	if !job.Enabled {
		t.Error("job should be enabled by default")
	}
	if job.DeleteAfterRun {
		t.Error("recurring job should not delete after run")
	}
	if job.Payload.Message != "What interviews do I have today?" {
		t.Errorf("message = %q", job.Payload.Message)
	}

	oneShot := NewCronJob("reminder", Schedule{Kind: "at", AtMs: time.Now().UnixMilli()}, Payload{Message: "follow up with Jane"})
	if !oneShot.DeleteAfterRun {
		t.Error("one-shot job should delete after run")
	}
}

func TestServiceAddRemoveList(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "jobs.json")
	s := NewService(storePath)

	job, err := s.AddJob("digest", Schedule{Kind: "every", EveryMs: 60000}, Payload{Message: "list my schedule"})
	if err != nil {
		t.Fatalf("AddJob: %v", err)
	}

	jobs := s.ListJobs()
	if len(jobs) != 1 || jobs[0].Name != "digest" {
		t.Fatalf("jobs = %+v", jobs)
	}

	// Jobs persist to disk on every mutation.
	data, err := os.ReadFile(storePath)
	if err != nil {
		t.Fatalf("read store: %v", err)
	}
	var stored []CronJob
	if err := json.Unmarshal(data, &stored); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(stored) != 1 || stored[0].Payload.Message != "list my schedule" {
		t.Errorf("stored = %+v", stored)
	}

	if !s.RemoveJob(job.ID) {
		t.Error("RemoveJob returned false")
	}
	if s.RemoveJob("nonexistent") {
		t.Error("RemoveJob should return false for unknown id")
	}
	if len(s.ListJobs()) != 0 {
		t.Error("job not removed")
	}
}

func TestServicePersistenceAcrossRestart(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "jobs.json")

	s1 := NewService(storePath)
	s1.AddJob("morning", Schedule{Kind: "cron", Expr: "0 0 9 * * 1-5"}, Payload{Message: "today's interviews"})
	s1.AddJob("sweep", Schedule{Kind: "every", EveryMs: 300000}, Payload{Message: "any stuck campaigns?"})

	s2 := NewService(storePath)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s2.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s2.Stop()

	if got := len(s2.ListJobs()); got != 2 {
		t.Fatalf("expected 2 persisted jobs, got %d", got)
	}
}

func TestServiceEnableJobTogglesCronEntry(t *testing.T) {
	s := NewService(filepath.Join(t.TempDir(), "jobs.json"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	job, err := s.AddJob("toggle", Schedule{Kind: "cron", Expr: "*/5 * * * * *"}, Payload{Message: "x"})
	if err != nil {
		t.Fatalf("AddJob: %v", err)
	}
	if len(s.entryMap) != 1 {
		t.Fatalf("entries after add = %d", len(s.entryMap))
	}

	if _, err := s.EnableJob(job.ID, false); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if len(s.entryMap) != 0 {
		t.Fatalf("entries after disable = %d", len(s.entryMap))
	}

	updated, err := s.EnableJob(job.ID, true)
	if err != nil {
		t.Fatalf("enable: %v", err)
	}
	if !updated.Enabled || len(s.entryMap) != 1 {
		t.Fatalf("after re-enable: enabled=%v entries=%d", updated.Enabled, len(s.entryMap))
	}

	if _, err := s.EnableJob("nonexistent", true); err == nil {
		t.Error("expected error for unknown job")
	}
}

func TestServiceExecuteJobUpdatesState(t *testing.T) {
	s := NewService(filepath.Join(t.TempDir(), "jobs.json"))

	var got CronJob
	s.OnJob = func(job CronJob) (string, error) {
		got = job
		return "2 interviews today", nil
	}

	job, _ := s.AddJob("digest", Schedule{Kind: "every", EveryMs: 1000}, Payload{Message: "today's interviews", SessionID: "session_1"})
	s.executeJob(*job)

	if got.Payload.SessionID != "session_1" {
		t.Errorf("handler saw payload %+v", got.Payload)
	}
	jobs := s.ListJobs()
	if jobs[0].State.LastStatus != "ok" || jobs[0].State.LastRunAtMs == 0 {
		t.Errorf("state = %+v", jobs[0].State)
	}
}

func TestServiceExecuteJobHandlerError(t *testing.T) {
	s := NewService(filepath.Join(t.TempDir(), "jobs.json"))
	s.OnJob = func(job CronJob) (string, error) {
		return "", fmt.Errorf("backend unreachable")
	}

	job, _ := s.AddJob("failing", Schedule{Kind: "every", EveryMs: 1000}, Payload{Message: "x"})
	s.executeJob(*job)

	jobs := s.ListJobs()
	if jobs[0].State.LastStatus != "error" || jobs[0].State.LastError != "backend unreachable" {
		t.Errorf("state = %+v", jobs[0].State)
	}
}

func TestServiceExecuteJobNoHandler(t *testing.T) {
	s := NewService(filepath.Join(t.TempDir(), "jobs.json"))
	job, _ := s.AddJob("no-handler", Schedule{Kind: "every", EveryMs: 1000}, Payload{Message: "x"})
	// Must not panic with OnJob unset.
	s.executeJob(*job)
}

func TestServiceDeleteAfterRun(t *testing.T) {
	s := NewService(filepath.Join(t.TempDir(), "jobs.json"))
	s.OnJob = func(job CronJob) (string, error) { return "done", nil }

	job := NewCronJob("one-shot", Schedule{Kind: "at", AtMs: time.Now().UnixMilli()}, Payload{Message: "remind me"})
	s.jobs = append(s.jobs, job)
	_ = s.save()

	s.executeJob(job)

	if got := len(s.ListJobs()); got != 0 {
		t.Errorf("expected one-shot job removed after run, got %d jobs", got)
	}
}

func TestServiceTickLoopFiresDueJobs(t *testing.T) {
	s := NewService(filepath.Join(t.TempDir(), "jobs.json"))

	var count atomic.Int32
	s.OnJob = func(job CronJob) (string, error) {
		count.Add(1)
		return "tick", nil
	}

	every := NewCronJob("fast", Schedule{Kind: "every", EveryMs: 100}, Payload{Message: "tick"})
	every.State.LastRunAtMs = time.Now().UnixMilli() - 200
	at := NewCronJob("due", Schedule{Kind: "at", AtMs: time.Now().UnixMilli()}, Payload{Message: "now"})
	s.jobs = append(s.jobs, every, at)

	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for count.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	cancel()
	s.Stop()

	if count.Load() < 2 {
		t.Errorf("expected both due jobs to fire, got %d executions", count.Load())
	}
}

func TestServiceStopHaltsTickLoop(t *testing.T) {
	s := NewService(filepath.Join(t.TempDir(), "jobs.json"))

	var count atomic.Int32
	s.OnJob = func(job CronJob) (string, error) {
		count.Add(1)
		return "ok", nil
	}

	job := NewCronJob("fast", Schedule{Kind: "every", EveryMs: 100}, Payload{Message: "tick"})
	job.State.LastRunAtMs = time.Now().UnixMilli() - 200
	s.jobs = append(s.jobs, job)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for count.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if count.Load() == 0 {
		t.Fatal("expected at least one execution before Stop")
	}

	s.Stop()
	after := count.Load()
	time.Sleep(1300 * time.Millisecond)
	if count.Load() != after {
		t.Fatalf("tick loop kept running after Stop: %d -> %d", after, count.Load())
	}
}

func TestServiceInvalidCronExprIsSkipped(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "jobs.json")
	jobs := []CronJob{{
		ID:       "bad",
		Name:     "bad-expr",
		Enabled:  true,
		Schedule: Schedule{Kind: "cron", Expr: "not a cron expr"},
		Payload:  Payload{Message: "x"},
	}}
	data, _ := json.MarshalIndent(jobs, "", "  ")
	os.WriteFile(storePath, data, 0644)

	s := NewService(storePath)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Errorf("Start should tolerate an invalid expression: %v", err)
	}
	if len(s.entryMap) != 0 {
		t.Errorf("invalid expression should not register an entry")
	}
	s.Stop()
}

func TestTruncate(t *testing.T) {
	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is longer than ten", 10, "this is lo..."},
		{"", 5, ""},
	}
	for _, tc := range cases {
		if got := truncate(tc.in, tc.n); got != tc.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tc.in, tc.n, got, tc.want)
		}
	}
}

package tasks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lysyi3m/shelfwatch/app/database"
)

type MockRunner struct {
	mu          sync.Mutex
	calls       int
	hadDeadline bool
	err         error
}

func (m *MockRunner) Run(ctx context.Context) (*database.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	_, m.hadDeadline = ctx.Deadline()
	if m.err != nil {
		return nil, m.err
	}
	return &database.Run{ID: "run-1", ItemsCreated: 3}, nil
}

func TestSchedulerTriggerAppliesRunTimeout(t *testing.T) {
	runner := &MockRunner{}
	scheduler := NewScheduler(runner, "@every 1h", time.Minute)

	run, err := scheduler.Trigger(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if run.ID != "run-1" {
		t.Errorf("Expected run-1, got %s", run.ID)
	}
	if !runner.hadDeadline {
		t.Error("Expected the run context to carry a deadline")
	}
	if scheduler.LastRun() == nil || scheduler.LastRun().ItemsCreated != 3 {
		t.Error("Expected the last run to be remembered")
	}
}

func TestSchedulerTriggerReturnsRunnerError(t *testing.T) {
	runner := &MockRunner{err: errors.New("failed to list sources")}
	scheduler := NewScheduler(runner, "@every 1h", 0)

	if _, err := scheduler.Trigger(context.Background()); err == nil {
		t.Error("Expected runner error to be returned")
	}
	if runner.hadDeadline {
		t.Error("Expected no deadline without a run timeout")
	}
	if scheduler.LastRun() != nil {
		t.Error("Expected no last run after a failed pass")
	}
}

func TestSchedulerStartRejectsInvalidSchedule(t *testing.T) {
	scheduler := NewScheduler(&MockRunner{}, "every now and then", time.Minute)
	if err := scheduler.Start(); err == nil {
		t.Error("Expected invalid schedule to be rejected")
	}
}

func TestSchedulerStartStop(t *testing.T) {
	runner := &MockRunner{}
	scheduler := NewScheduler(runner, "@every 1h", time.Minute)

	if err := scheduler.Start(); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	scheduler.Stop()

	runner.mu.Lock()
	defer runner.mu.Unlock()
	if runner.calls != 0 {
		t.Errorf("Expected no runs before the first tick, got %d", runner.calls)
	}
}

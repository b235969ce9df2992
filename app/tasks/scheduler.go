package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lysyi3m/shelfwatch/app/database"
)

// Runner is the single entry point of an ingestion pass.
type Runner interface {
	Run(ctx context.Context) (*database.Run, error)
}

type TaskSchedulerInterface interface {
	Start() error
	Stop()
	Trigger(ctx context.Context) (*database.Run, error)
}

var _ TaskSchedulerInterface = (*Scheduler)(nil)

// Scheduler invokes the runner on a cron schedule, bounding every pass by the run
// timeout. A tick that fires while the previous pass is still running is skipped.
type Scheduler struct {
	runner     Runner
	schedule   string
	runTimeout time.Duration
	cron       *cron.Cron
	ctx        context.Context
	cancel     context.CancelFunc
	mu         sync.Mutex
	lastRun    *database.Run
}

func NewScheduler(runner Runner, schedule string, runTimeout time.Duration) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	logger := slogCronLogger{}

	return &Scheduler{
		runner:     runner,
		schedule:   schedule,
		runTimeout: runTimeout,
		cron:       cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger))),
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		slog.Debug("Scheduled ingestion pass triggered", "schedule", s.schedule)
		if _, err := s.Trigger(s.ctx); err != nil {
			slog.Error("Scheduled ingestion pass failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	s.cron.Start()
	slog.Info("Scheduler started", "schedule", s.schedule, "run_timeout", s.runTimeout)
	return nil
}

// Stop cancels a pass in flight and waits for it to record its run.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
}

// Trigger runs one pass now under the run timeout.
func (s *Scheduler) Trigger(ctx context.Context) (*database.Run, error) {
	runCtx := ctx
	if s.runTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.runTimeout)
		defer cancel()
	}

	run, err := s.runner.Run(runCtx)
	if run != nil {
		s.mu.Lock()
		s.lastRun = run
		s.mu.Unlock()
	}
	return run, err
}

func (s *Scheduler) LastRun() *database.Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}

// slogCronLogger routes cron's own messages through slog.
type slogCronLogger struct{}

func (slogCronLogger) Info(msg string, keysAndValues ...any) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (slogCronLogger) Error(err error, msg string, keysAndValues ...any) {
	slog.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}

package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lysyi3m/shelfwatch/app/database"
	"github.com/lysyi3m/shelfwatch/app/feed"
	"github.com/lysyi3m/shelfwatch/app/health"
)

// ErrSourceBusy is returned for a manual retry while a pass is working on the source.
var ErrSourceBusy = errors.New("source is being ingested")

type Options struct {
	PollingEnabled bool
	WorkerCount    int
	SourceBudget   time.Duration
	MaxItems       int
	LeaseTTL       time.Duration
}

type Orchestrator struct {
	deps    ingestDeps
	runRepo database.RunRepository
	leaser  Leaser
	machine *health.Machine
	opts    Options
	now     func() time.Time
}

func NewOrchestrator(sourceRepo database.SourceRepository, itemRepo database.ItemRepository,
	runRepo database.RunRepository, fetcher Fetcher, parser *feed.Parser, machine *health.Machine,
	leaser Leaser, covers CoverQueue, notifier Notifier, opts Options) *Orchestrator {
	if opts.WorkerCount <= 0 {
		opts.WorkerCount = 1
	}
	if opts.LeaseTTL <= 0 {
		opts.LeaseTTL = opts.SourceBudget + time.Minute
	}

	return &Orchestrator{
		deps: ingestDeps{
			sourceRepo: sourceRepo,
			itemRepo:   itemRepo,
			fetcher:    fetcher,
			parser:     parser,
			machine:    machine,
			covers:     covers,
			notifier:   notifier,
			budget:     opts.SourceBudget,
			maxItems:   opts.MaxItems,
		},
		runRepo: runRepo,
		leaser:  leaser,
		machine: machine,
		opts:    opts,
		now:     time.Now,
	}
}

// Run performs one ingestion pass over every due source and records it. Errors of
// individual sources are recorded in the run; only failing to list sources aborts it.
func (o *Orchestrator) Run(ctx context.Context) (*database.Run, error) {
	started := o.now().UTC()
	run := &database.Run{
		ID:        uuid.NewString(),
		StartedAt: started,
		Errors:    []database.RunError{},
	}

	if !o.opts.PollingEnabled {
		slog.Warn("Polling disabled, skipping ingestion pass", "run", run.ID)
		return o.finish(ctx, run)
	}

	sources, err := o.deps.sourceRepo.ListPollableSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}

	var due []*database.Source
	for i := range sources {
		if health.IsDue(&sources[i], started) {
			due = append(due, &sources[i])
		}
	}

	slog.Debug("Ingestion pass started", "run", run.ID, "sources", len(sources), "due", len(due), "workers", o.opts.WorkerCount)

	queue := make(chan *database.Source)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < min(o.opts.WorkerCount, max(len(due), 1)); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for source := range queue {
				task, err := o.processSource(ctx, source)

				mu.Lock()
				o.record(run, source.ID, task, err)
				mu.Unlock()
			}
		}()
	}

	for _, source := range due {
		queue <- source
	}
	close(queue)
	wg.Wait()

	return o.finish(ctx, run)
}

// processSource runs one ingest task under the source lease. A nil task means the
// source was skipped before any work was done.
func (o *Orchestrator) processSource(ctx context.Context, source *database.Source) (*IngestSourceTask, error) {
	if ctx.Err() != nil {
		return nil, nil
	}

	if o.leaser != nil {
		ok, err := o.leaser.AcquireLease(ctx, source.ID, o.opts.LeaseTTL)
		if err != nil {
			slog.Warn("Failed to acquire source lease, ingesting without it", "source", source.ID, "error", err)
		} else if !ok {
			slog.Debug("Source leased by another pass, skipping", "source", source.ID)
			return nil, nil
		} else {
			defer func() {
				if err := o.leaser.ReleaseLease(context.WithoutCancel(ctx), source.ID); err != nil {
					slog.Warn("Failed to release source lease", "source", source.ID, "error", err)
				}
			}()
		}
	}

	task := newIngestSourceTask(source, &o.deps)
	task.Start()

	if err := task.Execute(ctx); err != nil {
		slog.Error("Task failed", "type", string(task.GetType()), "id", task.GetID(), "source", source.ID, "error", err)
		return task, err
	}

	return task, nil
}

func (o *Orchestrator) record(run *database.Run, sourceID string, task *IngestSourceTask, err error) {
	if task == nil || task.Outcome.Skipped {
		run.SourcesSkipped++
		return
	}

	run.ItemsCreated += task.Outcome.ItemsCreated
	run.ItemsSkipped += task.Outcome.ItemsSkipped

	switch {
	case err != nil:
		run.SourcesErrored++
		run.Errors = append(run.Errors, database.RunError{
			SourceID: sourceID,
			Code:     string(feed.CodeUnknown),
			Message:  err.Error(),
		})
	case task.Outcome.Err != nil:
		run.SourcesErrored++
		run.Errors = append(run.Errors, database.RunError{
			SourceID: sourceID,
			Code:     string(task.Outcome.Err.Code),
			Message:  task.Outcome.Err.Error(),
		})
	default:
		run.SourcesProcessed++
	}
}

func (o *Orchestrator) finish(ctx context.Context, run *database.Run) (*database.Run, error) {
	run.FinishedAt = o.now().UTC()
	run.Duration = run.FinishedAt.Sub(run.StartedAt)

	if err := o.runRepo.CreateRun(context.WithoutCancel(ctx), run); err != nil {
		return run, fmt.Errorf("failed to record run: %w", err)
	}

	slog.Info("Ingestion pass completed",
		"run", run.ID,
		"duration", run.Duration,
		"processed", run.SourcesProcessed,
		"errored", run.SourcesErrored,
		"skipped", run.SourcesSkipped,
		"new", run.ItemsCreated,
		"duplicates", run.ItemsSkipped)

	return run, nil
}

// RetrySource resets a source to VALIDATING on user request.
func (o *Orchestrator) RetrySource(ctx context.Context, sourceID string) (*database.Source, error) {
	task := NewRetrySourceTask(sourceID, o.deps.sourceRepo, o.machine, o.leaser)
	task.Start()

	if err := task.Execute(ctx); err != nil {
		return nil, err
	}
	return task.Source, nil
}

package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/shelfwatch/app/database"
	"github.com/lysyi3m/shelfwatch/app/health"
)

type RetrySourceTask struct {
	Task
	Source     *database.Source
	sourceRepo database.SourceRepository
	machine    *health.Machine
	leaser     Leaser
}

func NewRetrySourceTask(sourceID string, sourceRepo database.SourceRepository, machine *health.Machine, leaser Leaser) *RetrySourceTask {
	return &RetrySourceTask{
		Task:       NewTask(TaskTypeRetrySource, sourceID),
		sourceRepo: sourceRepo,
		machine:    machine,
		leaser:     leaser,
	}
}

func (t *RetrySourceTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	source, err := t.sourceRepo.GetSource(ctx, t.SourceID)
	if err != nil {
		return err
	}
	if !source.IsActive {
		return database.ErrNotFound
	}

	if t.leaser != nil {
		leased, err := t.leaser.IsLeased(ctx, source.ID)
		if err != nil {
			return fmt.Errorf("failed to check source lease: %w", err)
		}
		if leased {
			return ErrSourceBusy
		}
	}

	previous := source.Status
	t.machine.ManualRetry(source)

	if err := t.sourceRepo.UpdateSourceHealth(ctx, source); err != nil {
		return fmt.Errorf("failed to reset source: %w", err)
	}
	t.Source = source

	slog.Info("Task completed",
		"type", "RetrySource",
		"source", t.SourceID,
		"duration", t.GetDuration(),
		"previous_status", previous)

	return nil
}

package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/shelfwatch/app/database"
	"github.com/lysyi3m/shelfwatch/app/feed"
)

// SeedSourcesTask subscribes the users of the loaded seed files to their sources.
// Existing subscriptions are left untouched.
type SeedSourcesTask struct {
	Task
	Created    int
	seeds      []*feed.SeedFile
	sourceRepo database.SourceRepository
}

func NewSeedSourcesTask(seeds []*feed.SeedFile, sourceRepo database.SourceRepository) *SeedSourcesTask {
	return &SeedSourcesTask{
		Task:       NewTask(TaskTypeSeedSources, ""),
		seeds:      seeds,
		sourceRepo: sourceRepo,
	}
}

func (t *SeedSourcesTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	total := 0
	for _, seed := range t.seeds {
		for _, s := range seed.Sources {
			total++
			_, created, err := t.sourceRepo.CreateSource(ctx, seed.User, s.URL, s.Title, s.FailureThreshold)
			if err != nil {
				slog.Error("Task failed", "type", "SeedSources", "user", seed.User, "url", s.URL, "error", err)
				return fmt.Errorf("failed to seed source %s for %s: %w", s.URL, seed.User, err)
			}
			if created {
				t.Created++
			}
		}
	}

	slog.Info("Task completed",
		"type", "SeedSources",
		"duration", t.GetDuration(),
		"users", len(t.seeds),
		"sources", total,
		"new", t.Created)

	return nil
}

package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/shelfwatch/app/cache"
	"github.com/lysyi3m/shelfwatch/app/database"
	"github.com/lysyi3m/shelfwatch/app/feed"
	"github.com/lysyi3m/shelfwatch/app/health"
	"github.com/lysyi3m/shelfwatch/app/notify"
)

// SourceOutcome is what one source contributed to a run.
type SourceOutcome struct {
	NotModified  bool
	Skipped      bool
	ItemsCreated int
	ItemsSkipped int
	Err          *feed.Error
}

// ingestDeps are the collaborators shared by every ingest task of an orchestrator.
type ingestDeps struct {
	sourceRepo database.SourceRepository
	itemRepo   database.ItemRepository
	fetcher    Fetcher
	parser     *feed.Parser
	machine    *health.Machine
	covers     CoverQueue
	notifier   Notifier
	budget     time.Duration
	maxItems   int
}

type IngestSourceTask struct {
	Task
	Outcome SourceOutcome
	source  *database.Source
	deps    *ingestDeps
}

func newIngestSourceTask(source *database.Source, deps *ingestDeps) *IngestSourceTask {
	return &IngestSourceTask{
		Task:   NewTask(TaskTypeIngestSource, source.ID),
		source: source,
		deps:   deps,
	}
}

type ingestResult struct {
	notModified  bool
	etag         string
	lastModified string
	success      health.SuccessResult
}

func (t *IngestSourceTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		t.Outcome.Skipped = true
		return nil
	default:
	}

	sourceCtx := ctx
	if t.deps.budget > 0 {
		var cancel context.CancelFunc
		sourceCtx, cancel = context.WithTimeout(ctx, t.deps.budget)
		defer cancel()
	}

	result, err := t.ingest(sourceCtx)
	if err != nil && ctx.Err() != nil {
		// The run deadline hit mid-source; it stays due for the next pass.
		t.Outcome.Skipped = true
		slog.Warn("Source interrupted by run deadline", "source", t.SourceID, "error", err)
		return nil
	}

	switch {
	case err != nil:
		ferr := feed.AsError(err)
		t.Outcome.Err = ferr
		t.deps.machine.Failure(t.source, ferr)
	case result.notModified:
		t.Outcome.NotModified = true
		t.deps.machine.NotModified(t.source, result.etag, result.lastModified)
	default:
		t.deps.machine.Success(t.source, result.success)
	}

	if err := t.deps.sourceRepo.UpdateSourceHealth(context.WithoutCancel(ctx), t.source); err != nil {
		return fmt.Errorf("failed to update source health: %w", err)
	}

	slog.Info("Task completed",
		"type", "IngestSource",
		"source", t.SourceID,
		"duration", t.GetDuration(),
		"status", t.source.Status,
		"not_modified", t.Outcome.NotModified,
		"new", t.Outcome.ItemsCreated,
		"skipped", t.Outcome.ItemsSkipped,
		"code", t.source.FailureReasonCode)

	return nil
}

// ingest runs fetch, validation, parsing and item storage. Any panic is turned into
// an UNKNOWN failure of this source.
func (t *IngestSourceTask) ingest(ctx context.Context) (res ingestResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = feed.NewError(feed.CodeUnknown, fmt.Errorf("panic while ingesting source: %v", r))
		}
	}()

	resp, err := t.deps.fetcher.Fetch(ctx, feed.Request{
		URL:          t.source.FeedURL,
		ETag:         t.source.ETag,
		LastModified: t.source.LastModified,
	})
	if err != nil {
		return res, err
	}

	if resp.NotModified {
		res.notModified = true
		res.etag = resp.ETag
		res.lastModified = resp.LastModified
		return res, nil
	}

	if ok, diagnostic := feed.Validate(resp.Body, t.source.FeedURL); !ok {
		return res, &feed.Error{Code: feed.CodeNotFeed, StatusCode: resp.StatusCode, Err: errors.New(diagnostic)}
	}

	metadata, entries, err := t.deps.parser.Run(resp.Body)
	if err != nil {
		return res, err
	}

	res.success = health.SuccessResult{
		ETag:         resp.ETag,
		LastModified: resp.LastModified,
		FeedTitle:    metadata.Title,
	}

	complete, err := t.storeEntries(ctx, entries, &res.success)
	if err != nil {
		return res, err
	}

	if !complete {
		// Keep the old validators so the unprocessed entries are fetched again.
		res.success.ETag = t.source.ETag
		res.success.LastModified = t.source.LastModified
	}

	return res, nil
}

// storeEntries persists new entries in feed order. It reports false when the source
// budget ran out before every entry was looked at.
func (t *IngestSourceTask) storeEntries(ctx context.Context, entries []feed.Entry, success *health.SuccessResult) (bool, error) {
	for i, entry := range entries {
		hash := feed.DedupHash(t.source.ID, entry)
		if success.LastSeenItemKey == "" {
			success.LastSeenItemKey = hash
		}

		if t.deps.maxItems > 0 && i >= t.deps.maxItems {
			slog.Debug("Item limit reached", "source", t.SourceID, "limit", t.deps.maxItems, "remaining", len(entries)-i)
			break
		}

		if ctx.Err() != nil {
			slog.Warn("Source budget exhausted", "source", t.SourceID, "processed", i, "total", len(entries))
			return false, nil
		}

		if hash == "" {
			t.Outcome.ItemsSkipped++
			continue
		}

		exists, err := t.deps.itemRepo.ItemExists(ctx, t.source.ID, hash)
		if err != nil {
			if ctx.Err() != nil {
				return false, nil
			}
			return false, fmt.Errorf("failed to check for duplicates: %w", err)
		}
		if exists {
			t.Outcome.ItemsSkipped++
			continue
		}

		item := t.buildItem(entry, hash)
		created, err := t.deps.itemRepo.CreateItemWithAction(ctx, item, t.source.UserID)
		if err != nil {
			if ctx.Err() != nil {
				return false, nil
			}
			return false, fmt.Errorf("failed to store item: %w", err)
		}
		if !created {
			// Another pass stored it between the check and the insert
			t.Outcome.ItemsSkipped++
			continue
		}

		t.Outcome.ItemsCreated++
		t.publish(ctx, item)
	}

	return true, nil
}

func (t *IngestSourceTask) buildItem(entry feed.Entry, hash string) *database.Item {
	ext := feed.Extract(entry)

	publishedAt := ext.EventAt
	if publishedAt == nil {
		publishedAt = entry.PublishedAt
	}

	return &database.Item{
		SourceID:      t.source.ID,
		DedupHash:     hash,
		GUID:          entry.GUID,
		URL:           entry.Link,
		Title:         entry.Title,
		Author:        entry.Author,
		PublishedAt:   publishedAt,
		BookTitle:     ext.BookTitle,
		BookAuthor:    ext.BookAuthor,
		CoverImageURL: ext.CoverImageURL,
		ISBN:          ext.ISBN,
		Rating:        ext.Rating,
		Loved:         ext.Loved,
		ReviewText:    ext.ReviewText,
	}
}

// publish hands a new item to the downstream collaborators. Their failures are
// logged and never undo the stored item.
func (t *IngestSourceTask) publish(ctx context.Context, item *database.Item) {
	if item.Loved && t.deps.notifier != nil {
		err := t.deps.notifier.NotifyLoved(ctx, notify.Event{
			UserID:      t.source.UserID,
			ItemID:      item.ID,
			BookTitle:   item.BookTitle,
			BookAuthor:  item.BookAuthor,
			SourceLabel: t.source.Label(),
			EventURL:    item.URL,
			Rating:      item.Rating,
			CreatedAt:   item.CreatedAt,
		})
		if err != nil {
			slog.Warn("Failed to send loved notification", "source", t.SourceID, "item", item.ID, "error", err)
		}
	}

	if item.CoverImageURL != "" && t.deps.covers != nil {
		err := t.deps.covers.PushCover(ctx, cache.CoverHint{
			ItemID:   item.ID,
			SourceID: item.SourceID,
			URL:      item.CoverImageURL,
			ISBN:     item.ISBN,
		})
		if err != nil {
			slog.Warn("Failed to queue cover hint", "source", t.SourceID, "item", item.ID, "error", err)
		}
	}
}

package api

import (
	"context"
	"time"

	"github.com/lysyi3m/shelfwatch/app/database"
	"github.com/lysyi3m/shelfwatch/app/feed"
	"github.com/lysyi3m/shelfwatch/app/tasks"
)

type GeneratorInterface interface {
	Run(userID string, items []database.UserItem) (string, error)
}

var _ GeneratorInterface = (*feed.Generator)(nil)

type SourceRetrier interface {
	RetrySource(ctx context.Context, sourceID string) (*database.Source, error)
}

var _ SourceRetrier = (*tasks.Orchestrator)(nil)

type RunTrigger interface {
	Trigger(ctx context.Context) (*database.Run, error)
}

var _ RunTrigger = (*tasks.Scheduler)(nil)

type CacheInterface interface {
	Health(ctx context.Context) map[string]any
}

type Handler struct {
	sourceRepo database.SourceRepository
	itemRepo   database.ItemRepository
	runRepo    database.RunRepository
	generator  GeneratorInterface
	retrier    SourceRetrier
	trigger    RunTrigger
	cache      CacheInterface
	feedLimit  int
}

type CreateSourceRequest struct {
	URL              string `json:"url" binding:"required"`
	Title            string `json:"title"`
	FailureThreshold int    `json:"failure_threshold" binding:"min=0"`
}

type UpdateActionRequest struct {
	State string `json:"state" binding:"required"`
}

type SourceResponse struct {
	ID                  string     `json:"id"`
	UserID              string     `json:"user_id"`
	FeedURL             string     `json:"feed_url"`
	Title               string     `json:"title"`
	Status              string     `json:"status"`
	FailureReasonCode   string     `json:"failure_reason_code,omitempty"`
	UserMessage         string     `json:"user_message,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	FailureThreshold    int        `json:"failure_threshold,omitempty"`
	LastHTTPStatus      int        `json:"last_http_status,omitempty"`
	LastAttemptAt       *time.Time `json:"last_attempt_at,omitempty"`
	LastSuccessAt       *time.Time `json:"last_success_at,omitempty"`
	NextAttemptAt       *time.Time `json:"next_attempt_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

// SourceDetailsResponse adds operator diagnostics to a source.
type SourceDetailsResponse struct {
	SourceResponse
	Diagnostic string `json:"diagnostic,omitempty"`
	ItemCount  int    `json:"item_count"`
}

type ItemResponse struct {
	ID            string     `json:"id"`
	SourceID      string     `json:"source_id"`
	SourceTitle   string     `json:"source_title,omitempty"`
	URL           string     `json:"url,omitempty"`
	Title         string     `json:"title,omitempty"`
	BookTitle     string     `json:"book_title,omitempty"`
	BookAuthor    string     `json:"book_author,omitempty"`
	CoverImageURL string     `json:"cover_image_url,omitempty"`
	ISBN          string     `json:"isbn,omitempty"`
	Rating        int        `json:"rating,omitempty"`
	Loved         bool       `json:"loved"`
	ReviewText    string     `json:"review_text,omitempty"`
	PublishedAt   *time.Time `json:"published_at,omitempty"`
	State         string     `json:"state"`
	CreatedAt     time.Time  `json:"created_at"`
}

type RunResponse struct {
	ID               string              `json:"id"`
	StartedAt        time.Time           `json:"started_at"`
	FinishedAt       time.Time           `json:"finished_at"`
	Duration         string              `json:"duration"`
	SourcesProcessed int                 `json:"sources_processed"`
	SourcesErrored   int                 `json:"sources_errored"`
	SourcesSkipped   int                 `json:"sources_skipped"`
	ItemsCreated     int                 `json:"items_created"`
	ItemsSkipped     int                 `json:"items_skipped"`
	Errors           []database.RunError `json:"errors"`
}

func newSourceResponse(s *database.Source) SourceResponse {
	return SourceResponse{
		ID:                  s.ID,
		UserID:              s.UserID,
		FeedURL:             s.FeedURL,
		Title:               s.Title,
		Status:              string(s.Status),
		FailureReasonCode:   s.FailureReasonCode,
		UserMessage:         feed.FailureCode(s.FailureReasonCode).UserMessage(),
		ConsecutiveFailures: s.ConsecutiveFailures,
		FailureThreshold:    s.FailureThreshold,
		LastHTTPStatus:      s.LastHTTPStatus,
		LastAttemptAt:       s.LastAttemptAt,
		LastSuccessAt:       s.LastSuccessAt,
		NextAttemptAt:       s.NextAttemptAt,
		CreatedAt:           s.CreatedAt,
	}
}

func newItemResponse(i database.UserItem) ItemResponse {
	return ItemResponse{
		ID:            i.ID,
		SourceID:      i.SourceID,
		SourceTitle:   i.SourceTitle,
		URL:           i.URL,
		Title:         i.Title,
		BookTitle:     i.BookTitle,
		BookAuthor:    i.BookAuthor,
		CoverImageURL: i.CoverImageURL,
		ISBN:          i.ISBN,
		Rating:        i.Rating,
		Loved:         i.Loved,
		ReviewText:    i.ReviewText,
		PublishedAt:   i.PublishedAt,
		State:         string(i.State),
		CreatedAt:     i.CreatedAt,
	}
}

func newRunResponse(r *database.Run) RunResponse {
	errs := r.Errors
	if errs == nil {
		errs = []database.RunError{}
	}
	return RunResponse{
		ID:               r.ID,
		StartedAt:        r.StartedAt,
		FinishedAt:       r.FinishedAt,
		Duration:         r.Duration.String(),
		SourcesProcessed: r.SourcesProcessed,
		SourcesErrored:   r.SourcesErrored,
		SourcesSkipped:   r.SourcesSkipped,
		ItemsCreated:     r.ItemsCreated,
		ItemsSkipped:     r.ItemsSkipped,
		Errors:           errs,
	}
}

package database

import (
	"time"
)

type SourceStatus string

const (
	SourceStatusValidating SourceStatus = "VALIDATING"
	SourceStatusActive     SourceStatus = "ACTIVE"
	SourceStatusBackoff    SourceStatus = "BACKOFF"
	SourceStatusFailed     SourceStatus = "FAILED"
)

type ActionState string

const (
	ActionUnseen  ActionState = "UNSEEN"
	ActionSeen    ActionState = "SEEN"
	ActionSaved   ActionState = "SAVED"
	ActionIgnored ActionState = "IGNORED"
)

func (s ActionState) Valid() bool {
	switch s {
	case ActionUnseen, ActionSeen, ActionSaved, ActionIgnored:
		return true
	}
	return false
}

type Source struct {
	ID                  string
	UserID              string
	FeedURL             string
	Title               string // Backfilled from the feed on first success when empty
	Status              SourceStatus
	FailureReasonCode   string
	ConsecutiveFailures int
	FailureThreshold    int // 0 means use the machine default
	LastHTTPStatus      int
	LastError           string // Diagnostic only, never shown to users
	ETag                string
	LastModified        string
	LastSeenItemKey     string
	LastAttemptAt       *time.Time
	LastSuccessAt       *time.Time
	NextAttemptAt       *time.Time // Set only while Status is BACKOFF
	IsActive            bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Label is the human readable name of the source used in notifications.
func (s *Source) Label() string {
	if s.Title != "" {
		return s.Title
	}
	return s.FeedURL
}

type Item struct {
	ID            string
	SourceID      string
	DedupHash     string
	GUID          string
	URL           string
	Title         string
	Author        string
	PublishedAt   *time.Time
	BookTitle     string
	BookAuthor    string
	CoverImageURL string
	ISBN          string
	Rating        int // 0 when unknown
	Loved         bool
	ReviewText    string
	CreatedAt     time.Time
}

type ItemAction struct {
	UserID    string
	ItemID    string
	State     ActionState
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserItem is an item joined with the reading state of one user.
type UserItem struct {
	Item
	SourceTitle string
	State       ActionState
}

type RunError struct {
	SourceID string `json:"source_id"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}

type Run struct {
	ID               string
	StartedAt        time.Time
	FinishedAt       time.Time
	Duration         time.Duration
	SourcesProcessed int
	SourcesErrored   int
	SourcesSkipped   int
	ItemsCreated     int
	ItemsSkipped     int
	Errors           []RunError
}

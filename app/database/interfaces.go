package database

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("record not found")

type SourceRepository interface {
	CreateSource(ctx context.Context, userID, feedURL, title string, failureThreshold int) (*Source, bool, error)
	GetSource(ctx context.Context, id string) (*Source, error)
	ListUserSources(ctx context.Context, userID string) ([]Source, error)
	ListPollableSources(ctx context.Context) ([]Source, error)
	UpdateSourceHealth(ctx context.Context, source *Source) error
	DeactivateSource(ctx context.Context, id string) error
	CountSourcesByStatus(ctx context.Context) (map[SourceStatus]int, error)
}

type ItemRepository interface {
	ItemExists(ctx context.Context, sourceID, dedupHash string) (bool, error)
	CreateItemWithAction(ctx context.Context, item *Item, userID string) (bool, error)
	ListUserItems(ctx context.Context, userID string, state ActionState, limit int) ([]UserItem, error)
	ListLovedItems(ctx context.Context, userID string, limit int) ([]UserItem, error)
	UpdateItemAction(ctx context.Context, userID, itemID string, state ActionState) error
	GetItemCount(ctx context.Context, sourceID string) (int, error)
}

type RunRepository interface {
	CreateRun(ctx context.Context, run *Run) error
	ListRecentRuns(ctx context.Context, limit int) ([]Run, error)
}

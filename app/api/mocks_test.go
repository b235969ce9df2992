package api

import (
	"context"
	"errors"
	"time"

	"github.com/lysyi3m/shelfwatch/app/database"
)

type MockSourceRepository struct {
	sources map[string]*database.Source
	err     error
}

func NewMockSourceRepository() *MockSourceRepository {
	return &MockSourceRepository{sources: map[string]*database.Source{}}
}

func (m *MockSourceRepository) CreateSource(ctx context.Context, userID, feedURL, title string, failureThreshold int) (*database.Source, bool, error) {
	if m.err != nil {
		return nil, false, m.err
	}
	for _, s := range m.sources {
		if s.UserID == userID && s.FeedURL == feedURL && s.IsActive {
			return s, false, nil
		}
	}
	s := &database.Source{
		ID:               "src-" + userID + "-" + time.Now().Format("150405.000000000"),
		UserID:           userID,
		FeedURL:          feedURL,
		Title:            title,
		Status:           database.SourceStatusValidating,
		FailureThreshold: failureThreshold,
		IsActive:         true,
		CreatedAt:        time.Now(),
	}
	m.sources[s.ID] = s
	return s, true, nil
}

func (m *MockSourceRepository) GetSource(ctx context.Context, id string) (*database.Source, error) {
	if m.err != nil {
		return nil, m.err
	}
	s, ok := m.sources[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return s, nil
}

func (m *MockSourceRepository) ListUserSources(ctx context.Context, userID string) ([]database.Source, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []database.Source
	for _, s := range m.sources {
		if s.UserID == userID && s.IsActive {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *MockSourceRepository) ListPollableSources(ctx context.Context) ([]database.Source, error) {
	return nil, errors.New("not used")
}

func (m *MockSourceRepository) UpdateSourceHealth(ctx context.Context, source *database.Source) error {
	m.sources[source.ID] = source
	return nil
}

func (m *MockSourceRepository) DeactivateSource(ctx context.Context, id string) error {
	s, ok := m.sources[id]
	if !ok || !s.IsActive {
		return database.ErrNotFound
	}
	s.IsActive = false
	return nil
}

func (m *MockSourceRepository) CountSourcesByStatus(ctx context.Context) (map[database.SourceStatus]int, error) {
	if m.err != nil {
		return nil, m.err
	}
	counts := map[database.SourceStatus]int{}
	for _, s := range m.sources {
		if s.IsActive {
			counts[s.Status]++
		}
	}
	return counts, nil
}

type MockItemRepository struct {
	items   []database.UserItem
	updated map[string]database.ActionState
	err     error
}

func NewMockItemRepository() *MockItemRepository {
	return &MockItemRepository{updated: map[string]database.ActionState{}}
}

func (m *MockItemRepository) ItemExists(ctx context.Context, sourceID, dedupHash string) (bool, error) {
	return false, nil
}

func (m *MockItemRepository) CreateItemWithAction(ctx context.Context, item *database.Item, userID string) (bool, error) {
	return true, nil
}

func (m *MockItemRepository) ListUserItems(ctx context.Context, userID string, state database.ActionState, limit int) ([]database.UserItem, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []database.UserItem
	for _, item := range m.items {
		if state == "" || item.State == state {
			out = append(out, item)
		}
	}
	return out, nil
}

func (m *MockItemRepository) ListLovedItems(ctx context.Context, userID string, limit int) ([]database.UserItem, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []database.UserItem
	for _, item := range m.items {
		if item.Loved && item.State != database.ActionIgnored {
			out = append(out, item)
		}
	}
	return out, nil
}

func (m *MockItemRepository) UpdateItemAction(ctx context.Context, userID, itemID string, state database.ActionState) error {
	for _, item := range m.items {
		if item.ID == itemID {
			m.updated[itemID] = state
			return nil
		}
	}
	return database.ErrNotFound
}

func (m *MockItemRepository) GetItemCount(ctx context.Context, sourceID string) (int, error) {
	count := 0
	for _, item := range m.items {
		if item.SourceID == sourceID {
			count++
		}
	}
	return count, nil
}

type MockRunRepository struct {
	runs []database.Run
}

func (m *MockRunRepository) CreateRun(ctx context.Context, run *database.Run) error {
	m.runs = append(m.runs, *run)
	return nil
}

func (m *MockRunRepository) ListRecentRuns(ctx context.Context, limit int) ([]database.Run, error) {
	return m.runs, nil
}

type MockRetrier struct {
	source *database.Source
	err    error
}

func (m *MockRetrier) RetrySource(ctx context.Context, sourceID string) (*database.Source, error) {
	return m.source, m.err
}

type MockTrigger struct {
	run   *database.Run
	err   error
	calls int
}

func (m *MockTrigger) Trigger(ctx context.Context) (*database.Run, error) {
	m.calls++
	return m.run, m.err
}

type MockCache struct{}

func (MockCache) Health(ctx context.Context) map[string]any {
	return map[string]any{"status": "healthy", "type": "redis", "pending_covers": 4}
}

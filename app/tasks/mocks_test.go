package tasks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lysyi3m/shelfwatch/app/cache"
	"github.com/lysyi3m/shelfwatch/app/database"
	"github.com/lysyi3m/shelfwatch/app/feed"
	"github.com/lysyi3m/shelfwatch/app/notify"
)

// MockSourceRepository keeps sources in memory
type MockSourceRepository struct {
	mu      sync.Mutex
	sources map[string]*database.Source
	updates int
}

var _ database.SourceRepository = (*MockSourceRepository)(nil)

func NewMockSourceRepository(sources ...database.Source) *MockSourceRepository {
	m := &MockSourceRepository{sources: make(map[string]*database.Source)}
	for _, s := range sources {
		s := s
		m.sources[s.ID] = &s
	}
	return m
}

func (m *MockSourceRepository) CreateSource(ctx context.Context, userID, feedURL, title string, failureThreshold int) (*database.Source, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.sources {
		if s.UserID == userID && s.FeedURL == feedURL && s.IsActive {
			c := *s
			return &c, false, nil
		}
	}

	s := &database.Source{
		ID:               uuid.NewString(),
		UserID:           userID,
		FeedURL:          feedURL,
		Title:            title,
		Status:           database.SourceStatusValidating,
		FailureThreshold: failureThreshold,
		IsActive:         true,
	}
	m.sources[s.ID] = s
	c := *s
	return &c, true, nil
}

func (m *MockSourceRepository) GetSource(ctx context.Context, id string) (*database.Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sources[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	c := *s
	return &c, nil
}

func (m *MockSourceRepository) ListUserSources(ctx context.Context, userID string) ([]database.Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []database.Source
	for _, s := range m.sources {
		if s.UserID == userID && s.IsActive {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *MockSourceRepository) ListPollableSources(ctx context.Context) ([]database.Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []database.Source
	for _, s := range m.sources {
		if s.IsActive && s.Status != database.SourceStatusFailed {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MockSourceRepository) UpdateSourceHealth(ctx context.Context, source *database.Source) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sources[source.ID]; !ok {
		return database.ErrNotFound
	}
	c := *source
	m.sources[source.ID] = &c
	m.updates++
	return nil
}

func (m *MockSourceRepository) DeactivateSource(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sources[id]
	if !ok || !s.IsActive {
		return database.ErrNotFound
	}
	s.IsActive = false
	return nil
}

func (m *MockSourceRepository) CountSourcesByStatus(ctx context.Context) (map[database.SourceStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[database.SourceStatus]int)
	for _, s := range m.sources {
		if s.IsActive {
			counts[s.Status]++
		}
	}
	return counts, nil
}

func (m *MockSourceRepository) get(id string) database.Source {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.sources[id]
}

// MockItemRepository enforces (source_id, dedup_hash) uniqueness in memory
type MockItemRepository struct {
	mu        sync.Mutex
	items     map[string]*database.Item
	actions   map[string]database.ActionState
	createErr error
}

var _ database.ItemRepository = (*MockItemRepository)(nil)

func NewMockItemRepository() *MockItemRepository {
	return &MockItemRepository{
		items:   make(map[string]*database.Item),
		actions: make(map[string]database.ActionState),
	}
}

func itemKey(sourceID, hash string) string {
	return sourceID + "|" + hash
}

func (m *MockItemRepository) ItemExists(ctx context.Context, sourceID, dedupHash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.items[itemKey(sourceID, dedupHash)]
	return ok, nil
}

func (m *MockItemRepository) CreateItemWithAction(ctx context.Context, item *database.Item, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.createErr != nil {
		return false, m.createErr
	}

	key := itemKey(item.SourceID, item.DedupHash)
	if _, ok := m.items[key]; ok {
		return false, nil
	}

	item.ID = uuid.NewString()
	item.CreatedAt = time.Now().UTC()
	c := *item
	m.items[key] = &c
	m.actions[userID+"|"+item.ID] = database.ActionUnseen
	return true, nil
}

func (m *MockItemRepository) ListUserItems(ctx context.Context, userID string, state database.ActionState, limit int) ([]database.UserItem, error) {
	return nil, nil
}

func (m *MockItemRepository) ListLovedItems(ctx context.Context, userID string, limit int) ([]database.UserItem, error) {
	return nil, nil
}

func (m *MockItemRepository) UpdateItemAction(ctx context.Context, userID, itemID string, state database.ActionState) error {
	return nil
}

func (m *MockItemRepository) GetItemCount(ctx context.Context, sourceID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, item := range m.items {
		if item.SourceID == sourceID {
			count++
		}
	}
	return count, nil
}

func (m *MockItemRepository) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

func (m *MockItemRepository) actionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.actions)
}

// MockRunRepository records every run
type MockRunRepository struct {
	mu   sync.Mutex
	runs []database.Run
}

func (m *MockRunRepository) CreateRun(ctx context.Context, run *database.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, *run)
	return nil
}

func (m *MockRunRepository) ListRecentRuns(ctx context.Context, limit int) ([]database.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runs, nil
}

// MockFetcher answers requests per URL
type MockFetcher struct {
	mu        sync.Mutex
	responses map[string]func(feed.Request) (*feed.Response, error)
	requests  []feed.Request
}

func NewMockFetcher() *MockFetcher {
	return &MockFetcher{responses: make(map[string]func(feed.Request) (*feed.Response, error))}
}

func (m *MockFetcher) On(url string, fn func(feed.Request) (*feed.Response, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[url] = fn
}

func (m *MockFetcher) Fetch(ctx context.Context, r feed.Request) (*feed.Response, error) {
	m.mu.Lock()
	m.requests = append(m.requests, r)
	fn, ok := m.responses[r.URL]
	m.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("no response registered for %s", r.URL)
	}
	return fn(r)
}

func (m *MockFetcher) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func okResponse(body, etag string) func(feed.Request) (*feed.Response, error) {
	return func(feed.Request) (*feed.Response, error) {
		return &feed.Response{StatusCode: 200, Body: []byte(body), ETag: etag}, nil
	}
}

func failResponse(code feed.FailureCode) func(feed.Request) (*feed.Response, error) {
	return func(feed.Request) (*feed.Response, error) {
		return nil, feed.NewError(code, fmt.Errorf("mock %s", code))
	}
}

// MockNotifier collects loved events
type MockNotifier struct {
	mu     sync.Mutex
	events []notify.Event
	err    error
}

func (m *MockNotifier) NotifyLoved(ctx context.Context, e notify.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return m.err
}

// MockCoverQueue collects cover hints
type MockCoverQueue struct {
	mu    sync.Mutex
	hints []cache.CoverHint
}

func (m *MockCoverQueue) PushCover(ctx context.Context, hint cache.CoverHint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hints = append(m.hints, hint)
	return nil
}

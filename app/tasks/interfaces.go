package tasks

import (
	"context"
	"time"

	"github.com/lysyi3m/shelfwatch/app/cache"
	"github.com/lysyi3m/shelfwatch/app/feed"
	"github.com/lysyi3m/shelfwatch/app/notify"
)

// Fetcher performs the conditional GET for one source.
type Fetcher interface {
	Fetch(ctx context.Context, r feed.Request) (*feed.Response, error)
}

// Leaser keeps two passes from working on the same source at once. Losing the lease
// only costs duplicate work; item uniqueness does not depend on it.
type Leaser interface {
	AcquireLease(ctx context.Context, sourceID string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, sourceID string) error
	IsLeased(ctx context.Context, sourceID string) (bool, error)
}

// CoverQueue receives cover URL hints for newly created items.
type CoverQueue interface {
	PushCover(ctx context.Context, hint cache.CoverHint) error
}

// Notifier delivers loved book events on a best-effort basis.
type Notifier interface {
	NotifyLoved(ctx context.Context, e notify.Event) error
}

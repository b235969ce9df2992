package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const CoverQueueKey = "covers:pending"

// releaseScript deletes the lease only when it still carries our token, so an expired
// lease taken over by another pass is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Cache wraps the Redis client used for source leases and the cover hint queue.
type Cache struct {
	client *redis.Client
	tokens map[string]string
	mu     sync.Mutex
}

func NewCache(ctx context.Context, addr string) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	slog.Info("Connected to Redis", "addr", addr)

	return &Cache{
		client: client,
		tokens: make(map[string]string),
	}, nil
}

// AcquireLease takes the per-source lease for ttl. It returns false when another
// pass already holds it.
func (c *Cache) AcquireLease(ctx context.Context, sourceID string, ttl time.Duration) (bool, error) {
	token := uuid.NewString()

	ok, err := c.client.SetNX(ctx, GenerateLeaseKey(sourceID), token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease for source %s: %w", sourceID, err)
	}
	if !ok {
		return false, nil
	}

	c.mu.Lock()
	c.tokens[sourceID] = token
	c.mu.Unlock()

	return true, nil
}

func (c *Cache) ReleaseLease(ctx context.Context, sourceID string) error {
	c.mu.Lock()
	token, ok := c.tokens[sourceID]
	delete(c.tokens, sourceID)
	c.mu.Unlock()

	if !ok {
		return nil
	}

	if err := releaseScript.Run(ctx, c.client, []string{GenerateLeaseKey(sourceID)}, token).Err(); err != nil {
		return fmt.Errorf("failed to release lease for source %s: %w", sourceID, err)
	}
	return nil
}

func (c *Cache) IsLeased(ctx context.Context, sourceID string) (bool, error) {
	count, err := c.client.Exists(ctx, GenerateLeaseKey(sourceID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check lease for source %s: %w", sourceID, err)
	}
	return count > 0, nil
}

// CoverHint is handed to the cover resolver through the pending queue.
type CoverHint struct {
	ItemID   string `json:"item_id"`
	SourceID string `json:"source_id"`
	URL      string `json:"url"`
	ISBN     string `json:"isbn,omitempty"`
}

func (c *Cache) PushCover(ctx context.Context, hint CoverHint) error {
	data, err := json.Marshal(hint)
	if err != nil {
		return fmt.Errorf("failed to marshal cover hint: %w", err)
	}

	if err := c.client.LPush(ctx, CoverQueueKey, data).Err(); err != nil {
		return fmt.Errorf("failed to queue cover hint for item %s: %w", hint.ItemID, err)
	}
	return nil
}

func (c *Cache) PendingCovers(ctx context.Context) (int64, error) {
	n, err := c.client.LLen(ctx, CoverQueueKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count pending covers: %w", err)
	}
	return n, nil
}

// Health returns cache health information
func (c *Cache) Health(ctx context.Context) map[string]any {
	health := map[string]any{
		"status": "healthy",
		"type":   "redis",
	}

	if err := c.client.Ping(ctx).Err(); err != nil {
		health["status"] = "unhealthy"
		health["error"] = err.Error()
		return health
	}

	if n, err := c.PendingCovers(ctx); err == nil {
		health["pending_covers"] = n
	}

	return health
}

func (c *Cache) Close() error {
	return c.client.Close()
}

func GenerateLeaseKey(sourceID string) string {
	return fmt.Sprintf("lease:source:%s", sourceID)
}

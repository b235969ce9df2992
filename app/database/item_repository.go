package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var _ ItemRepository = (*ItemRepo)(nil)

// ItemRepo handles database operations for items and their per-user actions
type ItemRepo struct {
	db *DB
}

// NewItemRepository creates a new item repository
func NewItemRepository(db *DB) *ItemRepo {
	return &ItemRepo{db: db}
}

// ItemExists checks if an item with the given dedup hash was already stored for the source
func (r *ItemRepo) ItemExists(ctx context.Context, sourceID, dedupHash string) (bool, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `
		SELECT id FROM items WHERE source_id = ? AND dedup_hash = ? LIMIT 1
	`, sourceID, dedupHash).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check duplicate: %w", err)
	}
	return true, nil
}

// CreateItemWithAction inserts the item unless (source_id, dedup_hash) already exists and,
// in the same transaction, creates the owner's UNSEEN action. Returns false when the item
// was already present, in which case nothing is written.
func (r *ItemRepo) CreateItemWithAction(ctx context.Context, item *Item, userID string) (bool, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	item.CreatedAt = now

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO items (
			id, source_id, dedup_hash, guid, url, title, author, published_at,
			book_title, book_author, cover_image_url, isbn, rating, loved, review_text, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (source_id, dedup_hash) DO NOTHING
	`, item.ID, item.SourceID, item.DedupHash, item.GUID, item.URL, item.Title, item.Author,
		nullTime(item.PublishedAt), item.BookTitle, item.BookAuthor, item.CoverImageURL,
		item.ISBN, item.Rating, item.Loved, item.ReviewText, now)
	if err != nil {
		return false, fmt.Errorf("failed to insert item: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read insert result: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO item_actions (user_id, item_id, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, item_id) DO NOTHING
	`, userID, item.ID, ActionUnseen, now, now)
	if err != nil {
		return false, fmt.Errorf("failed to insert item action: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit item: %w", err)
	}

	return true, nil
}

const userItemColumns = `i.id, i.source_id, i.dedup_hash, i.guid, i.url, i.title, i.author,
	i.published_at, i.book_title, i.book_author, i.cover_image_url, i.isbn, i.rating,
	i.loved, i.review_text, i.created_at, s.title, a.state`

// ListUserItems returns a user's items, newest first. An empty state lists every state.
func (r *ItemRepo) ListUserItems(ctx context.Context, userID string, state ActionState, limit int) ([]UserItem, error) {
	return r.queryUserItems(ctx, `
		SELECT `+userItemColumns+`
		FROM item_actions a
		JOIN items i ON i.id = a.item_id
		JOIN sources s ON s.id = i.source_id
		WHERE a.user_id = ? AND (? = '' OR a.state = ?)
		ORDER BY COALESCE(i.published_at, i.created_at) DESC
		LIMIT ?
	`, userID, state, state, limit)
}

// ListLovedItems returns a user's loved items that were not ignored, newest first
func (r *ItemRepo) ListLovedItems(ctx context.Context, userID string, limit int) ([]UserItem, error) {
	return r.queryUserItems(ctx, `
		SELECT `+userItemColumns+`
		FROM item_actions a
		JOIN items i ON i.id = a.item_id
		JOIN sources s ON s.id = i.source_id
		WHERE a.user_id = ? AND i.loved = 1 AND a.state != ?
		ORDER BY COALESCE(i.published_at, i.created_at) DESC
		LIMIT ?
	`, userID, ActionIgnored, limit)
}

func (r *ItemRepo) queryUserItems(ctx context.Context, query string, args ...any) ([]UserItem, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get user items: %w", err)
	}
	defer rows.Close()

	var items []UserItem
	for rows.Next() {
		var item UserItem
		var publishedAt sql.NullTime
		err := rows.Scan(
			&item.ID, &item.SourceID, &item.DedupHash, &item.GUID, &item.URL, &item.Title, &item.Author,
			&publishedAt, &item.BookTitle, &item.BookAuthor, &item.CoverImageURL, &item.ISBN, &item.Rating,
			&item.Loved, &item.ReviewText, &item.CreatedAt, &item.SourceTitle, &item.State,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item row: %w", err)
		}
		item.PublishedAt = timePtr(publishedAt)
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating item rows: %w", err)
	}

	return items, nil
}

// UpdateItemAction records a user's reading state for an item
func (r *ItemRepo) UpdateItemAction(ctx context.Context, userID, itemID string, state ActionState) error {
	if !state.Valid() {
		return fmt.Errorf("invalid action state: %s", state)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE item_actions
		SET state = ?, updated_at = ?
		WHERE user_id = ? AND item_id = ?
	`, state, time.Now().UTC(), userID, itemID)
	if err != nil {
		return fmt.Errorf("failed to update item action: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	return nil
}

// GetItemCount returns the total number of items for a source
func (r *ItemRepo) GetItemCount(ctx context.Context, sourceID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM items WHERE source_id = ?", sourceID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get item count: %w", err)
	}
	return count, nil
}

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var _ SourceRepository = (*SourceRepo)(nil)

// SourceRepo handles database operations for sources
type SourceRepo struct {
	db *DB
}

// NewSourceRepository creates a new source repository
func NewSourceRepository(db *DB) *SourceRepo {
	return &SourceRepo{db: db}
}

const sourceColumns = `id, user_id, feed_url, title, status, failure_reason_code,
	consecutive_failures, failure_threshold, last_http_status, last_error,
	etag, last_modified, last_seen_item_key,
	last_attempt_at, last_success_at, next_attempt_at,
	is_active, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(row rowScanner) (*Source, error) {
	var s Source
	var lastAttempt, lastSuccess, nextAttempt sql.NullTime
	err := row.Scan(
		&s.ID, &s.UserID, &s.FeedURL, &s.Title, &s.Status, &s.FailureReasonCode,
		&s.ConsecutiveFailures, &s.FailureThreshold, &s.LastHTTPStatus, &s.LastError,
		&s.ETag, &s.LastModified, &s.LastSeenItemKey,
		&lastAttempt, &lastSuccess, &nextAttempt,
		&s.IsActive, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.LastAttemptAt = timePtr(lastAttempt)
	s.LastSuccessAt = timePtr(lastSuccess)
	s.NextAttemptAt = timePtr(nextAttempt)
	return &s, nil
}

// CreateSource subscribes a user to a feed. An existing active subscription for the
// same user and URL is returned instead of creating a duplicate; the bool reports
// whether a new row was inserted.
func (r *SourceRepo) CreateSource(ctx context.Context, userID, feedURL, title string, failureThreshold int) (*Source, bool, error) {
	existing, err := scanSource(r.db.QueryRowContext(ctx, `
		SELECT `+sourceColumns+`
		FROM sources
		WHERE user_id = ? AND feed_url = ? AND is_active = 1
	`, userID, feedURL))
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to check existing source: %w", err)
	}

	now := time.Now().UTC()
	source := &Source{
		ID:               uuid.NewString(),
		UserID:           userID,
		FeedURL:          feedURL,
		Title:            title,
		Status:           SourceStatusValidating,
		FailureThreshold: failureThreshold,
		IsActive:         true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO sources (id, user_id, feed_url, title, status, failure_threshold, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)
	`, source.ID, source.UserID, source.FeedURL, source.Title, source.Status, source.FailureThreshold, now, now)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert source: %w", err)
	}

	return source, true, nil
}

// GetSource retrieves a source by its ID
func (r *SourceRepo) GetSource(ctx context.Context, id string) (*Source, error) {
	source, err := scanSource(r.db.QueryRowContext(ctx, `
		SELECT `+sourceColumns+`
		FROM sources
		WHERE id = ?
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get source: %w", err)
	}
	return source, nil
}

// ListUserSources returns the active subscriptions of a user
func (r *SourceRepo) ListUserSources(ctx context.Context, userID string) ([]Source, error) {
	return r.querySources(ctx, `
		SELECT `+sourceColumns+`
		FROM sources
		WHERE user_id = ? AND is_active = 1
		ORDER BY created_at
	`, userID)
}

// ListPollableSources returns active sources that are not FAILED. Whether a BACKOFF
// source is due yet is decided by the caller against its own clock.
func (r *SourceRepo) ListPollableSources(ctx context.Context) ([]Source, error) {
	return r.querySources(ctx, `
		SELECT `+sourceColumns+`
		FROM sources
		WHERE is_active = 1 AND status != ?
		ORDER BY COALESCE(last_attempt_at, created_at)
	`, SourceStatusFailed)
}

func (r *SourceRepo) querySources(ctx context.Context, query string, args ...any) ([]Source, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sources: %w", err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		source, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}
		sources = append(sources, *source)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating source rows: %w", err)
	}

	return sources, nil
}

// UpdateSourceHealth writes the health and caching fields of a source in one statement
func (r *SourceRepo) UpdateSourceHealth(ctx context.Context, s *Source) error {
	s.UpdatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		UPDATE sources
		SET title = ?, status = ?, failure_reason_code = ?, consecutive_failures = ?,
		    last_http_status = ?, last_error = ?, etag = ?, last_modified = ?,
		    last_seen_item_key = ?, last_attempt_at = ?, last_success_at = ?,
		    next_attempt_at = ?, updated_at = ?
		WHERE id = ?
	`, s.Title, s.Status, s.FailureReasonCode, s.ConsecutiveFailures,
		s.LastHTTPStatus, s.LastError, s.ETag, s.LastModified,
		s.LastSeenItemKey, nullTime(s.LastAttemptAt), nullTime(s.LastSuccessAt),
		nullTime(s.NextAttemptAt), s.UpdatedAt, s.ID)
	if err != nil {
		return fmt.Errorf("failed to update source health: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	return nil
}

// DeactivateSource soft-deletes a subscription; its items stay referenced
func (r *SourceRepo) DeactivateSource(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sources
		SET is_active = 0, updated_at = ?
		WHERE id = ? AND is_active = 1
	`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to deactivate source: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	return nil
}

// CountSourcesByStatus returns the number of active sources per health status
func (r *SourceRepo) CountSourcesByStatus(ctx context.Context) (map[SourceStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT status, COUNT(*)
		FROM sources
		WHERE is_active = 1
		GROUP BY status
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count sources: %w", err)
	}
	defer rows.Close()

	counts := make(map[SourceStatus]int)
	for rows.Next() {
		var status SourceStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan source count: %w", err)
		}
		counts[status] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating source counts: %w", err)
	}

	return counts, nil
}

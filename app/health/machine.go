package health

import (
	"time"
	"unicode/utf8"

	"github.com/lysyi3m/shelfwatch/app/database"
	"github.com/lysyi3m/shelfwatch/app/feed"
)

const (
	DefaultFailureThreshold = 5
	maxLastErrorLength      = 1000
)

// Machine applies fetch outcomes to a source's health fields. It only mutates the
// source in memory; persisting the result is the caller's job.
type Machine struct {
	threshold int
	now       func() time.Time
	jitter    func() time.Duration
}

func NewMachine(threshold int) *Machine {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	return &Machine{
		threshold: threshold,
		now:       time.Now,
		jitter:    randomJitter,
	}
}

type SuccessResult struct {
	ETag            string
	LastModified    string
	LastSeenItemKey string
	FeedTitle       string
}

// Threshold returns the number of consecutive soft failures after which the source is
// considered structurally broken.
func (m *Machine) Threshold(s *database.Source) int {
	if s.FailureThreshold > 0 {
		return s.FailureThreshold
	}
	return m.threshold
}

func (m *Machine) Success(s *database.Source, r SuccessResult) {
	now := m.now().UTC()

	s.Status = database.SourceStatusActive
	s.FailureReasonCode = ""
	s.LastError = ""
	s.ConsecutiveFailures = 0
	s.NextAttemptAt = nil
	s.LastHTTPStatus = 200
	s.ETag = r.ETag
	s.LastModified = r.LastModified
	if r.LastSeenItemKey != "" {
		s.LastSeenItemKey = r.LastSeenItemKey
	}
	if s.Title == "" && r.FeedTitle != "" {
		s.Title = r.FeedTitle
	}
	s.LastAttemptAt = &now
	s.LastSuccessAt = &now
}

// NotModified records a 304. Nothing changed upstream, which is not a failure, so
// the counter resets. ACTIVE and VALIDATING keep their status. BACKOFF moves to
// ACTIVE and drops its code and next attempt, since a reset counter leaves no
// backoff to wait out.
func (m *Machine) NotModified(s *database.Source, etag, lastModified string) {
	now := m.now().UTC()

	s.ConsecutiveFailures = 0
	s.LastHTTPStatus = 304
	s.LastAttemptAt = &now
	if etag != "" {
		s.ETag = etag
	}
	if lastModified != "" {
		s.LastModified = lastModified
	}

	if s.Status == database.SourceStatusBackoff {
		s.Status = database.SourceStatusActive
		s.FailureReasonCode = ""
		s.LastError = ""
		s.NextAttemptAt = nil
	}
}

// Failure records a failed attempt. Soft failures back off until the threshold is
// reached, then escalate to FAILED like hard failures do.
func (m *Machine) Failure(s *database.Source, err error) {
	now := m.now().UTC()
	ferr := feed.AsError(err)

	previous := s.ConsecutiveFailures
	s.ConsecutiveFailures++
	s.FailureReasonCode = string(ferr.Code)
	s.LastError = truncate(ferr.Error(), maxLastErrorLength)
	s.LastHTTPStatus = ferr.StatusCode
	s.LastAttemptAt = &now

	if ferr.Code.IsSoft() && s.ConsecutiveFailures < m.Threshold(s) {
		next := nextAttempt(now, previous, ferr.RetryAfter, m.jitter)
		s.Status = database.SourceStatusBackoff
		s.NextAttemptAt = &next
		return
	}

	s.Status = database.SourceStatusFailed
	s.NextAttemptAt = nil
}

// ManualRetry puts a source back into validation after a user intervened.
func (m *Machine) ManualRetry(s *database.Source) {
	now := m.now().UTC()

	s.Status = database.SourceStatusValidating
	s.FailureReasonCode = ""
	s.LastError = ""
	s.ConsecutiveFailures = 0
	s.NextAttemptAt = nil
	s.LastAttemptAt = &now
}

// IsDue reports whether the source should be polled in a pass starting at now.
func IsDue(s *database.Source, now time.Time) bool {
	if !s.IsActive {
		return false
	}

	switch s.Status {
	case database.SourceStatusActive, database.SourceStatusValidating:
		return true
	case database.SourceStatusBackoff:
		return s.NextAttemptAt != nil && !s.NextAttemptAt.After(now)
	default:
		return false
	}
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

package feed

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// FailureCode categorises why a source could not be ingested.
type FailureCode string

const (
	CodeTimeout      FailureCode = "TIMEOUT"
	CodeNetwork      FailureCode = "NETWORK"
	CodeUnauthorized FailureCode = "UNAUTHORIZED"
	CodeNotFound     FailureCode = "NOT_FOUND"
	CodeRateLimited  FailureCode = "RATE_LIMITED"
	CodeServerError  FailureCode = "SERVER_ERROR"
	CodeNotFeed      FailureCode = "NOT_FEED"
	CodeParseError   FailureCode = "PARSE_ERROR"
	CodeUnknown      FailureCode = "UNKNOWN"
)

// IsSoft reports whether the failure is expected to resolve on its own.
func (c FailureCode) IsSoft() bool {
	switch c {
	case CodeUnauthorized, CodeNotFound, CodeNotFeed, CodeParseError:
		return false
	}
	return true
}

// UserMessage is the only failure text that may be shown to end users.
func (c FailureCode) UserMessage() string {
	switch c {
	case "":
		return ""
	case CodeTimeout:
		return "The feed took too long to respond. We will retry automatically."
	case CodeNetwork:
		return "We could not reach the feed. We will retry automatically."
	case CodeRateLimited:
		return "The feed provider asked us to slow down. We will retry later."
	case CodeServerError:
		return "The feed provider is having problems. We will retry automatically."
	case CodeUnauthorized:
		return "The feed is private or requires a login. Check that the feed is public, then retry."
	case CodeNotFound:
		return "The feed address no longer exists. Check the URL, then retry."
	case CodeNotFeed:
		return "The address points to a web page, not a feed. Use the RSS link instead, then retry."
	case CodeParseError:
		return "The feed could not be read. Retry once the provider fixes it."
	default:
		return "Something went wrong while updating this feed. We will retry automatically."
	}
}

// Error is a failure tagged with its category at the point where it happened.
type Error struct {
	Code       FailureCode
	StatusCode int           // HTTP status when the failure came from a response
	RetryAfter time.Duration // Server supplied Retry-After hint, zero when absent
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (HTTP %d): %v", e.Code, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(code FailureCode, err error) *Error {
	return &Error{Code: code, Err: err}
}

// AsError extracts the categorised failure from err, falling back to UNKNOWN for
// errors that were not produced by this package (storage, panics).
func AsError(err error) *Error {
	var ferr *Error
	if errors.As(err, &ferr) {
		return ferr
	}
	return &Error{Code: CodeUnknown, Err: err}
}

// CodeForStatus maps a non-success HTTP status to its failure category.
func CodeForStatus(status int) FailureCode {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return CodeUnauthorized
	case status == http.StatusNotFound, status == http.StatusGone:
		return CodeNotFound
	case status == http.StatusTooManyRequests:
		return CodeRateLimited
	case status >= 500:
		return CodeServerError
	default:
		return CodeUnknown
	}
}

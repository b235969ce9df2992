package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const testUserAgent = "Shelfwatch/test (+https://example.com)"

func newTestFetcher(timeout time.Duration) *Fetcher {
	return NewFetcher(&http.Client{}, testUserAgent, timeout)
}

func TestFetchSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != testUserAgent {
			t.Errorf("Expected User-Agent %q, got %q", testUserAgent, got)
		}
		if got := r.Header.Get("If-None-Match"); got != `"v1"` {
			t.Errorf("Expected If-None-Match header, got %q", got)
		}
		if got := r.Header.Get("If-Modified-Since"); got != "Mon, 03 Jul 2023 10:00:00 GMT" {
			t.Errorf("Expected If-Modified-Since header, got %q", got)
		}
		w.Header().Set("ETag", `"v2"`)
		w.Header().Set("Last-Modified", "Tue, 04 Jul 2023 10:00:00 GMT")
		w.Write([]byte("<rss></rss>"))
	}))
	defer server.Close()

	resp, err := newTestFetcher(time.Second).Fetch(context.Background(), Request{
		URL:          server.URL,
		ETag:         `"v1"`,
		LastModified: "Mon, 03 Jul 2023 10:00:00 GMT",
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if resp.NotModified {
		t.Error("Expected a full response")
	}
	if string(resp.Body) != "<rss></rss>" {
		t.Errorf("Unexpected body %q", resp.Body)
	}
	if resp.ETag != `"v2"` || resp.LastModified != "Tue, 04 Jul 2023 10:00:00 GMT" {
		t.Errorf("Expected new validators, got %q / %q", resp.ETag, resp.LastModified)
	}
}

func TestFetchNotModified(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotModified)
	}))
	defer server.Close()

	resp, err := newTestFetcher(time.Second).Fetch(context.Background(), Request{URL: server.URL, ETag: `"v1"`})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !resp.NotModified {
		t.Error("Expected NotModified to be set")
	}
	if resp.ETag != `"v1"` {
		t.Errorf("Expected stored ETag to be kept, got %q", resp.ETag)
	}
}

func TestFetchStatusClassification(t *testing.T) {
	tests := []struct {
		status   int
		expected FailureCode
	}{
		{http.StatusUnauthorized, CodeUnauthorized},
		{http.StatusForbidden, CodeUnauthorized},
		{http.StatusNotFound, CodeNotFound},
		{http.StatusGone, CodeNotFound},
		{http.StatusTooManyRequests, CodeRateLimited},
		{http.StatusInternalServerError, CodeServerError},
		{http.StatusServiceUnavailable, CodeServerError},
		{http.StatusTeapot, CodeUnknown},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			_, err := newTestFetcher(time.Second).Fetch(context.Background(), Request{URL: server.URL})

			var feedErr *Error
			if !errors.As(err, &feedErr) {
				t.Fatalf("Expected *Error, got %v", err)
			}
			if feedErr.Code != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, feedErr.Code)
			}
			if feedErr.StatusCode != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, feedErr.StatusCode)
			}
		})
	}
}

func TestFetchRetryAfter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := newTestFetcher(time.Second).Fetch(context.Background(), Request{URL: server.URL})

	feedErr := AsError(err)
	if feedErr.Code != CodeRateLimited {
		t.Errorf("Expected RATE_LIMITED, got %s", feedErr.Code)
	}
	if feedErr.RetryAfter != 120*time.Second {
		t.Errorf("Expected Retry-After of 120s, got %v", feedErr.RetryAfter)
	}
}

func TestFetchTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	_, err := newTestFetcher(50*time.Millisecond).Fetch(context.Background(), Request{URL: server.URL})
	if code := AsError(err).Code; code != CodeTimeout {
		t.Errorf("Expected TIMEOUT, got %s (%v)", code, err)
	}
}

func TestFetchNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := newTestFetcher(time.Second).Fetch(context.Background(), Request{URL: url})
	if code := AsError(err).Code; code != CodeNetwork {
		t.Errorf("Expected NETWORK, got %s (%v)", code, err)
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2023, 7, 3, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		value    string
		expected time.Duration
	}{
		{"", 0},
		{"30", 30 * time.Second},
		{"-5", 0},
		{"Mon, 03 Jul 2023 10:05:00 GMT", 5 * time.Minute},
		{"Mon, 03 Jul 2023 09:00:00 GMT", 0},
		{"soon", 0},
	}

	for _, tt := range tests {
		if got := parseRetryAfter(tt.value, now); got != tt.expected {
			t.Errorf("parseRetryAfter(%q) = %v, expected %v", tt.value, got, tt.expected)
		}
	}
}

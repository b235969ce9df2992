package feed

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const maxBodySize = 10 << 20

type Request struct {
	URL          string
	ETag         string
	LastModified string
}

type Response struct {
	StatusCode   int
	Body         []byte
	ETag         string
	LastModified string
	NotModified  bool
}

type Fetcher struct {
	httpClient *http.Client
	userAgent  string
	timeout    time.Duration
	now        func() time.Time
}

func NewFetcher(httpClient *http.Client, userAgent string, timeout time.Duration) *Fetcher {
	return &Fetcher{
		httpClient: httpClient,
		userAgent:  userAgent,
		timeout:    timeout,
		now:        time.Now,
	}
}

// Fetch performs one conditional GET. A 304 is returned as a Response with
// NotModified set; every other non-200 outcome is a categorised *Error.
func (f *Fetcher) Fetch(ctx context.Context, r Request) (*Response, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodGet, r.URL, nil)
	if err != nil {
		return nil, NewError(CodeNotFound, fmt.Errorf("failed to create request: %w", err))
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, text/xml;q=0.8, */*;q=0.5")
	if r.ETag != "" {
		req.Header.Set("If-None-Match", r.ETag)
	}
	if r.LastModified != "" {
		req.Header.Set("If-Modified-Since", r.LastModified)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, NewError(classifyTransportError(err), fmt.Errorf("failed to fetch feed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return &Response{
			StatusCode:   resp.StatusCode,
			NotModified:  true,
			ETag:         cmp.Or(resp.Header.Get("ETag"), r.ETag),
			LastModified: cmp.Or(resp.Header.Get("Last-Modified"), r.LastModified),
		}, nil
	}

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &Error{
			Code:       CodeForStatus(resp.StatusCode),
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), f.now()),
			Err:        fmt.Errorf("HTTP error: %s", resp.Status),
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &Error{
			Code:       classifyTransportError(err),
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("failed to read response body: %w", err),
		}
	}

	return &Response{
		StatusCode:   resp.StatusCode,
		Body:         data,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}, nil
}

func classifyTransportError(err error) FailureCode {
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CodeTimeout
	}
	return CodeNetwork
}

// parseRetryAfter accepts both delta-seconds and HTTP-date forms.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

package feed

import (
	"fmt"
	"strings"
)

const sniffLength = 500

// Validate decides whether a response body looks like a syndication feed rather than
// an HTML page served from the feed URL. The diagnostic is empty for feeds.
func Validate(body []byte, url string) (bool, string) {
	head := body
	if len(head) > sniffLength {
		head = head[:sniffLength]
	}
	sniff := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(string(head), "\ufeff")))

	if sniff == "" {
		return false, fmt.Sprintf("empty response body from %s", url)
	}

	if strings.HasPrefix(sniff, "<!doctype html") || strings.HasPrefix(sniff, "<html") {
		return false, fmt.Sprintf("response from %s is an HTML document", url)
	}

	if strings.Contains(sniff, "<body") && !strings.Contains(sniff, "<rss") && !strings.Contains(sniff, "<feed") {
		return false, fmt.Sprintf("response from %s has an HTML body and no rss or feed element", url)
	}

	return true, ""
}

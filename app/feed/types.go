package feed

import (
	"time"
)

// Feed processing types

type Metadata struct {
	Title       string
	Link        string
	Description string
	ImageURL    string
	Language    string
}

// Entry is one raw feed entry as the parser saw it, before any book heuristics.
type Entry struct {
	GUID        string
	Title       string
	Link        string
	Description string
	Content     string
	Author      string
	Categories  []string
	PublishedAt *time.Time
	UpdatedAt   *time.Time
	ImageURL    string
	Fields      map[string]string // Dialect specific elements keyed by lower-cased local name
}

// Field returns the first non-empty dialect field among names.
func (e Entry) Field(names ...string) string {
	for _, name := range names {
		if v := e.Fields[name]; v != "" {
			return v
		}
	}
	return ""
}

// HasField reports whether the entry carries any of the named fields, even empty.
func (e Entry) HasField(names ...string) bool {
	for _, name := range names {
		if _, ok := e.Fields[name]; ok {
			return true
		}
	}
	return false
}

// Extraction holds the book event fields derived from one entry.
type Extraction struct {
	BookTitle     string
	BookAuthor    string
	Rating        int // 0 when no rating could be found
	Loved         bool
	ReviewText    string
	EventAt       *time.Time
	CoverImageURL string
	ISBN          string
}

// Seed configuration types

type SeedFile struct {
	User    string       `yaml:"user"`
	Sources []SeedSource `yaml:"sources"`
}

type SeedSource struct {
	URL              string `yaml:"url"`
	Title            string `yaml:"title"`
	FailureThreshold int    `yaml:"failure_threshold"`
}

package feed

import (
	"errors"
	"testing"
	"time"
)

const goodreadsRSS = `<?xml version="1.0"?>
<rss version="2.0" xmlns:dc="http://purl.org/dc/elements/1.1/">
  <channel>
    <title>Bob's bookshelf: all</title>
    <link>https://www.goodreads.com/review/list/1</link>
    <description>Bob's bookshelf</description>
    <language>en-US</language>
    <item>
      <guid>https://www.goodreads.com/review/show/100</guid>
      <title>The Great Gatsby</title>
      <link>https://www.goodreads.com/review/show/100</link>
      <pubDate>Mon, 03 Jul 2023 10:00:00 GMT</pubDate>
      <author_name>F. Scott Fitzgerald</author_name>
      <user_rating>5</user_rating>
      <user_shelves>classics, favorites</user_shelves>
      <book_large_image_url>https://images.example.com/gatsby-l.jpg</book_large_image_url>
      <isbn>0743273567</isbn>
      <description><![CDATA[<p>Beautiful and heartbreaking from start to finish.</p>]]></description>
      <dc:creator>Bob</dc:creator>
    </item>
    <item>
      <guid>https://www.goodreads.com/review/show/101</guid>
      <title>Dune</title>
      <link>https://www.goodreads.com/review/show/101</link>
      <user_rating></user_rating>
    </item>
  </channel>
</rss>`

func TestParseRSS2(t *testing.T) {
	parser := NewParser()
	metadata, entries, err := parser.Run([]byte(goodreadsRSS))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if metadata.Title != "Bob's bookshelf: all" {
		t.Errorf("Expected title 'Bob's bookshelf: all', got: %s", metadata.Title)
	}
	if metadata.Language != "en-US" {
		t.Errorf("Expected language 'en-US', got: %s", metadata.Language)
	}

	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got: %d", len(entries))
	}

	first := entries[0]
	if first.GUID != "https://www.goodreads.com/review/show/100" {
		t.Errorf("Unexpected GUID: %s", first.GUID)
	}
	if first.Author != "Bob" {
		t.Errorf("Expected author 'Bob', got: %s", first.Author)
	}
	if first.PublishedAt == nil || !first.PublishedAt.Equal(time.Date(2023, 7, 3, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("Unexpected published date: %v", first.PublishedAt)
	}

	fields := map[string]string{
		"author_name":          "F. Scott Fitzgerald",
		"user_rating":          "5",
		"user_shelves":         "classics, favorites",
		"book_large_image_url": "https://images.example.com/gatsby-l.jpg",
		"isbn":                 "0743273567",
	}
	for name, want := range fields {
		if got := first.Fields[name]; got != want {
			t.Errorf("Field %s: expected %q, got %q", name, want, got)
		}
	}

	if _, ok := entries[1].Fields["user_rating"]; ok {
		t.Error("Empty dialect fields should be dropped")
	}
}

func TestParseAtom(t *testing.T) {
	atomData := `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Carol's updates</title>
  <link href="https://example.com/"/>
  <updated>2023-07-03T12:00:00Z</updated>
  <id>urn:uuid:feed</id>
  <entry>
    <title>Carol rated Middlemarch by George Eliot</title>
    <link href="https://example.com/entry1"/>
    <id>urn:uuid:entry1</id>
    <updated>2023-07-03T10:00:00Z</updated>
    <summary>Carol gave it 4 stars</summary>
  </entry>
</feed>`

	metadata, entries, err := NewParser().Run([]byte(atomData))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if metadata.Title != "Carol's updates" {
		t.Errorf("Expected title 'Carol's updates', got: %s", metadata.Title)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got: %d", len(entries))
	}
	if entries[0].GUID != "urn:uuid:entry1" {
		t.Errorf("Expected GUID 'urn:uuid:entry1', got: %s", entries[0].GUID)
	}
	if entries[0].Link != "https://example.com/entry1" {
		t.Errorf("Expected link 'https://example.com/entry1', got: %s", entries[0].Link)
	}
	if entries[0].UpdatedAt == nil {
		t.Error("Expected updated date to be parsed")
	}
}

func TestParseInvalidFeed(t *testing.T) {
	_, _, err := NewParser().Run([]byte("this is not xml"))
	if err == nil {
		t.Fatal("Expected error for invalid feed")
	}

	var feedErr *Error
	if !errors.As(err, &feedErr) {
		t.Fatalf("Expected *Error, got %T", err)
	}
	if feedErr.Code != CodeParseError {
		t.Errorf("Expected code %s, got %s", CodeParseError, feedErr.Code)
	}
}

func TestParseRSSWithHTMLEntities(t *testing.T) {
	rssData := `<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title>Entities</title>
    <item>
      <title>Pride &amp; Prejudice</title>
      <guid>pp</guid>
    </item>
  </channel>
</rss>`

	_, entries, err := NewParser().Run([]byte(rssData))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if entries[0].Title != "Pride & Prejudice" {
		t.Errorf("Expected decoded title, got: %s", entries[0].Title)
	}
}

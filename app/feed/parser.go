package feed

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"
)

type Parser struct {
	gofeedParser *gofeed.Parser
}

func NewParser() *Parser {
	return &Parser{
		gofeedParser: gofeed.NewParser(),
	}
}

// Run parses an RSS or Atom document. Entries keep feed order.
func (p *Parser) Run(data []byte) (*Metadata, []Entry, error) {
	feed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, nil, NewError(CodeParseError, fmt.Errorf("failed to parse feed: %w", err))
	}

	metadata := &Metadata{
		Title:       strings.TrimSpace(feed.Title),
		Link:        feed.Link,
		Description: feed.Description,
		Language:    feed.Language,
	}

	if feed.Image != nil {
		metadata.ImageURL = feed.Image.URL
	}

	entries := make([]Entry, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		entries = append(entries, p.normalizeItem(item))
	}

	return metadata, entries, nil
}

func (p *Parser) normalizeItem(item *gofeed.Item) Entry {
	entry := Entry{
		GUID:        strings.TrimSpace(item.GUID),
		Title:       strings.TrimSpace(item.Title),
		Link:        strings.TrimSpace(item.Link),
		Description: item.Description,
		Content:     item.Content,
		PublishedAt: item.PublishedParsed,
		UpdatedAt:   item.UpdatedParsed,
		Categories:  item.Categories,
		Fields:      p.collectFields(item),
	}

	entry.Author = p.extractAuthor(item)

	if item.Image != nil {
		entry.ImageURL = item.Image.URL
	}

	return entry
}

// collectFields flattens non-standard elements (Goodreads user_rating, author_name,
// book_large_image_url, ...) and namespaced extensions into one lookup map.
func (p *Parser) collectFields(item *gofeed.Item) map[string]string {
	fields := make(map[string]string, len(item.Custom))

	for name, value := range item.Custom {
		if v := strings.TrimSpace(value); v != "" {
			fields[strings.ToLower(name)] = v
		}
	}

	for _, elements := range item.Extensions {
		for name, values := range elements {
			key := strings.ToLower(name)
			if _, ok := fields[key]; ok {
				continue
			}
			for _, ext := range values {
				if v := strings.TrimSpace(ext.Value); v != "" {
					fields[key] = v
					break
				}
			}
		}
	}

	return fields
}

func (p *Parser) extractAuthor(item *gofeed.Item) string {
	if len(item.Authors) > 0 {
		for _, author := range item.Authors {
			if author != nil && strings.TrimSpace(author.Name) != "" {
				return strings.TrimSpace(author.Name)
			}
		}
	} else if item.Author != nil {
		return strings.TrimSpace(item.Author.Name)
	}

	return ""
}

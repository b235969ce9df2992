package feed

import (
	"bytes"
	"cmp"
	"encoding/xml"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/lysyi3m/shelfwatch/app/database"
)

// Generator renders a user's loved books as an RSS 2.0 channel.
type Generator struct {
	baseURL string
	version string
}

func NewGenerator(baseURL, version string) *Generator {
	return &Generator{
		baseURL: strings.TrimRight(baseURL, "/"),
		version: version,
	}
}

func (g *Generator) Run(userID string, items []database.UserItem) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("user id is required")
	}

	var buf bytes.Buffer

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString("\n")
	buf.WriteString(`<rss version="2.0" xmlns:atom="http://www.w3.org/2005/Atom">`)
	buf.WriteString("\n  <channel>\n")

	selfLink := fmt.Sprintf("%s/feeds/%s", g.baseURL, userID)
	g.writeElement(&buf, "title", fmt.Sprintf("Books loved by %s's friends", userID), 4)
	g.writeElement(&buf, "link", selfLink, 4)
	g.writeElement(&buf, "description", "Books your friends rated highly or shelved as favourites", 4)
	buf.WriteString(fmt.Sprintf("    <atom:link href=\"%s\" rel=\"self\" type=\"application/rss+xml\" />\n",
		html.EscapeString(selfLink)))

	lastBuildDate := time.Now().UTC()
	if len(items) > 0 {
		lastBuildDate = g.itemDate(items[0].Item)
	}
	g.writeElement(&buf, "lastBuildDate", lastBuildDate.Format(time.RFC1123Z), 4)
	g.writeElement(&buf, "generator", fmt.Sprintf("Shelfwatch/%s", cmp.Or(g.version, "dev")), 4)

	for _, item := range items {
		g.writeItem(&buf, item)
	}

	buf.WriteString("  </channel>\n</rss>")

	return buf.String(), nil
}

func (g *Generator) writeItem(buf *bytes.Buffer, item database.UserItem) {
	buf.WriteString("    <item>\n")

	buf.WriteString("      <guid isPermaLink=\"false\">")
	xml.EscapeText(buf, []byte(item.DedupHash))
	buf.WriteString("</guid>\n")

	g.writeElement(buf, "title", g.itemTitle(item.Item), 6)

	if item.URL != "" {
		g.writeElement(buf, "link", item.URL, 6)
	}

	description := item.ReviewText
	if description == "" {
		description = fmt.Sprintf("Shared by %s", cmp.Or(item.SourceTitle, "a friend"))
	}
	g.writeElement(buf, "description", description, 6)

	g.writeElement(buf, "pubDate", g.itemDate(item.Item).Format(time.RFC1123Z), 6)

	if item.BookAuthor != "" {
		g.writeElement(buf, "category", item.BookAuthor, 6)
	}

	if item.CoverImageURL != "" && g.isURL(item.CoverImageURL) {
		buf.WriteString(fmt.Sprintf("      <enclosure url=\"%s\" length=\"0\" type=\"image/jpeg\" />\n",
			html.EscapeString(item.CoverImageURL)))
	}

	buf.WriteString("    </item>\n")
}

func (g *Generator) itemTitle(item database.Item) string {
	title := cmp.Or(item.BookTitle, item.Title, "Untitled")
	if item.BookAuthor != "" {
		title = fmt.Sprintf("%s by %s", title, item.BookAuthor)
	}
	if item.Rating > 0 {
		title = fmt.Sprintf("%s %s", title, strings.Repeat("★", item.Rating))
	}
	return title
}

func (g *Generator) itemDate(item database.Item) time.Time {
	if item.PublishedAt != nil {
		return *item.PublishedAt
	}
	return item.CreatedAt
}

func (g *Generator) writeElement(buf *bytes.Buffer, tag, content string, indent int) {
	if content == "" {
		return
	}

	for i := 0; i < indent; i++ {
		buf.WriteByte(' ')
	}

	buf.WriteString("<")
	buf.WriteString(tag)
	buf.WriteString(">")
	xml.EscapeText(buf, []byte(content))
	buf.WriteString("</")
	buf.WriteString(tag)
	buf.WriteString(">\n")
}

func (g *Generator) isURL(s string) bool {
	return (len(s) > 7 && s[:7] == "http://") || (len(s) > 8 && s[:8] == "https://")
}

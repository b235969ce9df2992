package feed

import (
	"html"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"
)

const (
	MaxReviewLength      = 2000
	minReviewLength      = 20
	lovedReviewThreshold = 30
)

// strategy is one independent heuristic. It is total: it either produces a value
// and true, or reports no match. Strategies are composed first-match-wins.
type strategy[T any] func(Entry) (T, bool)

func firstMatch[T any](e Entry, strategies []strategy[T]) (T, bool) {
	for _, s := range strategies {
		if v, ok := s(e); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

type bookRef struct {
	Title  string
	Author string
}

var (
	ratingStrategies = []strategy[int]{ratingFromFields, ratingFromText}
	bookStrategies   = []strategy[bookRef]{bookFromAuthorField, bookFromActionPattern, bookFromByPattern, bookFromWholeTitle}
	reviewStrategies = []strategy[string]{
		reviewFrom(func(e Entry) string { return e.Field("user_review", "review") }),
		bodyReviewFrom(func(e Entry) string { return e.Content }),
		bodyReviewFrom(func(e Entry) string { return e.Description }),
	}
	dateStrategies  = []strategy[time.Time]{dateFromISOField, dateFromPublished, dateFromDialectField}
	coverStrategies = []strategy[string]{coverFromFields, coverFromHTML}
)

// Extract derives the book event fields from one entry. It never fails; fields that
// no heuristic could find are left empty.
func Extract(e Entry) Extraction {
	var out Extraction

	if book, ok := firstMatch(e, bookStrategies); ok {
		out.BookTitle = book.Title
		out.BookAuthor = book.Author
	}

	out.Rating, _ = firstMatch(e, ratingStrategies)
	out.ReviewText, _ = firstMatch(e, reviewStrategies)
	out.Loved = IsLoved(out.Rating, out.ReviewText, Shelves(e))

	if at, ok := firstMatch(e, dateStrategies); ok {
		at = at.UTC()
		out.EventAt = &at
	}

	out.CoverImageURL, _ = firstMatch(e, coverStrategies)
	out.ISBN = isbnFromFields(e)

	return out
}

// Rating

var ratingFieldNames = []string{"user_rating", "rating", "review_rating", "stars"}

func ratingFromFields(e Entry) (int, bool) {
	for _, name := range ratingFieldNames {
		v := strings.TrimSpace(e.Fields[name])
		if v == "" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			continue
		}
		if r := int(f); float64(r) == f && r >= 1 && r <= 5 {
			return r, true
		}
	}
	return 0, false
}

var (
	ratedOutOfPattern = regexp.MustCompile(`(?i)\brated it\s+([1-5])\s+(?:out\s+)?of\s+5\b`)
	gaveItPattern     = regexp.MustCompile(`(?i)\bgave (?:it\s+)?([1-5])\s+stars?\b`)
	starGlyphPattern  = regexp.MustCompile(`(?:[★⭐]\x{FE0F}?)+`)
	bracketPattern    = regexp.MustCompile(`(?i)\[\s*([1-5])\s*stars?\s*\]`)
	plainStarsPattern = regexp.MustCompile(`(?i)\b([1-5])\s*(?:/\s*5\s*)?stars?\b`)
	slashFivePattern  = regexp.MustCompile(`\b([1-5])\s*/\s*5\b`)
)

func ratingFromText(e Entry) (int, bool) {
	text := e.Title + "\n" + plainText(e.Description)

	for _, p := range []*regexp.Regexp{ratedOutOfPattern, gaveItPattern} {
		if r, ok := ratingFromGroup(p, text); ok {
			return r, true
		}
	}

	if glyphs := starGlyphPattern.FindString(text); glyphs != "" {
		n := strings.Count(glyphs, "★") + strings.Count(glyphs, "⭐")
		if n >= 1 && n <= 5 {
			return n, true
		}
	}

	for _, p := range []*regexp.Regexp{bracketPattern, plainStarsPattern, slashFivePattern} {
		if r, ok := ratingFromGroup(p, text); ok {
			return r, true
		}
	}

	return 0, false
}

func ratingFromGroup(p *regexp.Regexp, text string) (int, bool) {
	m := p.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	r, err := strconv.Atoi(m[1])
	if err != nil || r < 1 || r > 5 {
		return 0, false
	}
	return r, true
}

// Loved

var favoriteShelfMarkers = []string{"favorite", "favourite", "loved", "fave"}

// IsLoved is broader than a five star rating: a four star rating with a substantive
// review, or any favourites-like shelf, also counts.
func IsLoved(rating int, review string, shelves []string) bool {
	if rating == 5 {
		return true
	}
	if rating == 4 && utf8.RuneCountInString(review) > lovedReviewThreshold {
		return true
	}
	for _, shelf := range shelves {
		s := strings.ToLower(shelf)
		for _, marker := range favoriteShelfMarkers {
			if strings.Contains(s, marker) {
				return true
			}
		}
	}
	return false
}

// Shelves returns the shelf or tag names an entry was filed under.
func Shelves(e Entry) []string {
	var shelves []string
	if raw := e.Field("user_shelves", "shelves"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				shelves = append(shelves, s)
			}
		}
	}
	return append(shelves, e.Categories...)
}

// Book title and author

var (
	ratingSuffixPattern = regexp.MustCompile(`(?i)\s*(?:[-–—|,:]\s*)?[\[(]?\s*(?:rated it\s+[1-5]\s+(?:out\s+)?of\s+5(?:\s+stars?)?|[1-5]\s*(?:/\s*5\s*)?stars?|[1-5]\s*/\s*5|(?:[★⭐☆]\x{FE0F}?)+)\s*[\])]?\s*$`)
	actionPattern       = regexp.MustCompile(`(?i)\b(?:reviewed|rated)\s+(.+)\s+by\s+(.+)$`)
	byPattern           = regexp.MustCompile(`(?i)^(.+)\s+by\s+(.+)$`)
	actionPrefixPattern = regexp.MustCompile(`(?i)^.*?\b(?:reviewed|rated)\s+`)
)

// StripRatingSuffix removes trailing rating annotations such as "- 5 stars" or "★★★★".
func StripRatingSuffix(title string) string {
	return strings.TrimSpace(ratingSuffixPattern.ReplaceAllString(title, ""))
}

func bookFromAuthorField(e Entry) (bookRef, bool) {
	author := cleanName(e.Field("author_name", "book_author"))
	if author == "" {
		return bookRef{}, false
	}

	title := StripRatingSuffix(cmpOr(e.Field("book_title"), e.Title))
	title = actionPrefixPattern.ReplaceAllString(title, "")
	lower := strings.ToLower(title)
	if i := strings.LastIndex(lower, " by "+strings.ToLower(author)); i > 0 {
		title = title[:i]
	}

	title = cleanName(title)
	if title == "" {
		return bookRef{}, false
	}
	return bookRef{Title: title, Author: author}, true
}

func bookFromActionPattern(e Entry) (bookRef, bool) {
	return bookFromPattern(actionPattern, StripRatingSuffix(e.Title))
}

func bookFromByPattern(e Entry) (bookRef, bool) {
	return bookFromPattern(byPattern, StripRatingSuffix(e.Title))
}

func bookFromPattern(p *regexp.Regexp, title string) (bookRef, bool) {
	m := p.FindStringSubmatch(title)
	if m == nil {
		return bookRef{}, false
	}
	ref := bookRef{Title: cleanName(m[1]), Author: cleanName(m[2])}
	if ref.Title == "" || ref.Author == "" {
		return bookRef{}, false
	}
	return ref, true
}

func bookFromWholeTitle(e Entry) (bookRef, bool) {
	title := cleanName(StripRatingSuffix(e.Title))
	if title == "" {
		return bookRef{}, false
	}
	return bookRef{Title: title}, true
}

func cleanName(s string) string {
	s = norm.NFC.String(html.UnescapeString(s))
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'“”‘’:;,`)
	return strings.TrimSpace(s)
}

// Review text

var (
	htmlPolicy       = bluemonday.StrictPolicy()
	breakPattern     = regexp.MustCompile(`(?i)<\s*(?:br|/p|/div|/li)\s*/?\s*>`)
	spacePattern     = regexp.MustCompile(`[ \t\r\f\v]+`)
	newlinesPattern  = regexp.MustCompile(`\s*\n\s*`)
	labelLinePattern = regexp.MustCompile(`(?i)^(author|name|user name|average rating|book published|rating|read at|date read|date added|shelves|review|isbn|title)\s*:\s*(.*)$`)
)

// metadataPattern matches activity lines with no review content. An initial such
// as "F." or "J.R.R." does not end the phrase.
var metadataPattern = regexp.MustCompile(`^(?:[\p{L}.'’-]+\s+){0,4}(?i:rated it|gave it|gave [1-5] stars?|added|wants to read|is currently reading|is reading|started reading|finished reading|shelved|marked)\b(?:\b\p{Lu}\.|[^.!?])*[.!?]?$`)

// dialectFields mark entries whose body is a label: value block and whose
// review lives in its own field.
var dialectFields = []string{"user_rating", "user_review", "author_name", "book_id"}

// plainText strips markup and decodes entities, keeping paragraph breaks.
func plainText(s string) string {
	if s == "" {
		return ""
	}
	s = breakPattern.ReplaceAllString(s, "$0\n")
	s = html.UnescapeString(htmlPolicy.Sanitize(s))
	s = spacePattern.ReplaceAllString(s, " ")
	s = newlinesPattern.ReplaceAllString(s, "\n")
	return strings.TrimSpace(norm.NFC.String(s))
}

// CleanReview turns an entry body into review text, or returns "" when what is left
// carries no human review content.
func CleanReview(raw string) string {
	text := stripMetadataLines(plainText(raw))
	if utf8.RuneCountInString(text) < minReviewLength {
		return ""
	}
	if metadataPattern.MatchString(text) {
		return ""
	}
	return truncateRunes(text, MaxReviewLength)
}

// stripMetadataLines drops "label: value" lines. The value of a "review:" line is
// the only part kept.
func stripMetadataLines(text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		m := labelLinePattern.FindStringSubmatch(line)
		if m == nil {
			kept = append(kept, line)
			continue
		}
		if strings.EqualFold(m[1], "review") && strings.TrimSpace(m[2]) != "" {
			kept = append(kept, strings.TrimSpace(m[2]))
		}
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

func reviewFrom(source func(Entry) string) strategy[string] {
	return func(e Entry) (string, bool) {
		text := CleanReview(source(e))
		return text, text != ""
	}
}

// bodyReviewFrom reads the entry body, which only holds a review outside the known
// dialect. There the review has its own field and the body is metadata.
func bodyReviewFrom(source func(Entry) string) strategy[string] {
	review := reviewFrom(source)
	return func(e Entry) (string, bool) {
		if e.HasField(dialectFields...) {
			return "", false
		}
		return review(e)
	}
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:max]))
}

// Event date

func dateFromISOField(e Entry) (time.Time, bool) {
	for _, name := range []string{"date", "timestamp", "published", "updated"} {
		if v := e.Fields[name]; v != "" {
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

func dateFromPublished(e Entry) (time.Time, bool) {
	if e.PublishedAt != nil {
		return *e.PublishedAt, true
	}
	if e.UpdatedAt != nil {
		return *e.UpdatedAt, true
	}
	return time.Time{}, false
}

func dateFromDialectField(e Entry) (time.Time, bool) {
	for _, name := range []string{"user_read_at", "user_date_added", "user_date_created", "date_read", "date_added"} {
		if v := e.Fields[name]; v != "" {
			if t, err := dateparse.ParseAny(v); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// Cover image

var coverFieldNames = []string{"book_large_image_url", "book_medium_image_url", "book_image_url", "book_small_image_url"}

func coverFromFields(e Entry) (string, bool) {
	for _, name := range coverFieldNames {
		if u := e.Fields[name]; isImageURL(u) {
			return u, true
		}
	}
	return "", false
}

func coverFromHTML(e Entry) (string, bool) {
	for _, body := range []string{e.Description, e.Content} {
		if !strings.Contains(strings.ToLower(body), "<img") {
			continue
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
		if err != nil {
			continue
		}
		if src, ok := doc.Find("img[src]").First().Attr("src"); ok && isImageURL(src) {
			return strings.TrimSpace(src), true
		}
	}
	return "", false
}

func isImageURL(u string) bool {
	u = strings.TrimSpace(u)
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") || strings.HasPrefix(u, "//")
}

// ISBN

func isbnFromFields(e Entry) string {
	for _, name := range []string{"isbn13", "isbn"} {
		v := strings.ToUpper(strings.NewReplacer("-", "", " ", "").Replace(e.Fields[name]))
		if validISBN(v) {
			return v
		}
	}
	return ""
}

func validISBN(v string) bool {
	if len(v) != 10 && len(v) != 13 {
		return false
	}
	for i, r := range v {
		if r >= '0' && r <= '9' {
			continue
		}
		if r == 'X' && len(v) == 10 && i == 9 {
			continue
		}
		return false
	}
	return true
}

func cmpOr(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

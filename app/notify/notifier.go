package notify

import (
	"context"
	"log/slog"
	"time"
)

// Event is one newly ingested loved book, addressed to the subscribing user.
type Event struct {
	UserID      string    `json:"user_id"`
	ItemID      string    `json:"item_id"`
	BookTitle   string    `json:"book_title"`
	BookAuthor  string    `json:"book_author,omitempty"`
	SourceLabel string    `json:"source_label"`
	EventURL    string    `json:"event_url,omitempty"`
	Rating      int       `json:"rating,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// LogNotifier writes events to the log. It is used when no broker is configured.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) NotifyLoved(_ context.Context, e Event) error {
	slog.Info("Loved book",
		"user", e.UserID,
		"title", e.BookTitle,
		"author", e.BookAuthor,
		"source", e.SourceLabel,
		"url", e.EventURL)
	return nil
}

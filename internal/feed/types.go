package feed

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrSourceUnavailable    = errors.New("source unavailable")
	ErrRateLimited          = errors.New("rate limited")
	ErrQuoteUnavailable     = errors.New("quote unavailable")
	ErrMalformedPayload     = errors.New("malformed payload")
	ErrConfigurationMissing = errors.New("configuration missing")
)

// Announcement is one item from a filing or news source.
// Symbol is empty for keyword news; matching then falls back to the headline.
type Announcement struct {
	SourceID    string
	Key         string
	Symbol      string
	Headline    string
	Link        string
	PublishedAt time.Time
}

// Kind selects what a quote lookup returns.
type Kind string

const (
	KindPrice     Kind = "price"
	KindIndicator Kind = "indicator"
)

// Source is a pollable announcement feed.
type Source interface {
	ID() string
	// Poll returns the provider's current items newest-first and the key of
	// the newest item. On failure it returns no items, cursor unchanged, and
	// a classified error.
	Poll(ctx context.Context, cursor string) (items []Announcement, next string, err error)
}

// QuoteSource looks up the live value for a symbol.
type QuoteSource interface {
	Quote(ctx context.Context, symbol string, kind Kind) (decimal.Decimal, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc struct {
	Name string
	Fn   func(ctx context.Context, cursor string) ([]Announcement, string, error)
}

func (s SourceFunc) ID() string { return s.Name }

func (s SourceFunc) Poll(ctx context.Context, cursor string) ([]Announcement, string, error) {
	return s.Fn(ctx, cursor)
}

// newest returns the key of items[0], or fallback when empty.
func newest(items []Announcement, fallback string) string {
	if len(items) == 0 {
		return fallback
	}
	return items[0].Key
}

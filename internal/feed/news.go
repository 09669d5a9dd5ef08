package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	logx "stockalert/pkg/logx"
)

type NewsConfig struct {
	BaseURL  string
	APIKey   string
	Query    string
	Language string
	PageSize int
}

// News polls a NewsAPI-compatible /v2/everything endpoint sorted by
// publication time. Items carry no symbol.
type News struct {
	cfg    NewsConfig
	client *Client
	log    logx.Logger
}

// NewNews returns ErrConfigurationMissing when no API key is set.
func NewNews(cfg NewsConfig, client *Client, log logx.Logger) (*News, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: news api key", ErrConfigurationMissing)
	}
	if strings.TrimSpace(cfg.Query) == "" {
		return nil, fmt.Errorf("%w: news query", ErrConfigurationMissing)
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &News{cfg: cfg, client: client, log: log}, nil
}

func (n *News) ID() string { return "news" }

type newsArticle struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	PublishedAt string `json:"publishedAt"`
}

func (n *News) endpoint() string {
	q := url.Values{}
	q.Set("q", n.cfg.Query)
	q.Set("sortBy", "publishedAt")
	if n.cfg.Language != "" {
		q.Set("language", n.cfg.Language)
	}
	q.Set("pageSize", strconv.Itoa(n.cfg.PageSize))
	q.Set("apiKey", n.cfg.APIKey)
	return strings.TrimRight(n.cfg.BaseURL, "/") + "/v2/everything?" + q.Encode()
}

func (n *News) Poll(ctx context.Context, cursor string) ([]Announcement, string, error) {
	var articles []newsArticle
	err := n.client.Get(ctx, n.endpoint(), nil, func(body []byte) error {
		var env struct {
			Status   string         `json:"status"`
			Code     string         `json:"code"`
			Articles *[]newsArticle `json:"articles"`
		}
		if err := json.Unmarshal(body, &env); err != nil {
			return fmt.Errorf("%w: %w", ErrMalformedPayload, err)
		}
		if env.Code == "rateLimited" {
			return ErrRateLimited
		}
		if env.Status != "ok" || env.Articles == nil {
			return fmt.Errorf("%w: status %q", ErrSourceUnavailable, env.Status)
		}
		articles = *env.Articles
		return nil
	})
	if err != nil {
		return nil, cursor, err
	}

	items := make([]Announcement, 0, len(articles))
	for _, a := range articles {
		link := strings.TrimSpace(a.URL)
		title := strings.TrimSpace(a.Title)
		if link == "" || title == "" {
			continue
		}
		item := Announcement{SourceID: n.ID(), Key: link, Headline: title, Link: link}
		if t, err := time.Parse(time.RFC3339, a.PublishedAt); err == nil {
			item.PublishedAt = t
		}
		items = append(items, item)
	}
	return items, newest(items, cursor), nil
}

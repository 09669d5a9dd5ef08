package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	logx "stockalert/pkg/logx"
)

const nseTimeLayout = "02-Jan-2006 15:04:05"

type FilingsConfig struct {
	URL       string
	UserAgent string
	Referer   string
	// Location is used for provider timestamps without a zone. Nil means local.
	Location *time.Location
}

// Filings polls the NSE corporate-announcements endpoint.
type Filings struct {
	cfg    FilingsConfig
	client *Client
	log    logx.Logger
}

func NewFilings(cfg FilingsConfig, client *Client, log logx.Logger) *Filings {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Filings{cfg: cfg, client: client, log: log}
}

func (f *Filings) ID() string { return "filings" }

type nseItem struct {
	ID         flexString `json:"id"`
	SeqID      flexString `json:"seq_id"`
	Symbol     flexString `json:"symbol"`
	Headline   flexString `json:"headline"`
	Desc       flexString `json:"desc"`
	Subject    flexString `json:"subject"`
	Attachment flexString `json:"attchmntFile"`
	AnDate     flexString `json:"an_dt"`
}

func (f *Filings) Poll(ctx context.Context, cursor string) ([]Announcement, string, error) {
	header := http.Header{}
	header.Set("User-Agent", f.cfg.UserAgent)
	header.Set("Referer", f.cfg.Referer)

	var raw []nseItem
	err := f.client.Get(ctx, f.cfg.URL, header, func(body []byte) error {
		var derr error
		raw, derr = decodeNSE(body)
		return derr
	})
	if err != nil {
		return nil, cursor, err
	}

	items := make([]Announcement, 0, len(raw))
	skipped := 0
	for _, it := range raw {
		a, ok := f.normalize(it)
		if !ok {
			skipped++
			continue
		}
		items = append(items, a)
	}
	if skipped > 0 {
		f.log.Debug("filings items skipped", logx.Int("count", skipped), logx.Err(ErrMalformedPayload))
	}
	return items, newest(items, cursor), nil
}

// decodeNSE accepts a bare array or an object with a "data" array.
func decodeNSE(body []byte) ([]nseItem, error) {
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		var out []nseItem
		if err := json.Unmarshal(body, &out); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
		}
		return out, nil
	}
	var env struct {
		Data *[]nseItem `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if env.Data == nil {
		return nil, fmt.Errorf("%w: missing data", ErrMalformedPayload)
	}
	return *env.Data, nil
}

func (f *Filings) normalize(it nseItem) (Announcement, bool) {
	key := firstNonEmpty(it.ID, it.SeqID)
	headline := firstNonEmpty(it.Headline, it.Desc, it.Subject)
	symbol := strings.ToUpper(firstNonEmpty(it.Symbol))
	if key == "" || headline == "" {
		return Announcement{}, false
	}
	a := Announcement{
		SourceID: f.ID(),
		Key:      key,
		Symbol:   symbol,
		Headline: headline,
		Link:     firstNonEmpty(it.Attachment),
	}
	if s := firstNonEmpty(it.AnDate); s != "" {
		if t, err := time.ParseInLocation(nseTimeLayout, s, f.cfg.Location); err == nil {
			a.PublishedAt = t
		}
	}
	return a, true
}

package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	logx "stockalert/pkg/logx"
)

type QuotesConfig struct {
	BaseURL   string
	APIKey    string
	RSIPeriod int
}

// AlphaVantage serves price quotes (GLOBAL_QUOTE) and RSI indicator values.
type AlphaVantage struct {
	cfg    QuotesConfig
	client *Client
	log    logx.Logger
}

// NewAlphaVantage returns ErrConfigurationMissing when no API key is set.
func NewAlphaVantage(cfg QuotesConfig, client *Client, log logx.Logger) (*AlphaVantage, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: alphavantage api key", ErrConfigurationMissing)
	}
	if cfg.RSIPeriod <= 0 {
		cfg.RSIPeriod = 14
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &AlphaVantage{cfg: cfg, client: client, log: log}, nil
}

func (av *AlphaVantage) endpoint(q url.Values) string {
	q.Set("apikey", av.cfg.APIKey)
	return strings.TrimRight(av.cfg.BaseURL, "/") + "/query?" + q.Encode()
}

// Quote returns the latest value. Every failure wraps ErrQuoteUnavailable.
func (av *AlphaVantage) Quote(ctx context.Context, symbol string, kind Kind) (decimal.Decimal, error) {
	var (
		v   decimal.Decimal
		err error
	)
	switch kind {
	case KindPrice:
		v, err = av.price(ctx, symbol)
	case KindIndicator:
		v, err = av.rsi(ctx, symbol)
	default:
		err = fmt.Errorf("unknown kind %q", kind)
	}
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %s %s: %w", ErrQuoteUnavailable, symbol, kind, err)
	}
	return v, nil
}

// softLimit detects the 200-with-note body AlphaVantage uses for throttling.
func softLimit(m map[string]json.RawMessage) bool {
	_, note := m["Note"]
	_, info := m["Information"]
	return note || info
}

func (av *AlphaVantage) price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("function", "GLOBAL_QUOTE")
	q.Set("symbol", symbol)

	var out decimal.Decimal
	err := av.client.Get(ctx, av.endpoint(q), nil, func(body []byte) error {
		var m map[string]json.RawMessage
		if err := json.Unmarshal(body, &m); err != nil {
			return fmt.Errorf("%w: %w", ErrMalformedPayload, err)
		}
		if softLimit(m) {
			return ErrRateLimited
		}
		var gq map[string]string
		if err := json.Unmarshal(m["Global Quote"], &gq); err != nil || gq["05. price"] == "" {
			return fmt.Errorf("%w: missing Global Quote price", ErrMalformedPayload)
		}
		d, err := decimal.NewFromString(strings.TrimSpace(gq["05. price"]))
		if err != nil {
			return fmt.Errorf("%w: %w", ErrMalformedPayload, err)
		}
		out = d
		return nil
	})
	return out, err
}

func (av *AlphaVantage) rsi(ctx context.Context, symbol string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("function", "RSI")
	q.Set("symbol", symbol)
	q.Set("interval", "daily")
	q.Set("time_period", strconv.Itoa(av.cfg.RSIPeriod))
	q.Set("series_type", "close")

	var out decimal.Decimal
	err := av.client.Get(ctx, av.endpoint(q), nil, func(body []byte) error {
		var m map[string]json.RawMessage
		if err := json.Unmarshal(body, &m); err != nil {
			return fmt.Errorf("%w: %w", ErrMalformedPayload, err)
		}
		if softLimit(m) {
			return ErrRateLimited
		}
		var series map[string]map[string]string
		if err := json.Unmarshal(m["Technical Analysis: RSI"], &series); err != nil || len(series) == 0 {
			return fmt.Errorf("%w: missing RSI series", ErrMalformedPayload)
		}
		// Keys are ISO dates, so the lexical maximum is the latest.
		dates := make([]string, 0, len(series))
		for k := range series {
			dates = append(dates, k)
		}
		sort.Strings(dates)
		d, err := decimal.NewFromString(strings.TrimSpace(series[dates[len(dates)-1]]["RSI"]))
		if err != nil {
			return fmt.Errorf("%w: %w", ErrMalformedPayload, err)
		}
		out = d
		return nil
	})
	return out, err
}

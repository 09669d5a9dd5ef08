package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	logx "stockalert/pkg/logx"
)

func testClient(retries int) *Client {
	return NewClient(ClientConfig{Timeout: 2 * time.Second, RateLimitRetries: retries, RateLimitBackoff: time.Millisecond}, logx.Nop())
}

func serve(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func TestFilingsPollBothShapes(t *testing.T) {
	t.Parallel()

	bodies := map[string]string{
		"envelope": `{"data":[{"seq_id":101,"symbol":"infy","desc":"Board meeting","attchmntFile":"https://x/a.pdf","an_dt":"16-Oct-2026 14:03:22"},{"id":"100","symbol":"TCS","headline":"Results"}]}`,
		"array":    `[{"seq_id":101,"symbol":"infy","desc":"Board meeting"},{"id":"100","symbol":"TCS","headline":"Results"}]`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			var gotUA, gotRef string
			srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
				gotUA = r.Header.Get("User-Agent")
				gotRef = r.Header.Get("Referer")
				_, _ = w.Write([]byte(body))
			})
			f := NewFilings(FilingsConfig{URL: srv.URL, UserAgent: "Mozilla/5.0", Referer: "https://www.nseindia.com", Location: time.UTC}, testClient(0), logx.Nop())

			items, next, err := f.Poll(context.Background(), "")
			if err != nil {
				t.Fatalf("Poll: %v", err)
			}
			if gotUA != "Mozilla/5.0" || gotRef != "https://www.nseindia.com" {
				t.Fatalf("headers not sent: ua=%q ref=%q", gotUA, gotRef)
			}
			if len(items) != 2 || next != "101" {
				t.Fatalf("items=%d next=%q", len(items), next)
			}
			if items[0].Symbol != "INFY" || items[0].Headline != "Board meeting" || items[0].SourceID != "filings" {
				t.Fatalf("unexpected first item: %+v", items[0])
			}
			if name == "envelope" {
				want := time.Date(2026, 10, 16, 14, 3, 22, 0, time.UTC)
				if !items[0].PublishedAt.Equal(want) || items[0].Link != "https://x/a.pdf" {
					t.Fatalf("unexpected first item: %+v", items[0])
				}
			}
		})
	}
}

func TestFilingsSkipsMalformedItems(t *testing.T) {
	t.Parallel()

	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"symbol":"INFY","headline":"no key"},{"id":7,"symbol":"INFY"},{"id":8,"symbol":"TCS","subject":"ok"}]}`))
	})
	f := NewFilings(FilingsConfig{URL: srv.URL}, testClient(0), logx.Nop())
	items, next, err := f.Poll(context.Background(), "old")
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(items) != 1 || next != "8" || items[0].Headline != "ok" {
		t.Fatalf("items=%+v next=%q", items, next)
	}
}

func TestFilingsErrorsKeepCursor(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"server error", http.StatusBadGateway, "", ErrSourceUnavailable},
		{"not json", http.StatusOK, "<html>", ErrMalformedPayload},
		{"no data", http.StatusOK, `{"foo":1}`, ErrMalformedPayload},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			f := NewFilings(FilingsConfig{URL: srv.URL}, testClient(0), logx.Nop())
			items, next, err := f.Poll(context.Background(), "keep")
			if !errors.Is(err, tc.want) {
				t.Fatalf("err=%v want %v", err, tc.want)
			}
			if items != nil || next != "keep" {
				t.Fatalf("items=%v next=%q", items, next)
			}
		})
	}
}

func TestClientRetriesRateLimit(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	})
	f := NewFilings(FilingsConfig{URL: srv.URL}, testClient(2), logx.Nop())
	if _, _, err := f.Poll(context.Background(), ""); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if hits.Load() != 3 {
		t.Fatalf("hits=%d want 3", hits.Load())
	}
}

func TestClientRetriesTimeout(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			select {
			case <-time.After(300 * time.Millisecond):
			case <-r.Context().Done():
			}
			return
		}
		_, _ = w.Write([]byte(`[]`))
	})
	c := NewClient(ClientConfig{Timeout: 100 * time.Millisecond, RateLimitRetries: 2, RateLimitBackoff: time.Millisecond}, logx.Nop())
	f := NewFilings(FilingsConfig{URL: srv.URL}, c, logx.Nop())
	if _, _, err := f.Poll(context.Background(), ""); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if hits.Load() != 2 {
		t.Fatalf("hits=%d want 2", hits.Load())
	}
}

func TestClientTimeoutRetriesAreBounded(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		select {
		case <-time.After(300 * time.Millisecond):
		case <-r.Context().Done():
		}
	})
	c := NewClient(ClientConfig{Timeout: 50 * time.Millisecond, RateLimitRetries: 1, RateLimitBackoff: time.Millisecond}, logx.Nop())
	err := c.Get(context.Background(), srv.URL, nil, func([]byte) error { return nil })
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("err=%v want ErrSourceUnavailable", err)
	}
	if hits.Load() != 2 {
		t.Fatalf("hits=%d want 2", hits.Load())
	}

	// A cancelled caller is not retried.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	hits.Store(0)
	if err := c.Get(ctx, srv.URL, nil, func([]byte) error { return nil }); !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("cancelled err=%v", err)
	}
	if hits.Load() > 1 {
		t.Fatalf("cancelled hits=%d", hits.Load())
	}
}

func TestClientGivesUpAfterRetries(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	})
	f := NewFilings(FilingsConfig{URL: srv.URL}, testClient(2), logx.Nop())
	_, _, err := f.Poll(context.Background(), "")
	if !errors.Is(err, ErrSourceUnavailable) || !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err=%v", err)
	}
	if hits.Load() != 3 {
		t.Fatalf("hits=%d want 3", hits.Load())
	}
}

func TestNewsPoll(t *testing.T) {
	t.Parallel()

	var gotQuery, gotKey string
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotKey = r.URL.Query().Get("apiKey")
		if r.URL.Path != "/v2/everything" {
			t.Errorf("path=%q", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"status":"ok","articles":[{"url":"https://n/2","title":"INFY wins deal","publishedAt":"2026-10-16T09:00:00Z"},{"url":"","title":"dropped"},{"url":"https://n/1","title":"Older"}]}`))
	})
	n, err := NewNews(NewsConfig{BaseURL: srv.URL + "/", APIKey: "k", Query: "stocks"}, testClient(0), logx.Nop())
	if err != nil {
		t.Fatalf("NewNews: %v", err)
	}
	items, next, err := n.Poll(context.Background(), "")
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if gotQuery != "stocks" || gotKey != "k" {
		t.Fatalf("q=%q key=%q", gotQuery, gotKey)
	}
	if len(items) != 2 || next != "https://n/2" || items[0].Symbol != "" {
		t.Fatalf("items=%+v next=%q", items, next)
	}
	if items[0].PublishedAt.IsZero() {
		t.Fatalf("publishedAt not parsed")
	}
}

func TestNewsRequiresKey(t *testing.T) {
	t.Parallel()

	if _, err := NewNews(NewsConfig{Query: "x"}, testClient(0), logx.Nop()); !errors.Is(err, ErrConfigurationMissing) {
		t.Fatalf("err=%v", err)
	}
}

func TestAlphaVantageQuotes(t *testing.T) {
	t.Parallel()

	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("apikey") != "k" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch q.Get("function") {
		case "GLOBAL_QUOTE":
			_, _ = w.Write([]byte(`{"Global Quote":{"01. symbol":"INFY","05. price":"123.4500"}}`))
		case "RSI":
			if q.Get("time_period") != "14" || q.Get("interval") != "daily" {
				t.Errorf("rsi query=%v", q)
			}
			_, _ = w.Write([]byte(`{"Technical Analysis: RSI":{"2026-10-14":{"RSI":"40.1"},"2026-10-15":{"RSI":"71.25"}}}`))
		}
	})
	av, err := NewAlphaVantage(QuotesConfig{BaseURL: srv.URL, APIKey: "k"}, testClient(0), logx.Nop())
	if err != nil {
		t.Fatalf("NewAlphaVantage: %v", err)
	}

	p, err := av.Quote(context.Background(), "INFY", KindPrice)
	if err != nil || p.String() != "123.45" {
		t.Fatalf("price=%s err=%v", p, err)
	}
	r, err := av.Quote(context.Background(), "INFY", KindIndicator)
	if err != nil || r.String() != "71.25" {
		t.Fatalf("rsi=%s err=%v", r, err)
	}
}

func TestAlphaVantageNoteIsRateLimit(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"Note":"Thank you for using Alpha Vantage! Our standard API call frequency is 5 calls per minute."}`))
	})
	av, err := NewAlphaVantage(QuotesConfig{BaseURL: srv.URL, APIKey: "k"}, testClient(1), logx.Nop())
	if err != nil {
		t.Fatalf("NewAlphaVantage: %v", err)
	}
	_, err = av.Quote(context.Background(), "INFY", KindPrice)
	if !errors.Is(err, ErrQuoteUnavailable) || !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err=%v", err)
	}
	if hits.Load() != 2 {
		t.Fatalf("hits=%d want 2", hits.Load())
	}
}

func TestAlphaVantageMissingPrice(t *testing.T) {
	t.Parallel()

	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Global Quote":{}}`))
	})
	av, _ := NewAlphaVantage(QuotesConfig{BaseURL: srv.URL, APIKey: "k"}, testClient(0), logx.Nop())
	_, err := av.Quote(context.Background(), "NOPE", KindPrice)
	if !errors.Is(err, ErrQuoteUnavailable) || !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("err=%v", err)
	}
}

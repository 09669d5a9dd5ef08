package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	logx "stockalert/pkg/logx"
)

const maxBody = 8 << 20

type ClientConfig struct {
	Timeout          time.Duration
	RateLimitRetries int
	RateLimitBackoff time.Duration
}

// Client is the shared HTTP GET helper for providers.
type Client struct {
	http    *http.Client
	retries int
	backoff time.Duration
	log     logx.Logger
}

func NewClient(cfg ClientConfig, log logx.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RateLimitRetries < 0 {
		cfg.RateLimitRetries = 0
	}
	if cfg.RateLimitBackoff <= 0 {
		cfg.RateLimitBackoff = 2 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		http:    &http.Client{Timeout: cfg.Timeout},
		retries: cfg.RateLimitRetries,
		backoff: cfg.RateLimitBackoff,
		log:     log,
	}
}

// errTimedOut marks a request that hit the client timeout while the
// caller's context was still live.
var errTimedOut = errors.New("request timed out")

// Get fetches url and hands a 2xx body to decode. Transient failures (HTTP
// 429, decode returning ErrRateLimited, a request timeout) are retried up to
// the configured count with a fixed backoff. Every other failure is
// ErrSourceUnavailable.
func (c *Client) Get(ctx context.Context, url string, header http.Header, decode func(body []byte) error) error {
	for attempt := 0; ; attempt++ {
		err := c.getOnce(ctx, url, header, decode)
		if !errors.Is(err, ErrRateLimited) && !errors.Is(err, errTimedOut) {
			return err
		}
		if attempt >= c.retries {
			return fmt.Errorf("%w: %w after %d retries", ErrSourceUnavailable, err, attempt)
		}
		c.log.Debug("transient failure; backing off", logx.Int("attempt", attempt+1), logx.Duration("backoff", c.backoff), logx.Err(err))
		t := time.NewTimer(c.backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("%w: %w", ErrSourceUnavailable, ctx.Err())
		case <-t.C:
		}
	}
}

func (c *Client) getOnce(ctx context.Context, url string, header http.Header, decode func([]byte) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return c.transportErr(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return ErrRateLimited
	}
	if resp.StatusCode/100 != 2 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: http %d", ErrSourceUnavailable, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return c.transportErr(ctx, fmt.Errorf("read body: %w", err))
	}
	return decode(body)
}

// transportErr classifies a failed round trip. A timeout is transient only
// while ctx itself is still live.
func (c *Client) transportErr(ctx context.Context, err error) error {
	if ctx.Err() == nil && isTimeout(err) {
		return fmt.Errorf("%w: %w", errTimedOut, err)
	}
	return fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout())
}

package router

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/time/rate"

	logx "stockalert/pkg/logx"
)

type Middleware func(next HandlerFunc) HandlerFunc

// Chain wraps h so that m[0] runs outermost.
func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

// ErrThrottled is returned when a user exceeds the command rate.
var ErrThrottled = errors.New("router: too many requests")

// Recover turns a handler panic into an error.
func Recover() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				if r := recover(); r != nil {
					req.Logger.Error("handler panic", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
					err = fmt.Errorf("panic: %v", r)
				}
			}()
			return next(ctx, req)
		}
	}
}

// Logged records the outcome of every request. Slow successes log at info.
func Logged(slow time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			start := time.Now()
			err := next(ctx, req)
			d := time.Since(start)
			switch {
			case errors.Is(err, ErrThrottled):
				req.Logger.Debug("request throttled")
			case err != nil:
				req.Logger.Warn("request failed", logx.Duration("dur", d), logx.Err(err))
			case d >= slow:
				req.Logger.Info("request slow", logx.Duration("dur", d))
			default:
				req.Logger.Debug("request ok", logx.Duration("dur", d))
			}
			return err
		}
	}
}

// Deadline bounds a handler's context. d <= 0 leaves it unbounded.
func Deadline(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		if d <= 0 {
			return next
		}
		return func(ctx context.Context, req *Request) error {
			cctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(cctx, req)
		}
	}
}

// userLimiter holds one token bucket per user. Buckets idle for longer than
// idle are dropped on the next sweep.
type userLimiter struct {
	mu    sync.Mutex
	every rate.Limit
	burst int // requests allowed back to back
	idle  time.Duration
	users map[int64]*userBucket
	swept time.Time
}

type userBucket struct {
	lim  *rate.Limiter
	seen time.Time
}

func newUserLimiter(per time.Duration, burst int) *userLimiter {
	return &userLimiter{every: rate.Every(per), burst: max(burst, 1), idle: 10 * time.Minute, users: map[int64]*userBucket{}}
}

func (l *userLimiter) allow(userID int64, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if now.Sub(l.swept) > l.idle {
		for id, b := range l.users {
			if now.Sub(b.seen) > l.idle {
				delete(l.users, id)
			}
		}
		l.swept = now
	}
	b, ok := l.users[userID]
	if !ok {
		b = &userBucket{lim: rate.NewLimiter(l.every, l.burst)}
		l.users[userID] = b
	}
	b.seen = now
	return b.lim.AllowN(now, 1)
}

// Throttle fails requests beyond the user's rate with ErrThrottled.
func Throttle(l *userLimiter) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		if l == nil {
			return next
		}
		return func(ctx context.Context, req *Request) error {
			if !l.allow(req.FromID, time.Now()) {
				return ErrThrottled
			}
			return next(ctx, req)
		}
	}
}

package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"stockalert/internal/eventbus"
	kit "stockalert/internal/transport"
	logx "stockalert/pkg/logx"
)

// Service delivers messages synchronously. It is safe for concurrent use.
type Service struct {
	sender Sender
	log    logx.Logger
	bus    eventbus.Bus

	mu      sync.RWMutex
	cfg     Config
	limiter *rate.Limiter

	sent        atomic.Uint64
	failed      atomic.Uint64
	unreachable atomic.Uint64
}

func New(cfg Config, sender Sender, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop()
	}
	s := &Service{sender: sender, log: log, bus: bus}
	s.Apply(cfg)
	return s
}

// Apply swaps the rate limit and timeout at runtime.
func (s *Service) Apply(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 25
	}
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.RatePerSec
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	s.mu.Lock()
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst)
	s.mu.Unlock()
}

// Deliver sends text to userID. Transport errors and sender panics become a
// failed Result; nothing is retried here, the caller decides what a failure
// means.
func (s *Service) Deliver(ctx context.Context, userID int64, text string, format Format) (res Result) {
	s.mu.RLock()
	lim, timeout := s.limiter, s.cfg.SendTimeout
	s.mu.RUnlock()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res = s.fail(userID, start, fmt.Errorf("%w: sender panic: %v", ErrDeliveryFailed, r))
		}
	}()
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := lim.Wait(cctx); err != nil {
		return s.fail(userID, start, fmt.Errorf("%w: rate limit wait: %w", ErrDeliveryFailed, err))
	}

	opt := &kit.SendOptions{DisablePreview: true}
	if format == FormatHTML {
		opt.ParseMode = kit.ParseModeHTML
	}
	ref, err := s.sender.SendText(cctx, kit.ChatTarget{ChatID: userID}, text, opt)
	if err != nil {
		return s.fail(userID, start, fmt.Errorf("%w: %w", ErrDeliveryFailed, err))
	}
	s.sent.Add(1)
	return Result{OK: true, Ref: ref, Took: time.Since(start)}
}

func (s *Service) fail(userID int64, start time.Time, err error) Result {
	s.failed.Add(1)
	lvl := s.log.Warn
	if errors.Is(err, kit.ErrRecipientUnreachable) {
		s.unreachable.Add(1)
		lvl = s.log.Info
	}
	fields := []logx.Field{logx.User(userID), logx.Err(err)}
	var flood *kit.FloodError
	if errors.As(err, &flood) {
		fields = append(fields, logx.Duration("retry_after", flood.RetryAfter))
	}
	lvl("delivery failed", fields...)
	s.bus.Publish(eventbus.Event{
		Type: eventbus.TypeDeliveryFailed,
		Data: DeliveryEvent{UserID: userID, At: time.Now(), Error: err.Error()},
	})
	return Result{OK: false, Err: err, Took: time.Since(start)}
}

func (s *Service) Stats() Stats {
	return Stats{Sent: s.sent.Load(), Failed: s.failed.Load(), Unreachable: s.unreachable.Load()}
}

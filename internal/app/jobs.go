package app

import (
	"context"
	"errors"
	"time"

	"stockalert/internal/alert"
	"stockalert/internal/feed"
	"stockalert/internal/task/engine"
	"stockalert/internal/task/scheduler"
	logx "stockalert/pkg/logx"
)

const (
	jobDispatch  = "alerts.dispatch"
	jobPrice     = "alerts.price"
	jobIndicator = "alerts.indicator"
	jobDigest    = "alerts.digest"
)

// Jobs skip while a previous run is in flight and are not retried.
var jobOpts = engine.TaskOptions{Overlap: engine.OverlapSkipIfRunning, RetryMax: -1}

// registerJobs (re)installs the alert schedules. Registration by name
// replaces an existing schedule, so it is also the reload path.
func registerJobs(s *scheduler.Service, svc *alert.Service, iv intervals, log logx.Logger) error {
	if iv.floored {
		log.Warn("alerts.poll_interval raised to floor", logx.Duration("interval", iv.poll))
	}

	dispatch := func(ctx context.Context) error {
		_, err := svc.Dispatcher().RunCycle(ctx)
		if errors.Is(err, alert.ErrCycleInFlight) {
			return engine.Skipped(err)
		}
		return err
	}
	if err := s.AddInterval(jobDispatch, iv.poll, cycleTimeout(iv.poll), jobOpts, dispatch); err != nil {
		return err
	}

	if svc.HasQuotes() {
		threshold := func(kind feed.Kind) scheduler.Job {
			return func(ctx context.Context) error {
				_, err := svc.Evaluator().Run(ctx, kind)
				if errors.Is(err, feed.ErrConfigurationMissing) {
					return engine.Skipped(err)
				}
				return err
			}
		}
		if err := s.AddInterval(jobPrice, iv.price, cycleTimeout(iv.price), jobOpts, threshold(feed.KindPrice)); err != nil {
			return err
		}
		if err := s.AddInterval(jobIndicator, iv.indicator, cycleTimeout(iv.indicator), jobOpts, threshold(feed.KindIndicator)); err != nil {
			return err
		}
	} else {
		s.Remove(jobPrice)
		s.Remove(jobIndicator)
	}

	digest := func(ctx context.Context) error {
		_, err := svc.Digest().Run(ctx)
		return err
	}
	return s.AddDaily(jobDigest, iv.digestAt, 10*time.Minute, jobOpts, digest)
}

// cycleTimeout is three periods, clamped to [30s, 10m].
func cycleTimeout(every time.Duration) time.Duration {
	return min(max(3*every, 30*time.Second), 10*time.Minute)
}

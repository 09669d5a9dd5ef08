package engine

import (
	"context"
	"fmt"
	"math/rand/v2"
	"runtime/debug"
	"time"

	"stockalert/internal/eventbus"
	logx "stockalert/pkg/logx"
)

func (s *Service) worker(ctx context.Context, queue <-chan queuedTask) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-queue:
			s.execOne(ctx, t)
		}
	}
}

func (s *Service) execOne(ctx context.Context, qt queuedTask) {
	start := time.Now()
	queueDelay := max(start.Sub(qt.enqueuedAt), 0)
	log := s.log.With(logx.String("task", qt.task.Name))
	log.Debug("task started", logx.Duration("queue_delay", queueDelay))

	var err error
	attempts := 0
	for attempt := 1; attempt <= 1+qt.opt.RetryMax; attempt++ {
		attempts = attempt
		err = s.runOnce(ctx, qt, log)
		if err == nil || IsNoRetry(err) || IsSkipped(err) || attempt > qt.opt.RetryMax {
			break
		}
		delay := backoffDelay(qt.opt, attempt)
		log.Debug("task retry scheduled", logx.Int("attempt", attempt+1), logx.Duration("delay", delay), logx.Err(err))
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			err = ctx.Err()
		case <-t.C:
		}
		if ctx.Err() != nil {
			break
		}
	}

	if qt.state != nil {
		qt.state.release()
	}

	dur := time.Since(start)
	item := HistoryItem{Name: qt.task.Name, Started: start, QueueDelay: queueDelay, Duration: dur, Attempts: attempts}
	switch {
	case IsSkipped(err):
		item.Skipped = cause(err).Error()
		log.Debug("task skipped", logx.String("reason", item.Skipped), logx.Duration("dur", dur))
	case err != nil:
		err = cause(err)
		item.Error = err.Error()
		log.Warn("task failed", logx.Err(err), logx.Duration("dur", dur), logx.Int("attempts", attempts))
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeTaskFailed, Time: time.Now(), Data: item})
	case dur >= 750*time.Millisecond:
		log.Info("task completed", logx.Duration("dur", dur), logx.Int("attempts", attempts))
	default:
		log.Debug("task completed", logx.Duration("dur", dur), logx.Int("attempts", attempts))
	}
	s.record(item)
}

func (s *Service) runOnce(ctx context.Context, qt queuedTask, log logx.Logger) (err error) {
	runCtx := ctx
	if qt.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, qt.timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			log.Error("task panic", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()
	return qt.task.Run(runCtx)
}

// backoffDelay doubles from RetryBase per attempt with 20% jitter, capped at
// RetryMaxDelay.
func backoffDelay(opt TaskOptions, attempt int) time.Duration {
	d := opt.RetryBase
	for i := 1; i < attempt && d < opt.RetryMaxDelay; i++ {
		d *= 2
	}
	d = time.Duration(float64(d) * (0.8 + 0.4*rand.Float64()))
	return min(d, opt.RetryMaxDelay)
}

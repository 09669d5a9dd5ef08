package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"stockalert/internal/eventbus"
	kit "stockalert/internal/transport"
	logx "stockalert/pkg/logx"
)

type fakeSender struct {
	mu    sync.Mutex
	fail  map[int64]error
	sent  []kit.ChatTarget
	opts  []*kit.SendOptions
	delay time.Duration
}

func (f *fakeSender) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return kit.MessageRef{}, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[to.ChatID]; err != nil {
		return kit.MessageRef{}, err
	}
	f.sent = append(f.sent, to)
	f.opts = append(f.opts, opt)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func TestDeliverSuccessAndFormat(t *testing.T) {
	t.Parallel()

	fs := &fakeSender{}
	s := New(Config{RatePerSec: 100}, fs, logx.Nop(), nil)

	res := s.Deliver(context.Background(), 42, "<b>TCS</b>", FormatHTML)
	if !res.OK || res.Err != nil || res.Ref.MessageID != 1 {
		t.Fatalf("res=%+v", res)
	}
	if fs.opts[0].ParseMode != kit.ParseModeHTML || !fs.opts[0].DisablePreview {
		t.Fatalf("opts=%+v", fs.opts[0])
	}
	if st := s.Stats(); st.Sent != 1 || st.Failed != 0 {
		t.Fatalf("stats=%+v", st)
	}
}

func TestDeliverFailureIsAResult(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()

	fs := &fakeSender{fail: map[int64]error{7: errors.Join(kit.ErrRecipientUnreachable, errors.New("blocked"))}}
	s := New(Config{RatePerSec: 100}, fs, logx.Nop(), bus)

	res := s.Deliver(context.Background(), 7, "hi", FormatText)
	if res.OK || !errors.Is(res.Err, ErrDeliveryFailed) || !errors.Is(res.Err, kit.ErrRecipientUnreachable) {
		t.Fatalf("res=%+v", res)
	}
	if st := s.Stats(); st.Failed != 1 || st.Unreachable != 1 {
		t.Fatalf("stats=%+v", st)
	}
	e := <-events
	if e.Type != eventbus.TypeDeliveryFailed {
		t.Fatalf("event=%+v", e)
	}
	if ev, ok := e.Data.(DeliveryEvent); !ok || ev.UserID != 7 {
		t.Fatalf("event data=%+v", e.Data)
	}
}

func TestDeliverTimeout(t *testing.T) {
	t.Parallel()

	fs := &fakeSender{delay: time.Second}
	s := New(Config{RatePerSec: 100, SendTimeout: 20 * time.Millisecond}, fs, logx.Nop(), nil)

	res := s.Deliver(context.Background(), 1, "slow", FormatText)
	if res.OK || !errors.Is(res.Err, context.DeadlineExceeded) {
		t.Fatalf("res=%+v", res)
	}
}

type panicSender struct{}

func (panicSender) SendText(context.Context, kit.ChatTarget, string, *kit.SendOptions) (kit.MessageRef, error) {
	panic("boom")
}

func TestDeliverRecoversSenderPanic(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()

	s := New(Config{RatePerSec: 100}, panicSender{}, logx.Nop(), bus)
	res := s.Deliver(context.Background(), 9, "hi", FormatText)
	if res.OK || !errors.Is(res.Err, ErrDeliveryFailed) {
		t.Fatalf("res=%+v", res)
	}
	if st := s.Stats(); st.Failed != 1 || st.Sent != 0 {
		t.Fatalf("stats=%+v", st)
	}
	if e := <-events; e.Type != eventbus.TypeDeliveryFailed {
		t.Fatalf("event=%+v", e)
	}
}

func TestDeliverFloodIsNotRetried(t *testing.T) {
	t.Parallel()

	fs := &fakeSender{fail: map[int64]error{5: &kit.FloodError{RetryAfter: 3 * time.Second}}}
	s := New(Config{RatePerSec: 100}, fs, logx.Nop(), nil)

	res := s.Deliver(context.Background(), 5, "hi", FormatText)
	var flood *kit.FloodError
	if res.OK || !errors.As(res.Err, &flood) || flood.RetryAfter != 3*time.Second {
		t.Fatalf("res=%+v", res)
	}
	if st := s.Stats(); st.Failed != 1 {
		t.Fatalf("stats=%+v", st)
	}
}

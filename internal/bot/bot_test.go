package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"stockalert/internal/alert"
	"stockalert/internal/storage"
	kit "stockalert/internal/transport"
	"stockalert/internal/transport/telegram/router"
	logx "stockalert/pkg/logx"
)

type sent struct {
	text   string
	opt    *kit.SendOptions
	edited bool
}

type fakeAdapter struct {
	mu  sync.Mutex
	out []sent
}

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                   { return nil }

func (f *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.out = append(f.out, sent{text: text, opt: opt})
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.out)}, nil
}

func (f *fakeAdapter) EditText(_ context.Context, _ kit.MessageRef, text string, opt *kit.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.out = append(f.out, sent{text: text, opt: opt, edited: true})
	return nil
}

func (f *fakeAdapter) AnswerCallback(context.Context, string, string) error { return nil }

func (f *fakeAdapter) last(t *testing.T) sent {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.out) == 0 {
		t.Fatalf("nothing sent")
	}
	return f.out[len(f.out)-1]
}

type fixture struct {
	bot   *Bot
	store *storage.Memory
	ad    *fakeAdapter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := storage.NewMemory()
	svc := alert.New(alert.Deps{Store: st}, alert.Config{})
	if err := svc.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	return &fixture{bot: New(svc, logx.Nop()), store: st, ad: &fakeAdapter{}}
}

func (f *fixture) req(user int64, args ...string) *router.Request {
	return &router.Request{
		Chat:      kit.ChatTarget{ChatID: user},
		FromID:    user,
		Args:      args,
		MessageID: 1,
		Adapter:   f.ad,
		Logger:    logx.Nop(),
	}
}

func TestWatchUnwatchAndList(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	if err := f.bot.cmdWatch(ctx, f.req(7, "tcs", "INFY", "bad!")); err != nil {
		t.Fatalf("watch: %v", err)
	}
	if got := f.ad.last(t).text; got != "Tracking: TCS INFY\nInvalid symbols: bad!" {
		t.Fatalf("watch reply=%q", got)
	}
	_ = f.bot.cmdWatch(ctx, f.req(7, "TCS"))
	if got := f.ad.last(t).text; got != "Already tracking: TCS" {
		t.Fatalf("rewatch reply=%q", got)
	}

	_ = f.bot.cmdList(ctx, f.req(7))
	if got := f.ad.last(t); got.text != "Subscriptions:\nINFY\nTCS" || got.opt != nil {
		t.Fatalf("list=%+v", got)
	}

	_ = f.bot.cmdUnwatch(ctx, f.req(7, "INFY", "WIPRO"))
	if got := f.ad.last(t).text; got != "Stopped: INFY\nNot tracked: WIPRO" {
		t.Fatalf("unwatch reply=%q", got)
	}

	if n := len(f.store.Audit()); n != 3 {
		t.Fatalf("audit entries=%d", n)
	}
}

func TestBroadcastToggle(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	_ = f.bot.cmdBroadcast(ctx, f.req(7))
	if got := f.ad.last(t).text; !strings.HasPrefix(got, "Broadcast is off.") {
		t.Fatalf("status=%q", got)
	}
	if err := f.bot.cmdBroadcast(ctx, f.req(7, "ON")); err != nil {
		t.Fatalf("broadcast on: %v", err)
	}
	if ids, _ := f.store.ListBroadcast(ctx); len(ids) != 1 || ids[0] != 7 {
		t.Fatalf("stored opt-ins=%v", ids)
	}
	_ = f.bot.cmdBroadcast(ctx, f.req(7))
	if got := f.ad.last(t).text; !strings.HasPrefix(got, "Broadcast is on.") {
		t.Fatalf("status=%q", got)
	}

	_ = f.bot.cmdBroadcast(ctx, f.req(7, "maybe"))
	if got := f.ad.last(t).text; got != "Usage: /broadcast on|off" {
		t.Fatalf("bad arg reply=%q", got)
	}

	_ = f.bot.cmdBroadcast(ctx, f.req(7, "off"))
	if ids, _ := f.store.ListBroadcast(ctx); len(ids) != 0 {
		t.Fatalf("opt-in kept after off: %v", ids)
	}
	if n := len(f.store.Audit()); n != 2 {
		t.Fatalf("audit entries=%d", n)
	}
}

func TestListPaginates(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	syms := make([]string, 0, 25)
	for i := range 25 {
		syms = append(syms, fmt.Sprintf("S%02d", i))
	}
	_ = f.bot.cmdWatch(ctx, f.req(1, syms...))

	_ = f.bot.cmdList(ctx, f.req(1))
	first := f.ad.last(t)
	if !strings.Contains(first.text, "Page 1/2 • 1-20 of 25") || first.opt == nil || first.opt.ReplyMarkup == nil {
		t.Fatalf("first page=%+v", first)
	}

	_ = f.bot.cbListPage(ctx, f.req(1), "1")
	second := f.ad.last(t)
	if !second.edited || !strings.Contains(second.text, "S24") || strings.Contains(second.text, "S00") {
		t.Fatalf("second page=%+v", second)
	}
}

func TestSplitAlertArgs(t *testing.T) {
	t.Parallel()

	cases := []struct {
		args          []string
		sym, cmp, thr string
		ok            bool
	}{
		{[]string{"TCS", ">", "123.45"}, "TCS", ">", "123.45", true},
		{[]string{"TCS", "<30"}, "TCS", "<", "30", true},
		{[]string{"TCS>30"}, "TCS", ">", "30", true},
		{[]string{"TCS", "above", "10"}, "TCS", "above", "10", true},
		{[]string{"TCS", ">"}, "", "", "", false},
		{[]string{">", "10"}, "", "", "", false},
		{nil, "", "", "", false},
	}
	for _, tc := range cases {
		sym, cmp, thr, ok := splitAlertArgs(tc.args)
		if ok != tc.ok || sym != tc.sym || cmp != tc.cmp || thr != tc.thr {
			t.Fatalf("%v: got %q %q %q %v", tc.args, sym, cmp, thr, ok)
		}
	}
}

func TestPriceAlertLifecycle(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	_ = f.bot.cmdPriceAlert(ctx, f.req(7, "tcs", ">", "100"))
	if got := f.ad.last(t).text; !strings.HasPrefix(got, "Alert set: TCS price > 100") {
		t.Fatalf("set reply=%q", got)
	}
	_ = f.bot.cmdIndicatorAlert(ctx, f.req(7, "INFY", "<", "abc"))
	if got := f.ad.last(t).text; got != "Usage: /indicatoralert SYMBOL < 30" {
		t.Fatalf("bad threshold reply=%q", got)
	}

	list, err := f.store.ListThresholdAlerts(ctx, 7)
	if err != nil || len(list) != 1 {
		t.Fatalf("alerts=%v err=%v", list, err)
	}
	id := fmt.Sprint(list[0].ID)

	_ = f.bot.cmdAlerts(ctx, f.req(7))
	if got := f.ad.last(t); got.text != "Your alerts (tap to remove):" || got.opt == nil {
		t.Fatalf("alerts view=%+v", got)
	}

	// Another user cannot remove it.
	if err := f.bot.cbRemove(ctx, f.req(8), id); err != nil {
		t.Fatalf("foreign remove: %v", err)
	}
	if list, _ := f.store.ListThresholdAlerts(ctx, 7); len(list) != 1 {
		t.Fatalf("foreign user removed alert")
	}

	if err := f.bot.cbRemove(ctx, f.req(7), id); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if got := f.ad.last(t); !got.edited || got.text != "No active alerts." {
		t.Fatalf("after remove=%+v", got)
	}
}

func TestTodayAndDigestWithoutDeliveries(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	_ = f.bot.cmdToday(ctx, f.req(3))
	if got := f.ad.last(t).text; got != "Today's alerts:\n(none)" {
		t.Fatalf("today=%q", got)
	}
	_ = f.bot.cmdDigest(ctx, f.req(3))
	if got := f.ad.last(t).text; got != "No alerts today." {
		t.Fatalf("digest=%q", got)
	}
	_ = f.bot.cmdStatus(ctx, f.req(3))
	if got := f.ad.last(t).text; !strings.Contains(got, "no cycle completed yet") {
		t.Fatalf("status=%q", got)
	}
}

func TestMenuRoutesActions(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	_ = f.bot.cmdMenu(ctx, f.req(1))
	if got := f.ad.last(t); got.opt == nil || got.opt.ReplyMarkup == nil {
		t.Fatalf("menu has no keyboard")
	}
	_ = f.bot.cbMenu(ctx, f.req(1), "price")
	if got := f.ad.last(t); !got.edited || got.text != "Use /pricealert SYMBOL > 123.45" {
		t.Fatalf("price=%+v", got)
	}
	_ = f.bot.cbMenu(ctx, f.req(1), "help")
	if got := f.ad.last(t).text; !strings.Contains(got, "/watch SYMBOL [SYMBOL ...] - track symbols") {
		t.Fatalf("help=%q", got)
	}
}

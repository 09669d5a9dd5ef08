package storage

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	logx "stockalert/pkg/logx"
)

func openDrivers(t *testing.T) map[string]Store {
	t.Helper()

	sq, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "alerts.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sq.Close() })

	mem, err := Open(Config{Driver: "memory"}, logx.Nop())
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	return map[string]Store{"sqlite": sq, "memory": mem}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()

	if _, err := Open(Config{Driver: "postgres"}, logx.Nop()); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}

func TestSubscriptionsIdempotent(t *testing.T) {
	t.Parallel()

	for name, st := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			added, err := st.AddSubscription(ctx, 1, "TCS")
			if err != nil || !added {
				t.Fatalf("first add=%v err=%v", added, err)
			}
			added, err = st.AddSubscription(ctx, 1, "TCS")
			if err != nil || added {
				t.Fatalf("second add=%v err=%v", added, err)
			}
			subs, err := st.ListSubscriptions(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if len(subs) != 1 || subs[0].UserID != 1 || subs[0].Symbol != "TCS" {
				t.Fatalf("subs=%+v", subs)
			}

			removed, _ := st.RemoveSubscription(ctx, 1, "TCS")
			if !removed {
				t.Fatalf("expected removal")
			}
			removed, err = st.RemoveSubscription(ctx, 1, "TCS")
			if err != nil || removed {
				t.Fatalf("second remove=%v err=%v", removed, err)
			}
		})
	}
}

func TestBroadcastOptIn(t *testing.T) {
	t.Parallel()

	for name, st := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, tc := range []struct {
				user    int64
				on      bool
				changed bool
			}{
				{2, true, true},
				{2, true, false},
				{1, true, true},
				{3, false, false},
			} {
				changed, err := st.SetBroadcast(ctx, tc.user, tc.on)
				if err != nil || changed != tc.changed {
					t.Fatalf("SetBroadcast(%d,%v)=%v err=%v, want %v", tc.user, tc.on, changed, err, tc.changed)
				}
			}
			ids, err := st.ListBroadcast(ctx)
			if err != nil || len(ids) != 2 || ids[0] != 1 || ids[1] != 2 {
				t.Fatalf("ids=%v err=%v", ids, err)
			}
			if changed, _ := st.SetBroadcast(ctx, 2, false); !changed {
				t.Fatalf("opt-out not reported as a change")
			}
			if ids, _ := st.ListBroadcast(ctx); len(ids) != 1 || ids[0] != 1 {
				t.Fatalf("after opt-out ids=%v", ids)
			}
		})
	}
}

func TestThresholdAlertClaimOnce(t *testing.T) {
	t.Parallel()

	for name, st := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			id, err := st.InsertThresholdAlert(ctx, ThresholdAlert{
				UserID: 7, Symbol: "INFY", Comparison: ">", Threshold: decimal.RequireFromString("1500.25"), Kind: "price",
			})
			if err != nil {
				t.Fatal(err)
			}

			list, err := st.ListThresholdAlerts(ctx, 7)
			if err != nil || len(list) != 1 {
				t.Fatalf("list=%+v err=%v", list, err)
			}
			if !list[0].Threshold.Equal(decimal.RequireFromString("1500.25")) {
				t.Fatalf("threshold=%s", list[0].Threshold)
			}

			if ok, _ := st.DeleteThresholdAlert(ctx, id, 8); ok {
				t.Fatalf("foreign user must not delete")
			}

			var wins atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if ok, err := st.DeleteThresholdAlert(ctx, id, 0); err == nil && ok {
						wins.Add(1)
					}
				}()
			}
			wg.Wait()
			if wins.Load() != 1 {
				t.Fatalf("claims=%d want 1", wins.Load())
			}
		})
	}
}

func TestDeliveriesRangeAndOrder(t *testing.T) {
	t.Parallel()

	day := time.Date(2024, 3, 4, 0, 0, 0, 0, time.Local)
	for name, st := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			recs := []DeliveryRecord{
				{UserID: 1, Symbol: "TCS", Headline: "later", DeliveredAt: day.Add(14 * time.Hour), OK: true},
				{UserID: 1, Symbol: "INFY", Headline: "earlier", DeliveredAt: day.Add(9 * time.Hour), OK: true},
				{UserID: 2, Symbol: "TCS", Headline: "other user", DeliveredAt: day.Add(10 * time.Hour), OK: true},
				{UserID: 1, Symbol: "TCS", Headline: "next day", DeliveredAt: day.Add(25 * time.Hour), OK: true},
			}
			for _, r := range recs {
				if err := st.AppendDelivery(ctx, r); err != nil {
					t.Fatal(err)
				}
			}
			got, err := st.ListDeliveries(ctx, day, day.AddDate(0, 0, 1), 1)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != 2 || got[0].Headline != "earlier" || got[1].Headline != "later" {
				t.Fatalf("got=%+v", got)
			}
			all, _ := st.ListDeliveries(ctx, day, day.AddDate(0, 0, 1), 0)
			if len(all) != 3 {
				t.Fatalf("all=%d want 3", len(all))
			}
			if _, err := st.ListDeliveries(ctx, day, day, 0); err == nil {
				t.Fatalf("expected empty range error")
			}
		})
	}
}

func TestCursorUpsert(t *testing.T) {
	t.Parallel()

	for name, st := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, ok, err := st.GetCursor(ctx, "filings"); err != nil || ok {
				t.Fatalf("empty cursor ok=%v err=%v", ok, err)
			}
			_ = st.PutCursor(ctx, "filings", "a1")
			_ = st.PutCursor(ctx, "filings", "a2")
			key, ok, err := st.GetCursor(ctx, "filings")
			if err != nil || !ok || key != "a2" {
				t.Fatalf("cursor=%q ok=%v err=%v", key, ok, err)
			}
		})
	}
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "alerts.db")
	ctx := context.Background()

	st, err := Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	_ = st.PutCursor(ctx, "news", "https://example.com/a")
	_, _ = st.AddSubscription(ctx, 3, "SBIN")
	_ = st.AppendAudit(ctx, AuditEntry{ActorID: 3, ChatID: 3, Action: "watch", Target: "SBIN"})
	_ = st.Close()

	st, err = Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	key, ok, _ := st.GetCursor(ctx, "news")
	if !ok || key != "https://example.com/a" {
		t.Fatalf("cursor after reopen=%q ok=%v", key, ok)
	}
	subs, _ := st.ListSubscriptions(ctx)
	if len(subs) != 1 {
		t.Fatalf("subs after reopen=%+v", subs)
	}
}

package alert

import (
	"context"
	"sort"
	"time"

	"github.com/samber/lo"

	"stockalert/internal/eventbus"
	"stockalert/internal/notifier"
	"stockalert/internal/storage"
	logx "stockalert/pkg/logx"
)

// Digest sends each user a summary of the day's successful deliveries.
type Digest struct {
	store storage.Store
	out   Deliverer
	bus   eventbus.Bus
	log   logx.Logger
	loc   *time.Location
	now   func() time.Time
}

// DayBounds returns [start of day, start of next day) for t in loc.
func DayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.Local
	}
	lt := t.In(loc)
	start := time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// Records returns userID's successful deliveries for the day containing at.
// userID 0 returns every user's.
func (g *Digest) Records(ctx context.Context, userID int64, at time.Time) ([]storage.DeliveryRecord, error) {
	from, to := DayBounds(at, g.loc)
	recs, err := g.store.ListDeliveries(ctx, from, to, userID)
	if err != nil {
		return nil, err
	}
	return lo.Filter(recs, func(r storage.DeliveryRecord, _ int) bool { return r.OK }), nil
}

// Compose returns userID's digest for today, or ok=false when there is
// nothing to report.
func (g *Digest) Compose(ctx context.Context, userID int64) (text string, ok bool, err error) {
	now := g.now().In(g.loc)
	recs, err := g.Records(ctx, userID, now)
	if err != nil || len(recs) == 0 {
		return "", false, err
	}
	return FormatDigest(now, recs), true, nil
}

// Run sends today's digest to every user with at least one record.
func (g *Digest) Run(ctx context.Context) (DigestReport, error) {
	now := g.now().In(g.loc)
	rep := DigestReport{Day: now.Format("2006-01-02")}

	recs, err := g.Records(ctx, 0, now)
	if err != nil {
		return rep, err
	}
	byUser := lo.GroupBy(recs, func(r storage.DeliveryRecord) int64 { return r.UserID })
	users := lo.Keys(byUser)
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	rep.Users = len(users)

	for _, u := range users {
		items := byUser[u]
		res := g.out.Deliver(ctx, u, FormatDigest(now, items), notifier.FormatHTML)
		if !res.OK {
			continue
		}
		rep.Sent++
		rep.Items += len(items)
	}
	g.log.Info("digest sent", logx.String("day", rep.Day), logx.Int("users", rep.Users), logx.Int("sent", rep.Sent))
	g.bus.Publish(eventbus.Event{Type: eventbus.TypeDigestSent, Time: now, Data: rep})
	return rep, nil
}

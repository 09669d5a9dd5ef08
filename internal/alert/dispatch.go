package alert

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"stockalert/internal/eventbus"
	"stockalert/internal/feed"
	"stockalert/internal/notifier"
	"stockalert/internal/storage"
	logx "stockalert/pkg/logx"
)

// Dispatcher runs the announcement pipeline over a fixed set of sources.
type Dispatcher struct {
	sources []feed.Source
	index   *Index
	cursors *cursors
	store   storage.Store
	out     Deliverer
	bus     eventbus.Bus
	log     logx.Logger
	now     func() time.Time

	coldCap atomic.Int64
	running atomic.Bool
}

func newDispatcher(sources []feed.Source, index *Index, store storage.Store, out Deliverer, bus eventbus.Bus, log logx.Logger, coldCap int) *Dispatcher {
	d := &Dispatcher{
		sources: sources,
		index:   index,
		cursors: newCursors(store),
		store:   store,
		out:     out,
		bus:     bus,
		log:     log,
		now:     time.Now,
	}
	d.coldCap.Store(int64(coldCap))
	return d
}

// SetColdStartCap changes the cap for sources that have no cursor yet.
func (d *Dispatcher) SetColdStartCap(n int) { d.coldCap.Store(int64(n)) }

// Sources returns the ids of the configured sources.
func (d *Dispatcher) Sources() []string {
	return lo.Map(d.sources, func(s feed.Source, _ int) string { return s.ID() })
}

// RunCycle polls every source once. Sources run concurrently; a second call
// while a cycle is in flight returns ErrCycleInFlight without doing anything.
// Per-source failures are reported, not returned.
func (d *Dispatcher) RunCycle(ctx context.Context) (CycleReport, error) {
	if !d.running.CompareAndSwap(false, true) {
		return CycleReport{}, ErrCycleInFlight
	}
	defer d.running.Store(false)

	rep := CycleReport{ID: uuid.NewString(), Sources: make([]SourceReport, len(d.sources))}
	log := d.log.With(logx.Cycle(rep.ID))

	var wg sync.WaitGroup
	for i, src := range d.sources {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := d.runSource(ctx, src, log.With(logx.Source(src.ID())))
			r.CycleID = rep.ID
			rep.Sources[i] = r
			d.bus.Publish(eventbus.Event{Type: eventbus.TypeFeedCycle, Time: r.At, Data: r})
		}()
	}
	wg.Wait()
	return rep, nil
}

func (d *Dispatcher) runSource(ctx context.Context, src feed.Source, log logx.Logger) (rep SourceReport) {
	start := d.now()
	rep = SourceReport{SourceID: src.ID(), At: start}
	defer func() { rep.Took = d.now().Sub(start) }()

	unlock := d.cursors.lock(src.ID())
	defer unlock()

	cursor, hasCursor, err := d.cursors.get(ctx, src.ID())
	if err != nil {
		log.Error("cursor read failed", logx.Err(err))
		rep.Error = err.Error()
		return rep
	}

	items, next, err := src.Poll(ctx, cursor)
	if err != nil {
		lvl := log.Warn
		if errors.Is(err, feed.ErrConfigurationMissing) {
			lvl = log.Info
		}
		lvl("source poll failed", logx.Err(err))
		rep.Error = err.Error()
		return rep
	}
	rep.Polled = len(items)

	items = lo.UniqBy(items, func(a feed.Announcement) string { return a.Key })
	if reorderNewestFirst(items) {
		rep.Reordered = true
		log.Warn("source returned items out of order; sorted by published time", logx.Int("items", len(items)))
	}
	if len(items) > 0 && (next == "" || rep.Reordered) {
		next = items[0].Key
	}

	fresh, found := freshItems(items, cursor, hasCursor)
	if hasCursor && !found && len(fresh) > 0 {
		log.Warn("cursor not in provider window; applying cold-start cap", logx.String("cursor", cursor))
	}
	if !hasCursor || !found {
		fresh = capFresh(fresh, int(d.coldCap.Load()))
	}
	if len(items) == 0 || (hasCursor && next == cursor) {
		return rep
	}

	// Cursor advances before fan-out: a crash mid-delivery drops items, it
	// never repeats them.
	if err := d.cursors.put(ctx, src.ID(), next); err != nil {
		log.Error("cursor write failed; skipping delivery", logx.Err(err))
		rep.Error = err.Error()
		return rep
	}
	rep.Fresh = len(fresh)

	// The cursor is already past these items, so delivery must not stop at
	// the task deadline. Each send is bounded by the notifier's own timeout.
	dctx := context.WithoutCancel(ctx)

	// Deliver oldest first.
	for i := len(fresh) - 1; i >= 0; i-- {
		ok, failed := d.fanOut(dctx, fresh[i], log)
		rep.Delivered += ok
		rep.Failed += failed
	}
	if rep.Fresh > 0 {
		log.Info("source cycle",
			logx.Int("fresh", rep.Fresh),
			logx.Int("delivered", rep.Delivered),
			logx.Int("failed", rep.Failed),
		)
	}
	return rep
}

type recipient struct {
	UserID int64
	Symbol string
}

// recipients resolves interested users for one item: symbol subscribers
// first, then users who opted into every announcement. A user appears once.
func (d *Dispatcher) recipients(a feed.Announcement) []recipient {
	var out []recipient
	if a.Symbol != "" {
		for _, u := range d.index.SubscribersOf(a.Symbol) {
			out = append(out, recipient{UserID: u, Symbol: a.Symbol})
		}
	} else {
		headline := strings.ToUpper(a.Headline)
		for _, sym := range d.index.Symbols() {
			if !strings.Contains(headline, sym) {
				continue
			}
			for _, u := range d.index.SubscribersOf(sym) {
				out = append(out, recipient{UserID: u, Symbol: sym})
			}
		}
	}
	sym := a.Symbol
	if sym == "" && len(out) > 0 {
		sym = out[0].Symbol
	}
	for _, u := range d.index.Broadcast() {
		out = append(out, recipient{UserID: u, Symbol: sym})
	}
	return lo.UniqBy(out, func(r recipient) int64 { return r.UserID })
}

func (d *Dispatcher) fanOut(ctx context.Context, a feed.Announcement, log logx.Logger) (ok, failed int) {
	for _, r := range d.recipients(a) {
		res := d.out.Deliver(ctx, r.UserID, FormatAnnouncement(r.Symbol, a), notifier.FormatHTML)
		if res.OK {
			ok++
		} else {
			failed++
		}
		rec := storage.DeliveryRecord{
			UserID:      r.UserID,
			Symbol:      r.Symbol,
			Headline:    a.Headline,
			Link:        a.Link,
			SourceID:    a.SourceID,
			ItemKey:     a.Key,
			DeliveredAt: d.now(),
			OK:          res.OK,
		}
		if err := d.store.AppendDelivery(ctx, rec); err != nil {
			log.Error("delivery record failed", logx.User(r.UserID), logx.String("key", a.Key), logx.Err(err))
		}
	}
	return ok, failed
}

// freshItems returns the prefix of items before cursor. found reports
// whether cursor was present in items.
func freshItems(items []feed.Announcement, cursor string, hasCursor bool) ([]feed.Announcement, bool) {
	if !hasCursor {
		return items, false
	}
	for i, a := range items {
		if a.Key == cursor {
			return items[:i], true
		}
	}
	return items, false
}

func capFresh(items []feed.Announcement, n int) []feed.Announcement {
	if n < 0 {
		n = 0
	}
	if len(items) > n {
		return items[:n]
	}
	return items
}

// reorderNewestFirst checks that timestamped items are non-increasing in
// time and, if not, stable-sorts them newest first. An item without a
// timestamp sorts with the nearest timestamped item above it (or below it
// when none is above), so it stays next to that neighbour.
func reorderNewestFirst(items []feed.Announcement) bool {
	var prev time.Time
	ordered := true
	for _, a := range items {
		if a.PublishedAt.IsZero() {
			continue
		}
		if !prev.IsZero() && a.PublishedAt.After(prev) {
			ordered = false
			break
		}
		prev = a.PublishedAt
	}
	if ordered {
		return false
	}

	keys := make([]time.Time, len(items))
	var last time.Time
	for i, a := range items {
		if !a.PublishedAt.IsZero() {
			last = a.PublishedAt
		}
		keys[i] = last
	}
	for i := len(items) - 1; i >= 0; i-- {
		if !keys[i].IsZero() {
			last = keys[i]
		}
		if keys[i].IsZero() {
			keys[i] = last
		}
	}

	idx := make([]int, len(items))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool { return keys[idx[i]].After(keys[idx[j]]) })
	sorted := make([]feed.Announcement, len(items))
	for i, k := range idx {
		sorted[i] = items[k]
	}
	copy(items, sorted)
	return true
}

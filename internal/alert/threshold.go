package alert

import (
	"context"
	"errors"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"stockalert/internal/eventbus"
	"stockalert/internal/feed"
	"stockalert/internal/notifier"
	"stockalert/internal/storage"
	logx "stockalert/pkg/logx"
)

// Evaluator checks standing threshold alerts against live quotes.
type Evaluator struct {
	store  storage.Store
	quotes feed.QuoteSource
	out    Deliverer
	bus    eventbus.Bus
	log    logx.Logger
	now    func() time.Time
}

// EvalReport summarises one evaluator run.
type EvalReport struct {
	Kind      feed.Kind `json:"kind"`
	Checked   int       `json:"checked"`
	Fired     int       `json:"fired"`
	Unquoted  int       `json:"unquoted"`
	Delivered int       `json:"delivered"`
}

// Run evaluates every active alert of kind once. A quote failure leaves the
// affected alerts active. An alert fires only after it has been claimed by
// deleting it, so concurrent runs cannot fire it twice.
func (e *Evaluator) Run(ctx context.Context, kind feed.Kind) (EvalReport, error) {
	rep := EvalReport{Kind: kind}
	if e.quotes == nil {
		return rep, feed.ErrConfigurationMissing
	}
	all, err := e.store.ListThresholdAlerts(ctx, 0)
	if err != nil {
		return rep, err
	}
	active := lo.Filter(all, func(a storage.ThresholdAlert, _ int) bool { return a.Kind == string(kind) })
	rep.Checked = len(active)
	if len(active) == 0 {
		return rep, nil
	}

	type quote struct {
		v   decimal.Decimal
		err error
	}
	quotes := map[string]quote{}
	for _, sym := range lo.Uniq(lo.Map(active, func(a storage.ThresholdAlert, _ int) string { return a.Symbol })) {
		v, err := e.quotes.Quote(ctx, sym, kind)
		quotes[sym] = quote{v: v, err: err}
		if err != nil {
			lvl := e.log.Warn
			if errors.Is(err, feed.ErrRateLimited) {
				lvl = e.log.Info
			}
			lvl("quote unavailable", logx.Symbol(sym), logx.String("kind", string(kind)), logx.Err(err))
		}
	}

	for _, a := range active {
		q := quotes[a.Symbol]
		if q.err != nil {
			rep.Unquoted++
			continue
		}
		if !conditionMet(q.v, a.Comparison, a.Threshold) {
			continue
		}
		claimed, err := e.store.DeleteThresholdAlert(ctx, a.ID, 0)
		if err != nil {
			e.log.Error("alert claim failed", logx.AlertID(a.ID), logx.Err(err))
			continue
		}
		if !claimed {
			continue
		}
		rep.Fired++
		res := e.out.Deliver(ctx, a.UserID, FormatThreshold(a, q.v), notifier.FormatText)
		if res.OK {
			rep.Delivered++
		}
		e.log.Info("threshold alert fired",
			logx.AlertID(a.ID),
			logx.User(a.UserID),
			logx.Symbol(a.Symbol),
			logx.Stringer("value", q.v),
			logx.Bool("delivered", res.OK),
		)
		at := e.now()
		e.bus.Publish(eventbus.Event{Type: eventbus.TypeAlertFired, Time: at, Data: FiredAlert{
			AlertID: a.ID, UserID: a.UserID, Symbol: a.Symbol, Kind: a.Kind, Value: q.v.String(), At: at, OK: res.OK,
		}})
	}
	return rep, nil
}

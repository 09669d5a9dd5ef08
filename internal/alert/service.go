package alert

import (
	"context"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"stockalert/internal/eventbus"
	"stockalert/internal/feed"
	"stockalert/internal/storage"
	logx "stockalert/pkg/logx"
)

type Deps struct {
	Store   storage.Store
	Sources []feed.Source
	Quotes  feed.QuoteSource // nil disables threshold checks
	Out     Deliverer
	Bus     eventbus.Bus
	Log     logx.Logger
	Now     func() time.Time
}

// Service is the engine plus the subscription commands used by the chat
// front end.
type Service struct {
	store storage.Store
	index *Index
	board *StatusBoard
	log   logx.Logger

	dispatch *Dispatcher
	eval     *Evaluator
	digest   *Digest
}

func New(d Deps, cfg Config) *Service {
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	if d.Bus == nil {
		d.Bus = eventbus.Nop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	log := d.Log.With(logx.Component("alert"))
	idx := NewIndex(d.Store)

	disp := newDispatcher(d.Sources, idx, d.Store, d.Out, d.Bus, log.With(logx.String("job", "dispatch")), cfg.ColdStartCap)
	disp.now = d.Now

	return &Service{
		store:    d.Store,
		index:    idx,
		board:    NewStatusBoard(),
		log:      log,
		dispatch: disp,
		eval: &Evaluator{
			store: d.Store, quotes: d.Quotes, out: d.Out, bus: d.Bus,
			log: log.With(logx.String("job", "threshold")), now: d.Now,
		},
		digest: &Digest{
			store: d.Store, out: d.Out, bus: d.Bus, loc: cfg.Location,
			log: log.With(logx.String("job", "digest")), now: d.Now,
		},
	}
}

// Load warms the subscription index from the store.
func (s *Service) Load(ctx context.Context) error {
	if err := s.index.Load(ctx); err != nil {
		return err
	}
	users, syms := s.index.Counts()
	s.log.Info("subscriptions loaded", logx.Int("users", users), logx.Int("symbols", syms))
	return nil
}

func (s *Service) Dispatcher() *Dispatcher { return s.dispatch }
func (s *Service) Evaluator() *Evaluator   { return s.eval }
func (s *Service) Digest() *Digest         { return s.digest }
func (s *Service) Board() *StatusBoard     { return s.board }
func (s *Service) Index() *Index           { return s.index }

// HasQuotes reports whether threshold alerts can be evaluated.
func (s *Service) HasQuotes() bool { return s.eval.quotes != nil }

// Subscribe adds each valid symbol for userID. Invalid symbols are returned
// separately; already-present subscriptions count as added=false.
func (s *Service) Subscribe(ctx context.Context, userID int64, symbols ...string) (added, existing, invalid []string, err error) {
	for _, raw := range symbols {
		sym, verr := NormalizeSymbol(raw)
		if verr != nil {
			invalid = append(invalid, raw)
			continue
		}
		ok, aerr := s.index.Add(ctx, userID, sym)
		if aerr != nil {
			return added, existing, invalid, aerr
		}
		if ok {
			added = append(added, sym)
		} else {
			existing = append(existing, sym)
		}
	}
	return lo.Uniq(added), lo.Uniq(existing), invalid, nil
}

// Unsubscribe removes each symbol. Absent pairs are reported in missing.
func (s *Service) Unsubscribe(ctx context.Context, userID int64, symbols ...string) (removed, missing []string, err error) {
	for _, raw := range symbols {
		sym, verr := NormalizeSymbol(raw)
		if verr != nil {
			missing = append(missing, raw)
			continue
		}
		ok, rerr := s.index.Remove(ctx, userID, sym)
		if rerr != nil {
			return removed, missing, rerr
		}
		if ok {
			removed = append(removed, sym)
		} else {
			missing = append(missing, sym)
		}
	}
	return removed, missing, nil
}

func (s *Service) ListSubscriptions(userID int64) []string {
	return s.index.ListFor(userID)
}

// SetBroadcast opts userID in or out of receiving every announcement,
// regardless of symbol subscriptions.
func (s *Service) SetBroadcast(ctx context.Context, userID int64, on bool) (changed bool, err error) {
	return s.index.SetBroadcast(ctx, userID, on)
}

func (s *Service) Broadcasting(userID int64) bool { return s.index.IsBroadcast(userID) }

// SetThresholdAlert validates and stores a one-shot alert.
func (s *Service) SetThresholdAlert(ctx context.Context, userID int64, symbol, comparison string, threshold decimal.Decimal, kind string) (storage.ThresholdAlert, error) {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return storage.ThresholdAlert{}, err
	}
	cmp, err := parseComparison(comparison)
	if err != nil {
		return storage.ThresholdAlert{}, err
	}
	k, err := parseKind(kind)
	if err != nil {
		return storage.ThresholdAlert{}, err
	}
	if threshold.IsNegative() {
		return storage.ThresholdAlert{}, ErrInvalidThreshold
	}
	a := storage.ThresholdAlert{
		UserID:     userID,
		Symbol:     sym,
		Comparison: cmp,
		Threshold:  threshold,
		Kind:       string(k),
		CreatedAt:  time.Now(),
	}
	id, err := s.store.InsertThresholdAlert(ctx, a)
	if err != nil {
		return storage.ThresholdAlert{}, err
	}
	a.ID = id
	return a, nil
}

func (s *Service) ListThresholdAlerts(ctx context.Context, userID int64) ([]storage.ThresholdAlert, error) {
	return s.store.ListThresholdAlerts(ctx, userID)
}

// RemoveThresholdAlert deletes alert id if userID owns it.
func (s *Service) RemoveThresholdAlert(ctx context.Context, id, userID int64) (bool, error) {
	return s.store.DeleteThresholdAlert(ctx, id, userID)
}

// TodayDeliveries lists userID's successful deliveries for today.
func (s *Service) TodayDeliveries(ctx context.Context, userID int64) ([]storage.DeliveryRecord, error) {
	return s.digest.Records(ctx, userID, s.digest.now())
}

// DigestFor composes today's digest for userID without sending it.
func (s *Service) DigestFor(ctx context.Context, userID int64) (string, bool, error) {
	return s.digest.Compose(ctx, userID)
}

// Audit records a command. Failures are logged only.
func (s *Service) Audit(ctx context.Context, e storage.AuditEntry) {
	if err := s.store.AppendAudit(ctx, e); err != nil {
		s.log.Warn("audit write failed", logx.String("action", e.Action), logx.Err(err))
	}
}

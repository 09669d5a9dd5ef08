package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "stockalert/pkg/logx"
)

// Store is the persistence API used by the alert service.
//
// Implementations must be safe for concurrent use. DeleteThresholdAlert is
// the claim step of a one-shot alert: only one caller observes deleted=true
// for a given id.
type Store interface {
	AddSubscription(ctx context.Context, userID int64, symbol string) (added bool, err error)
	RemoveSubscription(ctx context.Context, userID int64, symbol string) (removed bool, err error)
	ListSubscriptions(ctx context.Context) ([]Subscription, error)

	// SetBroadcast records whether userID receives every announcement.
	// changed reports whether the stored flag differed.
	SetBroadcast(ctx context.Context, userID int64, on bool) (changed bool, err error)
	// ListBroadcast returns opted-in users sorted by id.
	ListBroadcast(ctx context.Context) ([]int64, error)

	InsertThresholdAlert(ctx context.Context, a ThresholdAlert) (int64, error)
	// ListThresholdAlerts returns alerts ordered by id. userID 0 lists all users.
	ListThresholdAlerts(ctx context.Context, userID int64) ([]ThresholdAlert, error)
	// DeleteThresholdAlert removes alert id. userID 0 skips the owner check.
	DeleteThresholdAlert(ctx context.Context, id, userID int64) (deleted bool, err error)

	AppendDelivery(ctx context.Context, r DeliveryRecord) error
	// ListDeliveries returns records with from <= delivered_at < to in
	// delivery order. userID 0 lists all users.
	ListDeliveries(ctx context.Context, from, to time.Time, userID int64) ([]DeliveryRecord, error)

	GetCursor(ctx context.Context, sourceID string) (key string, ok bool, err error)
	PutCursor(ctx context.Context, sourceID, key string) error

	AppendAudit(ctx context.Context, e AuditEntry) error
	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "memory":
		return NewMemory(), nil
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

// validRange reports whether [from, to) is a usable query window.
func validRange(from, to time.Time) bool {
	return !from.IsZero() && !to.IsZero() && from.Before(to)
}

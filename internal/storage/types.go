package storage

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file
//   - "memory": process-local maps, lost on exit
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means 5s
}

// Subscription is a (user, symbol) pair. The pair is unique.
type Subscription struct {
	UserID    int64
	Symbol    string
	CreatedAt time.Time
}

// ThresholdAlert is a standing one-shot condition. It is deleted when it fires.
type ThresholdAlert struct {
	ID         int64
	UserID     int64
	Symbol     string
	Comparison string // ">" or "<"
	Threshold  decimal.Decimal
	Kind       string // "price" or "indicator"
	CreatedAt  time.Time
}

// DeliveryRecord is one entry of the append-only delivery log.
type DeliveryRecord struct {
	ID          int64
	UserID      int64
	Symbol      string
	Headline    string
	Link        string
	SourceID    string
	ItemKey     string
	DeliveredAt time.Time
	OK          bool
}

// AuditEntry records a user command that mutated state.
type AuditEntry struct {
	At      time.Time
	ActorID int64
	ChatID  int64
	Action  string
	Target  string
	Error   string
	TookMS  int64
}

package alert

import (
	"context"
	"errors"
	"time"

	"stockalert/internal/notifier"
)

var (
	ErrInvalidSymbol     = errors.New("invalid symbol")
	ErrInvalidComparison = errors.New("comparison must be > or <")
	ErrInvalidThreshold  = errors.New("invalid threshold")
	ErrInvalidKind       = errors.New("invalid alert kind")
	ErrCycleInFlight     = errors.New("dispatch cycle already running")
)

// Deliverer hands one formatted message to the chat transport.
// A failure is reported in the result, never as a panic.
type Deliverer interface {
	Deliver(ctx context.Context, userID int64, text string, format notifier.Format) notifier.Result
}

type Config struct {
	// ColdStartCap bounds how many items of a source with no stored cursor
	// are delivered. Zero primes the cursor without delivering.
	ColdStartCap int
	// Location defines the calendar day used by the digest.
	Location *time.Location
}

// SourceReport summarises one source's part of a dispatch cycle.
type SourceReport struct {
	CycleID   string        `json:"cycle_id"`
	SourceID  string        `json:"source_id"`
	At        time.Time     `json:"at"`
	Took      time.Duration `json:"took"`
	Polled    int           `json:"polled"`
	Fresh     int           `json:"fresh"`
	Delivered int           `json:"delivered"`
	Failed    int           `json:"failed"`
	Reordered bool          `json:"reordered,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// CycleReport is the outcome of Dispatcher.RunCycle.
type CycleReport struct {
	ID      string         `json:"id"`
	Sources []SourceReport `json:"sources"`
}

// FiredAlert is published when a threshold alert fires.
type FiredAlert struct {
	AlertID int64     `json:"alert_id"`
	UserID  int64     `json:"user_id"`
	Symbol  string    `json:"symbol"`
	Kind    string    `json:"kind"`
	Value   string    `json:"value"`
	At      time.Time `json:"at"`
	OK      bool      `json:"ok"`
}

// DigestReport is the outcome of one digest run.
type DigestReport struct {
	Day   string `json:"day"`
	Users int    `json:"users"`
	Sent  int    `json:"sent"`
	Items int    `json:"items"`
}

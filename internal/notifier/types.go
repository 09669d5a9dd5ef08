package notifier

import (
	"context"
	"errors"
	"time"

	kit "stockalert/internal/transport"
)

var (
	// ErrDeliveryFailed wraps every failed send.
	ErrDeliveryFailed = errors.New("delivery failed")
)

// Format is the formatting hint passed with a message.
type Format int

const (
	FormatText Format = iota
	FormatHTML
)

type Config struct {
	RatePerSec  int
	Burst       int
	SendTimeout time.Duration
}

// Result is the outcome of one delivery.
type Result struct {
	OK   bool
	Err  error
	Ref  kit.MessageRef
	Took time.Duration
}

// Sender is the slice of the transport adapter the notifier needs.
type Sender interface {
	SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error)
}

// DeliveryEvent is published on the bus when a send fails.
type DeliveryEvent struct {
	UserID int64     `json:"user_id"`
	At     time.Time `json:"at"`
	Error  string    `json:"error"`
}

// Stats are cumulative counters since start.
type Stats struct {
	Sent        uint64 `json:"sent"`
	Failed      uint64 `json:"failed"`
	Unreachable uint64 `json:"unreachable"`
}

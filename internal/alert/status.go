package alert

import (
	"context"
	"sort"
	"sync"
	"time"

	"stockalert/internal/eventbus"
)

// StatusBoard keeps the latest engine activity seen on the bus.
type StatusBoard struct {
	mu        sync.RWMutex
	sources   map[string]SourceReport
	lastFired *FiredAlert
	fired     int
	lastDig   *DigestReport
	failed    int
}

// Status is a point-in-time copy of the board.
type Status struct {
	Sources        []SourceReport `json:"sources"`
	AlertsFired    int            `json:"alerts_fired"`
	LastFired      *FiredAlert    `json:"last_fired,omitempty"`
	LastDigest     *DigestReport  `json:"last_digest,omitempty"`
	DeliveryFailed int            `json:"delivery_failed"`
}

func NewStatusBoard() *StatusBoard {
	return &StatusBoard{sources: map[string]SourceReport{}}
}

// Run consumes bus events until ctx is done.
func (b *StatusBoard) Run(ctx context.Context, bus eventbus.Bus) error {
	ch, unsub := bus.Subscribe(64)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			b.Observe(ev)
		}
	}
}

// Observe applies one event.
func (b *StatusBoard) Observe(ev eventbus.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch ev.Type {
	case eventbus.TypeFeedCycle:
		if r, ok := ev.Data.(SourceReport); ok {
			b.sources[r.SourceID] = r
		}
	case eventbus.TypeAlertFired:
		if f, ok := ev.Data.(FiredAlert); ok {
			b.fired++
			b.lastFired = &f
		}
	case eventbus.TypeDigestSent:
		if d, ok := ev.Data.(DigestReport); ok {
			b.lastDig = &d
		}
	case eventbus.TypeDeliveryFailed:
		b.failed++
	}
}

func (b *StatusBoard) Snapshot() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	st := Status{AlertsFired: b.fired, DeliveryFailed: b.failed}
	for _, r := range b.sources {
		st.Sources = append(st.Sources, r)
	}
	sort.Slice(st.Sources, func(i, j int) bool { return st.Sources[i].SourceID < st.Sources[j].SourceID })
	if b.lastFired != nil {
		f := *b.lastFired
		st.LastFired = &f
	}
	if b.lastDig != nil {
		d := *b.lastDig
		st.LastDigest = &d
	}
	return st
}

// Age reports how long ago sourceID last completed a cycle.
func (s Status) Age(sourceID string, now time.Time) (time.Duration, bool) {
	for _, r := range s.Sources {
		if r.SourceID == sourceID {
			return now.Sub(r.At), true
		}
	}
	return 0, false
}

package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

type subKey struct {
	userID int64
	symbol string
}

// Memory is an in-process Store. Each logical table has its own lock.
type Memory struct {
	subsMu sync.RWMutex
	subs   map[subKey]Subscription
	bcast  map[int64]struct{}

	alertsMu sync.Mutex
	alerts   map[int64]ThresholdAlert
	nextID   int64

	delivMu    sync.RWMutex
	deliveries []DeliveryRecord

	cursorMu sync.RWMutex
	cursors  map[string]string

	auditMu sync.Mutex
	audit   []AuditEntry
}

func NewMemory() *Memory {
	return &Memory{
		subs:    make(map[subKey]Subscription),
		bcast:   make(map[int64]struct{}),
		alerts:  make(map[int64]ThresholdAlert),
		cursors: make(map[string]string),
	}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) AddSubscription(_ context.Context, userID int64, symbol string) (bool, error) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	k := subKey{userID, symbol}
	if _, ok := m.subs[k]; ok {
		return false, nil
	}
	m.subs[k] = Subscription{UserID: userID, Symbol: symbol, CreatedAt: time.Now()}
	return true, nil
}

func (m *Memory) RemoveSubscription(_ context.Context, userID int64, symbol string) (bool, error) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	k := subKey{userID, symbol}
	if _, ok := m.subs[k]; !ok {
		return false, nil
	}
	delete(m.subs, k)
	return true, nil
}

func (m *Memory) SetBroadcast(_ context.Context, userID int64, on bool) (bool, error) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	_, was := m.bcast[userID]
	if on {
		m.bcast[userID] = struct{}{}
	} else {
		delete(m.bcast, userID)
	}
	return was != on, nil
}

func (m *Memory) ListBroadcast(_ context.Context) ([]int64, error) {
	m.subsMu.RLock()
	out := make([]int64, 0, len(m.bcast))
	for u := range m.bcast {
		out = append(out, u)
	}
	m.subsMu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (m *Memory) ListSubscriptions(_ context.Context) ([]Subscription, error) {
	m.subsMu.RLock()
	out := make([]Subscription, 0, len(m.subs))
	for _, s := range m.subs {
		out = append(out, s)
	}
	m.subsMu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out, nil
}

func (m *Memory) InsertThresholdAlert(_ context.Context, a ThresholdAlert) (int64, error) {
	m.alertsMu.Lock()
	defer m.alertsMu.Unlock()
	m.nextID++
	a.ID = m.nextID
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	m.alerts[a.ID] = a
	return a.ID, nil
}

func (m *Memory) ListThresholdAlerts(_ context.Context, userID int64) ([]ThresholdAlert, error) {
	m.alertsMu.Lock()
	out := make([]ThresholdAlert, 0, len(m.alerts))
	for _, a := range m.alerts {
		if userID == 0 || a.UserID == userID {
			out = append(out, a)
		}
	}
	m.alertsMu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) DeleteThresholdAlert(_ context.Context, id, userID int64) (bool, error) {
	m.alertsMu.Lock()
	defer m.alertsMu.Unlock()
	a, ok := m.alerts[id]
	if !ok || (userID != 0 && a.UserID != userID) {
		return false, nil
	}
	delete(m.alerts, id)
	return true, nil
}

func (m *Memory) AppendDelivery(_ context.Context, r DeliveryRecord) error {
	m.delivMu.Lock()
	defer m.delivMu.Unlock()
	r.ID = int64(len(m.deliveries) + 1)
	if r.DeliveredAt.IsZero() {
		r.DeliveredAt = time.Now()
	}
	m.deliveries = append(m.deliveries, r)
	return nil
}

func (m *Memory) ListDeliveries(_ context.Context, from, to time.Time, userID int64) ([]DeliveryRecord, error) {
	if !validRange(from, to) {
		return nil, fmt.Errorf("invalid range %s..%s", from, to)
	}
	m.delivMu.RLock()
	var out []DeliveryRecord
	for _, r := range m.deliveries {
		if r.DeliveredAt.Before(from) || !r.DeliveredAt.Before(to) {
			continue
		}
		if userID != 0 && r.UserID != userID {
			continue
		}
		out = append(out, r)
	}
	m.delivMu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].DeliveredAt.Before(out[j].DeliveredAt) })
	return out, nil
}

func (m *Memory) GetCursor(_ context.Context, sourceID string) (string, bool, error) {
	m.cursorMu.RLock()
	defer m.cursorMu.RUnlock()
	k, ok := m.cursors[sourceID]
	return k, ok, nil
}

func (m *Memory) PutCursor(_ context.Context, sourceID, key string) error {
	m.cursorMu.Lock()
	m.cursors[sourceID] = key
	m.cursorMu.Unlock()
	return nil
}

func (m *Memory) AppendAudit(_ context.Context, e AuditEntry) error {
	m.auditMu.Lock()
	m.audit = append(m.audit, e)
	m.auditMu.Unlock()
	return nil
}

// Audit returns a copy of the audit log.
func (m *Memory) Audit() []AuditEntry {
	m.auditMu.Lock()
	defer m.auditMu.Unlock()
	return append([]AuditEntry(nil), m.audit...)
}

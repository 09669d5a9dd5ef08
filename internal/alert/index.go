package alert

import (
	"context"
	"sort"
	"sync"

	"stockalert/internal/storage"
)

// Index maps symbols to subscribed users and tracks users who opted into
// every announcement. Reads are served from memory; mutations write through
// to the store first.
type Index struct {
	store storage.Store

	mu        sync.RWMutex
	bySymbol  map[string]map[int64]struct{}
	byUser    map[int64]map[string]struct{}
	broadcast map[int64]struct{}
}

func NewIndex(store storage.Store) *Index {
	return &Index{
		store:     store,
		bySymbol:  map[string]map[int64]struct{}{},
		byUser:    map[int64]map[string]struct{}{},
		broadcast: map[int64]struct{}{},
	}
}

// Load replaces the in-memory view with the store's rows.
func (x *Index) Load(ctx context.Context) error {
	subs, err := x.store.ListSubscriptions(ctx)
	if err != nil {
		return err
	}
	optins, err := x.store.ListBroadcast(ctx)
	if err != nil {
		return err
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	x.bySymbol = map[string]map[int64]struct{}{}
	x.byUser = map[int64]map[string]struct{}{}
	x.broadcast = make(map[int64]struct{}, len(optins))
	for _, s := range subs {
		x.putLocked(s.UserID, s.Symbol)
	}
	for _, u := range optins {
		x.broadcast[u] = struct{}{}
	}
	return nil
}

// SetBroadcast turns the all-announcements opt-in on or off for userID.
func (x *Index) SetBroadcast(ctx context.Context, userID int64, on bool) (bool, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	changed, err := x.store.SetBroadcast(ctx, userID, on)
	if err != nil {
		return false, err
	}
	if on {
		x.broadcast[userID] = struct{}{}
	} else {
		delete(x.broadcast, userID)
	}
	return changed, nil
}

// IsBroadcast reports whether userID receives every announcement.
func (x *Index) IsBroadcast(userID int64) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, ok := x.broadcast[userID]
	return ok
}

// Broadcast returns opted-in users sorted by id.
func (x *Index) Broadcast() []int64 {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]int64, 0, len(x.broadcast))
	for u := range x.broadcast {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Add is idempotent. added reports whether the pair was new.
func (x *Index) Add(ctx context.Context, userID int64, symbol string) (bool, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	added, err := x.store.AddSubscription(ctx, userID, symbol)
	if err != nil {
		return false, err
	}
	x.putLocked(userID, symbol)
	return added, nil
}

// Remove is idempotent. removed reports whether the pair existed.
func (x *Index) Remove(ctx context.Context, userID int64, symbol string) (bool, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	removed, err := x.store.RemoveSubscription(ctx, userID, symbol)
	if err != nil {
		return false, err
	}
	if users := x.bySymbol[symbol]; users != nil {
		delete(users, userID)
		if len(users) == 0 {
			delete(x.bySymbol, symbol)
		}
	}
	if syms := x.byUser[userID]; syms != nil {
		delete(syms, symbol)
		if len(syms) == 0 {
			delete(x.byUser, userID)
		}
	}
	return removed, nil
}

func (x *Index) putLocked(userID int64, symbol string) {
	users := x.bySymbol[symbol]
	if users == nil {
		users = map[int64]struct{}{}
		x.bySymbol[symbol] = users
	}
	users[userID] = struct{}{}
	syms := x.byUser[userID]
	if syms == nil {
		syms = map[string]struct{}{}
		x.byUser[userID] = syms
	}
	syms[symbol] = struct{}{}
}

// ListFor returns the user's symbols sorted.
func (x *Index) ListFor(userID int64) []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]string, 0, len(x.byUser[userID]))
	for s := range x.byUser[userID] {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// SubscribersOf returns the users subscribed to symbol, sorted by id.
func (x *Index) SubscribersOf(symbol string) []int64 {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]int64, 0, len(x.bySymbol[symbol]))
	for u := range x.bySymbol[symbol] {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Symbols returns every symbol with at least one subscriber.
func (x *Index) Symbols() []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]string, 0, len(x.bySymbol))
	for s := range x.bySymbol {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Counts returns the number of distinct users and symbols.
func (x *Index) Counts() (users, symbols int) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.byUser), len(x.bySymbol)
}

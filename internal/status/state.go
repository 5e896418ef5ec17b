// Package status tracks the connection state of every account.
package status

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/ry-diffusion/Tina/internal/bus"
	"github.com/ry-diffusion/Tina/internal/worker"
)

// KindChanged is published on the bus for every state change.
const KindChanged = "status.changed"

// State is the connection state of one account.
type State string

const (
	Offline   State = "OFFLINE"
	Pairing   State = "PAIRING"
	Connected State = "CONNECTED"
	Syncing   State = "SYNCING"
	LoggedOut State = "LOGGED_OUT"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Offline:   {Pairing, Connected, LoggedOut},
	Pairing:   {Connected, Offline, LoggedOut},
	Connected: {Syncing, Offline, LoggedOut},
	Syncing:   {Connected, Offline, LoggedOut},
	LoggedOut: {Pairing, Connected, Offline},
}

// Account is the tracked state of one account.
type Account struct {
	AccountID   string    `json:"account_id"`
	State       State     `json:"state"`
	PhoneNumber *string   `json:"phone_number,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	Since       time.Time `json:"since"`
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	AccountID string `json:"account_id"`
	From      State  `json:"from"`
	To        State  `json:"to"`
}

// Registry holds one state machine per account, created on first use in
// the Offline state.
type Registry struct {
	mu       sync.RWMutex
	accounts map[string]*Account
	bus      *bus.Bus
}

// NewRegistry creates an empty registry. b may be nil.
func NewRegistry(b *bus.Bus) *Registry {
	return &Registry{
		accounts: make(map[string]*Account),
		bus:      b,
	}
}

// Get returns the state of an account; unknown accounts are Offline.
func (r *Registry) Get(accountID string) Account {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if a, ok := r.accounts[accountID]; ok {
		return *a
	}
	return Account{AccountID: accountID, State: Offline}
}

// Snapshot returns every tracked account ordered by id.
func (r *Registry) Snapshot() []Account {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Account, 0, len(r.accounts))
	for _, a := range r.accounts {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out
}

// Forget drops an account, for example after it was deleted.
func (r *Registry) Forget(accountID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.accounts, accountID)
}

// Transition moves an account to a new state. Moving to the current state
// is a no-op; anything outside validTransitions is an error.
func (r *Registry) Transition(ctx context.Context, accountID string, to State) error {
	r.mu.Lock()
	a := r.entry(accountID)
	from := a.State
	if from == to {
		r.mu.Unlock()
		return nil
	}
	if !slices.Contains(validTransitions[from], to) {
		r.mu.Unlock()
		return fmt.Errorf("account %s: invalid transition from %s to %s", accountID, from, to)
	}
	a.State = to
	a.Since = time.Now()
	if to == Connected {
		a.LastError = ""
	}
	r.mu.Unlock()

	return r.publish(ctx, StatusChange{AccountID: accountID, From: from, To: to})
}

// Apply folds a worker event into the registry.
func (r *Registry) Apply(ctx context.Context, e worker.Event) error {
	switch e.Kind {
	case worker.KindEngineReady:
		// A fresh engine has no live sessions.
		return r.resetAll(ctx)
	case worker.KindQrCode:
		return r.Transition(ctx, e.AccountID, Pairing)
	case worker.KindConnected:
		if e.PhoneNumber != nil {
			r.mu.Lock()
			r.entry(e.AccountID).PhoneNumber = e.PhoneNumber
			r.mu.Unlock()
		}
		return r.Transition(ctx, e.AccountID, Connected)
	case worker.KindSyncStarted, worker.KindSyncProgress:
		if e.SyncType == worker.SyncHistory {
			return nil
		}
		return r.Transition(ctx, e.AccountID, Syncing)
	case worker.KindSyncCompleted:
		if r.Get(e.AccountID).State != Syncing {
			return nil
		}
		return r.Transition(ctx, e.AccountID, Connected)
	case worker.KindDisconnected:
		return r.Transition(ctx, e.AccountID, Offline)
	case worker.KindLoggedOut:
		return r.Transition(ctx, e.AccountID, LoggedOut)
	case worker.KindError:
		if e.AccountID == "" {
			return nil
		}
		r.mu.Lock()
		r.entry(e.AccountID).LastError = e.Error
		r.mu.Unlock()
	}
	return nil
}

func (r *Registry) resetAll(ctx context.Context) error {
	r.mu.RLock()
	ids := make([]string, 0, len(r.accounts))
	for id, a := range r.accounts {
		if a.State != Offline {
			ids = append(ids, id)
		}
	}
	r.mu.RUnlock()
	sort.Strings(ids)

	for _, id := range ids {
		if err := r.Transition(ctx, id, Offline); err != nil {
			return err
		}
	}
	return nil
}

// entry must be called with mu held.
func (r *Registry) entry(accountID string) *Account {
	a, ok := r.accounts[accountID]
	if !ok {
		a = &Account{AccountID: accountID, State: Offline, Since: time.Now()}
		r.accounts[accountID] = a
	}
	return a
}

func (r *Registry) publish(ctx context.Context, change StatusChange) error {
	if r.bus == nil {
		return nil
	}
	return r.bus.Publish(ctx, bus.Event{
		Kind:      KindChanged,
		Timestamp: time.Now(),
		Payload:   change,
	})
}

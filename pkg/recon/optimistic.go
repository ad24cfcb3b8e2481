// Package recon implements the client-side reconciliation protocol: the
// lifecycle of optimistic mutations awaiting server confirmation and the
// connection state machine that decides when a full snapshot resync is
// required. It carries no transport; clients feed it acks, rejections and
// broadcast events.
package recon

import (
	"sync"
	"time"

	"hearthsync/pkg/models"
)

// MutationState is the lifecycle of one optimistic mutation.
type MutationState int

const (
	// StatePending means locally applied, not yet confirmed.
	StatePending MutationState = iota
	// StateConfirmed means the server accepted it and assigned a version.
	StateConfirmed
	// StateRolledBack means the server rejected it and the local effect
	// must be undone.
	StateRolledBack
)

func (s MutationState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateConfirmed:
		return "confirmed"
	case StateRolledBack:
		return "rolled_back"
	default:
		return "unknown"
	}
}

// OptimisticMutation tracks one locally applied mutation.
type OptimisticMutation struct {
	// ClientID is the client-generated idempotency key.
	ClientID string
	Post     string
	Kind     string
	State    MutationState
	// Version is set on confirmation.
	Version uint64
	// Reason is set on rollback.
	Reason    string
	CreatedAt time.Time
}

// Tracker manages pending optimistic mutations. Rollback is exact: only the
// rejected mutation changes state, everything else stays pending.
type Tracker struct {
	mu      sync.Mutex
	pending map[string]*OptimisticMutation
	// resolved keeps terminal mutations until the client collects them.
	resolved []*OptimisticMutation
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{pending: map[string]*OptimisticMutation{}}
}

// Add registers a new pending mutation under its client ID.
func (t *Tracker) Add(clientID, post, kind string) *OptimisticMutation {
	t.mu.Lock()
	defer t.mu.Unlock()
	m := &OptimisticMutation{
		ClientID:  clientID,
		Post:      post,
		Kind:      kind,
		State:     StatePending,
		CreatedAt: time.Now(),
	}
	t.pending[clientID] = m
	return m
}

// Confirm moves a pending mutation to confirmed with its server version.
// Unknown IDs are ignored (the confirmation may race a prior resync).
func (t *Tracker) Confirm(clientID string, version uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.pending[clientID]
	if !ok {
		return
	}
	delete(t.pending, clientID)
	m.State = StateConfirmed
	m.Version = version
	t.resolved = append(t.resolved, m)
}

// Reject rolls back exactly the named mutation.
func (t *Tracker) Reject(clientID, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.pending[clientID]
	if !ok {
		return
	}
	delete(t.pending, clientID)
	m.State = StateRolledBack
	m.Reason = reason
	t.resolved = append(t.resolved, m)
}

// Pending returns the in-flight mutations, oldest first.
func (t *Tracker) Pending() []*OptimisticMutation {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*OptimisticMutation, 0, len(t.pending))
	for _, m := range t.pending {
		out = append(out, m)
	}
	return out
}

// CollectResolved drains and returns mutations that reached a terminal
// state since the last call.
func (t *Tracker) CollectResolved() []*OptimisticMutation {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.resolved
	t.resolved = nil
	return out
}

// Observe reconciles an incoming broadcast event against pending state:
// an event for a comment whose client ID we own confirms that mutation.
func (t *Tracker) Observe(ev *models.Event, clientID string) {
	if clientID == "" {
		return
	}
	if ev.Type == models.MutCommentAdded {
		t.Confirm(clientID, ev.Version)
	}
}

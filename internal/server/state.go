package server

import (
	"sync"
	"time"
)

// DefaultStateTTL is how long an authorization state stays valid after /run issues it.
const DefaultStateTTL = 10 * time.Minute

type pendingState struct {
	runID   string
	expires time.Time
}

// StateStore remembers the authorization states issued by /run until their callback consumes them.
//
// Each state can be consumed once. Entries older than the TTL are treated as unknown.
type StateStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	pending map[string]pendingState
}

// NewStateStore creates a store whose entries expire after ttl. A non-positive ttl uses [DefaultStateTTL].
func NewStateStore(ttl time.Duration) *StateStore {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &StateStore{ttl: ttl, now: time.Now, pending: make(map[string]pendingState)}
}

// Put records state as issued for runID.
func (s *StateStore) Put(state, runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[state] = pendingState{runID: runID, expires: s.now().Add(s.ttl)}
}

// Consume removes state and returns the run it was issued for.
//
// ok is false when the state was never issued, was already consumed, or has expired. An expired state still
// reports its runID with expired set, so the caller can close the run out.
func (s *StateStore) Consume(state string) (runID string, ok, expired bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, found := s.pending[state]
	if !found {
		return "", false, false
	}
	delete(s.pending, state)

	if s.now().After(entry.expires) {
		return entry.runID, false, true
	}
	return entry.runID, true, false
}

// Prune drops expired entries and returns the runs they belonged to.
func (s *StateStore) Prune() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var expired []string
	for state, entry := range s.pending {
		if now.After(entry.expires) {
			expired = append(expired, entry.runID)
			delete(s.pending, state)
		}
	}
	return expired
}

// Len returns the number of pending states, expired ones included.
func (s *StateStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

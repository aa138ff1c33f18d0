package session

import (
	"sync"

	"github.com/hupe1980/modelfan/core"
)

// Store is the persistence boundary for conversation history carried between
// fan-out requests under a session id. Implementations must be safe for
// concurrent use and must never hand out slices that alias internal state.
type Store interface {
	// History returns the recorded turns for the session, oldest first.
	// Unknown sessions yield an empty history, not an error.
	History(sessionID string) ([]core.Content, error)

	// AppendTurns records turns at the end of the session's history,
	// creating the session lazily.
	AppendTurns(sessionID string, turns ...core.Content) error

	// Delete forgets the session entirely.
	Delete(sessionID string) error
}

// InMemoryStore is a volatile Store implementation keeping histories in a
// process local map. It is safe for concurrent access and best suited for
// tests or ephemeral demo setups. Returned histories are copies so callers
// cannot mutate internal state.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]core.Content
}

// NewInMemoryStore constructs an empty in-memory session store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string][]core.Content)}
}

// History implements Store.
func (s *InMemoryStore) History(sessionID string) ([]core.Content, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.Content(nil), s.sessions[sessionID]...), nil
}

// AppendTurns implements Store.
func (s *InMemoryStore) AppendTurns(sessionID string, turns ...core.Content) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = append(s.sessions[sessionID], turns...)
	return nil
}

// Delete implements Store.
func (s *InMemoryStore) Delete(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

package session

import (
	"sync"

	"github.com/google/uuid"
)

// Store maps session ids to live sessions. The lock covers creation, lookup
// and deletion only; session fields carry their own synchronization.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// NewID returns a fresh opaque session id.
func NewID() string {
	return uuid.NewString()
}

// GetOrCreate returns the session for id, creating it on first use.
func (st *Store) GetOrCreate(id string) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	if s, ok := st.sessions[id]; ok {
		return s
	}
	s := New(id)
	st.sessions[id] = s
	return s
}

// Get returns the session for id, if one exists.
func (st *Store) Get(id string) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[id]
	return s, ok
}

// Delete removes the session for id. Safe to call for unknown ids.
func (st *Store) Delete(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, id)
}

// Len reports the number of live sessions.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// CancelActiveResponse latches the cancel event of the session for id.
// The engine stops forwarding prose and playback stops between chunks; the
// event stays latched until the next utterance begins. Unknown ids are
// ignored.
func (st *Store) CancelActiveResponse(id string) {
	if s, ok := st.Get(id); ok {
		s.Cancel.Set()
	}
}

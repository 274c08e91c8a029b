package metering

import (
	"sync"
	"time"

	"github.com/calderaops/meterbill/internal/models"
	"github.com/google/uuid"
)

// SessionStore is the single mutable shared resource of the metering core: an
// in-memory table of active and expired sessions for one scope. The tick loop,
// the reconciliation loop and the gateway all go through it, so every access
// takes the store lock.
type SessionStore struct {
	scope string

	mu         sync.RWMutex
	sessions   map[uuid.UUID]*models.TimerSession
	byResource map[uuid.UUID]uuid.UUID
}

func NewSessionStore(scope string) *SessionStore {
	return &SessionStore{
		scope:      scope,
		sessions:   make(map[uuid.UUID]*models.TimerSession),
		byResource: make(map[uuid.UUID]uuid.UUID),
	}
}

// Scope returns the scope identifier this store tracks.
func (st *SessionStore) Scope() string {
	return st.scope
}

// Insert adds a session, enforcing the single-session-per-resource invariant.
func (st *SessionStore) Insert(s *models.TimerSession) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if existingID, ok := st.byResource[s.ResourceID]; ok {
		if existing, ok := st.sessions[existingID]; ok && existing.Active() {
			return ErrResourceBusy
		}
	}
	st.sessions[s.ID] = s
	st.byResource[s.ResourceID] = s.ID
	return nil
}

// Get returns a copy of a session.
func (st *SessionStore) Get(id uuid.UUID) (models.TimerSession, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	if !ok {
		return models.TimerSession{}, false
	}
	return *s, true
}

// All returns copies of every tracked session.
func (st *SessionStore) All() []models.TimerSession {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]models.TimerSession, 0, len(st.sessions))
	for _, s := range st.sessions {
		out = append(out, *s)
	}
	return out
}

// SessionForResource returns the id of the session occupying a resource, if any.
func (st *SessionStore) SessionForResource(resourceID uuid.UUID) (uuid.UUID, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	id, ok := st.byResource[resourceID]
	if !ok {
		return uuid.Nil, false
	}
	if s, ok := st.sessions[id]; !ok || !s.Active() {
		return uuid.Nil, false
	}
	return id, true
}

// Update mutates a session under the store lock. Returns false if the id is
// unknown.
func (st *SessionStore) Update(id uuid.UUID, fn func(*models.TimerSession)) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[id]
	if !ok {
		return false
	}
	fn(s)
	return true
}

// Remove drops a session from tracking.
func (st *SessionStore) Remove(id uuid.UUID) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[id]
	if !ok {
		return
	}
	delete(st.sessions, id)
	if st.byResource[s.ResourceID] == id {
		delete(st.byResource, s.ResourceID)
	}
}

// TickAll advances every non-stopped session against now and returns copies of
// the sessions that crossed Running -> Expired on this tick and still owe
// their one alert. The fired flag is set here, under the lock, so duplicate
// tick delivery can never alert twice.
func (st *SessionStore) TickAll(now time.Time) []models.TimerSession {
	st.mu.Lock()
	defer st.mu.Unlock()

	var expired []models.TimerSession
	for _, s := range st.sessions {
		if s.Tick(now) && !s.AlertFired {
			s.AlertFired = true
			expired = append(expired, *s)
		}
	}
	return expired
}

// Len returns the number of tracked sessions.
func (st *SessionStore) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

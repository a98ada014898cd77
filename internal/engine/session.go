package engine

import (
	"time"
)

// #region registry

// getOrCreateSession returns the session, creating it on first use.
// Caller must hold e.mu.
func (e *Engine) getOrCreateSession(id, courseScope string) *Session {
	if s, ok := e.sessions[id]; ok {
		s.LastActive = time.Now().UTC()
		return s
	}
	s := &Session{
		ID:          id,
		CourseScope: courseScope,
		Style:       StyleDefault,
		CreatedAt:   time.Now().UTC(),
		LastActive:  time.Now().UTC(),
	}
	e.sessions[id] = s
	e.log.WithField("session", id).Info("session created")
	return s
}

// History returns a snapshot of the session's completed turns.
func (e *Engine) History(sessionID string) ([]*Turn, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	out := make([]*Turn, len(s.Turns))
	copy(out, s.Turns)
	return out, nil
}

// CloseSession evicts a session explicitly. Fails while a turn is active.
func (e *Engine) CloseSession(sessionID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if s.active {
		return ErrSessionBusy
	}
	delete(e.sessions, sessionID)
	e.log.WithField("session", sessionID).Info("session closed")
	return nil
}

// #endregion registry

// #region eviction

// EvictIdle removes sessions idle longer than ttl. Returns the count evicted.
func (e *Engine) EvictIdle(ttl time.Duration) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := time.Now().UTC().Add(-ttl)
	evicted := 0
	for id, s := range e.sessions {
		if s.active || s.LastActive.After(cutoff) {
			continue
		}
		delete(e.sessions, id)
		evicted++
	}
	if evicted > 0 {
		e.log.WithField("count", evicted).Info("evicted idle sessions")
	}
	return evicted
}

// #endregion eviction

// Package session provides chat history storage adapters.
// Clean Architecture: Adapter implementing ports.SessionStore.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/0xcro3dile/syndic-rag/internal/domain/entities"
)

// ErrEmptySessionID is returned when a call carries no session ID.
var ErrEmptySessionID = errors.New("empty session id")

type conversation struct {
	turns    []entities.ChatTurn
	lastSeen time.Time
}

// MemoryStore keeps chat histories in process memory. Histories are lost on
// restart; each one keeps at most maxTurns recent turns.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*conversation
	maxTurns int
	now      func() time.Time
}

// NewMemoryStore creates a store. maxTurns <= 0 keeps every turn.
func NewMemoryStore(maxTurns int) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*conversation),
		maxTurns: maxTurns,
		now:      time.Now,
	}
}

// History returns a copy of the session's turns, oldest first.
// An unknown session has an empty history.
func (s *MemoryStore) History(ctx context.Context, sessionID string) ([]entities.ChatTurn, error) {
	if sessionID == "" {
		return nil, ErrEmptySessionID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.sessions[sessionID]
	if !ok {
		return []entities.ChatTurn{}, nil
	}
	out := make([]entities.ChatTurn, len(c.turns))
	copy(out, c.turns)
	return out, nil
}

// Append adds turns to the end of the session's history.
func (s *MemoryStore) Append(ctx context.Context, sessionID string, turns ...entities.ChatTurn) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.sessions[sessionID]
	if !ok {
		c = &conversation{}
		s.sessions[sessionID] = c
	}
	c.turns = append(c.turns, turns...)
	if s.maxTurns > 0 && len(c.turns) > s.maxTurns {
		c.turns = append([]entities.ChatTurn(nil), c.turns[len(c.turns)-s.maxTurns:]...)
	}
	c.lastSeen = s.now()
	return nil
}

// Reset forgets the session's history.
func (s *MemoryStore) Reset(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)
	return nil
}

// Prune drops sessions idle for longer than maxIdle and returns how many were removed.
func (s *MemoryStore) Prune(maxIdle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-maxIdle)
	removed := 0
	for id, c := range s.sessions {
		if c.lastSeen.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of live sessions.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

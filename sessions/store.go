// Package sessions provides a keyed store for validation sessions. The
// backing is injectable: front ends get the in-memory implementation by
// default and can substitute a persistent one.
package sessions

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no session exists for an id.
var ErrNotFound = errors.New("session not found")

// Session is one validation session: a script under review plus whatever
// context and results have accumulated around it.
type Session struct {
	ID               string         `json:"sessionId"`
	Script           string         `json:"script"`
	Context          map[string]any `json:"context,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	ValidationResult map[string]any `json:"validationResult,omitempty"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}

// Store is the CRUD contract for session backings.
type Store interface {
	Create(ctx context.Context, session Session) (Session, error)
	Get(ctx context.Context, id string) (Session, error)
	Update(ctx context.Context, id string, apply func(*Session)) (Session, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]Session, error)
}

// MemoryStore keeps sessions in process memory, guarded for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
	now      func() time.Time
}

var _ Store = &MemoryStore{}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: map[string]Session{},
		now:      time.Now,
	}
}

// Create stores a new session, assigning its id and timestamps.
func (s *MemoryStore) Create(ctx context.Context, session Session) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session.ID = uuid.NewString()
	session.CreatedAt = s.now()
	session.UpdatedAt = session.CreatedAt
	s.sessions[session.ID] = session
	return session, nil
}

// Get returns the session for id, or ErrNotFound.
func (s *MemoryStore) Get(ctx context.Context, id string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return session, nil
}

// Update applies a mutation to the stored session and bumps its updated
// timestamp. The id and created timestamp cannot be changed.
func (s *MemoryStore) Update(ctx context.Context, id string, apply func(*Session)) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}

	apply(&session)
	session.ID = id
	session.CreatedAt = s.sessions[id].CreatedAt
	session.UpdatedAt = s.now()
	s.sessions[id] = session
	return session, nil
}

// Delete removes the session for id, or returns ErrNotFound.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(s.sessions, id)
	return nil
}

// List returns all sessions ordered by creation time.
func (s *MemoryStore) List(ctx context.Context) ([]Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		all = append(all, session)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})
	return all, nil
}

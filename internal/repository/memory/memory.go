package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/RiddheshFirake/Lenden-SecureLoginSystem/internal/domain"
	"github.com/RiddheshFirake/Lenden-SecureLoginSystem/internal/repository"
)

// Store keeps users in process memory. Returned users are copies.
type Store struct {
	mu      sync.RWMutex
	byID    map[string]domain.User
	byEmail map[string]string
}

var _ repository.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{
		byID:    make(map[string]domain.User),
		byEmail: make(map[string]string),
	}
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateUser stores a copy of user. A taken email yields repository.ErrDuplicate.
func (s *Store) CreateUser(_ context.Context, user *domain.User) error {
	key := emailKey(user.Email)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[key]; ok {
		return repository.ErrDuplicate
	}
	if _, ok := s.byID[user.ID]; ok {
		return repository.ErrDuplicate
	}
	s.byID[user.ID] = *user
	s.byEmail[key] = user.ID
	return nil
}

// GetUserByEmail looks a user up by email, ignoring case.
func (s *Store) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[emailKey(email)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	u := s.byID[id]
	return &u, nil
}

// GetUserByID looks a user up by identifier.
func (s *Store) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

// UpdateUser replaces the mutable fields. Email and the password hash are
// left as stored.
func (s *Store) UpdateUser(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.byID[user.ID]
	if !ok {
		return repository.ErrNotFound
	}
	cur.FirstName = user.FirstName
	cur.LastName = user.LastName
	cur.Phone = user.Phone
	cur.SensitiveID = user.SensitiveID
	cur.UpdatedAt = user.UpdatedAt
	s.byID[user.ID] = cur
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close(context.Context) error { return nil }

// Len reports the number of stored users.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

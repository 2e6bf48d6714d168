// Package memory provides an in-memory UserStore for unit tests and local
// development. It mirrors the postgres store's contract, including conflict
// reporting, so services can be tested against it faithfully.
package memory

import (
	"context"
	"sync"
	"time"

	"agora/internal/auth/models"
	"agora/pkg/sentinel"
)

// Store is a mutex-guarded in-memory user store.
type Store struct {
	mu     sync.Mutex
	nextID int64
	byName map[string]*models.User
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		nextID: 1,
		byName: make(map[string]*models.User),
	}
}

// FindByUsername implements store.UserStore.
func (s *Store) FindByUsername(_ context.Context, username string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.byName[username]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *user
	return &clone, nil
}

// Insert implements store.UserStore. The single mutex makes the
// username-uniqueness check and the write atomic, matching the database
// unique constraint.
func (s *Store) Insert(_ context.Context, user models.NewUser) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byName[user.Username]; exists {
		return nil, sentinel.ErrConflict
	}

	created := &models.User{
		ID:           s.nextID,
		Username:     user.Username,
		Email:        user.Email,
		Provider:     user.Provider,
		Nickname:     user.Nickname,
		PasswordHash: user.PasswordHash,
		CreatedAt:    time.Now().UTC(),
	}
	s.nextID++
	s.byName[user.Username] = created

	clone := *created
	return &clone, nil
}

// Update implements store.UserStore.
func (s *Store) Update(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current *models.User
	for _, u := range s.byName {
		if u.ID == user.ID {
			current = u
			break
		}
	}
	if current == nil {
		return sentinel.ErrNotFound
	}
	if other, exists := s.byName[user.Username]; exists && other.ID != user.ID {
		return sentinel.ErrConflict
	}

	delete(s.byName, current.Username)
	now := time.Now().UTC()
	clone := *user
	clone.UpdatedAt = &now
	s.byName[clone.Username] = &clone
	*user = clone
	return nil
}

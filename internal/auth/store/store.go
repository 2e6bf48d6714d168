// Package store defines the persistence interface the auth core requires
// from its storage collaborator. Implementations must surface a uniqueness
// violation distinctly (sentinel.ErrConflict) so the identity resolver can
// treat a lost insert race as "already exists".
package store

import (
	"context"

	"agora/internal/auth/models"
)

// UserStore is the durable user record store.
type UserStore interface {
	// FindByUsername returns sentinel.ErrNotFound when no such user exists.
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	// Insert creates a user and returns the stored record with its
	// generated id. A username collision returns sentinel.ErrConflict.
	Insert(ctx context.Context, user models.NewUser) (*models.User, error)
	// Update persists profile mutations (nickname, email). Returns
	// sentinel.ErrNotFound for unknown ids and sentinel.ErrConflict for
	// username collisions.
	Update(ctx context.Context, user *models.User) error
}

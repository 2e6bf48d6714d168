// Package postgres implements the user store on PostgreSQL via pgxpool.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"agora/internal/auth/models"
	"agora/pkg/sentinel"
)

// uniqueViolation is the PostgreSQL error code for unique constraint
// violations; it is how concurrent first-logins surface.
const uniqueViolation = "23505"

// Store is the pgx-backed user store. One pooled connection is checked out
// per query for the duration of the call.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a user store on the given pool. The pool's lifecycle is
// managed by the caller.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const userColumns = `id, username, email, login_provider, nickname, password, created_at, updated_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Provider, &u.Nickname, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

// FindByUsername implements store.UserStore.
func (s *Store) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return scanUser(s.pool.QueryRow(ctx, query, username))
}

// Insert implements store.UserStore. A username collision maps to
// sentinel.ErrConflict so the caller can distinguish a lost race from a
// storage failure.
func (s *Store) Insert(ctx context.Context, user models.NewUser) (*models.User, error) {
	query := `
		INSERT INTO users (username, email, login_provider, nickname, password)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + userColumns

	created, err := scanUser(s.pool.QueryRow(ctx, query,
		user.Username, user.Email, user.Provider, user.Nickname, user.PasswordHash))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, sentinel.ErrConflict
		}
		return nil, err
	}
	return created, nil
}

// Update implements store.UserStore.
func (s *Store) Update(ctx context.Context, user *models.User) error {
	query := `
		UPDATE users
		SET username = $2, email = $3, nickname = $4, updated_at = now()
		WHERE id = $1
		RETURNING ` + userColumns

	updated, err := scanUser(s.pool.QueryRow(ctx, query,
		user.ID, user.Username, user.Email, user.Nickname))
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return err
	}
	*user = *updated
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"agora/pkg/sentinel"
)

const foreignKeyViolation = "23503"

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation
}

// ImageStore persists image blobs as bytea rows. Ids come from the table's
// sequence, so concurrent uploads each get a distinct id without any
// in-process coordination.
type ImageStore struct {
	pool *pgxpool.Pool
}

// NewImageStore creates an image store on the given pool.
func NewImageStore(pool *pgxpool.Pool) *ImageStore {
	return &ImageStore{pool: pool}
}

// InsertImage implements store.ImageStore.
func (s *ImageStore) InsertImage(ctx context.Context, data []byte) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `INSERT INTO images (data) VALUES ($1) RETURNING id`, data).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert image: %w", err)
	}
	return id, nil
}

// GetImage implements store.ImageStore.
func (s *ImageStore) GetImage(ctx context.Context, id int64) ([]byte, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM images WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get image: %w", err)
	}
	return data, nil
}

// DeleteImage implements store.ImageStore.
func (s *ImageStore) DeleteImage(ctx context.Context, id int64) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM images WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete image: %w", err)
	}
	return nil
}

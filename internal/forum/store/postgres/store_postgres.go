// Package postgres implements the forum stores on PostgreSQL via pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"agora/internal/forum/models"
	"agora/pkg/sentinel"
)

// Store is a PostgreSQL-backed post store. Reaction counts are computed per
// read from post_reactions; the posts row carries no counters to keep
// concurrent reactions free of lost updates.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a post store on the given pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// postColumns is the select list shared by every post query. The alias p
// must be bound to the posts table.
const postColumns = `
	p.id, p.post_type, p.author_id, p.title, p.content, p.image_ids, p.created_at,
	p.game_type, p.people_all, p.amuse_place, p.starts_at,
	p.food_place, p.score, p.price, p.goods_type, p.sold,
	(SELECT count(*) FROM post_reactions r WHERE r.post_id = p.id AND r.kind = 'like'),
	(SELECT count(*) FROM post_reactions r WHERE r.post_id = p.id AND r.kind = 'favorite'),
	(SELECT count(*) FROM post_reactions r WHERE r.post_id = p.id AND r.kind = 'participant')`

func scanPost(row pgx.Row) (*models.Post, error) {
	var post models.Post
	err := row.Scan(
		&post.ID, &post.Type, &post.AuthorID, &post.Title, &post.Content,
		&post.ImageIDs, &post.CreatedAt,
		&post.GameType, &post.PeopleAll, &post.AmusePlace, &post.StartsAt,
		&post.FoodPlace, &post.Score, &post.Price, &post.GoodsType, &post.Sold,
		&post.Likes, &post.Favorites, &post.Participants,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan post: %w", err)
	}
	return &post, nil
}

// InsertPost implements store.PostStore.
func (s *Store) InsertPost(ctx context.Context, post models.NewPost) (*models.Post, error) {
	var sold *bool
	if post.Type == models.PostSell {
		f := false
		sold = &f
	}

	query := `
		INSERT INTO posts (
			post_type, author_id, title, content, image_ids,
			game_type, people_all, amuse_place, starts_at,
			food_place, score, price, goods_type, sold
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, created_at
	`
	created := models.Post{
		Type:       post.Type,
		AuthorID:   post.AuthorID,
		Title:      post.Title,
		Content:    post.Content,
		ImageIDs:   post.ImageIDs,
		GameType:   post.GameType,
		PeopleAll:  post.PeopleAll,
		AmusePlace: post.AmusePlace,
		StartsAt:   post.StartsAt,
		FoodPlace:  post.FoodPlace,
		Score:      post.Score,
		Price:      post.Price,
		GoodsType:  post.GoodsType,
		Sold:       sold,
	}
	err := s.pool.QueryRow(ctx, query,
		post.Type, post.AuthorID, post.Title, post.Content, post.ImageIDs,
		post.GameType, post.PeopleAll, post.AmusePlace, post.StartsAt,
		post.FoodPlace, post.Score, post.Price, post.GoodsType, sold,
	).Scan(&created.ID, &created.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert post: %w", err)
	}
	return &created, nil
}

// GetPost implements store.PostStore.
func (s *Store) GetPost(ctx context.Context, id int64) (*models.Post, error) {
	query := `SELECT` + postColumns + ` FROM posts p WHERE p.id = $1`
	return scanPost(s.pool.QueryRow(ctx, query, id))
}

// DeletePost implements store.PostStore. Comments and reactions go with the
// post via ON DELETE CASCADE; the deleted row is read first inside the
// transaction so callers get the image ids to clean up.
func (s *Store) DeletePost(ctx context.Context, id int64) (*models.Post, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin delete post: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `SELECT` + postColumns + ` FROM posts p WHERE p.id = $1 FOR UPDATE OF p`
	post, err := scanPost(tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM posts WHERE id = $1`, id); err != nil {
		return nil, fmt.Errorf("delete post: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit delete post: %w", err)
	}
	return post, nil
}

// ListPosts implements store.PostStore.
func (s *Store) ListPosts(ctx context.Context, filter models.PostFilter) ([]*models.Post, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Type != "" {
		where = append(where, "p.post_type = "+arg(filter.Type))
	}
	if filter.GameType != "" {
		where = append(where, "p.game_type = "+arg(filter.GameType))
	}
	if filter.PeopleAllMin != nil {
		where = append(where, "p.people_all >= "+arg(*filter.PeopleAllMin))
	}
	if filter.PeopleAllMax != nil {
		where = append(where, "p.people_all <= "+arg(*filter.PeopleAllMax))
	}
	if filter.PeopleGapMax != nil {
		where = append(where,
			"p.people_all - (SELECT count(*) FROM post_reactions r WHERE r.post_id = p.id AND r.kind = 'participant') <= "+
				arg(*filter.PeopleGapMax))
	}
	if filter.StartsAfter != nil {
		where = append(where, "p.starts_at >= "+arg(*filter.StartsAfter))
	}
	if filter.FoodPlace != "" {
		where = append(where, "p.food_place = "+arg(filter.FoodPlace))
	}
	if filter.ScoreMin != nil {
		where = append(where, "p.score >= "+arg(*filter.ScoreMin))
	}
	if filter.GoodsType != "" {
		where = append(where, "p.goods_type = "+arg(filter.GoodsType))
	}
	if filter.PriceMax != nil {
		where = append(where, "p.price <= "+arg(*filter.PriceMax))
	}
	if filter.Type == models.PostSell {
		where = append(where, "p.sold = false")
	}

	query := `SELECT` + postColumns + ` FROM posts p`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY p.id DESC"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}

	return s.queryPosts(ctx, query, args...)
}

// ListPersonal implements store.PostStore.
func (s *Store) ListPersonal(ctx context.Context, userID int64, relation models.Relation, limit int32) ([]*models.Post, error) {
	var query string
	args := []any{userID}

	switch relation {
	case models.RelationOwn:
		query = `SELECT` + postColumns + ` FROM posts p WHERE p.author_id = $1`
	case models.RelationLiked, models.RelationFavorited, models.RelationParticipant:
		kind := map[models.Relation]models.ReactionKind{
			models.RelationLiked:       models.ReactionLike,
			models.RelationFavorited:   models.ReactionFavorite,
			models.RelationParticipant: models.ReactionParticipant,
		}[relation]
		query = `SELECT` + postColumns + ` FROM posts p
			JOIN post_reactions mine ON mine.post_id = p.id AND mine.user_id = $1 AND mine.kind = $2`
		args = append(args, kind)
	default:
		return nil, fmt.Errorf("unknown relation %q", relation)
	}

	query += " ORDER BY p.id DESC"
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return s.queryPosts(ctx, query, args...)
}

func (s *Store) queryPosts(ctx context.Context, query string, args ...any) ([]*models.Post, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return posts, nil
}

// InsertComment implements store.PostStore. The post_id foreign key turns
// comments on deleted posts into sentinel.ErrNotFound.
func (s *Store) InsertComment(ctx context.Context, comment models.NewComment) (*models.Comment, error) {
	query := `
		INSERT INTO comments (post_id, author_id, content)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	created := models.Comment{
		PostID:   comment.PostID,
		AuthorID: comment.AuthorID,
		Content:  comment.Content,
	}
	err := s.pool.QueryRow(ctx, query, comment.PostID, comment.AuthorID, comment.Content).
		Scan(&created.ID, &created.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("insert comment: %w", err)
	}
	return &created, nil
}

// GetComment implements store.PostStore.
func (s *Store) GetComment(ctx context.Context, id int64) (*models.Comment, error) {
	query := `SELECT id, post_id, author_id, content, created_at FROM comments WHERE id = $1`

	var comment models.Comment
	err := s.pool.QueryRow(ctx, query, id).
		Scan(&comment.ID, &comment.PostID, &comment.AuthorID, &comment.Content, &comment.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get comment: %w", err)
	}
	return &comment, nil
}

// DeleteComment implements store.PostStore.
func (s *Store) DeleteComment(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM comments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// ListComments implements store.PostStore.
func (s *Store) ListComments(ctx context.Context, postID int64) ([]*models.Comment, error) {
	query := `
		SELECT id, post_id, author_id, content, created_at
		FROM comments
		WHERE post_id = $1
		ORDER BY id
	`
	rows, err := s.pool.Query(ctx, query, postID)
	if err != nil {
		return nil, fmt.Errorf("query comments: %w", err)
	}
	defer rows.Close()

	var comments []*models.Comment
	for rows.Next() {
		var comment models.Comment
		if err := rows.Scan(&comment.ID, &comment.PostID, &comment.AuthorID, &comment.Content, &comment.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, &comment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return comments, nil
}

// AddReaction implements store.PostStore. ON CONFLICT DO NOTHING makes
// repeated likes idempotent instead of an error.
func (s *Store) AddReaction(ctx context.Context, postID, userID int64, kind models.ReactionKind) error {
	query := `
		INSERT INTO post_reactions (post_id, user_id, kind)
		VALUES ($1, $2, $3)
		ON CONFLICT (post_id, user_id, kind) DO NOTHING
	`
	if _, err := s.pool.Exec(ctx, query, postID, userID, kind); err != nil {
		if isForeignKeyViolation(err) {
			return sentinel.ErrNotFound
		}
		return fmt.Errorf("add reaction: %w", err)
	}
	return nil
}

// RemoveReaction implements store.PostStore.
func (s *Store) RemoveReaction(ctx context.Context, postID, userID int64, kind models.ReactionKind) error {
	query := `DELETE FROM post_reactions WHERE post_id = $1 AND user_id = $2 AND kind = $3`
	if _, err := s.pool.Exec(ctx, query, postID, userID, kind); err != nil {
		return fmt.Errorf("remove reaction: %w", err)
	}
	return nil
}

// SetSold implements store.PostStore.
func (s *Store) SetSold(ctx context.Context, postID int64) error {
	tag, err := s.pool.Exec(ctx, `UPDATE posts SET sold = true WHERE id = $1`, postID)
	if err != nil {
		return fmt.Errorf("set sold: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

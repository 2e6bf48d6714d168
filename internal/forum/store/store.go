// Package store defines the persistence contracts for the forum domain.
// Implementations return pkg/sentinel errors; the service layer translates
// them into coded domain errors.
package store

import (
	"context"

	"agora/internal/forum/models"
)

// PostStore persists posts, comments, and reactions.
type PostStore interface {
	// InsertPost stores a post and returns it with its generated id.
	InsertPost(ctx context.Context, post models.NewPost) (*models.Post, error)
	// GetPost returns a post with its reaction counts, or
	// sentinel.ErrNotFound.
	GetPost(ctx context.Context, id int64) (*models.Post, error)
	// DeletePost removes a post and its comments and reactions, returning
	// the deleted post so callers can clean up referenced images.
	DeletePost(ctx context.Context, id int64) (*models.Post, error)
	// ListPosts returns posts matching the filter, newest first.
	ListPosts(ctx context.Context, filter models.PostFilter) ([]*models.Post, error)
	// ListPersonal returns the posts a user authored or reacted to.
	ListPersonal(ctx context.Context, userID int64, relation models.Relation, limit int32) ([]*models.Post, error)

	// InsertComment stores a comment on an existing post.
	InsertComment(ctx context.Context, comment models.NewComment) (*models.Comment, error)
	// GetComment returns a comment or sentinel.ErrNotFound.
	GetComment(ctx context.Context, id int64) (*models.Comment, error)
	// DeleteComment removes a comment.
	DeleteComment(ctx context.Context, id int64) error
	// ListComments returns a post's comments, oldest first.
	ListComments(ctx context.Context, postID int64) ([]*models.Comment, error)

	// AddReaction records a user's reaction on a post. Adding a reaction
	// that already exists is a no-op.
	AddReaction(ctx context.Context, postID, userID int64, kind models.ReactionKind) error
	// RemoveReaction drops a user's reaction. Removing an absent reaction
	// is a no-op.
	RemoveReaction(ctx context.Context, postID, userID int64, kind models.ReactionKind) error

	// SetSold marks a sell post as sold.
	SetSold(ctx context.Context, postID int64) error
}

// ImageStore persists image blobs with database-generated ids.
type ImageStore interface {
	// InsertImage stores a blob and returns its generated id.
	InsertImage(ctx context.Context, data []byte) (int64, error)
	// GetImage returns a blob or sentinel.ErrNotFound.
	GetImage(ctx context.Context, id int64) ([]byte, error)
	// DeleteImage removes a blob. Deleting a missing image is a no-op.
	DeleteImage(ctx context.Context, id int64) error
}

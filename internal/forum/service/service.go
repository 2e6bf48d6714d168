// Package service implements the forum operations behind the authenticated
// API: posts, comments, reactions, and images. The author of every write is
// the session user; client-supplied author ids are ignored.
package service

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"agora/internal/forum/models"
	"agora/internal/forum/store"
	dErrors "agora/pkg/domain-errors"
	"agora/pkg/requestcontext"
	"agora/pkg/sentinel"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100

	// maxImageBytes caps uploads at 5 MiB; the images live as bytea rows.
	maxImageBytes = 5 << 20
)

// Service is the forum orchestrator.
type Service struct {
	posts  store.PostStore
	images store.ImageStore
	logger *slog.Logger
	tracer trace.Tracer
}

// New wires the forum service.
func New(posts store.PostStore, images store.ImageStore, logger *slog.Logger) *Service {
	return &Service{
		posts:  posts,
		images: images,
		logger: logger,
		tracer: otel.Tracer("agora/forum"),
	}
}

// CreatePost validates and stores a new post authored by the session user.
func (s *Service) CreatePost(ctx context.Context, post models.NewPost) (*models.Post, error) {
	ctx, span := s.tracer.Start(ctx, "forum.CreatePost",
		trace.WithAttributes(attribute.String("post.type", string(post.Type))))
	defer span.End()

	if err := validateNewPost(post); err != nil {
		return nil, err
	}
	post.AuthorID = requestcontext.UserID(ctx)

	created, err := s.posts.InsertPost(ctx, post)
	if err != nil {
		span.RecordError(err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create post")
	}
	return created, nil
}

func validateNewPost(post models.NewPost) error {
	if !post.Type.Valid() {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid post type")
	}
	if post.Title == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "title cannot be empty")
	}
	if post.Content == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "content cannot be empty")
	}
	switch post.Type {
	case models.PostAmusement:
		if post.GameType == nil || *post.GameType == "" {
			return dErrors.New(dErrors.CodeInvalidInput, "game type is required")
		}
		if post.PeopleAll == nil || *post.PeopleAll < 2 {
			return dErrors.New(dErrors.CodeInvalidInput, "people_all must be at least 2")
		}
	case models.PostFood:
		if post.FoodPlace == nil || *post.FoodPlace == "" {
			return dErrors.New(dErrors.CodeInvalidInput, "food place is required")
		}
		if post.Score == nil || *post.Score < 0 || *post.Score > 10 {
			return dErrors.New(dErrors.CodeInvalidInput, "score must be between 0 and 10")
		}
	case models.PostSell:
		if post.Price == nil || *post.Price < 0 {
			return dErrors.New(dErrors.CodeInvalidInput, "price is required")
		}
		if post.GoodsType == nil || *post.GoodsType == "" {
			return dErrors.New(dErrors.CodeInvalidInput, "goods type is required")
		}
	}
	return nil
}

// GetPost returns a post with its comments.
func (s *Service) GetPost(ctx context.Context, id int64) (*models.Post, []*models.Comment, error) {
	post, err := s.posts.GetPost(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil, dErrors.New(dErrors.CodeNotFound, "no such post")
		}
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to get post")
	}
	comments, err := s.posts.ListComments(ctx, id)
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to get post")
	}
	return post, comments, nil
}

// DeletePost removes a post the session user authored, then cleans up its
// images. Image deletion failures are logged, never surfaced: the post is
// already gone.
func (s *Service) DeletePost(ctx context.Context, id int64) error {
	ctx, span := s.tracer.Start(ctx, "forum.DeletePost")
	defer span.End()

	post, err := s.posts.GetPost(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "no such post")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete post")
	}
	if post.AuthorID != requestcontext.UserID(ctx) {
		return dErrors.New(dErrors.CodeForbidden, "only the author can delete a post")
	}

	deleted, err := s.posts.DeletePost(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "no such post")
		}
		span.RecordError(err)
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete post")
	}

	for _, imageID := range deleted.ImageIDs {
		if err := s.images.DeleteImage(ctx, imageID); err != nil {
			s.logger.WarnContext(ctx, "orphaned image after post deletion",
				"image_id", imageID,
				"post_id", id,
				"error", err,
			)
		}
	}
	return nil
}

// ListPosts returns posts matching the filter.
func (s *Service) ListPosts(ctx context.Context, filter models.PostFilter) ([]*models.Post, error) {
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "invalid post type")
	}
	filter.Limit = clampLimit(filter.Limit)

	posts, err := s.posts.ListPosts(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list posts")
	}
	return posts, nil
}

// ListPersonal returns the session user's posts for the given relation.
func (s *Service) ListPersonal(ctx context.Context, relation models.Relation, limit int32) ([]*models.Post, error) {
	if !relation.Valid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "invalid relation")
	}

	posts, err := s.posts.ListPersonal(ctx, requestcontext.UserID(ctx), relation, clampLimit(limit))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list posts")
	}
	return posts, nil
}

func clampLimit(limit int32) int32 {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

// AddComment stores a comment by the session user on a post.
func (s *Service) AddComment(ctx context.Context, postID int64, content string) (*models.Comment, error) {
	if content == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "content cannot be empty")
	}

	comment, err := s.posts.InsertComment(ctx, models.NewComment{
		PostID:   postID,
		AuthorID: requestcontext.UserID(ctx),
		Content:  content,
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "no such post")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to comment")
	}
	return comment, nil
}

// DeleteComment removes a comment the session user authored.
func (s *Service) DeleteComment(ctx context.Context, id int64) error {
	comment, err := s.posts.GetComment(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "no such comment")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete comment")
	}
	if comment.AuthorID != requestcontext.UserID(ctx) {
		return dErrors.New(dErrors.CodeForbidden, "only the author can delete a comment")
	}

	if err := s.posts.DeleteComment(ctx, id); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete comment")
	}
	return nil
}

// React records a reaction by the session user. Participation only applies
// to amusement posts.
func (s *Service) React(ctx context.Context, postID int64, kind models.ReactionKind) error {
	return s.changeReaction(ctx, postID, kind, s.posts.AddReaction)
}

// Unreact removes a reaction by the session user.
func (s *Service) Unreact(ctx context.Context, postID int64, kind models.ReactionKind) error {
	return s.changeReaction(ctx, postID, kind, s.posts.RemoveReaction)
}

func (s *Service) changeReaction(
	ctx context.Context,
	postID int64,
	kind models.ReactionKind,
	apply func(context.Context, int64, int64, models.ReactionKind) error,
) error {
	if !kind.Valid() {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid reaction")
	}
	if kind == models.ReactionParticipant {
		post, err := s.posts.GetPost(ctx, postID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "no such post")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update reaction")
		}
		if post.Type != models.PostAmusement {
			return dErrors.New(dErrors.CodeInvalidInput, "only amusement posts take participants")
		}
	}

	if err := apply(ctx, postID, requestcontext.UserID(ctx), kind); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "no such post")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update reaction")
	}
	return nil
}

// SetSold marks a sell post the session user authored as sold.
func (s *Service) SetSold(ctx context.Context, postID int64) error {
	post, err := s.posts.GetPost(ctx, postID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "no such post")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to mark post sold")
	}
	if post.Type != models.PostSell {
		return dErrors.New(dErrors.CodeInvalidInput, "only sell posts can be marked sold")
	}
	if post.AuthorID != requestcontext.UserID(ctx) {
		return dErrors.New(dErrors.CodeForbidden, "only the author can mark a post sold")
	}

	if err := s.posts.SetSold(ctx, postID); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to mark post sold")
	}
	return nil
}

// UploadImage stores an image blob and returns its database-generated id.
func (s *Service) UploadImage(ctx context.Context, data []byte) (int64, error) {
	if len(data) == 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "image cannot be empty")
	}
	if len(data) > maxImageBytes {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "image too large")
	}

	id, err := s.images.InsertImage(ctx, data)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store image")
	}
	return id, nil
}

// GetImage returns an image blob.
func (s *Service) GetImage(ctx context.Context, id int64) ([]byte, error) {
	data, err := s.images.GetImage(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "no such image")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to get image")
	}
	return data, nil
}

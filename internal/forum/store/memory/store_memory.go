// Package memory provides in-memory forum stores for unit tests and local
// development. They mirror the postgres stores' contracts, including
// not-found reporting and reaction idempotency.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"agora/internal/forum/models"
	"agora/pkg/sentinel"
)

type reactionKey struct {
	postID int64
	userID int64
	kind   models.ReactionKind
}

// Store is a mutex-guarded in-memory post store.
type Store struct {
	mu            sync.Mutex
	nextPostID    int64
	nextCommentID int64
	posts         map[int64]*models.Post
	comments      map[int64]*models.Comment
	reactions     map[reactionKey]struct{}
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		nextPostID:    1,
		nextCommentID: 1,
		posts:         make(map[int64]*models.Post),
		comments:      make(map[int64]*models.Comment),
		reactions:     make(map[reactionKey]struct{}),
	}
}

// InsertPost implements store.PostStore.
func (s *Store) InsertPost(_ context.Context, post models.NewPost) (*models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	created := &models.Post{
		ID:         s.nextPostID,
		Type:       post.Type,
		AuthorID:   post.AuthorID,
		Title:      post.Title,
		Content:    post.Content,
		ImageIDs:   append([]int64(nil), post.ImageIDs...),
		CreatedAt:  time.Now().UTC(),
		GameType:   post.GameType,
		PeopleAll:  post.PeopleAll,
		AmusePlace: post.AmusePlace,
		StartsAt:   post.StartsAt,
		FoodPlace:  post.FoodPlace,
		Score:      post.Score,
		Price:      post.Price,
		GoodsType:  post.GoodsType,
	}
	if post.Type == models.PostSell {
		sold := false
		created.Sold = &sold
	}
	s.nextPostID++
	s.posts[created.ID] = created

	return s.cloneWithCounts(created), nil
}

// GetPost implements store.PostStore.
func (s *Store) GetPost(_ context.Context, id int64) (*models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.posts[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.cloneWithCounts(post), nil
}

// DeletePost implements store.PostStore.
func (s *Store) DeletePost(_ context.Context, id int64) (*models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.posts[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	delete(s.posts, id)
	for cid, c := range s.comments {
		if c.PostID == id {
			delete(s.comments, cid)
		}
	}
	for key := range s.reactions {
		if key.postID == id {
			delete(s.reactions, key)
		}
	}
	return s.cloneWithCounts(post), nil
}

// ListPosts implements store.PostStore.
func (s *Store) ListPosts(_ context.Context, filter models.PostFilter) ([]*models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Post
	for _, post := range s.posts {
		if s.matches(post, filter) {
			out = append(out, s.cloneWithCounts(post))
		}
	}
	sortNewestFirst(out)
	return capLimit(out, filter.Limit), nil
}

// ListPersonal implements store.PostStore.
func (s *Store) ListPersonal(_ context.Context, userID int64, relation models.Relation, limit int32) ([]*models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Post
	for _, post := range s.posts {
		var keep bool
		switch relation {
		case models.RelationOwn:
			keep = post.AuthorID == userID
		case models.RelationLiked:
			_, keep = s.reactions[reactionKey{post.ID, userID, models.ReactionLike}]
		case models.RelationFavorited:
			_, keep = s.reactions[reactionKey{post.ID, userID, models.ReactionFavorite}]
		case models.RelationParticipant:
			_, keep = s.reactions[reactionKey{post.ID, userID, models.ReactionParticipant}]
		}
		if keep {
			out = append(out, s.cloneWithCounts(post))
		}
	}
	sortNewestFirst(out)
	return capLimit(out, limit), nil
}

// InsertComment implements store.PostStore.
func (s *Store) InsertComment(_ context.Context, comment models.NewComment) (*models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.posts[comment.PostID]; !ok {
		return nil, sentinel.ErrNotFound
	}
	created := &models.Comment{
		ID:        s.nextCommentID,
		PostID:    comment.PostID,
		AuthorID:  comment.AuthorID,
		Content:   comment.Content,
		CreatedAt: time.Now().UTC(),
	}
	s.nextCommentID++
	s.comments[created.ID] = created

	clone := *created
	return &clone, nil
}

// GetComment implements store.PostStore.
func (s *Store) GetComment(_ context.Context, id int64) (*models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	comment, ok := s.comments[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *comment
	return &clone, nil
}

// DeleteComment implements store.PostStore.
func (s *Store) DeleteComment(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.comments[id]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.comments, id)
	return nil
}

// ListComments implements store.PostStore.
func (s *Store) ListComments(_ context.Context, postID int64) ([]*models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Comment
	for _, comment := range s.comments {
		if comment.PostID == postID {
			clone := *comment
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// AddReaction implements store.PostStore.
func (s *Store) AddReaction(_ context.Context, postID, userID int64, kind models.ReactionKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.posts[postID]; !ok {
		return sentinel.ErrNotFound
	}
	s.reactions[reactionKey{postID, userID, kind}] = struct{}{}
	return nil
}

// RemoveReaction implements store.PostStore.
func (s *Store) RemoveReaction(_ context.Context, postID, userID int64, kind models.ReactionKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.posts[postID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.reactions, reactionKey{postID, userID, kind})
	return nil
}

// SetSold implements store.PostStore.
func (s *Store) SetSold(_ context.Context, postID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.posts[postID]
	if !ok {
		return sentinel.ErrNotFound
	}
	sold := true
	post.Sold = &sold
	return nil
}

// cloneWithCounts copies a post and fills its reaction counts. Callers must
// hold s.mu.
func (s *Store) cloneWithCounts(post *models.Post) *models.Post {
	clone := *post
	clone.ImageIDs = append([]int64(nil), post.ImageIDs...)
	clone.Likes, clone.Favorites, clone.Participants = 0, 0, 0
	for key := range s.reactions {
		if key.postID != post.ID {
			continue
		}
		switch key.kind {
		case models.ReactionLike:
			clone.Likes++
		case models.ReactionFavorite:
			clone.Favorites++
		case models.ReactionParticipant:
			clone.Participants++
		}
	}
	return &clone
}

func (s *Store) matches(post *models.Post, filter models.PostFilter) bool {
	if filter.Type != "" && post.Type != filter.Type {
		return false
	}
	switch post.Type {
	case models.PostAmusement:
		if filter.GameType != "" && (post.GameType == nil || *post.GameType != filter.GameType) {
			return false
		}
		if filter.PeopleAllMin != nil && (post.PeopleAll == nil || *post.PeopleAll < *filter.PeopleAllMin) {
			return false
		}
		if filter.PeopleAllMax != nil && (post.PeopleAll == nil || *post.PeopleAll > *filter.PeopleAllMax) {
			return false
		}
		if filter.PeopleGapMax != nil {
			if post.PeopleAll == nil {
				return false
			}
			participants := int32(0)
			for key := range s.reactions {
				if key.postID == post.ID && key.kind == models.ReactionParticipant {
					participants++
				}
			}
			if *post.PeopleAll-participants > *filter.PeopleGapMax {
				return false
			}
		}
		if filter.StartsAfter != nil && (post.StartsAt == nil || post.StartsAt.Before(*filter.StartsAfter)) {
			return false
		}
	case models.PostFood:
		if filter.FoodPlace != "" && (post.FoodPlace == nil || *post.FoodPlace != filter.FoodPlace) {
			return false
		}
		if filter.ScoreMin != nil && (post.Score == nil || *post.Score < *filter.ScoreMin) {
			return false
		}
	case models.PostSell:
		if post.Sold != nil && *post.Sold {
			return false
		}
		if filter.GoodsType != "" && (post.GoodsType == nil || *post.GoodsType != filter.GoodsType) {
			return false
		}
		if filter.PriceMax != nil && (post.Price == nil || *post.Price > *filter.PriceMax) {
			return false
		}
	}
	return true
}

func sortNewestFirst(posts []*models.Post) {
	sort.Slice(posts, func(i, j int) bool { return posts[i].ID > posts[j].ID })
}

func capLimit(posts []*models.Post, limit int32) []*models.Post {
	if limit > 0 && int64(len(posts)) > int64(limit) {
		return posts[:limit]
	}
	return posts
}

// ImageStore is a mutex-guarded in-memory image store.
type ImageStore struct {
	mu     sync.Mutex
	nextID int64
	images map[int64][]byte
}

// NewImageStore creates an empty in-memory image store.
func NewImageStore() *ImageStore {
	return &ImageStore{nextID: 1, images: make(map[int64][]byte)}
}

// InsertImage implements store.ImageStore.
func (s *ImageStore) InsertImage(_ context.Context, data []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.images[id] = append([]byte(nil), data...)
	return id, nil
}

// GetImage implements store.ImageStore.
func (s *ImageStore) GetImage(_ context.Context, id int64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.images[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

// DeleteImage implements store.ImageStore.
func (s *ImageStore) DeleteImage(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.images, id)
	return nil
}

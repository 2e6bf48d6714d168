package service

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agora/internal/forum/models"
	"agora/internal/forum/store/memory"
	dErrors "agora/pkg/domain-errors"
	"agora/pkg/requestcontext"
)

func ptr[T any](v T) *T { return &v }

type testEnv struct {
	svc    *Service
	posts  *memory.Store
	images *memory.ImageStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		posts:  memory.New(),
		images: memory.NewImageStore(),
	}
	env.svc = New(env.posts, env.images, slog.Default())
	return env
}

func asUser(id int64) context.Context {
	return requestcontext.WithUserID(context.Background(), id)
}

func amusementPost() models.NewPost {
	return models.NewPost{
		Type:      models.PostAmusement,
		Title:     "badminton tonight",
		Content:   "need two more",
		GameType:  ptr("badminton"),
		PeopleAll: ptr(int32(4)),
	}
}

func sellPost() models.NewPost {
	return models.NewPost{
		Type:      models.PostSell,
		Title:     "used bike",
		Content:   "good condition",
		Price:     ptr(int32(200)),
		GoodsType: ptr("bike"),
	}
}

func foodPost(place string, score int32) models.NewPost {
	return models.NewPost{
		Type:      models.PostFood,
		Title:     "lunch review",
		Content:   "pretty good",
		FoodPlace: ptr(place),
		Score:     ptr(score),
	}
}

func TestCreatePost(t *testing.T) {
	t.Run("author comes from the session", func(t *testing.T) {
		env := newTestEnv(t)
		created, err := env.svc.CreatePost(asUser(7), amusementPost())
		require.NoError(t, err)
		assert.Equal(t, int64(7), created.AuthorID)
		assert.NotZero(t, created.ID)
	})

	t.Run("sell posts start unsold", func(t *testing.T) {
		env := newTestEnv(t)
		created, err := env.svc.CreatePost(asUser(7), sellPost())
		require.NoError(t, err)
		require.NotNil(t, created.Sold)
		assert.False(t, *created.Sold)
	})

	t.Run("validation", func(t *testing.T) {
		missingGame := amusementPost()
		missingGame.GameType = nil
		soloGame := amusementPost()
		soloGame.PeopleAll = ptr(int32(1))
		badScore := foodPost("canteen 1", 11)
		noPrice := sellPost()
		noPrice.Price = nil
		noTitle := amusementPost()
		noTitle.Title = ""

		tests := []struct {
			name string
			post models.NewPost
		}{
			{"unknown type", models.NewPost{Type: "BLOG", Title: "t", Content: "c"}},
			{"empty title", noTitle},
			{"amusement without game", missingGame},
			{"amusement for one", soloGame},
			{"food score out of range", badScore},
			{"sell without price", noPrice},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				env := newTestEnv(t)
				_, err := env.svc.CreatePost(asUser(1), tt.post)
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
			})
		}
	})
}

func TestGetPostWithComments(t *testing.T) {
	env := newTestEnv(t)
	created, err := env.svc.CreatePost(asUser(1), foodPost("canteen 2", 8))
	require.NoError(t, err)

	_, err = env.svc.AddComment(asUser(2), created.ID, "agreed")
	require.NoError(t, err)
	_, err = env.svc.AddComment(asUser(3), created.ID, "too salty")
	require.NoError(t, err)

	post, comments, err := env.svc.GetPost(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, post.ID)
	require.Len(t, comments, 2)
	assert.Equal(t, "agreed", comments[0].Content)

	_, _, err = env.svc.GetPost(context.Background(), 9999)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestDeletePost(t *testing.T) {
	env := newTestEnv(t)

	imageID, err := env.svc.UploadImage(asUser(1), []byte{0xff, 0xd8, 0xff})
	require.NoError(t, err)

	post := sellPost()
	post.ImageIDs = []int64{imageID}
	created, err := env.svc.CreatePost(asUser(1), post)
	require.NoError(t, err)

	t.Run("non-author is forbidden", func(t *testing.T) {
		err := env.svc.DeletePost(asUser(2), created.ID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	t.Run("author deletes post and its images", func(t *testing.T) {
		require.NoError(t, env.svc.DeletePost(asUser(1), created.ID))

		_, _, err := env.svc.GetPost(context.Background(), created.ID)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

		_, err = env.svc.GetImage(context.Background(), imageID)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func TestListPostsFilters(t *testing.T) {
	env := newTestEnv(t)
	ctx := asUser(1)

	_, err := env.svc.CreatePost(ctx, amusementPost())
	require.NoError(t, err)
	_, err = env.svc.CreatePost(ctx, foodPost("canteen 1", 9))
	require.NoError(t, err)
	_, err = env.svc.CreatePost(ctx, foodPost("canteen 2", 5))
	require.NoError(t, err)
	sold, err := env.svc.CreatePost(ctx, sellPost())
	require.NoError(t, err)
	require.NoError(t, env.svc.SetSold(ctx, sold.ID))
	_, err = env.svc.CreatePost(ctx, sellPost())
	require.NoError(t, err)

	t.Run("by type", func(t *testing.T) {
		posts, err := env.svc.ListPosts(ctx, models.PostFilter{Type: models.PostFood})
		require.NoError(t, err)
		assert.Len(t, posts, 2)
	})

	t.Run("food score floor", func(t *testing.T) {
		posts, err := env.svc.ListPosts(ctx, models.PostFilter{Type: models.PostFood, ScoreMin: ptr(int32(7))})
		require.NoError(t, err)
		require.Len(t, posts, 1)
		assert.Equal(t, "canteen 1", *posts[0].FoodPlace)
	})

	t.Run("sold listings are hidden", func(t *testing.T) {
		posts, err := env.svc.ListPosts(ctx, models.PostFilter{Type: models.PostSell})
		require.NoError(t, err)
		require.Len(t, posts, 1)
		assert.NotEqual(t, sold.ID, posts[0].ID)
	})

	t.Run("newest first", func(t *testing.T) {
		posts, err := env.svc.ListPosts(ctx, models.PostFilter{})
		require.NoError(t, err)
		require.NotEmpty(t, posts)
		for i := 1; i < len(posts); i++ {
			assert.Greater(t, posts[i-1].ID, posts[i].ID)
		}
	})
}

func TestListPersonal(t *testing.T) {
	env := newTestEnv(t)

	mine, err := env.svc.CreatePost(asUser(1), amusementPost())
	require.NoError(t, err)
	other, err := env.svc.CreatePost(asUser(2), foodPost("canteen 1", 7))
	require.NoError(t, err)

	require.NoError(t, env.svc.React(asUser(1), other.ID, models.ReactionLike))

	own, err := env.svc.ListPersonal(asUser(1), models.RelationOwn, 0)
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, mine.ID, own[0].ID)

	liked, err := env.svc.ListPersonal(asUser(1), models.RelationLiked, 0)
	require.NoError(t, err)
	require.Len(t, liked, 1)
	assert.Equal(t, other.ID, liked[0].ID)

	_, err = env.svc.ListPersonal(asUser(1), "starred", 0)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestReactions(t *testing.T) {
	env := newTestEnv(t)
	post, err := env.svc.CreatePost(asUser(1), amusementPost())
	require.NoError(t, err)
	review, err := env.svc.CreatePost(asUser(1), foodPost("canteen 1", 6))
	require.NoError(t, err)

	t.Run("likes are idempotent per user", func(t *testing.T) {
		require.NoError(t, env.svc.React(asUser(2), post.ID, models.ReactionLike))
		require.NoError(t, env.svc.React(asUser(2), post.ID, models.ReactionLike))
		require.NoError(t, env.svc.React(asUser(3), post.ID, models.ReactionLike))

		got, _, err := env.svc.GetPost(context.Background(), post.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.Likes)
	})

	t.Run("unreact removes one user's mark", func(t *testing.T) {
		require.NoError(t, env.svc.Unreact(asUser(2), post.ID, models.ReactionLike))

		got, _, err := env.svc.GetPost(context.Background(), post.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.Likes)
	})

	t.Run("participation counts toward the headcount", func(t *testing.T) {
		require.NoError(t, env.svc.React(asUser(4), post.ID, models.ReactionParticipant))

		got, _, err := env.svc.GetPost(context.Background(), post.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.Participants)
	})

	t.Run("participation is amusement-only", func(t *testing.T) {
		err := env.svc.React(asUser(4), review.ID, models.ReactionParticipant)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("reacting to a missing post", func(t *testing.T) {
		err := env.svc.React(asUser(4), 9999, models.ReactionLike)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func TestSetSold(t *testing.T) {
	env := newTestEnv(t)
	listing, err := env.svc.CreatePost(asUser(1), sellPost())
	require.NoError(t, err)
	review, err := env.svc.CreatePost(asUser(1), foodPost("canteen 1", 6))
	require.NoError(t, err)

	t.Run("only sell posts", func(t *testing.T) {
		err := env.svc.SetSold(asUser(1), review.ID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("only the author", func(t *testing.T) {
		err := env.svc.SetSold(asUser(2), listing.ID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	t.Run("author marks sold", func(t *testing.T) {
		require.NoError(t, env.svc.SetSold(asUser(1), listing.ID))

		got, _, err := env.svc.GetPost(context.Background(), listing.ID)
		require.NoError(t, err)
		require.NotNil(t, got.Sold)
		assert.True(t, *got.Sold)
	})
}

func TestComments(t *testing.T) {
	env := newTestEnv(t)
	post, err := env.svc.CreatePost(asUser(1), foodPost("canteen 3", 7))
	require.NoError(t, err)

	comment, err := env.svc.AddComment(asUser(2), post.ID, "nice find")
	require.NoError(t, err)
	assert.Equal(t, int64(2), comment.AuthorID)

	t.Run("empty content rejected", func(t *testing.T) {
		_, err := env.svc.AddComment(asUser(2), post.ID, "")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("commenting on a missing post", func(t *testing.T) {
		_, err := env.svc.AddComment(asUser(2), 9999, "hello")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("only the author deletes", func(t *testing.T) {
		err := env.svc.DeleteComment(asUser(3), comment.ID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))

		require.NoError(t, env.svc.DeleteComment(asUser(2), comment.ID))

		_, comments, err := env.svc.GetPost(context.Background(), post.ID)
		require.NoError(t, err)
		assert.Empty(t, comments)
	})
}

func TestImages(t *testing.T) {
	env := newTestEnv(t)

	t.Run("round trip", func(t *testing.T) {
		data := []byte{0x89, 'P', 'N', 'G'}
		id, err := env.svc.UploadImage(asUser(1), data)
		require.NoError(t, err)

		got, err := env.svc.GetImage(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, data, got)
	})

	t.Run("concurrent uploads get distinct ids", func(t *testing.T) {
		seen := make(chan int64, 8)
		for i := 0; i < 8; i++ {
			go func() {
				id, err := env.svc.UploadImage(asUser(1), []byte{1})
				assert.NoError(t, err)
				seen <- id
			}()
		}
		ids := make(map[int64]bool)
		for i := 0; i < 8; i++ {
			ids[<-seen] = true
		}
		assert.Len(t, ids, 8)
	})

	t.Run("empty and oversized uploads rejected", func(t *testing.T) {
		_, err := env.svc.UploadImage(asUser(1), nil)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

		_, err = env.svc.UploadImage(asUser(1), bytes.Repeat([]byte{1}, maxImageBytes+1))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

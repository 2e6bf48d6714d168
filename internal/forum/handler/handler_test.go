package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agora/internal/forum/models"
	"agora/internal/forum/service"
	"agora/internal/forum/store/memory"
	"agora/pkg/requestcontext"
)

// asUser simulates the session authenticator by injecting a user id.
func asUser(id int64, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(requestcontext.WithUserID(r.Context(), id)))
	})
}

func newTestRouter(t *testing.T) *service.Service {
	t.Helper()
	return service.New(memory.New(), memory.NewImageStore(), slog.Default())
}

func do(t *testing.T, handler http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func createSellPost(t *testing.T, router http.Handler) int64 {
	t.Helper()
	price := int32(100)
	goods := "book"
	rec := do(t, router, http.MethodPost, "/posts", mustJSON(t, models.NewPost{
		Type:      models.PostSell,
		Title:     "textbook",
		Content:   "barely used",
		Price:     &price,
		GoodsType: &goods,
	}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created models.Post
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	return created.ID
}

func TestPostLifecycleOverHTTP(t *testing.T) {
	svc := newTestRouter(t)
	alice := asUser(1, New(svc, slog.Default()).Routes())
	bob := asUser(2, New(svc, slog.Default()).Routes())

	postID := createSellPost(t, alice)

	t.Run("comment and fetch", func(t *testing.T) {
		rec := do(t, bob, http.MethodPost, fmt.Sprintf("/posts/%d/comments", postID),
			[]byte(`{"content":"is it available?"}`))
		require.Equal(t, http.StatusCreated, rec.Code)

		rec = do(t, bob, http.MethodGet, fmt.Sprintf("/posts/%d", postID), nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Post     models.Post      `json:"post"`
			Comments []models.Comment `json:"comments"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, postID, resp.Post.ID)
		require.Len(t, resp.Comments, 1)
		assert.Equal(t, int64(2), resp.Comments[0].AuthorID)
	})

	t.Run("reactions", func(t *testing.T) {
		rec := do(t, bob, http.MethodPost, fmt.Sprintf("/posts/%d/like", postID), nil)
		require.Equal(t, http.StatusNoContent, rec.Code)

		rec = do(t, bob, http.MethodGet, fmt.Sprintf("/posts/%d", postID), nil)
		var resp struct {
			Post models.Post `json:"post"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, int64(1), resp.Post.Likes)

		rec = do(t, bob, http.MethodDelete, fmt.Sprintf("/posts/%d/like", postID), nil)
		require.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("sold by non-author is forbidden", func(t *testing.T) {
		rec := do(t, bob, http.MethodPost, fmt.Sprintf("/posts/%d/sold", postID), nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("sold by author hides the listing", func(t *testing.T) {
		rec := do(t, alice, http.MethodPost, fmt.Sprintf("/posts/%d/sold", postID), nil)
		require.Equal(t, http.StatusNoContent, rec.Code)

		rec = do(t, alice, http.MethodGet, "/posts?type=SELL", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var resp struct {
			Posts []models.Post `json:"posts"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Empty(t, resp.Posts)
	})

	t.Run("delete by non-author is forbidden", func(t *testing.T) {
		rec := do(t, bob, http.MethodDelete, fmt.Sprintf("/posts/%d", postID), nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("delete by author", func(t *testing.T) {
		rec := do(t, alice, http.MethodDelete, fmt.Sprintf("/posts/%d", postID), nil)
		require.Equal(t, http.StatusNoContent, rec.Code)

		rec = do(t, alice, http.MethodGet, fmt.Sprintf("/posts/%d", postID), nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestListFiltersFromQuery(t *testing.T) {
	svc := newTestRouter(t)
	router := asUser(1, New(svc, slog.Default()).Routes())

	game := "mahjong"
	people := int32(4)
	rec := do(t, router, http.MethodPost, "/posts", mustJSON(t, models.NewPost{
		Type:      models.PostAmusement,
		Title:     "mahjong night",
		Content:   "east gate",
		GameType:  &game,
		PeopleAll: &people,
	}))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, router, http.MethodGet, "/posts?type=AMUSEMENT&game_type=mahjong&people_all_max=4", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Posts []models.Post `json:"posts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Posts, 1)

	rec = do(t, router, http.MethodGet, "/posts?type=AMUSEMENT&game_type=chess", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Posts)

	rec = do(t, router, http.MethodGet, "/posts?people_all_max=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPersonalListing(t *testing.T) {
	svc := newTestRouter(t)
	alice := asUser(1, New(svc, slog.Default()).Routes())
	bob := asUser(2, New(svc, slog.Default()).Routes())

	postID := createSellPost(t, alice)
	rec := do(t, bob, http.MethodPost, fmt.Sprintf("/posts/%d/favorite", postID), nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, bob, http.MethodGet, "/posts/mine?relation=favorited", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Posts []models.Post `json:"posts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Posts, 1)
	assert.Equal(t, postID, resp.Posts[0].ID)

	rec = do(t, bob, http.MethodGet, "/posts/mine", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Posts, "default relation is own posts")
}

func TestImageEndpoints(t *testing.T) {
	svc := newTestRouter(t)
	router := asUser(1, New(svc, slog.Default()).Routes())

	payload := append([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, bytes.Repeat([]byte{0}, 32)...)
	rec := do(t, router, http.MethodPost, "/images", payload)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		ID int64 `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotZero(t, created.ID)

	rec = do(t, router, http.MethodGet, fmt.Sprintf("/images/%d", created.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, payload, rec.Body.Bytes())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	rec = do(t, router, http.MethodGet, "/images/9999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodGet, "/images/not-a-number", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// Package handler exposes the forum service over HTTP. All routes assume
// the session authenticator already ran; the session user id is read from
// the request context.
package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"agora/internal/forum/models"
	"agora/internal/forum/service"
	dErrors "agora/pkg/domain-errors"
	"agora/pkg/requestcontext"
)

// maxImageUpload bounds how much of an upload body is read. One byte above
// the service cap, so oversized uploads still fail validation rather than
// silently truncating.
const maxImageUpload = (5 << 20) + 1

// Handler translates HTTP requests into forum service calls.
type Handler struct {
	svc    *service.Service
	logger *slog.Logger
}

// New creates a forum handler.
func New(svc *service.Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the forum endpoints.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/posts", func(r chi.Router) {
		r.Post("/", h.createPost)
		r.Get("/", h.listPosts)
		r.Get("/mine", h.listPersonal)

		r.Route("/{postID}", func(r chi.Router) {
			r.Get("/", h.getPost)
			r.Delete("/", h.deletePost)
			r.Post("/comments", h.addComment)
			r.Post("/sold", h.setSold)

			r.Post("/like", h.react(models.ReactionLike))
			r.Delete("/like", h.unreact(models.ReactionLike))
			r.Post("/favorite", h.react(models.ReactionFavorite))
			r.Delete("/favorite", h.unreact(models.ReactionFavorite))
			r.Post("/participants", h.react(models.ReactionParticipant))
			r.Delete("/participants", h.unreact(models.ReactionParticipant))
		})
	})

	r.Delete("/comments/{commentID}", h.deleteComment)

	r.Post("/images", h.uploadImage)
	r.Get("/images/{imageID}", h.getImage)

	return r
}

func (h *Handler) createPost(w http.ResponseWriter, r *http.Request) {
	var post models.NewPost
	if err := json.NewDecoder(r.Body).Decode(&post); err != nil {
		h.writeError(r.Context(), w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	created, err := h.svc.CreatePost(r.Context(), post)
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	h.writeJSON(r.Context(), w, http.StatusCreated, created)
}

func (h *Handler) getPost(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "postID")
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}

	post, comments, err := h.svc.GetPost(r.Context(), id)
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	h.writeJSON(r.Context(), w, http.StatusOK, map[string]any{
		"post":     post,
		"comments": comments,
	})
}

func (h *Handler) deletePost(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "postID")
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}

	if err := h.svc.DeletePost(r.Context(), id); err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listPosts(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}

	posts, err := h.svc.ListPosts(r.Context(), filter)
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	h.writeJSON(r.Context(), w, http.StatusOK, map[string]any{"posts": posts})
}

func (h *Handler) listPersonal(w http.ResponseWriter, r *http.Request) {
	relation := models.Relation(r.URL.Query().Get("relation"))
	if relation == "" {
		relation = models.RelationOwn
	}
	limit, err := queryInt32(r, "limit")
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}

	var n int32
	if limit != nil {
		n = *limit
	}
	posts, err := h.svc.ListPersonal(r.Context(), relation, n)
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	h.writeJSON(r.Context(), w, http.StatusOK, map[string]any{"posts": posts})
}

func (h *Handler) addComment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "postID")
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}

	var body struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(r.Context(), w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	comment, err := h.svc.AddComment(r.Context(), id, body.Content)
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	h.writeJSON(r.Context(), w, http.StatusCreated, comment)
}

func (h *Handler) deleteComment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "commentID")
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}

	if err := h.svc.DeleteComment(r.Context(), id); err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) react(kind models.ReactionKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "postID")
		if err != nil {
			h.writeError(r.Context(), w, err)
			return
		}
		if err := h.svc.React(r.Context(), id, kind); err != nil {
			h.writeError(r.Context(), w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) unreact(kind models.ReactionKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "postID")
		if err != nil {
			h.writeError(r.Context(), w, err)
			return
		}
		if err := h.svc.Unreact(r.Context(), id, kind); err != nil {
			h.writeError(r.Context(), w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) setSold(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "postID")
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}

	if err := h.svc.SetSold(r.Context(), id); err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) uploadImage(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxImageUpload))
	if err != nil {
		h.writeError(r.Context(), w, dErrors.New(dErrors.CodeBadRequest, "unreadable request body"))
		return
	}

	id, err := h.svc.UploadImage(r.Context(), data)
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	h.writeJSON(r.Context(), w, http.StatusCreated, map[string]int64{"id": id})
}

func (h *Handler) getImage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "imageID")
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}

	data, err := h.svc.GetImage(r.Context(), id)
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, dErrors.New(dErrors.CodeBadRequest, "invalid id")
	}
	return id, nil
}

func queryInt32(r *http.Request, name string) (*int32, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "invalid "+name)
	}
	v := int32(n)
	return &v, nil
}

func parseFilter(r *http.Request) (models.PostFilter, error) {
	q := r.URL.Query()
	filter := models.PostFilter{
		Type:      models.PostType(q.Get("type")),
		GameType:  q.Get("game_type"),
		FoodPlace: q.Get("food_place"),
		GoodsType: q.Get("goods_type"),
	}

	for name, dst := range map[string]**int32{
		"people_all_min": &filter.PeopleAllMin,
		"people_all_max": &filter.PeopleAllMax,
		"people_gap_max": &filter.PeopleGapMax,
		"score_min":      &filter.ScoreMin,
		"price_max":      &filter.PriceMax,
	} {
		v, err := queryInt32(r, name)
		if err != nil {
			return models.PostFilter{}, err
		}
		*dst = v
	}

	if raw := q.Get("starts_after"); raw != "" {
		unix, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return models.PostFilter{}, dErrors.New(dErrors.CodeBadRequest, "invalid starts_after")
		}
		t := time.Unix(unix, 0).UTC()
		filter.StartsAfter = &t
	}

	if limit, err := queryInt32(r, "limit"); err != nil {
		return models.PostFilter{}, err
	} else if limit != nil {
		filter.Limit = *limit
	}

	return filter, nil
}

func (h *Handler) writeJSON(ctx context.Context, w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.ErrorContext(ctx, "response encoding failed",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status := dErrors.ToHTTPStatus(code)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, "request failed",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": dErrors.MessageOf(err),
		"code":  string(code),
	})
}

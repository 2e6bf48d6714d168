// Package handler exposes the auth service over HTTP.
package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"agora/internal/auth/models"
	dErrors "agora/pkg/domain-errors"
	"agora/pkg/requestcontext"
)

// AuthService is the orchestrator surface the handler depends on.
type AuthService interface {
	Login(ctx context.Context, req models.LoginRequest) (*models.LoginResult, error)
	Register(ctx context.Context, req models.RegisterRequest) (*models.RegisterResult, error)
	Logout(ctx context.Context, opaque []byte) error
}

// Handler translates HTTP requests into auth service calls.
type Handler struct {
	svc    AuthService
	logger *slog.Logger
}

// New creates an auth handler.
func New(svc AuthService, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the auth endpoints. None of them require a session; logout
// authenticates by the token it revokes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/login", h.login)
	r.Post("/register", h.register)
	r.Post("/logout", h.logout)
	return r
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(r.Context(), w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	// Gateway clients may assert the caller IP themselves; everyone else gets
	// the connection's address as captured by the middleware.
	if req.IPAddress == "" {
		req.IPAddress = requestcontext.ClientIP(r.Context())
	}

	result, err := h.svc.Login(r.Context(), req)
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	h.writeJSON(r.Context(), w, http.StatusOK, result)
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(r.Context(), w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	result, err := h.svc.Register(r.Context(), req)
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	h.writeJSON(r.Context(), w, http.StatusCreated, result)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	header := r.Header.Get("Authorization")
	encoded, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		h.writeError(r.Context(), w, dErrors.New(dErrors.CodeUnauthorized, "missing session token"))
		return
	}
	opaque, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(opaque) == 0 {
		h.writeError(r.Context(), w, dErrors.New(dErrors.CodeUnauthorized, "invalid session token"))
		return
	}

	if err := h.svc.Logout(r.Context(), opaque); err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
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

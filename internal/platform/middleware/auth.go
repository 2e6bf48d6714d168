package middleware

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"agora/internal/auth/store/revocation"
	"agora/internal/auth/token"
	"agora/internal/platform/metrics"
	"agora/pkg/requestcontext"
)

// RevocationChecker answers whether a token digest has been revoked. A nil
// checker disables the lookup (deployments without Redis).
type RevocationChecker interface {
	IsRevoked(ctx context.Context, digest string) (bool, error)
}

// Authenticator gates protected routes on a valid session token. The token
// travels base64-encoded in the Authorization header (the opaque bytes are
// raw ciphertext, headers are text); the authenticator decodes, decrypts,
// signature-checks, and expiry-checks it, then stores the user id in the
// request context.
type Authenticator struct {
	codec   *token.Codec
	revoked RevocationChecker
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewAuthenticator builds the session authenticator. revoked may be nil.
func NewAuthenticator(codec *token.Codec, revoked RevocationChecker, m *metrics.Metrics, logger *slog.Logger) *Authenticator {
	return &Authenticator{codec: codec, revoked: revoked, metrics: m, logger: logger}
}

// RequireSession wraps a handler so it only runs for authenticated requests.
func (a *Authenticator) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		opaque, reason := extractToken(r)
		if reason != "" {
			a.reject(ctx, w, reason)
			return
		}

		claims, err := a.codec.Validate(opaque)
		if err != nil {
			a.reject(ctx, w, rejectionReason(err))
			return
		}

		if claims.ExpiredAt(requestcontext.Now(ctx)) {
			a.reject(ctx, w, "expired")
			return
		}

		if a.revoked != nil {
			revoked, err := a.revoked.IsRevoked(ctx, revocation.Digest(opaque))
			if err != nil {
				// Fail closed: an unanswerable revocation check must not
				// admit a possibly revoked session.
				a.logger.ErrorContext(ctx, "revocation check failed",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				writeAuthError(w, http.StatusServiceUnavailable, "session verification unavailable")
				return
			}
			if revoked {
				a.reject(ctx, w, "revoked")
				return
			}
		}

		userID, err := strconv.ParseInt(claims.Audience, 10, 64)
		if err != nil || userID <= 0 {
			a.reject(ctx, w, "claims")
			return
		}

		next.ServeHTTP(w, r.WithContext(requestcontext.WithUserID(ctx, userID)))
	})
}

// extractToken pulls the raw token bytes out of the Authorization header.
// The second return is the rejection reason, empty on success.
func extractToken(r *http.Request) ([]byte, string) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, "missing"
	}
	encoded, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return nil, "malformed"
	}
	opaque, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(opaque) == 0 {
		return nil, "encoding"
	}
	return opaque, ""
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, token.ErrDecrypt):
		return "decrypt"
	case errors.Is(err, token.ErrInvalidSignature):
		return "signature"
	default:
		return "malformed"
	}
}

func (a *Authenticator) reject(ctx context.Context, w http.ResponseWriter, reason string) {
	a.metrics.RecordTokenRejection(reason)
	a.logger.WarnContext(ctx, "session token rejected",
		"reason", reason,
		"request_id", requestcontext.RequestID(ctx),
	)
	// Every rejection reads the same to the caller; the reason stays in logs
	// and metrics.
	writeAuthError(w, http.StatusUnauthorized, "unauthenticated")
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + message + `"}`))
}

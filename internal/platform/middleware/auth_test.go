package middleware

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agora/internal/auth/store/revocation"
	"agora/internal/auth/token"
	"agora/internal/platform/metrics"
	"agora/pkg/requestcontext"
)

var testMetrics = metrics.New()

type stubRevocation struct {
	revoked map[string]bool
	err     error
}

func (s *stubRevocation) IsRevoked(_ context.Context, digest string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.revoked[digest], nil
}

func testCodec(opts ...token.Option) *token.Codec {
	var key [32]byte
	var iv [16]byte
	copy(key[:], "0123456789abcdef0123456789abcdef")
	copy(iv[:], "fedcba9876543210")
	return token.New([]byte("unit-test-secret"), key, iv, time.Hour, "agora server", opts...)
}

// echoUserID records the authenticated user id the middleware injected.
func echoUserID(captured *int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*captured = requestcontext.UserID(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func bearer(opaque []byte) string {
	return "Bearer " + base64.StdEncoding.EncodeToString(opaque)
}

func TestRequireSessionAdmitsValidToken(t *testing.T) {
	codec := testCodec()
	auth := NewAuthenticator(codec, nil, testMetrics, slog.Default())

	opaque, err := codec.Issue("42", "alice@example.edu")
	require.NoError(t, err)

	var gotUserID int64
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/posts", nil)
	req.Header.Set("Authorization", bearer(opaque))

	auth.RequireSession(echoUserID(&gotUserID)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(42), gotUserID)
}

func TestRequireSessionRejections(t *testing.T) {
	codec := testCodec()
	otherCodec := token.New([]byte("different-secret"),
		[32]byte{1}, [16]byte{2}, time.Hour, "agora server")

	valid, err := codec.Issue("42", "")
	require.NoError(t, err)
	foreign, err := otherCodec.Issue("42", "")
	require.NoError(t, err)

	tampered := make([]byte, len(valid))
	copy(tampered, valid)
	tampered[len(tampered)/2] ^= 0x01

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic dXNlcjpwdw=="},
		{"not base64", "Bearer %%%not-base64%%%"},
		{"empty token", "Bearer " + base64.StdEncoding.EncodeToString(nil)},
		{"wrong key material", bearer(foreign)},
		{"tampered ciphertext", bearer(tampered)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := NewAuthenticator(codec, nil, testMetrics, slog.Default())

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/posts", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			var gotUserID int64
			auth.RequireSession(echoUserID(&gotUserID)).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Zero(t, gotUserID, "handler must not run for rejected tokens")
		})
	}
}

func TestRequireSessionExpiry(t *testing.T) {
	issuedAt := time.Unix(1_700_000_000, 0)
	codec := testCodec(token.WithClock(func() time.Time { return issuedAt }))
	auth := NewAuthenticator(codec, nil, testMetrics, slog.Default())

	opaque, err := codec.Issue("42", "")
	require.NoError(t, err)

	tests := []struct {
		name string
		now  time.Time
		want int
	}{
		{"fresh", issuedAt.Add(time.Minute), http.StatusOK},
		{"last valid second", issuedAt.Add(time.Hour - time.Second), http.StatusOK},
		{"exact boundary", issuedAt.Add(time.Hour), http.StatusUnauthorized},
		{"past expiry", issuedAt.Add(2 * time.Hour), http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/posts", nil)
			req = req.WithContext(requestcontext.WithTime(req.Context(), tt.now))
			req.Header.Set("Authorization", bearer(opaque))

			var gotUserID int64
			auth.RequireSession(echoUserID(&gotUserID)).ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestRequireSessionRevocation(t *testing.T) {
	codec := testCodec()
	opaque, err := codec.Issue("42", "")
	require.NoError(t, err)

	t.Run("revoked token rejected", func(t *testing.T) {
		sum := revocation.Digest(opaque)
		auth := NewAuthenticator(codec, &stubRevocation{revoked: map[string]bool{sum: true}}, testMetrics, slog.Default())

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/posts", nil)
		req.Header.Set("Authorization", bearer(opaque))

		var gotUserID int64
		auth.RequireSession(echoUserID(&gotUserID)).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("checker failure fails closed", func(t *testing.T) {
		auth := NewAuthenticator(codec, &stubRevocation{err: errors.New("redis down")}, testMetrics, slog.Default())

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/posts", nil)
		req.Header.Set("Authorization", bearer(opaque))

		var gotUserID int64
		auth.RequireSession(echoUserID(&gotUserID)).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Zero(t, gotUserID)
	})
}

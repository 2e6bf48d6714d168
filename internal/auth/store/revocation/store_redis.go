// Package revocation tracks session tokens revoked before their natural
// expiry (logout). Session claims carry no token id, so entries are keyed by
// a SHA-256 digest of the opaque token bytes; keys expire with the token's
// remaining lifetime, keeping the list self-cleaning.
package revocation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var isRevokedDurationMs = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "agora_is_token_revoked_duration_ms",
	Help:    "Latency of token revocation checks in milliseconds",
	Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
})

// Redis key prefix for revoked tokens.
const revokedTokenKeyPrefix = "trl:tok:"

// Digest derives the revocation-list key for an opaque token.
func Digest(opaque []byte) string {
	sum := sha256.Sum256(opaque)
	return hex.EncodeToString(sum[:])
}

// RedisTRL is a Redis-backed token revocation list shared by all instances
// of the service.
type RedisTRL struct {
	client *redis.Client
}

// NewRedisTRL constructs a Redis-backed token revocation list.
func NewRedisTRL(client *redis.Client) *RedisTRL {
	return &RedisTRL{client: client}
}

// Revoke adds a token digest to the revocation list for ttl. Uses SET with
// expiry for an atomic set-with-TTL.
func (t *RedisTRL) Revoke(ctx context.Context, digest string, ttl time.Duration) error {
	if digest == "" || ttl <= 0 {
		return nil
	}
	// Store "1" as a marker; key existence is what matters.
	return t.client.Set(ctx, revokedTokenKeyPrefix+digest, "1", ttl).Err()
}

// IsRevoked checks whether a token digest is in the revocation list.
// Returns false when the key does not exist (not revoked, or expired).
func (t *RedisTRL) IsRevoked(ctx context.Context, digest string) (bool, error) {
	start := time.Now()
	defer func() {
		isRevokedDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	if digest == "" {
		return false, nil
	}
	_, err := t.client.Get(ctx, revokedTokenKeyPrefix+digest).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

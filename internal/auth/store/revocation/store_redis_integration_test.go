//go:build integration

package revocation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agora/pkg/testutil/containers"
)

func TestRedisTRL(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	trl := NewRedisTRL(rc.Client)
	ctx := context.Background()

	t.Run("unknown digest is not revoked", func(t *testing.T) {
		revoked, err := trl.IsRevoked(ctx, Digest([]byte("never seen")))
		require.NoError(t, err)
		assert.False(t, revoked)
	})

	t.Run("revoked digest is found", func(t *testing.T) {
		digest := Digest([]byte("session one"))
		require.NoError(t, trl.Revoke(ctx, digest, time.Minute))

		revoked, err := trl.IsRevoked(ctx, digest)
		require.NoError(t, err)
		assert.True(t, revoked)
	})

	t.Run("entries expire with the token", func(t *testing.T) {
		digest := Digest([]byte("session two"))
		require.NoError(t, trl.Revoke(ctx, digest, 500*time.Millisecond))

		revoked, err := trl.IsRevoked(ctx, digest)
		require.NoError(t, err)
		require.True(t, revoked)

		time.Sleep(time.Second)

		revoked, err = trl.IsRevoked(ctx, digest)
		require.NoError(t, err)
		assert.False(t, revoked, "the list is self-cleaning")
	})

	t.Run("non-positive ttl is a no-op", func(t *testing.T) {
		digest := Digest([]byte("already expired"))
		require.NoError(t, trl.Revoke(ctx, digest, 0))

		revoked, err := trl.IsRevoked(ctx, digest)
		require.NoError(t, err)
		assert.False(t, revoked)
	})
}

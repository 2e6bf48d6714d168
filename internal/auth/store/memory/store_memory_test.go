package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agora/internal/auth/models"
	"agora/pkg/sentinel"
)

func TestInsertAndFind(t *testing.T) {
	store := New()
	ctx := context.Background()

	created, err := store.Insert(ctx, models.NewUser{Username: "alice", Provider: models.ProviderPassword, Nickname: "alice"})
	require.NoError(t, err)
	require.NotZero(t, created.ID)

	found, err := store.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	// Returned records are clones; mutating one must not leak into the store.
	found.Nickname = "mallory"
	again, err := store.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", again.Nickname)

	_, err = store.FindByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestConcurrentInsertsConflictOnce(t *testing.T) {
	store := New()
	const workers = 16

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = store.Insert(context.Background(), models.NewUser{
				Username: "2100012345",
				Provider: models.ProviderSSO,
			})
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, sentinel.ErrConflict)
		}
	}
	assert.Equal(t, 1, winners, "exactly one insert wins the race")
}

func TestUpdate(t *testing.T) {
	store := New()
	ctx := context.Background()

	alice, err := store.Insert(ctx, models.NewUser{Username: "alice", Provider: models.ProviderPassword})
	require.NoError(t, err)
	_, err = store.Insert(ctx, models.NewUser{Username: "bob", Provider: models.ProviderPassword})
	require.NoError(t, err)

	alice.Nickname = "al"
	require.NoError(t, store.Update(ctx, alice))
	assert.NotNil(t, alice.UpdatedAt)

	alice.Username = "bob"
	assert.ErrorIs(t, store.Update(ctx, alice), sentinel.ErrConflict)

	ghost := &models.User{ID: 999, Username: "ghost"}
	assert.ErrorIs(t, store.Update(ctx, ghost), sentinel.ErrNotFound)
}

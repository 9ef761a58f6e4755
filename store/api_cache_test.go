package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/legit-games/eveauth/errors"
	"github.com/legit-games/eveauth/models"
	"github.com/legit-games/eveauth/store"
)

func TestAPICacheStore(t *testing.T) {
	ctx := context.Background()
	cache, err := store.NewAPICacheStore(":memory:")
	require.NoError(t, err)
	defer cache.Close()

	v := &models.CachedAPIValue{
		KeyID:     12,
		Name:      "char/WalletJournal",
		Arguments: "abc",
		Result:    map[string]any{"balance": "1.00"},
		Expires:   time.Now().Add(time.Minute),
	}
	require.NoError(t, cache.Put(ctx, v))

	got, err := cache.Get(ctx, 12, "char/WalletJournal", "abc")
	require.NoError(t, err)
	require.Equal(t, "1.00", got.Result["balance"])

	_, err = cache.Get(ctx, 0, "char/WalletJournal", "abc")
	require.ErrorIs(t, err, errors.ErrNotFound)

	stale := *v
	stale.Arguments = "old"
	stale.Expires = time.Now().Add(-time.Second)
	require.NoError(t, cache.Put(ctx, &stale))
	_, err = cache.Get(ctx, 12, "char/WalletJournal", "old")
	require.ErrorIs(t, err, errors.ErrNotFound)

	require.NoError(t, cache.Purge(ctx, 12))
	_, err = cache.Get(ctx, 12, "char/WalletJournal", "abc")
	require.ErrorIs(t, err, errors.ErrNotFound)
}

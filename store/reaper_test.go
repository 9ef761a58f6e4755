package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/legit-games/eveauth/errors"
	"github.com/legit-games/eveauth/models"
	"github.com/legit-games/eveauth/store"
	"github.com/legit-games/eveauth/store/storetest"
)

func TestReaperPass(t *testing.T) {
	ctx := context.Background()
	db := storetest.NewDB(t)
	r := &store.Reaper{
		Credentials:  store.NewCredentialStore(db, models.KeyPolicy{}),
		Grants:       store.NewGrantStore(db),
		Requests:     store.NewAuthRequestStore(db),
		Codes:        store.NewAuthorizationCodeStore(db),
		LoginHistory: store.NewLoginHistoryStore(db),
		HistoryTTL:   24 * time.Hour,
		Now:          func() time.Time { return time.Now().Add(48 * time.Hour) },
	}

	soon := time.Now().Add(time.Hour)
	require.NoError(t, r.Credentials.Create(ctx, &models.Credential{KeyID: 1, OwnerID: "u", Expires: &soon}))
	require.NoError(t, r.Grants.Create(ctx, &models.ApplicationGrant{UserID: "u", ApplicationID: "a", Expires: soon}))
	require.NoError(t, r.Requests.Create(ctx, &models.AuthenticationRequest{ApplicationID: "a", Success: "s", Failure: "f", Expires: soon}))
	require.NoError(t, r.Codes.Create(ctx, &models.AuthorizationCode{Code: "c", ApplicationID: "a", UserID: "u", Expires: soon}))
	require.NoError(t, r.LoginHistory.Record(ctx, "u", true, "", ""))

	got := r.Reap(ctx)
	require.Equal(t, map[string]int64{
		"credentials":             1,
		"application_grants":      1,
		"authentication_requests": 1,
		"authorization_codes":     1,
		"login_history":           1,
	}, got)
}

func TestReaperPurgesCacheOfExpiredCredentials(t *testing.T) {
	ctx := context.Background()
	db := storetest.NewDB(t)
	cache, err := store.NewAPICacheStore(":memory:")
	require.NoError(t, err)
	defer cache.Close()

	creds := store.NewCredentialStore(db, models.KeyPolicy{})
	r := &store.Reaper{
		Credentials: creds,
		Cache:       cache,
		Now:         func() time.Time { return time.Now().Add(48 * time.Hour) },
	}

	soon := time.Now().Add(time.Hour)
	later := time.Now().Add(96 * time.Hour)
	require.NoError(t, creds.Create(ctx, &models.Credential{KeyID: 7, OwnerID: "u", Expires: &soon}))
	require.NoError(t, creds.Create(ctx, &models.Credential{KeyID: 8, OwnerID: "u", Expires: &later}))
	for _, k := range []int64{7, 8} {
		require.NoError(t, cache.Put(ctx, &models.CachedAPIValue{
			KeyID: k, Name: "char/WalletJournal", Arguments: "a",
			Result: map[string]any{"x": "1"}, Expires: time.Now().Add(time.Hour),
		}))
	}

	got := r.Reap(ctx)
	require.Equal(t, map[string]int64{"credentials": 1}, got)

	_, err = cache.Get(ctx, 7, "char/WalletJournal", "a")
	require.ErrorIs(t, err, errors.ErrNotFound)
	_, err = cache.Get(ctx, 8, "char/WalletJournal", "a")
	require.NoError(t, err)

	// a second pass finds nothing left to delete
	require.Equal(t, map[string]int64{"credentials": 0}, r.Reap(ctx))
}

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

func strptr(s string) *string { return &s }

func TestGrantStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	grants := store.NewGrantStore(storetest.NewDB(t))

	live := &models.ApplicationGrant{
		UserID:        "u1",
		ApplicationID: "app",
		Characters:    models.Int64List{90000001},
		Mask:          0x80,
		AccessToken:   strptr("ACCESS-TOKEN-0123456789ABCDEFG"),
		RefreshToken:  strptr("REFRESH-TOKEN-0123456789ABCDEF"),
		Expires:       time.Now().Add(time.Hour),
	}
	require.NoError(t, grants.Create(ctx, live))
	require.NotEmpty(t, live.ID)

	got, err := grants.Get(ctx, live.ID, "app")
	require.NoError(t, err)
	require.Equal(t, models.Int64List{90000001}, got.Characters)

	_, err = grants.Get(ctx, live.ID, "other-app")
	require.ErrorIs(t, err, errors.ErrNotFound)

	got, err = grants.ByAccessToken(ctx, "ACCESS-TOKEN-0123456789ABCDEFG", "app")
	require.NoError(t, err)
	require.Equal(t, live.ID, got.ID)

	got, err = grants.ForUser(ctx, "u1", "app")
	require.NoError(t, err)
	require.Equal(t, live.ID, got.ID)

	expired := &models.ApplicationGrant{UserID: "u1", ApplicationID: "app", Expires: time.Now().Add(-time.Minute)}
	require.NoError(t, grants.Create(ctx, expired))
	_, err = grants.Get(ctx, expired.ID, "app")
	require.ErrorIs(t, err, errors.ErrNotFound)

	n, err := grants.DeleteExpired(ctx, time.Now())
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	ok, err := grants.RevokeToken(ctx, "app", "REFRESH-TOKEN-0123456789ABCDEF", "")
	require.NoError(t, err)
	require.True(t, ok)
	_, err = grants.ByRefreshToken(ctx, "REFRESH-TOKEN-0123456789ABCDEF", "app")
	require.ErrorIs(t, err, errors.ErrNotFound)

	ok, err = grants.Delete(ctx, live.ID, "app")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = grants.Delete(ctx, live.ID, "app")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGrantTokenUniquePerApplication(t *testing.T) {
	ctx := context.Background()
	grants := store.NewGrantStore(storetest.NewDB(t))
	exp := time.Now().Add(time.Hour)

	require.NoError(t, grants.Create(ctx, &models.ApplicationGrant{UserID: "u", ApplicationID: "a", AccessToken: strptr("T"), Expires: exp}))
	require.NoError(t, grants.Create(ctx, &models.ApplicationGrant{UserID: "u", ApplicationID: "b", AccessToken: strptr("T"), Expires: exp}))
	err := grants.Create(ctx, &models.ApplicationGrant{UserID: "u", ApplicationID: "a", AccessToken: strptr("T"), Expires: exp})
	require.ErrorIs(t, err, errors.ErrConflict)
}

func TestAuthorizationCodeSingleUse(t *testing.T) {
	ctx := context.Background()
	codes := store.NewAuthorizationCodeStore(storetest.NewDB(t))

	require.NoError(t, codes.Create(ctx, &models.AuthorizationCode{
		Code: "c1", ApplicationID: "A", UserID: "U", RedirectURI: "https://rp.example/cb",
		Scopes: models.StringList{"Alice"}, Expires: time.Now().Add(10 * time.Minute),
	}))

	c, err := codes.Take(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, models.StringList{"Alice"}, c.Scopes)

	_, err = codes.Take(ctx, "c1")
	require.ErrorIs(t, err, errors.ErrNotFound)

	require.NoError(t, codes.Create(ctx, &models.AuthorizationCode{Code: "old", ApplicationID: "A", UserID: "U", Expires: time.Now().Add(-time.Second)}))
	_, err = codes.Take(ctx, "old")
	require.ErrorIs(t, err, errors.ErrNotFound)
}

func TestAuthRequestExpiry(t *testing.T) {
	ctx := context.Background()
	reqs := store.NewAuthRequestStore(storetest.NewDB(t))

	r := &models.AuthenticationRequest{ApplicationID: "A", Success: "https://a/s", Failure: "https://a/f", Expires: time.Now().Add(10 * time.Minute)}
	require.NoError(t, reqs.Create(ctx, r))

	got, err := reqs.Get(ctx, r.ID)
	require.NoError(t, err)
	got.GrantID = strptr("g1")
	require.NoError(t, reqs.Update(ctx, got))

	got, err = reqs.Get(ctx, r.ID)
	require.NoError(t, err)
	require.Equal(t, "g1", *got.GrantID)

	old := &models.AuthenticationRequest{ApplicationID: "A", Success: "s", Failure: "f", Expires: time.Now().Add(-time.Minute)}
	require.NoError(t, reqs.Create(ctx, old))
	_, err = reqs.Get(ctx, old.ID)
	require.ErrorIs(t, err, errors.ErrNotFound)
}

package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/legit-games/eveauth/errors"
	"github.com/legit-games/eveauth/models"
	"github.com/legit-games/eveauth/store"
	"github.com/legit-games/eveauth/store/storetest"
)

func TestGroupRenamePreservesEverything(t *testing.T) {
	ctx := context.Background()
	db := storetest.NewDB(t)
	groups := store.NewGroupStore(db)
	cats := store.NewCategoryStore(db)
	apps := store.NewApplicationStore(db)
	cache := store.NewMembershipCacheStore(db)

	old := &models.Group{
		ID:                "pilots",
		Title:             "Pilots",
		Rules:             models.RuleSet{{Kind: models.RuleVerySecure, Grant: true}},
		ManualJoinMembers: models.Int64List{1, 2},
		RequestMembers:    models.Int64List{3},
		PendingRequests:   models.Int64List{4},
		Permissions:       models.StringList{"app.read"},
	}
	require.NoError(t, groups.Save(ctx, old))
	require.NoError(t, groups.Save(ctx, &models.Group{
		ID:        "fc",
		JoinRules: models.RuleSet{{Kind: models.RuleGroupMembership, Grant: true, Group: "pilots"}},
	}))
	require.NoError(t, cats.Save(ctx, &models.GroupCategory{ID: "fleet", Members: models.StringList{"pilots", "fc"}}))
	_, err := apps.Register(ctx, &models.Application{Name: "App", Short: "app", OwnerID: "u", Groups: models.StringList{"pilots"}})
	require.NoError(t, err)
	require.NoError(t, cache.Put(ctx, "pilots", models.RuleSetRules, 1, true))

	renamed, err := groups.Rename(ctx, "pilots", "capsuleers")
	require.NoError(t, err)
	require.Equal(t, "capsuleers", renamed.ID)

	_, err = groups.Get(ctx, "pilots")
	require.ErrorIs(t, err, errors.ErrNotFound)

	got, err := groups.Get(ctx, "capsuleers")
	require.NoError(t, err)
	require.Equal(t, models.Int64List{1, 2}, got.ManualJoinMembers)
	require.Equal(t, models.Int64List{3}, got.RequestMembers)
	require.Equal(t, models.Int64List{4}, got.PendingRequests)
	require.Equal(t, models.StringList{"app.read"}, got.Permissions)

	fc, err := groups.Get(ctx, "fc")
	require.NoError(t, err)
	require.Equal(t, "capsuleers", fc.JoinRules[0].Group)

	cat, err := cats.Get(ctx, "fleet")
	require.NoError(t, err)
	require.Equal(t, models.StringList{"capsuleers", "fc"}, cat.Members)

	app, err := apps.GetByShort(ctx, "app")
	require.NoError(t, err)
	require.Equal(t, models.StringList{"capsuleers"}, app.Groups)

	_, ok, err := cache.Get(ctx, "pilots", models.RuleSetRules, 1)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = groups.Rename(ctx, "fc", "capsuleers")
	require.ErrorIs(t, err, errors.ErrConflict)
}

func TestGroupReferencedByAndDelete(t *testing.T) {
	ctx := context.Background()
	db := storetest.NewDB(t)
	groups := store.NewGroupStore(db)
	cats := store.NewCategoryStore(db)

	require.NoError(t, groups.Save(ctx, &models.Group{ID: "g2"}))
	require.NoError(t, groups.Save(ctx, &models.Group{
		ID:    "g1",
		Rules: models.RuleSet{{Kind: models.RuleGroupMembership, Grant: true, Group: "g2"}},
	}))
	require.NoError(t, cats.Save(ctx, &models.GroupCategory{ID: "c", Members: models.StringList{"g1", "g2"}}))

	refs, err := groups.ReferencedBy(ctx, "g2")
	require.NoError(t, err)
	require.Equal(t, []string{"g1"}, refs)

	require.NoError(t, groups.Delete(ctx, "g1"))
	cat, err := cats.Get(ctx, "c")
	require.NoError(t, err)
	require.Equal(t, models.StringList{"g2"}, cat.Members)

	require.ErrorIs(t, groups.Delete(ctx, "g1"), errors.ErrNotFound)
}

func TestMembershipCache(t *testing.T) {
	ctx := context.Background()
	cache := store.NewMembershipCacheStore(storetest.NewDB(t))

	require.NoError(t, cache.Put(ctx, "g", models.RuleSetRules, 1, true))
	require.NoError(t, cache.Put(ctx, "g", models.RuleSetRules, 2, false))
	require.NoError(t, cache.Put(ctx, "g", models.RuleSetRules, 2, true))

	members, err := cache.Members(ctx, "g", models.RuleSetRules, true)
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2}, members)

	nonMembers, err := cache.Members(ctx, "g", models.RuleSetRules, false)
	require.NoError(t, err)
	require.Empty(t, nonMembers)

	require.NoError(t, cache.Invalidate(ctx, []string{"g"}))
	_, ok, err := cache.Get(ctx, "g", models.RuleSetRules, 1)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPermissionRegister(t *testing.T) {
	ctx := context.Background()
	perms := store.NewPermissionStore(storetest.NewDB(t))
	app := "app-1"

	require.NoError(t, perms.Register(ctx, &models.Permission{ID: "app.read", ApplicationID: &app}))
	require.ErrorIs(t, perms.Register(ctx, &models.Permission{ID: "app.read"}), errors.ErrConflict)

	list, err := perms.ForApplication(ctx, app)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

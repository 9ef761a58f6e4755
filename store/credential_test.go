package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/legit-games/eveauth/errors"
	"github.com/legit-games/eveauth/models"
	"github.com/legit-games/eveauth/store"
	"github.com/legit-games/eveauth/store/storetest"
)

func TestCredentialDeleteDetachesOrphans(t *testing.T) {
	ctx := context.Background()
	db := storetest.NewDB(t)
	creds := store.NewCredentialStore(db, models.KeyPolicy{})
	chars := store.NewCharacterStore(db)

	for _, c := range []*models.Character{{ID: 1, Name: "Alice"}, {ID: 2, Name: "Bob"}} {
		require.NoError(t, chars.Upsert(ctx, c))
		owner, err := chars.ClaimOwner(ctx, c.ID, "u1")
		require.NoError(t, err)
		require.Equal(t, "u1", owner)
	}
	require.NoError(t, creds.Create(ctx, &models.Credential{KeyID: 10, VCode: "v", OwnerID: "u1"}))
	require.NoError(t, creds.Create(ctx, &models.Credential{KeyID: 11, VCode: "v", OwnerID: "u1"}))
	require.NoError(t, creds.LinkCharacter(ctx, 10, 1))
	require.NoError(t, creds.LinkCharacter(ctx, 10, 2))
	require.NoError(t, creds.LinkCharacter(ctx, 11, 2))

	detached, err := creds.Delete(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, []int64{1}, detached)

	alice, err := chars.Get(ctx, 1)
	require.NoError(t, err)
	require.Nil(t, alice.OwnerID)
	bob, err := chars.Get(ctx, 2)
	require.NoError(t, err)
	require.True(t, bob.OwnedBy("u1"))

	_, err = creds.Delete(ctx, 10)
	require.ErrorIs(t, err, errors.ErrNotFound)
}

func TestCredentialSaveRecomputesViolation(t *testing.T) {
	ctx := context.Background()
	creds := store.NewCredentialStore(storetest.NewDB(t), models.KeyPolicy{RecommendedMask: 8, RecommendedKind: models.KeyAccount})

	c := &models.Credential{KeyID: 5, VCode: "v", OwnerID: "u", Kind: models.KeyCharacter, Mask: 1}
	require.NoError(t, creds.Create(ctx, c))
	require.Equal(t, models.ViolationMask, c.Violation)

	c.Mask = 9
	require.NoError(t, creds.Save(ctx, c))
	got, err := creds.Get(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, models.ViolationNone, got.Violation)

	require.ErrorIs(t, creds.Create(ctx, &models.Credential{KeyID: 5, VCode: "v", OwnerID: "u"}), errors.ErrConflict)
}

func TestCredentialDeleteExpired(t *testing.T) {
	ctx := context.Background()
	creds := store.NewCredentialStore(storetest.NewDB(t), models.KeyPolicy{})
	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	require.NoError(t, creds.Create(ctx, &models.Credential{KeyID: 1, OwnerID: "u", Expires: &past}))
	require.NoError(t, creds.Create(ctx, &models.Credential{KeyID: 2, OwnerID: "u", Expires: &future}))
	require.NoError(t, creds.Create(ctx, &models.Credential{KeyID: 3, OwnerID: "u"}))

	n, err := creds.DeleteExpired(ctx, time.Now())
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	ids, err := creds.KeyIDs(ctx)
	require.NoError(t, err)
	require.Equal(t, []int64{2, 3}, ids)
}

func TestCredentialDeleteExpiredSkipsConcurrentlyRemoved(t *testing.T) {
	ctx := context.Background()
	db := storetest.NewDB(t)
	creds := store.NewCredentialStore(db, models.KeyPolicy{})
	past := time.Now().Add(-time.Hour)
	require.NoError(t, creds.Create(ctx, &models.Credential{KeyID: 1, OwnerID: "u", Expires: &past}))
	require.NoError(t, creds.Create(ctx, &models.Credential{KeyID: 2, OwnerID: "u", Expires: &past}))

	// key 1 disappears between the expiry scan and its delete, as when the
	// refresher revokes it at the same moment.
	removed := false
	require.NoError(t, db.Callback().Query().After("gorm:query").Register("test:revoke_key_1", func(tx *gorm.DB) {
		if removed || tx.Statement.Table != "credentials" {
			return
		}
		removed = true
		require.NoError(t, tx.Session(&gorm.Session{NewDB: true}).Exec("DELETE FROM credentials WHERE key_id = ?", 1).Error)
	}))

	keys, err := creds.DeleteExpiredKeys(ctx, time.Now())
	require.NoError(t, err)
	require.True(t, removed)
	require.Equal(t, []int64{2}, keys)

	ids, err := creds.KeyIDs(ctx)
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestCharacterReservedNameAndLookup(t *testing.T) {
	ctx := context.Background()
	chars := store.NewCharacterStore(storetest.NewDB(t))

	require.Error(t, chars.Upsert(ctx, &models.Character{ID: 7, Name: "all_chars"}))

	alliance, err := chars.GetOrCreateAlliance(ctx, &models.Alliance{ID: 99, Name: "Test Alliance"})
	require.NoError(t, err)
	corp, err := chars.GetOrCreateCorporation(ctx, &models.Corporation{ID: 50, Name: "Test Corp", AllianceID: &alliance.ID})
	require.NoError(t, err)
	require.Equal(t, int64(99), *corp.AllianceID)

	require.NoError(t, chars.Upsert(ctx, &models.Character{ID: 1, Name: "Alice Alpha", CorporationID: &corp.ID}))
	require.NoError(t, chars.Upsert(ctx, &models.Character{ID: 2, Name: "Bob Beta"}))

	found, err := chars.SearchCharacters(ctx, "alpha")
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, int64(1), found[0].ID)

	found, err = chars.SearchCharacters(ctx, "2")
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, "Bob Beta", found[0].Name)

	corps, err := chars.SearchCorporations(ctx, "test")
	require.NoError(t, err)
	require.Len(t, corps, 1)
}

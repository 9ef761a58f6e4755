package store

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/legit-games/eveauth/errors"
	"github.com/legit-games/eveauth/models"
)

// CredentialStore keeps upstream API credentials and the characters they expose.
type CredentialStore struct {
	DB     *gorm.DB
	Policy models.KeyPolicy
}

func NewCredentialStore(db *gorm.DB, policy models.KeyPolicy) *CredentialStore {
	return &CredentialStore{DB: db, Policy: policy}
}

func (s *CredentialStore) Get(ctx context.Context, keyID int64) (*models.Credential, error) {
	var c models.Credential
	if err := s.DB.WithContext(ctx).Where("key_id = ?", keyID).First(&c).Error; err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (s *CredentialStore) OwnedBy(ctx context.Context, userID string) ([]models.Credential, error) {
	var out []models.Credential
	err := s.DB.WithContext(ctx).Where("owner_id = ?", userID).Order("key_id").Find(&out).Error
	return out, err
}

// ForCharacter returns the credentials exposing the character.
func (s *CredentialStore) ForCharacter(ctx context.Context, characterID int64) ([]models.Credential, error) {
	var out []models.Credential
	err := s.DB.WithContext(ctx).
		Joins("JOIN credential_characters cc ON cc.key_id = credentials.key_id").
		Where("cc.character_id = ?", characterID).
		Order("credentials.key_id").
		Find(&out).Error
	return out, err
}

// Create stores a new credential; an existing key id is a conflict.
func (s *CredentialStore) Create(ctx context.Context, c *models.Credential) error {
	c.RecomputeViolation(s.Policy)
	ts := now()
	c.CreatedAt, c.UpdatedAt = ts, ts
	return conflict(s.DB.WithContext(ctx).Create(c).Error)
}

// Save recomputes the policy violation and writes every column.
func (s *CredentialStore) Save(ctx context.Context, c *models.Credential) error {
	c.RecomputeViolation(s.Policy)
	c.UpdatedAt = now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = c.UpdatedAt
	}
	return s.DB.WithContext(ctx).Save(c).Error
}

// Characters returns the ids of characters exposed by the credential.
func (s *CredentialStore) Characters(ctx context.Context, keyID int64) ([]int64, error) {
	var ids []int64
	err := s.DB.WithContext(ctx).Model(&models.CredentialCharacter{}).
		Where("key_id = ?", keyID).Order("character_id").Pluck("character_id", &ids).Error
	return ids, err
}

// LinkCharacter records that the credential exposes the character.
func (s *CredentialStore) LinkCharacter(ctx context.Context, keyID, characterID int64) error {
	return s.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.CredentialCharacter{KeyID: keyID, CharacterID: characterID}).Error
}

// KeyIDs lists every credential id.
func (s *CredentialStore) KeyIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := s.DB.WithContext(ctx).Model(&models.Credential{}).Order("key_id").Pluck("key_id", &ids).Error
	return ids, err
}

// Delete removes the credential and detaches every character no remaining
// credential exposes. It returns the detached character ids.
func (s *CredentialStore) Delete(ctx context.Context, keyID int64) ([]int64, error) {
	var detached []int64
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var chars []int64
		if err := tx.Model(&models.CredentialCharacter{}).Where("key_id = ?", keyID).Pluck("character_id", &chars).Error; err != nil {
			return err
		}
		if err := tx.Where("key_id = ?", keyID).Delete(&models.CredentialCharacter{}).Error; err != nil {
			return err
		}
		res := tx.Where("key_id = ?", keyID).Delete(&models.Credential{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errors.ErrNotFound
		}
		if len(chars) == 0 {
			return nil
		}
		var covered []int64
		if err := tx.Model(&models.CredentialCharacter{}).Where("character_id IN ?", chars).
			Distinct("character_id").Pluck("character_id", &covered).Error; err != nil {
			return err
		}
		still := make(map[int64]bool, len(covered))
		for _, id := range covered {
			still[id] = true
		}
		for _, id := range chars {
			if !still[id] {
				detached = append(detached, id)
			}
		}
		if len(detached) == 0 {
			return nil
		}
		return tx.Model(&models.Character{}).Where("id IN ?", detached).
			Updates(map[string]any{"owner_id": nil, "updated_at": now()}).Error
	})
	return detached, err
}

// DeleteExpired deletes credentials whose expiry has passed.
func (s *CredentialStore) DeleteExpired(ctx context.Context, at time.Time) (int64, error) {
	keys, err := s.DeleteExpiredKeys(ctx, at)
	return int64(len(keys)), err
}

// DeleteExpiredKeys deletes credentials whose expiry has passed and returns
// the key ids this call removed. Rows already gone are not reported.
func (s *CredentialStore) DeleteExpiredKeys(ctx context.Context, at time.Time) ([]int64, error) {
	var ids []int64
	if err := s.DB.WithContext(ctx).Model(&models.Credential{}).
		Where("expires IS NOT NULL AND expires <= ?", at.UTC()).Pluck("key_id", &ids).Error; err != nil {
		return nil, err
	}
	deleted := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, err := s.Delete(ctx, id); err != nil {
			if errors.Is(err, errors.ErrNotFound) {
				continue
			}
			return deleted, err
		}
		deleted = append(deleted, id)
	}
	return deleted, nil
}

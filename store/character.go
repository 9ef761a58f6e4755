package store

import (
	"context"
	"strconv"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/legit-games/eveauth/errors"
	"github.com/legit-games/eveauth/models"
)

// LookupLimit caps entity search results.
const LookupLimit = 25

// CharacterStore keeps characters, corporations and alliances.
type CharacterStore struct {
	DB *gorm.DB
}

func NewCharacterStore(db *gorm.DB) *CharacterStore { return &CharacterStore{DB: db} }

func (s *CharacterStore) Get(ctx context.Context, id int64) (*models.Character, error) {
	var c models.Character
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// GetMany returns the characters with the given ids in id order; unknown ids are skipped.
func (s *CharacterStore) GetMany(ctx context.Context, ids []int64) ([]models.Character, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []models.Character
	err := s.DB.WithContext(ctx).Where("id IN ?", ids).Order("id").Find(&out).Error
	return out, err
}

// OwnedBy returns the characters currently owned by userID.
func (s *CharacterStore) OwnedBy(ctx context.Context, userID string) ([]models.Character, error) {
	var out []models.Character
	err := s.DB.WithContext(ctx).Where("owner_id = ?", userID).Order("name").Find(&out).Error
	return out, err
}

// Upsert inserts or replaces a character by external id. The owner is left alone.
func (s *CharacterStore) Upsert(ctx context.Context, c *models.Character) error {
	if strings.EqualFold(strings.TrimSpace(c.Name), models.ReservedScope) {
		return errors.MalformedArgument("name", "reserved character name")
	}
	ts := now()
	c.UpdatedAt = ts
	if c.CreatedAt.IsZero() {
		c.CreatedAt = ts
	}
	return s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "corporation_id", "alliance_id", "titles", "roles", "race", "security", "updated_at"}),
	}).Create(c).Error
}

// ClaimOwner sets the owner of a character that has none. It reports the owner after the call.
func (s *CharacterStore) ClaimOwner(ctx context.Context, id int64, userID string) (string, error) {
	db := s.DB.WithContext(ctx)
	if err := db.Model(&models.Character{}).Where("id = ? AND owner_id IS NULL", id).
		Updates(map[string]any{"owner_id": userID, "updated_at": now()}).Error; err != nil {
		return "", err
	}
	c, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if c.OwnerID == nil {
		return "", nil
	}
	return *c.OwnerID, nil
}

// Detach clears the owner of the characters.
func (s *CharacterStore) Detach(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	return s.DB.WithContext(ctx).Model(&models.Character{}).Where("id IN ?", ids).
		Updates(map[string]any{"owner_id": nil, "updated_at": now()}).Error
}

// GetOrCreateAlliance returns the alliance, inserting it when unknown.
func (s *CharacterStore) GetOrCreateAlliance(ctx context.Context, a *models.Alliance) (*models.Alliance, error) {
	ts := now()
	a.CreatedAt, a.UpdatedAt = ts, ts
	db := s.DB.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "updated_at"}),
	}).Create(a).Error; err != nil {
		return nil, err
	}
	return s.Alliance(ctx, a.ID)
}

// GetOrCreateCorporation returns the corporation, inserting it when unknown. The
// alliance relation is refreshed from c.
func (s *CharacterStore) GetOrCreateCorporation(ctx context.Context, c *models.Corporation) (*models.Corporation, error) {
	ts := now()
	c.CreatedAt, c.UpdatedAt = ts, ts
	db := s.DB.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "alliance_id", "updated_at"}),
	}).Create(c).Error; err != nil {
		return nil, err
	}
	return s.Corporation(ctx, c.ID)
}

func (s *CharacterStore) Corporation(ctx context.Context, id int64) (*models.Corporation, error) {
	var c models.Corporation
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (s *CharacterStore) Alliance(ctx context.Context, id int64) (*models.Alliance, error) {
	var a models.Alliance
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&a).Error; err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

// lookup matches a numeric search against the id, anything else as a
// case-insensitive substring of the name.
func lookup(db *gorm.DB, search string) *gorm.DB {
	search = strings.TrimSpace(search)
	if id, err := strconv.ParseInt(search, 10, 64); err == nil {
		return db.Where("id = ?", id)
	}
	return db.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(search)+"%").Order("name").Limit(LookupLimit)
}

func (s *CharacterStore) SearchCharacters(ctx context.Context, search string) ([]models.Character, error) {
	var out []models.Character
	err := lookup(s.DB.WithContext(ctx).Model(&models.Character{}), search).Find(&out).Error
	return out, err
}

func (s *CharacterStore) SearchCorporations(ctx context.Context, search string) ([]models.Corporation, error) {
	var out []models.Corporation
	err := lookup(s.DB.WithContext(ctx).Model(&models.Corporation{}), search).Find(&out).Error
	return out, err
}

func (s *CharacterStore) SearchAlliances(ctx context.Context, search string) ([]models.Alliance, error) {
	var out []models.Alliance
	err := lookup(s.DB.WithContext(ctx).Model(&models.Alliance{}), search).Find(&out).Error
	return out, err
}

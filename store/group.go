package store

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/legit-games/eveauth/errors"
	"github.com/legit-games/eveauth/models"
)

// GroupStore keeps ACL groups.
type GroupStore struct {
	DB *gorm.DB
}

func NewGroupStore(db *gorm.DB) *GroupStore { return &GroupStore{DB: db} }

func (s *GroupStore) Get(ctx context.Context, id string) (*models.Group, error) {
	var g models.Group
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&g).Error; err != nil {
		return nil, notFound(err)
	}
	return &g, nil
}

func (s *GroupStore) List(ctx context.Context) ([]models.Group, error) {
	var out []models.Group
	err := s.DB.WithContext(ctx).Order("id").Find(&out).Error
	return out, err
}

// Save inserts or replaces the group.
func (s *GroupStore) Save(ctx context.Context, g *models.Group) error {
	g.UpdatedAt = now()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = g.UpdatedAt
	}
	return s.DB.WithContext(ctx).Save(g).Error
}

func (s *GroupStore) Delete(ctx context.Context, id string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", id).Delete(&models.Group{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errors.ErrNotFound
		}
		if err := tx.Where("group_id = ?", id).Delete(&models.GroupMembershipCache{}).Error; err != nil {
			return err
		}
		return removeCategoryMember(tx, id)
	})
}

// ReferencedBy returns the ids of groups with a GroupMembership rule naming id.
func (s *GroupStore) ReferencedBy(ctx context.Context, id string) ([]string, error) {
	groups, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []string
	for i := range groups {
		if groups[i].ID != id && groups[i].Refers(id) {
			out = append(out, groups[i].ID)
		}
	}
	return out, nil
}

// Rename moves the group from one id to another in a single transaction:
// inbound GroupMembership rules, category memberships and application group
// lists follow the new id.
func (s *GroupStore) Rename(ctx context.Context, from, to string) (*models.Group, error) {
	var renamed models.Group
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", from).First(&renamed).Error; err != nil {
			return notFound(err)
		}
		var n int64
		if err := tx.Model(&models.Group{}).Where("id = ?", to).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return errors.WithMessage(errors.ErrConflict, "group "+to+" already exists")
		}

		renamed.ID = to
		renamed.UpdatedAt = now()
		if err := tx.Create(&renamed).Error; err != nil {
			return conflict(err)
		}

		var groups []models.Group
		if err := tx.Where("id <> ? AND id <> ?", from, to).Find(&groups).Error; err != nil {
			return err
		}
		for i := range groups {
			if !groups[i].ReplaceReference(from, to) {
				continue
			}
			if err := tx.Model(&models.Group{}).Where("id = ?", groups[i].ID).Updates(map[string]any{
				"rules":         groups[i].Rules,
				"join_rules":    groups[i].JoinRules,
				"request_rules": groups[i].RequestRules,
				"updated_at":    now(),
			}).Error; err != nil {
				return err
			}
		}

		if err := renameCategoryMember(tx, from, to); err != nil {
			return err
		}
		if err := replaceApplicationGroup(tx, from, to); err != nil {
			return err
		}
		if err := tx.Where("group_id = ?", from).Delete(&models.GroupMembershipCache{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", from).Delete(&models.Group{}).Error
	})
	if err != nil {
		return nil, err
	}
	return &renamed, nil
}

// CategoryStore keeps group categories.
type CategoryStore struct {
	DB *gorm.DB
}

func NewCategoryStore(db *gorm.DB) *CategoryStore { return &CategoryStore{DB: db} }

func (s *CategoryStore) Get(ctx context.Context, id string) (*models.GroupCategory, error) {
	var c models.GroupCategory
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (s *CategoryStore) List(ctx context.Context) ([]models.GroupCategory, error) {
	var out []models.GroupCategory
	err := s.DB.WithContext(ctx).Order("id").Find(&out).Error
	return out, err
}

func (s *CategoryStore) Save(ctx context.Context, c *models.GroupCategory) error {
	c.UpdatedAt = now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = c.UpdatedAt
	}
	return s.DB.WithContext(ctx).Save(c).Error
}

func (s *CategoryStore) Delete(ctx context.Context, id string) error {
	res := s.DB.WithContext(ctx).Where("id = ?", id).Delete(&models.GroupCategory{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errors.ErrNotFound
	}
	return nil
}

func renameCategoryMember(tx *gorm.DB, from, to string) error {
	var cats []models.GroupCategory
	if err := tx.Find(&cats).Error; err != nil {
		return err
	}
	for i := range cats {
		if !cats[i].Members.Contains(from) {
			continue
		}
		members := make(models.StringList, 0, len(cats[i].Members))
		for _, m := range cats[i].Members {
			if m == from {
				m = to
			}
			members = append(members, m)
		}
		if err := tx.Model(&models.GroupCategory{}).Where("id = ?", cats[i].ID).
			Updates(map[string]any{"members": members, "updated_at": now()}).Error; err != nil {
			return err
		}
	}
	return nil
}

func removeCategoryMember(tx *gorm.DB, id string) error {
	var cats []models.GroupCategory
	if err := tx.Find(&cats).Error; err != nil {
		return err
	}
	for i := range cats {
		if !cats[i].Members.Contains(id) {
			continue
		}
		if err := tx.Model(&models.GroupCategory{}).Where("id = ?", cats[i].ID).
			Updates(map[string]any{"members": cats[i].Members.Without(id), "updated_at": now()}).Error; err != nil {
			return err
		}
	}
	return nil
}

// PermissionStore keeps registered permission identifiers.
type PermissionStore struct {
	DB *gorm.DB
}

func NewPermissionStore(db *gorm.DB) *PermissionStore { return &PermissionStore{DB: db} }

// Register creates the permission; an existing id is a conflict.
func (s *PermissionStore) Register(ctx context.Context, p *models.Permission) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now()
	}
	return conflict(s.DB.WithContext(ctx).Create(p).Error)
}

func (s *PermissionStore) Get(ctx context.Context, id string) (*models.Permission, error) {
	var p models.Permission
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// ForApplication lists the permissions registered by an application.
func (s *PermissionStore) ForApplication(ctx context.Context, appID string) ([]models.Permission, error) {
	var out []models.Permission
	err := s.DB.WithContext(ctx).Where("application_id = ?", appID).Order("id").Find(&out).Error
	return out, err
}

// MembershipCacheStore persists evaluated rule-set memberships.
type MembershipCacheStore struct {
	DB *gorm.DB
}

func NewMembershipCacheStore(db *gorm.DB) *MembershipCacheStore { return &MembershipCacheStore{DB: db} }

// Get reports the cached result and whether one exists.
func (s *MembershipCacheStore) Get(ctx context.Context, group string, set models.RuleSetName, character int64) (bool, bool, error) {
	var row models.GroupMembershipCache
	err := s.DB.WithContext(ctx).Where("group_id = ? AND rule_set = ? AND character_id = ?", group, set, character).First(&row).Error
	if err != nil {
		if errors.Is(notFound(err), errors.ErrNotFound) {
			return false, false, nil
		}
		return false, false, err
	}
	return row.Member, true, nil
}

// Put moves the character to the member or non-member list of the rule-set.
func (s *MembershipCacheStore) Put(ctx context.Context, group string, set models.RuleSetName, character int64, member bool) error {
	row := models.GroupMembershipCache{GroupID: group, RuleSet: set, CharacterID: character, Member: member, UpdatedAt: now()}
	return s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "group_id"}, {Name: "rule_set"}, {Name: "character_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"member", "updated_at"}),
	}).Create(&row).Error
}

// Members returns the ids known to be members (member=true) or known not to be.
func (s *MembershipCacheStore) Members(ctx context.Context, group string, set models.RuleSetName, member bool) ([]int64, error) {
	var ids []int64
	err := s.DB.WithContext(ctx).Model(&models.GroupMembershipCache{}).
		Where("group_id = ? AND rule_set = ? AND member = ?", group, set, member).
		Order("character_id").Pluck("character_id", &ids).Error
	return ids, err
}

// Invalidate drops every cached row of the groups.
func (s *MembershipCacheStore) Invalidate(ctx context.Context, groups []string) error {
	if len(groups) == 0 {
		return nil
	}
	return s.DB.WithContext(ctx).Where("group_id IN ?", groups).Delete(&models.GroupMembershipCache{}).Error
}

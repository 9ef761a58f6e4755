package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/legit-games/eveauth/errors"
	"github.com/legit-games/eveauth/models"
)

// UserStore provides operations for users.
type UserStore struct {
	DB *gorm.DB
}

func NewUserStore(db *gorm.DB) *UserStore { return &UserStore{DB: db} }

// Get returns the user by primary id.
func (s *UserStore) Get(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// GetByUsername looks a user up by its lowercased username.
func (s *UserStore) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	u := models.User{Username: username}
	u.Normalize()
	if err := s.DB.WithContext(ctx).Where("username = ?", u.Username).First(&u).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// Provision returns the user asserted by the identity provider, creating it on first
// sight. The matched user is updated by primary id.
func (s *UserStore) Provision(ctx context.Context, id, username, email string) (*models.User, error) {
	in := models.User{ID: id, Username: username, Email: email}
	in.Normalize()
	if in.ID == "" {
		return nil, errors.MissingArgument("sub")
	}
	ts := now()
	var out models.User
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("id = ?", in.ID).First(&out).Error
		switch {
		case err == nil:
			if in.Username != "" {
				out.Username = in.Username
			}
			if in.Email != "" {
				out.Email = in.Email
			}
			out.LastLoginAt = &ts
			return conflict(tx.Model(&models.User{}).Where("id = ?", out.ID).Updates(map[string]any{
				"username":      out.Username,
				"email":         out.Email,
				"last_login_at": ts,
				"updated_at":    ts,
			}).Error)
		case notFound(err) == errors.ErrNotFound:
			out = in
			out.Active = true
			out.LastLoginAt = &ts
			return conflict(tx.Create(&out).Error)
		default:
			return err
		}
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SetPrimaryCharacter records the user's primary character.
func (s *UserStore) SetPrimaryCharacter(ctx context.Context, userID string, characterID int64) error {
	return s.DB.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).
		Updates(map[string]any{"primary_character_id": characterID, "updated_at": now()}).Error
}

// SetAppBanned toggles the ban from application access.
func (s *UserStore) SetAppBanned(ctx context.Context, userID string, banned bool) error {
	res := s.DB.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).
		Updates(map[string]any{"app_banned": banned, "updated_at": now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errors.ErrNotFound
	}
	return nil
}

// Delete removes the user with its credentials, grants, login history and links.
// Characters it owned are detached.
func (s *UserStore) Delete(ctx context.Context, id string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(`DELETE FROM credential_characters WHERE key_id IN (SELECT key_id FROM credentials WHERE owner_id = ?)`, id).Error; err != nil {
			return err
		}
		stmts := []struct {
			q    string
			args []any
		}{
			{`DELETE FROM credentials WHERE owner_id = ?`, []any{id}},
			{`DELETE FROM application_grants WHERE user_id = ?`, []any{id}},
			{`DELETE FROM authorization_codes WHERE user_id = ?`, []any{id}},
			{`DELETE FROM login_history WHERE user_id = ?`, []any{id}},
			{`DELETE FROM account_links WHERE user_id = ? OR other_user_id = ?`, []any{id, id}},
			{`UPDATE characters SET owner_id = NULL WHERE owner_id = ?`, []any{id}},
		}
		for _, st := range stmts {
			if err := tx.Exec(st.q, st.args...).Error; err != nil {
				return err
			}
		}
		res := tx.Where("id = ?", id).Delete(&models.User{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errors.ErrNotFound
		}
		return nil
	})
}

// LoginHistoryStore records identity assertions.
type LoginHistoryStore struct {
	DB *gorm.DB
}

func NewLoginHistoryStore(db *gorm.DB) *LoginHistoryStore { return &LoginHistoryStore{DB: db} }

func (s *LoginHistoryStore) Record(ctx context.Context, userID string, success bool, ip, userAgent string) error {
	return s.DB.WithContext(ctx).Create(&models.LoginHistory{
		ID:        uuid.NewString(),
		UserID:    userID,
		Success:   success,
		IP:        ip,
		UserAgent: userAgent,
		CreatedAt: now(),
	}).Error
}

// Recent returns the newest entries of a user first.
func (s *LoginHistoryStore) Recent(ctx context.Context, userID string, limit int) ([]models.LoginHistory, error) {
	var out []models.LoginHistory
	err := s.DB.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Limit(limit).Find(&out).Error
	return out, err
}

// DeleteOlderThan removes entries created before cutoff.
func (s *LoginHistoryStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.DB.WithContext(ctx).Where("created_at < ?", cutoff.UTC()).Delete(&models.LoginHistory{})
	return res.RowsAffected, res.Error
}

// AccountLinkStore keeps the "other accounts" cross-links.
type AccountLinkStore struct {
	DB *gorm.DB
}

func NewAccountLinkStore(db *gorm.DB) *AccountLinkStore { return &AccountLinkStore{DB: db} }

// Link records that a and b share a character. Linking twice is a no-op.
func (s *AccountLinkStore) Link(ctx context.Context, a, b, reason string) error {
	if a == b {
		return nil
	}
	l := models.NewAccountLink(a, b, reason, now())
	return s.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&l).Error
}

// Linked returns the ids of users linked to userID.
func (s *AccountLinkStore) Linked(ctx context.Context, userID string) ([]string, error) {
	var links []models.AccountLink
	if err := s.DB.WithContext(ctx).Where("user_id = ? OR other_user_id = ?", userID, userID).Find(&links).Error; err != nil {
		return nil, err
	}
	out := make([]string, 0, len(links))
	for _, l := range links {
		if l.UserID == userID {
			out = append(out, l.OtherUserID)
		} else {
			out = append(out, l.UserID)
		}
	}
	return out, nil
}

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/legit-games/eveauth/errors"
	"github.com/legit-games/eveauth/models"
)

// Token type hints of revocation requests (RFC 7009).
const (
	HintAccessToken  = "access_token"
	HintRefreshToken = "refresh_token"
)

// GrantStore persists application grants. Expired grants are invisible to reads;
// the reaper removes them physically.
type GrantStore struct {
	DB *gorm.DB
}

func NewGrantStore(db *gorm.DB) *GrantStore { return &GrantStore{DB: db} }

// Create persists g, assigning an id when it has none.
func (s *GrantStore) Create(ctx context.Context, g *models.ApplicationGrant) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = now()
	}
	g.Expires = g.Expires.UTC()
	return conflict(s.DB.WithContext(ctx).Create(g).Error)
}

func (s *GrantStore) first(q *gorm.DB) (*models.ApplicationGrant, error) {
	var g models.ApplicationGrant
	if err := q.First(&g).Error; err != nil {
		return nil, notFound(err)
	}
	if g.Expired(now()) {
		return nil, errors.ErrNotFound
	}
	return &g, nil
}

// Get returns the grant if it belongs to appID and has not expired.
func (s *GrantStore) Get(ctx context.Context, id, appID string) (*models.ApplicationGrant, error) {
	return s.first(s.DB.WithContext(ctx).Where("id = ? AND application_id = ?", id, appID))
}

func (s *GrantStore) ByAccessToken(ctx context.Context, token, appID string) (*models.ApplicationGrant, error) {
	if token == "" {
		return nil, errors.ErrNotFound
	}
	return s.first(s.DB.WithContext(ctx).Where("access_token = ? AND application_id = ?", token, appID))
}

func (s *GrantStore) ByRefreshToken(ctx context.Context, token, appID string) (*models.ApplicationGrant, error) {
	if token == "" {
		return nil, errors.ErrNotFound
	}
	return s.first(s.DB.WithContext(ctx).Where("refresh_token = ? AND application_id = ?", token, appID))
}

// ForUser returns the newest live grant of the user for the application.
func (s *GrantStore) ForUser(ctx context.Context, userID, appID string) (*models.ApplicationGrant, error) {
	return s.first(s.DB.WithContext(ctx).
		Where("user_id = ? AND application_id = ? AND expires > ?", userID, appID, now()).
		Order("created_at DESC"))
}

// Update writes every column of g.
func (s *GrantStore) Update(ctx context.Context, g *models.ApplicationGrant) error {
	return conflict(s.DB.WithContext(ctx).Save(g).Error)
}

// SetCharacters replaces the character list of a grant.
func (s *GrantStore) SetCharacters(ctx context.Context, id string, chars models.Int64List) error {
	return s.DB.WithContext(ctx).Model(&models.ApplicationGrant{}).Where("id = ?", id).
		Update("characters", chars).Error
}

// Delete removes the grant of appID. It reports whether a row was removed.
func (s *GrantStore) Delete(ctx context.Context, id, appID string) (bool, error) {
	res := s.DB.WithContext(ctx).Where("id = ? AND application_id = ?", id, appID).Delete(&models.ApplicationGrant{})
	return res.RowsAffected > 0, res.Error
}

// RevokeToken nulls the token field that matches. An empty hint tries the access
// token first, then the refresh token.
func (s *GrantStore) RevokeToken(ctx context.Context, appID, token, hint string) (bool, error) {
	fields := []string{"access_token", "refresh_token"}
	switch hint {
	case HintAccessToken:
		fields = fields[:1]
	case HintRefreshToken:
		fields = fields[1:]
	}
	for _, f := range fields {
		res := s.DB.WithContext(ctx).Model(&models.ApplicationGrant{}).
			Where(f+" = ? AND application_id = ?", token, appID).Update(f, nil)
		if res.Error != nil {
			return false, res.Error
		}
		if res.RowsAffected > 0 {
			return true, nil
		}
	}
	return false, nil
}

func (s *GrantStore) DeleteExpired(ctx context.Context, at time.Time) (int64, error) {
	res := s.DB.WithContext(ctx).Where("expires <= ?", at.UTC()).Delete(&models.ApplicationGrant{})
	return res.RowsAffected, res.Error
}

// AuthRequestStore keeps authentication requests of the legacy flow.
type AuthRequestStore struct {
	DB *gorm.DB
}

func NewAuthRequestStore(db *gorm.DB) *AuthRequestStore { return &AuthRequestStore{DB: db} }

func (s *AuthRequestStore) Create(ctx context.Context, r *models.AuthenticationRequest) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now()
	}
	r.Expires = r.Expires.UTC()
	return s.DB.WithContext(ctx).Create(r).Error
}

// Get returns the request if it has not expired.
func (s *AuthRequestStore) Get(ctx context.Context, id string) (*models.AuthenticationRequest, error) {
	var r models.AuthenticationRequest
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&r).Error; err != nil {
		return nil, notFound(err)
	}
	if r.Expired(now()) {
		return nil, errors.ErrNotFound
	}
	return &r, nil
}

func (s *AuthRequestStore) Update(ctx context.Context, r *models.AuthenticationRequest) error {
	return s.DB.WithContext(ctx).Save(r).Error
}

func (s *AuthRequestStore) DeleteExpired(ctx context.Context, at time.Time) (int64, error) {
	res := s.DB.WithContext(ctx).Where("expires <= ?", at.UTC()).Delete(&models.AuthenticationRequest{})
	return res.RowsAffected, res.Error
}

// AuthorizationCodeStore keeps single-use authorization codes.
type AuthorizationCodeStore struct {
	DB *gorm.DB
}

func NewAuthorizationCodeStore(db *gorm.DB) *AuthorizationCodeStore {
	return &AuthorizationCodeStore{DB: db}
}

func (s *AuthorizationCodeStore) Create(ctx context.Context, c *models.AuthorizationCode) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now()
	}
	c.Expires = c.Expires.UTC()
	return conflict(s.DB.WithContext(ctx).Create(c).Error)
}

// Take removes and returns the code. Only one caller can take a code; an
// expired code is removed and reported as not found.
func (s *AuthorizationCodeStore) Take(ctx context.Context, code string) (*models.AuthorizationCode, error) {
	var c models.AuthorizationCode
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("code = ?", code).First(&c).Error; err != nil {
			return notFound(err)
		}
		res := tx.Where("code = ?", code).Delete(&models.AuthorizationCode{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errors.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if c.Expired(now()) {
		return nil, errors.ErrNotFound
	}
	return &c, nil
}

func (s *AuthorizationCodeStore) DeleteExpired(ctx context.Context, at time.Time) (int64, error) {
	res := s.DB.WithContext(ctx).Where("expires <= ?", at.UTC()).Delete(&models.AuthorizationCode{})
	return res.RowsAffected, res.Error
}

package store

import (
	"context"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/legit-games/eveauth/envelope"
	"github.com/legit-games/eveauth/errors"
	"github.com/legit-games/eveauth/generates"
	"github.com/legit-games/eveauth/models"
)

var shortPattern = regexp.MustCompile(`^[a-z0-9_\-]{2,32}$`)

// ApplicationStore keeps relying-party applications.
type ApplicationStore struct {
	DB *gorm.DB
}

func NewApplicationStore(db *gorm.DB) *ApplicationStore { return &ApplicationStore{DB: db} }

func (s *ApplicationStore) Get(ctx context.Context, id string) (*models.Application, error) {
	var a models.Application
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&a).Error; err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

func (s *ApplicationStore) GetByShort(ctx context.Context, short string) (*models.Application, error) {
	var a models.Application
	if err := s.DB.WithContext(ctx).Where("short = ?", strings.ToLower(short)).First(&a).Error; err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

func (s *ApplicationStore) OwnedBy(ctx context.Context, userID string) ([]models.Application, error) {
	var out []models.Application
	err := s.DB.WithContext(ctx).Where("owner_id = ?", userID).Order("name").Find(&out).Error
	return out, err
}

// Register creates the application with a fresh server keypair and client
// secret. The plaintext secret is returned once; only its scrypt hash is stored.
func (s *ApplicationStore) Register(ctx context.Context, a *models.Application) (string, error) {
	a.Short = strings.ToLower(strings.TrimSpace(a.Short))
	if !shortPattern.MatchString(a.Short) {
		return "", errors.MalformedArgument("short", "2-32 characters of a-z, 0-9, _ or -")
	}
	if a.PublicKey != "" {
		if _, err := envelope.DecodePublicKey(a.PublicKey); err != nil {
			return "", errors.MalformedArgument("key.public", err.Error())
		}
	}
	key, err := envelope.GenerateKey()
	if err != nil {
		return "", err
	}
	if a.PrivateKey, err = envelope.EncodePrivateKey(key); err != nil {
		return "", err
	}
	secret, err := generates.ClientSecret()
	if err != nil {
		return "", err
	}
	if a.ClientSecretHash, err = generates.HashSecret(secret); err != nil {
		return "", err
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if len(a.Methods) == 0 {
		a.Methods = models.StringList{models.MethodLegacy}
	}
	ts := now()
	a.CreatedAt, a.UpdatedAt = ts, ts
	if err := conflict(s.DB.WithContext(ctx).Create(a).Error); err != nil {
		return "", err
	}
	return secret, nil
}

// ServerPublicKey returns the PEM public half of the application's server key.
func ServerPublicKey(a *models.Application) (string, error) {
	key, err := envelope.DecodePrivateKey(a.PrivateKey)
	if err != nil {
		return "", err
	}
	return envelope.EncodePublicKey(&key.PublicKey)
}

// Update writes every column of a.
func (s *ApplicationStore) Update(ctx context.Context, a *models.Application) error {
	a.UpdatedAt = now()
	return conflict(s.DB.WithContext(ctx).Save(a).Error)
}

// ReplaceGroup rewrites the advertised group lists that name from.
func (s *ApplicationStore) ReplaceGroup(ctx context.Context, from, to string) error {
	return replaceApplicationGroup(s.DB.WithContext(ctx), from, to)
}

func replaceApplicationGroup(tx *gorm.DB, from, to string) error {
	var apps []models.Application
	if err := tx.Find(&apps).Error; err != nil {
		return err
	}
	for i := range apps {
		if !apps[i].Groups.Contains(from) {
			continue
		}
		groups := make(models.StringList, 0, len(apps[i].Groups))
		for _, g := range apps[i].Groups {
			if g == from {
				g = to
			}
			groups = append(groups, g)
		}
		if err := tx.Model(&models.Application{}).Where("id = ?", apps[i].ID).
			Updates(map[string]any{"tag_groups": groups, "updated_at": now()}).Error; err != nil {
			return err
		}
	}
	return nil
}

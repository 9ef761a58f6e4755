package refresher

import (
	"context"
	"fmt"
	"strconv"

	"github.com/legit-games/eveauth/email"
	"github.com/legit-games/eveauth/errors"
	"github.com/legit-games/eveauth/eveapi"
	"github.com/legit-games/eveauth/logging"
	"github.com/legit-games/eveauth/metrics"
	"github.com/legit-games/eveauth/models"
)

// Refresh results, also used as metric labels.
const (
	ResultUpdated = "updated"
	ResultRevoked = "revoked"
	ResultError   = "error"
)

// characterSheetMask is the access bit of char/CharacterSheet.
const characterSheetMask = 8

type Upstream interface {
	APIKeyInfo(ctx context.Context, key eveapi.Key) (*eveapi.APIKeyInfo, error)
	CharacterSheet(ctx context.Context, key eveapi.Key, characterID int64) (*eveapi.CharacterSheet, error)
	CharacterInfo(ctx context.Context, key *eveapi.Key, characterID int64) (*eveapi.CharacterInfo, error)
}

type Credentials interface {
	Get(ctx context.Context, keyID int64) (*models.Credential, error)
	Save(ctx context.Context, c *models.Credential) error
	Delete(ctx context.Context, keyID int64) ([]int64, error)
	LinkCharacter(ctx context.Context, keyID, characterID int64) error
}

type Characters interface {
	Get(ctx context.Context, id int64) (*models.Character, error)
	Upsert(ctx context.Context, c *models.Character) error
	ClaimOwner(ctx context.Context, id int64, userID string) (string, error)
	GetOrCreateAlliance(ctx context.Context, a *models.Alliance) (*models.Alliance, error)
	GetOrCreateCorporation(ctx context.Context, c *models.Corporation) (*models.Corporation, error)
}

type AccountLinks interface {
	Link(ctx context.Context, a, b, reason string) error
}

type Users interface {
	Get(ctx context.Context, id string) (*models.User, error)
}

type CachePurger interface {
	Purge(ctx context.Context, keyID int64) error
}

// Validator refreshes one credential from the upstream API.
type Validator struct {
	Upstream    Upstream
	Credentials Credentials
	Characters  Characters
	Links       AccountLinks
	Users       Users
	Cache       CachePurger
	Mailer      email.Sender
}

// Refresh re-reads the credential upstream and updates it, its characters and
// their corporations. A credential the upstream refuses with 403 is deleted.
func (v *Validator) Refresh(ctx context.Context, keyID int64) (string, error) {
	log := logging.Ctx(ctx).With().Str("component", "refresher").Int64("key", keyID).Logger()

	cred, err := v.Credentials.Get(ctx, keyID)
	if err != nil {
		metrics.RecordRefresh(ResultError)
		return ResultError, err
	}
	key := eveapi.Key{ID: cred.KeyID, VCode: cred.VCode}

	info, err := v.Upstream.APIKeyInfo(ctx, key)
	if eveapi.IsForbidden(err) {
		return v.revoke(ctx, cred)
	}
	if err != nil {
		log.Warn().Err(err).Msg("api key info failed")
		metrics.RecordRefresh(ResultError)
		return ResultError, err
	}
	kind, err := info.Kind()
	if err != nil {
		metrics.RecordRefresh(ResultError)
		return ResultError, err
	}

	before := cred.Violation
	cred.Kind = kind
	cred.Mask = info.Key.AccessMask
	cred.Expires = info.ExpiresAt()
	cred.Verified = true

	for _, kc := range info.Key.Characters {
		if err := v.character(ctx, cred, kc); err != nil {
			log.Warn().Err(err).Int64("character", kc.CharacterID).Msg("character refresh failed")
		}
	}

	if err := v.Credentials.Save(ctx, cred); err != nil {
		metrics.RecordRefresh(ResultError)
		return ResultError, err
	}
	if cred.Violation != models.ViolationNone && cred.Violation != before {
		v.notify(ctx, cred, email.NoticeViolation)
	}
	metrics.RecordRefresh(ResultUpdated)
	log.Debug().Str("violation", string(cred.Violation)).Int("characters", len(info.Key.Characters)).Msg("credential refreshed")
	return ResultUpdated, nil
}

func (v *Validator) revoke(ctx context.Context, cred *models.Credential) (string, error) {
	log := logging.Ctx(ctx).With().Str("component", "refresher").Int64("key", cred.KeyID).Logger()
	detached, err := v.Credentials.Delete(ctx, cred.KeyID)
	if err != nil && !errors.Is(err, errors.ErrNotFound) {
		metrics.RecordRefresh(ResultError)
		return ResultError, err
	}
	if v.Cache != nil {
		if err := v.Cache.Purge(ctx, cred.KeyID); err != nil {
			log.Warn().Err(err).Msg("api cache purge failed")
		}
	}
	log.Info().Ints64("detached", detached).Msg("credential revoked upstream, deleted")
	v.notify(ctx, cred, email.NoticeRevoked)
	metrics.RecordRefresh(ResultRevoked)
	return ResultRevoked, nil
}

// character upserts one character exposed by cred and claims it for cred's
// owner. A character already owned by someone else flags cred and links the
// two accounts.
func (v *Validator) character(ctx context.Context, cred *models.Credential, kc eveapi.KeyCharacter) error {
	var allianceID *int64
	if kc.AllianceID != 0 {
		a, err := v.Characters.GetOrCreateAlliance(ctx, &models.Alliance{ID: kc.AllianceID, Name: kc.AllianceName})
		if err != nil {
			return fmt.Errorf("alliance %d: %w", kc.AllianceID, err)
		}
		allianceID = &a.ID
	}
	var corporationID *int64
	if kc.CorporationID != 0 {
		c, err := v.Characters.GetOrCreateCorporation(ctx, &models.Corporation{ID: kc.CorporationID, Name: kc.CorporationName, AllianceID: allianceID})
		if err != nil {
			return fmt.Errorf("corporation %d: %w", kc.CorporationID, err)
		}
		corporationID = &c.ID
	}

	char := &models.Character{ID: kc.CharacterID}
	if existing, err := v.Characters.Get(ctx, kc.CharacterID); err == nil {
		char = existing
	} else if !errors.Is(err, errors.ErrNotFound) {
		return err
	}
	char.Name = kc.CharacterName
	char.CorporationID = corporationID
	char.AllianceID = allianceID
	v.details(ctx, cred, char)

	if err := v.Characters.Upsert(ctx, char); err != nil {
		return err
	}
	if err := v.Credentials.LinkCharacter(ctx, cred.KeyID, char.ID); err != nil {
		return err
	}

	owner, err := v.Characters.ClaimOwner(ctx, char.ID, cred.OwnerID)
	if err != nil {
		return err
	}
	if owner != "" && owner != cred.OwnerID {
		cred.Violation = models.ViolationCharacter
		logging.Ctx(ctx).Warn().Int64("key", cred.KeyID).Int64("character", char.ID).
			Str("owner", owner).Str("claimant", cred.OwnerID).Msg("character owned by another account")
		if err := v.Links.Link(ctx, owner, cred.OwnerID, "character:"+strconv.FormatInt(char.ID, 10)); err != nil {
			return err
		}
	}
	return nil
}

// details fills titles, roles and race from the character sheet when the key
// allows it, and security from the public character info.
func (v *Validator) details(ctx context.Context, cred *models.Credential, char *models.Character) {
	key := eveapi.Key{ID: cred.KeyID, VCode: cred.VCode}
	if cred.Kind != models.KeyCorporation && cred.Covers(characterSheetMask) {
		sheet, err := v.Upstream.CharacterSheet(ctx, key, char.ID)
		if err == nil {
			char.Titles = sheet.Titles()
			char.Roles = sheet.Roles()
			char.Race = sheet.Race
		} else {
			logging.Ctx(ctx).Debug().Err(err).Int64("character", char.ID).Msg("character sheet unavailable")
		}
	}
	info, err := v.Upstream.CharacterInfo(ctx, nil, char.ID)
	if err != nil {
		logging.Ctx(ctx).Debug().Err(err).Int64("character", char.ID).Msg("character info unavailable")
		return
	}
	char.Security = info.SecurityStatus
	if char.Race == "" {
		char.Race = info.Race
	}
}

func (v *Validator) notify(ctx context.Context, cred *models.Credential, kind email.NoticeKind) {
	if v.Mailer == nil || v.Users == nil {
		return
	}
	u, err := v.Users.Get(ctx, cred.OwnerID)
	if err != nil || u.Email == "" {
		return
	}
	err = v.Mailer.SendCredentialNotice(ctx, email.CredentialNoticeData{
		To:        u.Email,
		Username:  u.Username,
		KeyID:     cred.KeyID,
		Kind:      kind,
		Violation: string(cred.Violation),
	})
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Int64("key", cred.KeyID).Msg("credential notice failed")
	}
}

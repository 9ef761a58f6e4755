package protocol

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/legit-games/eveauth/errors"
	"github.com/legit-games/eveauth/models"
	"github.com/legit-games/eveauth/permission"
)

// Base holds the collaborators and checks shared by every method.
type Base struct {
	Applications Applications
	Grants       Grants
	Characters   Characters
	Credentials  Credentials
	Authorizer   Authorizer
	// Defaults are held by every authenticated user.
	Defaults permission.Set
	// VerifiedOnly restricts eligible credentials to verified ones.
	VerifiedOnly bool
	Now          Clock
}

func (b *Base) now() time.Time {
	if b.Now != nil {
		return b.Now().UTC()
	}
	return time.Now().UTC()
}

// application loads the application and requires it to advertise method.
func (b *Base) application(ctx context.Context, id, method string) (*models.Application, error) {
	app, err := b.Applications.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !app.Supports(method) {
		return nil, errors.WithMessage(errors.ErrNotFound, "application does not support "+method)
	}
	return app, nil
}

// Eligible runs the common authorize preconditions and returns the characters
// the user may hand to the application.
func (b *Base) Eligible(ctx context.Context, userID string, app *models.Application) ([]models.Character, error) {
	if userID == "" {
		return nil, errors.ErrUnauthorized
	}
	owned, err := b.Characters.OwnedBy(ctx, userID)
	if err != nil {
		return nil, err
	}
	perms := b.Defaults
	if b.Authorizer != nil {
		held, err := b.Authorizer.Permissions(ctx, userID, owned...)
		if err != nil {
			return nil, err
		}
		perms = perms.Merge(held)
	}
	if !perms.Grants(permission.ApplicationAuthorize(app.Short)) {
		return nil, errors.WithMessage(errors.ErrForbidden, "missing "+permission.ApplicationAuthorize(app.Short))
	}
	if len(owned) == 0 {
		return nil, errors.WithMessage(errors.ErrForbidden, "no characters")
	}

	var eligible []models.Character
	for _, ch := range owned {
		creds, err := b.Credentials.ForCharacter(ctx, ch.ID)
		if err != nil {
			return nil, err
		}
		if slices.ContainsFunc(creds, func(c models.Credential) bool {
			return c.OwnerID == userID && c.Covers(app.RequiredMask) && (c.Verified || !b.VerifiedOnly)
		}) {
			eligible = append(eligible, ch)
		}
	}
	if len(eligible) == 0 {
		return nil, errors.WithMessage(errors.ErrForbidden, "no character has a credential covering the required mask")
	}
	return eligible, nil
}

// chosen validates the consent choice against the eligible characters.
func chosen(app *models.Application, eligible []models.Character, choice Choice) (models.Int64List, error) {
	if app.AllCharsRequired && !choice.AllChars {
		return nil, errors.MalformedArgument("all_chars", "application requires all characters")
	}
	if choice.AllChars {
		if app.SingleCharOnly {
			return nil, errors.MalformedArgument("all_chars", "application accepts a single character")
		}
		ids := make(models.Int64List, 0, len(eligible))
		for _, ch := range eligible {
			ids = append(ids, ch.ID)
		}
		return ids, nil
	}
	var ids models.Int64List
	for _, id := range choice.Characters {
		if !slices.ContainsFunc(eligible, func(c models.Character) bool { return c.ID == id }) {
			return nil, errors.MalformedArgument("characters", fmt.Sprintf("character %d is not eligible", id))
		}
		ids = ids.With(id)
	}
	if len(ids) == 0 {
		return nil, errors.MissingArgument("characters")
	}
	if app.SingleCharOnly && len(ids) > 1 {
		return nil, errors.MalformedArgument("characters", "application accepts a single character")
	}
	return ids, nil
}

func grantMask(app *models.Application, choice Choice) int64 {
	if choice.Optional == nil {
		return app.AllowedMask()
	}
	return app.EffectiveMask(*choice.Optional)
}

func (b *Base) newGrant(userID string, app *models.Application, chars models.Int64List, allChars bool, mask int64) *models.ApplicationGrant {
	now := b.now()
	return &models.ApplicationGrant{
		UserID:        userID,
		ApplicationID: app.ID,
		Characters:    chars,
		AllChars:      allChars,
		Mask:          mask,
		Expires:       now.Add(app.GrantTTL()),
		CreatedAt:     now,
	}
}

// live drops characters the user no longer owns and expands all_chars grants
// to the user's current characters.
func (b *Base) live(ctx context.Context, g *models.ApplicationGrant) (*models.ApplicationGrant, error) {
	if g.Expired(b.now()) {
		return nil, errors.ErrGrantInvalid
	}
	owned, err := b.Characters.OwnedBy(ctx, g.UserID)
	if err != nil {
		return nil, err
	}
	if g.AllChars {
		g.Characters = make(models.Int64List, 0, len(owned))
		for _, ch := range owned {
			g.Characters = append(g.Characters, ch.ID)
		}
		return g, nil
	}
	kept := make(models.Int64List, 0, len(g.Characters))
	for _, id := range g.Characters {
		if slices.ContainsFunc(owned, func(c models.Character) bool { return c.ID == id }) {
			kept = append(kept, id)
		}
	}
	if len(kept) != len(g.Characters) {
		if err := b.Grants.SetCharacters(ctx, g.ID, kept); err != nil {
			return nil, err
		}
		g.Characters = kept
	}
	return g, nil
}

// AfterAPI adds the grant expiry to API responses.
func (b *Base) AfterAPI(g *models.ApplicationGrant, response map[string]any) {
	response["expires"] = g.Expires.UTC().Format(time.RFC3339)
}

func notFoundAs(err, as error) error {
	if errors.Is(err, errors.ErrNotFound) {
		return as
	}
	return err
}

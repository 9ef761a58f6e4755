// Package protocol implements the authorization methods through which users grant
// relying-party applications access to their characters.
//
// Every method produces the same models.ApplicationGrant; they differ in how the
// browser is sent back to the application and in which token the application
// presents on API calls.
package protocol

import (
	"context"
	"time"

	"github.com/legit-games/eveauth/models"
	"github.com/legit-games/eveauth/permission"
)

// AuthorizeRequest is one browser-side authorize attempt.
type AuthorizeRequest struct {
	UserID string
	// RequestID identifies a legacy authentication request.
	RequestID string

	// Authorization code parameters.
	ClientID     string
	RedirectURI  string
	State        string
	Scope        string
	ResponseType string
}

// Choice is what the user selected on the consent page.
type Choice struct {
	Characters []int64
	AllChars   bool
	// Optional restricts the optional mask. Nil means every optional bit.
	Optional *int64
}

// Consent is what a consent page shows. When Redirect is set the attempt is
// already settled and the browser goes straight there.
type Consent struct {
	Application *models.Application
	Characters  []models.Character
	// Requested holds the character names asked for by the application, if any.
	Requested  []string
	PriorGrant *models.ApplicationGrant
	Redirect   string
}

// Protocol is an authorization method.
type Protocol interface {
	// Name is the method identifier advertised in Application.Methods.
	Name() string
	GetApplication(ctx context.Context, req *AuthorizeRequest) (*models.Application, error)
	PreAuthorize(ctx context.Context, req *AuthorizeRequest) (*Consent, error)
	// Authorize issues the grant (or code) and returns the redirect location.
	Authorize(ctx context.Context, req *AuthorizeRequest, choice Choice) (string, error)
	Deny(ctx context.Context, req *AuthorizeRequest) (string, error)
	// Reauthenticate starts a new attempt replacing the grant identified by token.
	Reauthenticate(ctx context.Context, app *models.Application, token, success, failure string) (string, error)
	// BeforeAPI resolves the token an application presents into a live grant.
	BeforeAPI(ctx context.Context, app *models.Application, token string) (*models.ApplicationGrant, error)
	// AfterAPI decorates an API response produced under the grant.
	AfterAPI(grant *models.ApplicationGrant, response map[string]any)
	// GetToken is the token the application presents for the grant.
	GetToken(grant *models.ApplicationGrant) string
}

// Applications loads relying parties.
type Applications interface {
	Get(ctx context.Context, id string) (*models.Application, error)
}

// Grants is the grant store.
type Grants interface {
	Create(ctx context.Context, g *models.ApplicationGrant) error
	Get(ctx context.Context, id, appID string) (*models.ApplicationGrant, error)
	ByAccessToken(ctx context.Context, token, appID string) (*models.ApplicationGrant, error)
	ByRefreshToken(ctx context.Context, token, appID string) (*models.ApplicationGrant, error)
	ForUser(ctx context.Context, userID, appID string) (*models.ApplicationGrant, error)
	Update(ctx context.Context, g *models.ApplicationGrant) error
	SetCharacters(ctx context.Context, id string, chars models.Int64List) error
	Delete(ctx context.Context, id, appID string) (bool, error)
	RevokeToken(ctx context.Context, appID, token, hint string) (bool, error)
}

// Characters lists the characters a user owns.
type Characters interface {
	OwnedBy(ctx context.Context, userID string) ([]models.Character, error)
}

// Credentials lists the credentials exposing a character.
type Credentials interface {
	ForCharacter(ctx context.Context, characterID int64) ([]models.Credential, error)
}

// Authorizer resolves the permissions a user holds through its characters.
type Authorizer interface {
	Permissions(ctx context.Context, userID string, chars ...models.Character) (permission.Set, error)
}

// Clock returns the current time.
type Clock func() time.Time

package protocol

import (
	"context"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/legit-games/eveauth/errors"
	"github.com/legit-games/eveauth/generates"
	"github.com/legit-games/eveauth/logging"
	"github.com/legit-games/eveauth/metrics"
	"github.com/legit-games/eveauth/models"
)

// CodeTTL is the lifetime of an authorization code.
const CodeTTL = 10 * time.Minute

const (
	ResponseTypeCode           = "code"
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"
	TokenTypeBearer            = "Bearer"
)

// Codes stores authorization codes.
type Codes interface {
	Create(ctx context.Context, c *models.AuthorizationCode) error
	Take(ctx context.Context, code string) (*models.AuthorizationCode, error)
}

// TokenRequest is a token endpoint call.
type TokenRequest struct {
	GrantType    string
	ClientID     string
	ClientSecret string
	Code         string
	RedirectURI  string
	Refresh      string
	Scope        string
}

// TokenInfo is the token endpoint answer.
type TokenInfo struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// AuthorizationCode is the standard authorization code method. Scopes are
// character names; the application presents the access token on API calls.
type AuthorizationCode struct {
	*Base
	Codes        Codes
	AuthorizeGen *generates.AuthorizeGenerate
	AccessGen    *generates.AccessGenerate
	BaseURL      string
}

func NewAuthorizationCode(base *Base, codes Codes, baseURL string) *AuthorizationCode {
	return &AuthorizationCode{
		Base:         base,
		Codes:        codes,
		AuthorizeGen: generates.NewAuthorizeGenerate(),
		AccessGen:    generates.NewAccessGenerate(),
		BaseURL:      baseURL,
	}
}

func (a *AuthorizationCode) Name() string { return models.MethodAuthorizationCode }

// GetApplication validates client_id, response_type and redirect_uri. An empty
// redirect_uri is filled with the registered one.
func (a *AuthorizationCode) GetApplication(ctx context.Context, req *AuthorizeRequest) (*models.Application, error) {
	if req.ClientID == "" {
		return nil, errors.ErrInvalidRequest
	}
	if req.ResponseType != ResponseTypeCode {
		return nil, errors.ErrUnsupportedResponseType
	}
	app, err := a.application(ctx, req.ClientID, a.Name())
	if err != nil {
		return nil, notFoundAs(err, errors.ErrInvalidClient)
	}
	if app.RedirectURI == "" {
		return nil, errors.WithMessage(errors.ErrInvalidRequest, "application has no redirect uri")
	}
	if req.RedirectURI == "" {
		req.RedirectURI = app.RedirectURI
	}
	if req.RedirectURI != app.RedirectURI {
		return nil, errors.WithMessage(errors.ErrInvalidRequest, "redirect_uri does not match")
	}
	return app, nil
}

func (a *AuthorizationCode) PreAuthorize(ctx context.Context, req *AuthorizeRequest) (*Consent, error) {
	app, err := a.GetApplication(ctx, req)
	if err != nil {
		return nil, err
	}
	eligible, err := a.Eligible(ctx, req.UserID, app)
	if err != nil {
		return nil, err
	}
	return &Consent{Application: app, Characters: eligible, Requested: ParseScope(req.Scope)}, nil
}

// Authorize issues an authorization code for the chosen characters.
func (a *AuthorizationCode) Authorize(ctx context.Context, req *AuthorizeRequest, choice Choice) (string, error) {
	app, err := a.GetApplication(ctx, req)
	if err != nil {
		return "", err
	}
	eligible, err := a.Eligible(ctx, req.UserID, app)
	if err != nil {
		return "", err
	}
	ids, err := chosen(app, eligible, choice)
	if err != nil {
		return "", err
	}
	scopes := models.StringList{models.ReservedScope}
	if !choice.AllChars {
		scopes = scopes[:0]
		for _, ch := range eligible {
			if ids.Contains(ch.ID) {
				scopes = append(scopes, ch.Name)
			}
		}
	}
	now := a.now()
	code := &models.AuthorizationCode{
		Code:          a.AuthorizeGen.Token(generates.Basic{ApplicationID: app.ID, UserID: req.UserID, CreateAt: now}),
		ApplicationID: app.ID,
		UserID:        req.UserID,
		RedirectURI:   req.RedirectURI,
		Scopes:        scopes,
		Mask:          grantMask(app, choice),
		State:         req.State,
		Expires:       now.Add(CodeTTL),
		CreatedAt:     now,
	}
	if err := a.Codes.Create(ctx, code); err != nil {
		return "", err
	}
	return withQuery(req.RedirectURI, "code", code.Code, "state", req.State)
}

func (a *AuthorizationCode) Deny(ctx context.Context, req *AuthorizeRequest) (string, error) {
	if _, err := a.GetApplication(ctx, req); err != nil {
		return "", err
	}
	return withQuery(req.RedirectURI, "error", errors.ErrAccessDenied.Error(), "state", req.State)
}

// Reauthenticate returns a fresh authorize URL for the scopes of the grant. The
// application's registered redirect uri receives the result.
func (a *AuthorizationCode) Reauthenticate(ctx context.Context, app *models.Application, token, _, _ string) (string, error) {
	g, err := a.BeforeAPI(ctx, app, token)
	if err != nil {
		return "", err
	}
	q := url.Values{}
	q.Set("response_type", ResponseTypeCode)
	q.Set("client_id", app.ID)
	q.Set("redirect_uri", app.RedirectURI)
	q.Set("scope", FormatScope(g.Scopes))
	return strings.TrimRight(a.BaseURL, "/") + "/authorize/oauth2?" + q.Encode(), nil
}

func (a *AuthorizationCode) BeforeAPI(ctx context.Context, app *models.Application, token string) (*models.ApplicationGrant, error) {
	g, err := a.Grants.ByAccessToken(ctx, token, app.ID)
	if err != nil {
		return nil, notFoundAs(err, errors.ErrGrantInvalid)
	}
	return a.live(ctx, g)
}

func (a *AuthorizationCode) GetToken(g *models.ApplicationGrant) string {
	if g.AccessToken == nil {
		return ""
	}
	return *g.AccessToken
}

// Client authenticates an application by id and client secret.
func (a *AuthorizationCode) Client(ctx context.Context, clientID, secret string) (*models.Application, error) {
	if clientID == "" || secret == "" {
		return nil, errors.ErrInvalidClient
	}
	app, err := a.Applications.Get(ctx, clientID)
	if err != nil {
		return nil, notFoundAs(err, errors.ErrInvalidClient)
	}
	if !app.Supports(a.Name()) || !generates.CompareSecret(app.ClientSecretHash, secret) {
		return nil, errors.ErrInvalidClient
	}
	return app, nil
}

// Exchange serves the token endpoint.
func (a *AuthorizationCode) Exchange(ctx context.Context, tr *TokenRequest) (*TokenInfo, error) {
	if tr.GrantType == "" {
		return nil, errors.ErrUnsupportedGrantType
	}
	app, err := a.Client(ctx, tr.ClientID, tr.ClientSecret)
	if err != nil {
		return nil, err
	}
	switch tr.GrantType {
	case GrantTypeAuthorizationCode:
		return a.exchangeCode(ctx, app, tr)
	case GrantTypeRefreshToken:
		return a.refresh(ctx, app, tr)
	}
	return nil, errors.ErrUnsupportedGrantType
}

func (a *AuthorizationCode) exchangeCode(ctx context.Context, app *models.Application, tr *TokenRequest) (*TokenInfo, error) {
	if tr.Code == "" || tr.RedirectURI == "" {
		return nil, errors.ErrInvalidRequest
	}
	c, err := a.Codes.Take(ctx, tr.Code)
	if err != nil {
		return nil, notFoundAs(err, errors.ErrInvalidGrant)
	}
	if c.ApplicationID != app.ID || c.RedirectURI != tr.RedirectURI {
		return nil, errors.ErrInvalidGrant
	}
	chars, all, err := a.resolveScopes(ctx, c.UserID, c.Scopes)
	if err != nil {
		return nil, err
	}
	if len(chars) == 0 {
		return nil, errors.WithMessage(errors.ErrInvalidGrant, "no character of the scope remains")
	}

	g := a.newGrant(c.UserID, app, chars, all, c.Mask)
	g.Scopes = c.Scopes
	a.rotate(g)
	if err := a.Grants.Create(ctx, g); err != nil {
		return nil, err
	}
	metrics.GrantsIssued.WithLabelValues(a.Name()).Inc()
	logging.Ctx(ctx).Info().
		Str("application", app.ID).
		Str("user", g.UserID).
		Int("characters", len(g.Characters)).
		Msg("authorization code exchanged")
	return a.tokenInfo(g, g.Scopes), nil
}

// refresh rotates both tokens. The characters and expiry of the grant are kept;
// a requested scope must be contained in the original one.
func (a *AuthorizationCode) refresh(ctx context.Context, app *models.Application, tr *TokenRequest) (*TokenInfo, error) {
	if tr.Refresh == "" {
		return nil, errors.ErrInvalidRequest
	}
	g, err := a.Grants.ByRefreshToken(ctx, tr.Refresh, app.ID)
	if err != nil {
		return nil, notFoundAs(err, errors.ErrInvalidGrant)
	}
	scopes := []string(g.Scopes)
	if tr.Scope != "" {
		requested := ParseScope(tr.Scope)
		ok, err := a.containsScopes(ctx, g, requested)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errors.ErrInvalidScope
		}
		scopes = requested
	}
	a.rotate(g)
	if err := a.Grants.Update(ctx, g); err != nil {
		return nil, err
	}
	return a.tokenInfo(g, scopes), nil
}

func (a *AuthorizationCode) containsScopes(ctx context.Context, g *models.ApplicationGrant, requested []string) (bool, error) {
	if !AllChars(g.Scopes) {
		for _, s := range requested {
			if !g.Scopes.Contains(s) {
				return false, nil
			}
		}
		return true, nil
	}
	owned, err := a.Characters.OwnedBy(ctx, g.UserID)
	if err != nil {
		return false, err
	}
	for _, s := range requested {
		if s == models.ReservedScope {
			continue
		}
		if !slices.ContainsFunc(owned, func(c models.Character) bool { return c.Name == s }) {
			return false, nil
		}
	}
	return true, nil
}

// resolveScopes turns scope names into the ids of characters the user still owns.
func (a *AuthorizationCode) resolveScopes(ctx context.Context, userID string, scopes []string) (models.Int64List, bool, error) {
	owned, err := a.Characters.OwnedBy(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	all := AllChars(scopes)
	var ids models.Int64List
	for _, ch := range owned {
		if all || slices.Contains(scopes, ch.Name) {
			ids = append(ids, ch.ID)
		}
	}
	return ids, all, nil
}

func (a *AuthorizationCode) rotate(g *models.ApplicationGrant) {
	access, refresh := a.AccessGen.Token(generates.Basic{
		ApplicationID: g.ApplicationID,
		UserID:        g.UserID,
		CreateAt:      a.now(),
	}, true)
	g.AccessToken = &access
	g.RefreshToken = &refresh
}

func (a *AuthorizationCode) tokenInfo(g *models.ApplicationGrant, scopes []string) *TokenInfo {
	ti := &TokenInfo{
		AccessToken: a.GetToken(g),
		TokenType:   TokenTypeBearer,
		ExpiresIn:   int64(g.Expires.Sub(a.now()) / time.Second),
		Scope:       FormatScope(scopes),
	}
	if g.RefreshToken != nil {
		ti.RefreshToken = *g.RefreshToken
	}
	return ti
}

// Revoke nulls a token of the authenticated client. Unknown tokens are not an error.
func (a *AuthorizationCode) Revoke(ctx context.Context, clientID, secret, token, hint string) error {
	app, err := a.Client(ctx, clientID, secret)
	if err != nil {
		return err
	}
	if token == "" {
		return errors.ErrInvalidRequest
	}
	_, err = a.Grants.RevokeToken(ctx, app.ID, token, hint)
	return err
}

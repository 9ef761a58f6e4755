package protocol

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/legit-games/eveauth/errors"
	"github.com/legit-games/eveauth/generates"
	"github.com/legit-games/eveauth/models"
	"github.com/legit-games/eveauth/permission"
)

func query(t *testing.T, raw, key string) string {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u.Query().Get(key)
}

func requestID(t *testing.T, location string) string {
	t.Helper()
	require.True(t, strings.HasPrefix(location, "https://auth.example.com/authorize/"), location)
	return strings.TrimPrefix(location, "https://auth.example.com/authorize/")
}

func TestLegacyAuthorize(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	app := f.apps["app"]

	location, err := f.legacy.CreateRequest(ctx, app, "https://rp.example.com/ok", "https://rp.example.com/fail")
	require.NoError(t, err)
	req := &AuthorizeRequest{UserID: "u", RequestID: requestID(t, location)}

	consent, err := f.legacy.PreAuthorize(ctx, req)
	require.NoError(t, err)
	require.Empty(t, consent.Redirect)
	require.Len(t, consent.Characters, 2)

	optional := int64(0)
	redirect, err := f.legacy.Authorize(ctx, req, Choice{Characters: []int64{2}, Optional: &optional})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(redirect, "https://rp.example.com/ok?"))
	token := query(t, redirect, "token")

	g, err := f.legacy.BeforeAPI(ctx, app, token)
	require.NoError(t, err)
	require.Equal(t, models.Int64List{2}, g.Characters)
	require.Equal(t, int64(0x8), g.Mask)
	require.Equal(t, f.now.Add(app.GrantTTL()), g.Expires)
	require.Equal(t, token, f.legacy.GetToken(g))

	// The request is single use.
	_, err = f.legacy.PreAuthorize(ctx, req)
	require.ErrorIs(t, err, errors.ErrNotFound)

	resp := map[string]any{}
	f.legacy.AfterAPI(g, resp)
	require.Equal(t, g.Expires.Format(time.RFC3339), resp["expires"])
}

func TestLegacyExistingGrantIsReissued(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	app := f.apps["app"]
	prior := &models.ApplicationGrant{
		UserID: "u", ApplicationID: "app", Characters: models.Int64List{1}, Mask: 0x88,
		Expires: f.now.Add(48 * time.Hour),
	}
	require.NoError(t, f.grants.Create(ctx, prior))

	location, err := f.legacy.CreateRequest(ctx, app, "https://rp.example.com/ok", "https://rp.example.com/fail")
	require.NoError(t, err)
	consent, err := f.legacy.PreAuthorize(ctx, &AuthorizeRequest{UserID: "u", RequestID: requestID(t, location)})
	require.NoError(t, err)
	require.NotEmpty(t, consent.Redirect)

	token := query(t, consent.Redirect, "token")
	require.NotEqual(t, prior.ID, token)
	_, err = f.grants.Get(ctx, prior.ID, "app")
	require.ErrorIs(t, err, errors.ErrNotFound)

	g, err := f.grants.Get(ctx, token, "app")
	require.NoError(t, err)
	require.Equal(t, prior.Mask, g.Mask)
	require.Equal(t, prior.Characters, g.Characters)
	require.Equal(t, prior.Expires, g.Expires)
	require.Equal(t, 1, f.grants.count())
}

func TestLegacyDenyAndReauthenticate(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	app := f.apps["app"]

	location, err := f.legacy.CreateRequest(ctx, app, "https://rp.example.com/ok", "https://rp.example.com/fail")
	require.NoError(t, err)
	id := requestID(t, location)
	redirect, err := f.legacy.Deny(ctx, &AuthorizeRequest{UserID: "u", RequestID: id})
	require.NoError(t, err)
	require.Equal(t, "https://rp.example.com/fail?token="+id, redirect)

	prior := &models.ApplicationGrant{UserID: "u", ApplicationID: "app", Characters: models.Int64List{1}, Expires: f.now.Add(time.Hour)}
	require.NoError(t, f.grants.Create(ctx, prior))

	_, err = f.legacy.Reauthenticate(ctx, app, "unknown", "https://rp.example.com/ok", "https://rp.example.com/fail")
	require.ErrorIs(t, err, errors.ErrGrantInvalid)

	location, err = f.legacy.Reauthenticate(ctx, app, prior.ID, "https://rp.example.com/ok", "https://rp.example.com/fail")
	require.NoError(t, err)
	req := &AuthorizeRequest{UserID: "u", RequestID: requestID(t, location)}

	// A reauthentication always asks for consent.
	consent, err := f.legacy.PreAuthorize(ctx, req)
	require.NoError(t, err)
	require.Empty(t, consent.Redirect)
	require.Equal(t, prior.ID, consent.PriorGrant.ID)

	redirect, err = f.legacy.Authorize(ctx, req, Choice{AllChars: true})
	require.NoError(t, err)
	_, err = f.grants.Get(ctx, prior.ID, "app")
	require.ErrorIs(t, err, errors.ErrNotFound)
	g, err := f.grants.Get(ctx, query(t, redirect, "token"), "app")
	require.NoError(t, err)
	require.True(t, g.AllChars)
	require.Equal(t, int64(0x88), g.Mask)
}

func TestLegacyCallbackValidation(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		success string
		debug   bool
		want    error
	}{
		{"absolute https", "https://rp.example.com/ok", false, nil},
		{"relative", "/ok", false, errors.ErrArgument},
		{"missing", "", false, errors.ErrArgument},
		{"loopback", "http://127.0.0.1:8000/ok", false, errors.ErrArgument},
		{"private", "http://10.1.2.3/ok", false, errors.ErrArgument},
		{"localhost", "http://localhost/ok", false, errors.ErrArgument},
		{"loopback in debug", "http://127.0.0.1:8000/ok", true, nil},
		{"blacklisted scheme", "javascript:alert(1)", false, errors.ErrBlacklist},
		{"blacklisted host", "https://sub.evil.example/ok", false, errors.ErrBlacklist},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.legacy.Debug = tt.debug
			f.legacy.Blacklist = Blacklist{Schemes: []string{"javascript"}, Hosts: []string{"evil.example"}}
			_, err := f.legacy.CreateRequest(ctx, f.apps["app"], tt.success, "https://rp.example.com/fail")
			if tt.want == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestPreconditions(t *testing.T) {
	ctx := context.Background()

	t.Run("anonymous", func(t *testing.T) {
		f := newFixture()
		_, err := f.base.Eligible(ctx, "", f.apps["app"])
		require.ErrorIs(t, err, errors.ErrUnauthorized)
	})
	t.Run("missing permission", func(t *testing.T) {
		f := newFixture()
		f.base.Defaults = nil
		_, err := f.base.Eligible(ctx, "u", f.apps["app"])
		require.ErrorIs(t, err, errors.ErrForbidden)

		f.base.Authorizer = staticPerms{permission.ApplicationAuthorize("app")}
		_, err = f.base.Eligible(ctx, "u", f.apps["app"])
		require.NoError(t, err)
	})
	t.Run("required mask not covered", func(t *testing.T) {
		f := newFixture()
		f.apps["app"].RequiredMask = 0x100
		_, err := f.base.Eligible(ctx, "u", f.apps["app"])
		require.ErrorIs(t, err, errors.ErrForbidden)
	})
	t.Run("verified only", func(t *testing.T) {
		f := newFixture()
		f.creds[2] = []models.Credential{{KeyID: 12, OwnerID: "u", Mask: 0xff}}
		f.base.VerifiedOnly = true
		chars, err := f.base.Eligible(ctx, "u", f.apps["app"])
		require.NoError(t, err)
		require.Len(t, chars, 1)
		require.Equal(t, int64(1), chars[0].ID)
	})
	t.Run("credential of another user", func(t *testing.T) {
		f := newFixture()
		f.creds[1] = []models.Credential{{KeyID: 13, OwnerID: "other", Mask: 0xff}}
		chars, err := f.base.Eligible(ctx, "u", f.apps["app"])
		require.NoError(t, err)
		require.Len(t, chars, 1)
		require.Equal(t, int64(2), chars[0].ID)
	})
}

func TestChoiceValidation(t *testing.T) {
	eligible := []models.Character{{ID: 1}, {ID: 2}}
	tests := []struct {
		name   string
		app    models.Application
		choice Choice
		want   models.Int64List
		err    bool
	}{
		{"subset", models.Application{}, Choice{Characters: []int64{2, 2}}, models.Int64List{2}, false},
		{"all chars", models.Application{}, Choice{AllChars: true}, models.Int64List{1, 2}, false},
		{"nothing chosen", models.Application{}, Choice{}, nil, true},
		{"not eligible", models.Application{}, Choice{Characters: []int64{3}}, nil, true},
		{"all chars required", models.Application{AllCharsRequired: true}, Choice{Characters: []int64{1}}, nil, true},
		{"single char only", models.Application{SingleCharOnly: true}, Choice{Characters: []int64{1, 2}}, nil, true},
		{"single char only with all chars", models.Application{SingleCharOnly: true}, Choice{AllChars: true}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := chosen(&tt.app, eligible, tt.choice)
			if tt.err {
				require.ErrorIs(t, err, errors.ErrArgument)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestBeforeAPIDropsCharactersNoLongerOwned(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	app := f.apps["app"]
	g := &models.ApplicationGrant{UserID: "u", ApplicationID: "app", Characters: models.Int64List{1, 2}, Expires: f.now.Add(time.Hour)}
	require.NoError(t, f.grants.Create(ctx, g))
	all := &models.ApplicationGrant{UserID: "u", ApplicationID: "app", AllChars: true, Expires: f.now.Add(time.Hour)}
	require.NoError(t, f.grants.Create(ctx, all))

	(*f.chars)[1].OwnerID = strPtr("other")

	got, err := f.legacy.BeforeAPI(ctx, app, g.ID)
	require.NoError(t, err)
	require.Equal(t, models.Int64List{1}, got.Characters)
	stored, err := f.grants.Get(ctx, g.ID, "app")
	require.NoError(t, err)
	require.Equal(t, models.Int64List{1}, stored.Characters)

	got, err = f.legacy.BeforeAPI(ctx, app, all.ID)
	require.NoError(t, err)
	require.Equal(t, models.Int64List{1}, got.Characters)

	f.now = f.now.Add(2 * time.Hour)
	_, err = f.legacy.BeforeAPI(ctx, app, g.ID)
	require.ErrorIs(t, err, errors.ErrGrantInvalid)
}

func oauthFixture(t *testing.T) *fixture {
	t.Helper()
	f := newFixture()
	hash, err := generates.HashSecret("s3cret")
	require.NoError(t, err)
	f.apps["app"].ClientSecretHash = hash
	return f
}

func issueCode(t *testing.T, f *fixture, choice Choice) (string, *AuthorizeRequest) {
	t.Helper()
	req := &AuthorizeRequest{
		UserID: "u", ClientID: "app", RedirectURI: "https://rp.example.com/cb",
		State: "xyz", Scope: "Alice", ResponseType: ResponseTypeCode,
	}
	consent, err := f.oauth.PreAuthorize(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, []string{"Alice"}, consent.Requested)

	redirect, err := f.oauth.Authorize(context.Background(), req, choice)
	require.NoError(t, err)
	require.Equal(t, "xyz", query(t, redirect, "state"))
	code := query(t, redirect, "code")
	require.GreaterOrEqual(t, len(code), generates.MinLength)
	return code, req
}

func TestAuthorizationCodeSingleUse(t *testing.T) {
	ctx := context.Background()
	f := oauthFixture(t)
	code, _ := issueCode(t, f, Choice{Characters: []int64{1}})

	tr := &TokenRequest{
		GrantType: GrantTypeAuthorizationCode, ClientID: "app", ClientSecret: "s3cret",
		Code: code, RedirectURI: "https://rp.example.com/cb",
	}
	ti, err := f.oauth.Exchange(ctx, tr)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(ti.AccessToken), generates.MinLength)
	require.GreaterOrEqual(t, len(ti.RefreshToken), generates.MinLength)
	require.Equal(t, TokenTypeBearer, ti.TokenType)
	require.Equal(t, "Alice", ti.Scope)

	_, err = f.oauth.Exchange(ctx, tr)
	require.ErrorIs(t, err, errors.ErrInvalidGrant)
	_, err = f.codes.Take(ctx, code)
	require.ErrorIs(t, err, errors.ErrNotFound)

	g, err := f.oauth.BeforeAPI(ctx, f.apps["app"], ti.AccessToken)
	require.NoError(t, err)
	require.Equal(t, models.Int64List{1}, g.Characters)
	require.Equal(t, ti.AccessToken, f.oauth.GetToken(g))
}

func TestAuthorizationCodeAllChars(t *testing.T) {
	ctx := context.Background()
	f := oauthFixture(t)
	code, _ := issueCode(t, f, Choice{AllChars: true})

	ti, err := f.oauth.Exchange(ctx, &TokenRequest{
		GrantType: GrantTypeAuthorizationCode, ClientID: "app", ClientSecret: "s3cret",
		Code: code, RedirectURI: "https://rp.example.com/cb",
	})
	require.NoError(t, err)
	require.Equal(t, models.ReservedScope, ti.Scope)

	g, err := f.oauth.BeforeAPI(ctx, f.apps["app"], ti.AccessToken)
	require.NoError(t, err)
	require.True(t, g.AllChars)
	require.Equal(t, models.Int64List{1, 2}, g.Characters)
}

func TestAuthorizationCodeExchangeErrors(t *testing.T) {
	ctx := context.Background()
	f := oauthFixture(t)
	code, _ := issueCode(t, f, Choice{Characters: []int64{1}})

	tests := []struct {
		name string
		tr   TokenRequest
		want error
	}{
		{"no grant type", TokenRequest{ClientID: "app", ClientSecret: "s3cret"}, errors.ErrUnsupportedGrantType},
		{"unknown grant type", TokenRequest{GrantType: "password", ClientID: "app", ClientSecret: "s3cret"}, errors.ErrUnsupportedGrantType},
		{"wrong secret", TokenRequest{GrantType: GrantTypeAuthorizationCode, ClientID: "app", ClientSecret: "nope", Code: code, RedirectURI: "https://rp.example.com/cb"}, errors.ErrInvalidClient},
		{"unknown client", TokenRequest{GrantType: GrantTypeAuthorizationCode, ClientID: "nope", ClientSecret: "s3cret", Code: code, RedirectURI: "https://rp.example.com/cb"}, errors.ErrInvalidClient},
		{"missing code", TokenRequest{GrantType: GrantTypeAuthorizationCode, ClientID: "app", ClientSecret: "s3cret", RedirectURI: "https://rp.example.com/cb"}, errors.ErrInvalidRequest},
		{"redirect mismatch", TokenRequest{GrantType: GrantTypeAuthorizationCode, ClientID: "app", ClientSecret: "s3cret", Code: code, RedirectURI: "https://rp.example.com/other"}, errors.ErrInvalidGrant},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.oauth.Exchange(ctx, &tt.tr)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestAuthorizationCodeRefresh(t *testing.T) {
	ctx := context.Background()
	f := oauthFixture(t)
	code, _ := issueCode(t, f, Choice{Characters: []int64{1}})
	ti, err := f.oauth.Exchange(ctx, &TokenRequest{
		GrantType: GrantTypeAuthorizationCode, ClientID: "app", ClientSecret: "s3cret",
		Code: code, RedirectURI: "https://rp.example.com/cb",
	})
	require.NoError(t, err)

	_, err = f.oauth.Exchange(ctx, &TokenRequest{
		GrantType: GrantTypeRefreshToken, ClientID: "app", ClientSecret: "s3cret",
		Refresh: ti.RefreshToken, Scope: "Bob&Smith",
	})
	require.ErrorIs(t, err, errors.ErrInvalidScope)

	f.now = f.now.Add(time.Hour)
	next, err := f.oauth.Exchange(ctx, &TokenRequest{
		GrantType: GrantTypeRefreshToken, ClientID: "app", ClientSecret: "s3cret",
		Refresh: ti.RefreshToken, Scope: "Alice",
	})
	require.NoError(t, err)
	require.NotEqual(t, ti.AccessToken, next.AccessToken)
	require.NotEqual(t, ti.RefreshToken, next.RefreshToken)
	require.Equal(t, ti.ExpiresIn-3600, next.ExpiresIn)

	_, err = f.oauth.Exchange(ctx, &TokenRequest{
		GrantType: GrantTypeRefreshToken, ClientID: "app", ClientSecret: "s3cret", Refresh: ti.RefreshToken,
	})
	require.ErrorIs(t, err, errors.ErrInvalidGrant)

	_, err = f.oauth.BeforeAPI(ctx, f.apps["app"], ti.AccessToken)
	require.ErrorIs(t, err, errors.ErrGrantInvalid)
	g, err := f.oauth.BeforeAPI(ctx, f.apps["app"], next.AccessToken)
	require.NoError(t, err)
	require.Equal(t, models.Int64List{1}, g.Characters)

	require.NoError(t, f.oauth.Revoke(ctx, "app", "s3cret", next.AccessToken, ""))
	_, err = f.oauth.BeforeAPI(ctx, f.apps["app"], next.AccessToken)
	require.ErrorIs(t, err, errors.ErrGrantInvalid)
}

func TestAuthorizationCodeRequestValidation(t *testing.T) {
	ctx := context.Background()
	f := oauthFixture(t)

	_, err := f.oauth.GetApplication(ctx, &AuthorizeRequest{ClientID: "app", ResponseType: "token"})
	require.ErrorIs(t, err, errors.ErrUnsupportedResponseType)

	_, err = f.oauth.GetApplication(ctx, &AuthorizeRequest{ClientID: "app", ResponseType: ResponseTypeCode, RedirectURI: "https://attacker.example/cb"})
	require.ErrorIs(t, err, errors.ErrInvalidRequest)

	req := &AuthorizeRequest{ClientID: "app", ResponseType: ResponseTypeCode}
	_, err = f.oauth.GetApplication(ctx, req)
	require.NoError(t, err)
	require.Equal(t, "https://rp.example.com/cb", req.RedirectURI)

	req = &AuthorizeRequest{UserID: "u", ClientID: "app", ResponseType: ResponseTypeCode, State: "s1"}
	redirect, err := f.oauth.Deny(ctx, req)
	require.NoError(t, err)
	require.Equal(t, "access_denied", query(t, redirect, "error"))
	require.Equal(t, "s1", query(t, redirect, "state"))
}

func TestRegistryResolvesEitherToken(t *testing.T) {
	ctx := context.Background()
	f := oauthFixture(t)
	reg := NewRegistry(f.legacy, f.oauth)
	require.Equal(t, []string{models.MethodLegacy, models.MethodAuthorizationCode}, reg.Names())

	legacyGrant := &models.ApplicationGrant{UserID: "u", ApplicationID: "app", Characters: models.Int64List{1}, Expires: f.now.Add(time.Hour)}
	require.NoError(t, f.grants.Create(ctx, legacyGrant))
	code, _ := issueCode(t, f, Choice{Characters: []int64{2}})
	ti, err := f.oauth.Exchange(ctx, &TokenRequest{
		GrantType: GrantTypeAuthorizationCode, ClientID: "app", ClientSecret: "s3cret",
		Code: code, RedirectURI: "https://rp.example.com/cb",
	})
	require.NoError(t, err)

	g, p, err := reg.ResolveGrant(ctx, f.apps["app"], legacyGrant.ID)
	require.NoError(t, err)
	require.Equal(t, models.MethodLegacy, p.Name())
	require.Equal(t, legacyGrant.ID, g.ID)

	g, p, err = reg.ResolveGrant(ctx, f.apps["app"], ti.AccessToken)
	require.NoError(t, err)
	require.Equal(t, models.MethodAuthorizationCode, p.Name())
	require.Equal(t, models.Int64List{2}, g.Characters)

	_, _, err = reg.ResolveGrant(ctx, f.apps["app"], "nope")
	require.ErrorIs(t, err, errors.ErrGrantInvalid)
	_, _, err = reg.ResolveGrant(ctx, f.apps["app"], "")
	require.ErrorIs(t, err, errors.ErrArgument)
}

func TestScopeEncoding(t *testing.T) {
	require.Equal(t, []string{"Alice", "Bob Smith"}, ParseScope("Alice  Bob&Smith Alice"))
	require.Equal(t, "Alice Bob&Smith", FormatScope([]string{"Alice", "Bob Smith"}))
	require.True(t, AllChars(ParseScope("all_chars")))
	require.Empty(t, ParseScope(""))
}

package protocol

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/legit-games/eveauth/errors"
	"github.com/legit-games/eveauth/models"
	"github.com/legit-games/eveauth/permission"
)

type memApps map[string]*models.Application

func (m memApps) Get(_ context.Context, id string) (*models.Application, error) {
	a, ok := m[id]
	if !ok {
		return nil, errors.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

type memGrants struct {
	mu     sync.Mutex
	grants map[string]models.ApplicationGrant
	now    func() time.Time
}

func newMemGrants(now func() time.Time) *memGrants {
	return &memGrants{grants: map[string]models.ApplicationGrant{}, now: now}
}

func (m *memGrants) Create(_ context.Context, g *models.ApplicationGrant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	m.grants[g.ID] = *g
	return nil
}

func (m *memGrants) find(match func(g models.ApplicationGrant) bool) (*models.ApplicationGrant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.grants {
		if match(g) && !g.Expired(m.now()) {
			cp := g
			return &cp, nil
		}
	}
	return nil, errors.ErrNotFound
}

func (m *memGrants) Get(_ context.Context, id, appID string) (*models.ApplicationGrant, error) {
	return m.find(func(g models.ApplicationGrant) bool { return g.ID == id && g.ApplicationID == appID })
}

func (m *memGrants) ByAccessToken(_ context.Context, token, appID string) (*models.ApplicationGrant, error) {
	return m.find(func(g models.ApplicationGrant) bool {
		return g.AccessToken != nil && *g.AccessToken == token && g.ApplicationID == appID
	})
}

func (m *memGrants) ByRefreshToken(_ context.Context, token, appID string) (*models.ApplicationGrant, error) {
	return m.find(func(g models.ApplicationGrant) bool {
		return g.RefreshToken != nil && *g.RefreshToken == token && g.ApplicationID == appID
	})
}

func (m *memGrants) ForUser(_ context.Context, userID, appID string) (*models.ApplicationGrant, error) {
	return m.find(func(g models.ApplicationGrant) bool { return g.UserID == userID && g.ApplicationID == appID })
}

func (m *memGrants) Update(_ context.Context, g *models.ApplicationGrant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grants[g.ID] = *g
	return nil
}

func (m *memGrants) SetCharacters(_ context.Context, id string, chars models.Int64List) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g := m.grants[id]
	g.Characters = chars
	m.grants[id] = g
	return nil
}

func (m *memGrants) Delete(_ context.Context, id, appID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.grants[id]
	if !ok || g.ApplicationID != appID {
		return false, nil
	}
	delete(m.grants, id)
	return true, nil
}

func (m *memGrants) RevokeToken(_ context.Context, appID, token, hint string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, g := range m.grants {
		if g.ApplicationID != appID {
			continue
		}
		if hint != "refresh_token" && g.AccessToken != nil && *g.AccessToken == token {
			g.AccessToken = nil
			m.grants[id] = g
			return true, nil
		}
		if hint != "access_token" && g.RefreshToken != nil && *g.RefreshToken == token {
			g.RefreshToken = nil
			m.grants[id] = g
			return true, nil
		}
	}
	return false, nil
}

func (m *memGrants) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.grants)
}

type memChars []models.Character

func (m *memChars) OwnedBy(_ context.Context, userID string) ([]models.Character, error) {
	var out []models.Character
	for _, c := range *m {
		if c.OwnedBy(userID) {
			out = append(out, c)
		}
	}
	return out, nil
}

type memCreds map[int64][]models.Credential

func (m memCreds) ForCharacter(_ context.Context, id int64) ([]models.Credential, error) {
	return m[id], nil
}

type staticPerms permission.Set

func (s staticPerms) Permissions(context.Context, string, ...models.Character) (permission.Set, error) {
	return permission.Set(s), nil
}

type memRequests map[string]models.AuthenticationRequest

func (m memRequests) Create(_ context.Context, r *models.AuthenticationRequest) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	m[r.ID] = *r
	return nil
}

func (m memRequests) Get(_ context.Context, id string) (*models.AuthenticationRequest, error) {
	r, ok := m[id]
	if !ok {
		return nil, errors.ErrNotFound
	}
	return &r, nil
}

func (m memRequests) Update(_ context.Context, r *models.AuthenticationRequest) error {
	m[r.ID] = *r
	return nil
}

type memCodes struct {
	mu    sync.Mutex
	codes map[string]models.AuthorizationCode
}

func (m *memCodes) Create(_ context.Context, c *models.AuthorizationCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes[c.Code] = *c
	return nil
}

func (m *memCodes) Take(_ context.Context, code string) (*models.AuthorizationCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.codes[code]
	if !ok {
		return nil, errors.ErrNotFound
	}
	delete(m.codes, code)
	return &c, nil
}

func strPtr(s string) *string { return &s }

// fixture is one user "u" with characters Alice (1) and Bob Smith (2), both
// covered by a verified account key, and a third character Eve (3) owned by
// someone else.
type fixture struct {
	now      time.Time
	apps     memApps
	grants   *memGrants
	chars    *memChars
	creds    memCreds
	requests memRequests
	codes    *memCodes
	base     *Base
	legacy   *Legacy
	oauth    *AuthorizationCode
}

func newFixture() *fixture {
	f := &fixture{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return f.now }
	f.apps = memApps{
		"app": {
			ID:           "app",
			Short:        "app",
			RequiredMask: 0x8,
			OptionalMask: 0x80,
			Methods:      models.StringList{models.MethodLegacy, models.MethodAuthorizationCode},
			RedirectURI:  "https://rp.example.com/cb",
		},
	}
	f.grants = newMemGrants(clock)
	f.chars = &memChars{
		{ID: 1, Name: "Alice", OwnerID: strPtr("u")},
		{ID: 2, Name: "Bob Smith", OwnerID: strPtr("u")},
		{ID: 3, Name: "Eve", OwnerID: strPtr("other")},
	}
	key := models.Credential{KeyID: 10, OwnerID: "u", Kind: models.KeyAccount, Mask: 0xff, Verified: true}
	f.creds = memCreds{1: {key}, 2: {key}, 3: {{KeyID: 11, OwnerID: "other", Mask: 0xff}}}
	f.requests = memRequests{}
	f.codes = &memCodes{codes: map[string]models.AuthorizationCode{}}
	f.base = &Base{
		Applications: f.apps,
		Grants:       f.grants,
		Characters:   f.chars,
		Credentials:  f.creds,
		Authorizer:   staticPerms{},
		Defaults:     permission.Set{"core.application.authorize.*"},
		Now:          clock,
	}
	f.legacy = &Legacy{Base: f.base, Requests: f.requests, BaseURL: "https://auth.example.com/"}
	f.oauth = NewAuthorizationCode(f.base, f.codes, "https://auth.example.com")
	return f
}

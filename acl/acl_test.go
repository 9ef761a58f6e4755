package acl

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/legit-games/eveauth/errors"
	"github.com/legit-games/eveauth/models"
	"github.com/legit-games/eveauth/permission"
)

type memGroups struct {
	groups map[string]models.Group
}

func newMemGroups(gs ...models.Group) *memGroups {
	m := &memGroups{groups: map[string]models.Group{}}
	for _, g := range gs {
		m.groups[g.ID] = g
	}
	return m
}

func (m *memGroups) Get(_ context.Context, id string) (*models.Group, error) {
	g, ok := m.groups[id]
	if !ok {
		return nil, errors.ErrNotFound
	}
	return &g, nil
}

func (m *memGroups) List(_ context.Context) ([]models.Group, error) {
	var out []models.Group
	for _, g := range m.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memGroups) Save(_ context.Context, g *models.Group) error {
	m.groups[g.ID] = *g
	return nil
}

func (m *memGroups) Delete(_ context.Context, id string) error {
	if _, ok := m.groups[id]; !ok {
		return errors.ErrNotFound
	}
	delete(m.groups, id)
	return nil
}

func (m *memGroups) Rename(_ context.Context, from, to string) (*models.Group, error) {
	g, ok := m.groups[from]
	if !ok {
		return nil, errors.ErrNotFound
	}
	delete(m.groups, from)
	g.ID = to
	m.groups[to] = g
	for id, other := range m.groups {
		if other.ReplaceReference(from, to) {
			m.groups[id] = other
		}
	}
	return &g, nil
}

type memCreds map[int64][]models.Credential

func (m memCreds) ForCharacter(_ context.Context, id int64) ([]models.Credential, error) {
	return m[id], nil
}

type memCache struct {
	rows        map[string]bool
	invalidated [][]string
}

func newMemCache() *memCache { return &memCache{rows: map[string]bool{}} }

func cacheRow(group string, set models.RuleSetName, ch int64) string {
	return fmt.Sprintf("%s|%s|%d", group, set, ch)
}

func (c *memCache) Put(_ context.Context, group string, set models.RuleSetName, ch int64, member bool) error {
	c.rows[cacheRow(group, set, ch)] = member
	return nil
}

func (c *memCache) Members(_ context.Context, group string, set models.RuleSetName, member bool) ([]int64, error) {
	return nil, nil
}

func (c *memCache) Invalidate(_ context.Context, groups []string) error {
	c.invalidated = append(c.invalidated, groups)
	return nil
}

func i64(v int64) *int64 { return &v }

func owned(id int64, user string) *models.Character {
	return &models.Character{
		ID:            id,
		Name:          "pilot",
		OwnerID:       &user,
		CorporationID: i64(500),
		AllianceID:    i64(900),
		Titles:        models.StringList{"Director"},
		Roles:         models.StringList{"Accountant"},
	}
}

func TestRuleSemantics(t *testing.T) {
	ctx := context.Background()
	creds := memCreds{1: {{KeyID: 10, OwnerID: "u", Kind: models.KeyAccount, Mask: 0x8 | 0x80}}}
	e := &Engine{Groups: newMemGroups(), Credentials: creds}
	ch := owned(1, "u")

	tests := []struct {
		name string
		rule models.Rule
		want Result
	}{
		{"very secure allow", models.Rule{Kind: models.RuleVerySecure, Grant: true}, Allow},
		{"very secure deny", models.Rule{Kind: models.RuleVerySecure, Grant: false}, Deny},
		{"very secure inverse skips", models.Rule{Kind: models.RuleVerySecure, Grant: true, Inverse: true}, Deny},
		{"character id", models.Rule{Kind: models.RuleIDList, Grant: true, IDKind: models.IDCharacter, IDs: []int64{1}}, Allow},
		{"corporation id", models.Rule{Kind: models.RuleIDList, Grant: true, IDKind: models.IDCorporation, IDs: []int64{500}}, Allow},
		{"alliance miss", models.Rule{Kind: models.RuleIDList, Grant: true, IDKind: models.IDAlliance, IDs: []int64{1}}, Deny},
		{"alliance miss inverse", models.Rule{Kind: models.RuleIDList, Grant: true, Inverse: true, IDKind: models.IDAlliance, IDs: []int64{1}}, Allow},
		{"key kind", models.Rule{Kind: models.RuleKeyKind, Grant: true, KeyKind: models.KeyAccount}, Allow},
		{"key kind miss", models.Rule{Kind: models.RuleKeyKind, Grant: true, KeyKind: models.KeyCorporation}, Deny},
		{"title", models.Rule{Kind: models.RuleTitle, Grant: true, Titles: []string{"CEO", "Director"}}, Allow},
		{"role miss", models.Rule{Kind: models.RuleRole, Grant: true, Roles: []string{"Director"}}, Deny},
		{"mask covered", models.Rule{Kind: models.RuleMask, Grant: true, Mask: 0x88}, Allow},
		{"mask not covered", models.Rule{Kind: models.RuleMask, Grant: true, Mask: 0x40000}, Deny},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &models.Group{ID: "g", Rules: models.RuleSet{tt.rule}}
			got, err := e.Evaluate(ctx, "u", ch, g, models.RuleSetRules)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestFirstNonSkipWins(t *testing.T) {
	ctx := context.Background()
	e := &Engine{Groups: newMemGroups(), Credentials: memCreds{}}
	g := &models.Group{ID: "g", Rules: models.RuleSet{
		{Kind: models.RuleIDList, Grant: true, IDKind: models.IDCharacter, IDs: []int64{2}},
		{Kind: models.RuleIDList, Grant: false, IDKind: models.IDCorporation, IDs: []int64{500}},
		{Kind: models.RuleVerySecure, Grant: true},
	}}
	got, err := e.Evaluate(ctx, "u", owned(1, "u"), g, models.RuleSetRules)
	require.NoError(t, err)
	require.Equal(t, Deny, got)

	got, err = e.Evaluate(ctx, "u", owned(2, "u"), g, models.RuleSetRules)
	require.NoError(t, err)
	require.Equal(t, Allow, got)
}

func TestUnownedCharacterDenied(t *testing.T) {
	ctx := context.Background()
	e := &Engine{Groups: newMemGroups(), Credentials: memCreds{}}
	g := &models.Group{ID: "g", Rules: models.RuleSet{{Kind: models.RuleVerySecure, Grant: true}}}

	got, err := e.Evaluate(ctx, "u", &models.Character{ID: 1}, g, models.RuleSetRules)
	require.NoError(t, err)
	require.Equal(t, Deny, got)

	got, err = e.Evaluate(ctx, "someone-else", owned(1, "u"), g, models.RuleSetRules)
	require.NoError(t, err)
	require.Equal(t, Deny, got)
}

func TestCredentialsOfOtherOwnersIgnored(t *testing.T) {
	ctx := context.Background()
	creds := memCreds{1: {{KeyID: 10, OwnerID: "intruder", Kind: models.KeyCorporation}}}
	e := &Engine{Groups: newMemGroups(), Credentials: creds}
	g := &models.Group{ID: "g", Rules: models.RuleSet{{Kind: models.RuleKeyKind, Grant: true, KeyKind: models.KeyCorporation}}}

	got, err := e.Evaluate(ctx, "u", owned(1, "u"), g, models.RuleSetRules)
	require.NoError(t, err)
	require.Equal(t, Deny, got)
}

func TestPublicMembership(t *testing.T) {
	ctx := context.Background()
	deny := models.RuleSet{{Kind: models.RuleVerySecure, Grant: false}}
	allow := models.RuleSet{{Kind: models.RuleVerySecure, Grant: true}}
	e := &Engine{Groups: newMemGroups(), Credentials: memCreds{}}
	ch := owned(1, "u")

	tests := []struct {
		name string
		g    models.Group
		want bool
	}{
		{"implicit rules allow", models.Group{ID: "g", Rules: allow}, true},
		{"nothing allows", models.Group{ID: "g", Rules: deny, JoinRules: allow, RequestRules: allow}, false},
		{"manual member passing join rules", models.Group{ID: "g", Rules: deny, JoinRules: allow, ManualJoinMembers: models.Int64List{1}}, true},
		{"manual member failing join rules", models.Group{ID: "g", Rules: deny, JoinRules: deny, ManualJoinMembers: models.Int64List{1}}, false},
		{"request member passing request rules", models.Group{ID: "g", Rules: deny, RequestRules: allow, RequestMembers: models.Int64List{1}}, true},
		{"pending request is not membership", models.Group{ID: "g", Rules: deny, RequestRules: allow, PendingRequests: models.Int64List{1}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.IsMember(ctx, "u", ch, &tt.g)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestGroupMembershipRule(t *testing.T) {
	ctx := context.Background()
	groups := newMemGroups(
		models.Group{ID: "corp", Rules: models.RuleSet{{Kind: models.RuleIDList, Grant: true, IDKind: models.IDCorporation, IDs: []int64{500}}}},
		models.Group{ID: "fc", Rules: models.RuleSet{{Kind: models.RuleGroupMembership, Grant: true, Group: "corp"}}},
		models.Group{ID: "loop", Rules: models.RuleSet{{Kind: models.RuleGroupMembership, Grant: true, Group: "loop"}}},
	)
	cache := newMemCache()
	e := &Engine{Groups: groups, Credentials: memCreds{}, Cache: cache}

	fc, _ := groups.Get(ctx, "fc")
	ok, err := e.IsMember(ctx, "u", owned(1, "u"), fc)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, cache.rows[cacheRow("corp", models.RuleSetRules, 1)])

	ch := owned(2, "u")
	ch.CorporationID = i64(1)
	ok, err = e.IsMember(ctx, "u", ch, fc)
	require.NoError(t, err)
	require.False(t, ok)

	// A stored self reference terminates and denies.
	loop, _ := groups.Get(ctx, "loop")
	ok, err = e.IsMember(ctx, "u", owned(1, "u"), loop)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSaveRejectsCycles(t *testing.T) {
	ctx := context.Background()
	groups := newMemGroups()
	cache := newMemCache()
	svc := NewService(groups, memCreds{}, cache)

	require.NoError(t, svc.Save(ctx, &models.Group{ID: "g2"}))
	require.NoError(t, svc.Save(ctx, &models.Group{ID: "g1", Rules: models.RuleSet{{Kind: models.RuleGroupMembership, Grant: true, Group: "g2"}}}))

	invalidations := len(cache.invalidated)
	err := svc.Save(ctx, &models.Group{ID: "g2", Rules: models.RuleSet{{Kind: models.RuleGroupMembership, Grant: true, Group: "g1"}}})
	require.ErrorIs(t, err, errors.ErrCyclicReference)
	require.Len(t, cache.invalidated, invalidations)
	stored, _ := groups.Get(ctx, "g2")
	require.Empty(t, stored.Rules)

	err = svc.Save(ctx, &models.Group{ID: "self", RequestRules: models.RuleSet{{Kind: models.RuleGroupMembership, Grant: true, Group: "self"}}})
	require.ErrorIs(t, err, errors.ErrCyclicReference)

	err = svc.Save(ctx, &models.Group{ID: "g3", JoinRules: models.RuleSet{{Kind: models.RuleGroupMembership, Grant: true, Group: "missing"}}})
	require.ErrorIs(t, err, errors.ErrArgument)

	require.ErrorIs(t, svc.Delete(ctx, "g2"), errors.ErrStillReferenced)
	require.NoError(t, svc.Delete(ctx, "g1"))
	require.NoError(t, svc.Delete(ctx, "g2"))
}

func TestSaveInvalidatesDependents(t *testing.T) {
	ctx := context.Background()
	groups := newMemGroups()
	cache := newMemCache()
	svc := NewService(groups, memCreds{}, cache)

	require.NoError(t, svc.Save(ctx, &models.Group{ID: "a"}))
	require.NoError(t, svc.Save(ctx, &models.Group{ID: "b", Rules: models.RuleSet{{Kind: models.RuleGroupMembership, Grant: true, Group: "a"}}}))
	require.NoError(t, svc.Save(ctx, &models.Group{ID: "c", JoinRules: models.RuleSet{{Kind: models.RuleGroupMembership, Grant: true, Group: "b"}}}))

	cache.invalidated = nil
	require.NoError(t, svc.Save(ctx, &models.Group{ID: "a", Title: "changed"}))
	require.Equal(t, [][]string{{"a", "b", "c"}}, cache.invalidated)
}

func TestJoinRequestAccept(t *testing.T) {
	ctx := context.Background()
	groups := newMemGroups(models.Group{
		ID:           "g",
		JoinRules:    models.RuleSet{{Kind: models.RuleIDList, Grant: true, IDKind: models.IDCharacter, IDs: []int64{1}}},
		RequestRules: models.RuleSet{{Kind: models.RuleVerySecure, Grant: true}},
	})
	svc := NewService(groups, memCreds{}, nil)

	require.NoError(t, svc.Join(ctx, "u", owned(1, "u"), "g"))
	require.ErrorIs(t, svc.Join(ctx, "u", owned(2, "u"), "g"), errors.ErrForbidden)

	require.NoError(t, svc.Request(ctx, "u", owned(2, "u"), "g"))
	g, _ := groups.Get(ctx, "g")
	require.Equal(t, models.Int64List{2}, g.PendingRequests)

	ok, err := svc.Engine.IsMember(ctx, "u", owned(2, "u"), g)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, svc.Accept(ctx, "g", 2))
	g, _ = groups.Get(ctx, "g")
	require.Empty(t, g.PendingRequests)
	ok, err = svc.Engine.IsMember(ctx, "u", owned(2, "u"), g)
	require.NoError(t, err)
	require.True(t, ok)

	require.ErrorIs(t, svc.Accept(ctx, "g", 2), errors.ErrNotFound)

	require.NoError(t, svc.Leave(ctx, "g", 2))
	g, _ = groups.Get(ctx, "g")
	require.Empty(t, g.RequestMembers)
}

func TestPermissionGrantRevoke(t *testing.T) {
	ctx := context.Background()
	groups := newMemGroups(models.Group{ID: "g", Rules: models.RuleSet{{Kind: models.RuleVerySecure, Grant: true}}})
	svc := NewService(groups, memCreds{}, nil)
	admin := permission.Set{"permission.grant.app.*", "permission.revoke.app.*"}

	require.ErrorIs(t, svc.GrantPermission(ctx, permission.Set{}, "g", "app.read"), errors.ErrForbidden)
	require.NoError(t, svc.GrantPermission(ctx, admin, "g", "app.read"))
	require.ErrorIs(t, svc.GrantPermission(ctx, admin, "g", "Bad Perm"), errors.ErrArgument)

	perms, err := svc.Permissions(ctx, "u", *owned(1, "u"))
	require.NoError(t, err)
	require.True(t, perms.Grants("app.read"))

	tags, err := svc.Tags(ctx, "u", owned(1, "u"), []string{"g", "missing"})
	require.NoError(t, err)
	require.Equal(t, []string{"g"}, tags)

	require.NoError(t, svc.RevokePermission(ctx, admin, "g", "app.read"))
	require.ErrorIs(t, svc.RevokePermission(ctx, admin, "g", "app.read"), errors.ErrNotFound)
}

func TestRenameKeepsInboundReferences(t *testing.T) {
	ctx := context.Background()
	groups := newMemGroups(
		models.Group{ID: "old", Permissions: models.StringList{"app.read"}},
		models.Group{ID: "ref", Rules: models.RuleSet{{Kind: models.RuleGroupMembership, Grant: true, Group: "old"}}},
	)
	svc := NewService(groups, memCreds{}, newMemCache())

	g, err := svc.Rename(ctx, "old", "new")
	require.NoError(t, err)
	require.Equal(t, models.StringList{"app.read"}, g.Permissions)
	ref, _ := groups.Get(ctx, "ref")
	require.Equal(t, "new", ref.Rules[0].Group)
}

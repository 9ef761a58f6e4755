// Package acl evaluates group membership rules for (user, character) pairs.
//
// Every rule yields Allow, Deny or Skip. A rule-set is walked in order and the
// first non-skip result wins; an exhausted rule-set denies.
package acl

import (
	"context"
	"slices"

	"github.com/legit-games/eveauth/errors"
	"github.com/legit-games/eveauth/models"
)

// Result is the outcome of a rule or rule-set.
type Result int

const (
	Skip Result = iota
	Allow
	Deny
)

func (r Result) String() string {
	switch r {
	case Allow:
		return "allow"
	case Deny:
		return "deny"
	default:
		return "skip"
	}
}

// GroupSource loads groups by id.
type GroupSource interface {
	Get(ctx context.Context, id string) (*models.Group, error)
}

// CredentialSource lists the credentials exposing a character.
type CredentialSource interface {
	ForCharacter(ctx context.Context, characterID int64) ([]models.Credential, error)
}

// MembershipCache records evaluated rule-set results.
type MembershipCache interface {
	Put(ctx context.Context, group string, set models.RuleSetName, character int64, member bool) error
	Members(ctx context.Context, group string, set models.RuleSetName, member bool) ([]int64, error)
	Invalidate(ctx context.Context, groups []string) error
}

// Engine evaluates rule-sets. Cache is optional.
type Engine struct {
	Groups      GroupSource
	Credentials CredentialSource
	Cache       MembershipCache
}

// Evaluate runs the named rule-set of g for the character. The result is Allow or Deny.
func (e *Engine) Evaluate(ctx context.Context, userID string, ch *models.Character, g *models.Group, set models.RuleSetName) (Result, error) {
	ev := e.newEvaluation(userID, ch)
	return ev.ruleSet(ctx, g, set)
}

// IsMember reports public membership: a manual member passing join_rules, a
// request member passing request_rules, or anyone passing rules.
func (e *Engine) IsMember(ctx context.Context, userID string, ch *models.Character, g *models.Group) (bool, error) {
	ev := e.newEvaluation(userID, ch)
	return ev.public(ctx, g)
}

type evaluation struct {
	e      *Engine
	userID string
	ch     *models.Character

	creds       []models.Credential
	credsLoaded bool
	// stack holds the groups whose implicit rules are being evaluated.
	stack map[string]bool
}

func (e *Engine) newEvaluation(userID string, ch *models.Character) *evaluation {
	return &evaluation{e: e, userID: userID, ch: ch, stack: map[string]bool{}}
}

func (ev *evaluation) public(ctx context.Context, g *models.Group) (bool, error) {
	if ev.ch == nil || !ev.ch.OwnedBy(ev.userID) {
		return false, nil
	}
	if g.ManualJoinMembers.Contains(ev.ch.ID) {
		r, err := ev.ruleSet(ctx, g, models.RuleSetJoin)
		if err != nil || r == Allow {
			return r == Allow, err
		}
	}
	if g.RequestMembers.Contains(ev.ch.ID) {
		r, err := ev.ruleSet(ctx, g, models.RuleSetRequest)
		if err != nil || r == Allow {
			return r == Allow, err
		}
	}
	r, err := ev.ruleSet(ctx, g, models.RuleSetRules)
	return r == Allow, err
}

func (ev *evaluation) ruleSet(ctx context.Context, g *models.Group, set models.RuleSetName) (Result, error) {
	if ev.ch == nil || !ev.ch.OwnedBy(ev.userID) {
		return Deny, nil
	}
	if set == models.RuleSetRules {
		ev.stack[g.ID] = true
		defer delete(ev.stack, g.ID)
	}
	result := Deny
	for _, r := range g.RuleSet(set) {
		res, err := ev.rule(ctx, r)
		if err != nil {
			return Deny, err
		}
		if res != Skip {
			result = res
			break
		}
	}
	if ev.e.Cache != nil {
		// Cache writes are best effort.
		_ = ev.e.Cache.Put(ctx, g.ID, set, ev.ch.ID, result == Allow)
	}
	return result, nil
}

func (ev *evaluation) rule(ctx context.Context, r models.Rule) (Result, error) {
	matched, err := ev.match(ctx, r)
	if err != nil {
		return Skip, err
	}
	grant := Deny
	if r.Grant {
		grant = Allow
	}
	if matched {
		if r.Inverse {
			return Skip, nil
		}
		return grant, nil
	}
	if r.Inverse {
		return grant, nil
	}
	return Skip, nil
}

func (ev *evaluation) match(ctx context.Context, r models.Rule) (bool, error) {
	ch := ev.ch
	switch r.Kind {
	case models.RuleIDList:
		switch r.IDKind {
		case models.IDCharacter:
			return slices.Contains(r.IDs, ch.ID), nil
		case models.IDCorporation:
			return ch.CorporationID != nil && slices.Contains(r.IDs, *ch.CorporationID), nil
		case models.IDAlliance:
			return ch.AllianceID != nil && slices.Contains(r.IDs, *ch.AllianceID), nil
		}
		return false, nil
	case models.RuleKeyKind:
		creds, err := ev.credentials(ctx)
		if err != nil {
			return false, err
		}
		return slices.ContainsFunc(creds, func(c models.Credential) bool { return c.Kind == r.KeyKind }), nil
	case models.RuleTitle:
		return intersects(ch.Titles, r.Titles), nil
	case models.RuleRole:
		return intersects(ch.Roles, r.Roles), nil
	case models.RuleMask:
		creds, err := ev.credentials(ctx)
		if err != nil {
			return false, err
		}
		return slices.ContainsFunc(creds, func(c models.Credential) bool { return c.Covers(r.Mask) }), nil
	case models.RuleGroupMembership:
		if ev.stack[r.Group] {
			return false, nil
		}
		target, err := ev.e.Groups.Get(ctx, r.Group)
		if errors.Is(err, errors.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		res, err := ev.ruleSet(ctx, target, models.RuleSetRules)
		return res == Allow, err
	case models.RuleVerySecure:
		return true, nil
	}
	return false, nil
}

// credentials returns the user's own credentials exposing the character.
func (ev *evaluation) credentials(ctx context.Context) ([]models.Credential, error) {
	if ev.credsLoaded {
		return ev.creds, nil
	}
	all, err := ev.e.Credentials.ForCharacter(ctx, ev.ch.ID)
	if err != nil {
		return nil, err
	}
	for _, c := range all {
		if c.OwnerID == ev.userID {
			ev.creds = append(ev.creds, c)
		}
	}
	ev.credsLoaded = true
	return ev.creds, nil
}

func intersects(have, want []string) bool {
	for _, w := range want {
		if slices.Contains(have, w) {
			return true
		}
	}
	return false
}

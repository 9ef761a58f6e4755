package acl

import (
	"context"
	"fmt"
	"strings"

	"github.com/legit-games/eveauth/errors"
	"github.com/legit-games/eveauth/logging"
	"github.com/legit-games/eveauth/models"
	"github.com/legit-games/eveauth/permission"
)

// Repository is the group storage the service writes through.
type Repository interface {
	GroupSource
	List(ctx context.Context) ([]models.Group, error)
	Save(ctx context.Context, g *models.Group) error
	Delete(ctx context.Context, id string) error
	Rename(ctx context.Context, from, to string) (*models.Group, error)
}

// Service applies group writes with cycle and reference checks and keeps the
// membership cache coherent.
type Service struct {
	Groups Repository
	Engine *Engine
}

func NewService(groups Repository, creds CredentialSource, cache MembershipCache) *Service {
	return &Service{
		Groups: groups,
		Engine: &Engine{Groups: groups, Credentials: creds, Cache: cache},
	}
}

func (s *Service) Get(ctx context.Context, id string) (*models.Group, error) {
	return s.Groups.Get(ctx, id)
}

// Save validates g, rejects reference cycles and unknown targets, persists it
// and invalidates the caches depending on it.
func (s *Service) Save(ctx context.Context, g *models.Group) error {
	if err := g.Validate(); err != nil {
		return errors.MalformedArgument("group", err.Error())
	}
	for _, ref := range g.References() {
		if ref == g.ID {
			continue
		}
		if _, err := s.Groups.Get(ctx, ref); err != nil {
			if errors.Is(err, errors.ErrNotFound) {
				return errors.MalformedArgument("rules", "unknown group "+ref)
			}
			return err
		}
	}
	if err := CheckCycles(ctx, s.Groups, g); err != nil {
		return err
	}
	if err := s.Groups.Save(ctx, g); err != nil {
		return err
	}
	s.invalidate(ctx, g.ID)
	return nil
}

// Delete removes a group no other group references.
func (s *Service) Delete(ctx context.Context, id string) error {
	all, err := s.Groups.List(ctx)
	if err != nil {
		return err
	}
	var refs []string
	for i := range all {
		if all[i].ID != id && all[i].Refers(id) {
			refs = append(refs, all[i].ID)
		}
	}
	if len(refs) > 0 {
		return errors.WithMessage(errors.ErrStillReferenced, "referenced by "+strings.Join(refs, ", "))
	}
	s.invalidateIn(ctx, all, id)
	return s.Groups.Delete(ctx, id)
}

// Rename moves a group to a new id, carrying its inbound references along.
func (s *Service) Rename(ctx context.Context, from, to string) (*models.Group, error) {
	to = strings.TrimSpace(to)
	if to == "" {
		return nil, errors.MissingArgument("id")
	}
	if to == from {
		return s.Groups.Get(ctx, from)
	}
	s.invalidate(ctx, from)
	g, err := s.Groups.Rename(ctx, from, to)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, to)
	return g, nil
}

// Join adds the character to the manual members when join_rules allow it.
func (s *Service) Join(ctx context.Context, userID string, ch *models.Character, groupID string) error {
	g, err := s.Groups.Get(ctx, groupID)
	if err != nil {
		return err
	}
	res, err := s.Engine.Evaluate(ctx, userID, ch, g, models.RuleSetJoin)
	if err != nil {
		return err
	}
	if res != Allow {
		return errors.WithMessage(errors.ErrForbidden, "join rules deny "+ch.Name)
	}
	g.ManualJoinMembers = g.ManualJoinMembers.With(ch.ID)
	return s.Groups.Save(ctx, g)
}

// Request files a membership request when request_rules allow the character to apply.
func (s *Service) Request(ctx context.Context, userID string, ch *models.Character, groupID string) error {
	g, err := s.Groups.Get(ctx, groupID)
	if err != nil {
		return err
	}
	res, err := s.Engine.Evaluate(ctx, userID, ch, g, models.RuleSetRequest)
	if err != nil {
		return err
	}
	if res != Allow {
		return errors.WithMessage(errors.ErrForbidden, "request rules deny "+ch.Name)
	}
	if g.RequestMembers.Contains(ch.ID) {
		return nil
	}
	g.PendingRequests = g.PendingRequests.With(ch.ID)
	return s.Groups.Save(ctx, g)
}

// Accept turns a pending request into a request membership.
func (s *Service) Accept(ctx context.Context, groupID string, characterID int64) error {
	g, err := s.Groups.Get(ctx, groupID)
	if err != nil {
		return err
	}
	if !g.PendingRequests.Contains(characterID) {
		return errors.WithMessage(errors.ErrNotFound, "no pending request")
	}
	g.PendingRequests = g.PendingRequests.Without(characterID)
	g.RequestMembers = g.RequestMembers.With(characterID)
	return s.Groups.Save(ctx, g)
}

// Leave drops the character from every explicit list of the group.
func (s *Service) Leave(ctx context.Context, groupID string, characterID int64) error {
	g, err := s.Groups.Get(ctx, groupID)
	if err != nil {
		return err
	}
	g.ManualJoinMembers = g.ManualJoinMembers.Without(characterID)
	g.RequestMembers = g.RequestMembers.Without(characterID)
	g.PendingRequests = g.PendingRequests.Without(characterID)
	return s.Groups.Save(ctx, g)
}

// GrantPermission adds perm to the group; holder needs permission.grant.<perm>.
func (s *Service) GrantPermission(ctx context.Context, holder permission.Set, groupID, perm string) error {
	if err := permission.Validate(perm); err != nil {
		return errors.MalformedArgument("permission", err.Error())
	}
	if !holder.Grants(permission.GrantMeta(perm)) {
		return errors.WithMessage(errors.ErrForbidden, "missing "+permission.GrantMeta(perm))
	}
	g, err := s.Groups.Get(ctx, groupID)
	if err != nil {
		return err
	}
	g.Permissions = g.Permissions.With(perm)
	return s.Groups.Save(ctx, g)
}

// RevokePermission removes perm from the group; holder needs permission.revoke.<perm>.
func (s *Service) RevokePermission(ctx context.Context, holder permission.Set, groupID, perm string) error {
	if !holder.Grants(permission.RevokeMeta(perm)) {
		return errors.WithMessage(errors.ErrForbidden, "missing "+permission.RevokeMeta(perm))
	}
	g, err := s.Groups.Get(ctx, groupID)
	if err != nil {
		return err
	}
	if !g.Permissions.Contains(perm) {
		return errors.WithMessage(errors.ErrNotFound, "group does not carry "+perm)
	}
	g.Permissions = g.Permissions.Without(perm)
	return s.Groups.Save(ctx, g)
}

// Tags returns the ids among groupIDs whose public membership allows the character.
func (s *Service) Tags(ctx context.Context, userID string, ch *models.Character, groupIDs []string) ([]string, error) {
	tags := []string{}
	for _, id := range groupIDs {
		g, err := s.Groups.Get(ctx, id)
		if errors.Is(err, errors.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		ok, err := s.Engine.IsMember(ctx, userID, ch, g)
		if err != nil {
			return nil, err
		}
		if ok {
			tags = append(tags, id)
		}
	}
	return tags, nil
}

// Permissions is the union of the permissions of every group the character
// publicly belongs to.
func (s *Service) Permissions(ctx context.Context, userID string, chars ...models.Character) (permission.Set, error) {
	all, err := s.Groups.List(ctx)
	if err != nil {
		return nil, err
	}
	var out permission.Set
	for i := range chars {
		for j := range all {
			if len(all[j].Permissions) == 0 {
				continue
			}
			ok, err := s.Engine.IsMember(ctx, userID, &chars[i], &all[j])
			if err != nil {
				return nil, err
			}
			if ok {
				out = out.Merge(all[j].Permissions)
			}
		}
	}
	return out, nil
}

// KnownMembers returns the cached members of a rule-set.
func (s *Service) KnownMembers(ctx context.Context, groupID string, set models.RuleSetName) ([]int64, error) {
	if s.Engine.Cache == nil {
		return nil, nil
	}
	return s.Engine.Cache.Members(ctx, groupID, set, true)
}

func (s *Service) invalidate(ctx context.Context, id string) {
	if s.Engine.Cache == nil {
		return
	}
	all, err := s.Groups.List(ctx)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("group", id).Msg("cache invalidation skipped")
		return
	}
	s.invalidateIn(ctx, all, id)
}

func (s *Service) invalidateIn(ctx context.Context, all []models.Group, id string) {
	if s.Engine.Cache == nil {
		return
	}
	deps := Dependents(all, id)
	if err := s.Engine.Cache.Invalidate(ctx, deps); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("group", id).Msg(fmt.Sprintf("invalidate %d groups", len(deps)))
	}
}

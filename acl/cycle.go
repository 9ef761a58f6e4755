package acl

import (
	"context"

	"github.com/legit-games/eveauth/errors"
	"github.com/legit-games/eveauth/models"
)

type color int

const (
	white color = iota
	grey
	black
)

// CheckCycles walks GroupMembership references from candidate across all three
// rule-sets. Stored groups are used for every id except candidate.ID, which is
// taken from candidate itself. Unknown groups are leaves.
func CheckCycles(ctx context.Context, groups GroupSource, candidate *models.Group) error {
	colors := map[string]color{}
	var visit func(id string) error
	visit = func(id string) error {
		switch colors[id] {
		case grey:
			return errors.WithMessage(errors.ErrCyclicReference, "group "+id+" references itself")
		case black:
			return nil
		}
		colors[id] = grey

		var refs []string
		if id == candidate.ID {
			refs = candidate.References()
		} else {
			g, err := groups.Get(ctx, id)
			switch {
			case errors.Is(err, errors.ErrNotFound):
			case err != nil:
				return err
			default:
				refs = g.References()
			}
		}
		for _, ref := range refs {
			if err := visit(ref); err != nil {
				return err
			}
		}
		colors[id] = black
		return nil
	}
	return visit(candidate.ID)
}

// Dependents returns id and every group that references it, directly or transitively.
func Dependents(all []models.Group, id string) []string {
	reverse := map[string][]string{}
	for i := range all {
		for _, ref := range all[i].References() {
			reverse[ref] = append(reverse[ref], all[i].ID)
		}
	}
	seen := map[string]bool{id: true}
	out := []string{id}
	for queue := []string{id}; len(queue) > 0; queue = queue[1:] {
		for _, dep := range reverse[queue[0]] {
			if !seen[dep] {
				seen[dep] = true
				out = append(out, dep)
				queue = append(queue, dep)
			}
		}
	}
	return out
}

package permission

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// Wildcard occupies exactly one segment; as the last segment it also matches any tail.
	Wildcard  = "*"
	Separator = "."

	segmentRegex = `^([a-z0-9_\-]+|\*)$`
)

var segmentRe = regexp.MustCompile(segmentRegex)

// Built-in permission identifiers.
const (
	ApplicationCreate = "core.application.create"
	GroupCreate       = "core.group.create"
)

// Grants reports whether the granted permission covers the wanted one.
//
//	Grants("core.*.read", "core.user.read")    == true
//	Grants("core.*", "core.user.read.v2")      == true
//	Grants("core.user", "core.user.read")      == false
func Grants(granted, wanted string) bool {
	if granted == "" || wanted == "" {
		return false
	}
	g := strings.Split(granted, Separator)
	p := strings.Split(wanted, Separator)
	if len(g) > len(p) {
		return false
	}
	if len(g) < len(p) && g[len(g)-1] != Wildcard {
		return false
	}
	for i := range g {
		if g[i] == Wildcard {
			continue
		}
		if g[i] != p[i] {
			return false
		}
	}
	return true
}

// Set is a list of held permissions.
type Set []string

// Grants returns true if any element of the set grants p.
func (s Set) Grants(p string) bool {
	for _, g := range s {
		if Grants(g, p) {
			return true
		}
	}
	return false
}

// Merge returns the union of s and others without duplicates, preserving order.
func (s Set) Merge(others ...[]string) Set {
	seen := make(map[string]struct{}, len(s))
	out := make(Set, 0, len(s))
	add := func(p string) {
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	for _, p := range s {
		add(p)
	}
	for _, o := range others {
		for _, p := range o {
			add(p)
		}
	}
	return out
}

// Validate checks that id is a lowercase dotted identifier.
func Validate(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("permission is empty")
	}
	for _, seg := range strings.Split(id, Separator) {
		if !segmentRe.MatchString(seg) {
			return fmt.Errorf("invalid permission segment %q in %q", seg, id)
		}
	}
	return nil
}

// GrantMeta is the permission required to grant id to a group.
func GrantMeta(id string) string { return "permission.grant." + id }

// RevokeMeta is the permission required to revoke id from a group.
func RevokeMeta(id string) string { return "permission.revoke." + id }

// ApplicationAuthorize is the permission a user needs to authorize the application with that short name.
func ApplicationAuthorize(short string) string { return "core.application.authorize." + short }

// GroupManage is the permission required to edit, rename or delete a group.
func GroupManage(groupID string) string { return "core.group.manage." + groupID }

// ForApplication scopes a relying-party supplied permission under its short name.
func ForApplication(short, perm string) string { return short + Separator + perm }

package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// RuleKind tags the variant of a Rule.
type RuleKind string

const (
	RuleIDList          RuleKind = "id_list"
	RuleKeyKind         RuleKind = "key_kind"
	RuleTitle           RuleKind = "title"
	RuleRole            RuleKind = "role"
	RuleMask            RuleKind = "mask"
	RuleGroupMembership RuleKind = "group"
	RuleVerySecure      RuleKind = "very_secure"
)

// IDKind selects which id of a character an IdList rule compares.
type IDKind string

const (
	IDCharacter   IDKind = "character"
	IDCorporation IDKind = "corporation"
	IDAlliance    IDKind = "alliance"
)

// Rule is one entry of a rule-set. Kind selects which of the variant fields are used:
//
//	id_list      IDKind, IDs
//	key_kind     KeyKind
//	title        Titles
//	role         Roles
//	mask         Mask
//	group        Group
//	very_secure  (none)
type Rule struct {
	Kind    RuleKind `json:"kind"`
	Grant   bool     `json:"grant"`
	Inverse bool     `json:"inverse,omitempty"`
	IDKind  IDKind   `json:"id_kind,omitempty"`
	IDs     []int64  `json:"ids,omitempty"`
	KeyKind KeyKind  `json:"key_kind,omitempty"`
	Titles  []string `json:"titles,omitempty"`
	Roles   []string `json:"roles,omitempty"`
	Mask    int64    `json:"mask,omitempty"`
	Group   string   `json:"group,omitempty"`
}

// Validate checks that the variant data required by Kind is present.
func (r Rule) Validate() error {
	switch r.Kind {
	case RuleIDList:
		switch r.IDKind {
		case IDCharacter, IDCorporation, IDAlliance:
		default:
			return fmt.Errorf("id_list rule has unknown id kind %q", r.IDKind)
		}
	case RuleKeyKind:
		if _, err := ParseKeyKind(string(r.KeyKind)); err != nil {
			return err
		}
	case RuleTitle, RuleRole, RuleMask, RuleVerySecure:
	case RuleGroupMembership:
		if r.Group == "" {
			return fmt.Errorf("group rule without target group")
		}
	default:
		return fmt.Errorf("unknown rule kind %q", r.Kind)
	}
	return nil
}

// RuleSet is an ordered rule list stored as JSON.
type RuleSet []Rule

func (s RuleSet) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]Rule(s))
	return string(b), err
}

func (s *RuleSet) Scan(src any) error {
	*s = nil
	return scanJSON(src, s)
}

// RuleSetName names one of the three rule-sets of a group.
type RuleSetName string

const (
	RuleSetRules   RuleSetName = "rules"
	RuleSetJoin    RuleSetName = "join_rules"
	RuleSetRequest RuleSetName = "request_rules"
)

// RuleSetNames lists the rule-sets in evaluation order of public membership.
var RuleSetNames = []RuleSetName{RuleSetRules, RuleSetJoin, RuleSetRequest}

// Group is an ACL group.
type Group struct {
	ID                string     `gorm:"column:id;primaryKey" json:"id"`
	Title             string     `gorm:"column:title" json:"title"`
	Rules             RuleSet    `gorm:"column:rules" json:"rules"`
	JoinRules         RuleSet    `gorm:"column:join_rules" json:"join_rules"`
	RequestRules      RuleSet    `gorm:"column:request_rules" json:"request_rules"`
	ManualJoinMembers Int64List  `gorm:"column:manual_join_members" json:"manual_join_members"`
	RequestMembers    Int64List  `gorm:"column:request_members" json:"request_members"`
	PendingRequests   Int64List  `gorm:"column:pending_requests" json:"pending_requests"`
	Permissions       StringList `gorm:"column:permissions" json:"permissions"`
	CreatorID         *string    `gorm:"column:creator_id" json:"creator_id,omitempty"`
	CreatedAt         time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (Group) TableName() string { return "acl_groups" }

// RuleSet returns the named rule-set.
func (g *Group) RuleSet(name RuleSetName) RuleSet {
	switch name {
	case RuleSetJoin:
		return g.JoinRules
	case RuleSetRequest:
		return g.RequestRules
	default:
		return g.Rules
	}
}

// References returns the ids of groups named by GroupMembership rules in any rule-set.
func (g *Group) References() []string {
	var out []string
	seen := map[string]bool{}
	for _, name := range RuleSetNames {
		for _, r := range g.RuleSet(name) {
			if r.Kind == RuleGroupMembership && !seen[r.Group] {
				seen[r.Group] = true
				out = append(out, r.Group)
			}
		}
	}
	return out
}

// Refers reports whether g references the group id.
func (g *Group) Refers(id string) bool {
	for _, ref := range g.References() {
		if ref == id {
			return true
		}
	}
	return false
}

// ReplaceReference rewrites GroupMembership rules pointing at from to point at to.
// It returns true if anything changed.
func (g *Group) ReplaceReference(from, to string) bool {
	changed := false
	for _, set := range []RuleSet{g.Rules, g.JoinRules, g.RequestRules} {
		for i := range set {
			if set[i].Kind == RuleGroupMembership && set[i].Group == from {
				set[i].Group = to
				changed = true
			}
		}
	}
	return changed
}

// Validate checks every rule of every rule-set.
func (g *Group) Validate() error {
	if g.ID == "" {
		return fmt.Errorf("group id is empty")
	}
	for _, name := range RuleSetNames {
		for i, r := range g.RuleSet(name) {
			if err := r.Validate(); err != nil {
				return fmt.Errorf("%s[%d]: %w", name, i, err)
			}
		}
	}
	return nil
}

// GroupCategory groups related groups for presentation.
type GroupCategory struct {
	ID        string     `gorm:"column:id;primaryKey" json:"id"`
	Title     string     `gorm:"column:title" json:"title"`
	Members   StringList `gorm:"column:members" json:"members"`
	CreatedAt time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (GroupCategory) TableName() string { return "group_categories" }

// Permission is a registered permission identifier.
type Permission struct {
	ID            string    `gorm:"column:id;primaryKey" json:"id"`
	Description   string    `gorm:"column:description" json:"description"`
	ApplicationID *string   `gorm:"column:application_id" json:"application_id,omitempty"`
	CreatedAt     time.Time `gorm:"column:created_at" json:"created_at"`
}

func (Permission) TableName() string { return "permissions" }

// GroupMembershipCache is one cached evaluation of a rule-set for a character.
type GroupMembershipCache struct {
	GroupID     string      `gorm:"column:group_id;primaryKey"`
	RuleSet     RuleSetName `gorm:"column:rule_set;primaryKey"`
	CharacterID int64       `gorm:"column:character_id;primaryKey;autoIncrement:false"`
	Member      bool        `gorm:"column:member"`
	UpdatedAt   time.Time   `gorm:"column:updated_at"`
}

func (GroupMembershipCache) TableName() string { return "group_membership_cache" }

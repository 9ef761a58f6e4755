package dto

import "github.com/legit-games/eveauth/models"

// GroupRequest creates or replaces a group's title and rule-sets. Member lists
// and permissions have their own endpoints.
type GroupRequest struct {
	Title        string         `json:"title" binding:"required,max=200"`
	Rules        models.RuleSet `json:"rules"`
	JoinRules    models.RuleSet `json:"join_rules"`
	RequestRules models.RuleSet `json:"request_rules"`
}

// Apply copies the request onto g.
func (r *GroupRequest) Apply(g *models.Group) {
	g.Title = r.Title
	g.Rules = r.Rules
	g.JoinRules = r.JoinRules
	g.RequestRules = r.RequestRules
}

type RenameGroupRequest struct {
	ID string `json:"id" binding:"required"`
}

type GroupPermissionRequest struct {
	Permission string `json:"permission" binding:"required"`
}

// CharacterRequest names the acting character of a self-service call.
type CharacterRequest struct {
	Character int64 `json:"character" form:"character" binding:"required,gt=0"`
}

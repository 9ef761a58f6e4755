package models

import "time"

// ApplicationGrant records that an application may act for a user's characters.
// When AllChars is set the character list is refreshed from the user's current
// characters at read time.
type ApplicationGrant struct {
	ID            string     `gorm:"column:id;primaryKey" json:"id"`
	UserID        string     `gorm:"column:user_id" json:"user_id"`
	ApplicationID string     `gorm:"column:application_id" json:"application_id"`
	Characters    Int64List  `gorm:"column:characters" json:"characters"`
	AllChars      bool       `gorm:"column:all_chars" json:"all_chars"`
	Mask          int64      `gorm:"column:mask" json:"mask"`
	Scopes        StringList `gorm:"column:scopes" json:"scopes,omitempty"`
	AccessToken   *string    `gorm:"column:access_token" json:"-"`
	RefreshToken  *string    `gorm:"column:refresh_token" json:"-"`
	Expires       time.Time  `gorm:"column:expires" json:"expires"`
	CreatedAt     time.Time  `gorm:"column:created_at" json:"created_at"`
}

func (ApplicationGrant) TableName() string { return "application_grants" }

// Expired reports whether the grant is past its expiry.
func (g *ApplicationGrant) Expired(now time.Time) bool {
	return !g.Expires.After(now)
}

// DefaultCharacter is the first character of the grant, or zero.
func (g *ApplicationGrant) DefaultCharacter() int64 {
	if len(g.Characters) == 0 {
		return 0
	}
	return g.Characters[0]
}

// AuthenticationRequest is the short-lived handoff record of the legacy flow.
type AuthenticationRequest struct {
	ID            string    `gorm:"column:id;primaryKey" json:"id"`
	ApplicationID string    `gorm:"column:application_id" json:"application_id"`
	UserID        *string   `gorm:"column:user_id" json:"user_id,omitempty"`
	Success       string    `gorm:"column:success" json:"success"`
	Failure       string    `gorm:"column:failure" json:"failure"`
	GrantID       *string   `gorm:"column:grant_id" json:"grant_id,omitempty"`
	PriorGrantID  *string   `gorm:"column:prior_grant_id" json:"prior_grant_id,omitempty"`
	Expires       time.Time `gorm:"column:expires" json:"expires"`
	CreatedAt     time.Time `gorm:"column:created_at" json:"created_at"`
}

func (AuthenticationRequest) TableName() string { return "authentication_requests" }

func (r *AuthenticationRequest) Expired(now time.Time) bool {
	return !r.Expires.After(now)
}

// AuthorizationCode is the single-use code of the authorization code flow.
type AuthorizationCode struct {
	Code          string     `gorm:"column:code;primaryKey" json:"code"`
	ApplicationID string     `gorm:"column:application_id" json:"application_id"`
	UserID        string     `gorm:"column:user_id" json:"user_id"`
	RedirectURI   string     `gorm:"column:redirect_uri" json:"redirect_uri"`
	Scopes        StringList `gorm:"column:scopes" json:"scopes"`
	Mask          int64      `gorm:"column:mask" json:"mask"`
	State         string     `gorm:"column:state" json:"state"`
	Expires       time.Time  `gorm:"column:expires" json:"expires"`
	CreatedAt     time.Time  `gorm:"column:created_at" json:"created_at"`
}

func (AuthorizationCode) TableName() string { return "authorization_codes" }

func (c *AuthorizationCode) Expired(now time.Time) bool {
	return !c.Expires.After(now)
}

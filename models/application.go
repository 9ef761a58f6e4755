package models

import (
	"time"
)

// Authorization methods an application may advertise.
const (
	MethodLegacy            = "legacy"
	MethodAuthorizationCode = "oauth2"
)

// Application is a relying party.
//
// The envelope keypair (PublicKey supplied by the relying party, PrivateKey generated
// here) is used by every method. RedirectURI and ClientSecretHash are the storage of
// the authorization code method.
type Application struct {
	ID               string     `gorm:"column:id;primaryKey" json:"id"`
	Name             string     `gorm:"column:name" json:"name"`
	Description      string     `gorm:"column:description" json:"description"`
	Site             string     `gorm:"column:site" json:"site"`
	Contact          string     `gorm:"column:contact" json:"contact"`
	Short            string     `gorm:"column:short" json:"short"`
	RequiredMask     int64      `gorm:"column:required_mask" json:"required_mask"`
	OptionalMask     int64      `gorm:"column:optional_mask" json:"optional_mask"`
	Groups           StringList `gorm:"column:tag_groups" json:"groups"`
	Methods          StringList `gorm:"column:methods" json:"methods"`
	AllCharsRequired bool       `gorm:"column:all_chars_required" json:"all_chars_required"`
	SingleCharOnly   bool       `gorm:"column:single_char_only" json:"single_char_only"`
	DevelopmentOnly  bool       `gorm:"column:development_only" json:"development_only"`
	GrantTTLDays     int        `gorm:"column:grant_ttl_days" json:"grant_ttl_days"`
	OwnerID          string     `gorm:"column:owner_id" json:"owner_id"`
	PublicKey        string     `gorm:"column:public_key" json:"public_key"`
	PrivateKey       string     `gorm:"column:private_key" json:"-"`
	RedirectURI      string     `gorm:"column:redirect_uri" json:"redirect_uri,omitempty"`
	ClientSecretHash string     `gorm:"column:client_secret_hash" json:"-"`
	CreatedAt        time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (Application) TableName() string { return "applications" }

// Supports reports whether the application advertises the authorization method.
func (a *Application) Supports(method string) bool {
	return a.Methods.Contains(method)
}

// AllowedMask is the union of the required and optional masks.
func (a *Application) AllowedMask() int64 {
	return a.RequiredMask | a.OptionalMask
}

// EffectiveMask restricts a requested optional mask to what the application allows and
// always includes the required bits.
func (a *Application) EffectiveMask(requested int64) int64 {
	return a.RequiredMask | (requested & a.OptionalMask)
}

// GrantTTL is the lifetime of grants issued to this application.
func (a *Application) GrantTTL() time.Duration {
	days := a.GrantTTLDays
	if days <= 0 {
		days = 30
	}
	return time.Duration(days) * 24 * time.Hour
}

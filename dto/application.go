package dto

import (
	"time"

	"github.com/legit-games/eveauth/models"
)

// RegisterApplicationRequest registers a relying party.
type RegisterApplicationRequest struct {
	Name             string   `json:"name" binding:"required,max=100"`
	Description      string   `json:"description"`
	Site             string   `json:"site" binding:"omitempty,url"`
	Contact          string   `json:"contact" binding:"omitempty,email"`
	Short            string   `json:"short" binding:"required,max=32"`
	RequiredMask     int64    `json:"required_mask" binding:"min=0"`
	OptionalMask     int64    `json:"optional_mask" binding:"min=0"`
	Groups           []string `json:"groups"`
	Methods          []string `json:"methods" binding:"required,min=1,dive,oneof=legacy oauth2"`
	AllCharsRequired bool     `json:"all_chars_required"`
	SingleCharOnly   bool     `json:"single_char_only"`
	GrantTTLDays     int      `json:"grant_ttl_days" binding:"min=0"`
	PublicKey        string   `json:"public_key" binding:"required"`
	RedirectURI      string   `json:"redirect_uri" binding:"omitempty,url"`
}

// Application converts the request into a model owned by ownerID.
func (r *RegisterApplicationRequest) Application(ownerID string) *models.Application {
	return &models.Application{
		Name:             r.Name,
		Description:      r.Description,
		Site:             r.Site,
		Contact:          r.Contact,
		Short:            r.Short,
		RequiredMask:     r.RequiredMask,
		OptionalMask:     r.OptionalMask,
		Groups:           models.StringList(r.Groups),
		Methods:          models.StringList(r.Methods),
		AllCharsRequired: r.AllCharsRequired,
		SingleCharOnly:   r.SingleCharOnly,
		GrantTTLDays:     r.GrantTTLDays,
		OwnerID:          ownerID,
		PublicKey:        r.PublicKey,
		RedirectURI:      r.RedirectURI,
	}
}

// ApplicationResponse represents an application. ClientSecret is only set in
// the registration response.
type ApplicationResponse struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Short            string    `json:"short"`
	RequiredMask     int64     `json:"required_mask"`
	OptionalMask     int64     `json:"optional_mask"`
	Groups           []string  `json:"groups"`
	Methods          []string  `json:"methods"`
	AllCharsRequired bool      `json:"all_chars_required"`
	SingleCharOnly   bool      `json:"single_char_only"`
	RedirectURI      string    `json:"redirect_uri,omitempty"`
	ServerPublicKey  string    `json:"server_public_key"`
	ClientSecret     string    `json:"client_secret,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

func FromApplication(a *models.Application, serverKey, secret string) ApplicationResponse {
	groups, methods := []string(a.Groups), []string(a.Methods)
	if groups == nil {
		groups = []string{}
	}
	return ApplicationResponse{
		ID:               a.ID,
		Name:             a.Name,
		Short:            a.Short,
		RequiredMask:     a.RequiredMask,
		OptionalMask:     a.OptionalMask,
		Groups:           groups,
		Methods:          methods,
		AllCharsRequired: a.AllCharsRequired,
		SingleCharOnly:   a.SingleCharOnly,
		RedirectURI:      a.RedirectURI,
		ServerPublicKey:  serverKey,
		ClientSecret:     secret,
		CreatedAt:        a.CreatedAt,
	}
}

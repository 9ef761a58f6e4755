package dto

import (
	"time"

	"github.com/legit-games/eveauth/models"
)

// CredentialRequest submits an upstream API key.
type CredentialRequest struct {
	KeyID int64  `json:"key" form:"key" binding:"required,gt=0"`
	VCode string `json:"code" form:"code" binding:"required,min=20,max=64"`
}

type CredentialResponse struct {
	KeyID      int64      `json:"key"`
	Kind       string     `json:"kind"`
	Mask       int64      `json:"mask"`
	Verified   bool       `json:"verified"`
	Expires    *time.Time `json:"expires,omitempty"`
	Violation  string     `json:"violation,omitempty"`
	Characters []int64    `json:"characters"`
}

func FromCredential(c *models.Credential, chars []int64) CredentialResponse {
	if chars == nil {
		chars = []int64{}
	}
	return CredentialResponse{
		KeyID:      c.KeyID,
		Kind:       string(c.Kind),
		Mask:       c.Mask,
		Verified:   c.Verified,
		Expires:    c.Expires,
		Violation:  string(c.Violation),
		Characters: chars,
	}
}

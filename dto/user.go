package dto

import (
	"time"

	"github.com/legit-games/eveauth/models"
)

// UserResponse represents a user in API responses.
type UserResponse struct {
	ID                 string     `json:"id"`
	Username           string     `json:"username"`
	Email              string     `json:"email,omitempty"`
	PrimaryCharacterID *int64     `json:"primary_character_id,omitempty"`
	AppBanned          bool       `json:"app_banned"`
	LastLoginAt        *time.Time `json:"last_login_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// FromUser converts a models.User to UserResponse.
func FromUser(u *models.User) UserResponse {
	return UserResponse{
		ID:                 u.ID,
		Username:           u.Username,
		Email:              u.Email,
		PrimaryCharacterID: u.PrimaryCharacterID,
		AppBanned:          u.AppBanned,
		LastLoginAt:        u.LastLoginAt,
		CreatedAt:          u.CreatedAt,
	}
}

// AccountResponse is the signed-in user's own view of their account.
type AccountResponse struct {
	User          UserResponse         `json:"user"`
	Characters    []CharacterResponse  `json:"characters"`
	Credentials   []CredentialResponse `json:"credentials"`
	OtherAccounts []string             `json:"other_accounts"`
	Logins        []LoginResponse      `json:"logins"`
}

type LoginResponse struct {
	Success   bool      `json:"success"`
	IP        string    `json:"ip"`
	UserAgent string    `json:"user_agent"`
	At        time.Time `json:"at"`
}

func FromLogins(h []models.LoginHistory) []LoginResponse {
	out := make([]LoginResponse, len(h))
	for i, l := range h {
		out[i] = LoginResponse{Success: l.Success, IP: l.IP, UserAgent: l.UserAgent, At: l.CreatedAt}
	}
	return out
}

package models

import (
	"strings"
	"time"
)

// User is a local account. Authentication is delegated to an external identity provider.
type User struct {
	ID                 string     `gorm:"column:id;primaryKey" json:"id"`
	Username           string     `gorm:"column:username" json:"username"`
	Email              string     `gorm:"column:email" json:"email"`
	OTPPrefixes        StringList `gorm:"column:otp_prefixes" json:"-"`
	PrimaryCharacterID *int64     `gorm:"column:primary_character_id" json:"primary_character_id,omitempty"`
	Active             bool       `gorm:"column:active" json:"active"`
	AppBanned          bool       `gorm:"column:app_banned" json:"app_banned"`
	LastLoginAt        *time.Time `gorm:"column:last_login_at" json:"last_login_at,omitempty"`
	CreatedAt          time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (User) TableName() string { return "users" }

// Normalize lowercases the unique fields.
func (u *User) Normalize() {
	u.Username = strings.ToLower(strings.TrimSpace(u.Username))
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
}

// LoginHistory records each identity assertion accepted or rejected for a user.
type LoginHistory struct {
	ID        string    `gorm:"column:id;primaryKey" json:"id"`
	UserID    string    `gorm:"column:user_id" json:"user_id"`
	Success   bool      `gorm:"column:success" json:"success"`
	IP        string    `gorm:"column:ip" json:"ip"`
	UserAgent string    `gorm:"column:user_agent" json:"user_agent"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
}

func (LoginHistory) TableName() string { return "login_history" }

// AccountLink cross-links two users detected to share a character ("other accounts").
// UserID is always the lexically smaller id of the pair.
type AccountLink struct {
	UserID      string    `gorm:"column:user_id;primaryKey" json:"user_id"`
	OtherUserID string    `gorm:"column:other_user_id;primaryKey" json:"other_user_id"`
	Reason      string    `gorm:"column:reason" json:"reason"`
	CreatedAt   time.Time `gorm:"column:created_at" json:"created_at"`
}

func (AccountLink) TableName() string { return "account_links" }

// NewAccountLink orders the pair so that (a,b) and (b,a) produce the same row.
func NewAccountLink(a, b, reason string, now time.Time) AccountLink {
	if b < a {
		a, b = b, a
	}
	return AccountLink{UserID: a, OtherUserID: b, Reason: reason, CreatedAt: now}
}

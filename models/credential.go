package models

import (
	"fmt"
	"time"
)

// KeyKind is the kind of an upstream API credential.
type KeyKind string

const (
	KeyAccount     KeyKind = "Account"
	KeyCharacter   KeyKind = "Character"
	KeyCorporation KeyKind = "Corporation"
)

// ParseKeyKind accepts the kind names used in configuration and by the upstream API.
func ParseKeyKind(s string) (KeyKind, error) {
	switch s {
	case "Account", "account":
		return KeyAccount, nil
	case "Character", "character":
		return KeyCharacter, nil
	case "Corporation", "corporation":
		return KeyCorporation, nil
	}
	return "", fmt.Errorf("unknown key kind %q", s)
}

// substitutes reports whether a and b may stand in for each other.
// An account key exposes the same data as a character key for each of its characters.
func substitutes(a, b KeyKind) bool {
	return (a == KeyAccount && b == KeyCharacter) || (a == KeyCharacter && b == KeyAccount)
}

// Violation flags a credential that does not satisfy the key policy.
type Violation string

const (
	ViolationNone      Violation = ""
	ViolationCharacter Violation = "Character"
	ViolationKind      Violation = "Kind"
	ViolationMask      Violation = "Mask"
)

// KeyPolicy is the recommended credential shape.
type KeyPolicy struct {
	RecommendedMask int64
	RecommendedKind KeyKind
}

// Credential is an upstream API key owned by a user.
type Credential struct {
	KeyID     int64      `gorm:"column:key_id;primaryKey;autoIncrement:false" json:"key"`
	VCode     string     `gorm:"column:v_code" json:"-"`
	OwnerID   string     `gorm:"column:owner_id" json:"owner"`
	Kind      KeyKind    `gorm:"column:kind" json:"kind"`
	Mask      int64      `gorm:"column:mask" json:"mask"`
	Verified  bool       `gorm:"column:verified" json:"verified"`
	Expires   *time.Time `gorm:"column:expires" json:"expires,omitempty"`
	Violation Violation  `gorm:"column:violation" json:"violation,omitempty"`
	CreatedAt time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (Credential) TableName() string { return "credentials" }

// Covers reports whether the credential's mask includes every bit of mask.
func (c *Credential) Covers(mask int64) bool {
	return c.Mask&mask == mask
}

// Expired reports whether the credential has an expiry that has passed.
func (c *Credential) Expired(now time.Time) bool {
	return c.Expires != nil && !c.Expires.After(now)
}

// RecomputeViolation applies the key policy. A Character violation is sticky.
func (c *Credential) RecomputeViolation(p KeyPolicy) {
	if c.Violation == ViolationCharacter {
		return
	}
	if p.RecommendedKind != "" && c.Kind != "" && c.Kind != p.RecommendedKind && !substitutes(c.Kind, p.RecommendedKind) {
		c.Violation = ViolationKind
		return
	}
	if p.RecommendedMask != 0 && !c.Covers(p.RecommendedMask) {
		c.Violation = ViolationMask
		return
	}
	c.Violation = ViolationNone
}

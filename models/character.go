package models

import "time"

// ReservedScope is the scope token meaning "every character of the user"; no character may carry this name.
const ReservedScope = "all_chars"

// Alliance is a game alliance identified by its external id.
type Alliance struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement:false" json:"id"`
	Name      string    `gorm:"column:name" json:"name"`
	Ticker    string    `gorm:"column:ticker" json:"ticker,omitempty"`
	CreatedAt time.Time `gorm:"column:created_at" json:"-"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"-"`
}

func (Alliance) TableName() string { return "alliances" }

// Corporation is a game corporation; AllianceID is nil when it belongs to none.
type Corporation struct {
	ID         int64     `gorm:"column:id;primaryKey;autoIncrement:false" json:"id"`
	Name       string    `gorm:"column:name" json:"name"`
	Ticker     string    `gorm:"column:ticker" json:"ticker,omitempty"`
	AllianceID *int64    `gorm:"column:alliance_id" json:"alliance_id,omitempty"`
	CreatedAt  time.Time `gorm:"column:created_at" json:"-"`
	UpdatedAt  time.Time `gorm:"column:updated_at" json:"-"`
}

func (Corporation) TableName() string { return "corporations" }

// Character is a game character. OwnerID is a weak reference to a User.
type Character struct {
	ID            int64      `gorm:"column:id;primaryKey;autoIncrement:false" json:"id"`
	Name          string     `gorm:"column:name" json:"name"`
	CorporationID *int64     `gorm:"column:corporation_id" json:"corporation_id,omitempty"`
	AllianceID    *int64     `gorm:"column:alliance_id" json:"alliance_id,omitempty"`
	OwnerID       *string    `gorm:"column:owner_id" json:"owner_id,omitempty"`
	Titles        StringList `gorm:"column:titles" json:"titles"`
	Roles         StringList `gorm:"column:roles" json:"roles"`
	Race          string     `gorm:"column:race" json:"race,omitempty"`
	Security      float64    `gorm:"column:security" json:"security"`
	CreatedAt     time.Time  `gorm:"column:created_at" json:"-"`
	UpdatedAt     time.Time  `gorm:"column:updated_at" json:"-"`
}

func (Character) TableName() string { return "characters" }

// OwnedBy reports whether the character currently belongs to userID.
func (c *Character) OwnedBy(userID string) bool {
	return c.OwnerID != nil && *c.OwnerID == userID
}

// CredentialCharacter links a credential to a character it exposes.
type CredentialCharacter struct {
	KeyID       int64 `gorm:"column:key_id;primaryKey;autoIncrement:false"`
	CharacterID int64 `gorm:"column:character_id;primaryKey;autoIncrement:false"`
}

func (CredentialCharacter) TableName() string { return "credential_characters" }

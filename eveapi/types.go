package eveapi

import (
	"slices"
	"strings"
	"time"

	"github.com/legit-games/eveauth/models"
)

// APIKeyInfo is the result of account/APIKeyInfo.
type APIKeyInfo struct {
	Key struct {
		AccessMask int64          `xml:"accessMask,attr"`
		Type       string         `xml:"type,attr"`
		Expires    string         `xml:"expires,attr"`
		Characters []KeyCharacter `xml:"rowset>row"`
	} `xml:"key"`
}

// KeyCharacter is one character exposed by a key. Zero alliance id means none.
type KeyCharacter struct {
	CharacterID     int64  `xml:"characterID,attr"`
	CharacterName   string `xml:"characterName,attr"`
	CorporationID   int64  `xml:"corporationID,attr"`
	CorporationName string `xml:"corporationName,attr"`
	AllianceID      int64  `xml:"allianceID,attr"`
	AllianceName    string `xml:"allianceName,attr"`
}

// Kind maps the upstream key type onto a credential kind. Upstream reports
// account-wide keys as "Account".
func (k *APIKeyInfo) Kind() (models.KeyKind, error) {
	return models.ParseKeyKind(k.Key.Type)
}

// ExpiresAt is nil for keys without expiry.
func (k *APIKeyInfo) ExpiresAt() *time.Time {
	if strings.TrimSpace(k.Key.Expires) == "" {
		return nil
	}
	t := parseTime(k.Key.Expires)
	if t.IsZero() {
		return nil
	}
	return &t
}

type rowset struct {
	Name string `xml:"name,attr"`
	Rows []struct {
		RoleName  string `xml:"roleName,attr"`
		TitleName string `xml:"titleName,attr"`
	} `xml:"row"`
}

// CharacterSheet is the part of char/CharacterSheet kept on characters.
type CharacterSheet struct {
	CharacterID     int64    `xml:"characterID"`
	Name            string   `xml:"name"`
	Race            string   `xml:"race"`
	CorporationID   int64    `xml:"corporationID"`
	CorporationName string   `xml:"corporationName"`
	AllianceID      int64    `xml:"allianceID"`
	AllianceName    string   `xml:"allianceName"`
	Rowsets         []rowset `xml:"rowset"`
}

// Roles lists the corporate roles, from every role rowset.
func (s *CharacterSheet) Roles() []string {
	var out []string
	for _, rs := range s.Rowsets {
		if !strings.HasPrefix(rs.Name, "corporationRoles") {
			continue
		}
		for _, r := range rs.Rows {
			if r.RoleName != "" && !slices.Contains(out, r.RoleName) {
				out = append(out, r.RoleName)
			}
		}
	}
	return out
}

// Titles lists the corporate titles.
func (s *CharacterSheet) Titles() []string {
	var out []string
	for _, rs := range s.Rowsets {
		if rs.Name != "corporationTitles" {
			continue
		}
		for _, r := range rs.Rows {
			if r.TitleName != "" {
				out = append(out, r.TitleName)
			}
		}
	}
	return out
}

// CharacterInfo is the public part of eve/CharacterInfo.
type CharacterInfo struct {
	CharacterID    int64   `xml:"characterID"`
	CharacterName  string  `xml:"characterName"`
	Race           string  `xml:"race"`
	CorporationID  int64   `xml:"corporationID"`
	AllianceID     int64   `xml:"allianceID"`
	SecurityStatus float64 `xml:"securityStatus"`
}

// CorporationSheet is the public part of corp/CorporationSheet.
type CorporationSheet struct {
	CorporationID   int64  `xml:"corporationID"`
	CorporationName string `xml:"corporationName"`
	Ticker          string `xml:"ticker"`
	AllianceID      int64  `xml:"allianceID"`
	AllianceName    string `xml:"allianceName"`
}

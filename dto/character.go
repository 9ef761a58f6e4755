package dto

import "github.com/legit-games/eveauth/models"

// Entity is an id/name pair of a character, corporation or alliance.
type Entity struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type CharacterResponse struct {
	ID            int64    `json:"id"`
	Name          string   `json:"name"`
	CorporationID *int64   `json:"corporation_id,omitempty"`
	AllianceID    *int64   `json:"alliance_id,omitempty"`
	Titles        []string `json:"titles"`
	Roles         []string `json:"roles"`
	Race          string   `json:"race,omitempty"`
	Security      float64  `json:"security"`
}

func FromCharacter(c *models.Character) CharacterResponse {
	titles, roles := []string(c.Titles), []string(c.Roles)
	if titles == nil {
		titles = []string{}
	}
	if roles == nil {
		roles = []string{}
	}
	return CharacterResponse{
		ID:            c.ID,
		Name:          c.Name,
		CorporationID: c.CorporationID,
		AllianceID:    c.AllianceID,
		Titles:        titles,
		Roles:         roles,
		Race:          c.Race,
		Security:      c.Security,
	}
}

func FromCharacters(cs []models.Character) []CharacterResponse {
	out := make([]CharacterResponse, len(cs))
	for i := range cs {
		out[i] = FromCharacter(&cs[i])
	}
	return out
}

// InfoCharacter is one character entry of the info response.
type InfoCharacter struct {
	Character   Entity   `json:"character"`
	Corporation *Entity  `json:"corporation"`
	Alliance    *Entity  `json:"alliance"`
	Tags        []string `json:"tags"`
	Perms       []string `json:"perms"`
}

// InfoResponse carries the default character at the top level and every
// authorized character in Characters.
type InfoResponse struct {
	Success bool `json:"success"`
	InfoCharacter
	Mask       int64           `json:"mask"`
	Expires    string          `json:"expires"`
	Characters []InfoCharacter `json:"characters"`
}

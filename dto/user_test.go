package dto

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/legit-games/eveauth/models"
)

func TestFromUser(t *testing.T) {
	primary := int64(90000001)
	user := &models.User{
		ID:                 "user-123",
		Username:           "pilot",
		Email:              "pilot@example.com",
		PrimaryCharacterID: &primary,
		CreatedAt:          time.Now(),
	}

	response := FromUser(user)

	if response.ID != "user-123" || response.Username != "pilot" {
		t.Errorf("unexpected response %+v", response)
	}
	if response.PrimaryCharacterID == nil || *response.PrimaryCharacterID != primary {
		t.Errorf("expected primary character %d", primary)
	}
}

func TestFromCharacterEmptyLists(t *testing.T) {
	response := FromCharacter(&models.Character{ID: 1, Name: "Alice"})

	data, err := json.Marshal(response)
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("Failed to unmarshal: %v", err)
	}
	if _, ok := m["titles"].([]any); !ok {
		t.Errorf("titles should encode as an empty list, got %v", m["titles"])
	}
	if _, exists := m["corporation_id"]; exists {
		t.Error("corporation_id should be omitted when nil")
	}
}

func TestInfoResponseFlattensDefaultCharacter(t *testing.T) {
	entry := InfoCharacter{
		Character:   Entity{ID: 1, Name: "Alice"},
		Corporation: &Entity{ID: 2, Name: "Corp"},
		Tags:        []string{"members"},
		Perms:       []string{},
	}
	resp := InfoResponse{Success: true, InfoCharacter: entry, Mask: 8, Characters: []InfoCharacter{entry}}

	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("Failed to unmarshal: %v", err)
	}
	if m["character"].(map[string]any)["name"] != "Alice" {
		t.Errorf("default character not at top level: %s", data)
	}
	if m["alliance"] != nil {
		t.Errorf("alliance should be null, got %v", m["alliance"])
	}
	if len(m["characters"].([]any)) != 1 {
		t.Errorf("expected one character entry: %s", data)
	}
}

func TestProject(t *testing.T) {
	rows := []map[string]any{{"id": 1, "name": "Alice", "ticker": "X"}}

	if got := Project(rows, ""); len(got[0]) != 3 {
		t.Errorf("empty projection should keep every field, got %v", got)
	}
	got := Project(rows, "name, id,missing")
	if len(got[0]) != 2 || got[0]["name"] != "Alice" {
		t.Errorf("unexpected projection %v", got)
	}
}

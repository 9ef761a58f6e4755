package protocol

import (
	"slices"
	"strings"

	"github.com/legit-games/eveauth/models"
)

// ParseScope splits a scope into character names. Names are separated by
// spaces; '&' inside a name stands for a space.
func ParseScope(scope string) []string {
	fields := strings.Fields(scope)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		name := strings.ReplaceAll(f, "&", " ")
		if !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	return out
}

// FormatScope is the inverse of ParseScope.
func FormatScope(names []string) string {
	enc := make([]string, len(names))
	for i, n := range names {
		enc[i] = strings.ReplaceAll(n, " ", "&")
	}
	return strings.Join(enc, " ")
}

// AllChars reports whether the scope is the reserved all_chars token.
func AllChars(scopes []string) bool {
	return slices.Contains(scopes, models.ReservedScope)
}

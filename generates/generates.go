// Package generates produces the opaque identifiers handed to relying parties:
// authorization codes, access tokens and refresh tokens.
package generates

import (
	"bytes"
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MinLength is the shortest value any generator returns.
const MinLength = 25

// Basic carries the values a token is derived from.
type Basic struct {
	ApplicationID string
	UserID        string
	CreateAt      time.Time
}

// AuthorizeGenerate generates authorization codes.
type AuthorizeGenerate struct{}

func NewAuthorizeGenerate() *AuthorizeGenerate { return &AuthorizeGenerate{} }

// Token returns an authorization code.
func (ag *AuthorizeGenerate) Token(data Basic) string {
	return opaque(data, "code")
}

// AccessGenerate generates access and refresh tokens.
type AccessGenerate struct{}

func NewAccessGenerate() *AccessGenerate { return &AccessGenerate{} }

// Token returns an access token and, when isGenRefresh is set, a refresh token.
func (ag *AccessGenerate) Token(data Basic, isGenRefresh bool) (access, refresh string) {
	access = opaque(data, "access")
	if isGenRefresh {
		refresh = opaque(data, "refresh")
	}
	return access, refresh
}

// opaque namespaces a fresh random uuid with the request data, so two calls never collide.
func opaque(data Basic, purpose string) string {
	buf := bytes.NewBufferString(data.ApplicationID)
	buf.WriteString(data.UserID)
	buf.WriteString(purpose)
	buf.WriteString(strconv.FormatInt(data.CreateAt.UnixNano(), 10))

	id := uuid.NewSHA1(uuid.Must(uuid.NewRandom()), buf.Bytes())
	token := base64.URLEncoding.EncodeToString([]byte(id.String()))
	return strings.ToUpper(strings.TrimRight(token, "="))
}

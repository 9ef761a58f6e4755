// Package server exposes the signed relying-party API, the browser-side
// authorize flows and the account self-service routes over gin.
package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-session/session/v3"

	"github.com/legit-games/eveauth/acl"
	"github.com/legit-games/eveauth/config"
	"github.com/legit-games/eveauth/envelope"
	"github.com/legit-games/eveauth/errors"
	"github.com/legit-games/eveauth/logging"
	"github.com/legit-games/eveauth/permission"
	"github.com/legit-games/eveauth/protocol"
	"github.com/legit-games/eveauth/proxy"
	"github.com/legit-games/eveauth/refresher"
	"github.com/legit-games/eveauth/store"
)

// errInternal is the reason reported for errors outside the taxonomy.
var errInternal = errors.New("internal")

// Stores groups the repositories the handlers use directly.
type Stores struct {
	Applications *store.ApplicationStore
	Users        *store.UserStore
	Logins       *store.LoginHistoryStore
	Links        *store.AccountLinkStore
	Characters   *store.CharacterStore
	Credentials  *store.CredentialStore
	Grants       *store.GrantStore
	Permissions  *store.PermissionStore
	APICache     *store.APICacheStore
}

// Server holds the collaborators of every handler.
type Server struct {
	Config    *config.Config
	Stores    Stores
	Groups    *acl.Service
	Protocols *protocol.Registry
	Legacy    *protocol.Legacy
	OAuth     *protocol.AuthorizationCode
	Proxy     *proxy.Service
	// Validator checks submitted credentials synchronously; nil skips the check.
	Validator *refresher.Validator
	Verifier  *envelope.Verifier
	// Defaults are held by every authenticated user.
	Defaults permission.Set
	Sessions *session.Manager
	Now      func() time.Time
}

// New wires the protocol registry from the configured Legacy and OAuth methods.
func New(cfg *config.Config, stores Stores, groups *acl.Service, legacy *protocol.Legacy, oauth *protocol.AuthorizationCode, px *proxy.Service) *Server {
	s := &Server{
		Config:    cfg,
		Stores:    stores,
		Groups:    groups,
		Legacy:    legacy,
		OAuth:     oauth,
		Proxy:     px,
		Protocols: protocol.NewRegistry(),
		Verifier:  envelope.NewVerifier(cfg.Signing.Skew),
		Defaults:  permission.Set(cfg.DefaultPermissions),
		Sessions: session.NewManager(
			session.SetCookieName("eveauth_session"),
			session.SetSecure(strings.HasPrefix(cfg.HTTP.BaseURL, "https://")),
			session.SetExpired(int64(protocol.CodeTTL/time.Second)),
		),
	}
	if legacy != nil {
		s.Protocols.Register(legacy)
	}
	if oauth != nil {
		s.Protocols.Register(oauth)
	}
	return s
}

func (s *Server) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// fail answers err as {success:false, reason, message}. Reasons without an
// HTTP status keep 200 so signed callers receive a signed failure.
func fail(c *gin.Context, err error) {
	status := errors.StatusOf(err)
	if status == http.StatusInternalServerError {
		logging.Ctx(c.Request.Context()).Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	c.AbortWithStatusJSON(status, errors.NewResponse(err, errInternal))
}

// ok answers body with success=true.
func ok(c *gin.Context, status int, body gin.H) {
	if body == nil {
		body = gin.H{}
	}
	body["success"] = true
	c.JSON(status, body)
}

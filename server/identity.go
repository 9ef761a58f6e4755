package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-session/session/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/legit-games/eveauth/errors"
	"github.com/legit-games/eveauth/logging"
	"github.com/legit-games/eveauth/models"
	"github.com/legit-games/eveauth/permission"
)

const (
	ctxUser    = "user"
	ctxSession = "session"

	// sessionLoginKey remembers which user the session already logged a login for.
	sessionLoginKey = "login_recorded"
)

// IdentityClaims is the assertion issued by the identity provider.
type IdentityClaims struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	jwt.RegisteredClaims
}

// IdentityMiddleware authenticates the browser or account caller from the
// identity provider's HS256 assertion, found in the Authorization header or
// the identity cookie. Failures are answered no sooner than the configured
// failure delay after the request started.
func (s *Server) IdentityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		ctx := c.Request.Context()

		user, err := s.authenticate(c)
		if err != nil {
			logging.Ctx(ctx).Info().Err(err).Str("ip", c.ClientIP()).Msg("identity rejected")
			s.delayFailure(c, start)
			c.AbortWithStatusJSON(http.StatusUnauthorized, errors.Response{Reason: errors.ErrUnauthorized.Error()})
			return
		}
		s.recordLogin(c, user)
		c.Set(ctxUser, user)
		c.Next()
	}
}

func (s *Server) authenticate(c *gin.Context) (*models.User, error) {
	raw := bearer(c.GetHeader("Authorization"))
	if raw == "" {
		raw, _ = c.Cookie(s.Config.Identity.Cookie)
	}
	if raw == "" {
		return nil, errors.WithMessage(errors.ErrUnauthorized, "no identity assertion")
	}

	var claims IdentityClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return []byte(s.Config.Kiu.Secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, errors.WithMessage(errors.ErrUnauthorized, err.Error())
	}

	user, err := s.Stores.Users.Provision(c.Request.Context(), claims.Subject, claims.Username, claims.Email)
	if err != nil {
		return nil, err
	}
	if !user.Active {
		return nil, errors.WithMessage(errors.ErrUnauthorized, "inactive user")
	}
	return user, nil
}

// delayFailure sleeps until the failure delay has elapsed since start.
func (s *Server) delayFailure(c *gin.Context, start time.Time) {
	wait := s.Config.Identity.FailureDelay - time.Since(start)
	if wait <= 0 {
		return
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C:
	case <-c.Request.Context().Done():
	}
}

// recordLogin writes one login history row per session and user.
func (s *Server) recordLogin(c *gin.Context, user *models.User) {
	ctx := c.Request.Context()
	sess, err := s.session(c)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("starting session")
		return
	}
	if v, found := sess.Get(sessionLoginKey); found && v == user.ID {
		return
	}
	if err := s.Stores.Logins.Record(ctx, user.ID, true, c.ClientIP(), c.Request.UserAgent()); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("user", user.ID).Msg("recording login")
		return
	}
	sess.Set(sessionLoginKey, user.ID)
	if err := sess.Save(); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("saving session")
	}
}

// session starts the browser session once per request.
func (s *Server) session(c *gin.Context) (session.Store, error) {
	if v, found := c.Get(ctxSession); found {
		return v.(session.Store), nil
	}
	sess, err := s.Sessions.Start(c.Request.Context(), c.Writer, c.Request)
	if err != nil {
		return nil, err
	}
	c.Set(ctxSession, sess)
	return sess, nil
}

func bearer(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// currentUser returns the authenticated user of an identity route.
func currentUser(c *gin.Context) *models.User {
	return c.MustGet(ctxUser).(*models.User)
}

// permissions is what the user holds through the defaults and the groups
// their characters belong to.
func (s *Server) permissions(c *gin.Context, user *models.User) (permission.Set, []models.Character, error) {
	ctx := c.Request.Context()
	owned, err := s.Stores.Characters.OwnedBy(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	held, err := s.Groups.Permissions(ctx, user.ID, owned...)
	if err != nil {
		return nil, nil, err
	}
	return s.Defaults.Merge(held), owned, nil
}

// require fails with forbidden unless the user holds perm.
func (s *Server) require(c *gin.Context, perm string) bool {
	user := currentUser(c)
	held, _, err := s.permissions(c, user)
	if err != nil {
		fail(c, err)
		return false
	}
	if !held.Grants(perm) {
		fail(c, errors.WithMessage(errors.ErrForbidden, "missing "+perm))
		return false
	}
	return true
}

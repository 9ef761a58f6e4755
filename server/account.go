package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/legit-games/eveauth/dto"
	"github.com/legit-games/eveauth/errors"
	"github.com/legit-games/eveauth/logging"
	"github.com/legit-games/eveauth/models"
	"github.com/legit-games/eveauth/permission"
	"github.com/legit-games/eveauth/refresher"
	"github.com/legit-games/eveauth/store"
)

const recentLogins = 10

// handleAccount returns the caller's characters, credentials, linked accounts
// and recent logins.
func (s *Server) handleAccount(c *gin.Context) {
	ctx := c.Request.Context()
	user := currentUser(c)

	chars, err := s.Stores.Characters.OwnedBy(ctx, user.ID)
	if err != nil {
		fail(c, err)
		return
	}
	creds, err := s.Stores.Credentials.OwnedBy(ctx, user.ID)
	if err != nil {
		fail(c, err)
		return
	}
	resp := dto.AccountResponse{
		User:        dto.FromUser(user),
		Characters:  dto.FromCharacters(chars),
		Credentials: make([]dto.CredentialResponse, 0, len(creds)),
	}
	for i := range creds {
		ids, err := s.Stores.Credentials.Characters(ctx, creds[i].KeyID)
		if err != nil {
			fail(c, err)
			return
		}
		resp.Credentials = append(resp.Credentials, dto.FromCredential(&creds[i], ids))
	}
	if resp.OtherAccounts, err = s.Stores.Links.Linked(ctx, user.ID); err != nil {
		fail(c, err)
		return
	}
	if resp.OtherAccounts == nil {
		resp.OtherAccounts = []string{}
	}
	logins, err := s.Stores.Logins.Recent(ctx, user.ID, recentLogins)
	if err != nil {
		fail(c, err)
		return
	}
	resp.Logins = dto.FromLogins(logins)
	c.JSON(http.StatusOK, resp)
}

// handleAddCredential stores a submitted key and, outside debug mode,
// validates it against the upstream API before answering.
func (s *Server) handleAddCredential(c *gin.Context) {
	ctx := c.Request.Context()
	user := currentUser(c)
	var req dto.CredentialRequest
	if err := c.ShouldBind(&req); err != nil {
		fail(c, errors.MalformedArgument("credential", err.Error()))
		return
	}
	cred := &models.Credential{KeyID: req.KeyID, VCode: req.VCode, OwnerID: user.ID}
	if err := s.Stores.Credentials.Create(ctx, cred); err != nil {
		fail(c, err)
		return
	}
	logging.Ctx(ctx).Info().Int64("key", cred.KeyID).Str("user", user.ID).Msg("credential added")

	result := ""
	if s.Validator != nil && !s.Config.Debug {
		var err error
		result, err = s.Validator.Refresh(ctx, cred.KeyID)
		if err != nil {
			fail(c, err)
			return
		}
		if result == refresher.ResultRevoked {
			fail(c, errors.MalformedArgument("key", "rejected by the upstream API"))
			return
		}
		if cred, err = s.Stores.Credentials.Get(ctx, cred.KeyID); err != nil {
			fail(c, err)
			return
		}
		if s.Config.RequireRecommendedKey && (cred.Violation == models.ViolationKind || cred.Violation == models.ViolationMask) {
			if _, err := s.Stores.Credentials.Delete(ctx, cred.KeyID); err != nil {
				logging.Ctx(ctx).Warn().Err(err).Int64("key", cred.KeyID).Msg("deleting non-recommended credential")
			}
			fail(c, errors.MalformedArgument("key", "does not match the recommended "+strings.ToLower(string(cred.Violation))))
			return
		}
	}
	ids, err := s.Stores.Credentials.Characters(ctx, cred.KeyID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"credential": dto.FromCredential(cred, ids), "refresh": result})
}

// handleDeleteCredential removes one of the caller's keys and detaches the
// characters no other key exposes.
func (s *Server) handleDeleteCredential(c *gin.Context) {
	ctx := c.Request.Context()
	user := currentUser(c)
	keyID, err := strconv.ParseInt(c.Param("key"), 10, 64)
	if err != nil {
		fail(c, errors.MalformedArgument("key", c.Param("key")))
		return
	}
	cred, err := s.Stores.Credentials.Get(ctx, keyID)
	if err != nil {
		fail(c, err)
		return
	}
	if cred.OwnerID != user.ID {
		fail(c, errors.ErrNotFound)
		return
	}
	detached, err := s.Stores.Credentials.Delete(ctx, keyID)
	if err != nil {
		fail(c, err)
		return
	}
	if s.Stores.APICache != nil {
		if err := s.Stores.APICache.Purge(ctx, keyID); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Int64("key", keyID).Msg("purging cached api values")
		}
	}
	if detached == nil {
		detached = []int64{}
	}
	ok(c, http.StatusOK, gin.H{"detached": detached})
}

// handleRegisterApplication creates a relying party owned by the caller. The
// client secret is only ever shown in this answer.
func (s *Server) handleRegisterApplication(c *gin.Context) {
	if !s.require(c, permission.ApplicationCreate) {
		return
	}
	var req dto.RegisterApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errors.MalformedArgument("application", err.Error()))
		return
	}
	app := req.Application(currentUser(c).ID)
	if app.Supports(models.MethodAuthorizationCode) && app.RedirectURI == "" {
		fail(c, errors.MissingArgument("redirect_uri"))
		return
	}
	secret, err := s.Stores.Applications.Register(c.Request.Context(), app)
	if err != nil {
		fail(c, err)
		return
	}
	serverKey, err := store.ServerPublicKey(app)
	if err != nil {
		fail(c, err)
		return
	}
	logging.Ctx(c.Request.Context()).Info().Str("application", app.ID).Str("short", app.Short).Msg("application registered")
	c.JSON(http.StatusCreated, dto.FromApplication(app, serverKey, secret))
}

func (s *Server) handleListApplications(c *gin.Context) {
	apps, err := s.Stores.Applications.OwnedBy(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		fail(c, err)
		return
	}
	out := make([]dto.ApplicationResponse, 0, len(apps))
	for i := range apps {
		serverKey, err := store.ServerPublicKey(&apps[i])
		if err != nil {
			fail(c, err)
			return
		}
		out = append(out, dto.FromApplication(&apps[i], serverKey, ""))
	}
	c.JSON(http.StatusOK, out)
}

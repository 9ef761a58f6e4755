package server

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/legit-games/eveauth/dto"
	"github.com/legit-games/eveauth/errors"
	"github.com/legit-games/eveauth/logging"
	"github.com/legit-games/eveauth/models"
	"github.com/legit-games/eveauth/permission"
	"github.com/legit-games/eveauth/proxy"
)

// handlePing answers the server clock.
func (s *Server) handlePing(c *gin.Context) {
	ok(c, http.StatusOK, gin.H{"now": s.now().Unix()})
}

// handleCoreAuthorize starts a legacy authorize attempt.
func (s *Server) handleCoreAuthorize(c *gin.Context) {
	if s.Legacy == nil {
		fail(c, errors.WithMessage(errors.ErrNotFound, "legacy method disabled"))
		return
	}
	location, err := s.Legacy.CreateRequest(c.Request.Context(), application(c), c.PostForm("success"), c.PostForm("failure"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"location": location})
}

// handleDeauthorize deletes the grant behind token. A second call for the
// same token reports grant.invalid.
func (s *Server) handleDeauthorize(c *gin.Context) {
	ctx := c.Request.Context()
	app := application(c)
	g, _, err := s.Protocols.ResolveGrant(ctx, app, c.PostForm("token"))
	if err != nil {
		fail(c, err)
		return
	}
	deleted, err := s.Stores.Grants.Delete(ctx, g.ID, app.ID)
	if err != nil {
		fail(c, err)
		return
	}
	if !deleted {
		fail(c, errors.ErrGrantInvalid)
		return
	}
	logging.Ctx(ctx).Info().Str("application", app.ID).Str("user", g.UserID).Msg("grant deauthorized")
	ok(c, http.StatusOK, nil)
}

func (s *Server) handleReauthorize(c *gin.Context) {
	ctx := c.Request.Context()
	app := application(c)
	token := c.PostForm("token")
	_, p, err := s.Protocols.ResolveGrant(ctx, app, token)
	if err != nil {
		fail(c, err)
		return
	}
	location, err := p.Reauthenticate(ctx, app, token, c.PostForm("success"), c.PostForm("failure"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"location": location})
}

// handleInfo describes every character of the grant with its tags and the
// permissions it carries toward the calling application.
func (s *Server) handleInfo(c *gin.Context) {
	ctx := c.Request.Context()
	app := application(c)
	g, _, err := s.Protocols.ResolveGrant(ctx, app, c.PostForm("token"))
	if err != nil {
		fail(c, err)
		return
	}
	chars, err := s.Stores.Characters.GetMany(ctx, g.Characters)
	if err != nil {
		fail(c, err)
		return
	}
	if len(chars) == 0 {
		fail(c, errors.WithMessage(errors.ErrUnauthorized, "no character remains in the grant"))
		return
	}

	resp := dto.InfoResponse{
		Success:    true,
		Mask:       g.Mask,
		Expires:    g.Expires.UTC().Format(time.RFC3339),
		Characters: make([]dto.InfoCharacter, 0, len(chars)),
	}
	def := g.DefaultCharacter()
	for i := range chars {
		entry, err := s.infoCharacter(c, app, g.UserID, &chars[i])
		if err != nil {
			fail(c, err)
			return
		}
		resp.Characters = append(resp.Characters, entry)
		if chars[i].ID == def {
			resp.InfoCharacter = entry
		}
	}
	if resp.Character.ID == 0 {
		resp.InfoCharacter = resp.Characters[0]
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) infoCharacter(c *gin.Context, app *models.Application, userID string, ch *models.Character) (dto.InfoCharacter, error) {
	ctx := c.Request.Context()
	out := dto.InfoCharacter{Character: dto.Entity{ID: ch.ID, Name: ch.Name}}
	if ch.CorporationID != nil {
		corp, err := s.Stores.Characters.Corporation(ctx, *ch.CorporationID)
		if err != nil && !errors.Is(err, errors.ErrNotFound) {
			return out, err
		}
		if corp != nil {
			out.Corporation = &dto.Entity{ID: corp.ID, Name: corp.Name}
		}
	}
	if ch.AllianceID != nil {
		all, err := s.Stores.Characters.Alliance(ctx, *ch.AllianceID)
		if err != nil && !errors.Is(err, errors.ErrNotFound) {
			return out, err
		}
		if all != nil {
			out.Alliance = &dto.Entity{ID: all.ID, Name: all.Name}
		}
	}

	tags, err := s.Groups.Tags(ctx, userID, ch, app.Groups)
	if err != nil {
		return out, err
	}
	out.Tags = tags

	held, err := s.Groups.Permissions(ctx, userID, *ch)
	if err != nil {
		return out, err
	}
	prefix := app.Short + permission.Separator
	out.Perms = []string{}
	for _, p := range held {
		if strings.HasPrefix(p, prefix) {
			out.Perms = append(out.Perms, p)
		}
	}
	return out, nil
}

// handleRegisterPermission creates a permission under the application's short name.
func (s *Server) handleRegisterPermission(c *gin.Context) {
	app := application(c)
	name := strings.TrimSpace(c.PostForm("permission"))
	if name == "" {
		fail(c, errors.MissingArgument("permission"))
		return
	}
	id := permission.ForApplication(app.Short, name)
	if err := permission.Validate(id); err != nil {
		fail(c, errors.MalformedArgument("permission", err.Error()))
		return
	}
	p := &models.Permission{ID: id, Description: c.PostForm("description"), ApplicationID: &app.ID}
	if err := s.Stores.Permissions.Register(c.Request.Context(), p); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"permission": id})
}

// handleProxy forwards the call to the upstream API on behalf of the grant.
func (s *Server) handleProxy(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		fail(c, errors.WithMessage(errors.ErrBadRequest, err.Error()))
		return
	}
	app := application(c)
	params := url.Values{}
	for k, v := range c.Request.PostForm {
		if k == "token" || k == "anonymous" {
			continue
		}
		params[k] = v
	}
	anonymous, _ := strconv.ParseBool(c.Request.PostForm.Get("anonymous"))

	res, err := s.Proxy.Call(c.Request.Context(), proxy.Request{
		Application: app,
		Group:       c.Param("group"),
		Endpoint:    c.Param("endpoint"),
		Token:       c.Request.PostForm.Get("token"),
		Anonymous:   anonymous,
		Params:      params,
	})
	if err != nil {
		fail(c, err)
		return
	}
	body := gin.H{
		"result":       res.Result,
		"cached":       res.Cached,
		"cached_until": res.CachedUntil.UTC().Format(time.RFC3339),
	}
	if res.Grant != nil {
		s.afterAPI(app, res, body)
	}
	ok(c, http.StatusOK, body)
}

func (s *Server) afterAPI(app *models.Application, res *proxy.Result, body gin.H) {
	for _, name := range s.Protocols.Names() {
		if !app.Supports(name) {
			continue
		}
		if p, found := s.Protocols.Get(name); found {
			p.AfterAPI(res.Grant, body)
			return
		}
	}
}

// handleLookup searches alliances, corporations or characters by id or name.
func (s *Server) handleLookup(c *gin.Context) {
	ctx := c.Request.Context()
	search := strings.TrimSpace(c.PostForm("search"))
	if search == "" {
		fail(c, errors.MissingArgument("search"))
		return
	}

	var rows []map[string]any
	switch c.Param("kind") {
	case "alliance":
		found, err := s.Stores.Characters.SearchAlliances(ctx, search)
		if err != nil {
			fail(c, err)
			return
		}
		for _, a := range found {
			rows = append(rows, map[string]any{"id": a.ID, "name": a.Name, "ticker": a.Ticker})
		}
	case "corporation":
		found, err := s.Stores.Characters.SearchCorporations(ctx, search)
		if err != nil {
			fail(c, err)
			return
		}
		for _, corp := range found {
			rows = append(rows, map[string]any{"id": corp.ID, "name": corp.Name, "ticker": corp.Ticker, "alliance": corp.AllianceID})
		}
	case "character":
		found, err := s.Stores.Characters.SearchCharacters(ctx, search)
		if err != nil {
			fail(c, err)
			return
		}
		for _, ch := range found {
			rows = append(rows, map[string]any{"id": ch.ID, "name": ch.Name, "corporation": ch.CorporationID, "alliance": ch.AllianceID})
		}
	default:
		fail(c, errors.WithMessage(errors.ErrNotFound, "unknown lookup "+c.Param("kind")))
		return
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	ok(c, http.StatusOK, gin.H{"results": dto.Project(rows, c.PostForm("only"))})
}

package server

import (
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"

	"github.com/legit-games/eveauth/errors"
	"github.com/legit-games/eveauth/logging"
	"github.com/legit-games/eveauth/models"
	"github.com/legit-games/eveauth/protocol"
)

// sessionAuthorizeKey holds the validated authorize parameters between the
// consent page and its submission.
const sessionAuthorizeKey = "authorize_request"

var consentTemplate = template.Must(template.New("consent").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Authorize {{.Application.Name}}</title></head>
<body>
<h1>{{.Application.Name}}</h1>
{{with .Application.Description}}<p>{{.}}</p>{{end}}
<form method="post" action="{{.Action}}">
{{range .Characters}}<label><input type="checkbox" name="characters" value="{{.ID}}"{{if index $.Checked .ID}} checked{{end}}> {{.Name}}</label><br>
{{end}}
{{if not .Application.SingleCharOnly}}<label><input type="checkbox" name="all_chars" value="true"> All characters, including future ones</label><br>{{end}}
<button type="submit" name="authorize" value="1">Authorize</button>
<button type="submit" name="deny" value="1">Deny</button>
</form>
</body>
</html>
`))

type consentPage struct {
	Application *models.Application
	Characters  []models.Character
	Checked     map[int64]bool
	Action      string
}

func renderConsent(c *gin.Context, consent *protocol.Consent, action string) {
	page := consentPage{
		Application: consent.Application,
		Characters:  consent.Characters,
		Checked:     map[int64]bool{},
		Action:      action,
	}
	if consent.PriorGrant != nil {
		for _, id := range consent.PriorGrant.Characters {
			page.Checked[id] = true
		}
	}
	for _, name := range consent.Requested {
		for _, ch := range consent.Characters {
			if strings.EqualFold(ch.Name, name) {
				page.Checked[ch.ID] = true
			}
		}
	}
	c.HTML(http.StatusOK, "consent", page)
}

// choiceFromForm reads the consent submission.
func choiceFromForm(c *gin.Context) (protocol.Choice, error) {
	var choice protocol.Choice
	raw := append(c.PostFormArray("characters"), c.PostFormArray("characters[]")...)
	for _, v := range raw {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return choice, errors.MalformedArgument("characters", v)
		}
		choice.Characters = append(choice.Characters, id)
	}
	choice.AllChars, _ = strconv.ParseBool(c.PostForm("all_chars"))
	if v := c.PostForm("mask"); v != "" {
		mask, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return choice, errors.MalformedArgument("mask", v)
		}
		choice.Optional = &mask
	}
	return choice, nil
}

func denied(c *gin.Context) bool {
	return c.PostForm("deny") != ""
}

// handleLegacyConsent shows the consent page of a legacy authorize attempt,
// or settles it at once when the user already granted the application.
func (s *Server) handleLegacyConsent(c *gin.Context) {
	req := &protocol.AuthorizeRequest{UserID: currentUser(c).ID, RequestID: c.Param("request")}
	consent, err := s.Legacy.PreAuthorize(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	if consent.Redirect != "" {
		c.Redirect(http.StatusFound, consent.Redirect)
		return
	}
	renderConsent(c, consent, c.Request.URL.Path)
}

func (s *Server) handleLegacyDecision(c *gin.Context) {
	ctx := c.Request.Context()
	req := &protocol.AuthorizeRequest{UserID: currentUser(c).ID, RequestID: c.Param("request")}
	if denied(c) {
		location, err := s.Legacy.Deny(ctx, req)
		if err != nil {
			fail(c, err)
			return
		}
		c.Redirect(http.StatusFound, location)
		return
	}
	choice, err := choiceFromForm(c)
	if err != nil {
		fail(c, err)
		return
	}
	location, err := s.Legacy.Authorize(ctx, req, choice)
	if err != nil {
		fail(c, err)
		return
	}
	c.Redirect(http.StatusFound, location)
}

// handleOAuthConsent validates the authorize parameters, keeps them in the
// session and shows the consent page.
func (s *Server) handleOAuthConsent(c *gin.Context) {
	ctx := c.Request.Context()
	req := &protocol.AuthorizeRequest{
		UserID:       currentUser(c).ID,
		ClientID:     c.Query("client_id"),
		RedirectURI:  c.Query("redirect_uri"),
		State:        c.Query("state"),
		Scope:        c.Query("scope"),
		ResponseType: c.Query("response_type"),
	}
	if _, err := s.OAuth.GetApplication(ctx, req); err != nil {
		oauthError(c, err)
		return
	}
	consent, err := s.OAuth.PreAuthorize(ctx, req)
	if err != nil {
		fail(c, err)
		return
	}

	sess, err := s.session(c)
	if err != nil {
		fail(c, err)
		return
	}
	saved, err := json.Marshal(req)
	if err != nil {
		fail(c, err)
		return
	}
	sess.Set(sessionAuthorizeKey, string(saved))
	if err := sess.Save(); err != nil {
		fail(c, err)
		return
	}
	renderConsent(c, consent, c.Request.URL.Path)
}

// handleOAuthDecision issues the code, or the access_denied redirect, for the
// parameters saved by handleOAuthConsent.
func (s *Server) handleOAuthDecision(c *gin.Context) {
	ctx := c.Request.Context()
	user := currentUser(c)
	sess, err := s.session(c)
	if err != nil {
		fail(c, err)
		return
	}
	v, found := sess.Get(sessionAuthorizeKey)
	raw, isString := v.(string)
	if !found || !isString {
		oauthError(c, errors.WithMessage(errors.ErrInvalidRequest, "no pending authorize request"))
		return
	}
	var req protocol.AuthorizeRequest
	if err := json.Unmarshal([]byte(raw), &req); err != nil || req.UserID != user.ID {
		oauthError(c, errors.WithMessage(errors.ErrInvalidRequest, "no pending authorize request"))
		return
	}
	sess.Delete(sessionAuthorizeKey)
	if err := sess.Save(); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("saving session")
	}

	var location string
	if denied(c) {
		location, err = s.OAuth.Deny(ctx, &req)
	} else {
		var choice protocol.Choice
		if choice, err = choiceFromForm(c); err == nil {
			location, err = s.OAuth.Authorize(ctx, &req, choice)
		}
	}
	if err != nil {
		fail(c, err)
		return
	}
	c.Redirect(http.StatusFound, location)
}

// clientCredentials reads HTTP Basic client authentication, falling back to
// the client_id and client_secret body parameters.
func clientCredentials(c *gin.Context) (string, string) {
	if id, secret, found := c.Request.BasicAuth(); found {
		// RFC 6749 section 2.3.1 form-encodes both values before Basic encoding.
		if v, err := url.QueryUnescape(id); err == nil {
			id = v
		}
		if v, err := url.QueryUnescape(secret); err == nil {
			secret = v
		}
		return id, secret
	}
	return c.PostForm("client_id"), c.PostForm("client_secret")
}

// handleAccessToken is the token endpoint.
func (s *Server) handleAccessToken(c *gin.Context) {
	clientID, secret := clientCredentials(c)
	info, err := s.OAuth.Exchange(c.Request.Context(), &protocol.TokenRequest{
		GrantType:    c.PostForm("grant_type"),
		ClientID:     clientID,
		ClientSecret: secret,
		Code:         c.PostForm("code"),
		RedirectURI:  c.PostForm("redirect_uri"),
		Refresh:      c.PostForm("refresh_token"),
		Scope:        c.PostForm("scope"),
	})
	if err != nil {
		oauthError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	c.JSON(http.StatusOK, info)
}

// handleRevoke revokes an access or refresh token (RFC 7009). Unknown tokens
// are answered with 200.
func (s *Server) handleRevoke(c *gin.Context) {
	clientID, secret := clientCredentials(c)
	err := s.OAuth.Revoke(c.Request.Context(), clientID, secret, c.PostForm("token"), c.PostForm("token_type_hint"))
	if err != nil {
		oauthError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

// oauthError answers err in the RFC 6749 error format.
func oauthError(c *gin.Context, err error) {
	sentinel := errors.Sentinel(err)
	desc, isOAuth := errors.Descriptions[sentinel]
	if !isOAuth {
		if sentinel == nil {
			logging.Ctx(c.Request.Context()).Error().Err(err).Msg("token endpoint failed")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
			return
		}
		desc = err.Error()
		sentinel = errors.ErrInvalidRequest
	}
	var e *errors.Error
	if errors.As(err, &e) && e.Message != "" {
		desc = e.Message
	}
	if sentinel == errors.ErrInvalidClient {
		c.Header("WWW-Authenticate", `Basic realm="eveauth"`)
	}
	c.Header("Cache-Control", "no-store")
	c.AbortWithStatusJSON(errors.StatusCodes[sentinel], gin.H{
		"error":             sentinel.Error(),
		"error_description": desc,
	})
}

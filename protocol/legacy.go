package protocol

import (
	"context"
	"net/netip"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/legit-games/eveauth/errors"
	"github.com/legit-games/eveauth/logging"
	"github.com/legit-games/eveauth/metrics"
	"github.com/legit-games/eveauth/models"
)

// RequestTTL is the lifetime of a legacy authentication request.
const RequestTTL = 10 * time.Minute

// AuthRequests stores legacy authentication requests.
type AuthRequests interface {
	Create(ctx context.Context, r *models.AuthenticationRequest) error
	Get(ctx context.Context, id string) (*models.AuthenticationRequest, error)
	Update(ctx context.Context, r *models.AuthenticationRequest) error
}

// Blacklist rejects callback URLs by scheme or host. A host entry also matches its subdomains.
type Blacklist struct {
	Schemes []string
	Hosts   []string
}

func (b Blacklist) blocks(u *url.URL) bool {
	if slices.Contains(b.Schemes, strings.ToLower(u.Scheme)) {
		return true
	}
	host := strings.ToLower(u.Hostname())
	for _, h := range b.Hosts {
		h = strings.ToLower(h)
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// Legacy is the signed-redirect method: the application asks for a single-use
// authorize URL over the signed API and receives the grant id as its token.
type Legacy struct {
	*Base
	Requests  AuthRequests
	BaseURL   string
	Blacklist Blacklist
	// Debug allows callbacks on loopback and private networks.
	Debug bool
}

func (l *Legacy) Name() string { return models.MethodLegacy }

// CreateRequest registers an authentication request and returns the URL the
// application sends the browser to.
func (l *Legacy) CreateRequest(ctx context.Context, app *models.Application, success, failure string) (string, error) {
	return l.createRequest(ctx, app, success, failure, nil)
}

func (l *Legacy) createRequest(ctx context.Context, app *models.Application, success, failure string, prior *string) (string, error) {
	if !app.Supports(models.MethodLegacy) {
		return "", errors.WithMessage(errors.ErrForbidden, "application does not support "+models.MethodLegacy)
	}
	if err := l.checkCallback("success", success); err != nil {
		return "", err
	}
	if err := l.checkCallback("failure", failure); err != nil {
		return "", err
	}
	r := &models.AuthenticationRequest{
		ApplicationID: app.ID,
		Success:       success,
		Failure:       failure,
		PriorGrantID:  prior,
		Expires:       l.now().Add(RequestTTL),
	}
	if err := l.Requests.Create(ctx, r); err != nil {
		return "", err
	}
	return strings.TrimRight(l.BaseURL, "/") + "/authorize/" + r.ID, nil
}

func (l *Legacy) checkCallback(name, raw string) error {
	if raw == "" {
		return errors.MissingArgument(name)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return errors.MalformedArgument(name, err.Error())
	}
	if l.Blacklist.blocks(u) {
		return errors.WithMessage(errors.ErrBlacklist, name+" callback is blacklisted")
	}
	if u.Scheme == "" || u.Host == "" {
		return errors.MalformedArgument(name, "callback must be an absolute URL")
	}
	if !l.Debug && privateHost(u.Hostname()) {
		return errors.MalformedArgument(name, "callback points at a private address")
	}
	return nil
}

func privateHost(host string) bool {
	host = strings.ToLower(host)
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified()
}

// load returns the pending request and its application.
func (l *Legacy) load(ctx context.Context, req *AuthorizeRequest) (*models.AuthenticationRequest, *models.Application, error) {
	r, err := l.Requests.Get(ctx, req.RequestID)
	if err != nil {
		return nil, nil, err
	}
	if r.GrantID != nil {
		return nil, nil, errors.WithMessage(errors.ErrNotFound, "authentication request already used")
	}
	app, err := l.application(ctx, r.ApplicationID, models.MethodLegacy)
	if err != nil {
		return nil, nil, err
	}
	return r, app, nil
}

func (l *Legacy) GetApplication(ctx context.Context, req *AuthorizeRequest) (*models.Application, error) {
	_, app, err := l.load(ctx, req)
	return app, err
}

// PreAuthorize settles the attempt immediately when the user already holds a
// grant for the application: the grant is reissued under a new id.
func (l *Legacy) PreAuthorize(ctx context.Context, req *AuthorizeRequest) (*Consent, error) {
	r, app, err := l.load(ctx, req)
	if err != nil {
		return nil, err
	}
	eligible, err := l.Eligible(ctx, req.UserID, app)
	if err != nil {
		return nil, err
	}
	consent := &Consent{Application: app, Characters: eligible}

	if r.PriorGrantID != nil {
		prior, err := l.Grants.Get(ctx, *r.PriorGrantID, app.ID)
		if err != nil && !errors.Is(err, errors.ErrNotFound) {
			return nil, err
		}
		consent.PriorGrant = prior
		return consent, nil
	}

	prior, err := l.Grants.ForUser(ctx, req.UserID, app.ID)
	if errors.Is(err, errors.ErrNotFound) {
		return consent, nil
	}
	if err != nil {
		return nil, err
	}
	g := l.newGrant(req.UserID, app, prior.Characters, prior.AllChars, prior.Mask)
	g.Expires = prior.Expires
	location, err := l.issue(ctx, r, app, g, prior.ID)
	if err != nil {
		return nil, err
	}
	consent.PriorGrant = prior
	consent.Redirect = location
	return consent, nil
}

func (l *Legacy) Authorize(ctx context.Context, req *AuthorizeRequest, choice Choice) (string, error) {
	r, app, err := l.load(ctx, req)
	if err != nil {
		return "", err
	}
	eligible, err := l.Eligible(ctx, req.UserID, app)
	if err != nil {
		return "", err
	}
	ids, err := chosen(app, eligible, choice)
	if err != nil {
		return "", err
	}
	g := l.newGrant(req.UserID, app, ids, choice.AllChars, grantMask(app, choice))
	prior := ""
	if r.PriorGrantID != nil {
		prior = *r.PriorGrantID
	}
	return l.issue(ctx, r, app, g, prior)
}

// issue persists g, removes the prior grant and consumes the request.
func (l *Legacy) issue(ctx context.Context, r *models.AuthenticationRequest, app *models.Application, g *models.ApplicationGrant, prior string) (string, error) {
	if err := l.Grants.Create(ctx, g); err != nil {
		return "", err
	}
	if prior != "" {
		if _, err := l.Grants.Delete(ctx, prior, app.ID); err != nil {
			return "", err
		}
	}
	r.GrantID = &g.ID
	r.UserID = &g.UserID
	if err := l.Requests.Update(ctx, r); err != nil {
		return "", err
	}
	metrics.GrantsIssued.WithLabelValues(l.Name()).Inc()
	logging.Ctx(ctx).Info().
		Str("application", app.ID).
		Str("user", g.UserID).
		Int("characters", len(g.Characters)).
		Msg("legacy grant issued")
	return withQuery(r.Success, "token", g.ID)
}

func (l *Legacy) Deny(ctx context.Context, req *AuthorizeRequest) (string, error) {
	r, _, err := l.load(ctx, req)
	if err != nil {
		return "", err
	}
	return withQuery(r.Failure, "token", r.ID)
}

func (l *Legacy) Reauthenticate(ctx context.Context, app *models.Application, token, success, failure string) (string, error) {
	if token == "" {
		return "", errors.MissingArgument("token")
	}
	g, err := l.Grants.Get(ctx, token, app.ID)
	if err != nil {
		return "", notFoundAs(err, errors.ErrGrantInvalid)
	}
	return l.createRequest(ctx, app, success, failure, &g.ID)
}

func (l *Legacy) BeforeAPI(ctx context.Context, app *models.Application, token string) (*models.ApplicationGrant, error) {
	g, err := l.Grants.Get(ctx, token, app.ID)
	if err != nil {
		return nil, notFoundAs(err, errors.ErrGrantInvalid)
	}
	return l.live(ctx, g)
}

func (l *Legacy) GetToken(g *models.ApplicationGrant) string { return g.ID }

func withQuery(raw string, kv ...string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] != "" {
			q.Set(kv[i], kv[i+1])
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

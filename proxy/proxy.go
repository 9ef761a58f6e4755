// Package proxy forwards relying-party calls to the upstream XML API on behalf
// of a grant, choosing a credential and caching answers until cachedUntil.
package proxy

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/legit-games/eveauth/errors"
	"github.com/legit-games/eveauth/eveapi"
	"github.com/legit-games/eveauth/logging"
	"github.com/legit-games/eveauth/metrics"
	"github.com/legit-games/eveauth/models"
	"github.com/legit-games/eveauth/protocol"
)

// ParamCharacter is the upstream parameter naming the acted-on character.
const ParamCharacter = "characterID"

type Grants interface {
	ResolveGrant(ctx context.Context, app *models.Application, token string) (*models.ApplicationGrant, protocol.Protocol, error)
}

type Users interface {
	Get(ctx context.Context, id string) (*models.User, error)
}

type Characters interface {
	Get(ctx context.Context, id int64) (*models.Character, error)
}

type Credentials interface {
	ForCharacter(ctx context.Context, characterID int64) ([]models.Credential, error)
}

type Cache interface {
	Get(ctx context.Context, keyID int64, name, args string) (*models.CachedAPIValue, error)
	Put(ctx context.Context, v *models.CachedAPIValue) error
}

type Upstream interface {
	Call(ctx context.Context, ep eveapi.Endpoint, key *eveapi.Key, params url.Values) (*eveapi.Response, error)
}

// Request is one proxied call. Params holds the endpoint arguments only.
type Request struct {
	Application *models.Application
	Group       string
	Endpoint    string
	Token       string
	// Anonymous calls public endpoints without a grant or credential.
	Anonymous bool
	Params    url.Values
}

type Result struct {
	Result      map[string]any
	CachedUntil time.Time
	Cached      bool
	// Grant is nil for anonymous calls.
	Grant *models.ApplicationGrant
}

type Service struct {
	Grants      Grants
	Users       Users
	Characters  Characters
	Credentials Credentials
	Cache       Cache
	Upstream    Upstream
	Now         func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// Call runs the proxy pipeline. Failures that are not part of the error
// taxonomy come back as errors.ErrUpstream carrying the detail.
func (s *Service) Call(ctx context.Context, req Request) (*Result, error) {
	res, err := s.call(ctx, req)
	if err != nil && errors.Sentinel(err) == nil {
		logging.Ctx(ctx).Error().Err(err).Str("endpoint", req.Group+"/"+req.Endpoint).Msg("proxy call failed")
		return nil, errors.WithMessage(errors.ErrUpstream, err.Error())
	}
	return res, err
}

func (s *Service) call(ctx context.Context, req Request) (*Result, error) {
	ep, err := s.endpoint(req.Group, req.Endpoint)
	if err != nil {
		return nil, err
	}
	params := url.Values{}
	for k, v := range req.Params {
		params[k] = append([]string(nil), v...)
	}

	var (
		grant *models.ApplicationGrant
		key   *models.Credential
	)
	if req.Anonymous {
		if ep.NeedsKey || ep.Character {
			return nil, errors.WithMessage(errors.ErrForbidden, "endpoint requires a grant")
		}
		params.Del(ParamCharacter)
	} else {
		grant, key, err = s.authorize(ctx, req.Application, req.Token, ep, params)
		if err != nil {
			return nil, err
		}
	}

	res, err := s.fetch(ctx, ep, key, params)
	if err != nil {
		return nil, err
	}
	res.Grant = grant
	return res, nil
}

func (s *Service) endpoint(group, name string) (eveapi.Endpoint, error) {
	group = strings.ToLower(group)
	if group == "account" && !strings.EqualFold(name, "AccountStatus") {
		return eveapi.Endpoint{}, errors.WithMessage(errors.ErrForbidden, "account endpoints are restricted")
	}
	ep, ok := eveapi.Lookup(group, name)
	if !ok {
		return eveapi.Endpoint{}, errors.WithMessage(errors.ErrNotFound, "unknown endpoint "+group+"/"+name)
	}
	return ep, nil
}

// authorize resolves the grant, the acted-on character and the credential,
// setting characterID in params when the grant has a single character.
func (s *Service) authorize(ctx context.Context, app *models.Application, token string, ep eveapi.Endpoint, params url.Values) (*models.ApplicationGrant, *models.Credential, error) {
	grant, _, err := s.Grants.ResolveGrant(ctx, app, token)
	if err != nil {
		return nil, nil, err
	}
	user, err := s.Users.Get(ctx, grant.UserID)
	if errors.Is(err, errors.ErrNotFound) {
		return nil, nil, errors.ErrGrantInvalid
	}
	if err != nil {
		return nil, nil, err
	}
	if user.AppBanned {
		return nil, nil, errors.ErrUserBanned
	}
	if !ep.Character {
		params.Del(ParamCharacter)
		if ep.Mask != 0 && grant.Mask&ep.Mask != ep.Mask {
			return nil, nil, errors.ErrGrantUnauthorized
		}
		return grant, nil, nil
	}

	char, err := s.character(ctx, grant, user.ID, params.Get(ParamCharacter))
	if err != nil {
		return nil, nil, err
	}
	params.Set(ParamCharacter, strconv.FormatInt(char.ID, 10))

	if ep.Mask != 0 && grant.Mask&ep.Mask != ep.Mask {
		return nil, nil, errors.ErrGrantUnauthorized
	}
	key, err := s.selectKey(ctx, char.ID, user.ID, ep)
	if err != nil {
		return nil, nil, err
	}
	return grant, key, nil
}

func (s *Service) character(ctx context.Context, grant *models.ApplicationGrant, userID, raw string) (*models.Character, error) {
	var id int64
	switch {
	case raw != "":
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, errors.MalformedArgument(ParamCharacter, "not an integer")
		}
		id = n
	case len(grant.Characters) == 1:
		id = grant.Characters[0]
	default:
		return nil, errors.ErrCharacterNotSpecified
	}
	if !grant.Characters.Contains(id) {
		return nil, errors.ErrCharacterNotFound
	}
	c, err := s.Characters.Get(ctx, id)
	if errors.Is(err, errors.ErrNotFound) {
		return nil, errors.ErrCharacterNotFound
	}
	if err != nil {
		return nil, err
	}
	if !c.OwnedBy(userID) {
		return nil, errors.ErrCharacterNotFound
	}
	return c, nil
}

// selectKey picks a live credential of the user covering the endpoint mask.
// Corporation endpoints take corporation keys only, character endpoints any other kind.
func (s *Service) selectKey(ctx context.Context, characterID int64, userID string, ep eveapi.Endpoint) (*models.Credential, error) {
	creds, err := s.Credentials.ForCharacter(ctx, characterID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	for i := range creds {
		c := &creds[i]
		if c.OwnerID != userID || c.Expired(now) || !c.Covers(ep.Mask) {
			continue
		}
		if (c.Kind == models.KeyCorporation) != ep.Corporation {
			continue
		}
		return c, nil
	}
	if ep.NeedsKey {
		return nil, errors.ErrKeyNotFound
	}
	return nil, nil
}

func (s *Service) fetch(ctx context.Context, ep eveapi.Endpoint, cred *models.Credential, params url.Values) (*Result, error) {
	args, err := CacheKey(params)
	if err != nil {
		return nil, errors.WithMessage(errors.ErrUpstream, err.Error())
	}
	var (
		keyID int64
		key   *eveapi.Key
	)
	if cred != nil {
		keyID = cred.KeyID
		key = &eveapi.Key{ID: cred.KeyID, VCode: cred.VCode}
	}
	name := ep.Path()

	cached, err := s.Cache.Get(ctx, keyID, name, args)
	switch {
	case err == nil && !cached.Expired(s.now()):
		metrics.RecordCacheLookup(true)
		return &Result{Result: cached.Result, CachedUntil: cached.Expires, Cached: true}, nil
	case err != nil && !errors.Is(err, errors.ErrNotFound):
		logging.Ctx(ctx).Warn().Err(err).Str("endpoint", name).Msg("api cache read failed")
	}
	metrics.RecordCacheLookup(false)

	resp, err := s.Upstream.Call(ctx, ep, key, params)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("endpoint", name).Int64("key", keyID).Msg("upstream call failed")
		return nil, errors.WithMessage(errors.ErrUpstream, err.Error())
	}
	v := &models.CachedAPIValue{KeyID: keyID, Name: name, Arguments: args, Result: resp.Result, Expires: resp.CachedUntil}
	if err := s.Cache.Put(ctx, v); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("endpoint", name).Msg("api cache write failed")
	}
	return &Result{Result: resp.Result, CachedUntil: resp.CachedUntil}, nil
}

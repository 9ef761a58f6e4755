// Package eveapi is a client of the upstream XML game API.
package eveapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/legit-games/eveauth/logging"
	"github.com/legit-games/eveauth/metrics"
)

const maxBody = 8 << 20

// Key is an upstream credential.
type Key struct {
	ID    int64
	VCode string
}

// HTTPError is a non-200 upstream answer.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("eveapi: upstream returned %d", e.StatusCode)
}

// IsForbidden reports an upstream 403, which means the key was revoked.
func IsForbidden(err error) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.StatusCode == http.StatusForbidden
}

// BreakerConfig tunes the circuit breaker around upstream calls.
type BreakerConfig struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	Breaker   BreakerConfig
}

// Client calls the upstream API. Transport failures and 5xx answers trip the
// breaker; answers about a specific key do not.
type Client struct {
	baseURL   string
	userAgent string
	http      *http.Client
	cb        *gobreaker.CircuitBreaker[[]byte]
}

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "eveauth"
	}
	threshold := cfg.Breaker.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	name := "eveapi"
	metrics.CircuitBreakerState.Set(0)
	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.Breaker.MaxRequests,
		Interval:    cfg.Breaker.Interval,
		Timeout:     cfg.Breaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
			metrics.CircuitBreakerState.Set(stateValue(to))
		},
		IsSuccessful: func(err error) bool {
			var he *HTTPError
			if errors.As(err, &he) {
				return he.StatusCode < 500
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		http:      &http.Client{Timeout: cfg.Timeout},
		cb:        cb,
	}
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// Fetch posts the form to <base>/<path>.xml.aspx and returns the raw body.
func (c *Client) Fetch(ctx context.Context, path string, key *Key, params url.Values) ([]byte, error) {
	form := url.Values{}
	for k, v := range params {
		form[k] = v
	}
	if key != nil {
		form.Set("keyID", strconv.FormatInt(key.ID, 10))
		form.Set("vCode", key.VCode)
	}
	start := time.Now()
	body, err := c.cb.Execute(func() ([]byte, error) {
		return c.post(ctx, path, form)
	})
	metrics.RecordUpstream(path, time.Since(start), err)
	if err != nil {
		logging.Ctx(ctx).Debug().Err(err).Str("endpoint", path).Msg("upstream call failed")
	}
	return body, err
}

func (c *Client) post(ctx context.Context, path string, form url.Values) ([]byte, error) {
	u := c.baseURL + "/" + strings.Trim(path, "/") + ".xml.aspx"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

// Call performs a generic endpoint call.
func (c *Client) Call(ctx context.Context, ep Endpoint, key *Key, params url.Values) (*Response, error) {
	body, err := c.Fetch(ctx, ep.Path(), key, params)
	if err != nil {
		return nil, err
	}
	return ParseResponse(body)
}

func call[T any](ctx context.Context, c *Client, path string, key *Key, params url.Values) (*T, time.Time, error) {
	body, err := c.Fetch(ctx, path, key, params)
	if err != nil {
		return nil, time.Time{}, err
	}
	return decode[T](body)
}

func (c *Client) APIKeyInfo(ctx context.Context, key Key) (*APIKeyInfo, error) {
	v, _, err := call[APIKeyInfo](ctx, c, "account/APIKeyInfo", &key, nil)
	return v, err
}

func (c *Client) CharacterSheet(ctx context.Context, key Key, characterID int64) (*CharacterSheet, error) {
	v, _, err := call[CharacterSheet](ctx, c, "char/CharacterSheet", &key, characterParams(characterID))
	return v, err
}

// CharacterInfo calls the public variant; key may be nil.
func (c *Client) CharacterInfo(ctx context.Context, key *Key, characterID int64) (*CharacterInfo, error) {
	v, _, err := call[CharacterInfo](ctx, c, "eve/CharacterInfo", key, characterParams(characterID))
	return v, err
}

func (c *Client) CorporationSheet(ctx context.Context, corporationID int64) (*CorporationSheet, error) {
	params := url.Values{"corporationID": {strconv.FormatInt(corporationID, 10)}}
	v, _, err := call[CorporationSheet](ctx, c, "corp/CorporationSheet", nil, params)
	return v, err
}

func characterParams(id int64) url.Values {
	return url.Values{"characterID": {strconv.FormatInt(id, 10)}}
}

package envelope

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Client issues signed form posts to the service and verifies signed 2xx
// responses. Key is the application's private key; ServerKey is the public
// half of the key the service generated for the application.
type Client struct {
	BaseURL    string
	AppID      string
	Key        *ecdsa.PrivateKey
	ServerKey  *ecdsa.PublicKey
	HTTPClient *http.Client
	Verifier   *Verifier
	Now        func() time.Time
}

// Response is a verified service response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	return json.Unmarshal(r.Body, v)
}

// Post signs and sends form to BaseURL+path.
func (c *Client) Post(ctx context.Context, path string, form url.Values) (*Response, error) {
	target := strings.TrimRight(c.BaseURL, "/") + path
	body := []byte(form.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if err := c.Sign(req, body); err != nil {
		return nil, err
	}

	hc := c.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	out := &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return out, nil
	}
	if c.ServerKey != nil {
		v := c.Verifier
		if v == nil {
			v = NewVerifier(DefaultSkew)
		}
		err := v.VerifyResponse(c.ServerKey, c.AppID, resp.Header.Get(HeaderDate), target, data, resp.Header.Get(HeaderSignature))
		if err != nil {
			return out, fmt.Errorf("envelope: response verification: %w", err)
		}
	}
	return out, nil
}

// Sign sets the Date, X-Service and X-Signature headers of req for body.
func (c *Client) Sign(req *http.Request, body []byte) error {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	date := FormatDate(now())
	sig, err := Sign(c.Key, RequestCanonical(date, req.URL.String(), body))
	if err != nil {
		return err
	}
	req.Header.Set(HeaderDate, date)
	req.Header.Set(HeaderService, c.AppID)
	req.Header.Set(HeaderSignature, sig)
	return nil
}

// Command relyingparty is a minimal application that signs in through both
// authorization methods and shows the info answer for the resulting grant.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"

	"github.com/legit-games/eveauth/envelope"
)

var (
	authBaseURL  = env("RP_AUTH_BASE_URL", "http://localhost:8080")
	appID        = env("RP_APP_ID", "")
	clientSecret = env("RP_CLIENT_SECRET", "")
	privateKey   = env("RP_PRIVATE_KEY_FILE", "rp-key.pem")
	serverKey    = env("RP_SERVER_KEY_FILE", "server-key.pem")
	selfURL      = env("RP_SELF_URL", "http://localhost:9098")
	scope        = env("RP_SCOPE", "")
	state        = env("RP_STATE", "xyz")
)

type app struct {
	client *envelope.Client
	oauth  *oauth2.Config

	mu        sync.Mutex
	token     string
	lastError string
}

func main() {
	client, err := loadClient()
	if err != nil {
		log.Fatalf("loading keys: %v", err)
	}
	a := &app{
		client: client,
		oauth: &oauth2.Config{
			ClientID:     appID,
			ClientSecret: clientSecret,
			RedirectURL:  selfURL + "/callback",
			Scopes:       strings.Fields(scope),
			Endpoint: oauth2.Endpoint{
				AuthURL:   authBaseURL + "/authorize/oauth2",
				TokenURL:  authBaseURL + "/authorize/oauth2/access_token",
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
	}

	http.HandleFunc("/", a.handleIndex)
	http.HandleFunc("/legacy", a.handleLegacy)
	http.HandleFunc("/legacy/done", a.handleLegacyDone)
	http.HandleFunc("/oauth", a.handleOAuth)
	http.HandleFunc("/callback", a.handleCallback)
	http.HandleFunc("/info", a.handleInfo)

	port := os.Getenv("RP_PORT")
	if port == "" {
		port = "9098"
	}
	log.Printf("relying party running at http://localhost:%s", port)
	log.Printf("Config: AUTH_BASE=%s APP_ID=%s SELF_URL=%s", authBaseURL, appID, selfURL)
	log.Fatal(http.ListenAndServe(":"+port, nil))
}

func loadClient() (*envelope.Client, error) {
	raw, err := os.ReadFile(privateKey)
	if err != nil {
		return nil, err
	}
	key, err := envelope.DecodePrivateKey(string(raw))
	if err != nil {
		return nil, err
	}
	c := &envelope.Client{BaseURL: authBaseURL, AppID: appID, Key: key}
	if raw, err := os.ReadFile(serverKey); err == nil {
		if c.ServerKey, err = envelope.DecodePublicKey(string(raw)); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (a *app) handleIndex(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	token, lastError := a.token, a.lastError
	a.mu.Unlock()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	warn := ""
	if lastError != "" {
		warn = `<div style="color:#991b1b;background:#fee2e2;border:1px solid #fca5a5;padding:8px;margin-bottom:8px;">` + lastError + `</div>`
	}
	fmt.Fprintf(w, `<h1>Relying Party Example</h1>
	%s
	<ul>
		<li><a href="/legacy">Sign in with the legacy method</a></li>
		<li><a href="/oauth">Sign in with the authorization code method</a></li>
		<li><a href="/info">Call core/info (requires a token)</a></li>
	</ul>
	<pre>token=%s</pre>`, warn, token)
}

func (a *app) fail(w http.ResponseWriter, status int, msg string) {
	a.mu.Lock()
	a.lastError = msg
	a.mu.Unlock()
	http.Error(w, msg, status)
}

func (a *app) setToken(token string) {
	a.mu.Lock()
	a.token, a.lastError = token, ""
	a.mu.Unlock()
}

func (a *app) handleLegacy(w http.ResponseWriter, r *http.Request) {
	resp, err := a.client.Post(r.Context(), "/api/core/authorize", url.Values{
		"success": {selfURL + "/legacy/done"},
		"failure": {selfURL + "/"},
	})
	if err != nil {
		a.fail(w, http.StatusBadGateway, "authorize request failed: "+err.Error())
		return
	}
	var body struct {
		Success  bool   `json:"success"`
		Reason   string `json:"reason"`
		Location string `json:"location"`
	}
	if err := resp.Decode(&body); err != nil || !body.Success {
		a.fail(w, http.StatusBadGateway, fmt.Sprintf("authorize refused (%d): %s", resp.StatusCode, body.Reason))
		return
	}
	http.Redirect(w, r, body.Location, http.StatusFound)
}

func (a *app) handleLegacyDone(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		a.fail(w, http.StatusBadRequest, "missing token")
		return
	}
	a.setToken(token)
	http.Redirect(w, r, "/info", http.StatusFound)
}

func (a *app) handleOAuth(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, a.oauth.AuthCodeURL(state), http.StatusFound)
}

func (a *app) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("state") != state {
		a.fail(w, http.StatusBadRequest, "invalid state returned from authorization server")
		return
	}
	if e := q.Get("error"); e != "" {
		a.fail(w, http.StatusForbidden, "authorization failed: "+e)
		return
	}
	tok, err := a.oauth.Exchange(context.Background(), q.Get("code"))
	if err != nil {
		a.fail(w, http.StatusBadGateway, "token request failed: "+err.Error())
		return
	}
	a.setToken(tok.AccessToken)
	http.Redirect(w, r, "/info", http.StatusFound)
}

func (a *app) handleInfo(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	token := a.token
	a.mu.Unlock()
	if token == "" {
		http.Error(w, "missing token; sign in first", http.StatusBadRequest)
		return
	}
	resp, err := a.client.Post(r.Context(), "/api/core/info", url.Values{"token": {token}})
	if err != nil {
		a.fail(w, http.StatusBadGateway, "info request failed: "+err.Error())
		return
	}
	var info map[string]any
	if err := resp.Decode(&info); err != nil {
		a.fail(w, http.StatusBadGateway, "info decode failed: "+err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	out, _ := json.MarshalIndent(info, "", "  ")
	_, _ = w.Write(out)
}

func env(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

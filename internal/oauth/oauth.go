// Package oauth mediates the Oauth login path: producing an authorize URL
// a CLI client opens in a browser, exchanging the resulting code for a
// token, deriving the username a provider wants the relay to display, and
// caching refresh/access tokens on disk so a returning connection can skip
// the browser round trip.
package oauth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sort"

	"golang.org/x/oauth2"
)

// ProviderConfig names one configured Oauth provider.
type ProviderConfig struct {
	Name         string
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	RedirectURL  string
	Scopes       []string
}

func (p ProviderConfig) oauth2Config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		RedirectURL:  p.RedirectURL,
		Scopes:       p.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  p.AuthURL,
			TokenURL: p.TokenURL,
		},
	}
}

// Flow is an in-progress login: the id the relay allocated for it, also the
// token-cache key a returning client can supply to skip the browser round
// trip.
type Flow struct {
	ID       string
	Provider string
}

// Mediator tracks configured providers and mediates their login flows.
type Mediator struct {
	providers map[string]ProviderConfig
	cacheDir  func() (string, bool)
}

// New builds a Mediator over the given providers, keyed by provider name.
func New(providers []ProviderConfig) *Mediator {
	m := &Mediator{
		providers: make(map[string]ProviderConfig, len(providers)),
	}
	for _, p := range providers {
		m.providers[p.Name] = p
	}
	return m
}

// SetCacheDirResolver lets the relay tell the mediator where token cache
// files should be written once a login succeeds.
func (m *Mediator) SetCacheDirResolver(f func() (string, bool)) {
	m.cacheDir = f
}

// ErrUnknownProvider is returned when a Login names a provider that isn't
// configured.
type ErrUnknownProvider struct{ Provider string }

func (e ErrUnknownProvider) Error() string {
	return fmt.Sprintf("oauth: unknown provider %q", e.Provider)
}

// StartFlow begins a login for the named provider, returning the Flow the
// caller's connection should hold for the duration of the login and the
// URL a client should open in a browser. The flow's id doubles as the
// token-cache key for any future fast (refresh-token-only) login.
func (m *Mediator) StartFlow(provider string) (*Flow, string, error) {
	p, ok := m.providers[provider]
	if !ok {
		return nil, "", ErrUnknownProvider{Provider: provider}
	}
	id, err := randomToken()
	if err != nil {
		return nil, "", err
	}
	// oauth2.Config.AuthCodeURL requires a state parameter on the wire to
	// the provider; this relay's wire protocol has no field for a client to
	// echo it back (OauthCliResponse carries only the auth code), so
	// there's nothing here to check it against — the flow id above is what
	// actually binds a later Login.Auth.FlowID back to this flow.
	state, err := randomToken()
	if err != nil {
		return nil, "", err
	}

	flow := &Flow{ID: id, Provider: provider}
	url := p.oauth2Config().AuthCodeURL(state, oauth2.AccessTypeOffline)
	return flow, url, nil
}

// ExchangeCode completes flow with the authorization code a client read
// off the provider's redirect, resolving the display username and caching
// the resulting refresh/access token under flow.ID so a later Login
// naming this id can skip the browser round trip entirely.
func (m *Mediator) ExchangeCode(ctx context.Context, flow *Flow, code string) (string, error) {
	p, ok := m.providers[flow.Provider]
	if !ok {
		return "", ErrUnknownProvider{Provider: flow.Provider}
	}

	tok, err := p.oauth2Config().Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("oauth: exchange code: %w", err)
	}

	username, err := usernameFromAccessToken(ctx, flow.Provider, tok.AccessToken)
	if err != nil {
		return "", fmt.Errorf("oauth: resolve username: %w", err)
	}

	if m.cacheDir != nil {
		if dir, ok := m.cacheDir(); ok {
			_ = SaveTokenCache(dir, flow.Provider, flow.ID, tok)
		}
	}
	return username, nil
}

// TryCachedLogin attempts the fast path described in §4.5 step 2: if a
// refresh token is cached under userID for provider, refresh it, re-derive
// the username, and overwrite the cache with the new token pair. A missing
// cache file is tolerated (ok=false, err=nil) so the caller falls back to
// the interactive browser flow, per the concurrency model's guidance that
// a racing cache write is tolerated the same way.
func (m *Mediator) TryCachedLogin(ctx context.Context, provider, userID string) (username string, ok bool, err error) {
	if m.cacheDir == nil {
		return "", false, nil
	}
	dir, have := m.cacheDir()
	if !have {
		return "", false, nil
	}
	refreshToken, _, err := LoadTokenCache(dir, provider, userID)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, err
	}

	username, tok, err := m.RefreshAndResolveUsername(ctx, provider, refreshToken)
	if err != nil {
		return "", false, err
	}
	_ = SaveTokenCache(dir, provider, userID, tok)
	return username, true, nil
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// usernameFromAccessToken derives the display name the relay should show
// for a successful login, per provider.
func usernameFromAccessToken(ctx context.Context, provider, accessToken string) (string, error) {
	switch provider {
	case "recurse_center":
		return recurseCenterUsername(ctx, accessToken)
	default:
		return "", fmt.Errorf("oauth: no username resolver for provider %q", provider)
	}
}

type recurseProfile struct {
	Name   string `json:"name"`
	Stints []struct {
		StartDate string `json:"start_date"`
		Batch     *struct {
			ShortName string `json:"short_name"`
		} `json:"batch"`
	} `json:"stints"`
}

// recurseProfileURLForTest lets tests point profile lookups at an httptest
// server instead of the real Recurse Center API.
var recurseProfileURLForTest = "https://www.recurse.com/api/v1/profiles/me"

// recurseCenterUsername fetches https://www.recurse.com/api/v1/profiles/me
// and derives "<name> (<latest-batch-short-name>)", following
// original_source/teleterm/src/auth/recurse_center.rs's "latest stint by
// start date, batch optional" rule.
func recurseCenterUsername(ctx context.Context, accessToken string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, recurseProfileURLForTest, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch profile: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch profile: status %d", resp.StatusCode)
	}

	var profile recurseProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return "", fmt.Errorf("decode profile: %w", err)
	}

	if profile.Name == "" {
		return "", fmt.Errorf("profile missing name")
	}
	if len(profile.Stints) == 0 {
		return profile.Name, nil
	}

	sort.Slice(profile.Stints, func(i, j int) bool {
		return profile.Stints[i].StartDate > profile.Stints[j].StartDate
	})
	latest := profile.Stints[0]
	if latest.Batch == nil || latest.Batch.ShortName == "" {
		return profile.Name, nil
	}
	return fmt.Sprintf("%s (%s)", profile.Name, latest.Batch.ShortName), nil
}


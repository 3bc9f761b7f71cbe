package oauth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/oauth2"
)

func testProvider(tokenURL string) ProviderConfig {
	return ProviderConfig{
		Name:         "recurse_center",
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		AuthURL:      "https://www.recurse.com/oauth/authorize",
		TokenURL:     tokenURL,
		RedirectURL:  "teleterm://oauth/callback",
		Scopes:       []string{"user"},
	}
}

func TestStartFlowBuildsAuthorizeURL(t *testing.T) {
	m := New([]ProviderConfig{testProvider("https://example.com/token")})
	flow, url, err := m.StartFlow("recurse_center")
	if err != nil {
		t.Fatalf("StartFlow: %v", err)
	}
	if flow.ID == "" {
		t.Fatal("expected non-empty flow id")
	}
	if url == "" {
		t.Fatal("expected non-empty authorize URL")
	}
}

func TestStartFlowUnknownProvider(t *testing.T) {
	m := New(nil)
	_, _, err := m.StartFlow("github")
	var unknown ErrUnknownProvider
	if !asUnknownProvider(err, &unknown) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
}

func asUnknownProvider(err error, target *ErrUnknownProvider) bool {
	e, ok := err.(ErrUnknownProvider)
	if ok {
		*target = e
	}
	return ok
}

func TestExchangeCodeSuccess(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok-abc","refresh_token":"ref-abc","token_type":"bearer"}`))
	}))
	defer tokenSrv.Close()

	profileSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name":"Ada Lovelace","stints":[{"start_date":"2020-01-06","batch":{"short_name":"W1'20"}},{"start_date":"2019-06-03","batch":{"short_name":"S1'19"}}]}`))
	}))
	defer profileSrv.Close()

	orig := recurseProfileURLForTest
	recurseProfileURLForTest = profileSrv.URL
	defer func() { recurseProfileURLForTest = orig }()

	dir := t.TempDir()
	m := New([]ProviderConfig{testProvider(tokenSrv.URL)})
	m.SetCacheDirResolver(func() (string, bool) { return dir, true })

	flow, _, err := m.StartFlow("recurse_center")
	if err != nil {
		t.Fatalf("StartFlow: %v", err)
	}

	username, err := m.ExchangeCode(context.Background(), flow, "good-code")
	if err != nil {
		t.Fatalf("ExchangeCode: %v", err)
	}
	if username != "Ada Lovelace (W1'20)" {
		t.Fatalf("unexpected derived username: %q", username)
	}

	refresh, access, err := LoadTokenCache(dir, "recurse_center", flow.ID)
	if err != nil {
		t.Fatalf("LoadTokenCache: %v", err)
	}
	if refresh != "ref-abc" || access != "tok-abc" {
		t.Fatalf("unexpected cached tokens: %q %q", refresh, access)
	}
}

func TestExchangeCodeUnknownProvider(t *testing.T) {
	m := New(nil)
	_, err := m.ExchangeCode(context.Background(), &Flow{ID: "x", Provider: "ghost"}, "code")
	var unknown ErrUnknownProvider
	if !asUnknownProvider(err, &unknown) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
}

func TestTryCachedLoginMissingCacheFallsBackCleanly(t *testing.T) {
	m := New([]ProviderConfig{testProvider("https://example.com/token")})
	m.SetCacheDirResolver(func() (string, bool) { return t.TempDir(), true })

	_, ok, err := m.TryCachedLogin(context.Background(), "recurse_center", "no-such-id")
	if err != nil {
		t.Fatalf("expected absence to be tolerated, got error: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for a missing cache file")
	}
}

func TestTryCachedLoginSuccess(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok-refreshed","refresh_token":"ref-refreshed","token_type":"bearer"}`))
	}))
	defer tokenSrv.Close()

	profileSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name":"Alan Turing","stints":[{"start_date":"2021-01-04","batch":{"short_name":"W1'21"}}]}`))
	}))
	defer profileSrv.Close()

	orig := recurseProfileURLForTest
	recurseProfileURLForTest = profileSrv.URL
	defer func() { recurseProfileURLForTest = orig }()

	dir := t.TempDir()
	if err := SaveTokenCache(dir, "recurse_center", "returning-id", &oauth2.Token{AccessToken: "tok-old", RefreshToken: "ref-old"}); err != nil {
		t.Fatalf("SaveTokenCache: %v", err)
	}

	m := New([]ProviderConfig{testProvider(tokenSrv.URL)})
	m.SetCacheDirResolver(func() (string, bool) { return dir, true })

	username, ok, err := m.TryCachedLogin(context.Background(), "recurse_center", "returning-id")
	if err != nil {
		t.Fatalf("TryCachedLogin: %v", err)
	}
	if !ok {
		t.Fatal("expected ok=true for a cached refresh token")
	}
	if username != "Alan Turing (W1'21)" {
		t.Fatalf("unexpected derived username: %q", username)
	}

	_, access, err := LoadTokenCache(dir, "recurse_center", "returning-id")
	if err != nil {
		t.Fatalf("LoadTokenCache: %v", err)
	}
	if access != "tok-refreshed" {
		t.Fatalf("expected cache overwritten with refreshed token, got %q", access)
	}
}

func TestRecurseCenterUsernameNoStints(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name":"Grace Hopper","stints":[]}`))
	}))
	defer srv.Close()

	orig := recurseProfileURLForTest
	recurseProfileURLForTest = srv.URL
	defer func() { recurseProfileURLForTest = orig }()

	name, err := recurseCenterUsername(context.Background(), "tok")
	if err != nil {
		t.Fatalf("recurseCenterUsername: %v", err)
	}
	if name != "Grace Hopper" {
		t.Fatalf("unexpected name: %q", name)
	}
}

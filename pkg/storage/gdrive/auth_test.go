package gdrive

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/menta2k/helmet-inspector/pkg/storage"
)

func TestInspectToken(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		tok  *oauth2.Token
		want TokenState
	}{
		{"nil", nil, NoToken},
		{"empty", &oauth2.Token{}, NoToken},
		{"valid", &oauth2.Token{AccessToken: "a", Expiry: now.Add(time.Hour)}, Valid},
		{"no expiry", &oauth2.Token{AccessToken: "a"}, Valid},
		{"about to expire", &oauth2.Token{AccessToken: "a", RefreshToken: "r", Expiry: now.Add(5 * time.Second)}, ExpiredRefreshable},
		{"expired with refresh", &oauth2.Token{AccessToken: "a", RefreshToken: "r", Expiry: now.Add(-time.Hour)}, ExpiredRefreshable},
		{"refresh only", &oauth2.Token{RefreshToken: "r"}, ExpiredRefreshable},
		{"expired without refresh", &oauth2.Token{AccessToken: "a", Expiry: now.Add(-time.Minute)}, ExpiredUnrefreshable},
	}
	for _, tt := range tests {
		if got := InspectToken(tt.tok, now); got != tt.want {
			t.Errorf("%s: InspectToken = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestSaveAndLoadToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	tok := &oauth2.Token{AccessToken: "access", RefreshToken: "refresh", TokenType: "Bearer"}
	if err := SaveToken(path, tok); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("Expected 0600 permissions, got %o", perm)
	}

	loaded, err := LoadToken(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.AccessToken != "access" || loaded.RefreshToken != "refresh" {
		t.Errorf("Unexpected loaded token %+v", loaded)
	}
}

// tokenServer answers OAuth token requests with the given access token
func tokenServer(t *testing.T, access string, fail bool) (*httptest.Server, *int) {
	t.Helper()
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if fail {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"` + access + `","refresh_token":"r2","token_type":"Bearer","expires_in":3600}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func testConfig(tokenURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		Endpoint: oauth2.Endpoint{
			AuthURL:   "https://accounts.example.com/auth",
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		RedirectURL: "urn:ietf:wg:oauth:2.0:oob",
	}
}

func TestTokenReusesValidToken(t *testing.T) {
	srv, calls := tokenServer(t, "unused", false)
	path := filepath.Join(t.TempDir(), "token.json")
	SaveToken(path, &oauth2.Token{AccessToken: "stored", Expiry: time.Now().Add(time.Hour)})

	a := NewAuthenticatorWithConfig(testConfig(srv.URL), path, nil, nil)
	tok, err := a.Token(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if tok.AccessToken != "stored" || *calls != 0 {
		t.Errorf("Expected stored token without network calls, got %q after %d calls", tok.AccessToken, *calls)
	}
}

func TestTokenRefreshesAndPersists(t *testing.T) {
	srv, _ := tokenServer(t, "refreshed", false)
	path := filepath.Join(t.TempDir(), "token.json")
	SaveToken(path, &oauth2.Token{AccessToken: "old", RefreshToken: "r", Expiry: time.Now().Add(-time.Hour)})

	a := NewAuthenticatorWithConfig(testConfig(srv.URL), path, nil, nil)
	tok, err := a.Token(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if tok.AccessToken != "refreshed" {
		t.Errorf("Expected refreshed token, got %q", tok.AccessToken)
	}
	saved, _ := LoadToken(path)
	if saved == nil || saved.AccessToken != "refreshed" {
		t.Errorf("Expected refreshed token to be persisted, got %+v", saved)
	}
}

func TestTokenConsentFlow(t *testing.T) {
	srv, _ := tokenServer(t, "granted", false)
	path := filepath.Join(t.TempDir(), "token.json")

	var shownURL string
	consent := func(ctx context.Context, authURL string) (string, error) {
		shownURL = authURL
		return "code-123", nil
	}
	a := NewAuthenticatorWithConfig(testConfig(srv.URL), path, consent, nil)
	tok, err := a.Token(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if tok.AccessToken != "granted" {
		t.Errorf("Expected exchanged token, got %q", tok.AccessToken)
	}
	if !strings.Contains(shownURL, "access_type=offline") {
		t.Errorf("Expected offline access URL, got %s", shownURL)
	}
	if _, err := LoadToken(path); err != nil {
		t.Errorf("Expected token file to be written: %v", err)
	}
}

func TestTokenWithoutConsentFails(t *testing.T) {
	srv, _ := tokenServer(t, "", true)
	path := filepath.Join(t.TempDir(), "token.json")
	SaveToken(path, &oauth2.Token{AccessToken: "old", RefreshToken: "revoked", Expiry: time.Now().Add(-time.Hour)})

	a := NewAuthenticatorWithConfig(testConfig(srv.URL), path, nil, nil)
	if _, err := a.Token(context.Background()); !errors.Is(err, storage.ErrAuth) {
		t.Errorf("Expected ErrAuth, got %v", err)
	}

	missing := NewAuthenticatorWithConfig(testConfig(srv.URL), filepath.Join(t.TempDir(), "absent.json"), nil, nil)
	if _, err := missing.Token(context.Background()); !errors.Is(err, storage.ErrAuth) {
		t.Errorf("Expected ErrAuth for missing token, got %v", err)
	}
}

func TestNewAuthenticatorMissingCredentials(t *testing.T) {
	_, err := NewAuthenticator(filepath.Join(t.TempDir(), "credentials.json"), "token.json", nil, nil)
	if !errors.Is(err, storage.ErrAuth) {
		t.Errorf("Expected ErrAuth, got %v", err)
	}
}

func TestStdinConsent(t *testing.T) {
	var out strings.Builder
	consent := StdinConsent(strings.NewReader("  abc-code \n"), &out)
	code, err := consent(context.Background(), "https://example.com/auth")
	if err != nil {
		t.Fatal(err)
	}
	if code != "abc-code" {
		t.Errorf("Unexpected code %q", code)
	}
	if !strings.Contains(out.String(), "https://example.com/auth") {
		t.Errorf("Expected auth URL in prompt, got %q", out.String())
	}

	if _, err := StdinConsent(strings.NewReader(""), &out)(context.Background(), "u"); err == nil {
		t.Error("Expected error on empty input")
	}
}

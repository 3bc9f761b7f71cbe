package oauth

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/oauth2"
)

// tokenCacheFileName returns the on-disk cache file name for a resolved
// login: server-oauth-<provider>-<user_id>.
func tokenCacheFileName(provider, userID string) string {
	return fmt.Sprintf("server-oauth-%s-%s", provider, sanitizeForFilename(userID))
}

func sanitizeForFilename(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// SaveTokenCache writes a provider's refresh and access tokens as a
// two-line UTF-8 file (refresh token, then access token), created
// atomically via a temp file + rename in the same directory so a crash
// mid-write never leaves a half-written cache file behind.
func SaveTokenCache(dir, provider, userID string, tok *oauth2.Token) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("oauth: create cache dir: %w", err)
	}
	path := filepath.Join(dir, tokenCacheFileName(provider, userID))

	tmp, err := os.CreateTemp(dir, ".tmp-oauth-*")
	if err != nil {
		return fmt.Errorf("oauth: create temp cache file: %w", err)
	}
	defer os.Remove(tmp.Name())

	content := tok.RefreshToken + "\n" + tok.AccessToken + "\n"
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return fmt.Errorf("oauth: write temp cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("oauth: close temp cache file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("oauth: replace cache file: %w", err)
	}
	return nil
}

// LoadTokenCache reads a previously saved refresh/access token pair.
func LoadTokenCache(dir, provider, userID string) (refreshToken, accessToken string, err error) {
	path := filepath.Join(dir, tokenCacheFileName(provider, userID))
	f, err := os.Open(path)
	if err != nil {
		return "", "", err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		return "", "", fmt.Errorf("oauth: cache file %s missing refresh token line", path)
	}
	refreshToken = sc.Text()
	if !sc.Scan() {
		return "", "", fmt.Errorf("oauth: cache file %s missing access token line", path)
	}
	accessToken = sc.Text()
	return refreshToken, accessToken, sc.Err()
}

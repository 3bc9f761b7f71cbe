package oauth

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
)

// RefreshAndResolveUsername exchanges a cached refresh token for a fresh
// access token and re-derives the display name, letting a returning
// connection skip the browser round trip entirely.
func (m *Mediator) RefreshAndResolveUsername(ctx context.Context, provider, refreshToken string) (string, *oauth2.Token, error) {
	p, ok := m.providers[provider]
	if !ok {
		return "", nil, ErrUnknownProvider{Provider: provider}
	}

	src := p.oauth2Config().TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return "", nil, fmt.Errorf("oauth: refresh token: %w", err)
	}

	username, err := usernameFromAccessToken(ctx, provider, tok.AccessToken)
	if err != nil {
		return "", nil, err
	}
	return username, tok, nil
}

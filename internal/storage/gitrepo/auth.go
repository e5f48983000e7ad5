package gitrepo

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/redstring/core/internal/cache"
)

// installationTokenTTL is conservative against GitHub's 60-minute
// installation token lifetime, leaving margin for clock skew and the
// time a commit call itself takes.
const installationTokenTTL = 45 * time.Minute

// AppAuth mints GitHub App installation tokens, caching them for
// installationTokenTTL so every Read/Write doesn't re-auth.
type AppAuth struct {
	appID          int64
	installationID int64
	privateKey     *rsa.PrivateKey
	httpClient     *http.Client
	baseURL        string
	tokens         *cache.Cache[string]
}

// NewAppAuth builds a GitHub App token source. privateKey is the App's
// PEM-decoded RSA key.
func NewAppAuth(appID, installationID int64, privateKey *rsa.PrivateKey) *AppAuth {
	return &AppAuth{
		appID:          appID,
		installationID: installationID,
		privateKey:     privateKey,
		httpClient:     http.DefaultClient,
		baseURL:        "https://api.github.com",
		tokens:         cache.New[string](installationTokenTTL, 1),
	}
}

const appCacheKey = "installation_token"

// Token returns a cached installation token, minting a new one when the
// cache has expired it.
func (a *AppAuth) Token(ctx context.Context) (string, error) {
	if tok, ok := a.tokens.Get(appCacheKey); ok {
		return tok, nil
	}
	tok, err := a.mintInstallationToken(ctx)
	if err != nil {
		return "", err
	}
	a.tokens.Set(appCacheKey, tok)
	return tok, nil
}

func (a *AppAuth) mintInstallationToken(ctx context.Context) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now.Add(-30 * time.Second)),
		ExpiresAt: jwt.NewNumericDate(now.Add(9 * time.Minute)),
		Issuer:    fmt.Sprintf("%d", a.appID),
	}
	appJWT, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(a.privateKey)
	if err != nil {
		return "", fmt.Errorf("gitrepo: sign app jwt: %w", err)
	}

	url := fmt.Sprintf("%s/app/installations/%d/access_tokens", a.baseURL, a.installationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return "", fmt.Errorf("gitrepo: build installation token request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+appJWT)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gitrepo: request installation token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("gitrepo: installation token request failed: %s: %s", resp.Status, body)
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("gitrepo: decode installation token response: %w", err)
	}
	return out.Token, nil
}

// OAuthAuth wraps an OAuth2 token source (user-authorized access), using
// golang.org/x/oauth2's own expiry tracking rather than internal/cache
// since the oauth2.TokenSource contract already refreshes on demand.
type OAuthAuth struct {
	src oauth2.TokenSource
}

// NewOAuthAuth wraps src, typically the result of an
// oauth2.Config.TokenSource call seeded with a previously stored
// refresh token.
func NewOAuthAuth(src oauth2.TokenSource) *OAuthAuth {
	return &OAuthAuth{src: src}
}

// Token returns the current access token, refreshing through the
// wrapped source when it has expired.
func (o *OAuthAuth) Token(ctx context.Context) (string, error) {
	tok, err := o.src.Token()
	if err != nil {
		return "", fmt.Errorf("gitrepo: refresh oauth token: %w", err)
	}
	return tok.AccessToken, nil
}

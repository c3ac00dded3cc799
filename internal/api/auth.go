package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// TokenPair is returned by login and refresh.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type LoginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ResetPasswordRequest struct {
	Email       string `json:"email"`
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

// OAuth providers accepted by the backend.
const (
	OAuthGoogle = "google"
	OAuthGitHub = "github"
)

// Login authenticates and stores the returned token pair.
func (c *Client) Login(ctx context.Context, req LoginRequest) (TokenPair, error) {
	var pair TokenPair
	if err := c.doJSON(ctx, request{method: http.MethodPost, path: "/auth/login", body: req, noRefresh: true}, &pair); err != nil {
		return TokenPair{}, fmt.Errorf("login failed: %w", err)
	}
	if err := c.tokens.SetTokens(pair.AccessToken, pair.RefreshToken); err != nil {
		return TokenPair{}, fmt.Errorf("failed to store tokens: %w", err)
	}
	c.log.Info("logged in", "email", req.Email)
	return pair, nil
}

// Register creates an account. It does not log in.
func (c *Client) Register(ctx context.Context, req RegisterRequest) error {
	var ok bool
	if err := c.doJSON(ctx, request{method: http.MethodPost, path: "/auth/register", body: req, noRefresh: true}, &ok); err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}
	return nil
}

// Logout ends the server session. Local tokens are cleared even when the
// server call fails.
func (c *Client) Logout(ctx context.Context) error {
	err := c.doJSON(ctx, request{method: http.MethodPost, path: "/auth/logout", noRefresh: true}, nil)
	if clearErr := c.tokens.Clear(); clearErr != nil && err == nil {
		err = clearErr
	}
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// ResetPassword changes the password. The server revokes every session, so
// local tokens are cleared on success.
func (c *Client) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	var ok bool
	if err := c.doJSON(ctx, request{method: http.MethodPost, path: "/auth/reset-password", body: req}, &ok); err != nil {
		return fmt.Errorf("password reset failed: %w", err)
	}
	return c.tokens.Clear()
}

// OAuthURL is the browser entry point of the server-side OAuth flow for
// provider. After login the server redirects to fromURL with the token pair
// in the query string.
func (c *Client) OAuthURL(provider, fromURL string) string {
	return c.endpoint("/oauth/"+provider, url.Values{"fromUrl": {fromURL}})
}

// refresh exchanges the refresh token for a new pair. stale is the access
// token the failed request carried; if another caller already replaced it
// the refresh is skipped.
func (c *Client) refresh(ctx context.Context, stale string) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	access, refreshToken := c.tokens.Tokens()
	if access != "" && access != stale {
		return nil
	}
	if refreshToken == "" {
		_ = c.tokens.Clear()
		return ErrNoRefreshToken
	}

	var pair TokenPair
	err := c.doJSON(ctx, request{
		method:    http.MethodPost,
		path:      "/auth/refresh",
		body:      map[string]string{"refreshToken": refreshToken},
		noRefresh: true,
	}, &pair)
	if err != nil {
		c.log.Warn("token refresh failed", "error", err)
		_ = c.tokens.Clear()
		return fmt.Errorf("session expired, please log in again: %w", err)
	}
	return c.tokens.SetTokens(pair.AccessToken, pair.RefreshToken)
}

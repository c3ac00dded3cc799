package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvAccessToken overrides the stored access token when set.
const EnvAccessToken = "DAGENT_ACCESS_TOKEN"

// ErrNotLoggedIn is returned when no access token is available.
var ErrNotLoggedIn = errors.New("not logged in, run `dagent login` first")

// Manager resolves the token pair the API client sends.
type Manager struct {
	store *Store
	now   func() time.Time
}

// NewManager creates a new auth manager
func NewManager(dataDir string) (*Manager, error) {
	store, err := NewStore(dataDir)
	if err != nil {
		return nil, err
	}

	return &Manager{
		store: store,
		now:   time.Now,
	}, nil
}

// Store returns the backing token store.
func (m *Manager) Store() *Store { return m.store }

// Tokens returns the access token using priority resolution:
// 1. Environment variable
// 2. Config file (with env substitution)
// 3. Stored auth.json
// An overridden access token never carries a refresh token.
func (m *Manager) Tokens() (string, string) {
	if token := os.Getenv(EnvAccessToken); token != "" {
		return token, ""
	}

	if token := viper.GetString("access_token"); token != "" {
		if resolved := resolveEnvSubstitution(token); resolved != "" {
			return resolved, ""
		}
	}

	return m.store.Tokens()
}

// SetTokens stores a fresh pair.
func (m *Manager) SetTokens(access, refresh string) error {
	return m.store.SetTokens(access, refresh)
}

// Clear forgets the stored pair.
func (m *Manager) Clear() error {
	return m.store.Clear()
}

// Claims decodes the current access token.
func (m *Manager) Claims() (Claims, error) {
	access, _ := m.Tokens()
	if access == "" {
		return Claims{}, ErrNotLoggedIn
	}
	c, ok := DecodeJWT(access)
	if !ok {
		return Claims{}, errors.New("access token is not a valid JWT")
	}
	return c, nil
}

// LoggedIn reports whether a usable session exists. An expired access
// token still counts when a refresh token can renew it.
func (m *Manager) LoggedIn() bool {
	access, refresh := m.Tokens()
	if access == "" {
		return false
	}
	if refresh != "" {
		return true
	}
	c, ok := DecodeJWT(access)
	if !ok {
		return true
	}
	return !c.Expired(m.now())
}

// LoginWithOAuth runs a browser flow and stores the resulting pair.
func (m *Manager) LoginWithOAuth(ctx context.Context, flow OAuthFlow, remember bool) error {
	result, err := flow.Run(ctx)
	if err != nil {
		return fmt.Errorf("OAuth flow failed: %w", err)
	}
	if err := m.store.SetRemember(remember); err != nil {
		return err
	}
	return m.store.SetTokens(result.AccessToken, result.RefreshToken)
}

var envRef = regexp.MustCompile(`\{env:([^}]+)\}`)

// resolveEnvSubstitution replaces {env:VAR_NAME} with environment variable values
func resolveEnvSubstitution(value string) string {
	if !strings.Contains(value, "{env:") {
		return value
	}

	return envRef.ReplaceAllStringFunc(value, func(match string) string {
		// Extract variable name from {env:VAR_NAME}
		varName := match[5 : len(match)-1]
		return os.Getenv(varName)
	})
}

package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	authFileName = "auth.json"
	filePerms    = 0600 // Owner read/write only
)

// AuthData is the structure of auth.json
type AuthData struct {
	Version      int    `json:"version"`
	Server       string `json:"server,omitempty"`
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Remember     bool   `json:"remember"`
}

// Store keeps the backend token pair. When remember is off the pair only
// lives in memory and auth.json holds no tokens.
type Store struct {
	mu       sync.RWMutex
	filePath string
	data     *AuthData
}

// NewStore creates a new token store
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	store := &Store{
		filePath: filepath.Join(dataDir, authFileName),
		data:     &AuthData{Version: 1},
	}

	// Try to load existing data
	if err := store.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load auth data: %w", err)
	}

	return store, nil
}

// load reads the auth file from disk
func (s *Store) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}

	var authData AuthData
	if err := json.Unmarshal(data, &authData); err != nil {
		return fmt.Errorf("failed to parse auth file: %w", err)
	}
	if authData.Version == 0 {
		authData.Version = 1
	}

	s.data = &authData
	return nil
}

// save writes the auth file to disk with secure permissions
func (s *Store) save() error {
	onDisk := *s.data
	if !onDisk.Remember {
		onDisk.AccessToken = ""
		onDisk.RefreshToken = ""
	}

	data, err := json.MarshalIndent(onDisk, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal auth data: %w", err)
	}

	// Write to temp file first, then rename (atomic)
	tmpPath := s.filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, filePerms); err != nil {
		return fmt.Errorf("failed to write auth file: %w", err)
	}

	if err := os.Rename(tmpPath, s.filePath); err != nil {
		_ = os.Remove(tmpPath) // Best-effort cleanup of temp file
		return fmt.Errorf("failed to save auth file: %w", err)
	}

	return nil
}

// Tokens returns the current token pair
func (s *Store) Tokens() (string, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.AccessToken, s.data.RefreshToken
}

// SetTokens replaces the token pair, persisting it when remember is on
func (s *Store) SetTokens(access, refresh string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.AccessToken = access
	s.data.RefreshToken = refresh
	return s.save()
}

// Clear forgets the token pair
func (s *Store) Clear() error {
	return s.SetTokens("", "")
}

// SetRemember controls whether tokens are written to disk
func (s *Store) SetRemember(remember bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.Remember = remember
	return s.save()
}

// Remember reports whether tokens are persisted
func (s *Store) Remember() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Remember
}

// Server returns the server the tokens were issued by
func (s *Store) Server() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Server
}

// SetServer records the server the tokens belong to
func (s *Store) SetServer(server string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.Server = server
	return s.save()
}

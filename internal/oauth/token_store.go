package oauth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"sombot/pkg/logging"
)

// TokenStore persists the current token record to a single JSON file.
// Saves are atomic (write to a temp file, then rename) so a crash mid-write
// never leaves a half-written record behind. The file is owner-only since
// it holds live credentials.
type TokenStore struct {
	mu   sync.Mutex
	path string
}

// NewTokenStore creates a store backed by the given file path.
func NewTokenStore(path string) *TokenStore {
	return &TokenStore{path: path}
}

// Path returns the file the store writes to.
func (s *TokenStore) Path() string {
	return s.path
}

// Load reads the persisted token record. A missing, unreadable, or corrupt
// file yields (nil, nil): the caller treats that as "no token present" and
// runs a fresh authorization rather than failing.
func (s *TokenStore) Load() (*TokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logging.Warn("OAuth", "Token file unreadable, treating as absent: %v", err)
		}
		return nil, nil
	}

	var rec TokenRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		logging.Warn("OAuth", "Token file corrupt, treating as absent: %v", err)
		return nil, nil
	}

	if rec.AccessToken == "" {
		logging.Warn("OAuth", "Token file has no access token, treating as absent")
		return nil, nil
	}

	return &rec, nil
}

// Save atomically replaces the persisted record. The temp file lives in the
// same directory as the target so the rename is a same-filesystem commit.
func (s *TokenStore) Save(rec *TokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode token record: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}

	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to commit token file: %w", err)
	}

	logging.Debug("OAuth", "Token record saved to %s (expires %s)", s.path, rec.ExpiresAt)
	return nil
}

// Delete removes the persisted record. Used for forced re-authentication
// and when the provider revokes the refresh token. A missing file is fine.
func (s *TokenStore) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete token file: %w", err)
	}
	return nil
}

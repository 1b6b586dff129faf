package auth

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

const pairedUserFile = "paired_chat_id"

// UserStore caches the paired operator's numeric chat id in a file so the
// pairing survives restarts.
type UserStore struct {
	mu   sync.Mutex
	path string
}

// NewUserStore creates a user store rooted at the data directory.
func NewUserStore(dataDir string) (*UserStore, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	return &UserStore{path: filepath.Join(dataDir, pairedUserFile)}, nil
}

// ChatID returns the paired chat id, or false when no operator is paired.
func (s *UserStore) ChatID() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Remember records the paired chat id.
func (s *UserStore) Remember(chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.WriteFile(s.path, []byte(strconv.FormatInt(chatID, 10)), 0o600); err != nil {
		return fmt.Errorf("failed to store chat id: %w", err)
	}
	return nil
}

// Forget removes the pairing, if any.
func (s *UserStore) Forget() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove chat id: %w", err)
	}
	return nil
}

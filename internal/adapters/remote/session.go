package remote

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoSession reports that no session file exists.
var ErrNoSession = errors.New("no saved session")

// LoadSession reads the session saved at path.
func LoadSession(path string) (Session, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Session{}, ErrNoSession
	}
	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Session{}, ErrNoSession
	}
	if err != nil {
		return Session{}, fmt.Errorf("read session %q: %w", path, err)
	}
	var s Session
	if err := json.Unmarshal(content, &s); err != nil {
		return Session{}, fmt.Errorf("decode session %q: %w", path, err)
	}
	return s, nil
}

// SaveSession writes s to path, readable only by the current user.
func SaveSession(path string, s Session) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("session path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	content, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(content, '\n'), 0o600); err != nil {
		return fmt.Errorf("write session %q: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace session %q: %w", path, err)
	}
	return nil
}

// RemoveSession deletes the saved session. A missing file is not an error.
func RemoveSession(path string) error {
	err := os.Remove(strings.TrimSpace(path))
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("remove session %q: %w", path, err)
}

package audio

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileSettings is a Settings implementation backed by a single JSON file.
// Saves rewrite the file atomically via a temp file rename, so a crash
// mid-write never corrupts the store.
type FileSettings struct {
	path string

	mu     sync.Mutex
	values map[string]string
}

// NewFileSettings opens the settings store at path, creating an empty one
// if the file does not exist.
func NewFileSettings(path string) (*FileSettings, error) {
	s := &FileSettings{path: path, values: make(map[string]string)}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read settings file: %w", err)
	}
	if err := json.Unmarshal(data, &s.values); err != nil {
		return nil, fmt.Errorf("parse settings file %s: %w", path, err)
	}
	return s, nil
}

// Load returns the stored value for key, or an error if it has never been
// saved.
func (s *FileSettings) Load(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	if !ok {
		return "", fmt.Errorf("setting %q not found", key)
	}
	return v, nil
}

// Save stores value under key and persists the whole store to disk.
func (s *FileSettings) Save(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value

	data, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write settings file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace settings file: %w", err)
	}
	return nil
}

var _ Settings = (*FileSettings)(nil)

package prefs

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// Preference keys.
const (
	KeyMuted         = "muted"
	KeyPanelPosition = "panel_position"
	KeyPanelSize     = "panel_size"
)

// Store is a client-local {key → value} preference file with a
// load-once/save-on-change lifecycle. It survives reloads and is injected
// into the engine rather than accessed as ambient state.
type Store struct {
	mu     sync.Mutex
	path   string
	values map[string]string
}

// Open loads the preference file, treating a missing file as an empty store.
func Open(path string) (*Store, error) {
	store := &Store{path: path, values: map[string]string{}}

	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return store, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &store.values); err != nil {
		return nil, err
	}
	return store, nil
}

// Fresh returns an empty store backed by path. An unreadable existing file
// is overwritten on the next write.
func Fresh(path string) *Store {
	return &Store{path: path, values: map[string]string{}}
}

// Get returns the value for key, or "" when unset.
func (s *Store) Get(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[key]
}

// Set stores the value and writes the file through.
func (s *Store) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return s.save()
}

// Bool returns the boolean value for key, defaulting to false.
func (s *Store) Bool(key string) bool {
	v, err := strconv.ParseBool(s.Get(key))
	return err == nil && v
}

// SetBool stores a boolean value.
func (s *Store) SetBool(key string, value bool) error {
	return s.Set(key, strconv.FormatBool(value))
}

func (s *Store) save() error {
	raw, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(s.path, raw, 0o600)
}

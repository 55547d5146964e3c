// Package config persists driver defaults in a small JSON document.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// AddressKey holds the default instrument resource name.
const AddressKey = "address"

// Store is a JSON key/value document on disk. It performs no locking;
// concurrent writers race and the last one wins.
type Store struct {
	Path string
}

// DefaultPath returns <user config dir>/gofpc/config.json.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate user config dir: %w", err)
	}
	return filepath.Join(dir, "gofpc", "config.json"), nil
}

// Open returns a Store at path, or at DefaultPath when path is empty.
func Open(path string) (*Store, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	return &Store{Path: path}, nil
}

// Load reads the document. A missing file or a null document yields an
// empty map.
func (s *Store) Load() (map[string]any, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("read config %s: %w", s.Path, err)
	}
	c := map[string]any{}
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", s.Path, err)
	}
	if c == nil {
		c = map[string]any{}
	}
	return c, nil
}

// Merge adds the keys of newc to the stored document, overwriting keys
// that already exist, and rewrites the whole file. Keys are never removed.
func (s *Store) Merge(newc map[string]any) error {
	c, err := s.Load()
	if err != nil {
		return err
	}
	for k, v := range newc {
		c[k] = v
	}
	data, err := json.MarshalIndent(c, "", " ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(s.Path, data, 0o644)
}

// Address returns the persisted default address, if any.
func (s *Store) Address() (string, bool, error) {
	c, err := s.Load()
	if err != nil {
		return "", false, err
	}
	v, ok := c[AddressKey]
	if !ok {
		return "", false, nil
	}
	addr, ok := v.(string)
	if !ok || addr == "" {
		return "", false, nil
	}
	return addr, true, nil
}

// SetAddress persists addr as the default address.
func (s *Store) SetAddress(addr string) error {
	return s.Merge(map[string]any{AddressKey: addr})
}

package prefs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"reader/internal/storage"
)

// keyDelimiter keeps viper from treating dots in keys as nesting
const keyDelimiter = "::"

// Store implements storage.Preferences as a JSON settings file managed by viper.
// Every setter persists the whole file through a temp file and rename.
type Store struct {
	mu   sync.Mutex
	v    *viper.Viper
	path string
}

var _ storage.Preferences = (*Store)(nil)

func newViper(path string) *viper.Viper {
	v := viper.NewWithOptions(viper.KeyDelimiter(keyDelimiter))
	v.SetConfigFile(path)
	v.SetConfigType("json")
	return v
}

// Open loads the settings file at path; a missing file starts empty
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create preferences directory: %w", err)
	}

	v := newViper(path)
	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read preferences: %w", err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat preferences: %w", err)
	}

	return &Store{v: v, path: path}, nil
}

func (s *Store) lookup(key string) (any, error) {
	if !s.v.IsSet(key) {
		return nil, storage.ErrNotFound
	}
	return s.v.Get(key), nil
}

func (s *Store) set(key string, value any) error {
	s.v.Set(key, value)
	return s.save()
}

// save writes all settings next to the target and swaps the file in
func (s *Store) save() error {
	ext := filepath.Ext(s.path)
	tmp := strings.TrimSuffix(s.path, ext) + ".tmp" + ext
	if err := s.v.WriteConfigAs(tmp); err != nil {
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace preferences: %w", err)
	}
	return nil
}

func (s *Store) GetString(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.lookup(key); err != nil {
		return "", err
	}
	return s.v.GetString(key), nil
}

func (s *Store) SetString(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set(key, value)
}

func (s *Store) GetInt(ctx context.Context, key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.lookup(key); err != nil {
		return 0, err
	}
	return s.v.GetInt(key), nil
}

func (s *Store) SetInt(ctx context.Context, key string, value int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set(key, value)
}

func (s *Store) GetBool(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.lookup(key); err != nil {
		return false, err
	}
	return s.v.GetBool(key), nil
}

func (s *Store) SetBool(ctx context.Context, key string, value bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set(key, value)
}

func (s *Store) GetStringList(ctx context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.lookup(key); err != nil {
		return nil, err
	}
	return s.v.GetStringSlice(key), nil
}

func (s *Store) SetStringList(ctx context.Context, key string, value []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if value == nil {
		value = []string{}
	}
	return s.set(key, value)
}

// Remove drops key. Viper cannot unset a value, so the instance is rebuilt
// from the remaining settings.
func (s *Store) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.v.IsSet(key) {
		return nil
	}

	settings := s.v.AllSettings()
	delete(settings, strings.ToLower(key))

	v := newViper(s.path)
	if err := v.MergeConfigMap(settings); err != nil {
		return fmt.Errorf("failed to rebuild preferences: %w", err)
	}
	s.v = v
	return s.save()
}

// Close does nothing; every change is already on disk
func (s *Store) Close() error {
	return nil
}

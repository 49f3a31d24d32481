// Package secrets persists credentials apart from the project configuration.
// The OS keyring is preferred; a 0600 JSON file next to the project
// configuration is used when no keyring is available.
package secrets

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/zalando/go-keyring"
)

// FileName is the name of the fallback secrets file inside a project directory.
const FileName = ".tridyme-secrets.json"

// ErrNotFound is returned when no secret is stored under a key.
var ErrNotFound = errors.New("secret not found")

// Store reads and writes named secrets.
type Store interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
}

// =============================================================================
// Keyring
// =============================================================================

// Keyring stores secrets in the OS keyring under one service name per project.
type Keyring struct {
	service string
}

// NewKeyring returns a Keyring scoped to the project at dir.
func NewKeyring(dir string) *Keyring {
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	return &Keyring{service: "tridyme-cli:" + abs}
}

// Service returns the keyring service name.
func (k *Keyring) Service() string { return k.service }

// Get returns the secret stored under key.
func (k *Keyring) Get(key string) (string, error) {
	value, err := keyring.Get(k.service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("keyring get %q: %w", key, err)
	}
	return value, nil
}

// Set stores value under key.
func (k *Keyring) Set(key, value string) error {
	if err := keyring.Set(k.service, key, value); err != nil {
		return fmt.Errorf("keyring set %q: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (k *Keyring) Delete(key string) error {
	err := keyring.Delete(k.service, key)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("keyring delete %q: %w", key, err)
	}
	return nil
}

// =============================================================================
// File
// =============================================================================

// File stores secrets in a JSON object readable only by the owner.
type File struct {
	path string
}

// NewFile returns a File store rooted in the project directory dir.
func NewFile(dir string) *File {
	return &File{path: filepath.Join(dir, FileName)}
}

// Path returns the secrets file path.
func (f *File) Path() string { return f.path }

// Get returns the secret stored under key.
func (f *File) Get(key string) (string, error) {
	values, err := f.read()
	if err != nil {
		return "", err
	}
	value, ok := values[key]
	if !ok || value == "" {
		return "", ErrNotFound
	}
	return value, nil
}

// Set stores value under key and rewrites the file with mode 0600.
func (f *File) Set(key, value string) error {
	values, err := f.read()
	if err != nil {
		return err
	}
	values[key] = value
	return f.write(values)
}

// Delete removes key.
func (f *File) Delete(key string) error {
	values, err := f.read()
	if err != nil {
		return err
	}
	if _, ok := values[key]; !ok {
		return nil
	}
	delete(values, key)
	return f.write(values)
}

func (f *File) read() (map[string]string, error) {
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read secrets file %s: %w", f.path, err)
	}
	values := map[string]string{}
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("parse secrets file %s: %w", f.path, err)
	}
	return values, nil
}

func (f *File) write(values map[string]string) error {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("encode secrets: %w", err)
	}
	if err := os.WriteFile(f.path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write secrets file %s: %w", f.path, err)
	}
	// WriteFile keeps the mode of an existing file.
	if err := os.Chmod(f.path, 0o600); err != nil {
		return fmt.Errorf("chmod secrets file %s: %w", f.path, err)
	}
	return nil
}

// =============================================================================
// Fallback
// =============================================================================

// Fallback uses Primary and switches to Secondary for the rest of the process
// once Primary reports an error other than ErrNotFound.
type Fallback struct {
	Primary   Store
	Secondary Store
	Logger    *slog.Logger

	degraded bool
}

// Get looks in Primary first, then Secondary.
func (s *Fallback) Get(key string) (string, error) {
	if !s.degraded {
		value, err := s.Primary.Get(key)
		if err == nil {
			return value, nil
		}
		if !errors.Is(err, ErrNotFound) {
			s.degrade(err)
		}
	}
	return s.Secondary.Get(key)
}

// Set writes to Primary, or to Secondary when Primary is unavailable.
func (s *Fallback) Set(key, value string) error {
	if !s.degraded {
		err := s.Primary.Set(key, value)
		if err == nil {
			return nil
		}
		s.degrade(err)
	}
	return s.Secondary.Set(key, value)
}

// Delete removes key from both stores.
func (s *Fallback) Delete(key string) error {
	var errs []error
	if !s.degraded {
		errs = append(errs, s.Primary.Delete(key))
	}
	errs = append(errs, s.Secondary.Delete(key))
	return errors.Join(errs...)
}

func (s *Fallback) degrade(err error) {
	s.degraded = true
	if s.Logger != nil {
		s.Logger.Warn("keyring unavailable; storing secrets in a local file instead", "error", err)
	}
}

// Open returns the secret store for the project at dir. backend "file" skips the keyring.
func Open(backend, dir string, logger *slog.Logger) Store {
	file := NewFile(dir)
	if backend == "file" {
		return file
	}
	return &Fallback{Primary: NewKeyring(dir), Secondary: file, Logger: logger}
}

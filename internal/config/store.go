package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// FileName is the name of the per-project configuration file.
const FileName = ".tridyme-config.json"

var (
	// ErrConfigCorrupt indicates the configuration file exists but is not a JSON object.
	ErrConfigCorrupt = errors.New("project configuration is corrupt")
	// ErrConfigWrite indicates the configuration file could not be written.
	ErrConfigWrite = errors.New("project configuration could not be written")
)

// Store loads and persists the ProjectConfig of one project directory.
// It holds no configuration state of its own.
type Store struct {
	dir string
}

// NewStore returns a Store for the project rooted at dir.
func NewStore(dir string) *Store {
	if dir == "" {
		dir = "."
	}
	return &Store{dir: dir}
}

// Dir returns the project directory.
func (s *Store) Dir() string { return s.dir }

// Path returns the configuration file path.
func (s *Store) Path() string { return filepath.Join(s.dir, FileName) }

// Exists reports whether the configuration file is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.Path())
	return err == nil
}

// Load reads the configuration file. A missing file yields the defaults.
func (s *Store) Load() (*ProjectConfig, error) {
	raw, err := os.ReadFile(s.Path())
	if errors.Is(err, fs.ErrNotExist) {
		return NewProjectConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.Path(), err)
	}

	values := make(map[string]any)
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&values); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConfigCorrupt, s.Path(), err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %s: unexpected data after the JSON object", ErrConfigCorrupt, s.Path())
	}
	if values == nil {
		// A literal "null" decodes without error.
		return nil, fmt.Errorf("%w: %s: not a JSON object", ErrConfigCorrupt, s.Path())
	}

	cfg := NewProjectConfig()
	for k, v := range values {
		cfg.values[k] = v
	}
	return cfg, nil
}

// Save writes cfg to the configuration file. The file is written to a
// temporary sibling first and renamed into place.
func (s *Store) Save(cfg *ProjectConfig) error {
	out := NewProjectConfig()
	for _, k := range cfg.Keys() {
		out.values[k] = cfg.values[k]
	}

	data, err := json.MarshalIndent(out.values, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode: %v", ErrConfigWrite, err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(s.dir, FileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfigWrite, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: write %s: %v", ErrConfigWrite, tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %v", ErrConfigWrite, tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("%w: chmod %s: %v", ErrConfigWrite, tmpName, err)
	}
	if err := os.Rename(tmpName, s.Path()); err != nil {
		return fmt.Errorf("%w: rename to %s: %v", ErrConfigWrite, s.Path(), err)
	}
	return nil
}

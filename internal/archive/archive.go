// Package archive packages a project directory into a zip file for upload.
package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/moby/patternmatcher"
	"github.com/moby/patternmatcher/ignorefile"

	"github.com/tridyme/tridyme-cli/internal/logging"
)

// IgnoreFileName is the optional file in the project root listing extra exclude patterns.
const IgnoreFileName = ".deployignore"

// DefaultExcludes are never packaged. Patterns use .dockerignore syntax.
var DefaultExcludes = []string{
	"**/.git",
	"**/.github",
	"**/node_modules",
	"**/env",
	"**/__pycache__",
	".tridyme-secrets.json",
	".env",
	"**/.env*",
}

// Options controls Package.
type Options struct {
	// Source is the project directory.
	Source string
	// WorkDir receives the staging copy and the archive. It must exist.
	WorkDir string
	// Name is the archive base name; the archive is Name + ".zip".
	Name string
	// Exclude adds patterns to DefaultExcludes and the ignore file.
	Exclude []string
	Logger  *slog.Logger
}

// Result describes a produced archive.
type Result struct {
	Path  string
	Files int
}

// Package copies Source into a staging directory under WorkDir, skipping
// excluded paths, zips the staging directory and removes it.
func Package(opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	if opts.Name == "" {
		return nil, errors.New("archive name is empty")
	}

	matcher, err := loadMatcher(opts.Source, opts.Exclude)
	if err != nil {
		return nil, err
	}

	staging := filepath.Join(opts.WorkDir, "staging")
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(staging); err != nil {
			logger.Warn("failed to remove staging directory", "path", staging, "error", err)
		}
	}()

	files, err := stage(opts.Source, staging, matcher, logger)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(opts.WorkDir, opts.Name+".zip")
	if err := zipDir(staging, path); err != nil {
		_ = os.Remove(path)
		return nil, err
	}
	logger.Debug("project archive created", "path", path, "files", files)
	return &Result{Path: path, Files: files}, nil
}

func loadMatcher(source string, extra []string) (*patternmatcher.PatternMatcher, error) {
	patterns := append([]string{}, DefaultExcludes...)
	patterns = append(patterns, extra...)

	raw, err := os.ReadFile(filepath.Join(source, IgnoreFileName))
	switch {
	case err == nil:
		filePatterns, err := ignorefile.ReadAll(strings.NewReader(string(raw)))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", IgnoreFileName, err)
		}
		patterns = append(patterns, filePatterns...)
	case !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("read %s: %w", IgnoreFileName, err)
	}

	matcher, err := patternmatcher.New(patterns)
	if err != nil {
		return nil, fmt.Errorf("compile exclude patterns: %w", err)
	}
	return matcher, nil
}

func stage(source, staging string, matcher *patternmatcher.PatternMatcher, logger *slog.Logger) (int, error) {
	sourceAbs, err := filepath.Abs(source)
	if err != nil {
		return 0, err
	}
	stagingAbs, err := filepath.Abs(staging)
	if err != nil {
		return 0, err
	}

	files := 0
	err = filepath.WalkDir(sourceAbs, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == sourceAbs {
			return nil
		}
		if p == stagingAbs || strings.HasPrefix(p, stagingAbs+string(filepath.Separator)) {
			return filepath.SkipDir
		}
		rel, err := filepath.Rel(sourceAbs, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		ignored, err := matcher.MatchesOrParentMatches(rel)
		if err != nil {
			return fmt.Errorf("match %s: %w", rel, err)
		}
		if ignored {
			if d.IsDir() && !matcher.Exclusions() {
				return filepath.SkipDir
			}
			return nil
		}

		dst := filepath.Join(stagingAbs, filepath.FromSlash(rel))
		switch {
		case d.IsDir():
			return os.MkdirAll(dst, 0o755)
		case d.Type().IsRegular():
			info, err := d.Info()
			if err != nil {
				return err
			}
			if err := copyFile(p, dst, info.Mode().Perm()); err != nil {
				return err
			}
			files++
			return nil
		default:
			logger.Debug("skipping non-regular file", "path", rel)
			return nil
		}
	})
	if err != nil {
		return 0, fmt.Errorf("stage project files: %w", err)
	}
	return files, nil
}

func copyFile(src, dst string, mode fs.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func zipDir(root, dest string) error {
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	zw := zip.NewWriter(f)

	walkErr := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(rel)
		if d.IsDir() {
			header.Name += "/"
			_, err := zw.CreateHeader(header)
			return err
		}
		header.Method = zip.Deflate
		w, err := zw.CreateHeader(header)
		if err != nil {
			return err
		}
		in, err := os.Open(p)
		if err != nil {
			return err
		}
		_, err = io.Copy(w, in)
		_ = in.Close()
		return err
	})

	closeErr := zw.Close()
	fileErr := f.Close()
	if err := errors.Join(walkErr, closeErr, fileErr); err != nil {
		return fmt.Errorf("write archive %s: %w", dest, err)
	}
	return nil
}

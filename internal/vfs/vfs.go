// Package vfs provides the engine's view of the build root: reads and
// directory scans over build-root-relative paths, with configured ignore
// patterns filtered out everywhere.
package vfs

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// FS is a read-only view over a build root. Immutable after New.
type FS struct {
	root    string
	ignores []string
}

// Entry is one directory entry from Scandir.
type Entry struct {
	Name  string
	IsDir bool
}

// New validates the build root and the ignore patterns. Either failing is
// fatal to engine construction.
func New(buildRoot string, ignorePatterns []string) (*FS, error) {
	info, err := os.Stat(buildRoot)
	if err != nil {
		return nil, fmt.Errorf("build root %s: %w", buildRoot, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("build root %s is not a directory", buildRoot)
	}
	for _, p := range ignorePatterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid ignore pattern %q", p)
		}
	}
	return &FS{root: buildRoot, ignores: ignorePatterns}, nil
}

// Root returns the build root path.
func (f *FS) Root() string {
	return f.root
}

// Ignored reports whether the build-root-relative path matches any ignore
// pattern.
func (f *FS) Ignored(rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, p := range f.ignores {
		// Patterns validated in New; Match cannot fail here.
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// resolve maps a relative path into the build root, rejecting escapes.
func (f *FS) resolve(rel string) (string, error) {
	clean := filepath.Clean(rel)
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the build root", rel)
	}
	return filepath.Join(f.root, clean), nil
}

// ReadFile returns the content of a build-root-relative file. Ignored paths
// read as not existing.
func (f *FS) ReadFile(rel string) ([]byte, error) {
	if f.Ignored(rel) {
		return nil, fmt.Errorf("read %s: %w", rel, fs.ErrNotExist)
	}
	abs, err := f.resolve(rel)
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rel, err)
	}
	return content, nil
}

// Stat returns file info for a build-root-relative path.
func (f *FS) Stat(rel string) (os.FileInfo, error) {
	if f.Ignored(rel) {
		return nil, fmt.Errorf("stat %s: %w", rel, fs.ErrNotExist)
	}
	abs, err := f.resolve(rel)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", rel, err)
	}
	return info, nil
}

// Scandir lists a build-root-relative directory, sorted by name, with
// ignored entries removed.
func (f *FS) Scandir(rel string) ([]Entry, error) {
	abs, err := f.resolve(rel)
	if err != nil {
		return nil, err
	}
	ents, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("scandir %s: %w", rel, err)
	}

	out := make([]Entry, 0, len(ents))
	for _, e := range ents {
		child := filepath.Join(rel, e.Name())
		if f.Ignored(child) {
			continue
		}
		out = append(out, Entry{Name: e.Name(), IsDir: e.IsDir()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Package vault describes the on-disk document store: where the aggregate,
// detail and digest documents live, how they are written, and how they are
// read back.
package vault

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

const (
	RootDir       = "Omi"
	RawDir        = "Raw"
	EventsDir     = "Events"
	HighlightsDir = "Highlights"
	SyncDir       = ".omi-sync"
	OverridesDir  = "overrides"
	OverridesFile = "notable.json"
	StateFile     = "state.json"
	IndexFile     = "index.json"
	DocumentExt   = ".md"
)

// Layout resolves document paths under a vault root. Relative paths use
// forward slashes so they are stable across platforms and can be stored in
// the index.
type Layout struct {
	root string
}

func NewLayout(root string) (Layout, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return Layout{}, fmt.Errorf("vault root is required")
	}
	return Layout{root: filepath.Clean(root)}, nil
}

func (l Layout) Root() string { return l.root }

func (l Layout) RawRel(date string) string {
	return path.Join(RootDir, RawDir, date+DocumentExt)
}

func (l Layout) EventRel(filename string) string {
	return path.Join(RootDir, EventsDir, filename)
}

func (l Layout) HighlightsRel(date string) string {
	return path.Join(RootDir, HighlightsDir, date+" Highlights"+DocumentExt)
}

// Abs maps a slash-separated vault-relative path to an absolute path. Paths
// that would escape the vault root are rejected.
func (l Layout) Abs(rel string) (string, error) {
	trimmed := strings.TrimSpace(rel)
	if trimmed == "" || path.IsAbs(trimmed) || filepath.IsAbs(trimmed) {
		return "", fmt.Errorf("path %q is not vault-relative", rel)
	}
	cleaned := path.Clean(trimmed)
	if cleaned == "." {
		return "", fmt.Errorf("path %q does not name a document", rel)
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("path %q escapes the vault root", rel)
	}
	return filepath.Join(l.root, filepath.FromSlash(cleaned)), nil
}

// Rel is the inverse of Abs.
func (l Layout) Rel(abs string) (string, error) {
	rel, err := filepath.Rel(l.root, abs)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("path %s escapes vault root", abs)
	}
	return rel, nil
}

func (l Layout) RawDir() string        { return filepath.Join(l.root, RootDir, RawDir) }
func (l Layout) EventsDir() string     { return filepath.Join(l.root, RootDir, EventsDir) }
func (l Layout) HighlightsDir() string { return filepath.Join(l.root, RootDir, HighlightsDir) }
func (l Layout) SyncDir() string       { return filepath.Join(l.root, RootDir, SyncDir) }

func (l Layout) OverridesPath() string {
	return filepath.Join(l.SyncDir(), OverridesDir, OverridesFile)
}

// EnsureSyncDirs creates the state and overrides directories.
func (l Layout) EnsureSyncDirs() error {
	return os.MkdirAll(filepath.Join(l.SyncDir(), OverridesDir), 0o755)
}

// ListDocuments returns the markdown files directly inside dir, sorted by
// name. A missing directory yields no documents.
func ListDocuments(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	paths := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), DocumentExt) {
			continue
		}
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	return paths, nil
}

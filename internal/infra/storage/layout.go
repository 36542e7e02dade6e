// Package storage manages the on-disk artifact layout, partitioned by
// article id:
//
//	html/{id}.html        UTF-8 HTML source
//	images/{id}/          inline images
//	metadata/{id}.json    download manifest
//	text/{id}.txt         extracted plain text
//
// All writes go through a temp-file-then-rename sequence so a killed
// worker never leaves a partially written artifact under its final name;
// re-processing the same id simply overwrites.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultBasePath is used when STORAGE_BASE_PATH is unset.
const DefaultBasePath = "/tmp/genesis-content"

// Layout resolves artifact paths under a base directory.
type Layout struct {
	base string
}

// NewLayout creates a Layout rooted at base and ensures the four artifact
// directories exist.
func NewLayout(base string) (*Layout, error) {
	if base == "" {
		base = DefaultBasePath
	}
	l := &Layout{base: base}
	for _, dir := range []string{l.HTMLDir(), l.ImagesRoot(), l.MetadataDir(), l.TextDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return l, nil
}

func (l *Layout) Base() string        { return l.base }
func (l *Layout) HTMLDir() string     { return filepath.Join(l.base, "html") }
func (l *Layout) ImagesRoot() string  { return filepath.Join(l.base, "images") }
func (l *Layout) MetadataDir() string { return filepath.Join(l.base, "metadata") }
func (l *Layout) TextDir() string     { return filepath.Join(l.base, "text") }

func (l *Layout) HTMLPath(id string) string     { return filepath.Join(l.HTMLDir(), id+".html") }
func (l *Layout) MetadataPath(id string) string { return filepath.Join(l.MetadataDir(), id+".json") }
func (l *Layout) TextPath(id string) string     { return filepath.Join(l.TextDir(), id+".txt") }
func (l *Layout) ImagesDir(id string) string    { return filepath.Join(l.ImagesRoot(), id) }

// EnsureImagesDir creates (or reuses) the per-article images directory.
func (l *Layout) EnsureImagesDir(id string) (string, error) {
	dir := l.ImagesDir(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	return dir, nil
}

// HasHTML reports whether the HTML artifact for id exists.
func (l *Layout) HasHTML(id string) bool {
	_, err := os.Stat(l.HTMLPath(id))
	return err == nil
}

// HasText reports whether the extracted-text artifact for id exists.
func (l *Layout) HasText(id string) bool {
	_, err := os.Stat(l.TextPath(id))
	return err == nil
}

// ListHTMLIDs returns the ids of every HTML artifact on disk, in
// directory order. Used by the extraction stage's file-discovery fallback
// and by queue/filesystem reconciliation.
func (l *Layout) ListHTMLIDs() ([]string, error) {
	entries, err := os.ReadDir(l.HTMLDir())
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", l.HTMLDir(), err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".html") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".html"))
	}
	return ids, nil
}

// WriteFileAtomic writes data to path via a temp file in the same
// directory followed by a rename. On any error the temp file is removed.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp in %s: %w", dir, err)
	}
	tmpName := tmp.Name()

	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if werr != nil || cerr != nil {
		_ = os.Remove(tmpName)
		if werr != nil {
			return fmt.Errorf("write %s: %w", path, werr)
		}
		return fmt.Errorf("close %s: %w", path, cerr)
	}

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

// Health verifies the base path is writable by round-tripping a probe
// file. Used by the status surface's readiness check.
func (l *Layout) Health() error {
	probe := filepath.Join(l.base, ".healthcheck")
	if err := WriteFileAtomic(probe, []byte("ok")); err != nil {
		return err
	}
	return os.Remove(probe)
}

// Package media keeps the local cache of downloaded chat media.
package media

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Cache is a flat directory of downloaded files shared by every request
// in the process. The directory is created on first use.
type Cache struct {
	dir string
}

// NewCache returns a cache rooted at dir. dir is not created until the
// first write.
func NewCache(dir string) *Cache {
	return &Cache{dir: filepath.Clean(dir)}
}

// Dir returns the cache directory.
func (c *Cache) Dir() string {
	return c.dir
}

// EnsureDir creates the cache directory. Safe to call concurrently and
// repeatedly.
func (c *Cache) EnsureDir() error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("create media cache dir: %w", err)
	}
	return nil
}

// Path resolves name inside the cache directory.
func (c *Cache) Path(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrEmptyName
	}
	if name != filepath.Base(name) || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrPathTraversal, name)
	}
	return filepath.Join(c.dir, name), nil
}

// Put writes reader to name and returns the absolute file path. A partial
// file is removed when the copy fails.
func (c *Cache) Put(name string, reader io.Reader, maxBytes int64) (string, error) {
	if reader == nil {
		return "", fmt.Errorf("reader is required")
	}
	dest, err := c.Path(name)
	if err != nil {
		return "", err
	}
	if err := c.EnsureDir(); err != nil {
		return "", err
	}
	// Stage in a temp file; dest only ever holds a complete payload.
	tmp, err := os.CreateTemp(c.dir, "."+name+".*")
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := copyWithLimit(tmp, reader, maxBytes); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("rename file: %w", err)
	}
	return dest, nil
}

// Prune removes regular files last modified before now-maxAge and returns
// how many were deleted. A missing directory is not an error.
func (c *Cache) Prune(maxAge time.Duration, now time.Time) (int, error) {
	if maxAge <= 0 {
		return 0, nil
	}
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read media cache dir: %w", err)
	}
	cutoff := now.Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, entry.Name())); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("delete %s: %w", entry.Name(), err)
		}
		removed++
	}
	return removed, nil
}

// Package embcache persists computed embedding matrices keyed by the
// content they were computed from, so rebuilding an identical semantic
// index never re-invokes the encoder. Entries are never invalidated:
// changed inputs hash to a new path and stale files accumulate.
package embcache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/liliang-cn/fuzzmatch/internal/encoding"
)

// Cache is a content-addressed store of embedding matrices under one
// directory.
type Cache struct {
	dir string
}

// New creates a cache rooted at dir, creating the directory if needed.
func New(dir string) (*Cache, error) {
	if dir == "" {
		return nil, fmt.Errorf("embcache: empty cache directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("embcache: create cache dir: %w", err)
	}
	return &Cache{dir: dir}, nil
}

// Key derives the content hash for a model identifier and term set. Term
// order does not matter: the terms are sorted before hashing.
func Key(model string, terms []string) string {
	sorted := append([]string(nil), terms...)
	sort.Strings(sorted)

	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte("|"))
	h.Write([]byte(strings.Join(sorted, "|")))
	return hex.EncodeToString(h.Sum(nil))
}

// path maps a key to its file.
func (c *Cache) path(key string) string {
	return filepath.Join(c.dir, key+".vec")
}

// Load returns the cached matrix for the key, or (nil, false, nil) on a
// miss. A corrupt entry is treated as a miss.
func (c *Cache) Load(key string) ([][]float32, bool, error) {
	data, err := os.ReadFile(c.path(key))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("embcache: read entry: %w", err)
	}

	matrix, err := encoding.DecodeMatrix(data)
	if err != nil {
		return nil, false, nil
	}
	return matrix, true, nil
}

// Store writes a matrix under the key, replacing any existing entry.
func (c *Cache) Store(key string, matrix [][]float32) error {
	data, err := encoding.EncodeMatrix(matrix)
	if err != nil {
		return fmt.Errorf("embcache: encode entry: %w", err)
	}

	tmp := c.path(key) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("embcache: write entry: %w", err)
	}
	if err := os.Rename(tmp, c.path(key)); err != nil {
		return fmt.Errorf("embcache: commit entry: %w", err)
	}
	return nil
}

// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package webextplugin

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cespare/xxhash"
)

// Asset is a static file copied into the extension package.
type Asset struct {
	Source string // absolute source path
	Dest   string // destination, relative to the outdir, slash separated
}

type assetEntry struct {
	data []byte
	sum  uint64
}

// AssetCache memoizes file reads under a project root. Entries stay cached
// until invalidated, typically by a file watcher.
type AssetCache struct {
	root string

	mu      sync.Mutex
	entries map[string]*assetEntry
}

// NewAssetCache creates an empty cache for files under root.
func NewAssetCache(root string) *AssetCache {
	return &AssetCache{
		root:    root,
		entries: make(map[string]*assetEntry),
	}
}

func (c *AssetCache) abs(file string) string {
	if filepath.IsAbs(file) {
		return filepath.Clean(file)
	}
	return filepath.Join(c.root, filepath.FromSlash(file))
}

func (c *AssetCache) load(file string) (*assetEntry, error) {
	abs := c.abs(file)

	c.mu.Lock()
	entry, ok := c.entries[abs]
	c.mu.Unlock()
	if ok {
		return entry, nil
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}
	entry = &assetEntry{data: data, sum: xxhash.Sum64(data)}

	c.mu.Lock()
	c.entries[abs] = entry
	c.mu.Unlock()
	return entry, nil
}

// Read returns the content of file.
func (c *AssetCache) Read(file string) ([]byte, error) {
	entry, err := c.load(file)
	if err != nil {
		return nil, err
	}
	return entry.data, nil
}

// Fingerprint returns a content hash of file, or "" when it cannot be read.
func (c *AssetCache) Fingerprint(file string) string {
	entry, err := c.load(file)
	if err != nil {
		return ""
	}
	return strconv.FormatUint(entry.sum, 16)
}

// Invalidate drops the cached content of file.
func (c *AssetCache) Invalidate(file string) {
	abs := c.abs(file)
	c.mu.Lock()
	delete(c.entries, abs)
	c.mu.Unlock()
}

// Reset drops every cached file.
func (c *AssetCache) Reset() {
	c.mu.Lock()
	c.entries = make(map[string]*assetEntry)
	c.mu.Unlock()
}

// Len returns the number of cached files.
func (c *AssetCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// ErrAssetOutsideRoot is returned for asset paths that leave the project root.
var ErrAssetOutsideRoot = errors.New("asset path escapes the project root")

// expandAssets resolves asset paths and glob patterns under root into copy pairs.
// Destinations mirror the source layout relative to root, so paths leaving
// the root are rejected.
func expandAssets(root string, patterns []string) ([]Asset, error) {
	var assets []Asset
	seen := make(map[string]bool)
	fsys := os.DirFS(root)
	for _, pattern := range patterns {
		pattern = path.Clean(filepath.ToSlash(pattern))
		if pattern == ".." || strings.HasPrefix(pattern, "../") || path.IsAbs(pattern) || filepath.IsAbs(pattern) {
			return nil, fmt.Errorf("%w: %s", ErrAssetOutsideRoot, pattern)
		}
		matches := []string{pattern}
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid asset pattern %q", pattern)
		}
		if hasMeta(pattern) {
			var err error
			matches, err = doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
			if err != nil {
				return nil, fmt.Errorf("failed to expand asset pattern %q: %w", pattern, err)
			}
		}
		for _, match := range matches {
			if seen[match] {
				continue
			}
			seen[match] = true
			assets = append(assets, Asset{
				Source: filepath.Join(root, filepath.FromSlash(match)),
				Dest:   match,
			})
		}
	}
	return assets, nil
}

func hasMeta(pattern string) bool {
	for i := 0; i < len(pattern); i++ {
		switch pattern[i] {
		case '*', '?', '[', '{':
			return true
		}
	}
	return false
}

// copyAssets writes every asset into outdir. Assets whose content hash matches
// the last copy are skipped; emitted records the hash per destination.
func copyAssets(cache *AssetCache, outdir string, assets []Asset, emitted map[string]string) error {
	for _, asset := range assets {
		// Step 1: Read the source through the cache
		data, err := cache.Read(asset.Source)
		if err != nil {
			return fmt.Errorf("failed to open source file %s: %w", asset.Source, err)
		}

		outFile := filepath.Join(outdir, filepath.FromSlash(asset.Dest))
		sum := cache.Fingerprint(asset.Source)
		if emitted[asset.Dest] == sum {
			if _, err := os.Stat(outFile); err == nil {
				continue
			}
		}

		// Step 2: Ensure the output directory structure exists
		if err := os.MkdirAll(filepath.Dir(outFile), 0755); err != nil {
			return fmt.Errorf("failed to create output dir for %s: %w", outFile, err)
		}

		// Step 3: Write the destination file
		if err := os.WriteFile(outFile, data, 0644); err != nil {
			return fmt.Errorf("failed to copy from %s to %s: %w", asset.Source, outFile, err)
		}
		emitted[asset.Dest] = sum
	}
	return nil
}

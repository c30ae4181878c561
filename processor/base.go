// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package processor

import (
	"fmt"

	"github.com/buke/esbuild-plugin-webext-go/manifest"
)

// Cache is the per-processor build state.
// When Module is set and not Empty, Module.Entry equals Entry.
type Cache struct {
	Entry  string
	Module *Module
}

// Base is the normalize → resolve → build template every processor is composed from.
// It is not safe for concurrent use.
type Base struct {
	section manifest.Section
	opts    Options
	bundler Bundler
	cache   Cache
}

// NewBase creates a template processor for section.
func NewBase(section manifest.Section, bundler Bundler, opts UserOptions) *Base {
	return &Base{
		section: section,
		opts:    NormalizeOptions(opts),
		bundler: bundler,
	}
}

// Section returns the manifest section the processor builds.
func (b *Base) Section() manifest.Section { return b.section }

// Options returns the normalized options.
func (b *Base) Options() Options { return b.opts }

// Cache returns a copy of the current cache.
func (b *Base) Cache() Cache { return b.cache }

// Resolve records entry verbatim.
func (b *Base) Resolve(entry string) {
	b.cache.Entry = entry
}

// Build returns the module for the cached entry, compiling only when no
// module was built for it yet. A failed build leaves the cache untouched
// and keeps the previous module alive.
func (b *Base) Build() (*Module, error) {
	entry := b.cache.Entry
	if entry == "" {
		b.cache.Module = Empty
		return Empty, nil
	}

	var stale *Module
	if cached := b.cache.Module; cached != nil && cached != Empty {
		if cached.Entry == entry {
			return cached, nil
		}
		// The entry moved since the last build.
		b.opts.Logger.Warn("Cached module is stale, rebuilding",
			"section", b.section, "cached", cached.Entry, "entry", entry)
		stale = cached
	}

	module, err := b.bundler.Build(Request{
		Section: b.section,
		Entry:   entry,
		Output:  OutputPath(entry),
		Options: b.opts,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build %s entry %s: %w", b.section, entry, err)
	}
	if module == nil {
		return nil, fmt.Errorf("failed to build %s entry %s: bundler returned no module", b.section, entry)
	}
	module.Entry = entry

	// The stale module is released only once its replacement exists.
	if stale != nil {
		if err := b.bundler.Stop(b.section, stale.Entry); err != nil {
			b.opts.Logger.Warn("Failed to release stale entry", "section", b.section, "entry", stale.Entry, "error", err)
		}
	}
	b.cache.Module = module
	b.opts.Logger.Debug("Built component", "section", b.section, "entry", entry, "output", module.Output)
	return module, nil
}

// Stop releases the cached entry. Calling it again is a no-op.
func (b *Base) Stop() error {
	cached := b.cache.Module
	b.cache = Cache{}
	if cached == nil || cached == Empty {
		return nil
	}
	if err := b.bundler.Stop(b.section, cached.Entry); err != nil {
		return fmt.Errorf("failed to stop %s entry %s: %w", b.section, cached.Entry, err)
	}
	return nil
}

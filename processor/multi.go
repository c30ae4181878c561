// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package processor

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/buke/esbuild-plugin-webext-go/manifest"
)

// Multi builds every entry of an array section. Each path owns its own Base,
// so distinct entries may be built concurrently.
type Multi struct {
	section manifest.Section
	bundler Bundler
	opts    UserOptions

	mu      sync.Mutex
	entries map[string]*Base
}

// NewMulti creates a processor for an array section.
func NewMulti(section manifest.Section, bundler Bundler, opts UserOptions) *Multi {
	return &Multi{
		section: section,
		bundler: bundler,
		opts:    opts,
		entries: make(map[string]*Base),
	}
}

// NewContentScripts creates the processor for the js lists of content_scripts.
func NewContentScripts(bundler Bundler, opts UserOptions) *Multi {
	return NewMulti(manifest.SectionContentScripts, bundler, opts)
}

// NewWebAccessibleResources creates the processor for the buildable
// resources of web_accessible_resources.
func NewWebAccessibleResources(bundler Bundler, opts UserOptions) *Multi {
	return NewMulti(manifest.SectionWebAccessibleResources, bundler, opts)
}

// Section returns the manifest section the processor builds.
func (m *Multi) Section() manifest.Section { return m.section }

// Resolve records entry and returns the output path it is scheduled for.
func (m *Multi) Resolve(entry string) string {
	m.mu.Lock()
	base, ok := m.entries[entry]
	if !ok {
		base = NewBase(m.section, m.bundler, m.opts)
		m.entries[entry] = base
	}
	m.mu.Unlock()

	base.Resolve(entry)
	return OutputPath(entry)
}

// Build builds one previously resolved entry.
func (m *Multi) Build(entry string) (*Module, error) {
	m.mu.Lock()
	base, ok := m.entries[entry]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%s entry %s was not resolved", m.section, entry)
	}
	return base.Build()
}

// Stop releases one entry; other entries are unaffected.
func (m *Multi) Stop(entry string) error {
	m.mu.Lock()
	base, ok := m.entries[entry]
	delete(m.entries, entry)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return base.Stop()
}

// Entries returns the resolved entries, sorted.
func (m *Multi) Entries() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Sorted(maps.Keys(m.entries))
}

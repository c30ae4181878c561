// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package processor

import (
	"github.com/buke/esbuild-plugin-webext-go/manifest"
)

// Single builds the one entry of a scalar manifest section.
type Single struct {
	*Base
}

// NewSingle creates a processor for a scalar section.
func NewSingle(section manifest.Section, bundler Bundler, opts UserOptions) *Single {
	return &Single{Base: NewBase(section, bundler, opts)}
}

// ResolveManifest takes the section's entry from m. When the field is absent
// the previously resolved entry is kept.
func (s *Single) ResolveManifest(m manifest.Manifest) {
	if entry, ok := m.Entry(s.section); ok {
		s.Resolve(entry)
	}
}

// NewBackground creates the processor for background.service_worker.
func NewBackground(bundler Bundler, opts UserOptions) *Single {
	return NewSingle(manifest.SectionBackground, bundler, opts)
}

// NewPopup creates the processor for action.default_popup.
func NewPopup(bundler Bundler, opts UserOptions) *Single {
	return NewSingle(manifest.SectionPopup, bundler, opts)
}

// NewOptionsPage creates the processor for options_page.
func NewOptionsPage(bundler Bundler, opts UserOptions) *Single {
	return NewSingle(manifest.SectionOptionsPage, bundler, opts)
}

// NewOptionsUI creates the processor for options_ui.page.
func NewOptionsUI(bundler Bundler, opts UserOptions) *Single {
	return NewSingle(manifest.SectionOptionsUI, bundler, opts)
}

// NewDevtools creates the processor for devtools_page.
func NewDevtools(bundler Bundler, opts UserOptions) *Single {
	return NewSingle(manifest.SectionDevtools, bundler, opts)
}

// NewOverrideBookmarks creates the processor for chrome_url_overrides.bookmarks.
func NewOverrideBookmarks(bundler Bundler, opts UserOptions) *Single {
	return NewSingle(manifest.SectionOverrideBookmarks, bundler, opts)
}

// NewOverrideHistory creates the processor for chrome_url_overrides.history.
func NewOverrideHistory(bundler Bundler, opts UserOptions) *Single {
	return NewSingle(manifest.SectionOverrideHistory, bundler, opts)
}

// NewOverrideNewtab creates the processor for chrome_url_overrides.newtab.
func NewOverrideNewtab(bundler Bundler, opts UserOptions) *Single {
	return NewSingle(manifest.SectionOverrideNewtab, bundler, opts)
}

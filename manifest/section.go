// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"path/filepath"
	"strings"
)

// Section names one independently built part of the extension.
type Section string

const (
	SectionBackground             Section = "background"
	SectionPopup                  Section = "popup"
	SectionOptionsPage            Section = "options_page"
	SectionOptionsUI              Section = "options_ui"
	SectionDevtools               Section = "devtools"
	SectionOverrideBookmarks      Section = "override.bookmarks"
	SectionOverrideHistory        Section = "override.history"
	SectionOverrideNewtab         Section = "override.newtab"
	SectionContentScripts         Section = "content_scripts"
	SectionWebAccessibleResources Section = "web_accessible_resources"
)

// ScalarSections lists the single-entry sections in canonical order.
var ScalarSections = []Section{
	SectionBackground,
	SectionPopup,
	SectionOptionsPage,
	SectionOptionsUI,
	SectionDevtools,
	SectionOverrideBookmarks,
	SectionOverrideHistory,
	SectionOverrideNewtab,
}

// ArraySections lists the multi-entry sections in canonical order.
var ArraySections = []Section{
	SectionContentScripts,
	SectionWebAccessibleResources,
}

// scalarPaths maps each scalar section to the manifest field holding its entry.
var scalarPaths = map[Section][]string{
	SectionBackground:        {"background", "service_worker"},
	SectionPopup:             {"action", "default_popup"},
	SectionOptionsPage:       {"options_page"},
	SectionOptionsUI:         {"options_ui", "page"},
	SectionDevtools:          {"devtools_page"},
	SectionOverrideBookmarks: {"chrome_url_overrides", "bookmarks"},
	SectionOverrideHistory:   {"chrome_url_overrides", "history"},
	SectionOverrideNewtab:    {"chrome_url_overrides", "newtab"},
}

// arrayFields maps each array section to its top-level array and the per-element path list field.
var arrayFields = map[Section][2]string{
	SectionContentScripts:         {"content_scripts", "js"},
	SectionWebAccessibleResources: {"web_accessible_resources", "resources"},
}

// IsArray reports whether s is a multi-entry section.
func (s Section) IsArray() bool {
	_, ok := arrayFields[s]
	return ok
}

// FieldPath returns the manifest field path of a scalar section.
func (s Section) FieldPath() []string {
	return append([]string(nil), scalarPaths[s]...)
}

// Entry returns the entry path declared for a scalar section.
func (m Manifest) Entry(s Section) (string, bool) {
	path, ok := scalarPaths[s]
	if !ok {
		return "", false
	}
	v := m.GetString(path...)
	return v, v != ""
}

// ArrayEntries returns the distinct entry paths of an array section in declaration order.
// For web_accessible_resources only buildable resources are entries; see IsBuildable.
func (m Manifest) ArrayEntries(s Section) []string {
	fields, ok := arrayFields[s]
	if !ok {
		return nil
	}
	var out []string
	seen := make(map[string]bool)
	for _, p := range m.arrayPaths(fields[0], fields[1]) {
		if s == SectionWebAccessibleResources && !IsBuildable(p) {
			continue
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

func (m Manifest) arrayPaths(top, field string) []string {
	items, ok := asArray(m[top])
	if !ok {
		return nil
	}
	var out []string
	for _, item := range items {
		obj, ok := asObject(item)
		if !ok {
			continue
		}
		paths, ok := asArray(obj[field])
		if !ok {
			continue
		}
		for _, p := range paths {
			if s, ok := p.(string); ok && s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// ReplaceArrayEntry replaces every occurrence of input in the section's
// per-element path lists with output, so elements sharing a script all point
// at the emitted file. It reports whether a replacement was made.
func (m Manifest) ReplaceArrayEntry(s Section, input, output string) bool {
	return m.editArrayEntry(s, input, func(paths []any, i int) []any {
		paths[i] = output
		return paths
	})
}

// RemoveArrayEntry removes every occurrence of path from the section's path lists.
func (m Manifest) RemoveArrayEntry(s Section, path string) bool {
	return m.editArrayEntry(s, path, func(paths []any, i int) []any {
		return append(paths[:i:i], paths[i+1:]...)
	})
}

// editArrayEntry applies edit at every index of the section's path lists
// holding match. Lists are scanned backwards so removals keep indexes valid.
func (m Manifest) editArrayEntry(s Section, match string, edit func([]any, int) []any) bool {
	fields, ok := arrayFields[s]
	if !ok {
		return false
	}
	items, ok := asArray(m[fields[0]])
	if !ok {
		return false
	}
	edited := false
	for _, item := range items {
		obj, ok := asObject(item)
		if !ok {
			continue
		}
		paths, ok := asArray(obj[fields[1]])
		if !ok {
			continue
		}
		found := false
		for i := len(paths) - 1; i >= 0; i-- {
			if paths[i] == match {
				paths = edit(paths, i)
				found = true
			}
		}
		if found {
			obj[fields[1]] = paths
			edited = true
		}
	}
	return edited
}

var buildableExts = map[string]bool{
	".js":   true,
	".mjs":  true,
	".ts":   true,
	".mts":  true,
	".tsx":  true,
	".jsx":  true,
	".html": true,
}

// IsBuildable reports whether path names a compilable entry rather than a static asset.
// Glob patterns are never buildable.
func IsBuildable(path string) bool {
	if strings.ContainsAny(path, "*?[{") {
		return false
	}
	return buildableExts[strings.ToLower(filepath.Ext(path))]
}

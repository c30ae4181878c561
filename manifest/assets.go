// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"maps"
	"slices"
)

// Assets returns the static files and glob patterns the manifest references
// but the builder does not compile: icons, content script stylesheets and
// non-buildable web accessible resources. Order is deterministic and
// duplicates are dropped.
func (m Manifest) Assets() []string {
	var out []string
	seen := make(map[string]bool)
	add := func(p string) {
		if p == "" || seen[p] {
			return
		}
		seen[p] = true
		out = append(out, p)
	}

	addIcons := func(v any) {
		switch t := v.(type) {
		case string:
			add(t)
		default:
			obj, ok := asObject(v)
			if !ok {
				return
			}
			for _, size := range slices.Sorted(maps.Keys(obj)) {
				if s, ok := obj[size].(string); ok {
					add(s)
				}
			}
		}
	}

	addIcons(m["icons"])
	if v, ok := m.GetPath("action", "default_icon"); ok {
		addIcons(v)
	}
	for _, p := range m.arrayPaths("content_scripts", "css") {
		add(p)
	}
	for _, p := range m.arrayPaths("web_accessible_resources", "resources") {
		if !IsBuildable(p) {
			add(p)
		}
	}
	return out
}

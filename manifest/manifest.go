// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

// Package manifest models a browser extension manifest as a mutable JSON document
// and derives the entry snapshots the incremental builder diffs between reloads.
package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
)

// Manifest is a parsed manifest.json document.
// Unknown fields are preserved so the output manifest round-trips everything
// the builder does not touch.
type Manifest map[string]any

// Parse decodes manifest JSON text.
func Parse(data []byte) (Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if m == nil {
		return nil, fmt.Errorf("failed to parse manifest: document is not an object")
	}
	return m, nil
}

// Clone returns a deep copy of the manifest.
func (m Manifest) Clone() Manifest {
	if m == nil {
		return nil
	}
	return cloneValue(map[string]any(m)).(map[string]any)
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case Manifest:
		return cloneValue(map[string]any(t))
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = val
		}
		return out
	default:
		return v
	}
}

// scriptExtPattern matches source script extensions at the end of a JSON string value.
var scriptExtPattern = regexp.MustCompile(`\.(?:tsx?|jsx|mts|cts)"`)

// Marshal serializes the manifest as indented JSON. Source script extensions
// in string values are rewritten to ".js".
func (m Manifest) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(map[string]any(m)); err != nil {
		return nil, err
	}
	out := scriptExtPattern.ReplaceAll(bytes.TrimRight(buf.Bytes(), "\n"), []byte(`.js"`))
	return out, nil
}

// String returns the serialized manifest, or "{}" when it cannot be encoded.
func (m Manifest) String() string {
	b, err := m.Marshal()
	if err != nil {
		return "{}"
	}
	return string(b)
}

// GetPath returns the value at the dotted object path, e.g. ["action", "default_popup"].
func (m Manifest) GetPath(path ...string) (any, bool) {
	var cur any = map[string]any(m)
	for _, key := range path {
		obj, ok := asObject(cur)
		if !ok {
			return nil, false
		}
		cur, ok = obj[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// GetString returns the string at path, or "" when absent or not a string.
func (m Manifest) GetString(path ...string) string {
	v, ok := m.GetPath(path...)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// SetPath assigns value at path, creating intermediate objects as needed.
// A non-object intermediate value is replaced by an object.
func (m Manifest) SetPath(value any, path ...string) {
	if len(path) == 0 {
		return
	}
	obj := map[string]any(m)
	for _, key := range path[:len(path)-1] {
		next, ok := asObject(obj[key])
		if !ok {
			next = make(map[string]any)
			obj[key] = next
		}
		obj = next
	}
	obj[path[len(path)-1]] = value
}

// DeletePath removes the value at path. Parent objects left empty are removed too.
func (m Manifest) DeletePath(path ...string) {
	if len(path) == 0 {
		return
	}
	parents := []map[string]any{map[string]any(m)}
	for _, key := range path[:len(path)-1] {
		next, ok := asObject(parents[len(parents)-1][key])
		if !ok {
			return
		}
		parents = append(parents, next)
	}
	delete(parents[len(parents)-1], path[len(path)-1])
	for i := len(parents) - 1; i > 0; i-- {
		if len(parents[i]) != 0 {
			break
		}
		delete(parents[i-1], path[i-1])
	}
}

func asObject(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case Manifest:
		return t, true
	default:
		return nil, false
	}
}

func asArray(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}

// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package manifest

// Transform rewrites a manifest before its entries are computed.
type Transform interface {
	Apply(m Manifest) (Manifest, error)
}

// TransformFunc adapts a function to Transform. The returned manifest replaces the input.
type TransformFunc func(m Manifest) (Manifest, error)

func (f TransformFunc) Apply(m Manifest) (Manifest, error) {
	return f(m)
}

// Patch is a Transform that shallow-merges its fields over the manifest.
type Patch map[string]any

func (p Patch) Apply(m Manifest) (Manifest, error) {
	out := m.Clone()
	if out == nil {
		out = make(Manifest)
	}
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	return out, nil
}

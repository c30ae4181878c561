// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package manifest

// Fingerprinter returns an identity for the resource behind an entry path.
// Two equal fingerprints mean the entry did not change between snapshots.
type Fingerprinter func(path string) string

// Entries is an immutable snapshot of every section's entry paths,
// derived from one manifest instance.
type Entries struct {
	Scalars      map[Section]string
	Arrays       map[Section][]string
	Fingerprints map[string]string
}

// EntriesOf builds a fresh snapshot of m. When fingerprint is non-nil, every
// array-section path gets a fingerprint so content changes can be told apart
// from unchanged paths.
func EntriesOf(m Manifest, fingerprint Fingerprinter) Entries {
	e := Entries{
		Scalars:      make(map[Section]string),
		Arrays:       make(map[Section][]string),
		Fingerprints: make(map[string]string),
	}
	for _, s := range ScalarSections {
		if v, ok := m.Entry(s); ok {
			e.Scalars[s] = v
		}
	}
	for _, s := range ArraySections {
		paths := m.ArrayEntries(s)
		if len(paths) == 0 {
			continue
		}
		e.Arrays[s] = paths
		if fingerprint == nil {
			continue
		}
		for _, p := range paths {
			if _, ok := e.Fingerprints[p]; !ok {
				e.Fingerprints[p] = fingerprint(p)
			}
		}
	}
	return e
}

// Empty reports whether no section is populated.
func (e Entries) Empty() bool {
	return len(e.Scalars) == 0 && len(e.Arrays) == 0
}

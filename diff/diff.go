// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

// Package diff computes what changed between two manifest entry snapshots.
package diff

import (
	"github.com/buke/esbuild-plugin-webext-go/manifest"
)

// Status classifies a scalar section transition.
type Status int

const (
	Create Status = iota
	Update
	Delete
)

func (s Status) String() string {
	switch s {
	case Create:
		return "create"
	case Update:
		return "update"
	case Delete:
		return "delete"
	default:
		return "unknown"
	}
}

// EntryDiff describes a changed scalar section. For Delete, Entry is the previous path.
type EntryDiff struct {
	Status Status
	Entry  string
}

// EntryArrayDiff describes a changed array section.
// Create and Update follow the current snapshot order, Delete the previous one.
type EntryArrayDiff struct {
	Create []string
	Update []string
	Delete []string
}

// Empty reports whether no element changed.
func (d EntryArrayDiff) Empty() bool {
	return len(d.Create) == 0 && len(d.Update) == 0 && len(d.Delete) == 0
}

// EntriesDiff aggregates the per-section changes of one manifest reload.
// Unchanged sections are absent from both maps.
type EntriesDiff struct {
	Scalars map[manifest.Section]EntryDiff
	Arrays  map[manifest.Section]EntryArrayDiff
}

// Empty reports whether no section changed.
func (d EntriesDiff) Empty() bool {
	return len(d.Scalars) == 0 && len(d.Arrays) == 0
}

// Sections returns the changed sections in canonical order.
func (d EntriesDiff) Sections() []manifest.Section {
	var out []manifest.Section
	for _, s := range manifest.ScalarSections {
		if _, ok := d.Scalars[s]; ok {
			out = append(out, s)
		}
	}
	for _, s := range manifest.ArraySections {
		if _, ok := d.Arrays[s]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Compute diffs cur against prev. A nil prev is the first resolve: every
// populated section of cur is reported as created.
func Compute(prev *manifest.Entries, cur manifest.Entries) EntriesDiff {
	d := EntriesDiff{
		Scalars: make(map[manifest.Section]EntryDiff),
		Arrays:  make(map[manifest.Section]EntryArrayDiff),
	}
	var base manifest.Entries
	if prev != nil {
		base = *prev
	}

	for _, s := range manifest.ScalarSections {
		before, had := base.Scalars[s]
		after, has := cur.Scalars[s]
		switch {
		case !had && has:
			d.Scalars[s] = EntryDiff{Status: Create, Entry: after}
		case had && !has:
			d.Scalars[s] = EntryDiff{Status: Delete, Entry: before}
		case had && has && before != after:
			d.Scalars[s] = EntryDiff{Status: Update, Entry: after}
		}
	}

	for _, s := range manifest.ArraySections {
		ad := computeArray(base.Arrays[s], cur.Arrays[s], base.Fingerprints, cur.Fingerprints)
		if !ad.Empty() {
			d.Arrays[s] = ad
		}
	}
	return d
}

func computeArray(before, after []string, beforeFP, afterFP map[string]string) EntryArrayDiff {
	var d EntryArrayDiff
	inBefore := make(map[string]bool, len(before))
	for _, p := range before {
		inBefore[p] = true
	}
	inAfter := make(map[string]bool, len(after))
	for _, p := range after {
		inAfter[p] = true
	}

	seen := make(map[string]bool, len(after))
	for _, p := range after {
		if seen[p] {
			continue
		}
		seen[p] = true
		if !inBefore[p] {
			d.Create = append(d.Create, p)
			continue
		}
		if beforeFP[p] != afterFP[p] {
			d.Update = append(d.Update, p)
		}
	}

	seen = make(map[string]bool, len(before))
	for _, p := range before {
		if seen[p] || inAfter[p] {
			continue
		}
		seen[p] = true
		d.Delete = append(d.Delete, p)
	}
	return d
}

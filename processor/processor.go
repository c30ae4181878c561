// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

// Package processor implements the per-component build protocol: every
// manifest section is owned by a processor that resolves its entry, builds it
// at most once per entry, and releases it when the entry goes away.
package processor

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/buke/esbuild-plugin-webext-go/manifest"
)

// Module is the compiled artifact of one entry.
type Module struct {
	Entry  string   // source entry the module was built from
	Output string   // emitted output path, slash separated and relative to the outdir
	Files  []string // every file written for the module, relative to the outdir
}

// Empty is returned by Build when no entry is resolved. It is compared by identity.
var Empty = &Module{}

// Request asks a Bundler to compile one entry.
type Request struct {
	Section manifest.Section
	Entry   string
	Output  string
	Options Options
}

// Bundler is the compile facility processors delegate to.
type Bundler interface {
	// Build compiles req.Entry and returns the emitted module.
	Build(req Request) (*Module, error)
	// Stop releases whatever the bundler holds for entry in section, e.g. a
	// watch context. The same entry built for another section is unaffected.
	Stop(section manifest.Section, entry string) error
}

// Processor is the protocol of a single-entry component.
type Processor interface {
	Resolve(entry string)
	Build() (*Module, error)
	Stop() error
}

// ArrayProcessor is the protocol of a component holding one entry per path.
type ArrayProcessor interface {
	// Resolve records entry and returns the output path it will be emitted to.
	Resolve(entry string) string
	Build(entry string) (*Module, error)
	Stop(entry string) error
}

var scriptExts = map[string]bool{
	".ts":  true,
	".tsx": true,
	".jsx": true,
	".mts": true,
	".cts": true,
	".mjs": true,
	".cjs": true,
}

// OutputPath returns the output identifier an entry is emitted to. The layout
// mirrors the source tree, with script sources renamed to ".js". Entries
// escaping the project root are flattened to their base name.
func OutputPath(entry string) string {
	p := path.Clean(filepath.ToSlash(entry))
	if strings.HasPrefix(p, "../") || p == ".." || path.IsAbs(p) {
		p = path.Base(p)
	}
	p = strings.TrimPrefix(p, "./")
	if ext := path.Ext(p); scriptExts[strings.ToLower(ext)] {
		p = strings.TrimSuffix(p, ext) + ".js"
	}
	return p
}

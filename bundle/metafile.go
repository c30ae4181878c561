// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package bundle

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
)

// Metafile is the subset of the esbuild metafile the bundler reads.
type Metafile struct {
	Inputs  map[string]MetafileInput  `json:"inputs"`
	Outputs map[string]MetafileOutput `json:"outputs"`
}

// MetafileInput is an input file of the build.
type MetafileInput struct {
	Bytes int `json:"bytes"`
}

// MetafileOutput is an emitted file of the build.
type MetafileOutput struct {
	Bytes      int    `json:"bytes"`
	EntryPoint string `json:"entryPoint,omitempty"`
}

// outputFiles lists the files a build emitted, relative to the outdir and slash separated.
func (b *Esbuild) outputFiles(metafile string) ([]string, error) {
	if metafile == "" {
		return nil, nil
	}
	var meta Metafile
	if err := json.Unmarshal([]byte(metafile), &meta); err != nil {
		return nil, fmt.Errorf("failed to parse metafile: %w", err)
	}

	files := make([]string, 0, len(meta.Outputs))
	for out := range meta.Outputs {
		abs := out
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(b.root, abs)
		}
		rel, err := filepath.Rel(b.outdir, abs)
		if err != nil {
			rel = out
		}
		files = append(files, filepath.ToSlash(rel))
	}
	sort.Strings(files)
	return files, nil
}

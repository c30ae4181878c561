// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package processor

import (
	"errors"
	"sync"

	"github.com/buke/esbuild-plugin-webext-go/manifest"
)

// fakeBundler records calls and returns canned modules.
type fakeBundler struct {
	mu       sync.Mutex
	builds   []Request
	stops    []string
	failFor  map[string]error
	stopErrs map[string]error
}

func newFakeBundler() *fakeBundler {
	return &fakeBundler{
		failFor:  make(map[string]error),
		stopErrs: make(map[string]error),
	}
}

func (f *fakeBundler) Build(req Request) (*Module, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builds = append(f.builds, req)
	if err := f.failFor[req.Entry]; err != nil {
		return nil, err
	}
	return &Module{Output: req.Output, Files: []string{req.Output}}, nil
}

func (f *fakeBundler) Stop(section manifest.Section, entry string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops = append(f.stops, entry)
	return f.stopErrs[entry]
}

func (f *fakeBundler) buildCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.builds)
}

func (f *fakeBundler) stopped() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.stops...)
}

var errCompile = errors.New("compile failed")

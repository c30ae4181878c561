// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package webextplugin

import (
	"fmt"
	"sync"
	"testing"

	jsexecutor "github.com/buke/js-executor"

	"github.com/buke/esbuild-plugin-webext-go/manifest"
	"github.com/buke/esbuild-plugin-webext-go/processor"
)

// MockEngineConfig defines the configuration for a mock engine
type MockEngineConfig struct {
	// Error to return from Execute method
	ExecuteError error
	// Result to return instead of transforming the manifest
	Result interface{}
	// Fields merged into the manifest argument by the transform service
	Patch map[string]interface{}
}

// MockEngine is a configurable mock engine
type MockEngine struct {
	config *MockEngineConfig
}

func (e *MockEngine) Init(scripts []*jsexecutor.InitScript) error   { return nil }
func (e *MockEngine) Reload(scripts []*jsexecutor.InitScript) error { return nil }
func (e *MockEngine) Close() error                                  { return nil }

func (e *MockEngine) Execute(req *jsexecutor.JsRequest) (*jsexecutor.JsResponse, error) {
	if e.config.ExecuteError != nil {
		return nil, e.config.ExecuteError
	}
	if e.config.Result != nil {
		return &jsexecutor.JsResponse{Id: req.Id, Result: e.config.Result}, nil
	}

	switch req.Service {
	case ManifestTransformService:
		if len(req.Args) != 1 {
			return nil, fmt.Errorf("expected one argument, got %d", len(req.Args))
		}
		m, ok := req.Args[0].(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("expected a manifest object, got %T", req.Args[0])
		}
		out := make(map[string]interface{}, len(m)+len(e.config.Patch))
		for k, v := range m {
			out[k] = v
		}
		for k, v := range e.config.Patch {
			out[k] = v
		}
		return &jsexecutor.JsResponse{Id: req.Id, Result: out}, nil
	default:
		return nil, fmt.Errorf("unknown service: %s", req.Service)
	}
}

// NewMockEngineFactory creates a factory for configurable mock engines
func NewMockEngineFactory(config *MockEngineConfig) jsexecutor.JsEngineFactory {
	return func() (jsexecutor.JsEngine, error) {
		return &MockEngine{config: config}, nil
	}
}

// createTestExecutor starts an executor backed by a mock engine
func createTestExecutor(t *testing.T, config *MockEngineConfig) *jsexecutor.JsExecutor {
	t.Helper()
	jsExec, err := jsexecutor.NewExecutor(jsexecutor.WithJsEngine(NewMockEngineFactory(config)))
	if err != nil {
		t.Fatalf("Failed to create executor: %v", err)
	}
	if err := jsExec.Start(); err != nil {
		t.Fatalf("Failed to start executor: %v", err)
	}
	t.Cleanup(func() { jsExec.Stop() })
	return jsExec
}

// fakeBundler records component builds without compiling anything
type fakeBundler struct {
	mu      sync.Mutex
	builds  []processor.Request
	stops   []string
	stopIn  []manifest.Section
	failFor map[string]error
	closed  bool
}

func newFakeBundler() *fakeBundler {
	return &fakeBundler{failFor: make(map[string]error)}
}

func (f *fakeBundler) Build(req processor.Request) (*processor.Module, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builds = append(f.builds, req)
	if err := f.failFor[req.Entry]; err != nil {
		return nil, err
	}
	return &processor.Module{Output: req.Output, Files: []string{req.Output}}, nil
}

func (f *fakeBundler) Stop(section manifest.Section, entry string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops = append(f.stops, entry)
	f.stopIn = append(f.stopIn, section)
	return nil
}

func (f *fakeBundler) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeBundler) fail(entry string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failFor, entry)
		return
	}
	f.failFor[entry] = err
}

// built returns the built entries in call order
func (f *fakeBundler) built() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries := make([]string, len(f.builds))
	for i, req := range f.builds {
		entries[i] = req.Entry
	}
	return entries
}

func (f *fakeBundler) stopped() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.stops...)
}

// stoppedIn returns the entries released for section
func (f *fakeBundler) stoppedIn(section manifest.Section) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var entries []string
	for i, entry := range f.stops {
		if f.stopIn[i] == section {
			entries = append(entries, entry)
		}
	}
	return entries
}

// builtIn returns the requests built for section
func (f *fakeBundler) builtIn(section manifest.Section) []processor.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	var reqs []processor.Request
	for _, req := range f.builds {
		if req.Section == section {
			reqs = append(reqs, req)
		}
	}
	return reqs
}

func (f *fakeBundler) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builds = nil
	f.stops = nil
	f.stopIn = nil
}

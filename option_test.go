// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package webextplugin

import (
	"log/slog"
	"os"
	"testing"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/buke/esbuild-plugin-webext-go/manifest"
	"github.com/buke/esbuild-plugin-webext-go/processor"
)

// TestNewOptions verifies the default option values.
func TestNewOptions(t *testing.T) {
	opts := newOptions()
	if opts.name != "webext-plugin" {
		t.Errorf("Expected default name 'webext-plugin', got %s", opts.name)
	}
	if opts.manifestFile != "manifest.json" {
		t.Errorf("Expected default manifest file, got %s", opts.manifestFile)
	}
	if opts.logger == nil {
		t.Error("Expected a default logger")
	}
	if opts.watch != nil || opts.bundler != nil {
		t.Error("Expected watch and bundler to be unset")
	}
}

// TestWithName verifies that WithName sets the plugin name correctly.
func TestWithName(t *testing.T) {
	opts := newOptions()
	WithName("test-plugin")(opts)
	if opts.name != "test-plugin" {
		t.Errorf("Expected name to be 'test-plugin', got %s", opts.name)
	}
}

// TestWithPaths verifies the root, outdir, manifest and tsconfig options.
func TestWithPaths(t *testing.T) {
	opts := newOptions()
	WithRoot("/project")(opts)
	WithOutdir("build")(opts)
	WithManifestFile("src/manifest.json")(opts)
	WithTsconfig("tsconfig.app.json")(opts)

	if opts.root != "/project" {
		t.Errorf("Expected root '/project', got %s", opts.root)
	}
	if opts.outdir != "build" {
		t.Errorf("Expected outdir 'build', got %s", opts.outdir)
	}
	if opts.manifestFile != "src/manifest.json" {
		t.Errorf("Expected manifest file 'src/manifest.json', got %s", opts.manifestFile)
	}
	if opts.tsconfig != "tsconfig.app.json" {
		t.Errorf("Expected tsconfig 'tsconfig.app.json', got %s", opts.tsconfig)
	}
}

// TestWithWatch verifies both watch option forms.
func TestWithWatch(t *testing.T) {
	opts := newOptions()
	WithWatch(true)(opts)
	if opts.watch != true {
		t.Errorf("Expected watch to be true, got %v", opts.watch)
	}

	WithWatchOptions(api.WatchOptions{Delay: 50})(opts)
	watchOptions, ok := opts.watch.(api.WatchOptions)
	if !ok || watchOptions.Delay != 50 {
		t.Errorf("Expected explicit watch options, got %v", opts.watch)
	}
}

// TestWithPlugins verifies that plugins accumulate.
func TestWithPlugins(t *testing.T) {
	opts := newOptions()
	WithPlugins(api.Plugin{Name: "a"})(opts)
	WithPlugins(api.Plugin{Name: "b"}, api.Plugin{Name: "c"})(opts)
	if len(opts.plugins) != 3 || opts.plugins[2].Name != "c" {
		t.Errorf("Expected 3 plugins, got %v", opts.plugins)
	}
}

// TestWithBuildOptions verifies that base esbuild options are stored.
func TestWithBuildOptions(t *testing.T) {
	opts := newOptions()
	WithBuildOptions(api.BuildOptions{MinifySyntax: true, Define: map[string]string{"DEBUG": "false"}})(opts)
	if !opts.buildOptions.MinifySyntax || opts.buildOptions.Define["DEBUG"] != "false" {
		t.Errorf("Expected build options to be stored, got %+v", opts.buildOptions)
	}
}

// TestWithManifestTransforms verifies that transforms and patches are appended in order.
func TestWithManifestTransforms(t *testing.T) {
	opts := newOptions()
	WithManifestPatch(map[string]any{"version": "1.0.0"})(opts)
	WithManifestTransform(manifest.TransformFunc(func(m manifest.Manifest) (manifest.Manifest, error) {
		m["version"] = "2.0.0"
		return m, nil
	}))(opts)

	if len(opts.transforms) != 2 {
		t.Fatalf("Expected 2 transforms, got %d", len(opts.transforms))
	}
	m := manifest.Manifest{}
	var err error
	for _, transform := range opts.transforms {
		if m, err = transform.Apply(m); err != nil {
			t.Fatalf("Transform failed: %v", err)
		}
	}
	if m["version"] != "2.0.0" {
		t.Errorf("Expected transforms applied in order, got %v", m["version"])
	}
}

// TestWithBundler verifies that a custom bundler replaces esbuild.
func TestWithBundler(t *testing.T) {
	opts := newOptions()
	bundler := newFakeBundler()
	WithBundler(bundler)(opts)
	if opts.bundler != bundler {
		t.Error("Expected the custom bundler to be set")
	}
}

// TestWithLogger verifies that WithLogger sets the logger.
func TestWithLogger(t *testing.T) {
	opts := newOptions()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	WithLogger(logger)(opts)
	if opts.logger != logger {
		t.Error("Expected logger to be set")
	}
}

// TestProcessorOptions verifies the options handed to every processor.
func TestProcessorOptions(t *testing.T) {
	opts := newOptions()
	WithWatch(true)(opts)
	WithPlugins(api.Plugin{Name: "a"})(opts)
	WithLogger(discardLogger)(opts)

	normalized := processor.NormalizeOptions(opts.processorOptions())
	if normalized.Watch == nil {
		t.Error("Expected watching to be enabled")
	}
	if len(normalized.Plugins) != 1 {
		t.Errorf("Expected 1 plugin, got %d", len(normalized.Plugins))
	}
	if normalized.Logger != discardLogger {
		t.Error("Expected the configured logger")
	}
}

// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package webextplugin

import (
	"log/slog"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/buke/esbuild-plugin-webext-go/manifest"
	"github.com/buke/esbuild-plugin-webext-go/processor"
)

// Options holds the builder configuration.
// It is populated through OptionFunc values and read once by NewBuilder.
type Options struct {
	name         string // Plugin name for identification in esbuild logs
	root         string // Project root every manifest entry is relative to
	outdir       string // Output directory for the extension package
	manifestFile string // Source manifest path, relative to root unless absolute

	watch        any              // Watch setting handed to every processor
	plugins      []api.Plugin     // Extra esbuild plugins for every component build
	buildOptions api.BuildOptions // Base esbuild options for component builds
	tsconfig     string           // tsconfig used for compilation and entry aliases

	transforms []manifest.Transform // Applied in order before entries are computed
	bundler    processor.Bundler    // Compile facility; esbuild when nil

	logger *slog.Logger // Logger for builder messages
}

// OptionFunc configures the builder using the functional options pattern.
type OptionFunc func(*Options)

// newOptions creates an options struct with default values.
func newOptions() *Options {
	return &Options{
		name:         "webext-plugin",
		manifestFile: "manifest.json",
		logger:       slog.Default(),
	}
}

// WithName sets the plugin name used in esbuild logs and error messages.
func WithName(name string) OptionFunc {
	return func(opts *Options) {
		opts.name = name
	}
}

// WithRoot sets the project root manifest entries are resolved against.
func WithRoot(root string) OptionFunc {
	return func(opts *Options) {
		opts.root = root
	}
}

// WithOutdir sets the directory the extension package is written to.
// Defaults to "dist" under the root.
func WithOutdir(outdir string) OptionFunc {
	return func(opts *Options) {
		opts.outdir = outdir
	}
}

// WithManifestFile sets the source manifest path. Relative paths are resolved against the root.
func WithManifestFile(manifestFile string) OptionFunc {
	return func(opts *Options) {
		opts.manifestFile = manifestFile
	}
}

// WithWatch turns watch mode on or off for every component build.
func WithWatch(watch bool) OptionFunc {
	return func(opts *Options) {
		opts.watch = watch
	}
}

// WithWatchOptions turns watch mode on with an explicit esbuild watcher config.
func WithWatchOptions(watchOptions api.WatchOptions) OptionFunc {
	return func(opts *Options) {
		opts.watch = watchOptions
	}
}

// WithPlugins appends esbuild plugins applied to every component build.
func WithPlugins(plugins ...api.Plugin) OptionFunc {
	return func(opts *Options) {
		opts.plugins = append(opts.plugins, plugins...)
	}
}

// WithBuildOptions sets the esbuild options component builds start from.
// Ignored when a custom bundler is set.
func WithBuildOptions(buildOptions api.BuildOptions) OptionFunc {
	return func(opts *Options) {
		opts.buildOptions = buildOptions
	}
}

// WithTsconfig sets the tsconfig used for compilation. Its compilerOptions.paths
// aliases also apply to manifest entries.
func WithTsconfig(tsconfig string) OptionFunc {
	return func(opts *Options) {
		opts.tsconfig = tsconfig
	}
}

// WithManifestTransform adds a transform applied to the source manifest on every resolve.
func WithManifestTransform(transform manifest.Transform) OptionFunc {
	return func(opts *Options) {
		opts.transforms = append(opts.transforms, transform)
	}
}

// WithManifestPatch adds a transform shallow-merging patch over the source manifest.
func WithManifestPatch(patch map[string]any) OptionFunc {
	return WithManifestTransform(manifest.Patch(patch))
}

// WithBundler replaces the esbuild bundler with a custom compile facility.
func WithBundler(bundler processor.Bundler) OptionFunc {
	return func(opts *Options) {
		opts.bundler = bundler
	}
}

// WithLogger sets a custom logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) OptionFunc {
	return func(opts *Options) {
		opts.logger = logger
	}
}

// processorOptions returns the options every component processor is constructed with.
func (opts *Options) processorOptions() processor.UserOptions {
	return processor.UserOptions{
		Watch:   opts.watch,
		Plugins: opts.plugins,
		Logger:  opts.logger,
	}
}

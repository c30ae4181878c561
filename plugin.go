// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

// Package webextplugin builds browser extensions with esbuild. A single
// manifest.json drives the build of every extension component (background
// service worker, content scripts, popup, options, devtools and override
// pages, web accessible resources); rebuild cycles only recompile the
// components whose manifest entries changed and keep the emitted manifest in
// sync with the compiled artifacts.
package webextplugin

import (
	"os"
	"path/filepath"

	"github.com/evanw/esbuild/pkg/api"
)

// manifestFilter matches manifest files passed to esbuild as entry points.
const manifestFilter = `manifest\.json$`

// manifestNamespace holds the manifest module so esbuild watches it without bundling it.
const manifestNamespace = "webext-manifest"

// NewPlugin creates an esbuild plugin that builds the extension described by
// the manifest on every build start.
//
// Root and outdir default to the host build's AbsWorkingDir and Outdir.
// Listing the manifest as an entry point of the host build makes the host's
// watch mode track it; it is loaded as an empty module.
//
// Example usage:
//
//	plugin := NewPlugin(
//	  WithManifestFile("src/manifest.json"),
//	  WithWatch(true),
//	)
func NewPlugin(optsFunc ...OptionFunc) api.Plugin {
	// Initialize default options to read the plugin name
	opts := newOptions()
	for _, fn := range optsFunc {
		fn(opts)
	}

	return api.Plugin{
		Name: opts.name,
		Setup: func(build api.PluginBuild) {
			// Step 1: Derive root and outdir from the host build unless configured
			defaults := hostDefaults(build.InitialOptions)
			builder, err := NewBuilder(append(defaults, optsFunc...)...)
			if err != nil {
				opts.logger.Error("Failed to create extension builder", "error", err)
				build.OnStart(func() (api.OnStartResult, error) {
					return api.OnStartResult{}, err
				})
				return
			}

			// Step 2: Keep the manifest in the host build graph so watch mode sees edits
			build.OnResolve(api.OnResolveOptions{Filter: manifestFilter}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
				path := args.Path
				if !filepath.IsAbs(path) {
					path = filepath.Clean(filepath.Join(args.ResolveDir, path))
				}
				if path != builder.ManifestPath() {
					return api.OnResolveResult{}, nil
				}
				return api.OnResolveResult{Path: path, Namespace: manifestNamespace}, nil
			})
			build.OnLoad(api.OnLoadOptions{Filter: `.*`, Namespace: manifestNamespace}, func(args api.OnLoadArgs) (api.OnLoadResult, error) {
				return api.OnLoadResult{
					Loader:     api.LoaderEmpty,
					WatchFiles: []string{args.Path},
				}, nil
			})

			// Step 3: Run a full resolve → build → emit cycle on every build start.
			// esbuild does not report which files changed, so cached assets are re-read.
			build.OnStart(func() (api.OnStartResult, error) {
				builder.InvalidateAll()
				if err := builder.Reload(); err != nil {
					opts.logger.Error("Extension build failed", "error", err)
					return api.OnStartResult{}, err
				}
				return api.OnStartResult{}, nil
			})

			// Step 4: Release component watchers when the host build is disposed
			build.OnDispose(func() {
				if err := builder.Close(); err != nil {
					opts.logger.Warn("Failed to close extension builder", "error", err)
				}
			})
		},
	}
}

// hostDefaults returns options derived from the host esbuild options.
func hostDefaults(initialOptions *api.BuildOptions) []OptionFunc {
	var defaults []OptionFunc
	root := initialOptions.AbsWorkingDir
	if root == "" {
		root, _ = os.Getwd()
	}
	defaults = append(defaults, WithRoot(root))
	if initialOptions.Outdir != "" {
		defaults = append(defaults, WithOutdir(initialOptions.Outdir))
	}
	return defaults
}

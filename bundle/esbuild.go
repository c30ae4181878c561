// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

// Package bundle compiles extension entries with esbuild.
package bundle

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/buke/esbuild-plugin-webext-go/manifest"
	"github.com/buke/esbuild-plugin-webext-go/processor"
)

// BuildError carries the esbuild messages of a failed build.
type BuildError struct {
	Entry    string
	Messages []api.Message
}

func (e *BuildError) Error() string {
	texts := make([]string, 0, len(e.Messages))
	for _, msg := range e.Messages {
		if msg.Location != nil {
			texts = append(texts, fmt.Sprintf("%s:%d:%d: %s", msg.Location.File, msg.Location.Line, msg.Location.Column, msg.Text))
		} else {
			texts = append(texts, msg.Text)
		}
	}
	return fmt.Sprintf("esbuild failed for %s: %s", e.Entry, strings.Join(texts, "; "))
}

// contextKey identifies the build of one entry for one manifest section.
// The same file may be declared by several sections, e.g. as a content
// script and as a web accessible resource.
type contextKey struct {
	section manifest.Section
	entry   string
}

// Esbuild is a processor.Bundler backed by esbuild build contexts.
// Watching entries keep their contexts alive until Stop or Close.
type Esbuild struct {
	root         string
	outdir       string
	buildOptions api.BuildOptions
	pathAlias    map[string]string
	logger       *slog.Logger

	mu       sync.Mutex
	contexts map[contextKey][]api.BuildContext
}

// Option configures an Esbuild bundler.
type Option func(*Esbuild)

// WithBuildOptions sets the esbuild options every entry build starts from,
// e.g. Define, Target, Loader or minification flags. Entry points, output
// paths and plugins are always set per entry.
func WithBuildOptions(buildOptions api.BuildOptions) Option {
	return func(b *Esbuild) {
		b.buildOptions = buildOptions
	}
}

// WithTsconfig points esbuild at a tsconfig file whose path aliases also
// apply to manifest entries.
func WithTsconfig(tsconfig string) Option {
	return func(b *Esbuild) {
		b.buildOptions.Tsconfig = tsconfig
	}
}

// WithLogger sets the logger used for build diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Esbuild) {
		b.logger = logger
	}
}

// New creates a bundler compiling entries under root into outdir.
func New(root, outdir string, opts ...Option) (*Esbuild, error) {
	if root == "" {
		return nil, manifest.ErrMissingRoot
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("invalid root %s: %w", root, err)
	}
	if outdir == "" {
		outdir = filepath.Join(absRoot, "dist")
	}
	absOut, err := filepath.Abs(outdir)
	if err != nil {
		return nil, fmt.Errorf("invalid outdir %s: %w", outdir, err)
	}

	b := &Esbuild{
		root:     absRoot,
		outdir:   absOut,
		logger:   slog.Default(),
		contexts: make(map[contextKey][]api.BuildContext),
	}
	for _, fn := range opts {
		fn(b)
	}
	b.buildOptions.AbsWorkingDir = absRoot

	b.pathAlias, err = parseTsconfigPathAlias(&b.buildOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to parse tsconfig path aliases: %w", err)
	}
	return b, nil
}

// Root returns the absolute project root.
func (b *Esbuild) Root() string { return b.root }

// Outdir returns the absolute output directory.
func (b *Esbuild) Outdir() string { return b.outdir }

// Build compiles one entry. Pages (.html) have their scripts and stylesheets
// compiled and rewritten; everything else is bundled directly.
func (b *Esbuild) Build(req processor.Request) (*processor.Module, error) {
	absEntry := b.resolveEntry(req.Entry)

	var (
		files    []string
		contexts []api.BuildContext
		err      error
	)
	if strings.EqualFold(filepath.Ext(absEntry), ".html") {
		files, contexts, err = b.buildHTML(absEntry, req)
	} else {
		var ctx api.BuildContext
		files, ctx, err = b.buildScript(absEntry, req.Output, req)
		if ctx != nil {
			contexts = append(contexts, ctx)
		}
	}
	if err != nil {
		b.logger.Error("Failed to build entry", "section", req.Section, "entry", req.Entry, "error", err)
		return nil, err
	}

	if len(contexts) > 0 {
		b.mu.Lock()
		key := contextKey{section: req.Section, entry: req.Entry}
		previous := b.contexts[key]
		b.contexts[key] = contexts
		b.mu.Unlock()
		for _, ctx := range previous {
			ctx.Dispose()
		}
	}

	return &processor.Module{
		Entry:  req.Entry,
		Output: req.Output,
		Files:  files,
	}, nil
}

// Stop disposes the watch contexts held for entry in section.
func (b *Esbuild) Stop(section manifest.Section, entry string) error {
	key := contextKey{section: section, entry: entry}
	b.mu.Lock()
	contexts := b.contexts[key]
	delete(b.contexts, key)
	b.mu.Unlock()
	for _, ctx := range contexts {
		ctx.Dispose()
	}
	return nil
}

// Close disposes every context still held.
func (b *Esbuild) Close() error {
	b.mu.Lock()
	all := b.contexts
	b.contexts = make(map[contextKey][]api.BuildContext)
	b.mu.Unlock()
	for _, contexts := range all {
		for _, ctx := range contexts {
			ctx.Dispose()
		}
	}
	return nil
}

// resolveEntry applies tsconfig aliases and anchors relative entries at the root.
func (b *Esbuild) resolveEntry(entry string) string {
	p := applyPathAlias(b.pathAlias, entry)
	if !filepath.IsAbs(p) {
		p = filepath.Join(b.root, filepath.FromSlash(p))
	}
	return filepath.Clean(p)
}

// buildScript bundles one script or stylesheet to output. The returned
// context is non-nil only when the request watches.
func (b *Esbuild) buildScript(absEntry, output string, req processor.Request) ([]string, api.BuildContext, error) {
	opts := b.buildOptions
	opts.EntryPoints = []string{absEntry}
	opts.EntryPointsAdvanced = nil
	opts.Outdir = ""
	opts.Outfile = filepath.Join(b.outdir, filepath.FromSlash(output))
	opts.Bundle = true
	opts.Write = true
	opts.Metafile = true
	opts.AllowOverwrite = true
	opts.LogLevel = api.LogLevelSilent
	opts.Platform = api.PlatformBrowser
	opts.Format = scriptFormat(req.Section, opts.Format)
	opts.Plugins = append(append([]api.Plugin(nil), b.buildOptions.Plugins...), req.Options.Plugins...)

	ctx, ctxErr := api.Context(opts)
	if ctxErr != nil {
		return nil, nil, &BuildError{Entry: req.Entry, Messages: ctxErr.Errors}
	}

	result := ctx.Rebuild()
	if len(result.Errors) > 0 {
		ctx.Dispose()
		return nil, nil, &BuildError{Entry: req.Entry, Messages: result.Errors}
	}
	for _, warning := range result.Warnings {
		b.logger.Warn("esbuild warning", "entry", req.Entry, "text", warning.Text)
	}

	files, err := b.outputFiles(result.Metafile)
	if err != nil {
		ctx.Dispose()
		return nil, nil, err
	}

	if req.Options.Watch == nil {
		ctx.Dispose()
		return files, nil, nil
	}
	if err := ctx.Watch(*req.Options.Watch); err != nil {
		ctx.Dispose()
		return nil, nil, errors.Join(fmt.Errorf("failed to watch %s", req.Entry), err)
	}
	return files, ctx, nil
}

// scriptFormat returns the output format of scripts built for section.
// Content scripts and web accessible resources are injected into web pages as
// classic scripts, so a file shared by both sections compiles to the same output.
func scriptFormat(section manifest.Section, configured api.Format) api.Format {
	switch section {
	case manifest.SectionContentScripts, manifest.SectionWebAccessibleResources:
		return api.FormatIIFE
	}
	if configured == api.FormatDefault {
		return api.FormatESModule
	}
	return configured
}

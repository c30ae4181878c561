// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package webextplugin

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/rs/xid"
	"github.com/sourcegraph/conc/pool"

	"github.com/buke/esbuild-plugin-webext-go/bundle"
	"github.com/buke/esbuild-plugin-webext-go/diff"
	"github.com/buke/esbuild-plugin-webext-go/manifest"
	"github.com/buke/esbuild-plugin-webext-go/processor"
)

// ErrNotResolved is returned when components are built before any manifest was resolved.
var ErrNotResolved = errors.New("no manifest resolved")

// OutputManifestFile is the name of the emitted manifest.
const OutputManifestFile = "manifest.json"

// component binds a manifest section to its processor and output manifest patches.
type component struct {
	section manifest.Section
	single  *processor.Single
	multi   *processor.Multi
	patch   func(out manifest.Manifest, output string)
	unpatch func(out manifest.Manifest)
}

// Builder owns the output manifest and turns manifest diffs into component builds.
//
// Resolve, BuildComponents, String and Emit are serialized: a reader never
// observes the output manifest in the middle of a build cycle.
type Builder struct {
	opts         *Options
	root         string
	outdir       string
	manifestPath string
	bundler      processor.Bundler
	assets       *AssetCache
	components   map[manifest.Section]*component
	logger       *slog.Logger

	cycleMu sync.Mutex
	source  manifest.Manifest
	entries *manifest.Entries
	diff    diff.EntriesDiff
	emitted map[string]string

	// docMu guards output, the records and the failure sets while component builds complete.
	docMu        sync.Mutex
	output       manifest.Manifest
	records      map[manifest.Section]string
	arrayRecords map[manifest.Section]map[string]string
	failed       map[manifest.Section]bool
	failedArray  map[manifest.Section]map[string]bool
}

// NewBuilder creates a builder. Without WithBundler an esbuild bundler is
// created for the root and outdir.
func NewBuilder(optsFunc ...OptionFunc) (*Builder, error) {
	opts := newOptions()
	for _, fn := range optsFunc {
		fn(opts)
	}

	b := &Builder{
		opts:         opts,
		bundler:      opts.bundler,
		logger:       opts.logger,
		emitted:      make(map[string]string),
		records:      make(map[manifest.Section]string),
		arrayRecords: make(map[manifest.Section]map[string]string),
		failed:       make(map[manifest.Section]bool),
		failedArray:  make(map[manifest.Section]map[string]bool),
	}

	if opts.root != "" {
		root, err := filepath.Abs(opts.root)
		if err != nil {
			return nil, fmt.Errorf("invalid root %s: %w", opts.root, err)
		}
		b.root = root
		b.outdir = opts.outdir
		if b.outdir == "" {
			b.outdir = filepath.Join(root, "dist")
		} else if !filepath.IsAbs(b.outdir) {
			b.outdir = filepath.Join(root, b.outdir)
		}
		b.manifestPath = opts.manifestFile
		if !filepath.IsAbs(b.manifestPath) {
			b.manifestPath = filepath.Join(root, b.manifestPath)
		}
	}

	if b.bundler == nil {
		if b.root == "" {
			return nil, manifest.ErrMissingRoot
		}
		buildOptions := opts.buildOptions
		buildOptions.Plugins = nil
		esbuilder, err := bundle.New(b.root, b.outdir,
			bundle.WithBuildOptions(buildOptions),
			bundle.WithTsconfig(opts.tsconfig),
			bundle.WithLogger(opts.logger),
		)
		if err != nil {
			return nil, err
		}
		b.bundler = esbuilder
	}

	b.assets = NewAssetCache(b.root)
	b.components = newComponents(b.bundler, opts.processorOptions())
	return b, nil
}

// newComponents creates one processor per manifest section together with the
// callbacks that patch its build output into the output manifest.
func newComponents(bundler processor.Bundler, opts processor.UserOptions) map[manifest.Section]*component {
	scalar := func(p *processor.Single) *component {
		path := p.Section().FieldPath()
		return &component{
			section: p.Section(),
			single:  p,
			patch: func(out manifest.Manifest, output string) {
				out.SetPath(output, path...)
			},
			unpatch: func(out manifest.Manifest) {
				out.DeletePath(path...)
			},
		}
	}
	array := func(p *processor.Multi) *component {
		return &component{section: p.Section(), multi: p}
	}

	list := []*component{
		scalar(processor.NewBackground(bundler, opts)),
		scalar(processor.NewPopup(bundler, opts)),
		scalar(processor.NewOptionsPage(bundler, opts)),
		scalar(processor.NewOptionsUI(bundler, opts)),
		scalar(processor.NewDevtools(bundler, opts)),
		scalar(processor.NewOverrideBookmarks(bundler, opts)),
		scalar(processor.NewOverrideHistory(bundler, opts)),
		scalar(processor.NewOverrideNewtab(bundler, opts)),
		array(processor.NewContentScripts(bundler, opts)),
		array(processor.NewWebAccessibleResources(bundler, opts)),
	}
	components := make(map[manifest.Section]*component, len(list))
	for _, c := range list {
		components[c.section] = c
	}
	return components
}

// Root returns the absolute project root.
func (b *Builder) Root() string { return b.root }

// Outdir returns the absolute output directory.
func (b *Builder) Outdir() string { return b.outdir }

// ManifestPath returns the absolute source manifest path.
func (b *Builder) ManifestPath() string { return b.manifestPath }

// Diff returns the diff computed by the last successful resolve.
func (b *Builder) Diff() diff.EntriesDiff {
	b.cycleMu.Lock()
	defer b.cycleMu.Unlock()
	return b.diff
}

// Load reads and resolves the source manifest file.
func (b *Builder) Load() (diff.EntriesDiff, error) {
	b.cycleMu.Lock()
	defer b.cycleMu.Unlock()
	return b.load()
}

func (b *Builder) load() (diff.EntriesDiff, error) {
	if b.manifestPath == "" {
		return diff.EntriesDiff{}, manifest.ErrMissingRoot
	}
	data, err := os.ReadFile(b.manifestPath)
	if err != nil {
		return diff.EntriesDiff{}, fmt.Errorf("failed to read manifest: %w", err)
	}
	m, err := manifest.Parse(data)
	if err != nil {
		return diff.EntriesDiff{}, err
	}
	return b.resolve(m)
}

// Resolve validates m, applies the configured transforms and diffs its entries
// against the previously resolved snapshot. The output manifest is replaced by
// a copy of the transformed manifest carrying the last good build output of
// every section.
func (b *Builder) Resolve(m manifest.Manifest) (diff.EntriesDiff, error) {
	b.cycleMu.Lock()
	defer b.cycleMu.Unlock()
	return b.resolve(m)
}

func (b *Builder) resolve(m manifest.Manifest) (diff.EntriesDiff, error) {
	if b.root == "" {
		return diff.EntriesDiff{}, manifest.ErrMissingRoot
	}
	if err := manifest.Validate(m); err != nil {
		return diff.EntriesDiff{}, err
	}
	if err := manifest.CheckExclusive(m); err != nil {
		return diff.EntriesDiff{}, err
	}

	source := m.Clone()
	for _, t := range b.opts.transforms {
		transformed, err := t.Apply(source)
		if err != nil {
			return diff.EntriesDiff{}, fmt.Errorf("failed to transform manifest: %w", err)
		}
		if transformed == nil {
			return diff.EntriesDiff{}, fmt.Errorf("failed to transform manifest: transform returned no manifest")
		}
		source = transformed
	}
	if err := manifest.CheckExclusive(source); err != nil {
		return diff.EntriesDiff{}, err
	}

	entries := manifest.EntriesOf(source, b.assets.Fingerprint)
	d := diff.Compute(b.entries, entries)

	b.docMu.Lock()
	b.retryFailedLocked(&d, entries)
	b.output = source.Clone()
	b.reapplyLocked(entries)
	b.docMu.Unlock()

	b.source = source
	b.entries = &entries
	b.diff = d

	b.logger.Debug("Resolved manifest", "changed", len(d.Sections()))
	return d, nil
}

// reapplyLocked patches the last good output of every section still declared.
// Caller must hold b.docMu.
func (b *Builder) reapplyLocked(entries manifest.Entries) {
	for section, output := range b.records {
		if _, ok := entries.Scalars[section]; ok {
			b.components[section].patch(b.output, output)
		}
	}
	for section, records := range b.arrayRecords {
		for _, entry := range entries.Arrays[section] {
			if output, ok := records[entry]; ok {
				b.output.ReplaceArrayEntry(section, entry, output)
			}
		}
	}
}

// retryFailedLocked schedules entries whose last build failed, even when the
// manifest did not change them. Caller must hold b.docMu.
func (b *Builder) retryFailedLocked(d *diff.EntriesDiff, entries manifest.Entries) {
	for section := range b.failed {
		entry, ok := entries.Scalars[section]
		if !ok {
			delete(b.failed, section)
			continue
		}
		if _, changed := d.Scalars[section]; !changed {
			d.Scalars[section] = diff.EntryDiff{Status: diff.Update, Entry: entry}
			b.logger.Info("Retrying failed component", "section", section, "entry", entry)
		}
	}

	for section, failed := range b.failedArray {
		declared := entries.Arrays[section]
		ad := d.Arrays[section]
		for _, entry := range slices.Sorted(maps.Keys(failed)) {
			if !slices.Contains(declared, entry) {
				delete(failed, entry)
				continue
			}
			if slices.Contains(ad.Create, entry) || slices.Contains(ad.Update, entry) {
				continue
			}
			ad.Update = append(ad.Update, entry)
			b.logger.Info("Retrying failed component entry", "section", section, "entry", entry)
		}
		if !ad.Empty() {
			d.Arrays[section] = ad
		}
	}
}

// BuildComponents dispatches every changed section of d to its processor and
// patches the output manifest with the results. Sections build concurrently;
// the call returns once every build finished. A failed section keeps its last
// good output and the failures are returned joined.
func (b *Builder) BuildComponents(d diff.EntriesDiff) error {
	b.cycleMu.Lock()
	defer b.cycleMu.Unlock()
	return b.buildComponents(d)
}

func (b *Builder) buildComponents(d diff.EntriesDiff) error {
	if b.source == nil || b.output == nil {
		return ErrNotResolved
	}
	cycle := xid.New().String()
	logger := b.logger.With("cycle", cycle)

	p := pool.New().WithErrors()
	for _, section := range d.Sections() {
		c := b.components[section]
		if !section.IsArray() {
			ed := d.Scalars[section]
			p.Go(func() error {
				return b.buildScalar(logger, c, ed)
			})
			continue
		}

		ad := d.Arrays[section]
		for _, entry := range ad.Delete {
			p.Go(func() error {
				return b.stopElement(logger, c, entry)
			})
		}
		for _, entry := range ad.Update {
			p.Go(func() error {
				if err := c.multi.Stop(entry); err != nil {
					logger.Warn("Failed to release entry", "section", section, "entry", entry, "error", err)
				}
				return b.buildElement(logger, c, entry)
			})
		}
		for _, entry := range ad.Create {
			p.Go(func() error {
				return b.buildElement(logger, c, entry)
			})
		}
	}

	if err := p.Wait(); err != nil {
		logger.Error("Component build failed", "error", err)
		return err
	}
	logger.Info("Built components", "sections", len(d.Sections()))
	return nil
}

func (b *Builder) buildScalar(logger *slog.Logger, c *component, ed diff.EntryDiff) error {
	if ed.Status == diff.Delete {
		err := c.single.Stop()
		b.docMu.Lock()
		c.unpatch(b.output)
		delete(b.records, c.section)
		delete(b.failed, c.section)
		b.docMu.Unlock()
		logger.Debug("Removed component", "section", c.section, "entry", ed.Entry)
		return err
	}

	c.single.ResolveManifest(b.source)
	module, err := c.single.Build()
	if err != nil {
		b.docMu.Lock()
		b.failed[c.section] = true
		b.docMu.Unlock()
		return err
	}
	if module == processor.Empty {
		return nil
	}

	b.docMu.Lock()
	c.patch(b.output, module.Output)
	b.records[c.section] = module.Output
	delete(b.failed, c.section)
	b.docMu.Unlock()
	logger.Debug("Patched component", "section", c.section, "status", ed.Status, "output", module.Output)
	return nil
}

func (b *Builder) buildElement(logger *slog.Logger, c *component, entry string) error {
	c.multi.Resolve(entry)
	module, err := c.multi.Build(entry)

	b.docMu.Lock()
	defer b.docMu.Unlock()
	failed := b.failedArray[c.section]
	if err != nil {
		if failed == nil {
			failed = make(map[string]bool)
			b.failedArray[c.section] = failed
		}
		failed[entry] = true
		return err
	}
	delete(failed, entry)

	b.output.ReplaceArrayEntry(c.section, entry, module.Output)
	records := b.arrayRecords[c.section]
	if records == nil {
		records = make(map[string]string)
		b.arrayRecords[c.section] = records
	}
	records[entry] = module.Output
	logger.Debug("Patched component entry", "section", c.section, "entry", entry, "output", module.Output)
	return nil
}

func (b *Builder) stopElement(logger *slog.Logger, c *component, entry string) error {
	err := c.multi.Stop(entry)

	b.docMu.Lock()
	delete(b.failedArray[c.section], entry)
	records := b.arrayRecords[c.section]
	if output, ok := records[entry]; ok {
		delete(records, entry)
		if !b.liveArrayPathLocked(c.section, output) {
			b.output.RemoveArrayEntry(c.section, output)
		}
	}
	b.docMu.Unlock()
	logger.Debug("Removed component entry", "section", c.section, "entry", entry)
	return err
}

// liveArrayPathLocked reports whether p is a current entry of section or the output of one.
// Caller must hold b.docMu.
func (b *Builder) liveArrayPathLocked(section manifest.Section, p string) bool {
	if b.entries == nil {
		return false
	}
	for _, entry := range b.entries.Arrays[section] {
		if entry == p || processor.OutputPath(entry) == p {
			return true
		}
	}
	return false
}

// Reload runs a full cycle: load the manifest file, build what changed and emit.
func (b *Builder) Reload() error {
	b.cycleMu.Lock()
	defer b.cycleMu.Unlock()

	d, err := b.load()
	if err != nil {
		return err
	}
	buildErr := b.buildComponents(d)
	if err := b.emit(); err != nil {
		return errors.Join(buildErr, err)
	}
	return buildErr
}

// Invalidate drops cached content for a changed file. It reports whether the
// file is the source manifest, in which case the output manifest is discarded
// until the next resolve.
func (b *Builder) Invalidate(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	b.assets.Invalidate(abs)
	if abs != b.manifestPath {
		return false
	}

	b.cycleMu.Lock()
	b.docMu.Lock()
	b.output = nil
	b.docMu.Unlock()
	b.cycleMu.Unlock()
	return true
}

// InvalidateAll drops every cached file content. Hosts that do not report
// individual file changes call it before a cycle.
func (b *Builder) InvalidateAll() {
	b.assets.Reset()
}

// Failing reports whether an entry failed in the last build and is waiting
// to be retried by the next resolve.
func (b *Builder) Failing() bool {
	b.docMu.Lock()
	defer b.docMu.Unlock()
	if len(b.failed) > 0 {
		return true
	}
	for _, failed := range b.failedArray {
		if len(failed) > 0 {
			return true
		}
	}
	return false
}

// Manifest returns a copy of the output manifest, or nil before the first resolve.
func (b *Builder) Manifest() manifest.Manifest {
	b.cycleMu.Lock()
	defer b.cycleMu.Unlock()
	b.docMu.Lock()
	defer b.docMu.Unlock()
	return b.output.Clone()
}

// String serializes the output manifest. It returns "" when no manifest is resolved.
func (b *Builder) String() string {
	b.cycleMu.Lock()
	defer b.cycleMu.Unlock()
	return b.string()
}

func (b *Builder) string() string {
	b.docMu.Lock()
	defer b.docMu.Unlock()
	if b.output == nil {
		return ""
	}
	return b.output.String()
}

// Assets returns the static files referenced by the resolved manifest, with
// glob patterns expanded under the root.
func (b *Builder) Assets() ([]Asset, error) {
	b.cycleMu.Lock()
	defer b.cycleMu.Unlock()
	return b.assetList()
}

func (b *Builder) assetList() ([]Asset, error) {
	if b.source == nil {
		return nil, ErrNotResolved
	}
	return expandAssets(b.root, b.source.Assets())
}

// Emit writes the output manifest and copies the referenced assets to the outdir.
func (b *Builder) Emit() error {
	b.cycleMu.Lock()
	defer b.cycleMu.Unlock()
	return b.emit()
}

func (b *Builder) emit() error {
	b.docMu.Lock()
	output := b.output
	var (
		out []byte
		err error
	)
	if output != nil {
		out, err = output.Marshal()
	}
	b.docMu.Unlock()
	if output == nil {
		return ErrNotResolved
	}
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}

	if err := os.MkdirAll(b.outdir, 0755); err != nil {
		return fmt.Errorf("failed to create output dir %s: %w", b.outdir, err)
	}
	if err := os.WriteFile(filepath.Join(b.outdir, OutputManifestFile), out, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	assets, err := b.assetList()
	if err != nil {
		return err
	}
	if err := copyAssets(b.assets, b.outdir, assets, b.emitted); err != nil {
		return err
	}
	b.logger.Debug("Emitted extension", "outdir", b.outdir, "assets", len(assets))
	return nil
}

// Close stops every component and releases the bundler.
func (b *Builder) Close() error {
	b.cycleMu.Lock()
	defer b.cycleMu.Unlock()

	var errs []error
	for _, section := range manifest.ScalarSections {
		errs = append(errs, b.components[section].single.Stop())
	}
	for _, section := range manifest.ArraySections {
		multi := b.components[section].multi
		for _, entry := range multi.Entries() {
			errs = append(errs, multi.Stop(entry))
		}
	}
	if closer, ok := b.bundler.(io.Closer); ok {
		errs = append(errs, closer.Close())
	}
	return errors.Join(errs...)
}

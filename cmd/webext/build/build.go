// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

// Package build provides the build command for webext.
package build

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	jsexecutor "github.com/buke/js-executor"
	"github.com/evanw/esbuild/pkg/api"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	webextplugin "github.com/buke/esbuild-plugin-webext-go"
	qjsmanifest "github.com/buke/esbuild-plugin-webext-go/engines/quickjs-go"
	"github.com/buke/esbuild-plugin-webext-go/internal/watch"
)

// Cmd is the build cobra command that compiles the extension described by a manifest.
var Cmd = &cobra.Command{
	Use:   "build",
	Short: "Build the extension package",
	Long: `Build every component the manifest declares and write the extension
package, including the rewritten manifest.json and static assets.

With --watch the package is kept up to date: component sources are rebuilt
by esbuild, manifest and asset edits trigger a new build cycle.`,
	Example: `  # One-shot build of src/manifest.json into dist/
  webext build --manifest src/manifest.json --outdir dist

  # Rebuild on change
  webext build --watch

  # Rewrite the manifest with a script before building
  webext build --script webext.config.js`,
	RunE: run,
}

func init() {
	Cmd.Flags().StringP("manifest", "m", "manifest.json", "Source manifest, relative to the root")
	Cmd.Flags().StringP("outdir", "o", "", "Output directory (default: <root>/dist)")
	Cmd.Flags().BoolP("watch", "w", false, "Rebuild when sources change")
	Cmd.Flags().Duration("debounce", watch.DefaultDebounce, "Quiet period before a watch rebuild")
	Cmd.Flags().String("tsconfig", "", "tsconfig.json used for compilation and path aliases")
	Cmd.Flags().String("script", "", "Manifest script defining webext.transformManifest")
	Cmd.Flags().Bool("minify", false, "Minify component output")
	Cmd.Flags().Bool("sourcemap", false, "Emit linked source maps")
	Cmd.Flags().StringToString("define", nil, "Global identifier replacements (name=value)")

	for _, name := range []string{"manifest", "outdir", "watch", "debounce", "tsconfig", "script", "minify", "sourcemap", "define"} {
		_ = viper.BindPFlag(name, Cmd.Flags().Lookup(name))
	}
}

func run(cmd *cobra.Command, args []string) error {
	logger := slog.Default()

	root, err := filepath.Abs(viper.GetString("root"))
	if err != nil {
		return fmt.Errorf("invalid root directory: %w", err)
	}

	opts := []webextplugin.OptionFunc{
		webextplugin.WithRoot(root),
		webextplugin.WithManifestFile(viper.GetString("manifest")),
		webextplugin.WithWatch(viper.GetBool("watch")),
		webextplugin.WithBuildOptions(buildOptions()),
		webextplugin.WithLogger(logger),
	}
	if outdir := viper.GetString("outdir"); outdir != "" {
		opts = append(opts, webextplugin.WithOutdir(outdir))
	}
	if tsconfig := viper.GetString("tsconfig"); tsconfig != "" {
		opts = append(opts, webextplugin.WithTsconfig(tsconfig))
	}

	// Start the manifest script runtime when configured
	if script := viper.GetString("script"); script != "" {
		if !filepath.IsAbs(script) {
			script = filepath.Join(root, script)
		}
		jsExec, err := newScriptExecutor(script)
		if err != nil {
			return err
		}
		defer jsExec.Stop()
		opts = append(opts, webextplugin.WithManifestScript(jsExec))
	}

	builder, err := webextplugin.NewBuilder(opts...)
	if err != nil {
		return err
	}
	defer builder.Close()

	start := time.Now()
	if err := builder.Reload(); err != nil {
		if !viper.GetBool("watch") {
			return err
		}
		logger.Error("Build failed", "error", err)
	} else {
		logger.Info("Build finished", "outdir", builder.Outdir(), "duration", time.Since(start).Round(time.Millisecond))
	}

	if !viper.GetBool("watch") {
		return nil
	}
	return watchAndRebuild(cmd.Context(), builder, viper.GetDuration("debounce"), logger)
}

// buildOptions maps the compile flags onto esbuild options.
func buildOptions() api.BuildOptions {
	var buildOptions api.BuildOptions
	if viper.GetBool("minify") {
		buildOptions.MinifyWhitespace = true
		buildOptions.MinifyIdentifiers = true
		buildOptions.MinifySyntax = true
	}
	if viper.GetBool("sourcemap") {
		buildOptions.Sourcemap = api.SourceMapLinked
	}
	if define := viper.GetStringMapString("define"); len(define) > 0 {
		buildOptions.Define = define
	}
	return buildOptions
}

func newScriptExecutor(script string) (*jsexecutor.JsExecutor, error) {
	factory, err := qjsmanifest.NewManifestScriptFileFactory(script)
	if err != nil {
		return nil, err
	}
	jsExec, err := jsexecutor.NewExecutor(jsexecutor.WithJsEngine(factory))
	if err != nil {
		return nil, fmt.Errorf("failed to create script executor: %w", err)
	}
	if err := jsExec.Start(); err != nil {
		return nil, fmt.Errorf("failed to start script executor: %w", err)
	}
	return jsExec, nil
}

// watchAndRebuild runs build cycles for manifest edits and recopies changed assets
// until interrupted. Component sources are rebuilt by their esbuild watchers.
func watchAndRebuild(ctx context.Context, builder *webextplugin.Builder, debounce time.Duration, logger *slog.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, err := watch.New(watch.Config{
		Root:     builder.Root(),
		Outdir:   builder.Outdir(),
		Debounce: debounce,
		Logger:   logger,
	}, func(paths []string) {
		if err := rebuild(builder, paths, logger); err != nil {
			logger.Error("Rebuild failed", "error", err)
		}
	})
	if err != nil {
		return err
	}
	defer w.Close()

	return w.Run(ctx)
}

// rebuild handles one batch of changed files. Manifest edits and pending
// failed entries run a full cycle; otherwise only assets are recopied.
// Entries whose build failed hold no esbuild watcher, so any change may be
// the fix they wait for.
func rebuild(builder *webextplugin.Builder, paths []string, logger *slog.Logger) error {
	manifestChanged := false
	for _, path := range paths {
		if builder.Invalidate(path) {
			manifestChanged = true
		}
	}

	var err error
	switch {
	case manifestChanged:
		logger.Info("Manifest changed, rebuilding")
		err = builder.Reload()
	case builder.Failing():
		logger.Info("Retrying failed components", "changed", len(paths))
		err = builder.Reload()
	default:
		err = builder.Emit()
	}
	if errors.Is(err, webextplugin.ErrNotResolved) {
		return nil
	}
	return err
}

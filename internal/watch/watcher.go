// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

// Package watch rebuilds the extension when project files change.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is used when Config.Debounce is not positive.
const DefaultDebounce = 200 * time.Millisecond

// ErrWatchLimitReached is returned when the OS watch limit is exceeded.
var ErrWatchLimitReached = errors.New("filesystem watch limit reached")

// ignoreDirs are never watched.
var ignoreDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	"node_modules": true,
}

// Config configures the watcher.
type Config struct {
	Root     string        // project root, watched recursively
	Outdir   string        // build output, excluded from watching
	Debounce time.Duration // coalescing window
	Logger   *slog.Logger
}

// Watcher reports batches of changed files under a project root.
type Watcher struct {
	config    Config
	fsWatcher *fsnotify.Watcher
	debouncer *Debouncer
	onChange  func(paths []string)
	logger    *slog.Logger
}

// New creates a watcher. onChange receives absolute paths of changed files.
func New(cfg Config, onChange func(paths []string)) (*Watcher, error) {
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve watch root: %w", err)
	}
	cfg.Root = root
	if cfg.Outdir != "" {
		if cfg.Outdir, err = filepath.Abs(cfg.Outdir); err != nil {
			return nil, fmt.Errorf("failed to resolve outdir: %w", err)
		}
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &Watcher{
		config:    cfg,
		fsWatcher: fsWatcher,
		onChange:  onChange,
		logger:    logger,
	}, nil
}

// Run starts the watch loop. It blocks until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	w.debouncer = NewDebouncer(w.config.Debounce, w.onChange)
	defer w.debouncer.Stop()

	if err := w.addRecursive(w.config.Root); err != nil {
		return fmt.Errorf("failed to watch project: %w", err)
	}
	w.logger.Info("Watching for changes", "root", w.config.Root)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Stopped watching", "root", w.config.Root)
			return nil

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("File watcher error", "error", err)
		}
	}
}

// ignored reports whether a directory must not be watched.
func (w *Watcher) ignored(path string) bool {
	if w.config.Outdir != "" && (path == w.config.Outdir || strings.HasPrefix(path, w.config.Outdir+string(filepath.Separator))) {
		return true
	}
	return ignoreDirs[filepath.Base(path)]
}

// addRecursive adds a directory and all subdirectories to the watcher.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if !os.IsPermission(err) {
				w.logger.Warn("Walk error", "path", path, "error", err)
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.config.Root && w.ignored(path) {
			return filepath.SkipDir
		}
		if err := w.fsWatcher.Add(path); err != nil {
			if isWatchLimitError(err) {
				return fmt.Errorf("%w at %s: %v", ErrWatchLimitReached, path, err)
			}
			w.logger.Debug("Failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

// isWatchLimitError checks if an error is due to inotify watch limits.
func isWatchLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "no space left on device") ||
		strings.Contains(errStr, "too many open files")
}

// handleEvent processes a single filesystem event.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	path := event.Name
	if w.ignored(filepath.Dir(path)) || w.ignored(path) {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if err := w.addRecursive(path); err != nil {
				w.logger.Error("Failed to watch new directory", "path", path, "error", err)
			}
			return
		}
	}

	// Chmod alone does not change content
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	w.logger.Debug("File changed", "path", path, "op", event.Op.String())
	w.debouncer.Add(path)
}

// Close closes the watcher and releases resources.
func (w *Watcher) Close() error {
	if w.fsWatcher != nil {
		return w.fsWatcher.Close()
	}
	return nil
}

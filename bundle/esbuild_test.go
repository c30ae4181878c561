// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package bundle

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/buke/esbuild-plugin-webext-go/manifest"
	"github.com/buke/esbuild-plugin-webext-go/processor"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read %s: %v", path, err)
	}
	return string(data)
}

func newTestBundler(t *testing.T, root string, opts ...Option) *Esbuild {
	t.Helper()
	b, err := New(root, "", opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func request(section manifest.Section, entry string, watch bool) processor.Request {
	return processor.Request{
		Section: section,
		Entry:   entry,
		Output:  processor.OutputPath(entry),
		Options: processor.NormalizeOptions(processor.UserOptions{Watch: watch}),
	}
}

// TestNew tests bundler construction
func TestNew(t *testing.T) {
	t.Run("missing_root", func(t *testing.T) {
		if _, err := New("", ""); !errors.Is(err, manifest.ErrMissingRoot) {
			t.Errorf("Expected ErrMissingRoot, got %v", err)
		}
	})

	t.Run("default_outdir", func(t *testing.T) {
		root := t.TempDir()
		b := newTestBundler(t, root)
		if b.Root() != root || b.Outdir() != filepath.Join(root, "dist") {
			t.Errorf("Unexpected dirs: %s, %s", b.Root(), b.Outdir())
		}
	})

	t.Run("working_dir_forced_to_root", func(t *testing.T) {
		root := t.TempDir()
		b := newTestBundler(t, root, WithBuildOptions(api.BuildOptions{AbsWorkingDir: "/elsewhere"}))
		if b.buildOptions.AbsWorkingDir != root {
			t.Errorf("Expected AbsWorkingDir %s, got %s", root, b.buildOptions.AbsWorkingDir)
		}
	})

	t.Run("invalid_tsconfig", func(t *testing.T) {
		if _, err := New(t.TempDir(), "", WithTsconfig("missing.json")); err == nil {
			t.Error("Expected error for missing tsconfig")
		}
	})
}

// TestBuildScript tests bundling of script entries
func TestBuildScript(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"src/background.ts": `import { VERSION } from "./version"; chrome.runtime.onInstalled.addListener(() => console.log(VERSION));`,
		"src/version.ts":    `export const VERSION: string = "1.2.3";`,
		"src/content.ts":    `const marker: number = 42; console.log("content", marker);`,
	})
	b := newTestBundler(t, root)

	t.Run("background_module", func(t *testing.T) {
		module, err := b.Build(request(manifest.SectionBackground, "src/background.ts", false))
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		if module.Entry != "src/background.ts" || module.Output != "src/background.js" {
			t.Errorf("Unexpected module: %+v", module)
		}
		if !slices.Equal(module.Files, []string{"src/background.js"}) {
			t.Errorf("Unexpected files: %v", module.Files)
		}
		out := readFile(t, filepath.Join(b.Outdir(), "src", "background.js"))
		if !strings.Contains(out, "1.2.3") {
			t.Errorf("Expected inlined import:\n%s", out)
		}
	})

	t.Run("content_script_iife", func(t *testing.T) {
		if _, err := b.Build(request(manifest.SectionContentScripts, "src/content.ts", false)); err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		out := readFile(t, filepath.Join(b.Outdir(), "src", "content.js"))
		if !strings.Contains(out, "(() => {") {
			t.Errorf("Expected an IIFE wrapper:\n%s", out)
		}
	})

	t.Run("no_watch_holds_no_context", func(t *testing.T) {
		b.mu.Lock()
		n := len(b.contexts)
		b.mu.Unlock()
		if n != 0 {
			t.Errorf("Expected no live contexts, got %d", n)
		}
	})
}

// TestBuildError tests esbuild failures
func TestBuildError(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"src/broken.ts": "export const x = ;\n",
	})
	b := newTestBundler(t, root)

	_, err := b.Build(request(manifest.SectionBackground, "src/broken.ts", false))
	var buildErr *BuildError
	if !errors.As(err, &buildErr) {
		t.Fatalf("Expected *BuildError, got %v", err)
	}
	if buildErr.Entry != "src/broken.ts" || len(buildErr.Messages) == 0 {
		t.Errorf("Unexpected build error: %+v", buildErr)
	}
	if !strings.Contains(err.Error(), "src/broken.ts:1:") {
		t.Errorf("Expected location in message, got %s", err.Error())
	}
	if _, err := os.Stat(filepath.Join(b.Outdir(), "src", "broken.js")); err == nil {
		t.Error("Expected no output for a failed build")
	}
}

// TestBuildErrorMessage tests message rendering without locations
func TestBuildErrorMessage(t *testing.T) {
	err := &BuildError{
		Entry: "bg.ts",
		Messages: []api.Message{
			{Text: "first"},
			{Text: "second", Location: &api.Location{File: "bg.ts", Line: 3, Column: 7}},
		},
	}
	want := "esbuild failed for bg.ts: first; bg.ts:3:7: second"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

// TestBuildWatch tests that watching entries keep their context until stopped
func TestBuildWatch(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"src/background.ts": `console.log("bg");`,
		"src/popup.html":    `<html><body><script src="./popup.ts"></script></body></html>`,
		"src/popup.ts":      `console.log("popup");`,
	})
	b := newTestBundler(t, root)

	if _, err := b.Build(request(manifest.SectionBackground, "src/background.ts", true)); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Build(request(manifest.SectionPopup, "src/popup.html", true)); err != nil {
		t.Fatal(err)
	}
	// Rebuilding an entry replaces its contexts
	if _, err := b.Build(request(manifest.SectionBackground, "src/background.ts", true)); err != nil {
		t.Fatal(err)
	}

	b.mu.Lock()
	bgKey := contextKey{section: manifest.SectionBackground, entry: "src/background.ts"}
	popupKey := contextKey{section: manifest.SectionPopup, entry: "src/popup.html"}
	bg, popup := len(b.contexts[bgKey]), len(b.contexts[popupKey])
	b.mu.Unlock()
	if bg != 1 || popup != 1 {
		t.Fatalf("Expected one context per entry, got %d and %d", bg, popup)
	}

	if err := b.Stop(manifest.SectionBackground, "src/background.ts"); err != nil {
		t.Fatal(err)
	}
	if err := b.Stop(manifest.SectionBackground, "src/unknown.ts"); err != nil {
		t.Errorf("Stop of unknown entry: %v", err)
	}
	b.mu.Lock()
	_, held := b.contexts[bgKey]
	b.mu.Unlock()
	if held {
		t.Error("Expected background context to be released")
	}

	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
	b.mu.Lock()
	n := len(b.contexts)
	b.mu.Unlock()
	if n != 0 {
		t.Errorf("Expected no contexts after Close, got %d", n)
	}
}

// TestBuildSharedEntry tests one file declared by two array sections
func TestBuildSharedEntry(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"inject.js": "export const marker = 1;\nconsole.log(marker);\n",
	})
	b := newTestBundler(t, root)
	outFile := filepath.Join(b.Outdir(), "inject.js")

	if _, err := b.Build(request(manifest.SectionContentScripts, "inject.js", true)); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Build(request(manifest.SectionWebAccessibleResources, "inject.js", true)); err != nil {
		t.Fatal(err)
	}
	out := readFile(t, outFile)
	if !strings.Contains(out, "(() => {") || strings.Contains(out, "export") {
		t.Errorf("Expected the shared output to stay a classic script, got:\n%s", out)
	}

	if err := b.Stop(manifest.SectionWebAccessibleResources, "inject.js"); err != nil {
		t.Fatal(err)
	}
	b.mu.Lock()
	content := len(b.contexts[contextKey{section: manifest.SectionContentScripts, entry: "inject.js"}])
	_, war := b.contexts[contextKey{section: manifest.SectionWebAccessibleResources, entry: "inject.js"}]
	b.mu.Unlock()
	if content != 1 {
		t.Errorf("Expected the content script context to survive, got %d", content)
	}
	if war {
		t.Error("Expected the web accessible resource context to be released")
	}
}

// TestScriptFormat tests the output format per section
func TestScriptFormat(t *testing.T) {
	tests := []struct {
		section    manifest.Section
		configured api.Format
		want       api.Format
	}{
		{manifest.SectionContentScripts, api.FormatDefault, api.FormatIIFE},
		{manifest.SectionContentScripts, api.FormatESModule, api.FormatIIFE},
		{manifest.SectionWebAccessibleResources, api.FormatDefault, api.FormatIIFE},
		{manifest.SectionBackground, api.FormatDefault, api.FormatESModule},
		{manifest.SectionBackground, api.FormatIIFE, api.FormatIIFE},
		{manifest.SectionPopup, api.FormatDefault, api.FormatESModule},
	}
	for _, tt := range tests {
		if got := scriptFormat(tt.section, tt.configured); got != tt.want {
			t.Errorf("scriptFormat(%s, %v) = %v, want %v", tt.section, tt.configured, got, tt.want)
		}
	}
}

// TestBuildPathAlias tests tsconfig aliases in manifest entries
func TestBuildPathAlias(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"src/entries/background.ts": `console.log("aliased");`,
	})
	b := newTestBundler(t, root, WithBuildOptions(api.BuildOptions{
		TsconfigRaw: `{"compilerOptions":{"paths":{"@entries/*":["./src/entries/*"]}}}`,
	}))

	module, err := b.Build(processor.Request{
		Section: manifest.SectionBackground,
		Entry:   "@entries/background.ts",
		Output:  "background.js",
		Options: processor.NormalizeOptions(processor.UserOptions{}),
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if !strings.Contains(readFile(t, filepath.Join(b.Outdir(), "background.js")), "aliased") {
		t.Error("Expected the aliased entry to be bundled")
	}
	if module.Entry != "@entries/background.ts" {
		t.Errorf("Expected the manifest entry to be kept, got %s", module.Entry)
	}
}

// TestOutputFiles tests metafile output listing
func TestOutputFiles(t *testing.T) {
	b := &Esbuild{root: "/ext", outdir: filepath.FromSlash("/ext/dist")}

	files, err := b.outputFiles(`{"inputs":{},"outputs":{"dist/b.js":{"bytes":1},"dist/a/a.js":{"bytes":2,"entryPoint":"src/a.ts"}}}`)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(files, []string{"a/a.js", "b.js"}) {
		t.Errorf("Unexpected files: %v", files)
	}

	if files, err := b.outputFiles(""); err != nil || files != nil {
		t.Errorf("Expected nothing for empty metafile, got %v, %v", files, err)
	}
	if _, err := b.outputFiles("{"); err == nil {
		t.Error("Expected error for invalid metafile")
	}
}

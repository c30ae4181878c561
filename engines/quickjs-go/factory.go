// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

// Package qjsmanifest runs manifest scripts on QuickJS. A manifest script
// defines globalThis.webext.transformManifest(manifest) and returns the
// manifest to build; it can read project files through the webextFs global.
package qjsmanifest

import (
	"fmt"
	"os"

	jsexecutor "github.com/buke/js-executor"
	quickjsengine "github.com/buke/js-executor/engines/quickjs-go"
)

// NewManifestScriptFactory creates a JsEngineFactory with the file system helpers
// and the given manifest script loaded.
// Additional QuickJS engine options can be passed via the variadic parameter.
func NewManifestScriptFactory(script string, options ...quickjsengine.Option) jsexecutor.JsEngineFactory {
	// Inject file system helper functions into the JS context
	options = append(options, loadFsModule)
	// Evaluate the manifest script so its service is registered on globalThis
	options = append(options, loadScriptModule(script))
	return quickjsengine.NewFactory(options...)
}

// NewManifestScriptFileFactory reads the manifest script from path and creates its factory.
func NewManifestScriptFileFactory(path string, options ...quickjsengine.Option) (jsexecutor.JsEngineFactory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest script %s: %w", path, err)
	}
	return NewManifestScriptFactory(string(data), options...), nil
}

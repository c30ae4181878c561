// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package webextplugin

import (
	"fmt"

	jsexecutor "github.com/buke/js-executor"
	"github.com/rs/xid"

	"github.com/buke/esbuild-plugin-webext-go/manifest"
)

// ManifestTransformService is the JS service a manifest script must provide,
// i.e. globalThis.webext.transformManifest(manifest) returning the new manifest.
const ManifestTransformService = "webext.transformManifest"

// NewScriptTransform returns a transform that hands the manifest to the
// JavaScript executor and uses the object it returns as the new manifest.
func NewScriptTransform(jsExecutor *jsexecutor.JsExecutor) manifest.Transform {
	return manifest.TransformFunc(func(m manifest.Manifest) (manifest.Manifest, error) {
		jsResponse, err := jsExecutor.Execute(&jsexecutor.JsRequest{
			Id:      xid.New().String(),
			Service: ManifestTransformService,
			Args:    []interface{}{map[string]interface{}(m)},
		})
		if err != nil {
			return nil, fmt.Errorf("manifest script failed: %w", err)
		}

		result, ok := jsResponse.Result.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("invalid manifest script result: %v", jsResponse.Result)
		}
		return manifest.Manifest(result), nil
	})
}

// WithManifestScript adds a transform executed by a JavaScript executor,
// typically one created with the quickjs-go engine factory of this module.
func WithManifestScript(jsExecutor *jsexecutor.JsExecutor) OptionFunc {
	return WithManifestTransform(NewScriptTransform(jsExecutor))
}

// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package qjsmanifest

import (
	"fmt"
	"sync"

	"github.com/cespare/xxhash"
	quickjsengine "github.com/buke/js-executor/engines/quickjs-go"
	quickjs "github.com/buke/quickjs-go"
)

// ScriptFileName is the file name reported in stack traces of manifest scripts.
const ScriptFileName = "webext.config.js"

var (
	bytecodeMu    sync.Mutex
	bytecodeCache = make(map[uint64][]byte)
)

// getScriptBytecode compiles a manifest script and caches its bytecode by content hash.
// Engines created from the same script share one compilation.
func getScriptBytecode(jse *quickjsengine.Engine, script string) ([]byte, error) {
	sum := xxhash.Sum64String(script)

	bytecodeMu.Lock()
	defer bytecodeMu.Unlock()
	if b, ok := bytecodeCache[sum]; ok {
		return b, nil
	}

	b, err := jse.Ctx.Compile(script, quickjs.EvalFileName(ScriptFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to compile manifest script: %w", err)
	}
	bytecodeCache[sum] = b
	return b, nil
}

// loadScriptModule returns an engine option evaluating the manifest script.
func loadScriptModule(script string) quickjsengine.Option {
	return func(jse *quickjsengine.Engine) error {
		bytecode, err := getScriptBytecode(jse, script)
		if err != nil {
			return err
		}

		ret := jse.Ctx.EvalBytecode(bytecode)
		defer ret.Free()

		if ret.IsException() {
			return jse.Ctx.Exception()
		}
		return nil
	}
}

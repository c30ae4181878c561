// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package qjsmanifest

import (
	"os"
	"path/filepath"

	quickjsengine "github.com/buke/js-executor/engines/quickjs-go"
	"github.com/buke/quickjs-go"
)

// fileExistsFunc checks if a file exists at the given path.
// Returns true if the file exists, otherwise false.
func fileExistsFunc(ctx *quickjs.Context, this *quickjs.Value, args []*quickjs.Value) *quickjs.Value {
	if len(args) == 0 {
		return ctx.Bool(false)
	}
	if _, err := os.Stat(args[0].String()); err != nil {
		return ctx.Bool(false)
	}
	return ctx.Bool(true)
}

// readFileFunc reads the content of a file and returns it as a string.
func readFileFunc(ctx *quickjs.Context, this *quickjs.Value, args []*quickjs.Value) *quickjs.Value {
	if len(args) == 0 {
		return ctx.ThrowError(os.ErrInvalid)
	}
	data, err := os.ReadFile(args[0].String())
	if err != nil {
		return ctx.ThrowError(err)
	}
	return ctx.String(string(data))
}

// resolveFunc joins its arguments and returns the absolute path.
// Unlike realpath the target does not have to exist.
func resolveFunc(ctx *quickjs.Context, this *quickjs.Value, args []*quickjs.Value) *quickjs.Value {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		parts = append(parts, arg.String())
	}
	abs, err := filepath.Abs(filepath.Join(parts...))
	if err != nil {
		return ctx.ThrowError(err)
	}
	return ctx.String(abs)
}

// loadFsModule injects a 'webextFs' object into the JS context so manifest
// scripts can inspect the project, e.g. read the version from package.json.
// The object provides fileExists, readFile and resolve.
func loadFsModule(jse *quickjsengine.Engine) error {
	globalsObj := jse.Ctx.Globals()
	webextFsObj := jse.Ctx.Object()
	webextFsObj.Set("fileExists", jse.Ctx.Function(fileExistsFunc))
	webextFsObj.Set("readFile", jse.Ctx.Function(readFileFunc))
	webextFsObj.Set("resolve", jse.Ctx.Function(resolveFunc))
	globalsObj.Set("webextFs", webextFsObj)
	return nil
}

// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package processor

import (
	"log/slog"

	"github.com/evanw/esbuild/pkg/api"
)

// UserOptions are the options a processor is constructed with.
//
// Watch accepts nil, a bool, an api.WatchOptions or a *api.WatchOptions.
type UserOptions struct {
	Watch   any
	Plugins []api.Plugin
	Logger  *slog.Logger
}

// Options are UserOptions with every field populated.
type Options struct {
	Watch   *api.WatchOptions // nil disables watching
	Plugins []api.Plugin
	Logger  *slog.Logger
}

// NormalizeOptions turns user options into normalized options:
// false or absent watch disables watching, true selects the default watcher
// config and an explicit config passes through. Missing plugins become empty.
func NormalizeOptions(u UserOptions) Options {
	var o Options
	switch w := u.Watch.(type) {
	case bool:
		if w {
			o.Watch = &api.WatchOptions{}
		}
	case api.WatchOptions:
		o.Watch = &w
	case *api.WatchOptions:
		o.Watch = w
	}

	o.Plugins = u.Plugins
	if o.Plugins == nil {
		o.Plugins = []api.Plugin{}
	}

	o.Logger = u.Logger
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

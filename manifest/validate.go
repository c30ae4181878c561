// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrOptionsConflict is returned when both options_page and options_ui are declared.
	ErrOptionsConflict = errors.New("options_page and options_ui are mutually exclusive")

	// ErrMissingRoot is returned when entries are resolved without a project root.
	ErrMissingRoot = errors.New("project root is required to resolve manifest entries")
)

// ValidationError lists every structural problem found in a manifest.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid manifest: %s", strings.Join(e.Problems, "; "))
}

// CheckExclusive enforces the options_page / options_ui exclusivity.
func CheckExclusive(m Manifest) error {
	_, hasPage := m["options_page"]
	_, hasUI := m["options_ui"]
	if hasPage && hasUI {
		return ErrOptionsConflict
	}
	return nil
}

// Validate checks the structure of the sections the builder reads.
// It returns a *ValidationError listing all problems, or nil.
func Validate(m Manifest) error {
	var problems []string
	report := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if _, ok := m["manifest_version"].(float64); !ok {
		report("manifest_version must be a number")
	}
	if name, ok := m["name"].(string); !ok || name == "" {
		report("name must be a non-empty string")
	}

	for _, s := range ScalarSections {
		path := scalarPaths[s]
		if len(path) > 1 {
			if v, ok := m[path[0]]; ok {
				if _, isObj := asObject(v); !isObj {
					report("%s must be an object", path[0])
					continue
				}
			}
		}
		if v, ok := m.GetPath(path...); ok {
			if _, isString := v.(string); !isString {
				report("%s must be a string", strings.Join(path, "."))
			}
		}
	}

	for _, s := range ArraySections {
		fields := arrayFields[s]
		v, ok := m[fields[0]]
		if !ok {
			continue
		}
		items, ok := asArray(v)
		if !ok {
			report("%s must be an array", fields[0])
			continue
		}
		for i, item := range items {
			obj, ok := asObject(item)
			if !ok {
				report("%s[%d] must be an object", fields[0], i)
				continue
			}
			paths, ok := obj[fields[1]]
			if !ok {
				continue
			}
			list, ok := asArray(paths)
			if !ok {
				report("%s[%d].%s must be an array", fields[0], i, fields[1])
				continue
			}
			for j, p := range list {
				if _, ok := p.(string); !ok {
					report("%s[%d].%s[%d] must be a string", fields[0], i, fields[1], j)
				}
			}
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

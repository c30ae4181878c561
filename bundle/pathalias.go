// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package bundle

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/evanw/esbuild/pkg/api"
)

// parseTsconfigPathAlias parses path aliases from the tsconfig referenced by the build options.
// It supports both raw tsconfig JSON and file-based tsconfig.
// Returns a map of alias to real path.
func parseTsconfigPathAlias(buildOptions *api.BuildOptions) (map[string]string, error) {
	var tsconfigAbsDir string
	pathAlias := make(map[string]string)
	var tsconfig map[string]interface{}

	// Parse from raw tsconfig JSON if provided
	if buildOptions.TsconfigRaw != "" {
		err := json.Unmarshal([]byte(buildOptions.TsconfigRaw), &tsconfig)
		if err != nil {
			return pathAlias, err
		}
		if buildOptions.AbsWorkingDir != "" {
			tsconfigAbsDir = buildOptions.AbsWorkingDir
		} else {
			tsconfigAbsDir, _ = os.Getwd()
		}
		// Otherwise, parse from tsconfig file if provided
	} else if buildOptions.Tsconfig != "" {
		tsconfigPath := buildOptions.Tsconfig
		if !filepath.IsAbs(tsconfigPath) && buildOptions.AbsWorkingDir != "" {
			tsconfigPath = filepath.Join(buildOptions.AbsWorkingDir, tsconfigPath)
		}
		file, err := os.Open(tsconfigPath)
		if err != nil {
			return pathAlias, err
		}
		defer file.Close()
		err = json.NewDecoder(file).Decode(&tsconfig)
		if err != nil {
			return pathAlias, err
		}
		tsconfigAbsDir, _ = filepath.Abs(filepath.Dir(tsconfigPath))
	}

	// Extract path aliases from compilerOptions.paths
	if compilerOptions, ok := tsconfig["compilerOptions"].(map[string]interface{}); ok {
		if paths, ok := compilerOptions["paths"].(map[string]interface{}); ok {
			for key, value := range paths {
				if pathArray, ok := value.([]interface{}); ok && len(pathArray) > 0 {
					if pathStr, ok := pathArray[0].(string); ok {
						pathAlias[key] = filepath.Join(tsconfigAbsDir, pathStr)
					}
				}
			}
		}
	}

	return pathAlias, nil
}

// applyPathAlias applies path alias mapping to the given manifest entry.
// It supports wildcard '*' in the alias and replaces it accordingly.
// Longer aliases win so "@/lib/*" shadows "@/*".
func applyPathAlias(pathAlias map[string]string, path string) string {
	aliases := make([]string, 0, len(pathAlias))
	for alias := range pathAlias {
		if alias != "" {
			aliases = append(aliases, alias)
		}
	}
	sort.Slice(aliases, func(i, j int) bool {
		if len(aliases[i]) != len(aliases[j]) {
			return len(aliases[i]) > len(aliases[j])
		}
		return aliases[i] < aliases[j]
	})

	for _, alias := range aliases {
		realPath := pathAlias[alias]
		aliasPattern := "^" + regexp.QuoteMeta(alias) + "$"
		// Support wildcard '*' in alias
		if alias[len(alias)-1] == '*' && realPath != "" && realPath[len(realPath)-1] == '*' {
			aliasPattern = "^" + regexp.QuoteMeta(alias[:len(alias)-1]) + "(.*)$"
			realPath = realPath[:len(realPath)-1] + "${1}"
		}
		re := regexp.MustCompile(aliasPattern)
		if re.MatchString(path) {
			return re.ReplaceAllString(path, realPath)
		}
	}
	return path
}

/*
Copyright © 2025 Benny Powers <web@bennypowers.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

// Package config reads per-workspace options from the project's package
// manifest. There is exactly one source of configuration (no layered
// flags/env/file precedence to resolve), so this package reads the
// manifest's "tsrun" key directly rather than through a general-purpose
// config loader.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultExtensions is the set of source extensions recognized when a
// project's manifest doesn't override it.
var DefaultExtensions = []string{".tsx", ".ts", ".jsx", ".mjs", ".cjs", ".js"}

// EsbuildConfig carries esbuild-specific overrides nested under the
// project's "tsrun" key.
type EsbuildConfig struct {
	ResolveExtensions []string `json:"resolveExtensions,omitempty"`
}

// ProjectConfig is the full set of per-workspace options. All fields are
// optional in the manifest; zero values mean "use the default".
type ProjectConfig struct {
	Extensions []string       `json:"extensions,omitempty"`
	Ignore     []string       `json:"ignore,omitempty"`
	Esbuild    *EsbuildConfig `json:"esbuild,omitempty"`
}

type manifest struct {
	TSRun *ProjectConfig `json:"tsrun"`
}

// Load reads <workspaceRoot>/package.json and returns the ProjectConfig
// found under its "tsrun" key. A missing manifest or a manifest with no
// "tsrun" key yields a zero-value ProjectConfig, not an error; the caller
// applies defaults.
func Load(workspaceRoot string) (ProjectConfig, error) {
	path := filepath.Join(workspaceRoot, "package.json")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ProjectConfig{}, nil
		}
		return ProjectConfig{}, fmt.Errorf("read %s: %w", path, err)
	}

	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return ProjectConfig{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if m.TSRun == nil {
		return ProjectConfig{}, nil
	}
	return *m.TSRun, nil
}

// ExtensionsOrDefault returns cfg.Extensions if set, else DefaultExtensions.
func (cfg ProjectConfig) ExtensionsOrDefault() []string {
	if len(cfg.Extensions) > 0 {
		return cfg.Extensions
	}
	return DefaultExtensions
}

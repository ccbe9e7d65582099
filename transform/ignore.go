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

package transform

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	ignore "github.com/sabhiram/go-gitignore"

	"github.com/go-tsrun/tsrun/buildset"
)

// alwaysIgnored is appended to every group's configured ignore list:
// node_modules is never part of a build group, and declaration files carry
// no runtime code to transform.
var alwaysIgnored = []string{"**/node_modules/**", "**/*.d.ts"}

// candidateFiles enumerates every file under root matching one of the given
// extensions, skipping anything matched by ignorePatterns (which already
// includes alwaysIgnored). Returned paths are absolute.
func candidateFiles(root string, extensions, ignorePatterns []string) ([]string, error) {
	matched, err := globExtensions(root, extensions)
	if err != nil {
		return nil, err
	}

	gi := ignore.CompileIgnoreLines(ignorePatterns...)

	out := make([]string, 0, len(matched))
	for _, rel := range matched {
		if gi.MatchesPath(rel) {
			continue
		}
		out = append(out, filepath.Join(root, rel))
	}
	sort.Strings(out)
	return out, nil
}

// globExtensions returns every path under root (relative to root, forward
// slashes) whose name ends in one of extensions.
func globExtensions(root string, extensions []string) ([]string, error) {
	fsys := os.DirFS(root)
	seen := make(map[string]struct{})
	var all []string

	for _, ext := range extensions {
		matches, err := doublestar.Glob(fsys, "**/*"+ext)
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			all = append(all, m)
		}
	}
	return all, nil
}

// classifyMissing distinguishes "filtered out by a configured ignore
// pattern" from "outside the project tree" for a source path with no
// compiled output, per the ignore-diagnostics testable property: globbing
// with the include-set minus one ignore pattern must surface the path for
// that pattern to be named as the culprit.
func classifyMissing(path, root string, extensions, ignorePatterns []string) error {
	sourcePath := buildset.SourcePath(path)
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || len(rel) >= 2 && rel[:2] == ".."+string(filepath.Separator) {
		return &OutsideProject{Path: sourcePath}
	}

	matched, err := globExtensions(root, extensions)
	if err != nil {
		return &OutsideProject{Path: sourcePath}
	}
	relSlash := filepath.ToSlash(rel)
	present := false
	for _, m := range matched {
		if m == relSlash {
			present = true
			break
		}
	}
	if !present {
		return &OutsideProject{Path: sourcePath}
	}

	allPatterns := append(append([]string{}, alwaysIgnored...), ignorePatterns...)
	for _, pattern := range allPatterns {
		gi := ignore.CompileIgnoreLines(pattern)
		if gi.MatchesPath(relSlash) {
			return &MissingDestination{Path: sourcePath, IgnorePattern: pattern}
		}
	}
	return &OutsideProject{Path: sourcePath}
}

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
	"fmt"
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// loaderFor picks the esbuild loader for a source path's extension. Files
// with no recognized extension are treated as plain JS.
func loaderFor(path string) api.Loader {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tsx":
		return api.LoaderTSX
	case ".ts", ".mts", ".cts":
		return api.LoaderTS
	case ".jsx":
		return api.LoaderJSX
	default:
		return api.LoaderJS
	}
}

// esbuildTransform compiles source to CommonJS with an inline source map, as
// the staging directory format the child's loader hook expects. Import
// helpers are inlined rather than pulled from tslib, since the staged output
// has no node_modules resolution of its own to find it with.
func esbuildTransform(source []byte, sourcePath string) (string, error) {
	result := api.Transform(string(source), api.TransformOptions{
		Loader:      loaderFor(sourcePath),
		Format:      api.FormatCommonJS,
		Sourcemap:   api.SourceMapInline,
		Sourcefile:  sourcePath,
		TsconfigRaw: `{"compilerOptions":{"importHelpers":false}}`,
	})

	if len(result.Errors) > 0 {
		var b strings.Builder
		for _, msg := range result.Errors {
			fmt.Fprintf(&b, "%s\n", msg.Text)
		}
		return "", fmt.Errorf("%s", strings.TrimSuffix(b.String(), "\n"))
	}

	return string(result.Code), nil
}

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

	"github.com/go-tsrun/tsrun/buildset"
)

// CompileError reports that esbuild failed to transform a specific file.
// Not fatal to the parent: the caller surfaces it to whoever asked for the
// compile.
type CompileError struct {
	Path buildset.SourcePath
	Err  error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compile %s: %v", e.Path, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

// MissingDestination reports that a requested file has no compiled output
// because it was filtered out by a configured ignore pattern.
type MissingDestination struct {
	Path          buildset.SourcePath
	IgnorePattern string
}

func (e *MissingDestination) Error() string {
	return fmt.Sprintf("%s is ignored by pattern %q", e.Path, e.IgnorePattern)
}

// OutsideProject reports that a requested file sits outside the group root
// it was resolved against, or matches no configured ignore pattern yet still
// yields no candidate output (the file genuinely isn't part of the project).
type OutsideProject struct {
	Path buildset.SourcePath
}

func (e *OutsideProject) Error() string {
	return fmt.Sprintf("%s is outside the project tree", e.Path)
}

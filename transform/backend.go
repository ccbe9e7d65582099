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

// Package transform implements the two transpiler backends and the ignore /
// enumeration logic that decides what belongs to a build group. Both
// backends populate the same buildset.BuildSet; callers depend on the
// Backend contract, never on a concrete type, so the boot-time choice
// between them is a single switch with no conditionals anywhere else.
package transform

import "github.com/go-tsrun/tsrun/buildset"

// Backend is the capability set a compile coordinator drives. Both the
// group-build and per-file implementations satisfy it identically.
type Backend interface {
	// Compile ensures sourcePath and its group peers have current compiled
	// output available, and returns the group.
	Compile(path buildset.SourcePath) (*buildset.BuildGroup, error)

	// FileGroup returns the in-memory output bodies for every file of the
	// group containing path.
	FileGroup(path buildset.SourcePath) (map[buildset.SourcePath]string, error)

	// InvalidateBuildSet drops all cached groups.
	InvalidateBuildSet()

	// Rebuild re-runs compilation for every group currently in the
	// build-set, producing fresh outputs.
	Rebuild() error
}

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

// Package coordinator resolves a requested source path to its build group,
// ensures it is built, and returns output. It is a thin owner around
// whichever transform.Backend was chosen at boot; the IPC server and reload
// controller depend on this package's narrow Coordinator type rather than on
// transform.Backend directly, so neither has to know which backend is live.
package coordinator

import "github.com/go-tsrun/tsrun/buildset"

// Backend is the subset of transform.Backend the coordinator drives. Defined
// locally (rather than importing transform.Backend) to keep this package's
// dependency surface to the buildset types alone.
type Backend interface {
	Compile(path buildset.SourcePath) (*buildset.BuildGroup, error)
	FileGroup(path buildset.SourcePath) (map[buildset.SourcePath]string, error)
	InvalidateBuildSet()
	Rebuild() error
}

// Coordinator owns one backend (group-build or per-file, chosen at boot)
// and exposes the §4.1 contract to the rest of the process.
type Coordinator struct {
	backend Backend
}

// New wraps backend in a Coordinator.
func New(backend Backend) *Coordinator {
	return &Coordinator{backend: backend}
}

// Compile ensures path's group has current compiled output and returns it.
func (c *Coordinator) Compile(path buildset.SourcePath) (*buildset.BuildGroup, error) {
	return c.backend.Compile(path)
}

// FileGroup returns every file of path's group as source path to output
// code.
func (c *Coordinator) FileGroup(path buildset.SourcePath) (map[buildset.SourcePath]string, error) {
	return c.backend.FileGroup(path)
}

// InvalidateBuildSet drops all cached groups.
func (c *Coordinator) InvalidateBuildSet() {
	c.backend.InvalidateBuildSet()
}

// Rebuild re-runs compilation for every group currently cached.
func (c *Coordinator) Rebuild() error {
	return c.backend.Rebuild()
}

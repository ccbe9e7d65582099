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
	"sync"

	"github.com/go-tsrun/tsrun/buildset"
	"github.com/go-tsrun/tsrun/internal/platform"
)

// PerFileBackend skips group enumeration: it transforms exactly the
// requested file into memory and records it as a single-file group keyed by
// the file's own GroupRoot. Later references to sibling files extend that
// group's file set by accretion rather than a batch re-enumeration.
type PerFileBackend struct {
	mu sync.Mutex
	bs *buildset.BuildSet
	fs platform.FileSystem
}

// NewPerFileBackend returns the --swc backend: no staging directory, no
// disk writes, output lives only in the build set.
func NewPerFileBackend(fs platform.FileSystem) *PerFileBackend {
	return &PerFileBackend{bs: buildset.New(), fs: fs}
}

func (b *PerFileBackend) BuildSet() *buildset.BuildSet { return b.bs }

func (b *PerFileBackend) Compile(path buildset.SourcePath) (*buildset.BuildGroup, error) {
	root := nearestPackageRoot(path)

	b.mu.Lock()
	defer b.mu.Unlock()

	if cf, ok := b.bs.Get(path); ok {
		return b.bs.Group(cf.GroupRoot), nil
	}

	source, err := b.fs.ReadFile(string(path))
	if err != nil {
		return nil, &OutsideProject{Path: path}
	}

	code, err := esbuildTransform(source, string(path))
	if err != nil {
		return nil, &CompileError{Path: path, Err: err}
	}

	cf := &buildset.CompiledFile{SourcePath: path, GroupRoot: root, OutputCode: code}
	if err := b.bs.Put(cf); err != nil {
		return nil, err
	}
	return b.bs.Group(root), nil
}

func (b *PerFileBackend) FileGroup(path buildset.SourcePath) (map[buildset.SourcePath]string, error) {
	group, err := b.Compile(path)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[buildset.SourcePath]string, len(group.Files))
	for p, cf := range group.Files {
		out[p] = cf.OutputCode
	}
	return out, nil
}

func (b *PerFileBackend) InvalidateBuildSet() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bs.InvalidateAll()
}

// Rebuild re-transforms every file currently cached, since accretive groups
// have no separate enumeration step to re-run.
func (b *PerFileBackend) Rebuild() error {
	b.mu.Lock()
	roots := b.bs.Roots()
	b.mu.Unlock()

	for _, root := range roots {
		b.mu.Lock()
		group := b.bs.Group(root)
		if group == nil {
			b.mu.Unlock()
			continue
		}
		paths := make([]buildset.SourcePath, 0, len(group.Files))
		for p := range group.Files {
			paths = append(paths, p)
		}
		b.mu.Unlock()

		for _, p := range paths {
			source, err := b.fs.ReadFile(string(p))
			if err != nil {
				return &CompileError{Path: p, Err: err}
			}
			code, err := esbuildTransform(source, string(p))
			if err != nil {
				return &CompileError{Path: p, Err: err}
			}
			b.mu.Lock()
			err = b.bs.Put(&buildset.CompiledFile{SourcePath: p, GroupRoot: root, OutputCode: code})
			b.mu.Unlock()
			if err != nil {
				return err
			}
		}
	}
	return nil
}

var _ Backend = (*GroupBuildBackend)(nil)
var _ Backend = (*PerFileBackend)(nil)

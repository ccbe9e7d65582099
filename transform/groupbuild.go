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
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/go-tsrun/tsrun/buildset"
	"github.com/go-tsrun/tsrun/config"
	"github.com/go-tsrun/tsrun/internal/logging"
	"github.com/go-tsrun/tsrun/internal/platform"
)

// GroupBuildBackend pre-builds an entire package root's files in one batch
// on first reference, then serves cached output and recompiles only the
// touched file on later references. Output is staged to disk; the staging
// directory is the backend's write-through cache, not memory.
type GroupBuildBackend struct {
	mu       sync.Mutex
	bs       *buildset.BuildSet
	stageDir string
	fs       platform.FileSystem
	log      logging.Logger

	mtimes  map[buildset.SourcePath]time.Time
	configs map[buildset.GroupRoot]config.ProjectConfig
}

// NewGroupBuildBackend returns a backend that stages compiled output under
// stageDir.
func NewGroupBuildBackend(stageDir string, fs platform.FileSystem, log logging.Logger) *GroupBuildBackend {
	return &GroupBuildBackend{
		bs:       buildset.New(),
		stageDir: stageDir,
		fs:       fs,
		log:      log,
		mtimes:   make(map[buildset.SourcePath]time.Time),
		configs:  make(map[buildset.GroupRoot]config.ProjectConfig),
	}
}

// BuildSet exposes the underlying cache for callers (such as this package's
// tests) that need to inspect it directly. The reload controller does not use
// it; it goes through InvalidateBuildSet and Rebuild.
func (b *GroupBuildBackend) BuildSet() *buildset.BuildSet { return b.bs }

func (b *GroupBuildBackend) Compile(path buildset.SourcePath) (*buildset.BuildGroup, error) {
	root := nearestPackageRoot(path)

	b.mu.Lock()
	defer b.mu.Unlock()

	group := b.bs.Group(root)
	if group == nil {
		if err := b.buildGroupLocked(root); err != nil {
			return nil, err
		}
		group = b.bs.Group(root)
	}

	if _, ok := group.Files[path]; !ok {
		cfg := b.configFor(root)
		return nil, classifyMissing(string(path), string(root), cfg.ExtensionsOrDefault(), cfg.Ignore)
	}

	if b.isStaleLocked(path) {
		if err := b.compileOneLocked(root, path); err != nil {
			return nil, err
		}
	}
	return b.bs.Group(root), nil
}

func (b *GroupBuildBackend) FileGroup(path buildset.SourcePath) (map[buildset.SourcePath]string, error) {
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

func (b *GroupBuildBackend) InvalidateBuildSet() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bs.InvalidateAll()
	b.mtimes = make(map[buildset.SourcePath]time.Time)
}

func (b *GroupBuildBackend) Rebuild() error {
	b.mu.Lock()
	roots := b.bs.Roots()
	b.mu.Unlock()

	for _, root := range roots {
		b.mu.Lock()
		err := b.buildGroupLocked(root)
		b.mu.Unlock()
		if err != nil {
			return err
		}
	}
	return nil
}

func (b *GroupBuildBackend) configFor(root buildset.GroupRoot) config.ProjectConfig {
	if cfg, ok := b.configs[root]; ok {
		return cfg
	}
	cfg, err := config.Load(string(root))
	if err != nil {
		b.log.Warning("reading project config for %s: %v", root, err)
	}
	b.configs[root] = cfg
	return cfg
}

// buildGroupLocked enumerates every candidate file under root and transforms
// them in parallel. Must be called with b.mu held.
func (b *GroupBuildBackend) buildGroupLocked(root buildset.GroupRoot) error {
	cfg := b.configFor(root)
	ignorePatterns := append(append([]string{}, alwaysIgnored...), cfg.Ignore...)

	files, err := candidateFiles(string(root), cfg.ExtensionsOrDefault(), ignorePatterns)
	if err != nil {
		return fmt.Errorf("enumerate %s: %w", root, err)
	}

	type result struct {
		path buildset.SourcePath
		cf   *buildset.CompiledFile
		err  error
	}

	sem := make(chan struct{}, max(runtime.NumCPU(), 1))
	results := make(chan result, len(files))
	var wg sync.WaitGroup

	for _, f := range files {
		wg.Add(1)
		go func(f string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			cf, err := b.compileFile(root, buildset.SourcePath(f))
			results <- result{path: buildset.SourcePath(f), cf: cf, err: err}
		}(f)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var firstErr error
	for r := range results {
		if r.err != nil {
			if firstErr == nil {
				firstErr = &CompileError{Path: r.path, Err: r.err}
			}
			continue
		}
		if err := b.bs.Put(r.cf); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		b.mtimes[r.path] = b.mtimeOf(r.path)
	}
	return firstErr
}

func (b *GroupBuildBackend) compileOneLocked(root buildset.GroupRoot, path buildset.SourcePath) error {
	cf, err := b.compileFile(root, path)
	if err != nil {
		return &CompileError{Path: path, Err: err}
	}
	if err := b.bs.Put(cf); err != nil {
		return err
	}
	b.mtimes[path] = b.mtimeOf(path)
	return nil
}

// compileFile transforms one source file and stages its output to disk.
func (b *GroupBuildBackend) compileFile(root buildset.GroupRoot, path buildset.SourcePath) (*buildset.CompiledFile, error) {
	source, err := b.fs.ReadFile(string(path))
	if err != nil {
		return nil, err
	}

	code, err := esbuildTransform(source, string(path))
	if err != nil {
		return nil, err
	}

	dest, err := b.stagedPath(root, path)
	if err != nil {
		return nil, err
	}
	if err := b.fs.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return nil, err
	}
	if err := b.fs.WriteFileAtomic(dest, []byte(code), 0o644); err != nil {
		return nil, err
	}

	return &buildset.CompiledFile{
		SourcePath: path,
		GroupRoot:  root,
		OutputCode: code,
	}, nil
}

// stagedPath mirrors the relative path from root under a per-root
// subdirectory of the stage, with a uniform .js extension, so two build
// groups can never collide on the same staged filename.
func (b *GroupBuildBackend) stagedPath(root buildset.GroupRoot, path buildset.SourcePath) (string, error) {
	rel, err := filepath.Rel(string(root), string(path))
	if err != nil {
		return "", err
	}
	ext := filepath.Ext(rel)
	rel = rel[:len(rel)-len(ext)] + ".js"
	return filepath.Join(b.stageDir, rootDirName(root), rel), nil
}

func rootDirName(root buildset.GroupRoot) string {
	sum := sha1.Sum([]byte(root))
	return hex.EncodeToString(sum[:8])
}

func (b *GroupBuildBackend) isStaleLocked(path buildset.SourcePath) bool {
	recorded, ok := b.mtimes[path]
	if !ok {
		return true
	}
	return b.mtimeOf(path).After(recorded)
}

func (b *GroupBuildBackend) mtimeOf(path buildset.SourcePath) time.Time {
	info, err := b.fs.Stat(string(path))
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// NearestPackageRoot exposes nearestPackageRoot for callers outside this
// package (the project session uses it to resolve a config root before a
// backend has been built).
func NearestPackageRoot(path buildset.SourcePath) buildset.GroupRoot {
	return nearestPackageRoot(path)
}

// nearestPackageRoot walks upward from path's directory looking for a
// package.json. If none is found before the filesystem root, path's own
// directory is used as the group root: a source file with no manifest above
// it still forms a single-file build group rather than failing outright.
func nearestPackageRoot(path buildset.SourcePath) buildset.GroupRoot {
	dir := filepath.Dir(string(path))
	start := dir
	for {
		if _, err := os.Stat(filepath.Join(dir, "package.json")); err == nil {
			return buildset.GroupRoot(dir)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return buildset.GroupRoot(start)
		}
		dir = parent
	}
}

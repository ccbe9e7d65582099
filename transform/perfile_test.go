package transform

import (
	"path/filepath"
	"testing"

	"github.com/go-tsrun/tsrun/buildset"
	"github.com/go-tsrun/tsrun/internal/platform"
)

func TestPerFileBackendAccretesGroup(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "package.json"), `{}`)
	writeFile(t, filepath.Join(root, "a.ts"), `export const a = 1;`)
	writeFile(t, filepath.Join(root, "b.ts"), `export const b = 2;`)

	backend := NewPerFileBackend(platform.NewOSFileSystem())

	a := buildset.SourcePath(filepath.Join(root, "a.ts"))
	b := buildset.SourcePath(filepath.Join(root, "b.ts"))

	if _, err := backend.Compile(a); err != nil {
		t.Fatalf("Compile a: %v", err)
	}
	groupAfterA, err := backend.FileGroup(a)
	if err != nil {
		t.Fatalf("FileGroup: %v", err)
	}
	if len(groupAfterA) != 1 {
		t.Fatalf("expected 1 file after compiling a, got %d", len(groupAfterA))
	}

	if _, err := backend.Compile(b); err != nil {
		t.Fatalf("Compile b: %v", err)
	}
	groupAfterB, err := backend.FileGroup(a)
	if err != nil {
		t.Fatalf("FileGroup: %v", err)
	}
	if len(groupAfterB) != 2 {
		t.Fatalf("expected group to accrete to 2 files, got %d", len(groupAfterB))
	}
}

func TestPerFileBackendSkipsEnumeration(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "package.json"), `{}`)
	writeFile(t, filepath.Join(root, "a.ts"), `export const a = 1;`)
	writeFile(t, filepath.Join(root, "unrelated.ts"), `export const u = 1;`)

	backend := NewPerFileBackend(platform.NewOSFileSystem())
	a := buildset.SourcePath(filepath.Join(root, "a.ts"))

	group, err := backend.FileGroup(a)
	if err != nil {
		t.Fatalf("FileGroup: %v", err)
	}
	if len(group) != 1 {
		t.Fatalf("expected only the requested file, got %d", len(group))
	}
}

package transform

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestCandidateFilesFiltersIgnoredAndNodeModules(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "src", "index.ts"), "export const a = 1;")
	writeFile(t, filepath.Join(root, "src", "generated", "schema.ts"), "export const b = 2;")
	writeFile(t, filepath.Join(root, "node_modules", "dep", "index.ts"), "module.exports = {};")
	writeFile(t, filepath.Join(root, "types.d.ts"), "export type X = number;")

	files, err := candidateFiles(root, []string{".ts"}, append(append([]string{}, alwaysIgnored...), "**/generated/**"))
	if err != nil {
		t.Fatalf("candidateFiles: %v", err)
	}

	want := filepath.Join(root, "src", "index.ts")
	if len(files) != 1 || files[0] != want {
		t.Errorf("expected only %s, got %v", want, files)
	}
}

func TestClassifyMissingNamesResponsiblePattern(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "src", "generated", "schema.ts"), "export const b = 2;")

	err := classifyMissing(filepath.Join(root, "src", "generated", "schema.ts"), root, []string{".ts"}, []string{"**/generated/**"})

	var missing *MissingDestination
	if !asMissingDestination(err, &missing) {
		t.Fatalf("expected MissingDestination, got %v (%T)", err, err)
	}
	if missing.IgnorePattern != "**/generated/**" {
		t.Errorf("expected pattern **/generated/**, got %q", missing.IgnorePattern)
	}
}

// TestClassifyMissingAmongOverlappingPatterns configures two ignore patterns
// where only one matches the candidate file, and checks the returned pattern
// against spec.md's ignore-diagnostics property directly: removing it alone
// from the configured set must restore the file, and removing it plus every
// other ignore pattern must restore it too.
func TestClassifyMissingAmongOverlappingPatterns(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "src", "fixtures", "widget.ts")
	writeFile(t, target, "export const widget = 1;")
	writeFile(t, filepath.Join(root, "src", "widget.snap.ts"), "export const snap = 1;")

	ignorePatterns := []string{"**/fixtures/**", "**/*.snap.ts"}

	err := classifyMissing(target, root, []string{".ts"}, ignorePatterns)

	var missing *MissingDestination
	if !asMissingDestination(err, &missing) {
		t.Fatalf("expected MissingDestination, got %v (%T)", err, err)
	}
	if missing.IgnorePattern != "**/fixtures/**" {
		t.Fatalf("expected pattern **/fixtures/**, got %q", missing.IgnorePattern)
	}

	rel, err2 := filepath.Rel(root, target)
	if err2 != nil {
		t.Fatalf("Rel: %v", err2)
	}
	relSlash := filepath.ToSlash(rel)

	full, err2 := candidateFiles(root, []string{".ts"}, append(append([]string{}, alwaysIgnored...), ignorePatterns...))
	if err2 != nil {
		t.Fatalf("candidateFiles (full): %v", err2)
	}
	if containsRelPath(full, root, relSlash) {
		t.Fatalf("expected %s to be filtered out by the full ignore set, got %v", relSlash, full)
	}

	withoutResponsible := []string{"**/*.snap.ts"}
	restored, err2 := candidateFiles(root, []string{".ts"}, withoutResponsible)
	if err2 != nil {
		t.Fatalf("candidateFiles (minus responsible pattern): %v", err2)
	}
	if !containsRelPath(restored, root, relSlash) {
		t.Errorf("removing the responsible pattern alone should restore %s, got %v", relSlash, restored)
	}

	unfiltered, err2 := candidateFiles(root, []string{".ts"}, nil)
	if err2 != nil {
		t.Fatalf("candidateFiles (no ignores): %v", err2)
	}
	if !containsRelPath(unfiltered, root, relSlash) {
		t.Errorf("removing every ignore pattern should restore %s, got %v", relSlash, unfiltered)
	}
}

func containsRelPath(files []string, root, relSlash string) bool {
	want := filepath.Join(root, filepath.FromSlash(relSlash))
	for _, f := range files {
		if f == want {
			return true
		}
	}
	return false
}

func TestClassifyMissingOutsideProject(t *testing.T) {
	root := t.TempDir()
	other := t.TempDir()
	writeFile(t, filepath.Join(other, "index.ts"), "export const a = 1;")

	err := classifyMissing(filepath.Join(other, "index.ts"), root, []string{".ts"}, nil)

	var outside *OutsideProject
	if !asOutsideProject(err, &outside) {
		t.Fatalf("expected OutsideProject, got %v (%T)", err, err)
	}
}

func asMissingDestination(err error, target **MissingDestination) bool {
	md, ok := err.(*MissingDestination)
	if !ok {
		return false
	}
	*target = md
	return true
}

func asOutsideProject(err error, target **OutsideProject) bool {
	op, ok := err.(*OutsideProject)
	if !ok {
		return false
	}
	*target = op
	return true
}

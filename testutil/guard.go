// Package testutil holds the import-boundary guards. Two boundaries matter
// in this module: pkg/domain must not reach into internal packages, and the
// blob layer must not know about the experiment model.
package testutil

import (
	"go/parser"
	"go/token"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// ImportsInternal matches import paths under this module's internal tree.
func ImportsInternal(path string) bool {
	return strings.HasPrefix(path, "experimentcore/internal/")
}

// ImportsDomain matches import paths pointing at the experiment domain model.
func ImportsDomain(path string) bool {
	return path == "experimentcore/pkg/domain" || strings.HasPrefix(path, "experimentcore/pkg/domain/")
}

// AssertNoDirectImports parses every non-test .go file in dir and fails the
// test when any import satisfies the forbidden predicate.
func AssertNoDirectImports(t testing.TB, dir string, forbidden func(importPath string) bool, reason string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	fset := token.NewFileSet()
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		file, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.ImportsOnly)
		if err != nil {
			t.Fatalf("parse %s: %v", name, err)
		}
		for _, imp := range file.Imports {
			path := strings.Trim(imp.Path.Value, `"`)
			if forbidden(path) {
				t.Fatalf("%s imports %s (%s)", name, path, reason)
			}
		}
	}
}

// AssertNoTransitiveDependency runs `go list -deps` for the pattern and fails
// the test when any resulting dependency satisfies the forbidden predicate.
func AssertNoTransitiveDependency(t testing.TB, pattern string, forbidden func(path string) bool, reason string) {
	t.Helper()
	out, err := exec.Command("go", "list", "-deps", pattern).CombinedOutput()
	if err != nil {
		t.Fatalf("go list -deps %s: %v\n%s", pattern, err, out)
	}
	for _, line := range strings.Split(string(out), "\n") {
		dep := strings.TrimSpace(line)
		if dep != "" && forbidden(dep) {
			t.Fatalf("transitive dependency on %s (%s)", dep, reason)
		}
	}
}

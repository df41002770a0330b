// Package testsupport holds helpers shared by the package tests: golden
// files, temp files, a recording slog handler and a seeded platform
// database.
package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// UpdateGoldenEnv names the environment variable that rewrites golden files
// instead of comparing against them.
const UpdateGoldenEnv = "UPDATE_GOLDEN"

// GoldenPath is the path of a golden file under testdata/golden.
func GoldenPath(name string) string {
	return filepath.Join("testdata", "golden", name)
}

// CompareWithGolden fails t when actual differs from the golden file at
// path. A missing golden file is created from actual.
func CompareWithGolden(t testing.TB, path string, actual []byte) {
	t.Helper()

	expected, err := os.ReadFile(path)
	switch {
	case os.Getenv(UpdateGoldenEnv) != "" || os.IsNotExist(err):
		t.Logf("writing golden file %s", path)
		writeFile(t, path, actual)
		return
	case err != nil:
		t.Fatalf("read golden file %s: %v", path, err)
	}

	if !bytes.Equal(expected, actual) {
		t.Errorf("output mismatch for %s:\nexpected:\n%s\nactual:\n%s", path, expected, actual)
	}
}

// TempFile writes content to a file in a directory removed when the test
// ends and returns its path.
func TempFile(t testing.TB, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input")
	writeFile(t, path, content)
	return path
}

func writeFile(t testing.TB, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("create directory for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

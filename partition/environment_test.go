package partition

import (
	"path/filepath"
	"testing"
)

// Environment hands f a fresh temp directory and path for a partition
// file.
func Environment(t *testing.T, f func(path string)) {
	t.Helper()
	dir := t.TempDir()
	f(filepath.Join(dir, "t.table"))
}

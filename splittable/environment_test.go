package splittable

import (
	"testing"

	"github.com/fulldump/splittable/rowdef"
)

// Environment hands f a fresh, empty directory to open a table in.
func Environment(t *testing.T, f func(dir string)) {
	t.Helper()
	f(t.TempDir())
}

func testDef() rowdef.RowDef {
	return rowdef.New(8, 4)
}

func row(key, value string) []byte {
	r := make([]byte, 8)
	copy(r[:4], key)
	copy(r[4:], value)
	return r
}

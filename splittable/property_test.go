package splittable

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	. "github.com/fulldump/biff"
)

// Invariant 1: every inserted-and-not-removed key is reported by exactly
// one partition.
func TestUniqueResidency(t *testing.T) {
	Environment(t, func(dir string) {
		table, err := Open(dir, "t", testDef(), Options{SizeLimit: 64})
		AssertNil(err)
		defer table.Close()

		keys := make([]string, 0, 20)
		for i := 0; i < 20; i++ {
			k := fmt.Sprintf("%04d", i)
			_, _ = table.Put(row(k, "VVVV"))
			keys = append(keys, k)
		}

		for _, k := range keys {
			holders := 0
			for _, p := range table.partitions {
				if p.Has([]byte(k)) {
					holders++
				}
			}
			AssertEqual(holders, 1)
		}
	})
}

// Invariant 2: the table's reported size always equals the sum of its
// partitions' sizes.
func TestTotalSizeEqualsSumOfPartitions(t *testing.T) {
	Environment(t, func(dir string) {
		table, err := Open(dir, "t", testDef(), Options{SizeLimit: 64})
		AssertNil(err)
		defer table.Close()

		for i := 0; i < 15; i++ {
			k := fmt.Sprintf("%04d", i)
			_, _ = table.Put(row(k, "VVVV"))
		}

		sum := 0
		for _, p := range table.partitions {
			sum += p.Size()
		}
		AssertEqual(table.Size(), sum)
	})
}

// Invariant 3: put then get returns exactly what was written.
func TestRoundTrip(t *testing.T) {
	Environment(t, func(dir string) {
		table, err := Open(dir, "t", testDef(), Options{})
		AssertNil(err)
		defer table.Close()

		r := row("0001", "AAAA")
		_, err = table.Put(r)
		AssertNil(err)

		got, ok := table.Get([]byte("0001"), true)
		AssertEqual(ok, true)
		AssertEqualJson(got, r)
	})
}

// Invariant 4: replacing the same row twice is idempotent, and the
// second call's reported previous row equals the row itself.
func TestIdempotentReplace(t *testing.T) {
	Environment(t, func(dir string) {
		table, err := Open(dir, "t", testDef(), Options{})
		AssertNil(err)
		defer table.Close()

		r := row("0001", "AAAA")
		_, err = table.Replace(r)
		AssertNil(err)

		prev, err := table.Replace(r)
		AssertNil(err)
		AssertEqualJson(prev, r)

		got, _ := table.Get([]byte("0001"), true)
		AssertEqualJson(got, r)
	})
}

// Invariant 9: smallestKey/largestKey match the row-def key order across
// every partition, not just the active one.
func TestExtremumAcrossPartitions(t *testing.T) {
	Environment(t, func(dir string) {
		table, err := Open(dir, "t", testDef(), Options{SizeLimit: 9})
		AssertNil(err)
		defer table.Close()

		_, _ = table.Put(row("0005", "VVVV"))
		_, _ = table.Put(row("0001", "VVVV"))
		_, _ = table.Put(row("0003", "VVVV"))
		AssertEqual(len(table.partitions) >= 2, true)

		small, ok := table.SmallestKey()
		AssertEqual(ok, true)
		AssertEqual(string(small), "0001")

		large, ok := table.LargestKey()
		AssertEqual(ok, true)
		AssertEqual(string(large), "0005")
	})
}

// Invariant 8: a directory seeded with a legacy-named file opens
// without error and the file becomes readable as a partition.
func TestLegacyFileMigratesAndOpens(t *testing.T) {
	Environment(t, func(dir string) {
		legacyName := "t.200601"
		AssertNil(os.WriteFile(filepath.Join(dir, legacyName), nil, 0644))

		table, err := Open(dir, "t", testDef(), Options{})
		AssertNil(err)
		defer table.Close()

		AssertEqual(len(table.partitions), 1)
		for name := range table.partitions {
			AssertEqual(isModernName("t", name), true)
		}

		_, err = os.Stat(filepath.Join(dir, legacyName))
		AssertEqual(os.IsNotExist(err), true)
	})
}

// Invariant 10: close(); close() is a no-op, already covered in
// splittable_test.go's TestCloseIsIdempotent. Here: clear() on a
// populated directory also leaves a usable, empty table.
func TestClearDeletesExistingPartitions(t *testing.T) {
	Environment(t, func(dir string) {
		table, err := Open(dir, "t", testDef(), Options{})
		AssertNil(err)
		defer table.Close()

		_, _ = table.Put(row("0001", "AAAA"))
		AssertNil(table.Clear())

		AssertEqual(table.Size(), 0)
		AssertEqual(table.Has([]byte("0001")), false)

		entries, err := os.ReadDir(dir)
		AssertNil(err)
		for _, e := range entries {
			AssertEqual(e.Name() == "t.excluded" || isModernName("t", e.Name()), true)
		}
	})
}

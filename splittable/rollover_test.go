package splittable

import (
	"fmt"
	"testing"
	"time"

	. "github.com/fulldump/biff"
)

// S5: a tight size limit and ten distinct keys produce at least two
// partitions, and the active one is the newest by filename timestamp.
func TestSizeRolloverProducesMultiplePartitions(t *testing.T) {
	Environment(t, func(dir string) {
		table, err := Open(dir, "t", testDef(), Options{SizeLimit: 64})
		AssertNil(err)
		defer table.Close()

		for i := 0; i < 10; i++ {
			key := fmt.Sprintf("%04d", i)
			_, err := table.Put(row(key, "VVVV"))
			AssertNil(err)
		}

		AssertEqual(len(table.partitions) >= 2, true)

		newest := table.active
		for name := range table.partitions {
			created, err := parseFilenameTime(table.prefix, name)
			AssertNil(err)
			activeCreated, err := parseFilenameTime(table.prefix, newest)
			AssertNil(err)
			AssertEqual(!created.After(activeCreated), true)
		}
	})
}

// S6: an age limit of effectively zero forces every new key into its own
// partition once enough wall-clock time elapses between writes.
func TestAgeRolloverSeparatesWrites(t *testing.T) {
	Environment(t, func(dir string) {
		table, err := Open(dir, "t", testDef(), Options{AgeLimit: time.Millisecond})
		AssertNil(err)
		defer table.Close()

		_, _ = table.Put(row("0001", "AAAA"))
		firstPartition, _ := table.keeperOf([]byte("0001"))

		time.Sleep(5 * time.Millisecond)

		_, _ = table.Put(row("0002", "BBBB"))
		secondPartition, _ := table.keeperOf([]byte("0002"))

		AssertEqual(firstPartition == secondPartition, false)
	})
}

// Invariant 6: rollover never touches the old partition's file size.
func TestRolloverLeavesOldPartitionUntouched(t *testing.T) {
	Environment(t, func(dir string) {
		table, err := Open(dir, "t", testDef(), Options{SizeLimit: 9})
		AssertNil(err)
		defer table.Close()

		_, _ = table.Put(row("0001", "AAAA"))
		firstName := table.active
		firstPartition := table.partitions[firstName]
		sizeBefore, _ := firstPartition.FileSize()

		_, _ = table.Put(row("0002", "BBBB"))

		AssertEqual(table.active == firstName, false)
		sizeAfter, _ := firstPartition.FileSize()
		AssertEqual(sizeAfter, sizeBefore)
	})
}

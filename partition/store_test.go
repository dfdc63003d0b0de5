package partition

import (
	"os"
	"testing"

	. "github.com/fulldump/biff"

	"github.com/fulldump/splittable/rowdef"
)

func testRowDef() rowdef.RowDef {
	return rowdef.New(8, 4)
}

func row(key string, value string) []byte {
	r := make([]byte, 8)
	copy(r[:4], key)
	copy(r[4:], value)
	return r
}

func TestPutAndGet(t *testing.T) {
	Environment(t, func(path string) {
		def := testRowDef()
		s, err := Open(path, def, OpenOptions{CreateNew: true, UseTailCache: true})
		AssertNil(err)
		defer s.Close()

		inserted, err := s.Put(row("0001", "AAAA"))
		AssertNil(err)
		AssertEqual(inserted, true)

		v, ok := s.Get([]byte("0001"), true)
		AssertEqual(ok, true)
		AssertEqual(string(v), "0001AAAA")
	})
}

func TestPutUpdatesInPlace(t *testing.T) {
	Environment(t, func(path string) {
		def := testRowDef()
		s, err := Open(path, def, OpenOptions{CreateNew: true})
		AssertNil(err)
		defer s.Close()

		_, _ = s.Put(row("0001", "AAAA"))
		inserted, err := s.Put(row("0001", "BBBB"))
		AssertNil(err)
		AssertEqual(inserted, false)
		AssertEqual(s.Size(), 1)

		v, _ := s.Get([]byte("0001"), true)
		AssertEqual(string(v), "0001BBBB")
	})
}

func TestDeleteFreesSlotForReuse(t *testing.T) {
	Environment(t, func(path string) {
		def := testRowDef()
		s, err := Open(path, def, OpenOptions{CreateNew: true})
		AssertNil(err)
		defer s.Close()

		_, _ = s.Put(row("0001", "AAAA"))
		deleted, _ := s.Delete([]byte("0001"))
		AssertEqual(deleted, true)
		AssertEqual(s.Has([]byte("0001")), false)

		_, _ = s.Put(row("0002", "BBBB"))
		AssertEqual(s.Size(), 1)

		// One 9-byte slot (1 status byte + an 8-byte row): the second row
		// reused the freed slot rather than being appended past EOF.
		sizeBefore, _ := s.FileSize()
		AssertEqual(sizeBefore, int64(9))

		// Reopening must reload the same on-disk layout without growing
		// the file.
		_ = s.Close()
		s2, err := Open(path, def, OpenOptions{})
		AssertNil(err)
		defer s2.Close()
		sizeAfter, _ := s2.FileSize()
		AssertEqual(sizeAfter, sizeBefore)
	})
}

func TestReplaceReturnsPrevious(t *testing.T) {
	Environment(t, func(path string) {
		def := testRowDef()
		s, err := Open(path, def, OpenOptions{CreateNew: true})
		AssertNil(err)
		defer s.Close()

		prev, err := s.Replace(row("0001", "AAAA"))
		AssertNil(err)
		AssertNil(prev)

		prev, err = s.Replace(row("0001", "BBBB"))
		AssertNil(err)
		AssertEqual(string(prev), "0001AAAA")
	})
}

func TestSmallestAndLargestKey(t *testing.T) {
	Environment(t, func(path string) {
		def := testRowDef()
		s, err := Open(path, def, OpenOptions{CreateNew: true})
		AssertNil(err)
		defer s.Close()

		_, _ = s.Put(row("0003", "CCCC"))
		_, _ = s.Put(row("0001", "AAAA"))
		_, _ = s.Put(row("0002", "BBBB"))

		small, ok := s.SmallestKey()
		AssertEqual(ok, true)
		AssertEqual(string(small), "0001")

		large, ok := s.LargestKey()
		AssertEqual(ok, true)
		AssertEqual(string(large), "0003")
	})
}

func TestKeysAscendingOrder(t *testing.T) {
	Environment(t, func(path string) {
		def := testRowDef()
		s, err := Open(path, def, OpenOptions{CreateNew: true})
		AssertNil(err)
		defer s.Close()

		_, _ = s.Put(row("0003", "CCCC"))
		_, _ = s.Put(row("0001", "AAAA"))
		_, _ = s.Put(row("0002", "BBBB"))

		it, err := s.Keys(true, nil)
		AssertNil(err)

		var got []string
		for {
			k, ok := it.Next()
			if !ok {
				break
			}
			got = append(got, string(k))
		}
		AssertEqualJson(got, []string{"0001", "0002", "0003"})
	})
}

func TestCapacityExceededFallback(t *testing.T) {
	Environment(t, func(path string) {
		def := testRowDef()

		// Seed a non-empty file first: the budget check that matters here
		// runs against an on-disk row count, so an empty, just-created file
		// would never trip it.
		seed, err := Open(path, def, OpenOptions{CreateNew: true})
		AssertNil(err)
		_, err = seed.Put(row("0001", "AAAA"))
		AssertNil(err)
		AssertNil(seed.Close())

		// A budget of 1 byte can never fit even a single index entry, so
		// the first attempt must report CapacityExceeded and
		// OpenWithFallback must still succeed by disabling the tail
		// cache.
		_, err = Open(path, def, OpenOptions{UseTailCache: true, MaxRAMBudget: 1})
		AssertEqual(err, ErrCapacityExceeded)

		s, err := OpenWithFallback(path, def, OpenOptions{
			UseTailCache: true,
			MaxRAMBudget: 1,
		})
		AssertNil(err)
		defer s.Close()
		AssertEqual(s.Has([]byte("0001")), true)
	})
}

func TestIteratorCloneIsIndependent(t *testing.T) {
	Environment(t, func(path string) {
		def := testRowDef()
		s, err := Open(path, def, OpenOptions{CreateNew: true})
		AssertNil(err)
		defer s.Close()

		_, _ = s.Put(row("0001", "AAAA"))
		_, _ = s.Put(row("0002", "BBBB"))

		it, _ := s.Keys(true, nil)
		first, _ := it.Next()
		AssertEqual(string(first), "0001")

		clone := it.Clone()

		a, _ := it.Next()
		b, _ := clone.Next()
		AssertEqual(string(a), string(b))
	})
}

func TestAddUniqueSkipsExistenceCheck(t *testing.T) {
	Environment(t, func(path string) {
		def := testRowDef()
		s, err := Open(path, def, OpenOptions{CreateNew: true})
		AssertNil(err)
		defer s.Close()

		AssertNil(s.AddUnique(row("0001", "AAAA")))
		AssertEqual(s.Has([]byte("0001")), true)
		AssertEqual(s.Size(), 1)
	})
}

func TestRemoveOnePicksAscendingFirst(t *testing.T) {
	Environment(t, func(path string) {
		def := testRowDef()
		s, err := Open(path, def, OpenOptions{CreateNew: true})
		AssertNil(err)
		defer s.Close()

		_, _ = s.Put(row("0002", "BBBB"))
		_, _ = s.Put(row("0001", "AAAA"))

		removed, err := s.RemoveOne()
		AssertNil(err)
		AssertEqual(string(removed), "0001AAAA")
		AssertEqual(s.Size(), 1)
	})
}

func TestTopReturnsAscendingPrefix(t *testing.T) {
	Environment(t, func(path string) {
		def := testRowDef()
		s, err := Open(path, def, OpenOptions{CreateNew: true})
		AssertNil(err)
		defer s.Close()

		_, _ = s.Put(row("0003", "CCCC"))
		_, _ = s.Put(row("0001", "AAAA"))
		_, _ = s.Put(row("0002", "BBBB"))

		top, err := s.Top(2)
		AssertNil(err)
		AssertEqualJson(top, [][]byte{row("0001", "AAAA"), row("0002", "BBBB")})
	})
}

// WarmUp pre-populates the tail cache; a Get after WarmUp must return the
// same bytes it would have read straight from disk.
func TestWarmUpPopulatesTailCache(t *testing.T) {
	Environment(t, func(path string) {
		def := testRowDef()
		s, err := Open(path, def, OpenOptions{CreateNew: true, UseTailCache: true})
		AssertNil(err)
		defer s.Close()

		_, _ = s.Put(row("0001", "AAAA"))
		s.WarmUp()

		v, ok := s.Get([]byte("0001"), false)
		AssertEqual(ok, true)
		AssertEqual(string(v), "0001AAAA")
	})
}

// Operations on a closed store degrade per spec.md's Closed taxonomy
// entry: reads return their zero value, writes return ErrClosed.
func TestOperationsAfterCloseAreDefined(t *testing.T) {
	Environment(t, func(path string) {
		def := testRowDef()
		s, err := Open(path, def, OpenOptions{CreateNew: true})
		AssertNil(err)

		_, _ = s.Put(row("0001", "AAAA"))
		AssertNil(s.Close())

		AssertEqual(s.Has([]byte("0001")), false)
		_, ok := s.Get([]byte("0001"), true)
		AssertEqual(ok, false)

		_, err = s.Put(row("0002", "BBBB"))
		AssertEqual(err, ErrClosed)

		_, err = s.Replace(row("0002", "BBBB"))
		AssertEqual(err, ErrClosed)

		err = s.AddUnique(row("0002", "BBBB"))
		AssertEqual(err, ErrClosed)

		_, err = s.Delete([]byte("0001"))
		AssertEqual(err, ErrClosed)

		_, err = s.Remove([]byte("0001"))
		AssertEqual(err, ErrClosed)
	})
}

func TestDeleteOnExitRemovesFile(t *testing.T) {
	Environment(t, func(path string) {
		def := testRowDef()
		s, err := Open(path, def, OpenOptions{CreateNew: true})
		AssertNil(err)

		_, _ = s.Put(row("0001", "AAAA"))
		s.DeleteOnExit()
		AssertNil(s.Close())

		_, err = os.Stat(path)
		AssertEqual(os.IsNotExist(err), true)
	})
}

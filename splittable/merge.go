package splittable

import (
	"fmt"

	"github.com/fulldump/splittable/partition"
)

// collectCursors opens one per-partition cursor via open, across a
// snapshot of the registered partitions taken under the registry
// monitor and released before any cursor is opened.
func (t *SplitTable) collectCursors(open func(partition.Store) (partition.CloneableIterator[[]byte], error)) ([]partition.CloneableIterator[[]byte], error) {
	snap := t.snapshotPartitions()
	cursors := make([]partition.CloneableIterator[[]byte], 0, len(snap))
	for _, p := range snap {
		c, err := open(p)
		if err != nil {
			return nil, fmt.Errorf("%w: partition cursor: %v", ErrIOError, err)
		}
		cursors = append(cursors, c)
	}
	return cursors, nil
}

// Keys returns a k-way merged, table-wide ordered lazy sequence of
// primary keys, grounded on MergeIterator.cascade's simple-merge variant:
// at each step it pulls the smallest (or largest, descending) pending
// head across every partition cursor.
func (t *SplitTable) Keys(ascending bool, startKey []byte) (partition.CloneableIterator[[]byte], error) {
	release, alive := t.enter()
	defer release()
	if !alive {
		return emptyIterator[[]byte]{}, nil
	}

	cursors, err := t.collectCursors(func(p partition.Store) (partition.CloneableIterator[[]byte], error) {
		return p.Keys(ascending, startKey)
	})
	if err != nil {
		return nil, err
	}
	return newMergeIterator(cursors, orderFor(t.def.KeyOrder, ascending)), nil
}

// Rows is Keys's full-row counterpart: the merge order compares whole
// rows (primary key first, then full byte content) via rowdef.EntryLess.
func (t *SplitTable) Rows(ascending bool, startKey []byte) (partition.CloneableIterator[[]byte], error) {
	release, alive := t.enter()
	defer release()
	if !alive {
		return emptyIterator[[]byte]{}, nil
	}

	cursors, err := t.collectCursors(func(p partition.Store) (partition.CloneableIterator[[]byte], error) {
		return p.Rows(ascending, startKey)
	})
	if err != nil {
		return nil, err
	}
	return newMergeIterator(cursors, orderFor(t.def.EntryLess, ascending)), nil
}

func orderFor(less func(a, b []byte) bool, ascending bool) func(a, b []byte) bool {
	if ascending {
		return less
	}
	return func(a, b []byte) bool { return less(b, a) }
}

// Iterator returns an unordered, table-wide sequence of rows, grounded on
// StackIterator.stack: it concatenates each partition's own ascending row
// order in registry iteration order rather than merging them, so it's
// cheaper than Rows when callers don't need a global order. A failure
// opening any one partition's cursor is surfaced rather than silently
// producing a partial sequence.
func (t *SplitTable) Iterator() (partition.CloneableIterator[[]byte], error) {
	release, alive := t.enter()
	defer release()
	if !alive {
		return emptyIterator[[]byte]{}, nil
	}

	cursors, err := t.collectCursors(func(p partition.Store) (partition.CloneableIterator[[]byte], error) {
		return p.Rows(true, nil)
	})
	if err != nil {
		return nil, err
	}
	return newStackIterator(cursors), nil
}

// mergeIterator is a k-way ordered merge over a fixed set of cursors,
// each already positioned (via Next) one element ahead of what it has
// emitted so far. Cloning clones every underlying cursor plus the
// buffered heads, so the two resulting iterators advance independently.
type mergeIterator struct {
	cursors []partition.CloneableIterator[[]byte]
	heads   [][]byte
	has     []bool
	less    func(a, b []byte) bool
}

func newMergeIterator(cursors []partition.CloneableIterator[[]byte], less func(a, b []byte) bool) *mergeIterator {
	m := &mergeIterator{
		cursors: cursors,
		heads:   make([][]byte, len(cursors)),
		has:     make([]bool, len(cursors)),
		less:    less,
	}
	for i, c := range cursors {
		m.heads[i], m.has[i] = c.Next()
	}
	return m
}

func (m *mergeIterator) Next() ([]byte, bool) {
	best := -1
	for i := range m.cursors {
		if !m.has[i] {
			continue
		}
		if best == -1 || m.less(m.heads[i], m.heads[best]) {
			best = i
		}
	}
	if best == -1 {
		return nil, false
	}
	v := m.heads[best]
	m.heads[best], m.has[best] = m.cursors[best].Next()
	return v, true
}

func (m *mergeIterator) Clone() partition.CloneableIterator[[]byte] {
	clonedCursors := make([]partition.CloneableIterator[[]byte], len(m.cursors))
	for i, c := range m.cursors {
		clonedCursors[i] = c.Clone()
	}
	return &mergeIterator{
		cursors: clonedCursors,
		heads:   append([][]byte{}, m.heads...),
		has:     append([]bool{}, m.has...),
		less:    m.less,
	}
}

// stackIterator concatenates cursors in order, with no merge step.
type stackIterator struct {
	cursors []partition.CloneableIterator[[]byte]
	idx     int
}

func newStackIterator(cursors []partition.CloneableIterator[[]byte]) *stackIterator {
	return &stackIterator{cursors: cursors}
}

func (s *stackIterator) Next() ([]byte, bool) {
	for s.idx < len(s.cursors) {
		if v, ok := s.cursors[s.idx].Next(); ok {
			return v, true
		}
		s.idx++
	}
	return nil, false
}

func (s *stackIterator) Clone() partition.CloneableIterator[[]byte] {
	cloned := make([]partition.CloneableIterator[[]byte], len(s.cursors))
	for i, c := range s.cursors {
		cloned[i] = c.Clone()
	}
	return &stackIterator{cursors: cloned, idx: s.idx}
}

// emptyIterator is returned in place of a real cursor once the table has
// been closed.
type emptyIterator[T any] struct{}

func (emptyIterator[T]) Next() (T, bool) {
	var zero T
	return zero, false
}

func (emptyIterator[T]) Clone() partition.CloneableIterator[T] {
	return emptyIterator[T]{}
}

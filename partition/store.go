// Package partition implements the Partition Store contract consumed by
// the splittable package. It is a reference, on-disk, fixed-row-schema
// ordered table: every row is a fixed number of bytes whose prefix is the
// primary key, stored in fixed-size slots so that put/replace/delete are
// in-place operations.
//
// splittable never imports the concrete store type below directly; it
// only depends on the Store interface, keeping that boundary real in the
// package graph rather than just in documentation.
package partition

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/google/btree"

	"github.com/fulldump/splittable/rowdef"
)

const statusFree = 0
const statusOccupied = 1

// perRowOverheadBytes approximates the in-memory footprint of one btree
// index entry: the key bytes themselves plus node/pointer overhead. It is
// a rough constant, good enough for the predicted-RAM ordering that the
// Warm-up Orchestrator uses to decide which partitions to open first.
const perRowOverheadBytes = 48

// Store is the contract a split table dispatches to.
type Store interface {
	Has(key []byte) bool
	Get(key []byte, forceCopy bool) ([]byte, bool)
	Put(row []byte) (bool, error)
	Replace(row []byte) ([]byte, error)
	AddUnique(row []byte) error
	Delete(key []byte) (bool, error)
	Remove(key []byte) ([]byte, error)
	RemoveOne() ([]byte, error)
	Top(n int) ([][]byte, error)
	RemoveDoubles() ([][][]byte, error)

	Size() int
	IsEmpty() bool
	Mem() int64
	WriteBufferSize() int
	SmallestKey() ([]byte, bool)
	LargestKey() ([]byte, bool)

	Keys(ascending bool, startKey []byte) (CloneableIterator[[]byte], error)
	Rows(ascending bool, startKey []byte) (CloneableIterator[[]byte], error)

	// WarmUp pre-populates the tail cache (if enabled) by reading every
	// row once. It is idempotent and safe to call concurrently with
	// ongoing reads; Get falls back to a direct disk read on a cache
	// miss regardless of whether WarmUp has run.
	WarmUp()

	Close() error
	DeleteOnExit()
	Filename() string
	FileSize() (int64, error)
}

// OpenOptions mirrors the constructor parameters of the Partition Store's
// open(...) contract.
type OpenOptions struct {
	BufferSize      int64 // informational; OS write buffering hint
	InitialCapacity int
	UseTailCache    bool
	ExceedLarge     bool
	CreateNew       bool

	// LowMemory is asserted by OpenWithFallback on its retry attempt.
	// When true, the store skips capacity preallocation.
	LowMemory bool

	// MaxRAMBudget bounds the predicted RAM index need this Open call
	// will accept; 0 means unlimited. The budget is only checked when
	// UseTailCache is set, which is what lets the fallback attempt
	// succeed. A non-zero budget lets callers (and tests) exercise the
	// CapacityExceeded fallback path.
	MaxRAMBudget int64
}

type item struct {
	key    []byte
	offset int64
}

type fileStore struct {
	path         string
	def          rowdef.RowDef
	slotSize     int64
	f            *os.File
	mu           sync.RWMutex
	index        *btree.BTreeG[item]
	freeSlots    []int64
	nextOffset   int64
	useTailCache bool
	tailCache    map[string][]byte
	deleteOnExit bool
	closed       bool
}

// StaticRAMIndexNeed is a pure function of file size and row schema: it
// predicts the RAM an index over this file would need, without opening
// the file. Used by the directory scanner to order warm-up.
func StaticRAMIndexNeed(path string, def rowdef.RowDef) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}
	slotSize := int64(1 + def.RowSize)
	rows := info.Size() / slotSize
	return rows * int64(def.KeyLength+perRowOverheadBytes), nil
}

// Open opens a single partition file. It implements exactly one attempt;
// callers that must honour the two-phase CapacityExceeded fallback should
// call OpenWithFallback instead.
func Open(path string, def rowdef.RowDef, opts OpenOptions) (Store, error) {
	if opts.MaxRAMBudget > 0 && opts.UseTailCache {
		if !opts.CreateNew {
			need, err := StaticRAMIndexNeed(path, def)
			if err == nil && need > opts.MaxRAMBudget {
				return nil, ErrCapacityExceeded
			}
		}
	}

	flags := os.O_RDWR
	if opts.CreateNew {
		flags |= os.O_CREATE
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		if os.IsNotExist(err) {
			f, err = os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
		}
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
	}

	s := &fileStore{
		path:         path,
		def:          def,
		slotSize:     int64(1 + def.RowSize),
		f:            f,
		useTailCache: opts.UseTailCache,
	}
	s.index = btree.NewG(32, func(a, b item) bool {
		return def.KeyOrder(a.key, b.key)
	})
	if s.useTailCache {
		cap := opts.InitialCapacity
		if opts.LowMemory {
			cap = 0
		}
		s.tailCache = make(map[string][]byte, cap)
	}

	if err := s.load(); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	if opts.MaxRAMBudget > 0 && opts.UseTailCache {
		if int64(s.index.Len())*int64(def.KeyLength+perRowOverheadBytes) > opts.MaxRAMBudget {
			_ = f.Close()
			return nil, ErrCapacityExceeded
		}
	}

	return s, nil
}

// OpenWithFallback implements the mandatory two-phase open: a first
// attempt with the requested tail-cache setting, and on CapacityExceeded
// exactly one retry with the tail cache disabled and the low-memory flag
// asserted.
func OpenWithFallback(path string, def rowdef.RowDef, opts OpenOptions) (Store, error) {
	s, err := Open(path, def, opts)
	if err == nil {
		return s, nil
	}
	if err != ErrCapacityExceeded {
		return nil, err
	}
	fallback := opts
	fallback.UseTailCache = false
	fallback.LowMemory = true
	return Open(path, def, fallback)
}

func (s *fileStore) load() error {
	buf := make([]byte, s.slotSize)
	var offset int64
	for {
		n, err := s.f.ReadAt(buf, offset)
		if n < len(buf) {
			if err == io.EOF || err == nil {
				// incomplete trailing slot: stop at the last good offset.
				break
			}
			return err
		}

		switch buf[0] {
		case statusOccupied:
			row := make([]byte, s.def.RowSize)
			copy(row, buf[1:])
			key := s.def.Key(row)
			s.index.ReplaceOrInsert(item{key: append([]byte{}, key...), offset: offset})
		case statusFree:
			s.freeSlots = append(s.freeSlots, offset)
		default:
			// unrecognized status: treat the rest of the file as
			// unreadable and stop, matching the "log and skip" policy
			// for malformed on-disk structures.
			s.nextOffset = offset
			return nil
		}

		offset += s.slotSize
	}
	s.nextOffset = offset
	return nil
}

func (s *fileStore) writeSlot(offset int64, row []byte) error {
	buf := make([]byte, s.slotSize)
	buf[0] = statusOccupied
	copy(buf[1:], row)
	_, err := s.f.WriteAt(buf, offset)
	return err
}

func (s *fileStore) freeSlot(offset int64) error {
	buf := make([]byte, s.slotSize)
	buf[0] = statusFree
	_, err := s.f.WriteAt(buf, offset)
	return err
}

func (s *fileStore) allocSlot() int64 {
	if n := len(s.freeSlots); n > 0 {
		off := s.freeSlots[n-1]
		s.freeSlots = s.freeSlots[:n-1]
		return off
	}
	off := s.nextOffset
	s.nextOffset += s.slotSize
	return off
}

func (s *fileStore) Has(key []byte) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	_, ok := s.index.Get(item{key: key})
	return ok
}

func (s *fileStore) readRow(offset int64) ([]byte, error) {
	buf := make([]byte, s.slotSize)
	if _, err := s.f.ReadAt(buf, offset); err != nil {
		return nil, err
	}
	return buf[1:], nil
}

func (s *fileStore) Get(key []byte, forceCopy bool) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, false
	}
	it, ok := s.index.Get(item{key: key})
	if !ok {
		return nil, false
	}
	if s.useTailCache {
		if row, ok := s.tailCache[string(key)]; ok {
			if forceCopy {
				return append([]byte{}, row...), true
			}
			return row, true
		}
	}
	row, err := s.readRow(it.offset)
	if err != nil {
		return nil, false
	}
	return row, true
}

func (s *fileStore) Put(row []byte) (bool, error) {
	key := s.def.Key(row)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, ErrClosed
	}

	if it, ok := s.index.Get(item{key: key}); ok {
		if err := s.writeSlot(it.offset, row); err != nil {
			return false, fmt.Errorf("write slot: %w", err)
		}
		if s.useTailCache {
			s.tailCache[string(key)] = append([]byte{}, row...)
		}
		return false, nil
	}

	offset := s.allocSlot()
	if err := s.writeSlot(offset, row); err != nil {
		return false, fmt.Errorf("write slot: %w", err)
	}
	s.index.ReplaceOrInsert(item{key: append([]byte{}, key...), offset: offset})
	if s.useTailCache {
		s.tailCache[string(key)] = append([]byte{}, row...)
	}
	return true, nil
}

func (s *fileStore) Replace(row []byte) ([]byte, error) {
	key := s.def.Key(row)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	it, existed := s.index.Get(item{key: key})
	var previous []byte
	if existed {
		prev, err := s.readRow(it.offset)
		if err != nil {
			return nil, fmt.Errorf("read previous row: %w", err)
		}
		previous = append([]byte{}, prev...)
		if err := s.writeSlot(it.offset, row); err != nil {
			return nil, fmt.Errorf("write slot: %w", err)
		}
	} else {
		offset := s.allocSlot()
		if err := s.writeSlot(offset, row); err != nil {
			return nil, fmt.Errorf("write slot: %w", err)
		}
		s.index.ReplaceOrInsert(item{key: append([]byte{}, key...), offset: offset})
	}
	if s.useTailCache {
		s.tailCache[string(key)] = append([]byte{}, row...)
	}
	return previous, nil
}

func (s *fileStore) AddUnique(row []byte) error {
	key := s.def.Key(row)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	offset := s.allocSlot()
	if err := s.writeSlot(offset, row); err != nil {
		return fmt.Errorf("write slot: %w", err)
	}
	s.index.ReplaceOrInsert(item{key: append([]byte{}, key...), offset: offset})
	if s.useTailCache {
		s.tailCache[string(key)] = append([]byte{}, row...)
	}
	return nil
}

func (s *fileStore) Delete(key []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, ErrClosed
	}

	it, ok := s.index.Get(item{key: key})
	if !ok {
		return false, nil
	}
	if err := s.freeSlot(it.offset); err != nil {
		return false, fmt.Errorf("free slot: %w", err)
	}
	s.index.Delete(item{key: key})
	s.freeSlots = append(s.freeSlots, it.offset)
	if s.useTailCache {
		delete(s.tailCache, string(key))
	}
	return true, nil
}

func (s *fileStore) Remove(key []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	it, ok := s.index.Get(item{key: key})
	if !ok {
		return nil, nil
	}
	row, err := s.readRow(it.offset)
	if err != nil {
		return nil, fmt.Errorf("read row: %w", err)
	}
	row = append([]byte{}, row...)
	if err := s.freeSlot(it.offset); err != nil {
		return nil, fmt.Errorf("free slot: %w", err)
	}
	s.index.Delete(item{key: key})
	s.freeSlots = append(s.freeSlots, it.offset)
	if s.useTailCache {
		delete(s.tailCache, string(key))
	}
	return row, nil
}

func (s *fileStore) RemoveOne() ([]byte, error) {
	s.mu.Lock()
	var victim item
	var found bool
	s.index.Ascend(func(it item) bool {
		victim, found = it, true
		return false
	})
	s.mu.Unlock()
	if !found {
		return nil, nil
	}
	return s.Remove(victim.key)
}

func (s *fileStore) Top(n int) ([][]byte, error) {
	s.mu.RLock()
	var offsets []int64
	s.index.Ascend(func(it item) bool {
		offsets = append(offsets, it.offset)
		return len(offsets) < n
	})
	s.mu.RUnlock()

	rows := make([][]byte, 0, len(offsets))
	for _, off := range offsets {
		s.mu.RLock()
		row, err := s.readRow(off)
		s.mu.RUnlock()
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		rows = append(rows, append([]byte{}, row...))
	}
	return rows, nil
}

// RemoveDoubles reports duplicate rows for the same primary key within
// this partition. The btree index enforces key uniqueness by
// construction, so there is nothing to report; this mirrors invariant
// (1) at the partition level.
func (s *fileStore) RemoveDoubles() ([][][]byte, error) {
	return nil, nil
}

func (s *fileStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Len()
}

func (s *fileStore) IsEmpty() bool {
	return s.Size() == 0
}

func (s *fileStore) Mem() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := int64(s.index.Len()) * int64(s.def.KeyLength+perRowOverheadBytes)
	if s.useTailCache {
		for _, v := range s.tailCache {
			n += int64(len(v))
		}
	}
	return n
}

// WriteBufferSize is always 0: this reference implementation has no
// write-buffering layer distinct from the OS page cache.
func (s *fileStore) WriteBufferSize() int {
	return 0
}

func (s *fileStore) SmallestKey() ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.index.Min()
	if !ok {
		return nil, false
	}
	return it.key, true
}

func (s *fileStore) LargestKey() ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.index.Max()
	if !ok {
		return nil, false
	}
	return it.key, true
}

func (s *fileStore) snapshotKeys(ascending bool, startKey []byte) []item {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.index.Clone()
	var items []item
	visit := func(it item) bool {
		items = append(items, it)
		return true
	}
	switch {
	case ascending && startKey != nil:
		snap.AscendGreaterOrEqual(item{key: startKey}, visit)
	case ascending:
		snap.Ascend(visit)
	case !ascending && startKey != nil:
		snap.DescendLessOrEqual(item{key: startKey}, visit)
	default:
		snap.Descend(visit)
	}
	return items
}

func (s *fileStore) Keys(ascending bool, startKey []byte) (CloneableIterator[[]byte], error) {
	items := s.snapshotKeys(ascending, startKey)
	keys := make([][]byte, len(items))
	for i, it := range items {
		keys[i] = it.key
	}
	return newSliceIterator(keys), nil
}

func (s *fileStore) Rows(ascending bool, startKey []byte) (CloneableIterator[[]byte], error) {
	items := s.snapshotKeys(ascending, startKey)
	rows := make([][]byte, 0, len(items))
	for _, it := range items {
		s.mu.RLock()
		row, err := s.readRow(it.offset)
		s.mu.RUnlock()
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		rows = append(rows, append([]byte{}, row...))
	}
	return newSliceIterator(rows), nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.f.Close()
	if s.deleteOnExit {
		_ = os.Remove(s.path)
	}
	return err
}

func (s *fileStore) WarmUp() {
	if !s.useTailCache {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index.Ascend(func(it item) bool {
		if _, ok := s.tailCache[string(it.key)]; ok {
			return true
		}
		row, err := s.readRow(it.offset)
		if err == nil {
			s.tailCache[string(it.key)] = append([]byte{}, row...)
		}
		return true
	})
}

func (s *fileStore) DeleteOnExit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteOnExit = true
}

func (s *fileStore) Filename() string {
	return s.path
}

func (s *fileStore) FileSize() (int64, error) {
	info, err := s.f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

package splittable

import (
	"sort"

	"github.com/google/btree"

	"github.com/fulldump/splittable/partition"
)

// KeyRow pairs a primary key with its serialized row, returned by batch
// reads in primary-key order.
type KeyRow struct {
	Key []byte
	Row []byte
}

func (t *SplitTable) Has(key []byte) bool {
	release, alive := t.enter()
	defer release()
	if !alive {
		return false
	}
	keeper, _ := t.keeperOf(key)
	return keeper != nil
}

func (t *SplitTable) Get(key []byte, forceCopy bool) ([]byte, bool) {
	release, alive := t.enter()
	defer release()
	if !alive {
		return nil, false
	}
	keeper, _ := t.keeperOf(key)
	if keeper == nil {
		return nil, false
	}
	return keeper.Get(key, forceCopy)
}

// GetMany looks up several keys at once and returns the hits, ordered by
// the table's primary key order. Keys with no match are silently
// omitted, same as a loop over Get.
func (t *SplitTable) GetMany(keys [][]byte, forceCopy bool) []KeyRow {
	release, alive := t.enter()
	defer release()
	if !alive {
		return nil
	}

	var out []KeyRow
	for _, k := range keys {
		keeper, _ := t.keeperOf(k)
		if keeper == nil {
			continue
		}
		row, ok := keeper.Get(k, forceCopy)
		if !ok {
			continue
		}
		out = append(out, KeyRow{Key: k, Row: row})
	}
	sort.Slice(out, func(i, j int) bool { return t.def.KeyOrder(out[i].Key, out[j].Key) })
	return out
}

// Put inserts row, or updates it in place if its primary key already
// exists somewhere in the table. The outer keeperOf probe is an
// optimization; the re-probe under t.mu is the actual correctness
// guarantee against two concurrent Puts both deciding to create a new
// partition for the same brand-new key.
func (t *SplitTable) Put(row []byte) (bool, error) {
	release, alive := t.enter()
	defer release()
	if !alive {
		return false, nil
	}

	key := t.def.Key(row)

	if keeper, _ := t.keeperOf(key); keeper != nil {
		return keeper.Put(row)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if keeper, _ := t.keeperOfLocked(key); keeper != nil {
		return keeper.Put(row)
	}

	target, err := t.writeTarget()
	if err != nil {
		return false, err
	}
	return target.Put(row)
}

// Replace inserts or overwrites row and returns whatever row previously
// occupied that key, or none if it's new. Unlike Put, there is no
// re-probe under the lock: a miss on the outer keeperOf probe is treated
// as authoritative for "this is a new key," matching the original.
func (t *SplitTable) Replace(row []byte) ([]byte, error) {
	release, alive := t.enter()
	defer release()
	if !alive {
		return nil, nil
	}

	key := t.def.Key(row)
	if keeper, _ := t.keeperOf(key); keeper != nil {
		return keeper.Replace(row)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	target, err := t.writeTarget()
	if err != nil {
		return nil, err
	}
	if _, err := target.Put(row); err != nil {
		return nil, err
	}
	return nil, nil
}

// AddUnique inserts row without checking whether its key already exists
// anywhere in the table; callers use it only when they already know the
// key is new, to skip the keeperOf fan-out entirely.
func (t *SplitTable) AddUnique(row []byte) error {
	release, alive := t.enter()
	defer release()
	if !alive {
		return ErrClosed
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	target, err := t.writeTarget()
	if err != nil {
		return err
	}
	return target.AddUnique(row)
}

func (t *SplitTable) Delete(key []byte) (bool, error) {
	release, alive := t.enter()
	defer release()
	if !alive {
		return false, nil
	}
	keeper, _ := t.keeperOf(key)
	if keeper == nil {
		return false, nil
	}
	return keeper.Delete(key)
}

func (t *SplitTable) Remove(key []byte) ([]byte, error) {
	release, alive := t.enter()
	defer release()
	if !alive {
		return nil, nil
	}
	keeper, _ := t.keeperOf(key)
	if keeper == nil {
		return nil, nil
	}
	return keeper.Remove(key)
}

// largestPartition picks the partition with the most rows, the same
// size-based heuristic the original uses to decide where removeOne/top
// should operate: approximate and local to one partition, not a true
// table-wide largest-N.
func (t *SplitTable) largestPartition() (partition.Store, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var best partition.Store
	bestSize := -1
	for _, p := range t.partitions {
		if s := p.Size(); s > bestSize {
			bestSize = s
			best = p
		}
	}
	return best, best != nil
}

func (t *SplitTable) RemoveOne() ([]byte, error) {
	release, alive := t.enter()
	defer release()
	if !alive {
		return nil, nil
	}
	p, ok := t.largestPartition()
	if !ok {
		return nil, nil
	}
	return p.RemoveOne()
}

func (t *SplitTable) Top(n int) ([][]byte, error) {
	release, alive := t.enter()
	defer release()
	if !alive {
		return nil, nil
	}
	p, ok := t.largestPartition()
	if !ok {
		return nil, nil
	}
	return p.Top(n)
}

// RemoveDoubles scans every partition for duplicate rows under the same
// primary key and returns, per partition, the groups it found.
func (t *SplitTable) RemoveDoubles() ([][][]byte, error) {
	release, alive := t.enter()
	defer release()
	if !alive {
		return nil, nil
	}

	snap := t.snapshotPartitions()
	var report [][][]byte
	for _, p := range snap {
		doubles, err := p.RemoveDoubles()
		if err != nil {
			return report, err
		}
		report = append(report, doubles...)
	}
	return report, nil
}

func (t *SplitTable) Size() int {
	release, alive := t.enter()
	defer release()
	if !alive {
		return 0
	}
	total := 0
	for _, p := range t.snapshotPartitions() {
		total += p.Size()
	}
	return total
}

func (t *SplitTable) IsEmpty() bool {
	return t.Size() == 0
}

func (t *SplitTable) Mem() int64 {
	release, alive := t.enter()
	defer release()
	if !alive {
		return 0
	}
	var total int64
	for _, p := range t.snapshotPartitions() {
		total += p.Mem()
	}
	return total
}

func (t *SplitTable) WriteBufferSize() int {
	release, alive := t.enter()
	defer release()
	if !alive {
		return 0
	}
	total := 0
	for _, p := range t.snapshotPartitions() {
		total += p.WriteBufferSize()
	}
	return total
}

// extremum collects each partition's reported key (via pick) into a
// small bounded sorted-key structure and returns its min or max,
// mirroring the original's use of a HandleSet to combine per-partition
// extrema. A partition with no keys of its own (pick's second return is
// false) simply contributes nothing.
func (t *SplitTable) extremum(pick func(partition.Store) ([]byte, bool), smallest bool) ([]byte, bool) {
	release, alive := t.enter()
	defer release()
	if !alive {
		return nil, false
	}

	keys := btree.NewG(8, func(a, b []byte) bool { return t.def.KeyOrder(a, b) })
	for _, p := range t.snapshotPartitions() {
		k, ok := pick(p)
		if !ok {
			continue
		}
		keys.ReplaceOrInsert(k)
	}
	if smallest {
		return keys.Min()
	}
	return keys.Max()
}

// SmallestKey returns the smallest primary key across every partition,
// tolerating any individual partition reporting none (an empty
// partition simply contributes nothing to the comparison).
func (t *SplitTable) SmallestKey() ([]byte, bool) {
	return t.extremum(func(p partition.Store) ([]byte, bool) { return p.SmallestKey() }, true)
}

// LargestKey is SmallestKey's mirror image.
func (t *SplitTable) LargestKey() ([]byte, bool) {
	return t.extremum(func(p partition.Store) ([]byte, bool) { return p.LargestKey() }, false)
}

// PartitionStats describes one partition for operational introspection
// (see cmd/splitinspect); it is not part of the dispatch contract.
type PartitionStats struct {
	Filename string
	Size     int
	Mem      int64
}

// Stats reports per-partition size and memory use, sorted by filename
// (and therefore by creation time).
func (t *SplitTable) Stats() []PartitionStats {
	release, alive := t.enter()
	defer release()
	if !alive {
		return nil
	}
	var out []PartitionStats
	for name, p := range t.snapshotPartitions() {
		out = append(out, PartitionStats{Filename: name, Size: p.Size(), Mem: p.Mem()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Filename < out[j].Filename })
	return out
}

package splittable

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fulldump/splittable/partition"
)

// mustRollover reports whether the partition named filename has crossed
// its age or size threshold and must not receive any more new keys.
func (t *SplitTable) mustRollover(filename string, store partition.Store) bool {
	created, err := parseFilenameTime(t.prefix, filename)
	if err != nil {
		// An unparseable active filename can't be reasoned about; roll
		// over defensively rather than writing into it indefinitely.
		return true
	}
	if time.Since(created) >= t.ageLimit {
		return true
	}
	size, err := store.FileSize()
	if err != nil {
		return false
	}
	return size >= t.sizeLimit
}

// newPartition creates and registers a fresh partition, via the same
// two-phase fallback open used at warm-up time, and makes it the active
// write target. Callers must hold t.mu.
//
// The filename codec only promises strictly increasing names when the
// caller doesn't roll over twice within the same millisecond; rather
// than lean on that promise, a collision here just waits out the
// millisecond and reformats, so two rollovers can never collide.
func (t *SplitTable) newPartition() (partition.Store, string, error) {
	name := filename(t.prefix, time.Now())
	for {
		if _, exists := t.partitions[name]; !exists {
			break
		}
		time.Sleep(time.Millisecond)
		name = filename(t.prefix, time.Now())
	}
	path := filepath.Join(t.dir, name)
	store, err := partition.OpenWithFallback(path, t.def, partition.OpenOptions{
		CreateNew:    true,
		UseTailCache: t.useTailCache,
		ExceedLarge:  t.exceedLargeLimit,
	})
	if err != nil {
		return nil, "", fmt.Errorf("create partition %s: %w", name, err)
	}
	t.partitions[name] = store
	t.active = name
	return store, name, nil
}

// writeTarget returns the partition new-key writes should go to: the
// active partition if it hasn't crossed its rollover threshold, or a
// freshly created one otherwise. Callers must hold t.mu.
func (t *SplitTable) writeTarget() (partition.Store, error) {
	if t.active == "" {
		store, _, err := t.newPartition()
		return store, err
	}
	active, ok := t.partitions[t.active]
	if !ok || t.mustRollover(t.active, active) {
		store, _, err := t.newPartition()
		return store, err
	}
	return active, nil
}

package splittable

import (
	"context"
	"sync"

	"github.com/fulldump/splittable/partition"
)

// enter takes the close-exclusivity read lock and reports whether the
// table is still open. Every public operation calls this first; release
// must always be deferred, even when alive is false.
func (t *SplitTable) enter() (release func(), alive bool) {
	t.closeMu.RLock()
	if t.closed {
		return t.closeMu.RUnlock, false
	}
	return t.closeMu.RUnlock, true
}

// snapshotPartitions copies the current partition map under the registry
// monitor and immediately releases it, so callers can probe partitions
// (which may block on I/O) without holding the monitor across that I/O.
func (t *SplitTable) snapshotPartitions() map[string]partition.Store {
	t.mu.Lock()
	defer t.mu.Unlock()
	snap := make(map[string]partition.Store, len(t.partitions))
	for k, v := range t.partitions {
		snap[k] = v
	}
	return snap
}

// keeperOf is the outer, optimistic probe: it takes a snapshot of the
// partition set, releases the registry monitor, and then asks each
// partition (in parallel, bounded by the table's pinned pool size)
// whether it holds key. It is an optimization only — callers that need
// the correctness guarantee re-probe under the monitor via keeperOfLocked
// before deciding to create a new partition.
func (t *SplitTable) keeperOf(key []byte) (partition.Store, string) {
	snap := t.snapshotPartitions()
	if len(snap) == 0 {
		return nil, ""
	}
	if len(snap) == 1 {
		for name, p := range snap {
			if p.Has(key) {
				return p, name
			}
		}
		return nil, ""
	}

	type result struct {
		p    partition.Store
		name string
	}
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		found result
		ctx   = context.Background()
	)
	for name, p := range snap {
		name, p := name, p
		_ = t.sem.Acquire(ctx, 1)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer t.sem.Release(1)
			if p.Has(key) {
				mu.Lock()
				if found.p == nil {
					found = result{p, name}
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return found.p, found.name
}

// keeperOfLocked is the inner, authoritative probe used by Put's
// double-check: the caller must already hold t.mu, so this runs
// sequentially and blocks that lock across each partition's Has call,
// exactly as the double-checked-insert pattern requires.
func (t *SplitTable) keeperOfLocked(key []byte) (partition.Store, string) {
	for name, p := range t.partitions {
		if p.Has(key) {
			return p, name
		}
	}
	return nil, ""
}

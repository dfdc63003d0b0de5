package splittable

import (
	"context"
	"path/filepath"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/fulldump/splittable/partition"
)

// warmUpAll opens every discovered partition and joins on their warm-up
// tasks before returning, mirroring the original's ThreadPoolExecutor
// fan-out plus a join-all-threads barrier. Partitions are opened in
// descending predicted-RAM order so the heaviest ones claim capacity
// first; a partition that fails to open (including after the
// CapacityExceeded fallback) is logged and quarantined rather than
// failing the whole open.
func (t *SplitTable) warmUpAll(found []discovered) error {
	sort.SliceStable(found, func(i, j int) bool {
		return found[i].predictedRAM > found[j].predictedRAM
	})

	g, _ := errgroup.WithContext(context.Background())
	for _, d := range found {
		path := filepath.Join(t.dir, d.filename)
		store, err := partition.OpenWithFallback(path, t.def, partition.OpenOptions{
			UseTailCache: t.useTailCache,
			ExceedLarge:  t.exceedLargeLimit,
		})
		if err != nil {
			t.logger.Warn("open partition failed, quarantining", "file", d.filename, "error", err)
			if qerr := t.excluded.Disable(d.filename); qerr != nil {
				t.logger.Warn("could not persist quarantine entry", "file", d.filename, "error", qerr)
			}
			continue
		}
		t.partitions[d.filename] = store

		warm := store
		g.Go(func() error {
			warm.WarmUp()
			return nil
		})
	}

	// Warm-up is best-effort: WarmUp never returns an error. The join has
	// no timeout, so Open returns only once every warm-up has finished.
	_ = g.Wait()
	return nil
}

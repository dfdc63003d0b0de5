// Package splittable implements a time-partitioned, ordered,
// primary-key-indexed table backed by a sequence of on-disk Partition
// Stores ("split table"). New writes land in the active partition until
// it crosses an age or size threshold, at which point a fresh partition
// is rolled in and becomes the new write target. Reads fan out across
// every partition currently registered.
//
// It is grounded directly on net.yacy.kelondro.table.SplitTable, rebuilt
// around a partition.Store interface so the on-disk row format is a
// swappable implementation detail rather than baked into the registry.
package splittable

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/fulldump/splittable/internal/lineset"
	"github.com/fulldump/splittable/partition"
	"github.com/fulldump/splittable/rowdef"
)

// DefaultAgeLimit mirrors the original's "one month" default rollover
// age for a table opened without an explicit age limit.
const DefaultAgeLimit = 30 * 24 * time.Hour

// DefaultSizeLimit mirrors the original's Integer.MAX_VALUE default: in
// practice unbounded, so that age is the only rollover trigger unless the
// caller asks for a tighter size limit.
const DefaultSizeLimit = (1 << 31) - 1

// Options configures a SplitTable at construction time. There is no CLI
// flag or environment variable binding at this layer; callers that want
// one build it themselves (see the configuration package and
// cmd/splitinspect) and pass the resolved values in here.
type Options struct {
	AgeLimit         time.Duration
	SizeLimit        int64
	UseTailCache     bool
	ExceedLargeLimit bool
	Logger           *slog.Logger
}

// SplitTable is the public, concurrency-safe handle to a split table.
type SplitTable struct {
	mu      sync.Mutex   // registry monitor: guards partitions, active, and the double-check in Put
	closeMu sync.RWMutex // close exclusivity: Close takes the write lock, every other op an RLock

	dir    string
	prefix string
	def    rowdef.RowDef

	partitions map[string]partition.Store
	active     string

	ageLimit         time.Duration
	sizeLimit        int64
	useTailCache     bool
	exceedLargeLimit bool

	excluded *lineset.Set

	sem      *semaphore.Weighted
	poolSize int64

	logger *slog.Logger

	closed bool
}

// Open opens (creating if necessary) the split table rooted at
// filepath.Join(dir, prefix). It performs legacy filename migration,
// scans for existing partitions, and warms them all up before returning.
func Open(dir, prefix string, def rowdef.RowDef, opts Options) (*SplitTable, error) {
	if opts.AgeLimit <= 0 {
		opts.AgeLimit = DefaultAgeLimit
	}
	if opts.SizeLimit <= 0 {
		opts.SizeLimit = DefaultSizeLimit
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	t := &SplitTable{
		dir:              dir,
		prefix:           prefix,
		def:              def,
		ageLimit:         opts.AgeLimit,
		sizeLimit:        opts.SizeLimit,
		useTailCache:     opts.UseTailCache,
		exceedLargeLimit: opts.ExceedLargeLimit,
		logger:           logger,
	}
	if err := t.init(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *SplitTable) init() error {
	t.partitions = map[string]partition.Store{}
	t.active = ""

	if err := os.MkdirAll(t.dir, 0755); err != nil {
		return fmt.Errorf("%w: mkdir %s: %v", ErrIOError, t.dir, err)
	}

	excluded, err := lineset.Open(filepath.Join(t.dir, t.prefix+".excluded"))
	if err != nil {
		return fmt.Errorf("%w: open exclusion list: %v", ErrIOError, err)
	}
	t.excluded = excluded

	migrateLegacyNames(t.dir, t.prefix, t.logger)

	found, err := scanPartitions(t.dir, t.prefix, t.def, t.logger)
	if err != nil {
		return err
	}

	filtered := found[:0]
	for _, d := range found {
		if t.excluded.Disabled(d.filename) {
			t.logger.Info("skipping quarantined partition", "file", d.filename)
			continue
		}
		filtered = append(filtered, d)
	}

	if err := t.warmUpAll(filtered); err != nil {
		return err
	}
	t.recomputeActive()

	poolSize := int64(len(t.partitions))
	if cpu := int64(runtime.NumCPU()); cpu > poolSize {
		poolSize = cpu
	}
	poolSize++
	t.poolSize = poolSize
	t.sem = semaphore.NewWeighted(poolSize)

	return nil
}

// recomputeActive scans the currently registered partitions (not the
// pre-filter discovery list) for the most recently created one, so a
// partition that failed to open or was quarantined never becomes active.
func (t *SplitTable) recomputeActive() {
	var newest time.Time
	name := ""
	for fname := range t.partitions {
		created, err := parseFilenameTime(t.prefix, fname)
		if err != nil {
			continue
		}
		if name == "" || created.After(newest) {
			newest = created
			name = fname
		}
	}
	t.active = name
}

// Filename returns the directory/prefix pair identifying this table, the
// same value every partition filename is derived from.
func (t *SplitTable) Filename() string {
	return filepath.Join(t.dir, t.prefix)
}

// Close shuts the table down: it waits briefly for in-flight keeperOf
// probes to drain, then closes every partition. Close is idempotent.
func (t *SplitTable) Close() error {
	t.closeMu.Lock()
	defer t.closeMu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true

	drained := make(chan struct{})
	go func() {
		_ = t.sem.Acquire(context.Background(), t.poolSize)
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(3 * time.Second):
	}

	var errs []error
	for _, p := range t.partitions {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	t.partitions = nil
	return errors.Join(errs...)
}

// DeleteOnExit marks every currently registered partition file for
// deletion when it is closed.
func (t *SplitTable) DeleteOnExit() {
	release, alive := t.enter()
	defer release()
	if !alive {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range t.partitions {
		p.DeleteOnExit()
	}
}

// Clear closes the table, deletes every file with this table's prefix in
// its directory, and reopens fresh. If reopening hits CapacityExceeded
// (the low-memory rebuild still can't fit), the tail cache is disabled
// and the reopen is retried once, mirroring the original clear()'s
// second-exception fallback.
func (t *SplitTable) Clear() error {
	if err := t.Close(); err != nil {
		return err
	}

	entries, err := os.ReadDir(t.dir)
	if err != nil {
		return fmt.Errorf("%w: list %s: %v", ErrIOError, t.dir, err)
	}
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), t.prefix) {
			continue
		}
		path := filepath.Join(t.dir, e.Name())
		if e.IsDir() {
			if err := os.RemoveAll(path); err != nil {
				return fmt.Errorf("%w: remove %s: %v", ErrIOError, path, err)
			}
			continue
		}
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("%w: remove %s: %v", ErrIOError, path, err)
		}
	}

	t.closeMu.Lock()
	t.closed = false
	t.closeMu.Unlock()

	if err := t.init(); err != nil {
		if errors.Is(err, partition.ErrCapacityExceeded) {
			t.useTailCache = false
			if err2 := t.init(); err2 != nil {
				return fmt.Errorf("%w: %v", ErrIOError, err2)
			}
			return nil
		}
		return err
	}
	return nil
}

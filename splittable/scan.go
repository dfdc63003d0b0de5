package splittable

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fulldump/splittable/partition"
	"github.com/fulldump/splittable/rowdef"
)

// discovered describes one on-disk partition file found before it is
// opened: its filename, the creation time encoded in that filename, and
// its predicted RAM footprint, used to decide warm-up order without
// paying the cost of opening every partition first.
type discovered struct {
	filename     string
	created      time.Time
	predictedRAM int64
}

// migrateLegacyNames renames every legacy-named partition file in dir to
// the canonical timestamped scheme. A rename failure for one file is
// logged and skipped rather than aborting the whole pass; the file keeps
// its old name, is ignored by scanPartitions (which only accepts
// canonical names), and is retried by the migration pass of the next
// open. It is not added to the quarantine list.
func migrateLegacyNames(dir, prefix string, logger *slog.Logger) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Warn("legacy migration: list directory failed", "dir", dir, "error", err)
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		newName, ok := migrateLegacyFilename(prefix, name)
		if !ok {
			continue
		}
		oldPath := filepath.Join(dir, name)
		newPath := filepath.Join(dir, newName)
		if err := os.Rename(oldPath, newPath); err != nil {
			logger.Warn("legacy migration: rename failed", "from", name, "to", newName, "error", err)
		}
	}
}

// scanPartitions lists dir for canonically-named partition files and
// returns one discovered entry per file that parses cleanly. Files whose
// name doesn't parse, or whose size can't be stat'd, are logged and
// skipped rather than failing the whole scan.
func scanPartitions(dir, prefix string, def rowdef.RowDef, logger *slog.Logger) ([]discovered, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %v", ErrIOError, dir, err)
	}

	var out []discovered
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !isModernName(prefix, name) {
			continue
		}
		created, err := parseFilenameTime(prefix, name)
		if err != nil {
			logger.Warn("scan: malformed partition name, skipping", "file", name, "error", err)
			continue
		}
		path := filepath.Join(dir, name)
		ram, err := partition.StaticRAMIndexNeed(path, def)
		if err != nil {
			logger.Warn("scan: could not predict RAM need, skipping", "file", name, "error", err)
			continue
		}
		out = append(out, discovered{filename: name, created: created, predictedRAM: ram})
	}
	return out, nil
}

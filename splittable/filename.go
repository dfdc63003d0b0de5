package splittable

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Partition filenames look like "<prefix>.<17-digit timestamp>.table",
// where the timestamp is "yyyyMMddHHmmssSSS" in UTC. This mirrors the
// original SplitTable's date-coded naming scheme, expressed with a fixed
// field width so filenames sort lexicographically in creation order.
const timestampLen = 17
const extension = ".table"

func formatTimestamp(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%04d%02d%02d%02d%02d%02d%03d",
		t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond()/1e6)
}

func parseTimestamp(s string) (time.Time, error) {
	if len(s) != timestampLen {
		return time.Time{}, ErrMalformedName
	}
	fields := [7]int{}
	widths := [7]int{4, 2, 2, 2, 2, 2, 3}
	pos := 0
	for i, w := range widths {
		v, err := strconv.Atoi(s[pos : pos+w])
		if err != nil {
			return time.Time{}, ErrMalformedName
		}
		fields[i] = v
		pos += w
	}
	year, month, day, hour, minute, sec, msec := fields[0], fields[1], fields[2], fields[3], fields[4], fields[5], fields[6]
	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || minute > 59 || sec > 59 {
		return time.Time{}, ErrMalformedName
	}
	return time.Date(year, time.Month(month), day, hour, minute, sec, msec*1e6, time.UTC), nil
}

// filename formats the canonical partition filename for a partition
// created at t.
func filename(prefix string, t time.Time) string {
	return prefix + "." + formatTimestamp(t) + extension
}

// parseFilenameTime parses the creation time encoded in a canonical
// partition filename, rejecting anything that does not exactly match
// "<prefix>.<17 digits>.table".
func parseFilenameTime(prefix, name string) (time.Time, error) {
	if !isModernName(prefix, name) {
		return time.Time{}, ErrMalformedName
	}
	ts := name[len(prefix)+1 : len(name)-len(extension)]
	return parseTimestamp(ts)
}

func isModernName(prefix, name string) bool {
	want := len(prefix) + 1 + timestampLen + len(extension)
	if len(name) != want {
		return false
	}
	return strings.HasPrefix(name, prefix+".") && strings.HasSuffix(name, extension)
}

// isLegacyName matches the pre-migration naming scheme: "<prefix>.XXXXXX"
// with no extension, a fixed 6-character numeric suffix.
func isLegacyName(prefix, name string) bool {
	want := len(prefix) + 1 + 6
	if len(name) != want || !strings.HasPrefix(name, prefix+".") {
		return false
	}
	suffix := name[len(prefix)+1:]
	for _, c := range suffix {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// migrateLegacyFilename computes the canonical replacement name for a
// legacy-named partition file, padding its 6-digit suffix out to a full
// 17-digit timestamp with the literal "0100000" and 4 random decimal
// digits (10,000 possible tails). The random digits are taken from a
// UUID rather than math/rand.
func migrateLegacyFilename(prefix, name string) (string, bool) {
	if !isLegacyName(prefix, name) {
		return "", false
	}
	suffix := name[len(prefix)+1:]

	id := uuid.New()
	digits := make([]byte, 4)
	for i := range digits {
		digits[i] = '0' + id[i]%10
	}

	ts := suffix + "0100000" + string(digits)
	if _, err := parseTimestamp(ts); err != nil {
		return "", false
	}
	return prefix + "." + ts + extension, true
}

// Package lineset implements a comment-annotated line-set configuration
// file: one keyword per line, "#keyword" for a disabled entry, "##" for a
// free-standing comment line. It is grounded directly on
// net.yacy.cora.storage.ConfigurationSet, the out-of-scope collaborator
// named in the split table's purpose & scope.
//
// splittable uses it to track partitions that fail to open (even after
// the capacity fallback): they are appended here, disabled, instead of
// being retried on every open or silently dropped.
package lineset

import (
	"bufio"
	"os"
	"strings"
)

// Set is a mutable, ordered set of keywords backed by a text file. Lines
// are kept in file order (trimmed of surrounding whitespace on load) and
// written back on commit, so hand edits and comments survive a round
// trip.
type Set struct {
	file  string
	lines []string
}

// Open reads file into a Set. A missing file is treated as an empty set;
// it is created by the first Disable or Enable that changes the set.
func Open(file string) (*Set, error) {
	s := &Set{file: file}

	f, err := os.Open(file)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		s.lines = append(s.lines, strings.TrimSpace(scanner.Text()))
	}
	return s, scanner.Err()
}

func isKeyLine(line string) bool {
	return len(line) > 0 && line[0] != '#'
}

func isDisabledLine(line string) bool {
	return len(line) > 1 && line[0] == '#' && line[1] != '#'
}

// Enabled reports whether key appears as an active (non-commented) line.
func (s *Set) Enabled(key string) bool {
	for _, line := range s.lines {
		if isKeyLine(line) && line == key {
			return true
		}
	}
	return false
}

// Disabled reports whether key appears, but commented out.
func (s *Set) Disabled(key string) bool {
	for _, line := range s.lines {
		if isDisabledLine(line) && strings.TrimSpace(line[1:]) == key {
			return true
		}
	}
	return false
}

// Disable comments an existing active key out. If the key is not present
// as an active line, it is appended already disabled.
func (s *Set) Disable(key string) error {
	for i, line := range s.lines {
		if isKeyLine(line) && line == key {
			s.lines[i] = "#" + key
			return s.commit()
		}
	}
	s.lines = append(s.lines, "#"+key)
	return s.commit()
}

// Enable uncomments a disabled key. A no-op if the key is already active
// or absent entirely.
func (s *Set) Enable(key string) error {
	for i, line := range s.lines {
		if isDisabledLine(line) && strings.TrimSpace(line[1:]) == key {
			s.lines[i] = key
			return s.commit()
		}
	}
	return nil
}

// Keys returns every active (enabled) key, in file order.
func (s *Set) Keys() []string {
	var keys []string
	for _, line := range s.lines {
		if isKeyLine(line) {
			keys = append(keys, line)
		}
	}
	return keys
}

func (s *Set) commit() error {
	f, err := os.Create(s.file)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, line := range s.lines {
		if _, err := w.WriteString(line + "\n"); err != nil {
			return err
		}
	}
	return w.Flush()
}

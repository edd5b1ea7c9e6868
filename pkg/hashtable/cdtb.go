package hashtable

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// LoadCDTB inserts the pairs of a CommunityDragon text hashtable, one
// "hexHash name" pair per line. Names may contain spaces; blank lines are
// skipped. It returns the number of lines inserted.
func (t *Table) LoadCDTB(r io.Reader) (int, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), MaxNameLen+64)

	lineNo, inserted := 0, 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" {
			continue
		}

		hexHash, name, ok := strings.Cut(line, " ")
		if !ok || hexHash == "" {
			return inserted, fmt.Errorf("%w: line %d: missing separator", ErrInvalidFormat, lineNo)
		}
		hash, err := strconv.ParseUint(hexHash, 16, 64)
		if err != nil {
			return inserted, fmt.Errorf("%w: line %d: bad hash %q", ErrInvalidFormat, lineNo, hexHash)
		}
		t.Insert(hash, name)
		inserted++
	}
	if err := sc.Err(); err != nil {
		return inserted, fmt.Errorf("scan line %d: %w", lineNo+1, err)
	}
	return inserted, nil
}

// WriteCDTB exports the table as "hexHash name" lines in hash order.
func (t *Table) WriteCDTB(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, e := range t.sortedEntries() {
		if err := t.resolve(e); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(bw, "%016x %s\n", e.Hash, e.name); err != nil {
			return fmt.Errorf("write line: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

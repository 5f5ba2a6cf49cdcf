package tle

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"
)

// ParseThreeLine reads element sets in the three-line format (name, line 1,
// line 2) as served by catalogs. A leading "0 " on the name line is dropped.
// Blank lines are ignored.
func ParseThreeLine(r io.Reader, now time.Time) ([]*Record, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), " \r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(lines) == 0 || len(lines)%3 != 0 {
		return nil, fmt.Errorf("%w: expected groups of 3 lines, got %d", ErrInvalidElements, len(lines))
	}

	out := make([]*Record, 0, len(lines)/3)
	for i := 0; i < len(lines); i += 3 {
		name := strings.TrimPrefix(lines[i], "0 ")
		rec, err := NewRecord(name, lines[i+1], lines[i+2], now)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Package tle manages two-line element sets: parsing, validation, on-disk
// persistence and a refreshable in-memory cache backed by a remote catalog.
package tle

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultRefreshInterval is how long a record stays fresh after an update.
const DefaultRefreshInterval = 2 * time.Hour

// lineLength is the fixed width of a TLE element line.
const lineLength = 69

var (
	ErrNotFound         = errors.New("tle not found")
	ErrInvalidElements  = errors.New("invalid element set")
	ErrFetchFailed      = errors.New("catalog fetch failed")
	ErrIdentityMismatch = errors.New("identity line mismatch")
)

// Record is one orbital element set plus staleness metadata.
type Record struct {
	CatalogID       string
	Name            string
	Line1           string
	Line2           string
	LastUpdate      time.Time
	RefreshInterval time.Duration
}

// NewRecord validates the element lines and builds a record with the default
// refresh interval.
func NewRecord(name, line1, line2 string, lastUpdate time.Time) (*Record, error) {
	line1 = strings.TrimRight(line1, " \r\n")
	line2 = strings.TrimRight(line2, " \r\n")
	if err := ValidateLines(line1, line2); err != nil {
		return nil, err
	}
	return &Record{
		CatalogID:       catalogID(line2),
		Name:            strings.TrimSpace(name),
		Line1:           line1,
		Line2:           line2,
		LastUpdate:      lastUpdate,
		RefreshInterval: DefaultRefreshInterval,
	}, nil
}

// ValidateLines checks the fixed-format layout of a pair of element lines:
// width, line numbers, matching catalog numbers and the modulo-10 checksum.
func ValidateLines(line1, line2 string) error {
	for i, line := range []string{line1, line2} {
		n := i + 1
		if len(line) != lineLength {
			return fmt.Errorf("%w: line %d has %d characters, want %d", ErrInvalidElements, n, len(line), lineLength)
		}
		if line[0] != byte('0'+n) || line[1] != ' ' {
			return fmt.Errorf("%w: line %d does not start with %q", ErrInvalidElements, n, fmt.Sprintf("%d ", n))
		}
		want := int(line[lineLength-1] - '0')
		if want < 0 || want > 9 {
			return fmt.Errorf("%w: line %d checksum column is not a digit", ErrInvalidElements, n)
		}
		if got := checksum(line); got != want {
			return fmt.Errorf("%w: line %d checksum %d, want %d", ErrInvalidElements, n, got, want)
		}
	}
	if id1, id2 := strings.TrimSpace(line1[2:7]), catalogID(line2); id1 != id2 {
		return fmt.Errorf("%w: catalog numbers differ (%q vs %q)", ErrInvalidElements, id1, id2)
	}
	return nil
}

// checksum sums the digits of the first 68 columns, counting '-' as one.
func checksum(line string) int {
	sum := 0
	for _, c := range line[:lineLength-1] {
		switch {
		case c >= '0' && c <= '9':
			sum += int(c - '0')
		case c == '-':
			sum++
		}
	}
	return sum % 10
}

func catalogID(line2 string) string {
	return strings.TrimSpace(line2[2:7])
}

// Stale reports whether more than RefreshInterval has elapsed since the last
// update.
func (r *Record) Stale(now time.Time) bool {
	interval := r.RefreshInterval
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return now.Sub(r.LastUpdate) > interval
}

// MatchID reports whether the record has the given catalog id.
func (r *Record) MatchID(id string) bool {
	return r.CatalogID == strings.TrimSpace(id)
}

// MatchName reports whether name appears in the record's name.
func (r *Record) MatchName(name string) bool {
	return name != "" && strings.Contains(r.Name, name)
}

// ReplaceFrom swaps in the element lines of other as a pair. The identity
// line must match; otherwise the record is left untouched.
func (r *Record) ReplaceFrom(other *Record, now time.Time) error {
	if other == nil || other.Name != r.Name || other.CatalogID != r.CatalogID {
		return ErrIdentityMismatch
	}
	if err := ValidateLines(other.Line1, other.Line2); err != nil {
		return err
	}
	r.Line1 = other.Line1
	r.Line2 = other.Line2
	r.LastUpdate = now
	return nil
}

// Lines returns the identity line and both element lines.
func (r *Record) Lines() [3]string {
	return [3]string{r.Name, r.Line1, r.Line2}
}

// Clone returns a copy safe to hand to other goroutines.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

package tle

import (
	"errors"
	"strings"
	"testing"
	"time"
)

// ISS element set with valid checksums.
const (
	issName  = "ISS (ZARYA)"
	issLine1 = "1 25544U 98067A   08264.51782528 -.00002182  00000-0 -11606-4 0  2927"
	issLine2 = "2 25544  51.6416 247.4627 0006703 130.5360 325.0288 15.72125391563537"
)

func mustRecord(t *testing.T, lastUpdate time.Time) *Record {
	t.Helper()
	r, err := NewRecord(issName, issLine1, issLine2, lastUpdate)
	if err != nil {
		t.Fatalf("NewRecord: %v", err)
	}
	return r
}

func TestNewRecordExtractsCatalogID(t *testing.T) {
	r := mustRecord(t, time.Now())
	if r.CatalogID != "25544" {
		t.Fatalf("CatalogID = %q, want 25544", r.CatalogID)
	}
	if r.RefreshInterval != DefaultRefreshInterval {
		t.Fatalf("RefreshInterval = %v, want %v", r.RefreshInterval, DefaultRefreshInterval)
	}
	if !r.MatchID("25544") || r.MatchID("25545") {
		t.Fatalf("MatchID mismatch")
	}
	if !r.MatchName("ISS") || r.MatchName("HUBBLE") || r.MatchName("") {
		t.Fatalf("MatchName mismatch")
	}
}

func TestValidateLinesRejectsMalformed(t *testing.T) {
	badChecksum := issLine1[:68] + "0"
	cases := map[string][2]string{
		"short":        {issLine1[:60], issLine2},
		"checksum":     {badChecksum, issLine2},
		"line numbers": {issLine2, issLine1},
		"catalog":      {issLine1, strings.Replace(issLine2, "25544", "25545", 1)},
	}
	for name, c := range cases {
		if err := ValidateLines(c[0], c[1]); !errors.Is(err, ErrInvalidElements) {
			t.Fatalf("%s: ValidateLines err = %v, want ErrInvalidElements", name, err)
		}
	}
}

func TestStale(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	if mustRecord(t, now).Stale(now) {
		t.Fatalf("record updated now should not be stale")
	}
	if !mustRecord(t, now.Add(-3*time.Hour)).Stale(now) {
		t.Fatalf("record updated 3h ago should be stale with a 2h interval")
	}
	if mustRecord(t, now.Add(-2*time.Hour)).Stale(now) {
		t.Fatalf("record exactly at the interval should not be stale")
	}
}

func TestReplaceFromRequiresMatchingIdentity(t *testing.T) {
	old := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	now := old.Add(3 * time.Hour)
	r := mustRecord(t, old)

	other := r.Clone()
	other.Name = "SOMETHING ELSE"
	if err := r.ReplaceFrom(other, now); !errors.Is(err, ErrIdentityMismatch) {
		t.Fatalf("ReplaceFrom err = %v, want ErrIdentityMismatch", err)
	}
	if !r.LastUpdate.Equal(old) {
		t.Fatalf("LastUpdate changed on rejected replace")
	}

	if err := r.ReplaceFrom(r.Clone(), now); err != nil {
		t.Fatalf("ReplaceFrom: %v", err)
	}
	if !r.LastUpdate.Equal(now) {
		t.Fatalf("LastUpdate = %v, want %v", r.LastUpdate, now)
	}
}

func TestParseThreeLine(t *testing.T) {
	body := "0 " + issName + "\r\n" + issLine1 + "\r\n" + issLine2 + "\r\n\r\n"
	recs, err := ParseThreeLine(strings.NewReader(body), time.Now())
	if err != nil {
		t.Fatalf("ParseThreeLine: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	if recs[0].Name != issName || recs[0].Line1 != issLine1 || recs[0].Line2 != issLine2 {
		t.Fatalf("unexpected record %+v", recs[0])
	}

	if _, err := ParseThreeLine(strings.NewReader(issLine1+"\n"+issLine2+"\n"), time.Now()); !errors.Is(err, ErrInvalidElements) {
		t.Fatalf("two-line body err = %v, want ErrInvalidElements", err)
	}
}

package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/signalsfoundry/mount-tracker/tle"
)

const (
	issName  = "ISS (ZARYA)"
	issLine1 = "1 25544U 98067A   08264.51782528 -.00002182  00000-0 -11606-4 0  2927"
	issLine2 = "2 25544  51.6416 247.4627 0006703 130.5360 325.0288 15.72125391563537"
)

func seedStore(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	store, err := tle.NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	rec, err := tle.NewRecord(issName, issLine1, issLine2, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	if err != nil {
		t.Fatalf("NewRecord: %v", err)
	}
	if err := store.Save(rec); err != nil {
		t.Fatalf("Save: %v", err)
	}
	return dir
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("SPACETRACK_IDENTITY", "")
	t.Setenv("SPACETRACK_PASSWORD", "")
	t.Setenv("LOG_LEVEL", "error")

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestTLEListPrintsCachedRecords(t *testing.T) {
	dir := seedStore(t)
	out, err := runCLI(t, "tle", "list", "--tle-dir", dir)
	if err != nil {
		t.Fatalf("tle list: %v", err)
	}
	if !strings.Contains(out, issName) || !strings.Contains(out, "25544") || !strings.Contains(out, "2024-01-02 03:04:05") {
		t.Fatalf("output missing record:\n%s", out)
	}
}

func TestTLEGetPrintsCachedLines(t *testing.T) {
	dir := seedStore(t)
	out, err := runCLI(t, "tle", "get", "25544", "--tle-dir", dir)
	if err != nil {
		t.Fatalf("tle get: %v", err)
	}
	want := issName + "\n" + issLine1 + "\n" + issLine2 + "\n"
	if out != want {
		t.Fatalf("output = %q, want %q", out, want)
	}
}

func TestTLEGetWithoutCatalogFails(t *testing.T) {
	if _, err := runCLI(t, "tle", "get", "20580", "--tle-dir", t.TempDir()); err == nil {
		t.Fatalf("expected error for an uncached id without catalog credentials")
	}
}

func TestTrackFailsWithoutUsableTLE(t *testing.T) {
	t.Setenv("TRACKER_METRICS_ADDR", "")
	_, err := runCLI(t, "track", "--tle-dir", t.TempDir(), "--tle", "NOTHING")
	if err == nil || !strings.Contains(err.Error(), "no usable TLE") {
		t.Fatalf("err = %v, want no usable TLE", err)
	}
}

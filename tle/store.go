package tle

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// FileExt is the extension of persisted record files.
const FileExt = ".tle"

// Store persists records durably.
type Store interface {
	// Save writes rec, replacing any previous copy.
	Save(rec *Record) error
	// LoadAll returns every readable record. Per-entry problems are returned
	// in the second slice; the final error is reserved for an unusable store.
	LoadAll() ([]*Record, []error, error)
}

// FileStore keeps one <catalog_id>.tle file per record in Dir. Each file holds
// the unix time of the last update followed by the name and element lines.
type FileStore struct {
	Dir string
}

// NewFileStore returns a store rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create tle dir %q: %w", dir, err)
	}
	return &FileStore{Dir: dir}, nil
}

// Save writes rec to <Dir>/<catalog_id>.tle via a temporary file and rename.
func (s *FileStore) Save(rec *Record) error {
	if rec == nil || rec.CatalogID == "" {
		return fmt.Errorf("%w: record has no catalog id", ErrInvalidElements)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%d\n%s\n%s\n%s\n", rec.LastUpdate.Unix(), rec.Name, rec.Line1, rec.Line2)

	path := filepath.Join(s.Dir, rec.CatalogID+FileExt)
	tmp, err := os.CreateTemp(s.Dir, rec.CatalogID+"-*.tmp")
	if err != nil {
		return fmt.Errorf("save %s: %w", rec.CatalogID, err)
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("save %s: %w", rec.CatalogID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("save %s: %w", rec.CatalogID, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("save %s: %w", rec.CatalogID, err)
	}
	return nil
}

// LoadAll reads every *.tle file in Dir. A missing directory is an empty store.
func (s *FileStore) LoadAll() ([]*Record, []error, error) {
	entries, err := os.ReadDir(s.Dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read tle dir %q: %w", s.Dir, err)
	}

	var (
		recs []*Record
		errs []error
	)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), FileExt) {
			continue
		}
		path := filepath.Join(s.Dir, e.Name())
		rec, err := readRecordFile(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		recs = append(recs, rec)
	}
	return recs, errs, nil
}

func readRecordFile(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if len(lines) < 4 {
		return nil, fmt.Errorf("%w: want 4 lines, got %d", ErrInvalidElements, len(lines))
	}

	secs, err := strconv.ParseInt(strings.TrimSpace(lines[0]), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad timestamp %q", ErrInvalidElements, lines[0])
	}
	return NewRecord(lines[1], lines[2], lines[3], time.Unix(secs, 0).UTC())
}

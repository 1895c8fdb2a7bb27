// Package store implements the durable CSV record store used to hand records
// between pipeline stages. A Store serializes concurrent writers, appends one
// self-describing row per call, and supports streamed read-back in original or
// randomized order. It knows nothing about the meaning of the columns beyond
// the header fixed at Open time.
package store

import (
	"encoding/csv"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// Record is one flat row of string fields matching the store's header.
type Record []string

// Options controls store lifecycle behavior at Open time.
type Options struct {
	// Preserve keeps an existing file instead of truncating it.
	Preserve bool
}

// Store is an append-only, lock-serialized CSV file. Safe for concurrent use.
type Store struct {
	path   string
	header []string
	logger *zap.Logger

	mu sync.Mutex
}

// Open prepares the backing file. Unless opts.Preserve is set, any prior
// contents are discarded so each pipeline run starts from an empty store.
func Open(path string, header []string, opts Options, logger *zap.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("store path is required")
	}
	if len(header) == 0 {
		return nil, fmt.Errorf("store header is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	if !opts.Preserve {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("refresh store file: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open store file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close store file: %w", err)
	}
	logger.Debug("opened record store",
		zap.String("path", path),
		zap.Bool("preserved", opts.Preserve))
	return &Store{
		path:   path,
		header: append([]string(nil), header...),
		logger: logger,
	}, nil
}

// Path returns the location of the backing file.
func (s *Store) Path() string {
	return s.path
}

// Append durably writes one record as a single CSV row. The header row is
// emitted before the first data row of an empty file. Writers are serialized
// so rows never interleave; a failure leaves the store unchanged from the
// caller's perspective and is reported rather than panicking.
func (s *Store) Append(rec Record) error {
	if len(rec) != len(s.header) {
		return fmt.Errorf("record has %d fields, store header has %d", len(rec), len(s.header))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		s.logger.Error("failed to open store for append",
			zap.String("path", s.path), zap.Error(err))
		return fmt.Errorf("open store for append: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			s.logger.Debug("failed to close store file", zap.Error(cerr))
		}
	}()

	w := csv.NewWriter(f)
	if empty, serr := s.isEmpty(f); serr != nil {
		return serr
	} else if empty {
		if err := w.Write(s.header); err != nil {
			s.logger.Error("failed to write store header",
				zap.String("path", s.path), zap.Error(err))
			return fmt.Errorf("write store header: %w", err)
		}
	}
	if err := w.Write(rec); err != nil {
		s.logger.Error("failed to write store record",
			zap.String("path", s.path), zap.Error(err))
		return fmt.Errorf("write store record: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		s.logger.Error("failed to flush store record",
			zap.String("path", s.path), zap.Error(err))
		return fmt.Errorf("flush store record: %w", err)
	}
	if err := f.Sync(); err != nil {
		s.logger.Error("failed to sync store file",
			zap.String("path", s.path), zap.Error(err))
		return fmt.Errorf("sync store file: %w", err)
	}
	return nil
}

func (s *Store) isEmpty(f *os.File) (bool, error) {
	info, err := f.Stat()
	if err != nil {
		s.logger.Error("failed to stat store file",
			zap.String("path", s.path), zap.Error(err))
		return false, fmt.Errorf("stat store file: %w", err)
	}
	return info.Size() == 0, nil
}

// Stream reads every data record back from disk. When randomize is true the
// records are shuffled uniformly; the header row is never part of the result.
// Each call re-reads the full file, so appends made after Stream returns are
// not reflected in the returned slice.
func (s *Store) Stream(randomize bool) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		s.logger.Error("failed to open store for read",
			zap.String("path", s.path), zap.Error(err))
		return nil, fmt.Errorf("open store for read: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			s.logger.Debug("failed to close store file", zap.Error(cerr))
		}
	}()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		s.logger.Error("failed to read store contents",
			zap.String("path", s.path), zap.Error(err))
		return nil, fmt.Errorf("read store contents: %w", err)
	}
	if len(rows) <= 1 {
		return nil, nil
	}
	records := make([]Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		records = append(records, Record(row))
	}
	if randomize {
		rand.Shuffle(len(records), func(i, j int) {
			records[i], records[j] = records[j], records[i]
		})
	}
	return records, nil
}

// ForEach streams records through fn in the requested order, stopping early
// when fn returns false. Read errors are logged and reported; fn is never
// called with a partial row.
func (s *Store) ForEach(randomize bool, fn func(Record) bool) error {
	records, err := s.Stream(randomize)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if !fn(rec) {
			return nil
		}
	}
	return nil
}

// Count returns the number of data records, excluding the header. Missing or
// unreadable stores count as zero rather than failing the caller.
func (s *Store) Count() int {
	records, err := s.Stream(false)
	if err != nil {
		return 0
	}
	return len(records)
}

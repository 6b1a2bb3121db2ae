// Package csv writes harvest rows to a CSV file, one file per harvest
// type. Reopening an existing file appends without repeating the header,
// which is what makes kill-and-restart resume cheap: the file itself is the
// durable watermark source.
package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/custodia-labs/harvest-cli/internal/core/domain"
	"github.com/custodia-labs/harvest-cli/internal/core/ports/driven"
)

// Ensure Sink implements the interface.
var _ driven.RecordSink = (*Sink)(nil)

// Sink appends rows for one harvest type to "<harvest>.csv" under dir.
type Sink struct {
	mu     sync.Mutex
	schema domain.Schema
	path   string
	file   *os.File
	w      *csv.Writer
}

// Open opens the sink in append mode, writing the header only when the
// file is new. With truncate set, any previous output is discarded first;
// non-resumable harvests rewrite their file every run.
func Open(dir string, schema domain.Schema, truncate bool) (*Sink, error) {
	if schema.Name == "" {
		return nil, fmt.Errorf("%w: schema has no name", domain.ErrInvalidInput)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	path := filepath.Join(dir, schema.Name+".csv")
	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if truncate {
		flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	}

	f, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	s := &Sink{
		schema: schema,
		path:   path,
		file:   f,
		w:      csv.NewWriter(f),
	}

	if info.Size() == 0 {
		if err := s.w.Write(schema.Header); err != nil {
			f.Close()
			return nil, fmt.Errorf("writing header: %w", err)
		}
		s.w.Flush()
		if err := s.w.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("flushing header: %w", err)
		}
	}
	return s, nil
}

// Path returns the output file path.
func (s *Sink) Path() string {
	return s.path
}

// Write appends one row and flushes it to the OS. The engine checkpoints
// right after a Write returns, so the row must not sit in a buffer.
func (s *Sink) Write(_ context.Context, rec *domain.Record) error {
	if len(rec.Values) != len(s.schema.Header) {
		return fmt.Errorf("%w: row has %d values, schema %q has %d columns",
			domain.ErrInvalidInput, len(rec.Values), s.schema.Name, len(s.schema.Header))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.w.Write(rec.Values); err != nil {
		return fmt.Errorf("writing row: %w", err)
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return fmt.Errorf("flushing row: %w", err)
	}
	return nil
}

// Watermarks scans the rows written so far and returns the maximum natural
// id per entity.
func (s *Sink) Watermarks(_ context.Context) (map[domain.Entity]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", s.path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(s.schema.Header)

	marks := make(map[domain.Entity]int64)
	first := true
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			return marks, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", s.path, err)
		}
		if first {
			first = false
			continue
		}

		entity := domain.Entity(row[s.schema.EntityColumn])
		id, err := strconv.ParseInt(row[s.schema.IDColumn], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: bad id %q for %s: %w", s.path, row[s.schema.IDColumn], entity, err)
		}
		if id > marks[entity] {
			marks[entity] = id
		}
	}
}

// Close flushes and closes the file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.w.Flush()
	werr := s.w.Error()
	cerr := s.file.Close()
	if werr != nil {
		return werr
	}
	return cerr
}

// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package stage implements the Intermediate Writer: a
// chunked, per-table file writer that decouples extraction from loading.
// Each (table, chunk) pair owns one open file; a chunk closes and a new one
// opens once row count reaches chunk_size or byte size reaches chunk_bytes,
// mirroring the threshold-crossing logic a batch writer uses to split a
// large script into size-bounded units.
package stage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Ext is the file extension used for chunk files, fixed to the CSV dialect
// of the bundled reference loader. An optional columnar dialect is an accepted Non-goal
// of this implementation; see DESIGN.md for the rationale.
const Ext = "csv"

type tableState struct {
	chunkIndex int
	rows       int
	bytes      int64
	path       string
	file       *os.File
	csv        *csv.Writer
}

// Writer owns the chunk files for a single run's staging directory. It is
// safe for concurrent use: appends are serialized behind a mutex per the
// concurrency model ("the Writer serializes appends per table
// behind a mutex").
type Writer struct {
	dir        string
	chunkSize  int
	chunkBytes int64

	mu     sync.Mutex
	tables map[string]*tableState
}

// NewWriter creates a Writer rooted at dir (the orchestrator uses
// runs/<run_id>/staging/batch-NNNN). dir is created if it does not already exist.
func NewWriter(dir string, chunkSize int, chunkBytes int64) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("stage: create staging dir: %w", err)
	}
	return &Writer{
		dir:        dir,
		chunkSize:  chunkSize,
		chunkBytes: chunkBytes,
		tables:     make(map[string]*tableState),
	}, nil
}

// AppendRows writes rows to table's current chunk, rotating to a new chunk
// file first once the current one has reached chunk_size rows or
// chunk_bytes bytes.
// Each row must already be encoded to the CSV dialect's string values (see
// encode.go).
func (w *Writer) AppendRows(table string, rows [][]string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	ts, err := w.tableFor(table)
	if err != nil {
		return err
	}

	for _, row := range rows {
		if ts.rows >= w.chunkSize || ts.bytes >= w.chunkBytes {
			if err := w.rotate(table, ts); err != nil {
				return err
			}
		}
		if err := ts.csv.Write(row); err != nil {
			return fmt.Errorf("stage: write row to %s: %w", table, err)
		}
		ts.csv.Flush()
		if err := ts.csv.Error(); err != nil {
			return fmt.Errorf("stage: flush %s: %w", table, err)
		}
		ts.rows++
		ts.bytes += rowByteSize(row)
	}
	return nil
}

func rowByteSize(row []string) int64 {
	var n int64
	for _, f := range row {
		n += int64(len(f)) + 1 // +1 approximates the field delimiter/quoting overhead
	}
	return n
}

// tableFor returns the open tableState for table, opening its first chunk
// file on first use.
func (w *Writer) tableFor(table string) (*tableState, error) {
	ts, ok := w.tables[table]
	if ok {
		return ts, nil
	}
	ts = &tableState{chunkIndex: -1}
	w.tables[table] = ts
	if err := w.openChunk(table, ts); err != nil {
		return nil, err
	}
	return ts, nil
}

func (w *Writer) openChunk(table string, ts *tableState) error {
	ts.chunkIndex++
	path := filepath.Join(w.dir, fmt.Sprintf("%s.%04d.%s", table, ts.chunkIndex, Ext))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("stage: open chunk %s: %w", path, err)
	}
	ts.path = path
	ts.file = f
	ts.csv = csv.NewWriter(f)
	ts.rows = 0
	ts.bytes = 0
	return nil
}

// rotate closes the current chunk for table and opens the next one.
func (w *Writer) rotate(table string, ts *tableState) error {
	ts.csv.Flush()
	if err := ts.csv.Error(); err != nil {
		return fmt.Errorf("stage: flush %s before rotate: %w", table, err)
	}
	if err := ts.file.Close(); err != nil {
		return fmt.Errorf("stage: close chunk for %s: %w", table, err)
	}
	return w.openChunk(table, ts)
}

// Close flushes and closes every open chunk file. Call once after all rows
// for the run have been appended and before BulkLoadToStaging.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var firstErr error
	for table, ts := range w.tables {
		ts.csv.Flush()
		if err := ts.csv.Error(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("stage: final flush %s: %w", table, err)
		}
		if err := ts.file.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("stage: close %s: %w", table, err)
		}
	}
	return firstErr
}

// Abort deletes only the currently open (not yet rotated) chunk file for
// table, per the failure rule: on any write error the writer
// finalizes and deletes partial chunks for the current table before
// surfacing the error; previously finalized (already rotated) chunks for
// this and every other table remain on disk for inspection.
func (w *Writer) Abort(table string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	ts, ok := w.tables[table]
	if !ok {
		return nil
	}
	_ = ts.file.Close()
	if err := os.Remove(ts.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("stage: remove partial chunk for %s: %w", table, err)
	}
	delete(w.tables, table)
	return nil
}

// Dir returns the staging directory this Writer writes into.
func (w *Writer) Dir() string { return w.dir }
